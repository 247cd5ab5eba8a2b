package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
)

// blockingResolver lets tests hold workers inside Resolve until released.
type blockingResolver struct {
	started  chan models.LookupKey
	release  chan struct{}
	calls    int32
	resolved []models.LookupKey
	mutex    sync.Mutex
}

func newBlockingResolver() *blockingResolver {
	return &blockingResolver{
		started: make(chan models.LookupKey, 64),
		release: make(chan struct{}),
	}
}

func (r *blockingResolver) Resolve(ctx context.Context, key models.LookupKey) (*Resolution, error) {
	atomic.AddInt32(&r.calls, 1)
	r.started <- key

	select {
	case <-r.release:
	case <-ctx.Done():
		return nil, shared.WrapError(ctx.Err(), shared.ErrorClassCancelled, "resolver", "checkpoint")
	}

	r.mutex.Lock()
	r.resolved = append(r.resolved, key)
	r.mutex.Unlock()

	return &Resolution{
		Record: testRecord(key.Normalized),
		Source: models.RecordSourceAPI,
	}, nil
}

func (r *blockingResolver) callCount() int32 {
	return atomic.LoadInt32(&r.calls)
}

func (r *blockingResolver) resolvedKeys() []models.LookupKey {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return append([]models.LookupKey(nil), r.resolved...)
}

func newTestScheduler(resolver Resolver, workers int) *CollectionScheduler {
	return NewCollectionScheduler(resolver, &shared.SchedulerConfig{
		WorkerPoolSize: workers,
		QueueCapacity:  64,
	})
}

func waitOutcome(t *testing.T, handle *JobHandle) models.JobOutcome {
	t.Helper()
	select {
	case outcome := <-handle.Outcome():
		return outcome
	case <-time.After(5 * time.Second):
		t.Fatalf("Timed out waiting for outcome of job %s", handle.JobID)
		return models.JobOutcome{}
	}
}

func TestSchedulerResolvesSubmittedJob(t *testing.T) {
	resolver := newBlockingResolver()
	close(resolver.release)
	scheduler := newTestScheduler(resolver, 2)
	scheduler.Start()
	defer scheduler.Stop()

	handle, err := scheduler.Submit(mustKey(t, models.KeyKindParcel, "04217311"), 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	outcome := waitOutcome(t, handle)
	if outcome.State != models.JobStateSucceeded {
		t.Fatalf("Expected SUCCEEDED, got %s (%v)", outcome.State, outcome.Err)
	}
	if outcome.Record == nil || outcome.Record.ParcelID != "04217311" {
		t.Error("Outcome should carry the resolved record")
	}
	if outcome.JobID != handle.JobID {
		t.Error("Outcome should carry the handle's job id")
	}
}

func TestSchedulerDeduplicatesConcurrentSubmissions(t *testing.T) {
	resolver := newBlockingResolver()
	scheduler := newTestScheduler(resolver, 2)
	scheduler.Start()
	defer scheduler.Stop()

	key := mustKey(t, models.KeyKindParcel, "04217311")

	const submitters = 10
	handles := make([]*JobHandle, submitters)
	var wg sync.WaitGroup
	for i := 0; i < submitters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handle, err := scheduler.Submit(key, 0)
			if err != nil {
				t.Errorf("Submit failed: %v", err)
				return
			}
			handles[i] = handle
		}(i)
	}
	wg.Wait()

	// Let the single underlying job finish.
	close(resolver.release)

	outcomes := make([]models.JobOutcome, submitters)
	for i, handle := range handles {
		outcomes[i] = waitOutcome(t, handle)
	}

	if calls := resolver.callCount(); calls != 1 {
		t.Errorf("Concurrent submissions of one key should resolve once, got %d", calls)
	}
	for i := 1; i < submitters; i++ {
		if handles[i].JobID != handles[0].JobID {
			t.Error("All submitters should share one job id")
		}
		if outcomes[i].State != outcomes[0].State || outcomes[i].Record != outcomes[0].Record {
			t.Error("Every subscriber should observe the identical outcome")
		}
	}

	stats := scheduler.Stats()
	if stats.Submitted != 1 {
		t.Errorf("Expected 1 submission, got %d", stats.Submitted)
	}
	if stats.Deduplicated != submitters-1 {
		t.Errorf("Expected %d deduplicated submissions, got %d", submitters-1, stats.Deduplicated)
	}
}

func TestSchedulerNewJobAfterCompletion(t *testing.T) {
	resolver := newBlockingResolver()
	close(resolver.release)
	scheduler := newTestScheduler(resolver, 1)
	scheduler.Start()
	defer scheduler.Stop()

	key := mustKey(t, models.KeyKindParcel, "04217311")

	first, err := scheduler.Submit(key, 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	waitOutcome(t, first)

	// The live table no longer holds the key, so this is a fresh job.
	second, err := scheduler.Submit(key, 0)
	if err != nil {
		t.Fatalf("Second submit failed: %v", err)
	}
	waitOutcome(t, second)

	if first.JobID == second.JobID {
		t.Error("Submission after completion should start a new job")
	}
	if resolver.callCount() != 2 {
		t.Errorf("Expected 2 resolves, got %d", resolver.callCount())
	}
}

func TestSchedulerCancelQueuedJobBeforeDispatch(t *testing.T) {
	resolver := newBlockingResolver()
	scheduler := newTestScheduler(resolver, 1)
	scheduler.Start()
	defer scheduler.Stop()
	defer close(resolver.release)

	// Occupy the only worker.
	blocker, err := scheduler.Submit(mustKey(t, models.KeyKindParcel, "11111111"), 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-resolver.started

	queued, err := scheduler.Submit(mustKey(t, models.KeyKindParcel, "22222222"), 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	if !scheduler.Cancel(queued.JobID) {
		t.Fatal("Cancel of a queued job should succeed")
	}

	outcome := waitOutcome(t, queued)
	if outcome.State != models.JobStateCancelled {
		t.Fatalf("Expected CANCELLED, got %s", outcome.State)
	}
	if !shared.IsClass(outcome.Err, shared.ErrorClassCancelled) {
		t.Errorf("Cancelled outcome should carry a cancelled error, got %v", outcome.Err)
	}

	_ = blocker
	if resolver.callCount() != 1 {
		t.Errorf("Cancelled queued job must never reach the resolver, got %d calls", resolver.callCount())
	}
}

func TestSchedulerCancelRunningJobCooperatively(t *testing.T) {
	resolver := newBlockingResolver()
	scheduler := newTestScheduler(resolver, 1)
	scheduler.Start()
	defer scheduler.Stop()

	handle, err := scheduler.Submit(mustKey(t, models.KeyKindParcel, "04217311"), 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-resolver.started

	if !scheduler.Cancel(handle.JobID) {
		t.Fatal("Cancel of a running job should succeed")
	}

	outcome := waitOutcome(t, handle)
	if outcome.State != models.JobStateCancelled {
		t.Fatalf("Expected CANCELLED, got %s", outcome.State)
	}
}

func TestSchedulerCancelUnknownJob(t *testing.T) {
	resolver := newBlockingResolver()
	close(resolver.release)
	scheduler := newTestScheduler(resolver, 1)
	scheduler.Start()
	defer scheduler.Stop()

	handle, _ := scheduler.Submit(mustKey(t, models.KeyKindParcel, "04217311"), 0)
	waitOutcome(t, handle)

	if scheduler.Cancel(handle.JobID) {
		t.Error("Cancel of a finished job should report false")
	}
}

func TestSchedulerPriorityOrderWithFIFOTieBreak(t *testing.T) {
	resolver := newBlockingResolver()
	scheduler := newTestScheduler(resolver, 1)
	scheduler.Start()
	defer scheduler.Stop()

	// Occupy the only worker so subsequent submissions stack in the queue.
	blocker, err := scheduler.Submit(mustKey(t, models.KeyKindParcel, "00000000"), 0)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-resolver.started

	low1, _ := scheduler.Submit(mustKey(t, models.KeyKindParcel, "11111111"), 1)
	low2, _ := scheduler.Submit(mustKey(t, models.KeyKindParcel, "22222222"), 1)
	high, _ := scheduler.Submit(mustKey(t, models.KeyKindParcel, "33333333"), 5)

	close(resolver.release)
	waitOutcome(t, blocker)
	waitOutcome(t, low1)
	waitOutcome(t, low2)
	waitOutcome(t, high)

	resolved := resolver.resolvedKeys()
	if len(resolved) != 4 {
		t.Fatalf("Expected 4 resolved keys, got %d", len(resolved))
	}
	if resolved[1].Normalized != "33333333" {
		t.Errorf("Highest priority should dispatch first, got %s", resolved[1].Normalized)
	}
	if resolved[2].Normalized != "11111111" || resolved[3].Normalized != "22222222" {
		t.Errorf("Equal priorities should dispatch in submission order, got %s then %s",
			resolved[2].Normalized, resolved[3].Normalized)
	}
}

func TestSchedulerStatusLifecycle(t *testing.T) {
	resolver := newBlockingResolver()
	scheduler := newTestScheduler(resolver, 1)
	scheduler.Start()
	defer scheduler.Stop()

	handle, err := scheduler.Submit(mustKey(t, models.KeyKindParcel, "04217311"), 3)
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-resolver.started

	status, found := scheduler.Status(handle.JobID)
	if !found {
		t.Fatal("Running job should be visible in Status")
	}
	if status.State != models.JobStateRunning {
		t.Errorf("Expected RUNNING, got %s", status.State)
	}
	if status.Priority != 3 {
		t.Errorf("Expected priority 3, got %d", status.Priority)
	}

	close(resolver.release)
	waitOutcome(t, handle)

	status, found = scheduler.Status(handle.JobID)
	if !found {
		t.Fatal("Finished job should stay queryable within the retention window")
	}
	if status.State != models.JobStateSucceeded {
		t.Errorf("Expected SUCCEEDED, got %s", status.State)
	}
	if status.Record == nil {
		t.Error("Terminal status should carry the record")
	}
}

func TestSchedulerSubscribeAfterCompletion(t *testing.T) {
	resolver := newBlockingResolver()
	close(resolver.release)
	scheduler := newTestScheduler(resolver, 1)
	scheduler.Start()
	defer scheduler.Stop()

	handle, _ := scheduler.Submit(mustKey(t, models.KeyKindParcel, "04217311"), 0)
	waitOutcome(t, handle)

	subscription, err := scheduler.Subscribe(handle.JobID)
	if err != nil {
		t.Fatalf("Subscribe after completion failed: %v", err)
	}
	select {
	case outcome := <-subscription:
		if outcome.State != models.JobStateSucceeded {
			t.Errorf("Late subscriber should see the terminal outcome, got %s", outcome.State)
		}
	case <-time.After(time.Second):
		t.Fatal("Late subscriber should receive the outcome immediately")
	}
}

func TestSchedulerRejectsSubmitWhenQueueFull(t *testing.T) {
	resolver := newBlockingResolver()
	scheduler := NewCollectionScheduler(resolver, &shared.SchedulerConfig{
		WorkerPoolSize: 1,
		QueueCapacity:  2,
	})
	scheduler.Start()
	defer scheduler.Stop()
	defer close(resolver.release)

	// One running plus two queued fills the capacity.
	scheduler.Submit(mustKey(t, models.KeyKindParcel, "00000000"), 0)
	<-resolver.started
	scheduler.Submit(mustKey(t, models.KeyKindParcel, "11111111"), 0)
	scheduler.Submit(mustKey(t, models.KeyKindParcel, "22222222"), 0)

	_, err := scheduler.Submit(mustKey(t, models.KeyKindParcel, "33333333"), 0)
	if !shared.IsClass(err, shared.ErrorClassRateLimited) {
		t.Errorf("Full queue should reject with rate_limited, got %v", err)
	}
}

func TestSchedulerStopDrainsQueuedJobs(t *testing.T) {
	resolver := newBlockingResolver()
	scheduler := newTestScheduler(resolver, 1)
	scheduler.Start()

	blocker, _ := scheduler.Submit(mustKey(t, models.KeyKindParcel, "00000000"), 0)
	<-resolver.started
	queued, _ := scheduler.Submit(mustKey(t, models.KeyKindParcel, "11111111"), 0)

	done := make(chan struct{})
	go func() {
		scheduler.Stop()
		close(done)
	}()

	// The queued job is notified during drain; the running one is cancelled.
	outcome := waitOutcome(t, queued)
	if outcome.State != models.JobStateCancelled {
		t.Errorf("Queued job should be cancelled on shutdown, got %s", outcome.State)
	}

	blockerOutcome := waitOutcome(t, blocker)
	if blockerOutcome.State != models.JobStateCancelled {
		t.Errorf("Running job should be cancelled on shutdown, got %s", blockerOutcome.State)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop should return once workers exit")
	}

	if _, err := scheduler.Submit(mustKey(t, models.KeyKindParcel, "22222222"), 0); err == nil {
		t.Error("Submit after Stop should fail")
	}
}
