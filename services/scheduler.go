package services

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// terminalRetention is how long terminal job outcomes stay queryable through
// Status after the job leaves the live table.
const terminalRetention = 15 * time.Minute

// JobHandle is the caller's reference to a submitted job: the job id plus the
// caller's own subscription channel. Concurrent submissions of the same key
// receive distinct handles sharing one job id.
type JobHandle struct {
	JobID   uuid.UUID
	Key     models.LookupKey
	outcome chan models.JobOutcome
}

// Outcome returns the channel on which this subscriber receives the job's
// terminal result. The channel delivers exactly one value and is then closed.
func (h *JobHandle) Outcome() <-chan models.JobOutcome {
	return h.outcome
}

// collectionJob is one in-flight request. At most one live job exists per
// lookup key; concurrent submissions attach as additional subscribers.
type collectionJob struct {
	id          uuid.UUID
	key         models.LookupKey
	priority    int
	seq         uint64
	state       models.JobState
	submittedAt time.Time
	subscribers []chan models.JobOutcome
	cancelFunc  context.CancelFunc
	cancelled   bool
	heapIndex   int
}

// jobQueue is a priority heap: higher priority first, FIFO among equals.
type jobQueue []*collectionJob

func (q jobQueue) Len() int { return len(q) }

func (q jobQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].seq < q[j].seq
}

func (q jobQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].heapIndex = i
	q[j].heapIndex = j
}

func (q *jobQueue) Push(x any) {
	job := x.(*collectionJob)
	job.heapIndex = len(*q)
	*q = append(*q, job)
}

func (q *jobQueue) Pop() any {
	old := *q
	n := len(old)
	job := old[n-1]
	old[n-1] = nil
	job.heapIndex = -1
	*q = old[:n-1]
	return job
}

// terminalEntry keeps a finished job's outcome queryable for a while.
type terminalEntry struct {
	outcome    models.JobOutcome
	finishedAt time.Time
}

// CollectionScheduler accepts lookup requests, deduplicates in-flight
// requests for the same key, dispatches them to a fixed worker pool in
// priority order, and delivers results asynchronously. Submit never blocks
// the caller.
//
// The live-job table and the queue share one mutex so the dedup check and
// insert are a single atomic step; two workers can never pick up the same
// key.
type CollectionScheduler struct {
	resolver Resolver
	metrics  *shared.SchedulerMetrics

	mutex     sync.Mutex
	cond      *sync.Cond
	liveJobs  map[models.LookupKey]*collectionJob
	liveByID  map[uuid.UUID]*collectionJob
	terminal  map[uuid.UUID]*terminalEntry
	queue     jobQueue
	seq       uint64
	stopped   bool

	workerPoolSize int
	queueCapacity  int
	group          *errgroup.Group
	workerCtx      context.Context
	workerCancel   context.CancelFunc
}

// NewCollectionScheduler creates a scheduler over the given resolver. Call
// Start to launch the worker pool and Stop for teardown.
func NewCollectionScheduler(resolver Resolver, config *shared.SchedulerConfig) *CollectionScheduler {
	scheduler := &CollectionScheduler{
		resolver:       resolver,
		metrics:        shared.NewSchedulerMetrics(),
		liveJobs:       make(map[models.LookupKey]*collectionJob),
		liveByID:       make(map[uuid.UUID]*collectionJob),
		terminal:       make(map[uuid.UUID]*terminalEntry),
		workerPoolSize: config.WorkerPoolSize,
		queueCapacity:  config.QueueCapacity,
	}
	scheduler.cond = sync.NewCond(&scheduler.mutex)
	return scheduler
}

// Start launches the fixed-size worker pool.
func (s *CollectionScheduler) Start() {
	s.workerCtx, s.workerCancel = context.WithCancel(context.Background())
	s.group = &errgroup.Group{}

	for i := 0; i < s.workerPoolSize; i++ {
		workerID := i
		s.group.Go(func() error {
			s.workerLoop(workerID)
			return nil
		})
	}

	logrus.WithFields(logrus.Fields{
		"component": "CollectionScheduler",
		"workers":   s.workerPoolSize,
	}).Info("Collection scheduler started")
}

// Submit enqueues a lookup, or attaches to the existing live job when one is
// already queued or running for the same key. Non-blocking; the terminal
// result arrives on the returned handle's Outcome channel.
func (s *CollectionScheduler) Submit(key models.LookupKey, priority int) (*JobHandle, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.stopped {
		return nil, shared.NewFetchError(shared.ErrorClassCancelled, "scheduler", "submit",
			"scheduler is shut down", nil)
	}

	subscription := make(chan models.JobOutcome, 1)

	if job, exists := s.liveJobs[key]; exists {
		job.subscribers = append(job.subscribers, subscription)
		// A higher-priority duplicate pulls a still-queued job forward.
		if job.state == models.JobStateQueued && priority > job.priority {
			job.priority = priority
			heap.Fix(&s.queue, job.heapIndex)
		}
		s.metrics.RecordDedup()

		logrus.WithFields(logrus.Fields{
			"component":   "CollectionScheduler",
			"key":         key.String(),
			"job_id":      job.id,
			"subscribers": len(job.subscribers),
		}).Debug("Attached subscriber to in-flight job")

		return &JobHandle{JobID: job.id, Key: key, outcome: subscription}, nil
	}

	if s.queueCapacity > 0 && s.queue.Len() >= s.queueCapacity {
		return nil, shared.NewFetchError(shared.ErrorClassRateLimited, "scheduler", "submit",
			"job queue is full", nil)
	}

	s.seq++
	job := &collectionJob{
		id:          uuid.New(),
		key:         key,
		priority:    priority,
		seq:         s.seq,
		state:       models.JobStateQueued,
		submittedAt: time.Now(),
		subscribers: []chan models.JobOutcome{subscription},
	}
	s.liveJobs[key] = job
	s.liveByID[job.id] = job
	heap.Push(&s.queue, job)
	s.metrics.RecordSubmit()
	s.pruneTerminalLocked()
	s.cond.Signal()

	logrus.WithFields(logrus.Fields{
		"component": "CollectionScheduler",
		"key":       key.String(),
		"job_id":    job.id,
		"priority":  priority,
	}).Info("Job submitted")

	return &JobHandle{JobID: job.id, Key: key, outcome: subscription}, nil
}

// Subscribe attaches an additional subscriber to a job by id. A job that has
// already finished within the retention window delivers its outcome
// immediately; an unknown id is an error.
func (s *CollectionScheduler) Subscribe(jobID uuid.UUID) (<-chan models.JobOutcome, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	subscription := make(chan models.JobOutcome, 1)

	if job, exists := s.liveByID[jobID]; exists {
		job.subscribers = append(job.subscribers, subscription)
		return subscription, nil
	}
	if entry, exists := s.terminal[jobID]; exists {
		subscription <- entry.outcome
		close(subscription)
		return subscription, nil
	}
	return nil, shared.NewFetchError(shared.ErrorClassNotFound, "scheduler", "subscribe",
		"unknown job id "+jobID.String(), nil)
}

// Cancel cancels a job. A queued job is dropped before dispatch; a running
// job is cancelled cooperatively at the resolver's next checkpoint, without
// forcibly interrupting an external call already in flight.
func (s *CollectionScheduler) Cancel(jobID uuid.UUID) bool {
	s.mutex.Lock()

	job, exists := s.liveByID[jobID]
	if !exists {
		s.mutex.Unlock()
		return false
	}

	if job.state == models.JobStateQueued {
		job.cancelled = true
		if job.heapIndex >= 0 {
			heap.Remove(&s.queue, job.heapIndex)
		}
		outcome := models.JobOutcome{
			JobID: job.id,
			Key:   job.key,
			State: models.JobStateCancelled,
			Err: shared.NewFetchError(shared.ErrorClassCancelled, "scheduler", "cancel",
				"job cancelled before dispatch", nil),
		}
		s.finishJobLocked(job, outcome)
		s.metrics.RecordCancellation()
		s.mutex.Unlock()

		logrus.WithFields(logrus.Fields{
			"component": "CollectionScheduler",
			"job_id":    job.id,
			"key":       job.key.String(),
		}).Info("Cancelled queued job before dispatch")
		return true
	}

	// Running: flag it and cancel the job context. The worker observes the
	// cancellation when the resolver hits its next checkpoint and reports the
	// terminal state through the normal completion path.
	job.cancelled = true
	cancelFunc := job.cancelFunc
	s.mutex.Unlock()

	if cancelFunc != nil {
		cancelFunc()
	}

	logrus.WithFields(logrus.Fields{
		"component": "CollectionScheduler",
		"job_id":    job.id,
		"key":       job.key.String(),
	}).Info("Requested cooperative cancellation of running job")
	return true
}

// Status reports the current state of a live or recently finished job.
func (s *CollectionScheduler) Status(jobID uuid.UUID) (*models.JobStatus, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if job, exists := s.liveByID[jobID]; exists {
		return &models.JobStatus{
			JobID:       job.id,
			Key:         job.key,
			Priority:    job.priority,
			State:       job.state,
			Subscribers: len(job.subscribers),
			SubmittedAt: job.submittedAt,
		}, true
	}
	if entry, exists := s.terminal[jobID]; exists {
		status := &models.JobStatus{
			JobID:  entry.outcome.JobID,
			Key:    entry.outcome.Key,
			State:  entry.outcome.State,
			Record: entry.outcome.Record,
			Stale:  entry.outcome.Stale,
		}
		if entry.outcome.Err != nil {
			status.Error = entry.outcome.Err.Error()
		}
		return status, true
	}
	return nil, false
}

// Stats returns the scheduler's lifecycle counters.
func (s *CollectionScheduler) Stats() shared.SchedulerMetrics {
	return s.metrics.GetSnapshot()
}

// QueueDepth returns the number of jobs waiting for a worker.
func (s *CollectionScheduler) QueueDepth() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.queue.Len()
}

// Stop shuts the scheduler down: no new submissions, queued jobs are
// cancelled and notified, running jobs are cancelled cooperatively, and the
// call returns once every worker has exited.
func (s *CollectionScheduler) Stop() {
	s.mutex.Lock()
	if s.stopped {
		s.mutex.Unlock()
		return
	}
	s.stopped = true

	// Drain the queue: everything still waiting is cancelled and notified.
	for s.queue.Len() > 0 {
		job := heap.Pop(&s.queue).(*collectionJob)
		outcome := models.JobOutcome{
			JobID: job.id,
			Key:   job.key,
			State: models.JobStateCancelled,
			Err: shared.NewFetchError(shared.ErrorClassCancelled, "scheduler", "stop",
				"scheduler shut down before dispatch", nil),
		}
		s.finishJobLocked(job, outcome)
		s.metrics.RecordCancellation()
	}
	s.cond.Broadcast()
	s.mutex.Unlock()

	if s.workerCancel != nil {
		s.workerCancel()
	}
	if s.group != nil {
		s.group.Wait()
	}

	s.metrics.LogSummary()
	logrus.WithField("component", "CollectionScheduler").Info("Collection scheduler stopped")
}

// workerLoop pulls the highest-priority queued job, runs the resolver, and
// fans the terminal outcome out to every subscriber.
func (s *CollectionScheduler) workerLoop(workerID int) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "CollectionScheduler",
		"worker":    workerID,
	})

	for {
		s.mutex.Lock()
		for s.queue.Len() == 0 && !s.stopped {
			s.cond.Wait()
		}
		if s.stopped && s.queue.Len() == 0 {
			s.mutex.Unlock()
			return
		}

		job := heap.Pop(&s.queue).(*collectionJob)
		job.state = models.JobStateRunning
		jobCtx, cancelJob := context.WithCancel(s.workerCtx)
		job.cancelFunc = cancelJob
		s.mutex.Unlock()

		logger.WithFields(logrus.Fields{
			"job_id":   job.id,
			"key":      job.key.String(),
			"priority": job.priority,
		}).Debug("Worker picked up job")

		startTime := time.Now()
		resolution, err := s.resolver.Resolve(jobCtx, job.key)
		resolveTime := time.Since(startTime)
		cancelJob()

		outcome := models.JobOutcome{JobID: job.id, Key: job.key}

		s.mutex.Lock()
		switch {
		case job.cancelled || shared.IsClass(err, shared.ErrorClassCancelled):
			outcome.State = models.JobStateCancelled
			if err == nil {
				err = shared.NewFetchError(shared.ErrorClassCancelled, "scheduler", "resolve",
					"job cancelled while running", nil)
			}
			outcome.Err = err
			s.metrics.RecordCancellation()
		case err != nil:
			outcome.State = models.JobStateFailed
			outcome.Err = err
			s.metrics.RecordCompletion(false, resolveTime)
		default:
			outcome.State = models.JobStateSucceeded
			outcome.Record = resolution.Record
			outcome.Stale = resolution.Stale
			s.metrics.RecordCompletion(true, resolveTime)
		}
		s.finishJobLocked(job, outcome)
		s.mutex.Unlock()

		logger.WithFields(logrus.Fields{
			"job_id":       job.id,
			"key":          job.key.String(),
			"state":        outcome.State,
			"resolve_time": resolveTime,
		}).Info("Job finished")
	}
}

// finishJobLocked records the terminal outcome, removes the job from the live
// table and fans out to subscribers. Fan-out order is unspecified; every
// subscriber observes the same single outcome. Caller holds the mutex;
// channel sends are safe because each subscription is buffered for exactly
// one value.
func (s *CollectionScheduler) finishJobLocked(job *collectionJob, outcome models.JobOutcome) {
	job.state = outcome.State
	delete(s.liveJobs, job.key)
	delete(s.liveByID, job.id)
	s.terminal[job.id] = &terminalEntry{outcome: outcome, finishedAt: time.Now()}

	for _, subscription := range job.subscribers {
		subscription <- outcome
		close(subscription)
	}
	job.subscribers = nil
}

// pruneTerminalLocked drops terminal outcomes past their retention window.
// Caller holds the mutex.
func (s *CollectionScheduler) pruneTerminalLocked() {
	cutoff := time.Now().Add(-terminalRetention)
	for id, entry := range s.terminal {
		if entry.finishedAt.Before(cutoff) {
			delete(s.terminal, id)
		}
	}
}
