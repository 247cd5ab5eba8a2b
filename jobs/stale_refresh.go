package jobs

import (
	"context"
	"time"

	"github.com/fenilmodi00/parcel-backend/services"
	"github.com/sirupsen/logrus"
)

// staleRefreshBatchSize caps how many records one run re-submits, so a large
// backlog of stale rows cannot monopolize the worker pool.
const staleRefreshBatchSize = 25

type StaleRecordRefreshJob struct {
	RecordService *services.RecordService
	Scheduler     *services.CollectionScheduler
	StalenessAge  time.Duration
}

func NewStaleRecordRefreshJob(recordService *services.RecordService, scheduler *services.CollectionScheduler, stalenessAge time.Duration) *StaleRecordRefreshJob {
	return &StaleRecordRefreshJob{
		RecordService: recordService,
		Scheduler:     scheduler,
		StalenessAge:  stalenessAge,
	}
}

// Run finds records in the durable store older than the staleness limit and
// re-submits them at low priority. Deduplication in the scheduler makes the
// re-submit a no-op for keys a caller is already waiting on.
func (j *StaleRecordRefreshJob) Run() {
	logrus.Info("Starting Stale Record Refresh Job")
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-j.StalenessAge)
	staleKeys, err := j.RecordService.ListStaleKeys(ctx, cutoff, staleRefreshBatchSize)
	if err != nil {
		logrus.WithError(err).Error("Stale Record Refresh Job failed to list stale records")
		return
	}

	submitted := 0
	for _, stale := range staleKeys {
		if _, err := j.Scheduler.Submit(stale.Key, 0); err != nil {
			logrus.WithError(err).WithField("key", stale.Key.String()).
				Warn("Failed to submit stale record for refresh")
			continue
		}
		submitted++
	}

	logrus.WithFields(logrus.Fields{
		"stale_found": len(staleKeys),
		"submitted":   submitted,
	}).Info("Stale Record Refresh Job completed")
}
