package jobs

import (
	"github.com/fenilmodi00/parcel-backend/services"
	"github.com/sirupsen/logrus"
)

type CacheCleanupJob struct {
	Cache *services.ResultCache
}

func NewCacheCleanupJob(cache *services.ResultCache) *CacheCleanupJob {
	return &CacheCleanupJob{Cache: cache}
}

// Run sweeps expired cache entries. The cache also sweeps on its own ticker;
// this job exists so the admin endpoint can force a sweep on demand.
func (j *CacheCleanupJob) Run() {
	logrus.Info("Starting Cache Cleanup Job")
	removed := j.Cache.SweepExpired()
	logrus.WithFields(logrus.Fields{
		"removed":        removed,
		"remaining_size": j.Cache.Size(),
	}).Info("Cache Cleanup Job completed")
}
