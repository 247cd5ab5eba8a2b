package services

import (
	"sync"
	"time"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/sirupsen/logrus"
)

// CacheEntry represents a cached record with expiration.
type CacheEntry struct {
	Record    *models.PropertyRecord
	ExpiresAt time.Time
}

// IsExpired checks if the cache entry has expired.
func (ce *CacheEntry) IsExpired() bool {
	return time.Now().After(ce.ExpiresAt)
}

// ResultCache maps lookup keys to previously fetched records with TTL expiry
// and hit/miss accounting. Expiry is checked lazily on read and a background
// sweep removes expired entries to bound memory. The cache is not durable;
// the database holds the durable superset.
type ResultCache struct {
	cache      map[models.LookupKey]*CacheEntry
	mutex      sync.RWMutex
	defaultTTL time.Duration
	maxSize    int
	metrics    *shared.CacheMetrics

	sweepInterval time.Duration
	stopSweep     chan struct{}
	sweepOnce     sync.Once
}

// NewResultCache creates a cache with the given TTL, size bound and sweep
// interval. Call StartSweeper to begin background expiry and Stop on teardown.
func NewResultCache(config *shared.CacheConfig) *ResultCache {
	return &ResultCache{
		cache:         make(map[models.LookupKey]*CacheEntry),
		defaultTTL:    config.DefaultTTL,
		maxSize:       config.MaxSize,
		metrics:       shared.NewCacheMetrics(),
		sweepInterval: config.SweepInterval,
		stopSweep:     make(chan struct{}),
	}
}

// Get retrieves a fresh record. Expired entries count as misses and are
// removed on the next sweep.
func (rc *ResultCache) Get(key models.LookupKey) (*models.PropertyRecord, bool) {
	rc.mutex.RLock()
	entry, exists := rc.cache[key]
	rc.mutex.RUnlock()

	if !exists || entry.IsExpired() {
		rc.metrics.RecordMiss()
		return nil, false
	}

	rc.metrics.RecordHit()
	return entry.Record, true
}

// Put stores a record with the default TTL.
func (rc *ResultCache) Put(key models.LookupKey, record *models.PropertyRecord) {
	rc.PutWithTTL(key, record, rc.defaultTTL)
}

// PutWithTTL stores a record with a custom TTL, evicting the entry closest to
// expiry when the size bound is reached.
func (rc *ResultCache) PutWithTTL(key models.LookupKey, record *models.PropertyRecord, ttl time.Duration) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	if _, exists := rc.cache[key]; !exists && len(rc.cache) >= rc.maxSize {
		rc.evictClosestToExpiry()
	}

	rc.cache[key] = &CacheEntry{
		Record:    record,
		ExpiresAt: time.Now().Add(ttl),
	}
	rc.metrics.SetSize(len(rc.cache))
}

// evictClosestToExpiry removes the entry nearest its expiration. Caller holds
// the write lock.
func (rc *ResultCache) evictClosestToExpiry() {
	var victimKey models.LookupKey
	var victimExpiry time.Time
	found := false

	for key, entry := range rc.cache {
		if !found || entry.ExpiresAt.Before(victimExpiry) {
			victimKey = key
			victimExpiry = entry.ExpiresAt
			found = true
		}
	}

	if found {
		delete(rc.cache, victimKey)
		rc.metrics.RecordEviction()
	}
}

// Invalidate removes a single entry.
func (rc *ResultCache) Invalidate(key models.LookupKey) {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	delete(rc.cache, key)
	rc.metrics.SetSize(len(rc.cache))
}

// Clear removes all entries.
func (rc *ResultCache) Clear() {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	rc.cache = make(map[models.LookupKey]*CacheEntry)
	rc.metrics.SetSize(0)
}

// Size returns the number of entries, expired or not.
func (rc *ResultCache) Size() int {
	rc.mutex.RLock()
	defer rc.mutex.RUnlock()
	return len(rc.cache)
}

// Stats returns the hit/miss/size counters.
func (rc *ResultCache) Stats() shared.CacheMetrics {
	rc.metrics.SetSize(rc.Size())
	return rc.metrics.GetSnapshot()
}

// StartSweeper launches the background expiry sweep.
func (rc *ResultCache) StartSweeper() {
	go func() {
		ticker := time.NewTicker(rc.sweepInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				removed := rc.SweepExpired()
				if removed > 0 {
					logrus.WithFields(logrus.Fields{
						"component":       "ResultCache",
						"removed_entries": removed,
					}).Debug("Cache sweep removed expired entries")
				}
			case <-rc.stopSweep:
				return
			}
		}
	}()
}

// SweepExpired removes all expired entries and returns how many were removed.
func (rc *ResultCache) SweepExpired() int {
	rc.mutex.Lock()
	defer rc.mutex.Unlock()

	removed := 0
	for key, entry := range rc.cache {
		if entry.IsExpired() {
			delete(rc.cache, key)
			removed++
		}
	}
	rc.metrics.RecordSweep(len(rc.cache))
	return removed
}

// Stop terminates the background sweeper. Safe to call more than once.
func (rc *ResultCache) Stop() {
	rc.sweepOnce.Do(func() {
		close(rc.stopSweep)
	})
}
