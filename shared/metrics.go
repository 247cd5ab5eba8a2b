package shared

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// CacheMetrics tracks hit/miss accounting for the result cache.
type CacheMetrics struct {
	Hits      int64     `json:"hits"`
	Misses    int64     `json:"misses"`
	Size      int       `json:"size"`
	Evictions int64     `json:"evictions"`
	Sweeps    int64     `json:"sweeps"`
	UpdatedAt time.Time `json:"updated_at"`
	mutex     sync.RWMutex
}

// NewCacheMetrics creates a new cache metrics tracker.
func NewCacheMetrics() *CacheMetrics {
	return &CacheMetrics{UpdatedAt: time.Now()}
}

// RecordHit records a fresh cache hit.
func (m *CacheMetrics) RecordHit() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Hits++
	m.UpdatedAt = time.Now()
}

// RecordMiss records a miss or an expired entry served as a miss.
func (m *CacheMetrics) RecordMiss() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Misses++
	m.UpdatedAt = time.Now()
}

// RecordEviction records a size-bound eviction.
func (m *CacheMetrics) RecordEviction() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Evictions++
	m.UpdatedAt = time.Now()
}

// RecordSweep records a background expiry sweep and the resulting size.
func (m *CacheMetrics) RecordSweep(size int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Sweeps++
	m.Size = size
	m.UpdatedAt = time.Now()
}

// SetSize updates the tracked entry count.
func (m *CacheMetrics) SetSize(size int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Size = size
	m.UpdatedAt = time.Now()
}

// GetSnapshot returns a thread-safe copy of current counters.
func (m *CacheMetrics) GetSnapshot() CacheMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return CacheMetrics{
		Hits:      m.Hits,
		Misses:    m.Misses,
		Size:      m.Size,
		Evictions: m.Evictions,
		Sweeps:    m.Sweeps,
		UpdatedAt: m.UpdatedAt,
	}
}

// GetHitRate returns the hit rate as a percentage.
func (m *CacheMetrics) GetHitRate() float64 {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	total := m.Hits + m.Misses
	if total == 0 {
		return 0.0
	}
	return float64(m.Hits) / float64(total) * 100.0
}

// PoolMetrics tracks connection pool occupancy and acquisition failures.
type PoolMetrics struct {
	Idle            int           `json:"idle"`
	InUse           int           `json:"in_use"`
	Broken          int64         `json:"broken"`
	AcquireTimeouts int64         `json:"acquire_timeouts"`
	TotalAcquires   int64         `json:"total_acquires"`
	TotalWaitTime   time.Duration `json:"total_wait_time"`
	UpdatedAt       time.Time     `json:"updated_at"`
	mutex           sync.RWMutex
}

// NewPoolMetrics creates a new pool metrics tracker.
func NewPoolMetrics() *PoolMetrics {
	return &PoolMetrics{UpdatedAt: time.Now()}
}

// RecordAcquire records a successful acquisition and its wait time.
func (m *PoolMetrics) RecordAcquire(waitTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.TotalAcquires++
	m.TotalWaitTime += waitTime
	m.UpdatedAt = time.Now()
}

// RecordTimeout records an acquisition that failed with pool exhaustion.
func (m *PoolMetrics) RecordTimeout() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.AcquireTimeouts++
	m.UpdatedAt = time.Now()
}

// RecordBroken records a connection discarded as broken.
func (m *PoolMetrics) RecordBroken() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Broken++
	m.UpdatedAt = time.Now()
}

// SetOccupancy updates the idle/in-use gauges.
func (m *PoolMetrics) SetOccupancy(idle, inUse int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Idle = idle
	m.InUse = inUse
	m.UpdatedAt = time.Now()
}

// GetSnapshot returns a thread-safe copy of current counters.
func (m *PoolMetrics) GetSnapshot() PoolMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return PoolMetrics{
		Idle:            m.Idle,
		InUse:           m.InUse,
		Broken:          m.Broken,
		AcquireTimeouts: m.AcquireTimeouts,
		TotalAcquires:   m.TotalAcquires,
		TotalWaitTime:   m.TotalWaitTime,
		UpdatedAt:       m.UpdatedAt,
	}
}

// SchedulerMetrics tracks collection job lifecycle counts.
type SchedulerMetrics struct {
	Submitted        int64         `json:"submitted"`
	Deduplicated     int64         `json:"deduplicated"`
	Succeeded        int64         `json:"succeeded"`
	Failed           int64         `json:"failed"`
	Cancelled        int64         `json:"cancelled"`
	TotalResolveTime time.Duration `json:"total_resolve_time"`
	UpdatedAt        time.Time     `json:"updated_at"`
	mutex            sync.RWMutex
}

// NewSchedulerMetrics creates a new scheduler metrics tracker.
func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{UpdatedAt: time.Now()}
}

// RecordSubmit records a new job submission.
func (m *SchedulerMetrics) RecordSubmit() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Submitted++
	m.UpdatedAt = time.Now()
}

// RecordDedup records a submission attached to an existing in-flight job.
func (m *SchedulerMetrics) RecordDedup() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Deduplicated++
	m.UpdatedAt = time.Now()
}

// RecordCompletion records a terminal job state and its resolve duration.
func (m *SchedulerMetrics) RecordCompletion(succeeded bool, resolveTime time.Duration) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	if succeeded {
		m.Succeeded++
	} else {
		m.Failed++
	}
	m.TotalResolveTime += resolveTime
	m.UpdatedAt = time.Now()
}

// RecordCancellation records a cancelled job.
func (m *SchedulerMetrics) RecordCancellation() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Cancelled++
	m.UpdatedAt = time.Now()
}

// GetSnapshot returns a thread-safe copy of current counters.
func (m *SchedulerMetrics) GetSnapshot() SchedulerMetrics {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return SchedulerMetrics{
		Submitted:        m.Submitted,
		Deduplicated:     m.Deduplicated,
		Succeeded:        m.Succeeded,
		Failed:           m.Failed,
		Cancelled:        m.Cancelled,
		TotalResolveTime: m.TotalResolveTime,
		UpdatedAt:        m.UpdatedAt,
	}
}

// LogSummary logs a summary of scheduler activity.
func (m *SchedulerMetrics) LogSummary() {
	snapshot := m.GetSnapshot()

	averageResolveTime := time.Duration(0)
	completed := snapshot.Succeeded + snapshot.Failed
	if completed > 0 {
		averageResolveTime = snapshot.TotalResolveTime / time.Duration(completed)
	}

	logrus.WithFields(logrus.Fields{
		"submitted":            snapshot.Submitted,
		"deduplicated":         snapshot.Deduplicated,
		"succeeded":            snapshot.Succeeded,
		"failed":               snapshot.Failed,
		"cancelled":            snapshot.Cancelled,
		"average_resolve_time": averageResolveTime,
	}).Info("Collection scheduler metrics summary")
}
