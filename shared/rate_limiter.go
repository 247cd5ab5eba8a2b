package shared

import (
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// APIRateLimiter tracks the allowed call rate to a remote source using a token
// bucket: capacity tokens, refilled at refillPerSecond. The limiter itself
// never blocks; callers get an immediate yes/no from TryAcquire and decide
// whether to wait WaitTime or fail fast.
type APIRateLimiter struct {
	limiter      *rate.Limiter
	capacity     int
	acquireCount int64
	deniedCount  int64
}

// NewAPIRateLimiter creates a limiter with the given bucket capacity and
// refill rate in tokens per second.
func NewAPIRateLimiter(capacity int, refillPerSecond float64) *APIRateLimiter {
	if capacity <= 0 {
		capacity = 1
	}
	if refillPerSecond <= 0 {
		refillPerSecond = 1
	}
	return &APIRateLimiter{
		limiter:  rate.NewLimiter(rate.Limit(refillPerSecond), capacity),
		capacity: capacity,
	}
}

// TryAcquire consumes one token if available. Safe for concurrent callers;
// the underlying bucket never loses or double-spends tokens.
func (l *APIRateLimiter) TryAcquire() bool {
	if l.limiter.Allow() {
		atomic.AddInt64(&l.acquireCount, 1)
		return true
	}
	atomic.AddInt64(&l.deniedCount, 1)

	logrus.WithFields(logrus.Fields{
		"component": "APIRateLimiter",
		"capacity":  l.capacity,
		"denied":    atomic.LoadInt64(&l.deniedCount),
	}).Debug("Rate limit token denied")

	return false
}

// WaitTime returns the duration until the next token becomes available. The
// reservation is cancelled immediately so the probe does not spend a token.
func (l *APIRateLimiter) WaitTime() time.Duration {
	reservation := l.limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	if delay < 0 {
		return 0
	}
	return delay
}

// Capacity returns the configured bucket capacity.
func (l *APIRateLimiter) Capacity() int {
	return l.capacity
}

// AcquireCount returns the total number of granted tokens.
func (l *APIRateLimiter) AcquireCount() int64 {
	return atomic.LoadInt64(&l.acquireCount)
}

// DeniedCount returns the total number of denied acquisitions.
func (l *APIRateLimiter) DeniedCount() int64 {
	return atomic.LoadInt64(&l.deniedCount)
}
