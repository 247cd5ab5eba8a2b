package shared

import (
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// RetryDecision tells a client what to do after a failed attempt.
type RetryDecision struct {
	Retry bool
	Delay time.Duration
}

// RetryPolicy computes backoff decisions for transient failures. Backoff is
// exponential with jitter, capped by both a maximum attempt count and a
// maximum total elapsed time. Only transient error classes are retryable;
// validation and not-found errors short-circuit to give up immediately.
type RetryPolicy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	MaxElapsedTime time.Duration
}

// NewDefaultRetryPolicy returns production-ready retry defaults.
func NewDefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       30 * time.Second,
		MaxElapsedTime: 2 * time.Minute,
	}
}

// NewRetryPolicy returns a policy with the given attempt budget and the
// default delay shape.
func NewRetryPolicy(maxAttempts int) *RetryPolicy {
	p := NewDefaultRetryPolicy()
	if maxAttempts > 0 {
		p.MaxAttempts = maxAttempts
	}
	return p
}

// Decide returns the decision for the given attempt number (1-based), the
// error that failed it, and the time elapsed since the first attempt.
func (p *RetryPolicy) Decide(attempt int, err error, elapsed time.Duration) RetryDecision {
	if err == nil {
		return RetryDecision{Retry: false}
	}

	if !IsRetryableError(err) {
		logrus.WithFields(logrus.Fields{
			"component":   "RetryPolicy",
			"attempt":     attempt,
			"error_class": ClassOf(err),
		}).Debug("Error class is not retryable, giving up")
		return RetryDecision{Retry: false}
	}

	if attempt >= p.MaxAttempts {
		logrus.WithFields(logrus.Fields{
			"component":    "RetryPolicy",
			"attempt":      attempt,
			"max_attempts": p.MaxAttempts,
		}).Debug("Retry attempt budget exhausted")
		return RetryDecision{Retry: false}
	}

	delay := p.backoffDelay(attempt)
	if p.MaxElapsedTime > 0 && elapsed+delay > p.MaxElapsedTime {
		logrus.WithFields(logrus.Fields{
			"component":   "RetryPolicy",
			"elapsed":     elapsed,
			"max_elapsed": p.MaxElapsedTime,
		}).Debug("Retry elapsed-time budget exhausted")
		return RetryDecision{Retry: false}
	}

	return RetryDecision{Retry: true, Delay: delay}
}

// backoffDelay doubles the base delay per attempt and adds up to 10% jitter
// to prevent thundering herd against a recovering source.
func (p *RetryPolicy) backoffDelay(attempt int) time.Duration {
	backoff := p.BaseDelay << uint(attempt-1)
	if backoff > p.MaxDelay || backoff <= 0 {
		backoff = p.MaxDelay
	}
	jitter := time.Duration(rand.Int63n(int64(backoff)/10 + 1))
	return backoff + jitter
}
