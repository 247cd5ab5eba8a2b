package services

import (
	"context"
	"time"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/sirupsen/logrus"
)

// Fetcher is the single capability both data-source adapters expose. Fetch
// blocks the calling worker until success, a non-retryable failure, or retry
// budget exhaustion, and returns a classified error on failure. Adapters do
// not touch the cache or database; the resolver owns those writes.
type Fetcher interface {
	Fetch(ctx context.Context, key models.LookupKey) (*models.PropertyRecord, error)
}

// fetchWithRetry composes the rate limiter and retry policy around a single
// external call. The limiter itself never blocks; when no token is available
// the worker sleeps out the computed wait unless the context ends first.
func fetchWithRetry(
	ctx context.Context,
	source string,
	limiter *shared.APIRateLimiter,
	policy *shared.RetryPolicy,
	key models.LookupKey,
	call func(ctx context.Context) (*models.PropertyRecord, error),
) (*models.PropertyRecord, error) {
	startTime := time.Now()

	for attempt := 1; ; attempt++ {
		if err := waitForToken(ctx, source, limiter); err != nil {
			return nil, err
		}

		record, err := call(ctx)
		if err == nil {
			return record, nil
		}

		if ctx.Err() != nil {
			return nil, shared.WrapError(ctx.Err(), shared.ErrorClassCancelled, source, "fetch")
		}

		decision := policy.Decide(attempt, err, time.Since(startTime))
		if !decision.Retry {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"component":   source,
			"key":         key.String(),
			"attempt":     attempt,
			"retry_delay": decision.Delay,
			"error_class": shared.ClassOf(err),
		}).Debug("Retrying fetch after backoff")

		select {
		case <-time.After(decision.Delay):
		case <-ctx.Done():
			return nil, shared.WrapError(ctx.Err(), shared.ErrorClassCancelled, source, "fetch")
		}
	}
}

// waitForToken fails fast when a token is available, otherwise sleeps out the
// limiter's computed wait.
func waitForToken(ctx context.Context, source string, limiter *shared.APIRateLimiter) error {
	for {
		if limiter.TryAcquire() {
			return nil
		}

		waitTime := limiter.WaitTime()
		logrus.WithFields(logrus.Fields{
			"component": source,
			"wait_time": waitTime,
		}).Debug("Rate limit reached, waiting for next token")

		select {
		case <-time.After(waitTime):
		case <-ctx.Done():
			return shared.WrapError(ctx.Err(), shared.ErrorClassCancelled, source, "rate_limit_wait")
		}
	}
}
