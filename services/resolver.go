package services

import (
	"context"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/sirupsen/logrus"
)

// Resolution is the outcome of a successful resolve: the record, which layer
// produced it, and whether it was served stale from the durable store.
type Resolution struct {
	Record *models.PropertyRecord
	Source models.RecordSource
	Stale  bool
}

// Resolver is the contract the scheduler dispatches jobs against.
type Resolver interface {
	Resolve(ctx context.Context, key models.LookupKey) (*Resolution, error)
}

// FallbackResolver orchestrates the ordered fallback chain: fresh cache hit,
// then the records API, then the assessor scrape, then the last-known durable
// copy. The API is authoritative but rate-limited and occasionally down,
// scraping is slower but more available, and a stale durable copy is better
// than no answer for a read-mostly workload.
//
// Cancellation is cooperative: the chain checks the context between stages
// and aborts at the next checkpoint. An external call already in flight is
// allowed to complete; its result is discarded.
type FallbackResolver struct {
	cache        *ResultCache
	apiClient    Fetcher
	scrapeClient Fetcher
	store        RecordStore
}

// NewFallbackResolver wires the resolver over its collaborators.
func NewFallbackResolver(cache *ResultCache, apiClient, scrapeClient Fetcher, store RecordStore) *FallbackResolver {
	return &FallbackResolver{
		cache:        cache,
		apiClient:    apiClient,
		scrapeClient: scrapeClient,
		store:        store,
	}
}

// Resolve runs the fallback chain for one lookup key.
func (r *FallbackResolver) Resolve(ctx context.Context, key models.LookupKey) (*Resolution, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "FallbackResolver",
		"key":       key.String(),
	})

	// Stage 1: fresh cache hit short-circuits everything.
	if record, hit := r.cache.Get(key); hit {
		logger.Debug("Resolved from result cache")
		return &Resolution{Record: record.WithSource(models.RecordSourceCache), Source: models.RecordSourceCache}, nil
	}

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// Stage 2: authoritative records API.
	record, apiErr := r.apiClient.Fetch(ctx, key)
	if apiErr == nil {
		r.writeThrough(ctx, key, record)
		return &Resolution{Record: record, Source: models.RecordSourceAPI}, nil
	}
	if shared.IsClass(apiErr, shared.ErrorClassNotFound) {
		// Authoritative negative: the record genuinely does not exist, so
		// falling through to the scraper would only produce a slower no.
		logger.Debug("Records API reported not found, skipping fallback")
		return nil, apiErr
	}
	if shared.IsClass(apiErr, shared.ErrorClassCancelled) {
		return nil, apiErr
	}

	logger.WithField("error_class", shared.ClassOf(apiErr)).Info("Records API failed, falling back to scrape")

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// Stage 3: assessor portal scrape.
	record, scrapeErr := r.scrapeClient.Fetch(ctx, key)
	if scrapeErr == nil {
		r.writeThrough(ctx, key, record)
		return &Resolution{Record: record, Source: models.RecordSourceScrape}, nil
	}
	if shared.IsClass(scrapeErr, shared.ErrorClassCancelled) {
		return nil, scrapeErr
	}

	logger.WithField("error_class", shared.ClassOf(scrapeErr)).Info("Scrape failed, falling back to durable store")

	if err := checkpoint(ctx); err != nil {
		return nil, err
	}

	// Stage 4: last-known durable copy, served even if stale.
	record, stale, dbErr := r.store.GetRecord(ctx, key)
	if dbErr == nil {
		logger.WithField("stale", stale).Info("Resolved from durable store after live sources failed")
		return &Resolution{Record: record.WithSource(models.RecordSourceDB), Source: models.RecordSourceDB, Stale: stale}, nil
	}

	// No durable copy either: surface the terminal error from the last
	// attempted live source, not the bare db miss.
	if shared.IsClass(dbErr, shared.ErrorClassNotFound) {
		return nil, scrapeErr
	}
	return nil, dbErr
}

// writeThrough persists a freshly fetched record to cache and database.
// Persistence failures are logged but do not fail the resolve; the caller
// still gets the record it asked for.
func (r *FallbackResolver) writeThrough(ctx context.Context, key models.LookupKey, record *models.PropertyRecord) {
	r.cache.Put(key, record)

	if err := r.store.SaveRecord(ctx, key, record); err != nil {
		logrus.WithError(err).WithFields(logrus.Fields{
			"component": "FallbackResolver",
			"key":       key.String(),
		}).Warn("Failed to persist record to durable store")
	}
}

// checkpoint is a cooperative cancellation point between fallback stages.
func checkpoint(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return shared.WrapError(err, shared.ErrorClassCancelled, "resolver", "checkpoint")
	}
	return nil
}
