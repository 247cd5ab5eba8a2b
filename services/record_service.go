package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/fenilmodi00/parcel-backend/database"
	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/sirupsen/logrus"
)

// RecordStore is the durable persistence contract the resolver depends on.
type RecordStore interface {
	SaveRecord(ctx context.Context, key models.LookupKey, record *models.PropertyRecord) error
	GetRecord(ctx context.Context, key models.LookupKey) (*models.PropertyRecord, bool, error)
}

// RecordService persists consolidated records to the property_records table,
// going through the bounded connection pool for every operation. It doubles
// as the last-resort fallback source: a stale copy is better than no answer
// for a read-mostly workload.
type RecordService struct {
	pool           *database.ConnectionPool
	stalenessLimit time.Duration
}

// NewRecordService creates a record service over the given pool.
func NewRecordService(pool *database.ConnectionPool, stalenessLimit time.Duration) *RecordService {
	return &RecordService{
		pool:           pool,
		stalenessLimit: stalenessLimit,
	}
}

// SaveRecord upserts the durable copy of a record for a lookup key.
func (rs *RecordService) SaveRecord(ctx context.Context, key models.LookupKey, record *models.PropertyRecord) error {
	recordJSON, err := json.Marshal(record)
	if err != nil {
		return shared.WrapError(err, shared.ErrorClassParse, "db", "save_record")
	}

	pc, err := rs.pool.Acquire(ctx)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO property_records (key_kind, key_value, parcel_id, record, fetched_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (key_kind, key_value) DO UPDATE SET
			parcel_id = EXCLUDED.parcel_id,
			record = EXCLUDED.record,
			fetched_at = EXCLUDED.fetched_at,
			updated_at = NOW()
	`

	_, execErr := pc.Conn().ExecContext(ctx, query,
		string(key.Kind), key.Normalized, record.ParcelID, recordJSON, record.FetchedAt,
	)
	rs.pool.Release(pc, execErr == nil)

	if execErr != nil {
		return shared.WrapError(execErr, shared.ErrorClassUnreachable, "db", "save_record")
	}

	logrus.WithFields(logrus.Fields{
		"component": "RecordService",
		"key":       key.String(),
		"parcel_id": record.ParcelID,
	}).Debug("Persisted property record")

	return nil
}

// GetRecord loads the durable copy for a lookup key. The returned flag marks
// the record stale when its fetch time exceeds the staleness limit; a missing
// row is reported as a typed not-found error.
func (rs *RecordService) GetRecord(ctx context.Context, key models.LookupKey) (*models.PropertyRecord, bool, error) {
	pc, err := rs.pool.Acquire(ctx)
	if err != nil {
		return nil, false, err
	}

	query := `
		SELECT record, fetched_at
		FROM property_records
		WHERE key_kind = $1 AND key_value = $2
	`

	var recordJSON []byte
	var fetchedAt time.Time
	scanErr := pc.Conn().QueryRowContext(ctx, query, string(key.Kind), key.Normalized).Scan(&recordJSON, &fetchedAt)

	if scanErr == sql.ErrNoRows {
		rs.pool.Release(pc, true)
		return nil, false, shared.NewFetchError(shared.ErrorClassNotFound, "db", "get_record",
			"no durable copy for key "+key.String(), nil)
	}
	if scanErr != nil {
		rs.pool.Release(pc, false)
		return nil, false, shared.WrapError(scanErr, shared.ErrorClassUnreachable, "db", "get_record")
	}
	rs.pool.Release(pc, true)

	var record models.PropertyRecord
	if err := json.Unmarshal(recordJSON, &record); err != nil {
		return nil, false, shared.WrapError(err, shared.ErrorClassParse, "db", "get_record")
	}

	stale := rs.stalenessLimit > 0 && time.Since(fetchedAt) > rs.stalenessLimit
	return &record, stale, nil
}

// StaleKey pairs a lookup key with the age of its durable copy, for the
// refresh job.
type StaleKey struct {
	Key       models.LookupKey
	FetchedAt time.Time
}

// ListStaleKeys returns keys whose durable copies are older than the given
// cutoff, oldest first.
func (rs *RecordService) ListStaleKeys(ctx context.Context, olderThan time.Time, limit int) ([]StaleKey, error) {
	pc, err := rs.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT key_kind, key_value, fetched_at
		FROM property_records
		WHERE fetched_at < $1
		ORDER BY fetched_at ASC
		LIMIT $2
	`

	rows, queryErr := pc.Conn().QueryContext(ctx, query, olderThan, limit)
	if queryErr != nil {
		rs.pool.Release(pc, false)
		return nil, shared.WrapError(queryErr, shared.ErrorClassUnreachable, "db", "list_stale_keys")
	}

	var staleKeys []StaleKey
	for rows.Next() {
		var kind, value string
		var fetchedAt time.Time
		if err := rows.Scan(&kind, &value, &fetchedAt); err != nil {
			rows.Close()
			rs.pool.Release(pc, false)
			return nil, shared.WrapError(err, shared.ErrorClassUnreachable, "db", "list_stale_keys")
		}
		staleKeys = append(staleKeys, StaleKey{
			Key:       models.LookupKey{Kind: models.KeyKind(kind), Normalized: value},
			FetchedAt: fetchedAt,
		})
	}
	iterErr := rows.Err()
	// The result set must be closed before the connection goes back to the
	// pool; another goroutine may acquire the same conn immediately.
	rows.Close()
	rs.pool.Release(pc, iterErr == nil)

	if iterErr != nil {
		return nil, shared.WrapError(iterErr, shared.ErrorClassUnreachable, "db", "list_stale_keys")
	}
	return staleKeys, nil
}
