package services

import (
	"fmt"
	"testing"
	"time"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
)

func testCacheConfig(ttl time.Duration, maxSize int) *shared.CacheConfig {
	return &shared.CacheConfig{
		DefaultTTL:    ttl,
		MaxSize:       maxSize,
		SweepInterval: time.Hour,
	}
}

func testRecord(parcelID string) *models.PropertyRecord {
	return &models.PropertyRecord{
		ParcelID:      parcelID,
		OwnerName:     "SMITH JOHN",
		SitusAddress:  "123 MAIN ST",
		AssessedValue: 285000,
		Source:        models.RecordSourceAPI,
		FetchedAt:     time.Now(),
	}
}

func mustKey(t *testing.T, kind models.KeyKind, raw string) models.LookupKey {
	t.Helper()
	key, err := models.NewLookupKey(kind, raw)
	if err != nil {
		t.Fatalf("NewLookupKey(%s, %q) failed: %v", kind, raw, err)
	}
	return key
}

func TestCachePutGetRoundTrip(t *testing.T) {
	cache := NewResultCache(testCacheConfig(time.Minute, 100))
	key := mustKey(t, models.KeyKindParcel, "04217311")

	cache.Put(key, testRecord("04217311"))

	record, hit := cache.Get(key)
	if !hit {
		t.Fatal("Expected a cache hit")
	}
	if record.ParcelID != "04217311" {
		t.Errorf("Expected parcel 04217311, got %s", record.ParcelID)
	}
}

func TestCacheMissOnUnknownKey(t *testing.T) {
	cache := NewResultCache(testCacheConfig(time.Minute, 100))

	if _, hit := cache.Get(mustKey(t, models.KeyKindParcel, "99999999")); hit {
		t.Error("Unknown key should miss")
	}

	stats := cache.Stats()
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss recorded, got %d", stats.Misses)
	}
}

func TestCacheExpiredEntryCountsAsMiss(t *testing.T) {
	cache := NewResultCache(testCacheConfig(10*time.Millisecond, 100))
	key := mustKey(t, models.KeyKindParcel, "04217311")

	cache.Put(key, testRecord("04217311"))
	time.Sleep(30 * time.Millisecond)

	if _, hit := cache.Get(key); hit {
		t.Error("Expired entry should be served as a miss")
	}
}

func TestCacheSweepRemovesOnlyExpired(t *testing.T) {
	cache := NewResultCache(testCacheConfig(time.Minute, 100))

	expiredKey := mustKey(t, models.KeyKindParcel, "11111111")
	freshKey := mustKey(t, models.KeyKindParcel, "22222222")
	cache.PutWithTTL(expiredKey, testRecord("11111111"), 10*time.Millisecond)
	cache.Put(freshKey, testRecord("22222222"))

	time.Sleep(30 * time.Millisecond)

	removed := cache.SweepExpired()
	if removed != 1 {
		t.Errorf("Expected 1 removed entry, got %d", removed)
	}
	if cache.Size() != 1 {
		t.Errorf("Expected 1 remaining entry, got %d", cache.Size())
	}
	if _, hit := cache.Get(freshKey); !hit {
		t.Error("Fresh entry should survive the sweep")
	}
}

func TestCacheEvictsAtSizeBound(t *testing.T) {
	cache := NewResultCache(testCacheConfig(time.Minute, 3))

	// The first insert gets the shortest TTL so it is the eviction victim.
	victim := mustKey(t, models.KeyKindParcel, "00000000")
	cache.PutWithTTL(victim, testRecord("00000000"), time.Second)
	for i := 1; i < 3; i++ {
		key := mustKey(t, models.KeyKindParcel, fmt.Sprintf("%08d", i))
		cache.Put(key, testRecord(key.Normalized))
	}

	overflow := mustKey(t, models.KeyKindParcel, "44444444")
	cache.Put(overflow, testRecord("44444444"))

	if cache.Size() != 3 {
		t.Errorf("Size bound should hold at 3, got %d", cache.Size())
	}
	if _, hit := cache.Get(victim); hit {
		t.Error("Entry closest to expiry should have been evicted")
	}
	if _, hit := cache.Get(overflow); !hit {
		t.Error("Newest entry should be present after eviction")
	}

	stats := cache.Stats()
	if stats.Evictions != 1 {
		t.Errorf("Expected 1 eviction recorded, got %d", stats.Evictions)
	}
}

func TestCacheInvalidateAndClear(t *testing.T) {
	cache := NewResultCache(testCacheConfig(time.Minute, 100))
	keyA := mustKey(t, models.KeyKindParcel, "11111111")
	keyB := mustKey(t, models.KeyKindParcel, "22222222")

	cache.Put(keyA, testRecord("11111111"))
	cache.Put(keyB, testRecord("22222222"))

	cache.Invalidate(keyA)
	if _, hit := cache.Get(keyA); hit {
		t.Error("Invalidated key should miss")
	}
	if _, hit := cache.Get(keyB); !hit {
		t.Error("Other keys should be unaffected by Invalidate")
	}

	cache.Clear()
	if cache.Size() != 0 {
		t.Errorf("Clear should empty the cache, got size %d", cache.Size())
	}
}

func TestCacheHitMissAccounting(t *testing.T) {
	cache := NewResultCache(testCacheConfig(time.Minute, 100))
	key := mustKey(t, models.KeyKindParcel, "04217311")
	cache.Put(key, testRecord("04217311"))

	for i := 0; i < 3; i++ {
		cache.Get(key)
	}
	cache.Get(mustKey(t, models.KeyKindParcel, "99999999"))

	stats := cache.Stats()
	if stats.Hits != 3 {
		t.Errorf("Expected 3 hits, got %d", stats.Hits)
	}
	if stats.Misses != 1 {
		t.Errorf("Expected 1 miss, got %d", stats.Misses)
	}
	if rate := stats.GetHitRate(); rate != 75.0 {
		t.Errorf("Expected 75%% hit rate, got %.1f", rate)
	}
}

func TestCacheSweeperStops(t *testing.T) {
	cache := NewResultCache(&shared.CacheConfig{
		DefaultTTL:    10 * time.Millisecond,
		MaxSize:       100,
		SweepInterval: 20 * time.Millisecond,
	})
	cache.StartSweeper()

	key := mustKey(t, models.KeyKindParcel, "04217311")
	cache.Put(key, testRecord("04217311"))

	time.Sleep(60 * time.Millisecond)
	if cache.Size() != 0 {
		t.Errorf("Sweeper should have removed the expired entry, size %d", cache.Size())
	}

	cache.Stop()
	cache.Stop() // idempotent
}
