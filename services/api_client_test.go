package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
)

const sampleAPIResponse = `{
	"parcel_id": "04217311",
	"owner_name": "SMITH JOHN Q",
	"situs_address": "123 MAIN ST",
	"assessed_value": 285400,
	"land_value": 60000,
	"improvement_value": 225400,
	"year_built": 1987,
	"living_area": 2150,
	"tax_history": [
		{"tax_year": 2024, "amount_billed": 6120.50, "amount_paid": 6120.50, "status": "PAID"}
	]
}`

func newTestAPIClient(baseURL string, maxAttempts int) *APISourceClient {
	return &APISourceClient{
		baseURL:     baseURL,
		apiKey:      "test-key",
		httpClient:  &http.Client{Timeout: 5 * time.Second},
		rateLimiter: shared.NewAPIRateLimiter(100, 100),
		retryPolicy: &shared.RetryPolicy{
			MaxAttempts:    maxAttempts,
			BaseDelay:      time.Millisecond,
			MaxDelay:       10 * time.Millisecond,
			MaxElapsedTime: time.Second,
		},
	}
}

func TestAPIClientFetchesRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/records" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("parcel") != "04217311" {
			t.Errorf("Expected parcel query param, got %s", r.URL.RawQuery)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Missing bearer auth, got %q", r.Header.Get("Authorization"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(sampleAPIResponse))
	}))
	defer server.Close()

	client := newTestAPIClient(server.URL, 1)
	record, err := client.Fetch(context.Background(), mustKey(t, models.KeyKindParcel, "04217311"))
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}

	if record.ParcelID != "04217311" {
		t.Errorf("Expected parcel 04217311, got %s", record.ParcelID)
	}
	if record.Source != models.RecordSourceAPI {
		t.Errorf("Record should be tagged API, got %s", record.Source)
	}
	if len(record.TaxHistory) != 1 || record.TaxHistory[0].Status != "PAID" {
		t.Errorf("Tax history not mapped: %+v", record.TaxHistory)
	}
	if record.FetchedAt.IsZero() {
		t.Error("FetchedAt should be stamped")
	}
}

func TestAPIClientClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		status   int
		expected shared.ErrorClass
	}{
		{http.StatusNotFound, shared.ErrorClassNotFound},
		{http.StatusTooManyRequests, shared.ErrorClassRateLimited},
		{http.StatusBadGateway, shared.ErrorClassUnreachable},
		{http.StatusForbidden, shared.ErrorClassParse},
	}

	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		client := newTestAPIClient(server.URL, 1)
		_, err := client.Fetch(context.Background(), mustKey(t, models.KeyKindParcel, "04217311"))
		if !shared.IsClass(err, tc.expected) {
			t.Errorf("HTTP %d should classify as %s, got %v", tc.status, tc.expected, err)
		}
		server.Close()
	}
}

func TestAPIClientMalformedBodyIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>surprise maintenance page</html>"))
	}))
	defer server.Close()

	client := newTestAPIClient(server.URL, 1)
	_, err := client.Fetch(context.Background(), mustKey(t, models.KeyKindParcel, "04217311"))
	if !shared.IsClass(err, shared.ErrorClassParse) {
		t.Fatalf("Malformed body should classify as parse_error, got %v", err)
	}
}

func TestAPIClientMissingParcelIDIsParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"owner_name": "SMITH JOHN"}`))
	}))
	defer server.Close()

	client := newTestAPIClient(server.URL, 1)
	_, err := client.Fetch(context.Background(), mustKey(t, models.KeyKindParcel, "04217311"))
	if !shared.IsClass(err, shared.ErrorClassParse) {
		t.Fatalf("Response without parcel_id should classify as parse_error, got %v", err)
	}
}

func TestAPIClientRetriesTransientFailures(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&requests, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(sampleAPIResponse))
	}))
	defer server.Close()

	client := newTestAPIClient(server.URL, 3)
	record, err := client.Fetch(context.Background(), mustKey(t, models.KeyKindParcel, "04217311"))
	if err != nil {
		t.Fatalf("Fetch should recover on the third attempt: %v", err)
	}
	if record.ParcelID != "04217311" {
		t.Errorf("Expected record after retries, got %s", record.ParcelID)
	}
	if atomic.LoadInt32(&requests) != 3 {
		t.Errorf("Expected 3 requests, got %d", requests)
	}
}

func TestAPIClientDoesNotRetryNotFound(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := newTestAPIClient(server.URL, 5)
	_, err := client.Fetch(context.Background(), mustKey(t, models.KeyKindParcel, "04217311"))
	if !shared.IsClass(err, shared.ErrorClassNotFound) {
		t.Fatalf("Expected not_found, got %v", err)
	}
	if atomic.LoadInt32(&requests) != 1 {
		t.Errorf("not_found must not be retried, got %d requests", requests)
	}
}

func TestAPIClientHonorsCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(sampleAPIResponse))
	}))
	defer server.Close()

	client := newTestAPIClient(server.URL, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, mustKey(t, models.KeyKindParcel, "04217311"))
	if !shared.IsClass(err, shared.ErrorClassCancelled) {
		t.Fatalf("Expected cancelled, got %v", err)
	}
}
