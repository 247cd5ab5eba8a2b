package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/sirupsen/logrus"
)

// APISourceClient fetches records from the county records API. The API is
// authoritative but rate-limited and occasionally down, which is why it sits
// first in the fallback chain rather than alone.
type APISourceClient struct {
	baseURL     string
	apiKey      string
	httpClient  *http.Client
	rateLimiter *shared.APIRateLimiter
	retryPolicy *shared.RetryPolicy
}

// NewAPISourceClient creates the API adapter from source configuration.
func NewAPISourceClient(config *shared.SourceConfig, apiKey string, clientFactory *shared.HTTPClientFactory) *APISourceClient {
	return &APISourceClient{
		baseURL:     config.BaseURL,
		apiKey:      apiKey,
		httpClient:  clientFactory.Client(config.HTTPRequestTimeout),
		rateLimiter: shared.NewAPIRateLimiter(config.RateLimitCapacity, config.RateLimitRefill),
		retryPolicy: shared.NewRetryPolicy(config.MaxRetryAttempts),
	}
}

// RateLimiter exposes the client's limiter for observability.
func (c *APISourceClient) RateLimiter() *shared.APIRateLimiter {
	return c.rateLimiter
}

// Fetch implements Fetcher against the JSON records endpoint.
func (c *APISourceClient) Fetch(ctx context.Context, key models.LookupKey) (*models.PropertyRecord, error) {
	return fetchWithRetry(ctx, "api", c.rateLimiter, c.retryPolicy, key, func(ctx context.Context) (*models.PropertyRecord, error) {
		return c.fetchOnce(ctx, key)
	})
}

// apiRecordResponse is the wire shape of the records endpoint.
type apiRecordResponse struct {
	ParcelID         string  `json:"parcel_id"`
	OwnerName        string  `json:"owner_name"`
	OwnerAddress     string  `json:"owner_address"`
	SitusAddress     string  `json:"situs_address"`
	Subdivision      string  `json:"subdivision"`
	AssessedValue    float64 `json:"assessed_value"`
	LandValue        float64 `json:"land_value"`
	ImprovementValue float64 `json:"improvement_value"`
	YearBuilt        int     `json:"year_built"`
	LivingArea       int     `json:"living_area"`
	TaxHistory       []struct {
		TaxYear      int     `json:"tax_year"`
		AmountBilled float64 `json:"amount_billed"`
		AmountPaid   float64 `json:"amount_paid"`
		Status       string  `json:"status"`
	} `json:"tax_history"`
}

func (c *APISourceClient) fetchOnce(ctx context.Context, key models.LookupKey) (*models.PropertyRecord, error) {
	requestURL := fmt.Sprintf("%s/v1/records?%s=%s",
		c.baseURL, string(key.Kind), url.QueryEscape(key.Normalized))

	request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorClassUnreachable, "api", "fetch")
	}
	request.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorClassUnreachable, "api", "fetch")
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode == http.StatusOK:
		// fall through to decode
	case response.StatusCode == http.StatusNotFound:
		return nil, shared.NewFetchError(shared.ErrorClassNotFound, "api", "fetch",
			"record not found for key "+key.String(), nil)
	case response.StatusCode == http.StatusTooManyRequests:
		return nil, shared.NewFetchError(shared.ErrorClassRateLimited, "api", "fetch",
			"records API rate limit exceeded", nil)
	case response.StatusCode >= 500:
		return nil, shared.NewFetchError(shared.ErrorClassUnreachable, "api", "fetch",
			fmt.Sprintf("records API returned HTTP %d", response.StatusCode), nil)
	default:
		return nil, shared.NewFetchError(shared.ErrorClassParse, "api", "fetch",
			fmt.Sprintf("unexpected records API status HTTP %d", response.StatusCode), nil)
	}

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorClassUnreachable, "api", "fetch")
	}

	var payload apiRecordResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, shared.WrapError(err, shared.ErrorClassParse, "api", "fetch")
	}
	if payload.ParcelID == "" {
		return nil, shared.NewFetchError(shared.ErrorClassParse, "api", "fetch",
			"records API response missing parcel id", nil)
	}

	record := &models.PropertyRecord{
		ParcelID:         payload.ParcelID,
		OwnerName:        payload.OwnerName,
		OwnerAddress:     payload.OwnerAddress,
		SitusAddress:     payload.SitusAddress,
		Subdivision:      payload.Subdivision,
		AssessedValue:    payload.AssessedValue,
		LandValue:        payload.LandValue,
		ImprovementValue: payload.ImprovementValue,
		YearBuilt:        payload.YearBuilt,
		LivingArea:       payload.LivingArea,
		Source:           models.RecordSourceAPI,
		FetchedAt:        time.Now(),
	}
	for _, entry := range payload.TaxHistory {
		record.TaxHistory = append(record.TaxHistory, models.TaxHistoryEntry{
			TaxYear:      entry.TaxYear,
			AmountBilled: entry.AmountBilled,
			AmountPaid:   entry.AmountPaid,
			Status:       entry.Status,
		})
	}

	logrus.WithFields(logrus.Fields{
		"component": "APISourceClient",
		"key":       key.String(),
		"parcel_id": record.ParcelID,
	}).Debug("Fetched record from records API")

	return record, nil
}
