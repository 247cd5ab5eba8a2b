package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/parcel-backend/models"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// ScrapeClient fetches records by scraping the assessor's public property
// search portal. Slower than the records API but more available, which is why
// it sits second in the fallback chain.
type ScrapeClient struct {
	baseURL     string
	timeout     time.Duration
	rateLimiter *shared.APIRateLimiter
	retryPolicy *shared.RetryPolicy
	extractor   *ParcelPageExtractor
	rendered    *RenderedPageScraper
}

// NewScrapeClient creates the scraping adapter. When the configuration
// enables rendered pages, a chromedp fallback handles search results that
// only materialize after client-side scripts run.
func NewScrapeClient(config *shared.SourceConfig) *ScrapeClient {
	client := &ScrapeClient{
		baseURL:     config.BaseURL,
		timeout:     config.HTTPRequestTimeout,
		rateLimiter: shared.NewAPIRateLimiter(config.RateLimitCapacity, config.RateLimitRefill),
		retryPolicy: shared.NewRetryPolicy(config.MaxRetryAttempts),
		extractor:   NewParcelPageExtractor(),
	}
	if config.EnableRenderedPage {
		client.rendered = NewRenderedPageScraper(config.HTTPRequestTimeout)
	}
	return client
}

// RateLimiter exposes the client's limiter for observability.
func (c *ScrapeClient) RateLimiter() *shared.APIRateLimiter {
	return c.rateLimiter
}

// Fetch implements Fetcher against the assessor search portal.
func (c *ScrapeClient) Fetch(ctx context.Context, key models.LookupKey) (*models.PropertyRecord, error) {
	return fetchWithRetry(ctx, "scrape", c.rateLimiter, c.retryPolicy, key, func(ctx context.Context) (*models.PropertyRecord, error) {
		return c.fetchOnce(ctx, key)
	})
}

func (c *ScrapeClient) fetchOnce(ctx context.Context, key models.LookupKey) (*models.PropertyRecord, error) {
	searchURL := c.searchURL(key)

	pageHTML, err := c.fetchSearchPage(ctx, searchURL)
	if err != nil {
		return nil, err
	}

	record, extractErr := c.extractor.ExtractRecord(pageHTML)
	if extractErr != nil && c.rendered != nil {
		// Static fetch came back without usable data; the portal may render
		// the results table client-side.
		logrus.WithFields(logrus.Fields{
			"component": "ScrapeClient",
			"key":       key.String(),
		}).Debug("Static page extraction failed, retrying with rendered page")

		renderedHTML, renderErr := c.rendered.FetchRenderedHTML(ctx, searchURL)
		if renderErr != nil {
			return nil, renderErr
		}
		record, extractErr = c.extractor.ExtractRecord(renderedHTML)
	}
	if extractErr != nil {
		return nil, extractErr
	}

	record.Source = models.RecordSourceScrape
	record.FetchedAt = time.Now()

	logrus.WithFields(logrus.Fields{
		"component": "ScrapeClient",
		"key":       key.String(),
		"parcel_id": record.ParcelID,
	}).Debug("Scraped record from assessor portal")

	return record, nil
}

// searchURL builds the portal query for the key kind.
func (c *ScrapeClient) searchURL(key models.LookupKey) string {
	params := url.Values{}
	switch key.Kind {
	case models.KeyKindParcel:
		params.Set("account", key.Normalized)
	case models.KeyKindAddress:
		params.Set("situs", key.Normalized)
	case models.KeyKindOwner:
		params.Set("owner", key.Normalized)
	}
	return fmt.Sprintf("%s/property-search/results?%s", c.baseURL, params.Encode())
}

// fetchSearchPage retrieves the raw search results page through colly,
// classifying transport failures for the retry policy.
func (c *ScrapeClient) fetchSearchPage(ctx context.Context, searchURL string) (string, error) {
	collector := colly.NewCollector()
	collector.SetRequestTimeout(c.timeout)

	collector.OnRequest(func(r *colly.Request) {
		r.Headers.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
		r.Headers.Set("Accept-Language", "en-US,en;q=0.9")
	})

	var pageHTML string
	var statusCode int
	var visitErr error

	collector.OnResponse(func(r *colly.Response) {
		statusCode = r.StatusCode
		pageHTML = string(r.Body)
	})
	collector.OnError(func(r *colly.Response, err error) {
		if r != nil {
			statusCode = r.StatusCode
		}
		visitErr = err
	})

	if err := collector.Visit(searchURL); err != nil && visitErr == nil {
		visitErr = err
	}
	collector.Wait()

	if ctx.Err() != nil {
		return "", shared.WrapError(ctx.Err(), shared.ErrorClassCancelled, "scrape", "fetch")
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return "", shared.NewFetchError(shared.ErrorClassRateLimited, "scrape", "fetch",
			"assessor portal rate limit exceeded", visitErr)
	case statusCode >= 500:
		return "", shared.NewFetchError(shared.ErrorClassUnreachable, "scrape", "fetch",
			fmt.Sprintf("assessor portal returned HTTP %d", statusCode), visitErr)
	case visitErr != nil:
		return "", shared.WrapError(visitErr, shared.ErrorClassUnreachable, "scrape", "fetch")
	case pageHTML == "":
		return "", shared.NewFetchError(shared.ErrorClassUnreachable, "scrape", "fetch",
			"assessor portal returned an empty page", nil)
	}

	return pageHTML, nil
}

// ParcelPageExtractor extracts and normalizes property data from assessor
// result pages. The portal's markup shifts between county template updates,
// so every field is tried against multiple fallback selectors.
type ParcelPageExtractor struct{}

// NewParcelPageExtractor creates a new extraction service.
func NewParcelPageExtractor() *ParcelPageExtractor {
	return &ParcelPageExtractor{}
}

var noResultMarkers = []string{
	"no records found",
	"no results found",
	"no accounts matched",
	"0 results",
}

// ExtractRecord parses a search results page into a PropertyRecord. An
// explicit empty-results page classifies as not found; a page where the
// expected fields cannot be located classifies as a parse error.
func (e *ParcelPageExtractor) ExtractRecord(pageHTML string) (*models.PropertyRecord, error) {
	document, err := goquery.NewDocumentFromReader(strings.NewReader(pageHTML))
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorClassParse, "scrape", "extract")
	}

	lowered := strings.ToLower(pageHTML)
	for _, marker := range noResultMarkers {
		if strings.Contains(lowered, marker) {
			return nil, shared.NewFetchError(shared.ErrorClassNotFound, "scrape", "extract",
				"assessor portal reported no matching records", nil)
		}
	}

	parcelID := e.extractTextUsingSelectors(document,
		"td:contains('Account Number') + td",
		"td:contains('Account #') + td",
		"td:contains('Parcel Number') + td",
		"td:contains('Parcel ID') + td",
		".account-number",
		"[data-account]",
	)
	parcelID = normalizeParcelText(parcelID)
	if parcelID == "" {
		return nil, shared.NewFetchError(shared.ErrorClassParse, "scrape", "extract",
			"could not locate account number on results page", nil)
	}

	record := &models.PropertyRecord{
		ParcelID: parcelID,
		OwnerName: e.normalizeTextContent(e.extractTextUsingSelectors(document,
			"td:contains('Owner Name') + td",
			"td:contains('Owner') + td",
			".owner-name",
			"[data-owner]",
		)),
		OwnerAddress: e.normalizeTextContent(e.extractTextUsingSelectors(document,
			"td:contains('Owner Address') + td",
			"td:contains('Mailing Address') + td",
			".owner-address",
		)),
		SitusAddress: e.normalizeTextContent(e.extractTextUsingSelectors(document,
			"td:contains('Situs Address') + td",
			"td:contains('Property Address') + td",
			"td:contains('Site Address') + td",
			".situs-address",
		)),
		Subdivision: e.normalizeTextContent(e.extractTextUsingSelectors(document,
			"td:contains('Subdivision') + td",
			".subdivision",
		)),
	}

	record.AssessedValue = e.extractCurrencyUsingSelectors(document,
		"td:contains('Total Value') + td",
		"td:contains('Assessed Value') + td",
		"td:contains('Appraised Value') + td",
		".total-value",
	)
	record.LandValue = e.extractCurrencyUsingSelectors(document,
		"td:contains('Land Value') + td",
		".land-value",
	)
	record.ImprovementValue = e.extractCurrencyUsingSelectors(document,
		"td:contains('Improvement Value') + td",
		"td:contains('Improvements') + td",
		".improvement-value",
	)

	if yearText := e.extractTextUsingSelectors(document,
		"td:contains('Year Built') + td",
		".year-built",
	); yearText != "" {
		if year, err := strconv.Atoi(strings.TrimSpace(yearText)); err == nil {
			record.YearBuilt = year
		}
	}
	if areaText := e.extractTextUsingSelectors(document,
		"td:contains('Living Area') + td",
		"td:contains('Sq Ft') + td",
		".living-area",
	); areaText != "" {
		if area, err := strconv.Atoi(digitsOnly(areaText)); err == nil {
			record.LivingArea = area
		}
	}

	record.TaxHistory = e.extractTaxHistory(document)

	return record, nil
}

// extractTaxHistory walks the tax history table, tolerating missing columns.
func (e *ParcelPageExtractor) extractTaxHistory(document *goquery.Document) []models.TaxHistoryEntry {
	var history []models.TaxHistoryEntry

	document.Find("table.tax-history tbody tr, table#taxHistory tbody tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}

		year, err := strconv.Atoi(strings.TrimSpace(cells.Eq(0).Text()))
		if err != nil {
			return
		}

		entry := models.TaxHistoryEntry{
			TaxYear:      year,
			AmountBilled: parseCurrency(cells.Eq(1).Text()),
		}
		if cells.Length() > 2 {
			entry.AmountPaid = parseCurrency(cells.Eq(2).Text())
		}
		if cells.Length() > 3 {
			entry.Status = strings.ToUpper(strings.TrimSpace(cells.Eq(3).Text()))
		}
		history = append(history, entry)
	})

	return history
}

// extractTextUsingSelectors tries each selector in order and returns the
// first non-empty match.
func (e *ParcelPageExtractor) extractTextUsingSelectors(document *goquery.Document, selectors ...string) string {
	for _, selector := range selectors {
		if text := strings.TrimSpace(document.Find(selector).First().Text()); text != "" {
			return text
		}
	}
	return ""
}

func (e *ParcelPageExtractor) extractCurrencyUsingSelectors(document *goquery.Document, selectors ...string) float64 {
	return parseCurrency(e.extractTextUsingSelectors(document, selectors...))
}

// normalizeTextContent collapses runs of whitespace into single spaces.
func (e *ParcelPageExtractor) normalizeTextContent(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

var nonNumeric = regexp.MustCompile(`[^0-9.]`)

// parseCurrency strips currency formatting ("$123,456") down to a float.
func parseCurrency(text string) float64 {
	cleaned := nonNumeric.ReplaceAllString(text, "")
	if cleaned == "" {
		return 0
	}
	value, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0
	}
	return value
}

func digitsOnly(text string) string {
	var builder strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' {
			builder.WriteRune(r)
		}
	}
	return builder.String()
}

func normalizeParcelText(text string) string {
	return strings.ToUpper(strings.Join(strings.Fields(text), ""))
}
