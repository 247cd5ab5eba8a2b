package services

import (
	"context"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/fenilmodi00/parcel-backend/shared"
	"github.com/sirupsen/logrus"
)

// RenderedPageScraper drives a headless browser for assessor portals that
// build their results table with client-side scripts, where a plain HTTP
// fetch returns an empty shell. Used only as a secondary strategy when the
// static scrape extracts nothing.
type RenderedPageScraper struct {
	timeout time.Duration
}

// NewRenderedPageScraper creates a rendered page scraper with the given
// per-page timeout.
func NewRenderedPageScraper(timeout time.Duration) *RenderedPageScraper {
	return &RenderedPageScraper{timeout: timeout}
}

// FetchRenderedHTML navigates to the URL, waits for the results table to be
// visible, and returns the fully rendered document HTML.
func (s *RenderedPageScraper) FetchRenderedHTML(ctx context.Context, pageURL string) (string, error) {
	startTime := time.Now()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent("Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, s.timeout)
	defer cancelTimeout()

	var renderedHTML string
	err := chromedp.Run(browserCtx,
		chromedp.EmulateViewport(1920, 1080),
		chromedp.Navigate(pageURL),
		chromedp.WaitVisible("table tbody tr", chromedp.ByQuery),
		chromedp.OuterHTML("html", &renderedHTML, chromedp.ByQuery),
	)
	if err != nil {
		return "", shared.WrapError(err, shared.ErrorClassUnreachable, "scrape", "rendered_fetch")
	}

	logrus.WithFields(logrus.Fields{
		"component":   "RenderedPageScraper",
		"render_time": time.Since(startTime),
		"page_bytes":  len(renderedHTML),
	}).Debug("Rendered assessor page with headless browser")

	return renderedHTML, nil
}
