package crawl

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/jfsok/bidwatch/internal/models"
)

var noticeTimeRe = regexp.MustCompile(`\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`)

// DetailReader fetches single notice pages through the browsing context.
type DetailReader struct {
	browser  Browser
	cfg      BiddingSourceConfig
	throttle *Throttle
}

func NewDetailReader(browser Browser, cfg BiddingSourceConfig) *DetailReader {
	return &DetailReader{
		browser:  browser,
		cfg:      cfg,
		throttle: NewThrottle(cfg.Throttle),
	}
}

// ReadNoticePage loads one notice URL and extracts its title, publish date,
// and body text. Failures are per-item: the caller logs, skips the record,
// and continues the batch.
func (r *DetailReader) ReadNoticePage(ctx context.Context, pageURL string) (*models.NoticeDetail, error) {
	if err := r.browser.Navigate(ctx, pageURL); err != nil {
		return nil, err
	}
	html, err := r.browser.Content(ctx)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrContainerMissing, err)
	}

	content := doc.Find(r.cfg.Detail.Content).First()
	if content.Length() == 0 {
		return nil, fmt.Errorf("%w: %s", ErrContainerMissing, r.cfg.Detail.Content)
	}

	return &models.NoticeDetail{
		Title:       strings.TrimSpace(doc.Find(r.cfg.Detail.Title).First().Text()),
		PublishDate: strings.TrimSpace(doc.Find(r.cfg.Detail.Date).First().Text()),
		Content:     content.Text(),
	}, nil
}

// ReadContentRegion loads one notice URL and returns the inner HTML of the
// content region plus the page title, keeping table markup intact for the
// structural price parser.
func (r *DetailReader) ReadContentRegion(ctx context.Context, pageURL string) (contentHTML, title string, err error) {
	if err := r.browser.Navigate(ctx, pageURL); err != nil {
		return "", "", err
	}
	html, err := r.browser.Content(ctx)
	if err != nil {
		return "", "", err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrContainerMissing, err)
	}

	content := doc.Find(r.cfg.Detail.Content).First()
	if content.Length() == 0 {
		return "", "", fmt.Errorf("%w: %s", ErrContainerMissing, r.cfg.Detail.Content)
	}

	inner, err := content.Html()
	if err != nil {
		return "", "", fmt.Errorf("content region: %w", err)
	}

	return inner, strings.TrimSpace(doc.Find(r.cfg.Detail.Title).First().Text()), nil
}

// Pause applies the inter-fetch throttle.
func (r *DetailReader) Pause(ctx context.Context) error {
	return r.throttle.Wait(ctx)
}

// ExtractNoticeTime pulls the first "YYYY-MM-DD HH:MM:SS" timestamp out of a
// date line, falling back to now when none is present.
func ExtractNoticeTime(text string, now time.Time) string {
	if m := noticeTimeRe.FindString(text); m != "" {
		return m
	}
	return now.Format("2006-01-02 15:04:05")
}
