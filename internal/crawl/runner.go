package crawl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/jfsok/bidwatch/internal/models"
	"github.com/jfsok/bidwatch/internal/snapshot"
)

// tenderType is the notice category whose pages carry the max-price table.
const tenderType = "招标公告"

// RunnerStore is the store surface the crawl runner needs.
type RunnerStore interface {
	NoticeStore
	HasNoticeURL(ctx context.Context, url string) (bool, error)
	InsertTenderNotices(ctx context.Context, items []models.TenderNotice) (int, error)
}

// CrawlStats summarizes one crawl run.
type CrawlStats struct {
	Found    int `json:"found"`
	Inserted int `json:"inserted"`
	Errors   int `json:"errors"`
}

// Runner wires a crawl session to deduplicated persistence with a snapshot
// fallback.
type Runner struct {
	cfg       BiddingSourceConfig
	store     RunnerStore
	snapshots *snapshot.Store
	browser   func() Browser
}

// NewRunner builds a Runner. newBrowser is called once per crawl so every
// run gets a fresh browsing context that is released when the run ends.
func NewRunner(cfg BiddingSourceConfig, store RunnerStore, snapshots *snapshot.Store, newBrowser func() Browser) *Runner {
	return &Runner{cfg: cfg, store: store, snapshots: snapshots, browser: newBrowser}
}

// DefaultEndDate is yesterday, the usual cutoff for a daily crawl.
func DefaultEndDate() string {
	return time.Now().AddDate(0, 0, -1).Format("2006-01-02")
}

// CrawlNotices searches for notices published on or after endDate, snapshots
// the result set, and persists the unseen ones. The snapshot is written
// before storage is touched, so a storage outage never loses a crawl.
func (r *Runner) CrawlNotices(ctx context.Context, keyword, endDate string) (*CrawlStats, error) {
	browser := r.browser()
	session := NewSession(browser, r.cfg)
	defer session.Close()

	stats := &CrawlStats{}
	notices, err := session.Search(ctx, keyword, endDate)
	stats.Found = len(notices)
	if err != nil {
		if len(notices) == 0 {
			return stats, err
		}
		// Partial result: keep what the crawl already produced.
		stats.Errors++
		log.Printf("Crawl degraded, keeping %d collected notices: %v", len(notices), err)
	}

	snapKey := time.Now().Format("2006-01-02")
	if err := r.snapshots.Save("bidding_list", snapKey, notices); err != nil {
		log.Printf("Snapshot save failed: %v", err)
		stats.Errors++
	}

	inserted, err := NewDeduplicator(r.store).SaveNew(ctx, notices)
	stats.Inserted = inserted
	if err != nil {
		return stats, fmt.Errorf("persist crawl (snapshot %s retained): %w", snapKey, err)
	}
	return stats, nil
}

// CrawlTenderNotices searches like CrawlNotices but follows every tender
// announcement to its detail page, storing full notice bodies for later
// reconciliation. Per-page failures skip that notice only.
func (r *Runner) CrawlTenderNotices(ctx context.Context, keyword, endDate string) (*CrawlStats, error) {
	browser := r.browser()
	session := NewSession(browser, r.cfg)
	defer session.Close()

	stats := &CrawlStats{}
	notices, err := session.Search(ctx, keyword, endDate)
	if err != nil && len(notices) == 0 {
		return stats, err
	}

	reader := NewDetailReader(browser, r.cfg)
	now := time.Now()
	var details []models.TenderNotice

	for _, item := range notices {
		if item.Type != tenderType {
			continue
		}
		stats.Found++

		detail, err := reader.ReadNoticePage(ctx, item.URL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return stats, err
			}
			stats.Errors++
			log.Printf("Skipping notice %s: %v", item.URL, err)
			continue
		}

		details = append(details, models.TenderNotice{
			Title:      detail.Title,
			Content:    detail.Content,
			NoticeTime: ExtractNoticeTime(detail.PublishDate, now),
			Company:    item.IssuingParty,
			URL:        item.URL,
			Type:       item.Type,
		})

		if err := reader.Pause(ctx); err != nil {
			return stats, err
		}
	}

	snapKey := now.Format("2006-01-02")
	if err := r.snapshots.Save("bidding_notice", snapKey, details); err != nil {
		log.Printf("Snapshot save failed: %v", err)
		stats.Errors++
	}

	var fresh []models.TenderNotice
	for _, d := range details {
		exists, err := r.store.HasNoticeURL(ctx, d.URL)
		if err != nil {
			return stats, fmt.Errorf("dedup check for %s (snapshot %s retained): %w", d.URL, snapKey, err)
		}
		if exists {
			log.Printf("URL already stored, skipping: %s", d.URL)
			continue
		}
		fresh = append(fresh, d)
	}

	inserted, err := r.store.InsertTenderNotices(ctx, fresh)
	stats.Inserted = inserted
	if err != nil {
		return stats, fmt.Errorf("persist notices (snapshot %s retained): %w", snapKey, err)
	}
	return stats, nil
}
