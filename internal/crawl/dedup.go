package crawl

import (
	"context"
	"fmt"
	"log"

	"github.com/jfsok/bidwatch/internal/models"
)

// NoticeStore is the slice of the relational store the deduplicator needs.
type NoticeStore interface {
	HasBiddingURL(ctx context.Context, url string) (bool, error)
	InsertBiddingRecords(ctx context.Context, items []models.NoticeSummary) (int, error)
}

// Deduplicator enforces at-most-once persistence per notice URL: candidates
// whose URL is already stored are dropped, the survivors go in as one batch.
// A URL inserted here is never updated through this path; enrichment happens
// via the summary and price passes.
type Deduplicator struct {
	store NoticeStore
}

func NewDeduplicator(store NoticeStore) *Deduplicator {
	return &Deduplicator{store: store}
}

// SaveNew filters the batch against storage and inserts the unseen records.
// Returns the number inserted. A storage failure is surfaced to the caller:
// a dedup run that silently fails to write is worthless.
func (d *Deduplicator) SaveNew(ctx context.Context, items []models.NoticeSummary) (int, error) {
	var fresh []models.NoticeSummary
	for _, item := range items {
		exists, err := d.store.HasBiddingURL(ctx, item.URL)
		if err != nil {
			return 0, fmt.Errorf("dedup check for %s: %w", item.URL, err)
		}
		if exists {
			log.Printf("URL already stored, skipping: %s", item.URL)
			continue
		}
		fresh = append(fresh, item)
	}

	if len(fresh) == 0 {
		log.Printf("No new records to insert")
		return 0, nil
	}

	inserted, err := d.store.InsertBiddingRecords(ctx, fresh)
	if err != nil {
		return inserted, fmt.Errorf("batch insert: %w", err)
	}
	log.Printf("Inserted %d new records", inserted)
	return inserted, nil
}
