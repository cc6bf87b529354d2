package crawl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/jfsok/bidwatch/internal/extract"
	"github.com/jfsok/bidwatch/internal/models"
)

// projectKeyLen is how many leading characters of a project title form the
// fuzzy key used to match a winning-bid notice to its tender announcement.
const projectKeyLen = 30

// ReconcileStore is the slice of the relational store the reconciler needs.
type ReconcileStore interface {
	ListSummarized(ctx context.Context, keyword string) ([]models.BiddingRecord, error)
	FindTenderAnnouncement(ctx context.Context, projectKey string) (*models.BiddingRecord, error)
	UpdatePrices(ctx context.Context, records []models.BiddingRecord) error
}

// PageReader abstracts the detail-page fetch the reconciler performs on each
// matched tender announcement.
type PageReader interface {
	ReadContentRegion(ctx context.Context, pageURL string) (contentHTML, title string, err error)
	Pause(ctx context.Context) error
}

// TenderPriceExtractor recovers max-price records from tender pages whose
// tables defeat the structural parser.
type TenderPriceExtractor interface {
	ExtractTenderPrices(ctx context.Context, content string) ([]extract.PriceRecord, error)
}

// ReconcileSummary reports what one reconciliation run did.
type ReconcileSummary struct {
	Found     int `json:"found"`
	Matched   int `json:"matched"`
	Unmatched int `json:"unmatched"`
	Failed    int `json:"failed"`
	Updated   int `json:"updated"`
}

// Reconciler joins each summarized winning-bid record with the max-price
// table of its tender announcement, matched by project-title prefix.
type Reconciler struct {
	store      ReconcileStore
	reader     PageReader
	classifier extract.Classifier
	llm        TenderPriceExtractor
}

// NewReconciler builds a reconciler. llm may be nil, which disables the
// LLM fallback for pages the structural parser yields nothing from.
func NewReconciler(store ReconcileStore, reader PageReader, llm TenderPriceExtractor) *Reconciler {
	return &Reconciler{store: store, reader: reader, llm: llm}
}

// Reconcile processes every summarized record matching the keyword and
// returns an explicit batch summary. Records without a tender counterpart
// are counted unmatched and skipped, never failing the run. Structural
// parse failures on a matched tender page degrade that record only, but are
// collected and returned so corrupted extraction stays visible.
func (r *Reconciler) Reconcile(ctx context.Context, keyword string) (*ReconcileSummary, error) {
	records, err := r.store.ListSummarized(ctx, keyword)
	if err != nil {
		return nil, fmt.Errorf("list summarized %q: %w", keyword, err)
	}

	summary := &ReconcileSummary{Found: len(records)}
	log.Printf("Found %d summarized records for keyword %q", len(records), keyword)

	var staged []models.BiddingRecord
	var parseErrs []error

	for _, record := range records {
		key := projectKey(record.Project)
		tender, err := r.store.FindTenderAnnouncement(ctx, key)
		if err != nil {
			return summary, fmt.Errorf("tender lookup for key %q: %w", key, err)
		}
		if tender == nil {
			summary.Unmatched++
			log.Printf("No tender announcement for key %q", key)
			continue
		}

		log.Printf("Tender announcement for %q: %s", record.Project, tender.URL)
		contentHTML, _, err := r.reader.ReadContentRegion(ctx, tender.URL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return summary, err
			}
			summary.Failed++
			log.Printf("Tender page failed for %s: %v", tender.URL, err)
			continue
		}

		prices, err := r.classifier.ParseBidPrice(contentHTML)
		if err != nil {
			summary.Failed++
			parseErrs = append(parseErrs, fmt.Errorf("%s: %w", tender.URL, err))
			continue
		}
		if len(prices) == 0 && r.llm != nil {
			prices, err = r.llm.ExtractTenderPrices(ctx, contentHTML)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return summary, err
				}
				log.Printf("LLM price fallback failed for %s: %v", tender.URL, err)
				prices = nil
			}
		}
		if prices == nil {
			prices = []extract.PriceRecord{}
		}

		encoded, err := json.Marshal(prices)
		if err != nil {
			return summary, fmt.Errorf("encode prices for %s: %w", record.URL, err)
		}
		priceJSON := string(encoded)
		record.Price = &priceJSON
		staged = append(staged, record)
		summary.Matched++

		if err := r.reader.Pause(ctx); err != nil {
			return summary, err
		}
	}

	if len(staged) > 0 {
		if err := r.store.UpdatePrices(ctx, staged); err != nil {
			return summary, fmt.Errorf("update prices: %w", err)
		}
		summary.Updated = len(staged)
	}

	return summary, errors.Join(parseErrs...)
}

// projectKey truncates a title to its leading characters, rune-safe so
// multi-byte project names never split mid-character.
func projectKey(title string) string {
	runes := []rune(title)
	if len(runes) <= projectKeyLen {
		return title
	}
	return string(runes[:projectKeyLen])
}
