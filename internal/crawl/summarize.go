package crawl

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/jfsok/bidwatch/internal/models"
	"github.com/microcosm-cc/bluemonday"
)

// triggerPhrase marks a winning-bid announcement that carries price rows
// worth summarizing.
const triggerPhrase = "投标报价"

// SummaryStore is the slice of the relational store the summarizer needs.
type SummaryStore interface {
	LookupByProject(ctx context.Context, keyword string) ([]models.BiddingRecord, error)
	UpdateSummaries(ctx context.Context, records []models.BiddingRecord) error
}

// AwardSummarizer is the LLM collaborator: one synchronous completion that
// should return a JSON award summary for the given notice content.
type AwardSummarizer interface {
	SummarizeAward(ctx context.Context, content string) (string, error)
}

// Summarizer walks stored records matching a keyword, fetches each notice
// page, and runs the ones carrying the winning-bid trigger phrase through the
// LLM, staging the summary JSON for a single batch update.
type Summarizer struct {
	store    SummaryStore
	reader   *DetailReader
	llm      AwardSummarizer
	sanitize *bluemonday.Policy
}

func NewSummarizer(store SummaryStore, reader *DetailReader, llm AwardSummarizer) *Summarizer {
	return &Summarizer{
		store:    store,
		reader:   reader,
		llm:      llm,
		sanitize: bluemonday.UGCPolicy(),
	}
}

// Run summarizes every matching record and returns how many were updated.
// Per-item navigation and LLM failures are logged and skipped; the batch
// never aborts on them.
func (s *Summarizer) Run(ctx context.Context, keyword string) (int, error) {
	records, err := s.store.LookupByProject(ctx, keyword)
	if err != nil {
		return 0, fmt.Errorf("lookup %q: %w", keyword, err)
	}
	log.Printf("Found %d records for keyword %q", len(records), keyword)

	var staged []models.BiddingRecord
	for _, record := range records {
		contentHTML, title, err := s.reader.ReadContentRegion(ctx, record.URL)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return 0, err
			}
			log.Printf("Skipping %s: %v", record.URL, err)
			continue
		}
		if title != "" {
			record.Project = title
		}

		cleaned := s.sanitize.Sanitize(contentHTML)
		if !strings.Contains(cleaned, triggerPhrase) {
			continue
		}

		summary, err := s.llm.SummarizeAward(ctx, cleaned)
		if err != nil {
			log.Printf("Summary failed for %s: %v", record.URL, err)
			continue
		}
		record.Summary = &summary
		staged = append(staged, record)

		if err := s.reader.Pause(ctx); err != nil {
			return 0, err
		}
	}

	if len(staged) == 0 {
		return 0, nil
	}
	if err := s.store.UpdateSummaries(ctx, staged); err != nil {
		return 0, fmt.Errorf("update summaries: %w", err)
	}
	return len(staged), nil
}
