package models

import (
	"time"

	"github.com/google/uuid"
)

// NoticeSummary is one entry from a search-result list page. Immutable once
// built; the URL is the dedup key against storage.
type NoticeSummary struct {
	Type         string `json:"type"`
	IssuingParty string `json:"part_a"`
	Project      string `json:"project"`
	PublishDate  string `json:"date"` // YYYY-MM-DD
	URL          string `json:"url"`
}

// NoticeDetail is the rendered body of a single notice page. It is fetched
// lazily per URL and never persisted as-is.
type NoticeDetail struct {
	Title       string `json:"title"`
	PublishDate string `json:"date"`
	Content     string `json:"content"`
}

// BiddingRecord is a row of the bidding_csg table. Summary and Price start
// empty and are filled by the enrichment passes, matched by URL.
type BiddingRecord struct {
	Project      string  `json:"project"`
	IssuingParty string  `json:"part_a"`
	Type         string  `json:"type"`
	CreateDate   string  `json:"date"`
	URL          string  `json:"url"`
	Summary      *string `json:"summary,omitempty"` // award summary JSON from the LLM
	Price        *string `json:"price,omitempty"`   // max-price records JSON from the tender table
}

// TenderNotice is a row of the bidding_notice table: the full text of one
// tender announcement page.
type TenderNotice struct {
	Title      string `json:"title"`
	Content    string `json:"content"`
	NoticeTime string `json:"notice_time"`
	Company    string `json:"company"`
	URL        string `json:"url"`
	Type       string `json:"type"`
}

// HotArticle is one curated forum post with its lazily fetched body.
type HotArticle struct {
	UserName string `json:"userName"`
	Subject  string `json:"subject"`
	URL      string `json:"url"`
	Date     string `json:"date"`
	Content  string `json:"content"`
}

// CrawlRun records one crawl invocation for the runs history.
type CrawlRun struct {
	RunID         uuid.UUID  `json:"run_id"`
	Kind          string     `json:"kind"` // "notices", "summarize", "reconcile"
	Status        string     `json:"status"`
	ItemsFound    int        `json:"items_found"`
	ItemsInserted int        `json:"items_inserted"`
	Errors        int        `json:"errors"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
}
