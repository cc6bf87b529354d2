package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jfsok/bidwatch/internal/models"
)

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const biddingCols = `project, part_a, type, COALESCE(to_char(create_date, 'YYYY-MM-DD'), ''), url, summary, price`

func scanBiddingRecord(scan func(dest ...interface{}) error) (models.BiddingRecord, error) {
	var r models.BiddingRecord
	err := scan(&r.Project, &r.IssuingParty, &r.Type, &r.CreateDate, &r.URL, &r.Summary, &r.Price)
	return r, err
}

// HasBiddingURL reports whether a bidding_csg row with this exact URL exists.
func (s *Store) HasBiddingURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM bidding_csg WHERE url = $1)", url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("url lookup failed: %w", err)
	}
	return exists, nil
}

// HasNoticeURL reports whether a bidding_notice row with this exact URL exists.
func (s *Store) HasNoticeURL(ctx context.Context, url string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM bidding_notice WHERE url = $1)", url).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("url lookup failed: %w", err)
	}
	return exists, nil
}

// InsertBiddingRecords batch-inserts notice summaries. The URL uniqueness
// constraint backs the dedup check, so a row that slipped past the existence
// check still cannot be inserted twice.
func (s *Store) InsertBiddingRecords(ctx context.Context, items []models.NoticeSummary) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
			INSERT INTO bidding_csg (type, part_a, project, create_date, url)
			VALUES ($1, $2, $3, NULLIF($4, '')::date, $5)
			ON CONFLICT (url) DO NOTHING`,
			item.Type, item.IssuingParty, item.Project, item.PublishDate, item.URL)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range items {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("batch insert failed: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// InsertTenderNotices batch-inserts full tender-announcement pages into
// bidding_notice, skipping URLs already present.
func (s *Store) InsertTenderNotices(ctx context.Context, items []models.TenderNotice) (int, error) {
	if len(items) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, item := range items {
		batch.Queue(`
			INSERT INTO bidding_notice (title, content, notice_time, company, url, type)
			VALUES ($1, $2, NULLIF($3, '')::timestamptz, $4, $5, $6)
			ON CONFLICT (url) DO NOTHING`,
			item.Title, item.Content, item.NoticeTime, item.Company, item.URL, item.Type)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	inserted := 0
	for range items {
		tag, err := results.Exec()
		if err != nil {
			return inserted, fmt.Errorf("batch insert failed: %w", err)
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// LookupByProject returns every bidding record whose project title contains
// the keyword.
func (s *Store) LookupByProject(ctx context.Context, keyword string) ([]models.BiddingRecord, error) {
	sql := fmt.Sprintf("SELECT %s FROM bidding_csg WHERE project LIKE '%%' || $1 || '%%' ORDER BY create_date DESC NULLS LAST", biddingCols)
	return s.queryBiddingRecords(ctx, sql, keyword)
}

// ListSummarized returns records that already carry an LLM award summary,
// filtered by project keyword.
func (s *Store) ListSummarized(ctx context.Context, keyword string) ([]models.BiddingRecord, error) {
	sql := fmt.Sprintf("SELECT %s FROM bidding_csg WHERE summary IS NOT NULL AND project LIKE '%%' || $1 || '%%'", biddingCols)
	return s.queryBiddingRecords(ctx, sql, keyword)
}

// FindTenderAnnouncement resolves the tender announcement whose project title
// contains the fuzzy key. Returns (nil, nil) when nothing matches; the caller
// decides whether that is an error.
func (s *Store) FindTenderAnnouncement(ctx context.Context, projectKey string) (*models.BiddingRecord, error) {
	sql := fmt.Sprintf("SELECT %s FROM bidding_csg WHERE project LIKE '%%' || $1 || '%%' AND type = '招标公告' LIMIT 1", biddingCols)
	row := s.pool.QueryRow(ctx, sql, projectKey)

	r, err := scanBiddingRecord(row.Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("tender lookup failed: %w", err)
	}
	return &r, nil
}

// ListReconciled returns records carrying both the award summary and the
// reconciled max-price table.
func (s *Store) ListReconciled(ctx context.Context) ([]models.BiddingRecord, error) {
	sql := fmt.Sprintf("SELECT %s FROM bidding_csg WHERE summary IS NOT NULL AND price IS NOT NULL", biddingCols)
	return s.queryBiddingRecords(ctx, sql)
}

func (s *Store) queryBiddingRecords(ctx context.Context, sql string, args ...interface{}) ([]models.BiddingRecord, error) {
	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var records []models.BiddingRecord
	for rows.Next() {
		r, err := scanBiddingRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return records, nil
}

// UpdateSummaries stages the LLM award summary (and the refreshed project
// title) for each record, keyed by URL, in one batch.
func (s *Store) UpdateSummaries(ctx context.Context, records []models.BiddingRecord) error {
	return s.updateByURL(ctx, records, "UPDATE bidding_csg SET summary = $1, project = $2, updated_at = NOW() WHERE url = $3", func(r models.BiddingRecord) interface{} {
		return r.Summary
	})
}

// UpdatePrices stages the reconciled price JSON (and the refreshed project
// title) for each record, keyed by URL, in one batch.
func (s *Store) UpdatePrices(ctx context.Context, records []models.BiddingRecord) error {
	return s.updateByURL(ctx, records, "UPDATE bidding_csg SET price = $1, project = $2, updated_at = NOW() WHERE url = $3", func(r models.BiddingRecord) interface{} {
		return r.Price
	})
}

func (s *Store) updateByURL(ctx context.Context, records []models.BiddingRecord, sql string, value func(models.BiddingRecord) interface{}) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(sql, value(r), r.Project, r.URL)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range records {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch update failed: %w", err)
		}
	}
	return nil
}

// StartRun records the beginning of a crawl run and returns its ID.
func (s *Store) StartRun(ctx context.Context, kind string) (uuid.UUID, error) {
	id := uuid.New()
	_, err := s.pool.Exec(ctx,
		"INSERT INTO crawl_runs (run_id, kind, status) VALUES ($1, $2, 'running')", id, kind)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to record crawl run: %w", err)
	}
	return id, nil
}

// FinishRun closes out a crawl run with its final counters.
func (s *Store) FinishRun(ctx context.Context, id uuid.UUID, status string, found, inserted, errs int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE crawl_runs
		SET status = $1, items_found = $2, items_inserted = $3, errors = $4, completed_at = NOW()
		WHERE run_id = $5`,
		status, found, inserted, errs, id)
	if err != nil {
		return fmt.Errorf("failed to close crawl run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent crawl runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.CrawlRun, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := s.pool.Query(ctx, `
		SELECT run_id, kind, status, items_found, items_inserted, errors, started_at, completed_at
		FROM crawl_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var runs []models.CrawlRun
	for rows.Next() {
		var run models.CrawlRun
		var completed *time.Time
		if err := rows.Scan(&run.RunID, &run.Kind, &run.Status, &run.ItemsFound,
			&run.ItemsInserted, &run.Errors, &run.StartedAt, &completed); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		run.CompletedAt = completed
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
