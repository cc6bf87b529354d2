package crawl

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jfsok/bidwatch/internal/models"
	"github.com/jfsok/bidwatch/internal/snapshot"
)

type memoryRunnerStore struct {
	*memoryNoticeStore
	noticeURLs map[string]bool
	tenders    []models.TenderNotice
}

func newMemoryRunnerStore() *memoryRunnerStore {
	return &memoryRunnerStore{
		memoryNoticeStore: newMemoryNoticeStore(),
		noticeURLs:        map[string]bool{},
	}
}

func (s *memoryRunnerStore) HasNoticeURL(_ context.Context, url string) (bool, error) {
	return s.noticeURLs[url], nil
}

func (s *memoryRunnerStore) InsertTenderNotices(_ context.Context, items []models.TenderNotice) (int, error) {
	var n int
	for _, item := range items {
		if s.noticeURLs[item.URL] {
			continue
		}
		s.noticeURLs[item.URL] = true
		s.tenders = append(s.tenders, item)
		n++
	}
	return n, nil
}

func resultPages(cfg BiddingSourceConfig) map[string]string {
	return map[string]string{
		cfg.QueryURL: "<form></form>",
		"http://bid.example.com/results": listPage("",
			listItem("中标公示", "广州局", "数据中心改造项目", "/notice/1.html", "2024-05-03"),
			listItem("招标公告", "广州局", "数据中心改造项目", "/notice/2.html", "2024-05-03"),
		),
		"http://bid.example.com/notice/2.html": `<html><body>
			<h1 class="title">数据中心改造项目招标公告</h1>
			<div class="date">2024-05-03 09:00:00</div>
			<div class="content">最高限价见附表</div>
		</body></html>`,
	}
}

func TestCrawlNotices_PersistsAndSnapshots(t *testing.T) {
	cfg := testConfig()
	store := newMemoryRunnerStore()
	snapshots := snapshot.NewStore(t.TempDir())

	runner := NewRunner(cfg, store, snapshots, func() Browser {
		return newFakeBrowser("http://bid.example.com/results", resultPages(cfg))
	})

	stats, err := runner.CrawlNotices(context.Background(), "数据中心", "")
	if err != nil {
		t.Fatalf("CrawlNotices: %v", err)
	}
	if stats.Found != 2 || stats.Inserted != 2 || stats.Errors != 0 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	var saved []models.NoticeSummary
	key := time.Now().Format("2006-01-02")
	if err := snapshots.Load("bidding_list", key, &saved); err != nil {
		t.Fatalf("snapshot missing: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("snapshot holds %d notices, want 2", len(saved))
	}
}

func TestCrawlNotices_SecondRunInsertsNothing(t *testing.T) {
	cfg := testConfig()
	store := newMemoryRunnerStore()
	snapshots := snapshot.NewStore(t.TempDir())

	runner := NewRunner(cfg, store, snapshots, func() Browser {
		return newFakeBrowser("http://bid.example.com/results", resultPages(cfg))
	})

	if _, err := runner.CrawlNotices(context.Background(), "数据中心", ""); err != nil {
		t.Fatal(err)
	}
	stats, err := runner.CrawlNotices(context.Background(), "数据中心", "")
	if err != nil {
		t.Fatal(err)
	}
	if stats.Inserted != 0 {
		t.Fatalf("rerun must not insert, got %d", stats.Inserted)
	}
}

func TestCrawlNotices_StorageFailureRetainsSnapshot(t *testing.T) {
	cfg := testConfig()
	store := newMemoryRunnerStore()
	store.insertErr = errors.New("connection refused")
	snapshots := snapshot.NewStore(t.TempDir())

	runner := NewRunner(cfg, store, snapshots, func() Browser {
		return newFakeBrowser("http://bid.example.com/results", resultPages(cfg))
	})

	_, err := runner.CrawlNotices(context.Background(), "数据中心", "")
	if err == nil {
		t.Fatal("storage failure must surface")
	}
	if !strings.Contains(err.Error(), "snapshot") {
		t.Errorf("error should point to the retained snapshot: %v", err)
	}

	// The snapshot was written before storage was touched.
	var saved []models.NoticeSummary
	if err := snapshots.Load("bidding_list", time.Now().Format("2006-01-02"), &saved); err != nil {
		t.Fatalf("fallback snapshot missing: %v", err)
	}
	if len(saved) != 2 {
		t.Errorf("fallback snapshot holds %d notices, want 2", len(saved))
	}
}

func TestCrawlTenderNotices_StoresOnlyTenderPages(t *testing.T) {
	cfg := testConfig()
	store := newMemoryRunnerStore()
	snapshots := snapshot.NewStore(t.TempDir())

	runner := NewRunner(cfg, store, snapshots, func() Browser {
		return newFakeBrowser("http://bid.example.com/results", resultPages(cfg))
	})

	stats, err := runner.CrawlTenderNotices(context.Background(), "数据中心", "")
	if err != nil {
		t.Fatalf("CrawlTenderNotices: %v", err)
	}
	if stats.Found != 1 || stats.Inserted != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}

	tender := store.tenders[0]
	if tender.Type != "招标公告" || tender.Title != "数据中心改造项目招标公告" {
		t.Errorf("unexpected tender: %+v", tender)
	}
	if tender.NoticeTime != "2024-05-03 09:00:00" {
		t.Errorf("notice time not extracted: %q", tender.NoticeTime)
	}
	if tender.Company != "广州局" {
		t.Errorf("issuing party lost: %q", tender.Company)
	}
}

func TestCrawlTenderNotices_UnreachableDetailPageIsSkipped(t *testing.T) {
	cfg := testConfig()
	pages := resultPages(cfg)
	delete(pages, "http://bid.example.com/notice/2.html")

	store := newMemoryRunnerStore()
	runner := NewRunner(cfg, store, snapshot.NewStore(t.TempDir()), func() Browser {
		return newFakeBrowser("http://bid.example.com/results", pages)
	})

	stats, err := runner.CrawlTenderNotices(context.Background(), "数据中心", "")
	if err != nil {
		t.Fatalf("CrawlTenderNotices: %v", err)
	}
	if stats.Found != 1 || stats.Inserted != 0 || stats.Errors != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}
