package crawl

import (
	"context"
	"errors"
	"testing"

	"github.com/jfsok/bidwatch/internal/models"
)

type memoryNoticeStore struct {
	urls      map[string]bool
	inserted  []models.NoticeSummary
	checkErr  error
	insertErr error
}

func newMemoryNoticeStore(existing ...string) *memoryNoticeStore {
	s := &memoryNoticeStore{urls: map[string]bool{}}
	for _, u := range existing {
		s.urls[u] = true
	}
	return s
}

func (s *memoryNoticeStore) HasBiddingURL(_ context.Context, url string) (bool, error) {
	if s.checkErr != nil {
		return false, s.checkErr
	}
	return s.urls[url], nil
}

func (s *memoryNoticeStore) InsertBiddingRecords(_ context.Context, items []models.NoticeSummary) (int, error) {
	if s.insertErr != nil {
		return 0, s.insertErr
	}
	var n int
	for _, item := range items {
		if s.urls[item.URL] {
			continue
		}
		s.urls[item.URL] = true
		s.inserted = append(s.inserted, item)
		n++
	}
	return n, nil
}

func TestSaveNew_SkipsKnownURLs(t *testing.T) {
	store := newMemoryNoticeStore("http://bid.example.com/notice/1.html")
	dedup := NewDeduplicator(store)

	items := []models.NoticeSummary{
		{Project: "项目甲", URL: "http://bid.example.com/notice/1.html"},
		{Project: "项目乙", URL: "http://bid.example.com/notice/2.html"},
	}

	inserted, err := dedup.SaveNew(context.Background(), items)
	if err != nil {
		t.Fatalf("SaveNew: %v", err)
	}
	if inserted != 1 {
		t.Fatalf("expected 1 insert, got %d", inserted)
	}
	if store.inserted[0].Project != "项目乙" {
		t.Errorf("wrong record inserted: %+v", store.inserted[0])
	}
}

func TestSaveNew_SameBatchTwiceInsertsOnce(t *testing.T) {
	store := newMemoryNoticeStore()
	dedup := NewDeduplicator(store)

	items := []models.NoticeSummary{
		{Project: "项目甲", URL: "http://bid.example.com/notice/1.html"},
	}

	if n, err := dedup.SaveNew(context.Background(), items); err != nil || n != 1 {
		t.Fatalf("first SaveNew: n=%d err=%v", n, err)
	}
	if n, err := dedup.SaveNew(context.Background(), items); err != nil || n != 0 {
		t.Fatalf("second SaveNew: n=%d err=%v", n, err)
	}
	if len(store.inserted) != 1 {
		t.Fatalf("expected exactly one stored record, got %d", len(store.inserted))
	}
}

func TestSaveNew_EmptyBatch(t *testing.T) {
	dedup := NewDeduplicator(newMemoryNoticeStore())
	n, err := dedup.SaveNew(context.Background(), nil)
	if err != nil || n != 0 {
		t.Fatalf("expected no-op, got n=%d err=%v", n, err)
	}
}

func TestSaveNew_StorageFailureSurfaces(t *testing.T) {
	store := newMemoryNoticeStore()
	store.checkErr = errors.New("connection refused")
	dedup := NewDeduplicator(store)

	_, err := dedup.SaveNew(context.Background(), []models.NoticeSummary{
		{URL: "http://bid.example.com/notice/1.html"},
	})
	if err == nil {
		t.Fatal("expected storage error to surface")
	}
}
