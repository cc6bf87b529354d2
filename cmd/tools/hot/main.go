package main

import (
	"context"
	"flag"
	"log"

	"github.com/jfsok/bidwatch/internal/crawl"
	"github.com/jfsok/bidwatch/internal/forum"
	"github.com/jfsok/bidwatch/internal/snapshot"
)

// Fetches the forum's hot-post listing, hydrates article bodies, and caches
// the result for the API to serve.
func main() {
	snapshotDir := flag.String("snapshot-dir", "data", "directory for crawl snapshots")
	flag.Parse()

	reg, err := crawl.LoadRegistry("internal/crawl/config/sources.yaml")
	if err != nil {
		log.Fatalf("Failed to load sources config: %v", err)
	}

	articles, err := forum.NewFetcher(reg.Forum).HotArticles(context.Background())
	if err != nil {
		log.Fatalf("Failed to fetch hot articles: %v", err)
	}

	if err := snapshot.NewStore(*snapshotDir).Save("hot_articles", "", articles); err != nil {
		log.Fatalf("Failed to save snapshot: %v", err)
	}

	log.Printf("Cached %d hot articles", len(articles))
}
