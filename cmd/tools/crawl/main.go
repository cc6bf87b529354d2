package main

import (
	"context"
	"flag"
	"log"

	"github.com/jfsok/bidwatch/internal/crawl"
	"github.com/jfsok/bidwatch/internal/db"
	"github.com/jfsok/bidwatch/internal/snapshot"
	"github.com/joho/godotenv"
)

func main() {
	keyword := flag.String("keyword", "", "search keyword (required)")
	endDate := flag.String("end-date", crawl.DefaultEndDate(), "stop once notices are older than this date (YYYY-MM-DD)")
	snapshotDir := flag.String("snapshot-dir", "data", "directory for crawl snapshots")
	flag.Parse()

	if *keyword == "" {
		log.Fatal("-keyword is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	reg, err := crawl.LoadRegistry("internal/crawl/config/sources.yaml")
	if err != nil {
		log.Fatalf("Failed to load sources config: %v", err)
	}

	store := db.NewStore(pool)
	runner := crawl.NewRunner(reg.Bidding, store, snapshot.NewStore(*snapshotDir), func() crawl.Browser {
		return crawl.NewCollyBrowser(crawl.CollyBrowserConfig{})
	})

	runID, err := store.StartRun(ctx, "notices")
	if err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}

	stats, crawlErr := runner.CrawlNotices(ctx, *keyword, *endDate)
	status := "completed"
	if crawlErr != nil {
		status = "failed"
	}
	if err := store.FinishRun(ctx, runID, status, stats.Found, stats.Inserted, stats.Errors); err != nil {
		log.Printf("Failed to finish run record: %v", err)
	}
	if crawlErr != nil {
		log.Fatalf("Crawl failed: %v", crawlErr)
	}

	log.Printf("Crawl done: found=%d inserted=%d errors=%d", stats.Found, stats.Inserted, stats.Errors)
}
