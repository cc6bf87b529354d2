package main

import (
	"context"
	"log"
	"os"

	"github.com/jfsok/bidwatch/internal/api"
	"github.com/jfsok/bidwatch/internal/crawl"
	"github.com/jfsok/bidwatch/internal/db"
	"github.com/jfsok/bidwatch/internal/forum"
	"github.com/jfsok/bidwatch/internal/snapshot"
	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8081"
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

	snapshotDir := os.Getenv("SNAPSHOT_DIR")
	if snapshotDir == "" {
		snapshotDir = "data"
	}
	snapshots := snapshot.NewStore(snapshotDir)

	runner := crawl.NewRunner(reg.Bidding, store, snapshots, func() crawl.Browser {
		return crawl.NewCollyBrowser(crawl.CollyBrowserConfig{})
	})
	fetcher := forum.NewFetcher(reg.Forum)

	// Daily crawl at 08:30 picks up the previous day's notices.
	if keyword := os.Getenv("CRAWL_KEYWORD"); keyword != "" {
		c := cron.New()
		_, err := c.AddFunc("30 8 * * *", func() {
			endDate := crawl.DefaultEndDate()
			stats, err := runner.CrawlNotices(context.Background(), keyword, endDate)
			if err != nil {
				log.Printf("Scheduled crawl failed: %v", err)
				return
			}
			log.Printf("Scheduled crawl done: found=%d inserted=%d errors=%d",
				stats.Found, stats.Inserted, stats.Errors)
		})
		if err != nil {
			log.Fatalf("Failed to schedule crawl: %v", err)
		}
		c.Start()
		defer c.Stop()
		log.Printf("Scheduled daily crawl for keyword %q", keyword)
	}

	srv := api.NewServer(store, snapshots, runner, fetcher)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
