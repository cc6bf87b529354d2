package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jfsok/bidwatch/internal/ai"
	"github.com/jfsok/bidwatch/internal/crawl"
	"github.com/jfsok/bidwatch/internal/db"
	"github.com/joho/godotenv"
)

// Reads each stored award notice, asks the LLM for a structured summary of
// its evaluation table, and writes the JSON back onto the record.
func main() {
	keyword := flag.String("keyword", "", "only summarize records whose project contains this keyword (required)")
	flag.Parse()

	if *keyword == "" {
		log.Fatal("-keyword is required")
	}

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	apiKey := os.Getenv("DEEPSEEK_API_KEY")
	if apiKey == "" {
		log.Fatal("Missing DEEPSEEK_API_KEY environment variable")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	reg, err := crawl.LoadRegistry("internal/crawl/config/sources.yaml")
	if err != nil {
		log.Fatalf("Failed to load sources config: %v", err)
	}

	store := db.NewStore(pool)
	browser := crawl.NewCollyBrowser(crawl.CollyBrowserConfig{})
	defer browser.Close()

	reader := crawl.NewDetailReader(browser, reg.Bidding)
	llm := ai.NewSummarizer(ai.NewClient(os.Getenv("DEEPSEEK_BASE_URL"), apiKey, os.Getenv("DEEPSEEK_MODEL")))

	runID, err := store.StartRun(ctx, "summarize")
	if err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}

	summarizer := crawl.NewSummarizer(store, reader, llm)
	updated, runErr := summarizer.Run(ctx, *keyword)
	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	if err := store.FinishRun(ctx, runID, status, updated, updated, 0); err != nil {
		log.Printf("Failed to finish run record: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Summarize failed: %v", runErr)
	}

	log.Printf("Summarize done: updated %d records", updated)
}
