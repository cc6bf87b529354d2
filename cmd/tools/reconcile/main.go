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

// Matches summarized award records against their tender announcements and
// stores the announced max prices alongside the winning bids.
func main() {
	keyword := flag.String("keyword", "", "only reconcile records whose project contains this keyword (required)")
	llmFallback := flag.Bool("llm-fallback", false, "ask the LLM for max prices when a tender page has no parseable table")
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

	reg, err := crawl.LoadRegistry("internal/crawl/config/sources.yaml")
	if err != nil {
		log.Fatalf("Failed to load sources config: %v", err)
	}

	store := db.NewStore(pool)
	browser := crawl.NewCollyBrowser(crawl.CollyBrowserConfig{})
	defer browser.Close()

	runID, err := store.StartRun(ctx, "reconcile")
	if err != nil {
		log.Fatalf("Failed to record run: %v", err)
	}

	var llm crawl.TenderPriceExtractor
	if *llmFallback {
		apiKey := os.Getenv("DEEPSEEK_API_KEY")
		if apiKey == "" {
			log.Fatal("DEEPSEEK_API_KEY is required with -llm-fallback")
		}
		llm = ai.NewSummarizer(ai.NewClient(os.Getenv("DEEPSEEK_BASE_URL"), apiKey, os.Getenv("DEEPSEEK_MODEL")))
	}

	reconciler := crawl.NewReconciler(store, crawl.NewDetailReader(browser, reg.Bidding), llm)
	summary, runErr := reconciler.Reconcile(ctx, *keyword)
	status := "completed"
	if runErr != nil {
		status = "failed"
	}
	if summary == nil {
		summary = &crawl.ReconcileSummary{}
	}
	if err := store.FinishRun(ctx, runID, status, summary.Found, summary.Updated, summary.Failed); err != nil {
		log.Printf("Failed to finish run record: %v", err)
	}
	if runErr != nil {
		log.Fatalf("Reconcile finished with errors: %v", runErr)
	}

	log.Printf("Reconcile done: found=%d matched=%d unmatched=%d failed=%d updated=%d",
		summary.Found, summary.Matched, summary.Unmatched, summary.Failed, summary.Updated)
}
