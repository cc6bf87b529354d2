package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jfsok/bidwatch/internal/db"
	"github.com/jfsok/bidwatch/internal/export"
	"github.com/joho/godotenv"
)

// Flattens reconciled records into the price-comparison CSV and prints a
// short preview of what was written.
func main() {
	out := flag.String("out", "bidding_csg.csv", "output CSV path")
	preview := flag.Int("preview", 5, "number of rows to print after writing")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found, using environment variables")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	records, err := db.NewStore(pool).ListReconciled(ctx)
	if err != nil {
		log.Fatalf("Failed to load reconciled records: %v", err)
	}

	f, err := os.Create(*out)
	if err != nil {
		log.Fatalf("Failed to create %s: %v", *out, err)
	}
	defer f.Close()

	n, err := export.WriteCSV(f, records)
	if err != nil {
		log.Fatalf("Failed to write CSV: %v", err)
	}
	log.Printf("Wrote %d rows to %s", n, *out)

	if *preview <= 0 || n == 0 {
		return
	}

	rows := export.Rows(records)
	if len(rows) > *preview {
		rows = rows[:*preview]
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	header := table.Row{}
	for _, col := range export.Header {
		header = append(header, col)
	}
	t.AppendHeader(header)
	for _, row := range rows {
		r := table.Row{}
		for _, cell := range row {
			r = append(r, cell)
		}
		t.AppendRow(r)
	}
	t.Render()
}
