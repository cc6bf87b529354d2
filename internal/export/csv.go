package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"regexp"

	"github.com/jfsok/bidwatch/internal/ai"
	"github.com/jfsok/bidwatch/internal/extract"
	"github.com/jfsok/bidwatch/internal/models"
)

// Header is the fixed localized column set of the comparison report.
var Header = []string{
	"招标编号", "甲方", "项目名称", "公告日期", "公告链接",
	"标的名称", "标包名称", "最高限价(万元)", "中标公司", "中标价格(万元)",
}

var numberRe = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// isNumber reports whether s is a plain integer or decimal, optionally
// signed. Placeholder text like "面谈" or "N/A" fails and excludes the
// pairing from the report.
func isNumber(s string) bool {
	return numberRe.MatchString(s)
}

// Rows joins each record's award summary against its reconciled max-price
// table and flattens the matches into report rows (header excluded). A
// summary entry pairs with a price entry when the package names are equal
// and both prices are numeric; unmatched or non-numeric entries produce no
// row. Records whose stored JSON no longer parses are logged and skipped.
func Rows(records []models.BiddingRecord) [][]string {
	var rows [][]string
	for _, record := range records {
		if record.Summary == nil || record.Price == nil {
			continue
		}

		summary, err := ai.ParseAwardSummary(*record.Summary)
		if err != nil {
			log.Printf("Skipping %s: bad summary JSON: %v", record.URL, err)
			continue
		}

		var prices []extract.PriceRecord
		if err := json.Unmarshal([]byte(*record.Price), &prices); err != nil {
			log.Printf("Skipping %s: bad price JSON: %v", record.URL, err)
			continue
		}

		for _, entry := range summary.Entries {
			bid := entry.BidPrice.String()
			for _, price := range prices {
				if price.Package != entry.Package {
					continue
				}
				if !isNumber(bid) || !isNumber(price.Price) {
					continue
				}
				rows = append(rows, []string{
					summary.Code,
					record.IssuingParty,
					record.Project,
					record.CreateDate,
					record.URL,
					entry.Subject,
					entry.Package,
					price.Price,
					entry.Candidate,
					bid,
				})
			}
		}
	}
	return rows
}

// WriteCSV emits the full comparison report, header first, UTF-8 and
// comma-delimited.
func WriteCSV(w io.Writer, records []models.BiddingRecord) (int, error) {
	rows := Rows(records)

	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return 0, fmt.Errorf("write row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("flush csv: %w", err)
	}
	return len(rows), nil
}
