package extract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Table is the cell grid of one parsed <table>, header row first. After
// normalization every row has at least the preceding row's column count
// restored where horizontal cell merging dropped leading cells.
type Table [][]string

// ExtractTables parses an HTML fragment and returns one Table per <table>
// element, in document order. A row with fewer cells than the row before it
// is left-padded with the leading cells of the previous row, which recovers
// values lost to rowspan/colspan merging in the source markup. The first row
// of a table is never padded. Parsing never fails: unparseable input or a
// table without rows yields an empty grid.
func ExtractTables(html string) []Table {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}

	var tables []Table
	doc.Find("table").Each(func(_ int, t *goquery.Selection) {
		var grid Table
		var prevRow []string
		t.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			tr.Find("td").Each(func(_ int, td *goquery.Selection) {
				cells = append(cells, td.Text())
			})
			if prevRow != nil && len(prevRow) > len(cells) {
				leading := make([]string, 0, len(prevRow))
				leading = append(leading, prevRow[:len(prevRow)-len(cells)]...)
				cells = append(leading, cells...)
			}
			grid = append(grid, cells)
			// The reference row advances even when no padding was applied.
			prevRow = cells
		})
		tables = append(tables, grid)
	})

	return tables
}
