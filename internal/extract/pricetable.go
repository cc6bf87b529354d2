package extract

import (
	"fmt"
	"strings"
)

// Header prefixes that identify the three column roles in a max-price table.
const (
	subjectPrefix = "标的"
	packagePrefix = "标包名称"
	pricePrefix   = "最高限价"
)

// PriceRecord is one data row of a max-price table projected onto the three
// resolved column roles.
type PriceRecord struct {
	Subject string `json:"subject"`
	Package string `json:"package"`
	Price   string `json:"price"`
}

// DuplicatePolicy controls which occurrence wins when the same role prefix
// appears in more than one header cell.
type DuplicatePolicy int

const (
	// LastWins keeps the rightmost matching column. This is the inherited
	// behavior of the production sites observed so far.
	LastWins DuplicatePolicy = iota
	// FirstWins keeps the leftmost matching column.
	FirstWins
)

// ErrRowShape reports a data row that is too short to cover every resolved
// role column. It indicates corrupted extraction upstream and is never
// silently skipped.
type ErrRowShape struct {
	Row     int
	Cells   int
	NeedIdx int
}

func (e *ErrRowShape) Error() string {
	return fmt.Sprintf("table row %d has %d cells, role column %d out of range", e.Row, e.Cells, e.NeedIdx)
}

// Classifier resolves header column roles and projects data rows into
// PriceRecords. The zero value uses the LastWins duplicate policy.
type Classifier struct {
	Duplicates DuplicatePolicy
}

// Classify treats row 0 of t as the header and scans it once, left to right,
// for the subject / package / max-price role prefixes. If any role stays
// unresolved the table is not a price table and contributes nothing: the
// result is nil with no error. Otherwise every later row becomes one
// PriceRecord read positionally from the role columns; a row shorter than
// the rightmost role index fails hard with ErrRowShape.
func (c Classifier) Classify(t Table) ([]PriceRecord, error) {
	if len(t) == 0 {
		return nil, nil
	}

	subjectIdx, packageIdx, priceIdx := -1, -1, -1
	for i, cell := range t[0] {
		text := strings.TrimSpace(cell)
		switch {
		case strings.HasPrefix(text, packagePrefix):
			// 标包名称 is checked before 标的: both share no prefix, but the
			// order mirrors the specificity of the labels.
			if packageIdx == -1 || c.Duplicates == LastWins {
				packageIdx = i
			}
		case strings.HasPrefix(text, subjectPrefix):
			if subjectIdx == -1 || c.Duplicates == LastWins {
				subjectIdx = i
			}
		case strings.HasPrefix(text, pricePrefix):
			if priceIdx == -1 || c.Duplicates == LastWins {
				priceIdx = i
			}
		}
	}

	if subjectIdx == -1 || packageIdx == -1 || priceIdx == -1 {
		return nil, nil
	}

	maxIdx := subjectIdx
	if packageIdx > maxIdx {
		maxIdx = packageIdx
	}
	if priceIdx > maxIdx {
		maxIdx = priceIdx
	}

	var records []PriceRecord
	for i := 1; i < len(t); i++ {
		row := t[i]
		if len(row) <= maxIdx {
			return nil, &ErrRowShape{Row: i, Cells: len(row), NeedIdx: maxIdx}
		}
		records = append(records, PriceRecord{
			Subject: row[subjectIdx],
			Package: row[packageIdx],
			Price:   row[priceIdx],
		})
	}

	return records, nil
}

// ParseBidPrice extracts every table from the HTML fragment and concatenates
// the PriceRecords of the tables the classifier accepts. Rejected tables are
// skipped; a malformed data row inside an accepted table aborts with the row
// error.
func (c Classifier) ParseBidPrice(html string) ([]PriceRecord, error) {
	var records []PriceRecord
	for _, t := range ExtractTables(html) {
		recs, err := c.Classify(t)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}
