package extract

import (
	"errors"
	"reflect"
	"testing"
)

func TestClassify_ProjectsRoleColumns(t *testing.T) {
	table := Table{
		{"序号", "标的", "标包名称", "数量", "最高限价(万元)"},
		{"1", "运维服务", "标包1", "2", "120.5"},
		{"2", "运维服务", "标包2", "1", "88"},
	}

	records, err := Classifier{}.Classify(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []PriceRecord{
		{Subject: "运维服务", Package: "标包1", Price: "120.5"},
		{Subject: "运维服务", Package: "标包2", Price: "88"},
	}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("expected %v, got %v", want, records)
	}
}

func TestClassify_MissingRoleRejectsWholeTable(t *testing.T) {
	tests := []struct {
		name   string
		header []string
	}{
		{"no subject", []string{"序号", "标包名称", "最高限价"}},
		{"no package", []string{"标的", "数量", "最高限价"}},
		{"no price", []string{"标的", "标包名称", "数量"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := Table{tt.header, {"a", "b", "c"}}
			records, err := Classifier{}.Classify(table)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(records) != 0 {
				t.Fatalf("rejected table must contribute nothing, got %v", records)
			}
		})
	}
}

func TestClassify_ShortDataRowFailsLoudly(t *testing.T) {
	table := Table{
		{"标的", "标包名称", "最高限价"},
		{"运维服务", "标包1"},
	}

	_, err := Classifier{}.Classify(table)
	var shapeErr *ErrRowShape
	if !errors.As(err, &shapeErr) {
		t.Fatalf("expected ErrRowShape, got %v", err)
	}
	if shapeErr.Row != 1 || shapeErr.Cells != 2 {
		t.Fatalf("unexpected error detail: %+v", shapeErr)
	}
}

func TestClassify_DuplicateHeaderPolicy(t *testing.T) {
	table := Table{
		{"标的", "标包名称", "最高限价(旧)", "最高限价(万元)"},
		{"服务", "标包1", "100", "200"},
	}

	last, err := Classifier{Duplicates: LastWins}.Classify(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if last[0].Price != "200" {
		t.Fatalf("LastWins expected price 200, got %q", last[0].Price)
	}

	first, err := Classifier{Duplicates: FirstWins}.Classify(table)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first[0].Price != "100" {
		t.Fatalf("FirstWins expected price 100, got %q", first[0].Price)
	}
}

func TestClassify_EmptyTable(t *testing.T) {
	records, err := Classifier{}.Classify(Table{})
	if err != nil || records != nil {
		t.Fatalf("empty table must yield nothing, got %v, %v", records, err)
	}
}

func TestParseBidPrice_EndToEnd(t *testing.T) {
	html := `
	<div class="Content">
	<p>some prose</p>
	<table><tr><td>里程碑</td><td>日期</td></tr><tr><td>开标</td><td>2024-12-01</td></tr></table>
	<table>
	<tr><td>标的</td><td>标包名称</td><td>最高限价</td></tr>
	<tr><td>A</td><td>P1</td><td>50</td></tr>
	</table>
	</div>`

	records, err := Classifier{}.ParseBidPrice(html)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []PriceRecord{{Subject: "A", Package: "P1", Price: "50"}}
	if !reflect.DeepEqual(records, want) {
		t.Fatalf("expected %v, got %v", want, records)
	}
}
