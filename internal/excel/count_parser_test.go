package excel

import (
	"bytes"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

func mustDecimal(t *testing.T, raw string) decimal.Decimal {
	t.Helper()
	value, err := decimal.NewFromString(raw)
	if err != nil {
		t.Fatalf("parse decimal %q: %v", raw, err)
	}
	return value
}

func buildSheet(t *testing.T, rows [][]string) *bytes.Reader {
	t.Helper()
	file := excelize.NewFile()
	defer file.Close()

	sheet := file.GetSheetName(0)
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatalf("cell name: %v", err)
		}
		values := make([]any, len(row))
		for j, v := range row {
			values[j] = v
		}
		if err := file.SetSheetRow(sheet, cell, &values); err != nil {
			t.Fatalf("set row %d: %v", i+1, err)
		}
	}

	var buf bytes.Buffer
	if err := file.Write(&buf); err != nil {
		t.Fatalf("write workbook: %v", err)
	}
	return bytes.NewReader(buf.Bytes())
}

func TestParseCountRows(t *testing.T) {
	reader := buildSheet(t, [][]string{
		{"Item Code", "Description", "Location", "Counted Qty", "Unit"},
		{"BEEF-001", "Ground beef", "Freezer A", "12.5", "case"},
		{"", "ignored blank code", "Freezer A", "1", "case"},
		{"MILK-002", "Whole milk", "Cooler 1", "7", "crate"},
	})

	rows, err := ParseCountRows(reader)
	if err != nil {
		t.Fatalf("ParseCountRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].ItemCode != "BEEF-001" || rows[0].Location != "Freezer A" {
		t.Errorf("unexpected first row: %+v", rows[0])
	}
	if !rows[0].CountedQty.Equal(mustDecimal(t, "12.5")) {
		t.Errorf("counted qty = %s, want 12.5", rows[0].CountedQty)
	}
	if rows[1].Unit != "crate" {
		t.Errorf("unit = %q, want crate", rows[1].Unit)
	}
}

func TestParseCountRowsHeaderAliases(t *testing.T) {
	reader := buildSheet(t, [][]string{
		{"SKU", "Bin", "Qty"},
		{"RICE-9", "Dry Storage", "40"},
	})

	rows, err := ParseCountRows(reader)
	if err != nil {
		t.Fatalf("ParseCountRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].ItemCode != "RICE-9" || rows[0].Location != "Dry Storage" {
		t.Errorf("aliases not resolved: %+v", rows[0])
	}
}

func TestParseCountRowsMissingColumn(t *testing.T) {
	reader := buildSheet(t, [][]string{
		{"Item Code", "Counted Qty"},
		{"BEEF-001", "3"},
	})

	if _, err := ParseCountRows(reader); err == nil || !strings.Contains(err.Error(), "location") {
		t.Fatalf("expected missing location error, got %v", err)
	}
}

func TestParseCountRowsBadQuantity(t *testing.T) {
	reader := buildSheet(t, [][]string{
		{"Item Code", "Location", "Counted Qty"},
		{"BEEF-001", "Freezer A", "not-a-number"},
	})

	if _, err := ParseCountRows(reader); err == nil || !strings.Contains(err.Error(), "row 2") {
		t.Fatalf("expected row 2 quantity error, got %v", err)
	}
}

func TestParseCountRowsNegativeQuantity(t *testing.T) {
	reader := buildSheet(t, [][]string{
		{"Item Code", "Location", "Counted Qty"},
		{"BEEF-001", "Freezer A", "-2"},
	})

	if _, err := ParseCountRows(reader); err == nil {
		t.Fatal("expected negative quantity to be rejected")
	}
}
