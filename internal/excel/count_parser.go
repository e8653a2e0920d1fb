// Package excel parses uploaded count sheets. Header matching is
// alias-based so sheets exported from different tools still import.
package excel

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
)

var headerAliases = map[string]string{
	"item_code":       "item_code",
	"item code":       "item_code",
	"item":            "item_code",
	"code":            "item_code",
	"product code":    "item_code",
	"sku":             "item_code",
	"description":     "description",
	"item name":       "description",
	"product":         "description",
	"location":        "location",
	"bin":             "location",
	"storage":         "location",
	"area":            "location",
	"counted_qty":     "counted_qty",
	"counted qty":     "counted_qty",
	"counted":         "counted_qty",
	"count":           "counted_qty",
	"qty counted":     "counted_qty",
	"quantity":        "counted_qty",
	"qty":             "counted_qty",
	"unit":            "unit",
	"uom":             "unit",
	"unit of measure": "unit",
}

// ParseCountRows reads the first sheet of an xlsx count sheet into
// normalized rows. Rows with a blank item code are skipped; a malformed
// quantity fails the whole parse so a partial sheet is never imported.
func ParseCountRows(reader io.Reader) ([]domain.CountImportRow, error) {
	file, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("open excel file: %w", err)
	}
	defer file.Close()

	sheets := file.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}

	rows, err := file.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet rows: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("excel file is empty")
	}

	colMap := mapColumns(rows[0])
	for _, required := range []string{"item_code", "location", "counted_qty"} {
		if _, ok := colMap[required]; !ok {
			return nil, fmt.Errorf("missing required column: %s", required)
		}
	}

	result := make([]domain.CountImportRow, 0, len(rows)-1)
	for index := 1; index < len(rows); index++ {
		cells := rows[index]
		code := strings.TrimSpace(readCell(cells, colMap["item_code"]))
		if code == "" {
			continue
		}

		location := strings.TrimSpace(readCell(cells, colMap["location"]))
		if location == "" {
			return nil, fmt.Errorf("row %d: location is empty", index+1)
		}

		qty, err := parseDecimal(readCell(cells, colMap["counted_qty"]))
		if err != nil {
			return nil, fmt.Errorf("row %d invalid counted_qty: %w", index+1, err)
		}

		row := domain.CountImportRow{
			ItemCode:   code,
			Location:   location,
			CountedQty: qty,
		}
		if idx, ok := colMap["description"]; ok {
			row.Description = strings.TrimSpace(readCell(cells, idx))
		}
		if idx, ok := colMap["unit"]; ok {
			row.Unit = strings.TrimSpace(readCell(cells, idx))
		}

		result = append(result, row)
	}

	if len(result) == 0 {
		return nil, fmt.Errorf("excel file has no valid data rows")
	}
	return result, nil
}

func mapColumns(header []string) map[string]int {
	mapped := make(map[string]int)
	for idx, col := range header {
		normalized := normalizeHeader(col)
		if normalized == "" {
			continue
		}
		canonical, ok := headerAliases[normalized]
		if !ok {
			continue
		}
		if _, exists := mapped[canonical]; !exists {
			mapped[canonical] = idx
		}
	}
	return mapped
}

func normalizeHeader(raw string) string {
	value := strings.TrimSpace(raw)
	value = strings.TrimPrefix(value, "\ufeff")
	value = strings.ToLower(value)
	value = strings.ReplaceAll(value, "_", " ")
	value = strings.Join(strings.Fields(value), " ")
	return value
}

func readCell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func parseDecimal(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return decimal.Zero, fmt.Errorf("value is empty")
	}
	parsed, err := decimal.NewFromString(strings.ReplaceAll(value, ",", ""))
	if err != nil {
		return decimal.Zero, fmt.Errorf("not a number")
	}
	if parsed.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative")
	}
	return parsed, nil
}
