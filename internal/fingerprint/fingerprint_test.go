package fingerprint

import (
	"bytes"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
)

func sampleInvoice() domain.ParsedInvoice {
	return domain.ParsedInvoice{
		Identifier:  "INV-0001",
		Date:        time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC),
		TotalAmount: decimal.RequireFromString("100.00"),
		Items: []domain.ParsedItem{
			{Code: "GFS-1001", Quantity: decimal.NewFromInt(4), UnitPrice: decimal.RequireFromString("12.50")},
			{Code: "GFS-1002", Quantity: decimal.NewFromInt(2), UnitPrice: decimal.RequireFromString("25.00")},
		},
	}
}

func TestFileHashMatchesBytesHelper(t *testing.T) {
	data := []byte("%PDF-1.4 fake invoice body")

	fromReader, err := FileHash(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("FileHash: %v", err)
	}
	if fromReader != FileHashBytes(data) {
		t.Errorf("reader and bytes digests differ: %s vs %s", fromReader, FileHashBytes(data))
	}
	if len(fromReader) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(fromReader))
	}
}

func TestFileHashDiffersForDifferentBytes(t *testing.T) {
	a := FileHashBytes([]byte("invoice A"))
	b := FileHashBytes([]byte("invoice B"))
	if a == b {
		t.Errorf("distinct payloads hashed identically: %s", a)
	}
}

func TestContentFingerprintDeterministic(t *testing.T) {
	first := ContentFingerprint(sampleInvoice())
	second := ContentFingerprint(sampleInvoice())
	if first != second {
		t.Errorf("fingerprint not deterministic: %s vs %s", first, second)
	}
	if len(first) != 32 {
		t.Errorf("expected 32 hex chars, got %d", len(first))
	}
}

func TestContentFingerprintNormalizesIdentifier(t *testing.T) {
	inv := sampleInvoice()
	inv.Identifier = "  inv-0001 "
	if ContentFingerprint(inv) != ContentFingerprint(sampleInvoice()) {
		t.Error("identifier whitespace/case should not change the fingerprint")
	}
}

func TestContentFingerprintIgnoresItemsBeyondSample(t *testing.T) {
	base := sampleInvoice()
	extra := base
	extra.Items = append([]domain.ParsedItem{}, base.Items...)
	extra.Items = append(extra.Items,
		domain.ParsedItem{Code: "GFS-1003", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(5)},
		domain.ParsedItem{Code: "GFS-1004", Quantity: decimal.NewFromInt(9), UnitPrice: decimal.NewFromInt(3)},
	)

	// Item count participates, so the digests must differ...
	if ContentFingerprint(base) == ContentFingerprint(extra) {
		t.Error("item count change should change the fingerprint")
	}

	// ...but a fourth item's details beyond the 3-item sample must not.
	variant := extra
	variant.Items = append([]domain.ParsedItem{}, extra.Items...)
	variant.Items[3].UnitPrice = decimal.NewFromInt(999)
	if ContentFingerprint(extra) != ContentFingerprint(variant) {
		t.Error("details past the sampled items should not change the fingerprint")
	}
}

func TestContentFingerprintSensitiveToCoreFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.ParsedInvoice)
	}{
		{"date", func(inv *domain.ParsedInvoice) { inv.Date = inv.Date.AddDate(0, 0, 1) }},
		{"total", func(inv *domain.ParsedInvoice) { inv.TotalAmount = decimal.RequireFromString("100.01") }},
		{"first item qty", func(inv *domain.ParsedInvoice) { inv.Items[0].Quantity = decimal.NewFromInt(5) }},
		{"first item price", func(inv *domain.ParsedInvoice) { inv.Items[0].UnitPrice = decimal.RequireFromString("12.51") }},
	}
	base := ContentFingerprint(sampleInvoice())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := sampleInvoice()
			tt.mutate(&inv)
			if ContentFingerprint(inv) == base {
				t.Errorf("changing %s should change the fingerprint", tt.name)
			}
		})
	}
}
