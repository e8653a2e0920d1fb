package registry

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/store/memory"
)

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

func date(value string) time.Time {
	parsed, err := time.Parse("2006-01-02", value)
	if err != nil {
		panic(err)
	}
	return parsed.UTC()
}

func dec(value string) decimal.Decimal {
	parsed, err := decimal.NewFromString(value)
	if err != nil {
		panic(err)
	}
	return parsed
}

func parsedInvoice(identifier string, docDate time.Time, total string) domain.ParsedInvoice {
	return domain.ParsedInvoice{
		Identifier:  identifier,
		Date:        docDate,
		TotalAmount: dec(total),
		Items: []domain.ParsedItem{
			{Code: "BEEF-001", Quantity: dec("10"), UnitPrice: dec("2.50")},
		},
	}
}

func TestCheckForDuplicateNewDocument(t *testing.T) {
	reg := New(memory.New(), testLogger())
	parsed := parsedInvoice("INV-1000", date("2026-08-01"), "25.00")

	check, err := reg.CheckForDuplicate(context.Background(), parsed.Identifier, []byte("pdf bytes"), &parsed)
	if err != nil {
		t.Fatalf("CheckForDuplicate: %v", err)
	}
	if check.IsDuplicate {
		t.Fatalf("fresh document flagged as duplicate: %+v", check)
	}
}

func TestDuplicateByInvoiceNumber(t *testing.T) {
	reg := New(memory.New(), testLogger())
	ctx := context.Background()
	parsed := parsedInvoice("INV-1001", date("2026-08-01"), "25.00")

	if _, err := reg.MarkAsProcessed(ctx, parsed, "/inbox/a.pdf", []byte("pdf"), "jordan", nil); err != nil {
		t.Fatalf("MarkAsProcessed: %v", err)
	}

	// Re-submission with different bytes and different extracted content:
	// the identifier alone must catch it, case-insensitively.
	check, err := reg.CheckForDuplicate(ctx, "  inv-1001 ", nil, nil)
	if err != nil {
		t.Fatalf("CheckForDuplicate: %v", err)
	}
	if !check.IsDuplicate || check.Method != domain.DuplicateByInvoiceNumber {
		t.Fatalf("expected INVOICE_NUMBER match, got %+v", check)
	}
	if check.Matched == nil || check.Matched.Identifier != "INV-1001" {
		t.Errorf("matched document missing: %+v", check.Matched)
	}
}

func TestDuplicateByFileHash(t *testing.T) {
	reg := New(memory.New(), testLogger())
	ctx := context.Background()
	fileBytes := []byte("the same pdf bytes")

	parsed := parsedInvoice("INV-1002", date("2026-08-01"), "25.00")
	if _, err := reg.MarkAsProcessed(ctx, parsed, "/inbox/a.pdf", fileBytes, "jordan", nil); err != nil {
		t.Fatalf("MarkAsProcessed: %v", err)
	}

	// Same bytes under a different claimed identifier.
	check, err := reg.CheckForDuplicate(ctx, "INV-9999", fileBytes, nil)
	if err != nil {
		t.Fatalf("CheckForDuplicate: %v", err)
	}
	if !check.IsDuplicate || check.Method != domain.DuplicateByFileHash {
		t.Fatalf("expected FILE_HASH match, got %+v", check)
	}
}

func TestDuplicateByContentFingerprint(t *testing.T) {
	reg := New(memory.New(), testLogger())
	ctx := context.Background()

	parsed := parsedInvoice("INV-1003", date("2026-08-01"), "25.00")
	if _, err := reg.MarkAsProcessed(ctx, parsed, "/inbox/a.pdf", []byte("original scan"), "jordan", nil); err != nil {
		t.Fatalf("MarkAsProcessed: %v", err)
	}

	// A re-scan of the same paper invoice: different bytes, identical
	// extracted content, identifier mangled by OCR casing.
	rescanned := parsed
	rescanned.Identifier = "inv-1003"
	check, err := reg.CheckForDuplicate(ctx, "", []byte("second scan, new bytes"), &rescanned)
	if err != nil {
		t.Fatalf("CheckForDuplicate: %v", err)
	}
	if !check.IsDuplicate || check.Method != domain.DuplicateByFingerprint {
		t.Fatalf("expected CONTENT_FINGERPRINT match, got %+v", check)
	}
}

func TestDuplicateByDateAmountCarriesWarning(t *testing.T) {
	reg := New(memory.New(), testLogger())
	ctx := context.Background()

	parsed := parsedInvoice("INV-1004", date("2026-08-01"), "100.00")
	if _, err := reg.MarkAsProcessed(ctx, parsed, "/inbox/a.pdf", nil, "jordan", nil); err != nil {
		t.Fatalf("MarkAsProcessed: %v", err)
	}

	// Different identifier and items, same date, total within a cent.
	other := domain.ParsedInvoice{
		Identifier:  "INV-1005",
		Date:        date("2026-08-01"),
		TotalAmount: dec("100.01"),
		Items: []domain.ParsedItem{
			{Code: "MILK-002", Quantity: dec("2"), UnitPrice: dec("50.005")},
		},
	}
	check, err := reg.CheckForDuplicate(ctx, other.Identifier, nil, &other)
	if err != nil {
		t.Fatalf("CheckForDuplicate: %v", err)
	}
	if !check.IsDuplicate || check.Method != domain.DuplicateByDateAmount {
		t.Fatalf("expected DATE_AMOUNT match, got %+v", check)
	}
	warned := false
	for _, reason := range check.Reasons {
		if strings.HasPrefix(reason, "warning:") {
			warned = true
		}
	}
	if !warned {
		t.Errorf("date+amount match must carry a warning reason: %v", check.Reasons)
	}
}

func TestDateAmountOutsideTolerance(t *testing.T) {
	reg := New(memory.New(), testLogger())
	ctx := context.Background()

	parsed := parsedInvoice("INV-1006", date("2026-08-01"), "100.00")
	if _, err := reg.MarkAsProcessed(ctx, parsed, "", nil, "jordan", nil); err != nil {
		t.Fatalf("MarkAsProcessed: %v", err)
	}

	other := parsedInvoice("INV-1007", date("2026-08-01"), "100.02")
	other.Items = []domain.ParsedItem{{Code: "X", Quantity: dec("1"), UnitPrice: dec("100.02")}}
	check, err := reg.CheckForDuplicate(ctx, other.Identifier, nil, &other)
	if err != nil {
		t.Fatalf("CheckForDuplicate: %v", err)
	}
	if check.IsDuplicate {
		t.Fatalf("two cents apart must not match: %+v", check)
	}
}

func TestGetStats(t *testing.T) {
	reg := New(memory.New(), testLogger())
	ctx := context.Background()

	parsed := parsedInvoice("INV-1008", date("2026-08-01"), "25.00")
	if _, err := reg.MarkAsProcessed(ctx, parsed, "", nil, "jordan", nil); err != nil {
		t.Fatalf("MarkAsProcessed: %v", err)
	}
	reg.LogDuplicateAttempt(ctx, domain.DuplicateAttempt{
		Identifier: "INV-1008", Method: domain.DuplicateByInvoiceNumber,
	})
	reg.LogDuplicateAttempt(ctx, domain.DuplicateAttempt{
		Identifier: "INV-1008", Method: domain.DuplicateByFileHash,
	})

	stats, err := reg.GetStats(ctx)
	if err != nil {
		t.Fatalf("GetStats: %v", err)
	}
	if stats.AcceptedDocuments != 1 {
		t.Errorf("accepted = %d, want 1", stats.AcceptedDocuments)
	}
	if stats.TotalAttempts != 2 {
		t.Errorf("attempts = %d, want 2", stats.TotalAttempts)
	}
	if stats.AttemptsByMethod[domain.DuplicateByInvoiceNumber] != 1 {
		t.Errorf("by method = %+v", stats.AttemptsByMethod)
	}
}
