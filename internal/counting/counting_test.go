package counting

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/store/memory"
)

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

func newService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := memory.New()
	return New(st, st, st, st, log), st
}

func seedPlaced(t *testing.T, st *memory.Store, identifier string, docDate time.Time, location string, lines ...domain.InvoiceItem) {
	t.Helper()
	ctx := context.Background()
	total := decimal.Zero
	for i := range lines {
		lines[i].InvoiceNumber = identifier
		lines[i].DocumentDate = docDate
		lines[i].Status = domain.StatusPendingPlacement
		lines[i].LineTotal = lines[i].Quantity.Mul(lines[i].UnitPrice)
		total = total.Add(lines[i].LineTotal)
	}
	if _, err := st.InsertDocument(ctx, domain.Document{
		Identifier:   identifier,
		DocumentDate: docDate,
		TotalAmount:  total,
		ItemCount:    len(lines),
	}, lines); err != nil {
		t.Fatalf("seed %s: %v", identifier, err)
	}
	if _, err := st.BulkAssignLocation(ctx, identifier, location, "jordan"); err != nil {
		t.Fatalf("place %s: %v", identifier, err)
	}
}

func line(code, qty, price string) domain.InvoiceItem {
	return domain.InvoiceItem{ItemCode: code, Quantity: dec(qty), UnitPrice: dec(price), Unit: "case"}
}

func TestRecordCountVarianceArithmetic(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	seedPlaced(t, st, "INV-1", date("2026-08-01"), "Freezer A", line("BEEF-001", "10", "2.50"))

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatalf("OpenCount: %v", err)
	}

	rec, err := svc.RecordCount(ctx, count.ID, "BEEF-001", "Freezer A", dec("7"), "jordan")
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if !rec.ExpectedQty.Equal(dec("10")) {
		t.Errorf("expected qty = %s, want 10", rec.ExpectedQty)
	}
	if !rec.Variance.Equal(dec("-3")) {
		t.Errorf("variance = %s, want -3", rec.Variance)
	}
	if !rec.VarianceValue.Equal(dec("-7.50")) {
		t.Errorf("variance value = %s, want -7.50", rec.VarianceValue)
	}
	if !rec.RequiresRecount {
		t.Error("30% variance must require a recount")
	}
}

func TestRecordCountSmallVarianceNoRecount(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	seedPlaced(t, st, "INV-1", date("2026-08-01"), "Freezer A", line("BEEF-001", "100", "2.50"))

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := svc.RecordCount(ctx, count.ID, "BEEF-001", "Freezer A", dec("97"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	if rec.RequiresRecount {
		t.Error("3% variance must not require a recount")
	}
}

func TestRecordCountZeroExpected(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	// Known item code but nothing countable at this location.
	seedPlaced(t, st, "INV-1", date("2026-08-01"), "Freezer A", line("BEEF-001", "10", "2.50"))

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	rec, err := svc.RecordCount(ctx, count.ID, "BEEF-001", "Cooler 9", dec("2"), "jordan")
	if err != nil {
		t.Fatalf("RecordCount: %v", err)
	}
	if !rec.ExpectedQty.IsZero() {
		t.Errorf("expected qty = %s, want 0", rec.ExpectedQty)
	}
	if !rec.RequiresRecount {
		t.Error("any variance against zero expected must flag a recount")
	}
}

func TestRecordCountUnknownItem(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordCount(ctx, count.ID, "GHOST-1", "Freezer A", dec("2"), "jordan"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestImportCountsReportsBadRows(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	seedPlaced(t, st, "INV-1", date("2026-08-01"), "Freezer A", line("BEEF-001", "10", "2.50"))

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatal(err)
	}

	rows := []domain.CountImportRow{
		{ItemCode: "BEEF-001", Location: "Freezer A", CountedQty: dec("10")},
		{ItemCode: "GHOST-1", Location: "Freezer A", CountedQty: dec("2")},
		{ItemCode: "", Location: "Freezer A", CountedQty: dec("1")},
	}
	report, err := svc.ImportCounts(ctx, count.ID, rows, "jordan", false)
	if err != nil {
		t.Fatalf("ImportCounts: %v", err)
	}
	if report.Imported != 1 || report.Skipped != 2 {
		t.Fatalf("report = %+v, want 1 imported / 2 skipped", report)
	}
	if len(report.Errors) != 2 {
		t.Fatalf("errors = %d, want 2", len(report.Errors))
	}
	for _, rowErr := range report.Errors {
		if rowErr.Row == 0 || rowErr.Message == "" {
			t.Errorf("row error missing detail: %+v", rowErr)
		}
	}
}

func TestImportCountsStrictAborts(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	seedPlaced(t, st, "INV-1", date("2026-08-01"), "Freezer A", line("BEEF-001", "10", "2.50"))

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	rows := []domain.CountImportRow{
		{ItemCode: "GHOST-1", Location: "Freezer A", CountedQty: dec("2")},
		{ItemCode: "BEEF-001", Location: "Freezer A", CountedQty: dec("10")},
	}
	if _, err := svc.ImportCounts(ctx, count.ID, rows, "jordan", true); err == nil {
		t.Fatal("strict mode must abort on the first bad row")
	}

	records, _ := svc.ListCountRecords(ctx, count.ID)
	if len(records) != 0 {
		t.Errorf("strict abort recorded %d rows", len(records))
	}
}

func TestSnapshotIsImmutable(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	seedPlaced(t, st, "INV-1", date("2026-08-01"), "Freezer A", line("BEEF-001", "10", "2.50"))

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordCount(ctx, count.ID, "BEEF-001", "Freezer A", dec("10"), "jordan"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CompletePhysicalCount(ctx, count.ID); err != nil {
		t.Fatal(err)
	}

	snap, err := svc.CreateSnapshot(ctx, "August month end", date("2026-08-31"), "", "jordan")
	if err != nil {
		t.Fatalf("CreateSnapshot: %v", err)
	}
	if snap.LastInvoiceNumber != "INV-1" {
		t.Errorf("last invoice = %q, want INV-1", snap.LastInvoiceNumber)
	}
	if !snap.CountedValue.Equal(dec("25")) {
		t.Errorf("counted value = %s, want 25", snap.CountedValue)
	}

	before, err := svc.ListSnapshotItems(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(before) != 1 {
		t.Fatalf("snapshot items = %d, want 1", len(before))
	}

	// Mutate live inventory after the snapshot; the snapshot must not move.
	seedPlaced(t, st, "INV-2", date("2026-09-02"), "Freezer A", line("BEEF-001", "99", "3.00"))

	after, err := svc.GetSnapshot(ctx, snap.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !after.CountedValue.Equal(snap.CountedValue) || after.ItemCount != snap.ItemCount {
		t.Errorf("snapshot changed after live mutation: %+v vs %+v", after, snap)
	}
	items, _ := svc.ListSnapshotItems(ctx, snap.ID)
	if len(items) != 1 || !items[0].CountedQty.Equal(dec("10")) {
		t.Errorf("snapshot items changed: %+v", items)
	}
}

func TestSnapshotRequiresCompletedCount(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.CreateSnapshot(context.Background(), "empty", date("2026-08-31"), "", "jordan"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound without a completed count, got %v", err)
	}
}

func TestReportFromSnapshotAddsSelectedDocuments(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()
	seedPlaced(t, st, "INV-1", date("2026-08-01"), "Freezer A", line("BEEF-001", "10", "2.50"))

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.RecordCount(ctx, count.ID, "BEEF-001", "Freezer A", dec("10"), "jordan"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CompletePhysicalCount(ctx, count.ID); err != nil {
		t.Fatal(err)
	}
	snap, err := svc.CreateSnapshot(ctx, "August month end", date("2026-08-31"), "", "jordan")
	if err != nil {
		t.Fatal(err)
	}

	// Two later deliveries; the operator picks only one.
	seedPlaced(t, st, "INV-2", date("2026-09-01"), "Freezer A", line("MILK-002", "4", "6.00"))
	seedPlaced(t, st, "INV-3", date("2026-09-02"), "Freezer A", line("RICE-003", "2", "12.00"))

	report, err := svc.ReportFromSnapshot(ctx, snap.ID, []string{"INV-2"})
	if err != nil {
		t.Fatalf("ReportFromSnapshot: %v", err)
	}
	if !report.BaselineValue.Equal(dec("25")) {
		t.Errorf("baseline = %s, want 25", report.BaselineValue)
	}
	if !report.AddedValue.Equal(dec("24")) {
		t.Errorf("added = %s, want 24", report.AddedValue)
	}
	if !report.TotalValue.Equal(dec("49")) {
		t.Errorf("total = %s, want 49", report.TotalValue)
	}
	if len(report.AddedDocuments) != 1 || report.AddedDocuments[0].Identifier != "INV-2" {
		t.Errorf("added documents = %+v", report.AddedDocuments)
	}

	// No selection: baseline only.
	bare, err := svc.ReportFromSnapshot(ctx, snap.ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !bare.TotalValue.Equal(bare.BaselineValue) {
		t.Errorf("unselected documents leaked into the report: %+v", bare)
	}
}

func TestMonthEndFlow(t *testing.T) {
	svc, st := newService(t)
	ctx := context.Background()

	seedPlaced(t, st, "INV-100", date("2026-08-05"), "Freezer A",
		line("BEEF-001", "10", "2.50"),
		line("MILK-002", "4", "6.00"),
	)
	seedPlaced(t, st, "INV-101", date("2026-08-12"), "Dry Storage", line("RICE-003", "20", "1.20"))

	// The count sheet covers every countable (item, location) pair.
	sheet, err := svc.GetItemsToCount(ctx, date("2026-08-31"), "")
	if err != nil {
		t.Fatal(err)
	}
	if len(sheet) != 3 {
		t.Fatalf("sheet lines = %d, want 3", len(sheet))
	}

	count, err := svc.OpenCount(ctx, date("2026-08-31"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	for _, expected := range sheet {
		if _, err := svc.RecordCount(ctx, count.ID, expected.ItemCode, expected.Location, expected.ExpectedQty, "jordan"); err != nil {
			t.Fatalf("RecordCount %s: %v", expected.ItemCode, err)
		}
	}

	completed, err := svc.CompletePhysicalCount(ctx, count.ID)
	if err != nil {
		t.Fatal(err)
	}
	if completed.RecordCount != 3 {
		t.Errorf("records = %d, want 3", completed.RecordCount)
	}
	// Everything counted exactly: variance is zero, values match.
	if !completed.TotalVarianceValue.IsZero() {
		t.Errorf("variance = %s, want 0", completed.TotalVarianceValue)
	}
	if !completed.TotalCountedValue.Equal(dec("73")) {
		t.Errorf("counted value = %s, want 73", completed.TotalCountedValue)
	}

	breakdown, _ := st.CountItemsByStatus(ctx)
	if breakdown[domain.StatusCounted] != 3 {
		t.Errorf("COUNTED = %d, want 3: %+v", breakdown[domain.StatusCounted], breakdown)
	}
}
