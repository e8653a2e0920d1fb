package cutoff

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/auth"
	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/inventory"
	"github.com/Neuropilotai/inventory-backend/internal/store"
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

func newWorkflow(t *testing.T) (*Workflow, *memory.Store) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := memory.New()
	items := inventory.New(st, auth.NewStaticAuthorizer(map[string]string{"supervisor": "s3cret"}), log)
	return New(items, st, log), st
}

func seedPlaced(t *testing.T, st *memory.Store, identifier string, docDate time.Time, codes ...string) {
	t.Helper()
	ctx := context.Background()
	items := make([]domain.InvoiceItem, 0, len(codes))
	for _, code := range codes {
		items = append(items, domain.InvoiceItem{
			InvoiceNumber: identifier,
			ItemCode:      code,
			Quantity:      dec("10"),
			UnitPrice:     dec("2.50"),
			LineTotal:     dec("25.00"),
			Status:        domain.StatusPendingPlacement,
			DocumentDate:  docDate,
		})
	}
	if _, err := st.InsertDocument(ctx, domain.Document{
		Identifier:   identifier,
		DocumentDate: docDate,
	}, items); err != nil {
		t.Fatalf("seed %s: %v", identifier, err)
	}
	if _, err := st.BulkAssignLocation(ctx, identifier, "Freezer A", "jordan"); err != nil {
		t.Fatalf("place %s: %v", identifier, err)
	}
}

func TestPrepareCutoffPartitionsEveryCountableItem(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()

	seedPlaced(t, st, "INV-1", date("2026-08-01"), "BEEF-001", "MILK-002")
	seedPlaced(t, st, "INV-2", date("2026-08-10"), "RICE-003")
	seedPlaced(t, st, "INV-3", date("2026-08-20"), "OIL-004")

	cfg, err := wf.PrepareCutoff(ctx, date("2026-08-15"), "jordan")
	if err != nil {
		t.Fatalf("PrepareCutoff: %v", err)
	}
	if cfg.IncludedCount != 3 || cfg.ExcludedCount != 1 {
		t.Fatalf("partition = (%d, %d), want (3, 1)", cfg.IncludedCount, cfg.ExcludedCount)
	}
	if cfg.IncludedCount+cfg.ExcludedCount != 4 {
		t.Error("partition does not cover every countable item")
	}
	if cfg.Locked {
		t.Error("prepare must not lock")
	}

	breakdown, _ := st.CountItemsByStatus(ctx)
	if breakdown[domain.StatusReadyToCount] != 3 {
		t.Errorf("READY_TO_COUNT = %d, want 3", breakdown[domain.StatusReadyToCount])
	}
	if breakdown[domain.StatusPlaced] != 1 {
		t.Errorf("PLACED = %d, want 1", breakdown[domain.StatusPlaced])
	}
}

func TestPrepareCutoffIsIdempotent(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()
	seedPlaced(t, st, "INV-1", date("2026-08-01"), "BEEF-001")

	first, err := wf.PrepareCutoff(ctx, date("2026-08-15"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	second, err := wf.PrepareCutoff(ctx, date("2026-08-15"), "jordan")
	if err != nil {
		t.Fatal(err)
	}
	if first.IncludedCount != second.IncludedCount || first.ExcludedCount != second.ExcludedCount {
		t.Errorf("re-run changed the partition: %+v vs %+v", first, second)
	}
	if first.ID != second.ID {
		t.Errorf("re-run created a second config for the same date")
	}
}

func TestLockAfterCutoffAndUnlock(t *testing.T) {
	wf, st := newWorkflow(t)
	ctx := context.Background()

	seedPlaced(t, st, "INV-1", date("2026-08-01"), "BEEF-001")
	seedPlaced(t, st, "INV-2", date("2026-08-20"), "MILK-002")

	if _, err := wf.PrepareCutoff(ctx, date("2026-08-15"), "jordan"); err != nil {
		t.Fatal(err)
	}
	cfg, err := wf.LockAfterCutoff(ctx, date("2026-08-15"), "supervisor")
	if err != nil {
		t.Fatalf("LockAfterCutoff: %v", err)
	}
	if !cfg.Locked {
		t.Error("config not marked locked")
	}

	breakdown, _ := st.CountItemsByStatus(ctx)
	if breakdown[domain.StatusLocked] != 1 {
		t.Fatalf("LOCKED = %d, want 1", breakdown[domain.StatusLocked])
	}

	after := date("2026-08-15")
	unlocked, err := wf.Unlock(ctx, store.UnlockSelector{AfterDate: &after}, "supervisor", "s3cret")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if unlocked != 1 {
		t.Fatalf("unlocked = %d, want 1", unlocked)
	}

	latest, err := wf.CurrentConfig(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !latest.Locked {
		t.Errorf("unexpected current config: %+v", latest)
	}
}
