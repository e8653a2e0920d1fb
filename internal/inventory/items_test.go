package inventory

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/auth"
	"github.com/Neuropilotai/inventory-backend/internal/domain"
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

func newService(t *testing.T, authorizer auth.Authorizer) (*Service, *memory.Store) {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	st := memory.New()
	return New(st, authorizer, log), st
}

func seed(t *testing.T, st *memory.Store, identifier string, docDate time.Time, codes ...string) {
	t.Helper()
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
	if _, err := st.InsertDocument(context.Background(), domain.Document{
		Identifier:   identifier,
		DocumentDate: docDate,
	}, items); err != nil {
		t.Fatalf("seed %s: %v", identifier, err)
	}
}

func TestAssignLocationRequiresLocation(t *testing.T) {
	svc, st := newService(t, auth.AllowAll{})
	seed(t, st, "INV-1", date("2026-08-01"), "BEEF-001")

	if _, err := svc.AssignLocation(context.Background(), "INV-1", "BEEF-001", "  ", "jordan"); err == nil {
		t.Fatal("expected error for blank location")
	}
}

func TestLockUnlockRoundTrip(t *testing.T) {
	authorizer := auth.NewStaticAuthorizer(map[string]string{"supervisor": "s3cret"})
	svc, st := newService(t, authorizer)
	ctx := context.Background()

	seed(t, st, "INV-2", date("2026-08-20"), "BEEF-001", "MILK-002")
	if _, err := svc.BulkAssignLocation(ctx, "INV-2", "Freezer A", "jordan"); err != nil {
		t.Fatal(err)
	}

	locked, err := svc.Lock(ctx, date("2026-08-15"), "supervisor", "after cutoff")
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if locked != 2 {
		t.Fatalf("locked = %d, want 2", locked)
	}

	// Wrong password: refused, nothing unlocked.
	_, err = svc.Unlock(ctx, store.UnlockSelector{InvoiceNumber: "INV-2"}, "supervisor", "wrong")
	var authErr *domain.AuthorizationError
	if !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError, got %v", err)
	}
	breakdown, _ := svc.StatusBreakdown(ctx)
	if breakdown[domain.StatusLocked] != 2 {
		t.Fatalf("refused unlock changed state: %+v", breakdown)
	}

	// Unknown actor: refused even with a matching password value.
	if _, err := svc.Unlock(ctx, store.UnlockSelector{InvoiceNumber: "INV-2"}, "intruder", "s3cret"); !errors.As(err, &authErr) {
		t.Fatalf("expected AuthorizationError for unknown actor, got %v", err)
	}

	unlocked, err := svc.Unlock(ctx, store.UnlockSelector{InvoiceNumber: "INV-2"}, "supervisor", "s3cret")
	if err != nil {
		t.Fatalf("Unlock: %v", err)
	}
	if unlocked != 2 {
		t.Fatalf("unlocked = %d, want 2", unlocked)
	}
	breakdown, _ = svc.StatusBreakdown(ctx)
	if breakdown[domain.StatusPlaced] != 2 {
		t.Errorf("unlocked items not PLACED: %+v", breakdown)
	}
}

func TestUnlockRequiresSelector(t *testing.T) {
	svc, _ := newService(t, auth.AllowAll{})
	if _, err := svc.Unlock(context.Background(), store.UnlockSelector{}, "jordan", ""); err == nil {
		t.Fatal("expected error for empty selector")
	}
}

func TestStatusMonotonicity(t *testing.T) {
	svc, st := newService(t, auth.AllowAll{})
	ctx := context.Background()

	seed(t, st, "INV-3", date("2026-08-01"), "BEEF-001")
	if _, err := svc.AssignLocation(ctx, "INV-3", "BEEF-001", "Freezer A", "jordan"); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.MarkReadyToCount(ctx, date("2026-08-15")); err != nil {
		t.Fatal(err)
	}

	// READY_TO_COUNT cannot be re-placed.
	_, err := svc.AssignLocation(ctx, "INV-3", "BEEF-001", "Freezer B", "jordan")
	var precondition *domain.PreconditionFailedError
	if !errors.As(err, &precondition) {
		t.Fatalf("expected PreconditionFailedError, got %v", err)
	}

	items, _ := svc.ListItems(ctx, store.ItemFilter{InvoiceNumber: "INV-3"})
	if len(items) != 1 || items[0].Status != domain.StatusReadyToCount {
		t.Fatalf("status moved backwards: %+v", items)
	}
	if items[0].Location == nil || *items[0].Location != "Freezer A" {
		t.Errorf("location overwritten: %+v", items[0].Location)
	}
}
