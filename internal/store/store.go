// Package store defines the persistence boundary of the core. Two
// implementations exist: repository (Postgres, pgx) and store/memory
// (mutex-guarded, used by tests and local development). Every method that
// changes item status must apply its guard atomically; multi-row
// transitions are all-or-nothing.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
)

type ItemFilter struct {
	InvoiceNumber string
	ItemCode      string
	Location      string
	Status        domain.ItemStatus
	Limit         int
	Offset        int
}

// UnlockSelector names the locked rows an unlock applies to. Zero-value
// fields are ignored; at least one must be set.
type UnlockSelector struct {
	InvoiceNumber string
	ItemCode      string
	AfterDate     *time.Time
}

func (s UnlockSelector) Empty() bool {
	return s.InvoiceNumber == "" && s.ItemCode == "" && s.AfterDate == nil
}

type DocumentStore interface {
	// InsertDocument writes one accepted document and, when items is
	// non-empty, its line items in the same transaction. Returns
	// domain.ErrDuplicateKey on an identifier or file-hash collision.
	InsertDocument(ctx context.Context, doc domain.Document, items []domain.InvoiceItem) (domain.Document, error)

	GetDocumentByIdentifier(ctx context.Context, identifier string) (*domain.Document, error)
	GetDocumentByFileHash(ctx context.Context, fileHash string) (*domain.Document, error)
	GetDocumentByFingerprint(ctx context.Context, fp string) (*domain.Document, error)

	// FindDocumentByDateAmount returns the first document on the given
	// date whose total is within tolerance of total.
	FindDocumentByDateAmount(ctx context.Context, date time.Time, total, tolerance decimal.Decimal) (*domain.Document, error)

	GetDocumentsByIdentifiers(ctx context.Context, identifiers []string) ([]domain.Document, error)

	// LastDocumentBefore returns the most recently dated document on or
	// before cutoff (ties broken by processing order).
	LastDocumentBefore(ctx context.Context, cutoff time.Time) (*domain.Document, error)

	CountDocuments(ctx context.Context) (int, error)

	InsertDuplicateAttempt(ctx context.Context, attempt domain.DuplicateAttempt) error
	CountAttemptsByMethod(ctx context.Context) (map[domain.DuplicateMethod]int, error)
}

type ItemStore interface {
	ListItems(ctx context.Context, filter ItemFilter) ([]domain.InvoiceItem, error)

	// AssignLocation moves one PENDING_PLACEMENT item to PLACED and
	// records the assignment audit row. The status check and update are
	// one atomic operation.
	AssignLocation(ctx context.Context, invoiceNumber, itemCode, location, actor string) (domain.InvoiceItem, error)

	// BulkAssignLocation places every PENDING_PLACEMENT item of one
	// invoice in a single transaction, returning rows affected.
	BulkAssignLocation(ctx context.Context, invoiceNumber, location, actor string) (int, error)

	// MarkReadyToCount transitions PLACED items dated on or before cutoff
	// to READY_TO_COUNT, returning rows affected.
	MarkReadyToCount(ctx context.Context, cutoff time.Time) (int, error)

	// PartitionCounts reports how many countable items fall on each side
	// of the cutoff date.
	PartitionCounts(ctx context.Context, cutoff time.Time) (included, excluded int, err error)

	// LockAfter locks every not-yet-locked item dated strictly after the
	// given date, recording lock metadata. Returns rows affected.
	LockAfter(ctx context.Context, after time.Time, actor, reason string) (int, error)

	// Unlock restores LOCKED rows matching the selector to PLACED,
	// recording unlock metadata. Returns rows affected.
	Unlock(ctx context.Context, sel UnlockSelector, actor string) (int, error)

	// ExpectedQuantities aggregates countable quantity per (item,
	// location), optionally bounded by cutoff date and location.
	ExpectedQuantities(ctx context.Context, cutoff *time.Time, location string) ([]domain.ExpectedItem, error)

	// ExpectedForItem returns the countable quantity and the most recent
	// unit price for one (item, location).
	ExpectedForItem(ctx context.Context, itemCode, location string) (qty, unitPrice decimal.Decimal, err error)

	ListLocationAssignments(ctx context.Context, invoiceNumber string) ([]domain.LocationAssignment, error)

	// CountItemsByStatus supports aggregate stats, including the
	// externally produced CONSUMED state.
	CountItemsByStatus(ctx context.Context) (map[domain.ItemStatus]int, error)
}

type CountStore interface {
	CreateCount(ctx context.Context, count domain.PhysicalCount) (domain.PhysicalCount, error)
	GetCount(ctx context.Context, id uuid.UUID) (*domain.PhysicalCount, error)
	InsertCountRecord(ctx context.Context, rec domain.CountRecord) (domain.CountRecord, error)
	ListCountRecords(ctx context.Context, countID uuid.UUID) ([]domain.CountRecord, error)

	// CompleteCount transitions every countable item referenced by the
	// count's records to COUNTED and freezes summary totals onto the
	// header, all in one transaction.
	CompleteCount(ctx context.Context, countID uuid.UUID) (domain.PhysicalCount, error)

	LatestCompletedCount(ctx context.Context) (*domain.PhysicalCount, error)
}

type SnapshotStore interface {
	// InsertSnapshot writes the snapshot header and its point-in-time
	// line items together; the copies never reference live rows.
	InsertSnapshot(ctx context.Context, snap domain.Snapshot, items []domain.SnapshotItem) (domain.Snapshot, error)
	GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error)
	ListSnapshotItems(ctx context.Context, id uuid.UUID) ([]domain.SnapshotItem, error)
}

type CutoffStore interface {
	SaveCutoffConfig(ctx context.Context, cfg domain.CutoffConfig) (domain.CutoffConfig, error)
	LatestCutoffConfig(ctx context.Context) (*domain.CutoffConfig, error)
}

// Store is the full persistence surface consumed by the services.
type Store interface {
	DocumentStore
	ItemStore
	CountStore
	SnapshotStore
	CutoffStore
}
