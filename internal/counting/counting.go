// Package counting reconciles physical counts against expected system
// quantities and captures immutable snapshots of the result.
package counting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

type Service struct {
	items     store.ItemStore
	counts    store.CountStore
	snapshots store.SnapshotStore
	documents store.DocumentStore
	log       *logrus.Logger
}

func New(items store.ItemStore, counts store.CountStore, snapshots store.SnapshotStore, documents store.DocumentStore, log *logrus.Logger) *Service {
	return &Service{
		items:     items,
		counts:    counts,
		snapshots: snapshots,
		documents: documents,
		log:       log,
	}
}

// GetItemsToCount aggregates expected quantity per (item, location) over
// countable items dated on or before the cutoff. This is the system side
// of variance.
func (s *Service) GetItemsToCount(ctx context.Context, cutoffDate time.Time, location string) ([]domain.ExpectedItem, error) {
	return s.items.ExpectedQuantities(ctx, &cutoffDate, location)
}

// OpenCount starts a counting event for the given date.
func (s *Service) OpenCount(ctx context.Context, countDate time.Time, actor string) (domain.PhysicalCount, error) {
	count, err := s.counts.CreateCount(ctx, domain.PhysicalCount{
		ID:        uuid.New(),
		CountDate: countDate,
		Status:    domain.CountOpen,
		CreatedBy: actor,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		return domain.PhysicalCount{}, fmt.Errorf("open count: %w", err)
	}
	return count, nil
}

func (s *Service) GetCount(ctx context.Context, countID uuid.UUID) (*domain.PhysicalCount, error) {
	return s.counts.GetCount(ctx, countID)
}

func (s *Service) ListCountRecords(ctx context.Context, countID uuid.UUID) ([]domain.CountRecord, error) {
	return s.counts.ListCountRecords(ctx, countID)
}

// RecordCount writes one immutable count record: expected quantity comes
// from countable items at (itemCode, location), variance is counted minus
// expected, and variance value uses the item's most recent unit price.
// Source item statuses are untouched; CompletePhysicalCount does that.
func (s *Service) RecordCount(ctx context.Context, countID uuid.UUID, itemCode, location string, countedQty decimal.Decimal, actor string) (domain.CountRecord, error) {
	itemCode = strings.TrimSpace(itemCode)
	if itemCode == "" {
		return domain.CountRecord{}, fmt.Errorf("item code is required")
	}

	expected, unitPrice, err := s.items.ExpectedForItem(ctx, itemCode, location)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.CountRecord{}, fmt.Errorf("record count: item %s: %w", itemCode, domain.ErrNotFound)
		}
		return domain.CountRecord{}, fmt.Errorf("record count: expected qty for %s: %w", itemCode, err)
	}

	variance := countedQty.Sub(expected)
	rec := domain.CountRecord{
		CountID:         countID,
		ItemCode:        itemCode,
		Location:        location,
		ExpectedQty:     expected,
		CountedQty:      countedQty,
		Variance:        variance,
		UnitPrice:       unitPrice,
		VarianceValue:   variance.Mul(unitPrice),
		RequiresRecount: requiresRecount(variance, expected),
		CountedBy:       actor,
		CreatedAt:       time.Now().UTC(),
	}
	inserted, err := s.counts.InsertCountRecord(ctx, rec)
	if err != nil {
		return domain.CountRecord{}, fmt.Errorf("record count for %s: %w", itemCode, err)
	}
	return inserted, nil
}

// requiresRecount is true when |variance| exceeds 5% of expected.
func requiresRecount(variance, expected decimal.Decimal) bool {
	if expected.IsZero() {
		return !variance.IsZero()
	}
	pct := variance.Div(expected).Mul(decimal.NewFromInt(100)).Abs()
	return pct.GreaterThan(domain.RecountThresholdPercent)
}

// ImportCounts validates and records a batch of normalized count rows.
// Unresolvable item codes and malformed quantities are reported per row,
// never silently dropped; the batch continues unless strict is set.
func (s *Service) ImportCounts(ctx context.Context, countID uuid.UUID, rows []domain.CountImportRow, actor string, strict bool) (domain.CountImportReport, error) {
	report := domain.CountImportReport{}
	for i, row := range rows {
		rowNum := i + 1
		if strings.TrimSpace(row.ItemCode) == "" {
			report.Skipped++
			report.Errors = append(report.Errors, domain.ValidationError{
				Row: rowNum, Field: "item_code", Message: "item code is empty",
			})
			if strict {
				return report, fmt.Errorf("import counts: row %d has no item code", rowNum)
			}
			continue
		}

		_, err := s.RecordCount(ctx, countID, row.ItemCode, row.Location, row.CountedQty, actor)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				report.Skipped++
				report.Errors = append(report.Errors, domain.ValidationError{
					Row: rowNum, Field: "item_code",
					Message: fmt.Sprintf("item code %s does not resolve to any invoice item", row.ItemCode),
				})
				if strict {
					return report, fmt.Errorf("import counts: row %d: unresolvable item code %s", rowNum, row.ItemCode)
				}
				continue
			}
			return report, fmt.Errorf("import counts: row %d: %w", rowNum, err)
		}
		report.Imported++
	}

	s.log.WithFields(logrus.Fields{
		"count_id": countID,
		"imported": report.Imported,
		"skipped":  report.Skipped,
	}).Info("count rows imported")
	return report, nil
}

// CompletePhysicalCount marks every item referenced by the count's
// records as COUNTED and freezes summary totals onto the header, all in
// one transaction. Partial completion is not a valid state.
func (s *Service) CompletePhysicalCount(ctx context.Context, countID uuid.UUID) (domain.PhysicalCount, error) {
	completed, err := s.counts.CompleteCount(ctx, countID)
	if err != nil {
		return domain.PhysicalCount{}, fmt.Errorf("complete count %s: %w", countID, err)
	}
	s.log.WithFields(logrus.Fields{
		"count_id":      countID,
		"records":       completed.RecordCount,
		"counted_value": completed.TotalCountedValue.String(),
	}).Info("physical count completed")
	return completed, nil
}

// CreateSnapshot deep-copies the latest completed count into snapshot
// storage. The copies are decoupled from live tables so later item
// mutations cannot retroactively change a published snapshot.
func (s *Service) CreateSnapshot(ctx context.Context, name string, cutoffDate time.Time, notes, actor string) (domain.Snapshot, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Snapshot{}, fmt.Errorf("snapshot name is required")
	}

	latest, err := s.counts.LatestCompletedCount(ctx)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Snapshot{}, fmt.Errorf("create snapshot: no completed count to snapshot: %w", domain.ErrNotFound)
		}
		return domain.Snapshot{}, fmt.Errorf("create snapshot: %w", err)
	}

	records, err := s.counts.ListCountRecords(ctx, latest.ID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("create snapshot: load count records: %w", err)
	}

	snapItems := make([]domain.SnapshotItem, 0, len(records))
	lastInvoice := ""
	for _, rec := range records {
		snapItems = append(snapItems, domain.SnapshotItem{
			ItemCode:      rec.ItemCode,
			Location:      rec.Location,
			CountedQty:    rec.CountedQty,
			ExpectedQty:   rec.ExpectedQty,
			UnitPrice:     rec.UnitPrice,
			CountedValue:  rec.CountedQty.Mul(rec.UnitPrice),
			VarianceValue: rec.VarianceValue,
		})
	}
	if lastDoc, err := s.documents.LastDocumentBefore(ctx, cutoffDate); err == nil {
		lastInvoice = lastDoc.Identifier
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Snapshot{}, fmt.Errorf("create snapshot: find last invoice: %w", err)
	}

	snap := domain.Snapshot{
		ID:                uuid.New(),
		Name:              name,
		CountDate:         latest.CountDate,
		CutoffDate:        cutoffDate,
		Notes:             notes,
		LastInvoiceNumber: lastInvoice,
		CountedValue:      latest.TotalCountedValue,
		ExpectedValue:     latest.TotalExpectedValue,
		VarianceValue:     latest.TotalVarianceValue,
		ItemCount:         len(snapItems),
		CreatedBy:         actor,
		CreatedAt:         time.Now().UTC(),
	}
	inserted, err := s.snapshots.InsertSnapshot(ctx, snap, snapItems)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("create snapshot %q: %w", name, err)
	}

	s.log.WithFields(logrus.Fields{
		"snapshot":      inserted.ID,
		"name":          name,
		"items":         len(snapItems),
		"counted_value": inserted.CountedValue.String(),
	}).Info("snapshot created")
	return inserted, nil
}

func (s *Service) GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	return s.snapshots.GetSnapshot(ctx, id)
}

func (s *Service) ListSnapshotItems(ctx context.Context, id uuid.UUID) ([]domain.SnapshotItem, error) {
	return s.snapshots.ListSnapshotItems(ctx, id)
}

// ReportFromSnapshot adds operator-selected documents that arrived after
// the snapshot's cutoff onto the snapshot baseline value. The selection is
// explicit and curated, never automatic.
func (s *Service) ReportFromSnapshot(ctx context.Context, snapshotID uuid.UUID, extraDocumentIDs []string) (domain.SnapshotReport, error) {
	snap, err := s.snapshots.GetSnapshot(ctx, snapshotID)
	if err != nil {
		return domain.SnapshotReport{}, fmt.Errorf("report from snapshot %s: %w", snapshotID, err)
	}

	report := domain.SnapshotReport{
		SnapshotID:    snap.ID,
		BaselineValue: snap.CountedValue,
	}
	if len(extraDocumentIDs) > 0 {
		docs, err := s.documents.GetDocumentsByIdentifiers(ctx, extraDocumentIDs)
		if err != nil {
			return domain.SnapshotReport{}, fmt.Errorf("report from snapshot: load documents: %w", err)
		}
		for _, doc := range docs {
			report.AddedValue = report.AddedValue.Add(doc.TotalAmount)
		}
		report.AddedDocuments = docs
	}
	report.TotalValue = report.BaselineValue.Add(report.AddedValue)
	return report, nil
}
