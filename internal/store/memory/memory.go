// Package memory is the in-memory Store implementation. It enforces the
// same guards as the Postgres repository under a single mutex, which makes
// it suitable for tests and local development but not for multi-process
// deployments.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

type Store struct {
	mu sync.RWMutex

	documents   []domain.Document
	attempts    []domain.DuplicateAttempt
	items       []domain.InvoiceItem
	assignments []domain.LocationAssignment
	counts      []domain.PhysicalCount
	records     []domain.CountRecord
	snapshots   []domain.Snapshot
	snapItems   []domain.SnapshotItem
	cutoffs     []domain.CutoffConfig

	nextDocID        int64
	nextItemID       int64
	nextAttemptID    int64
	nextAssignmentID int64
	nextRecordID     int64
	nextSnapItemID   int64
	nextCutoffID     int64
}

var _ store.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		nextDocID:        1,
		nextItemID:       1,
		nextAttemptID:    1,
		nextAssignmentID: 1,
		nextRecordID:     1,
		nextSnapItemID:   1,
		nextCutoffID:     1,
	}
}

func normalizeID(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

func (s *Store) InsertDocument(ctx context.Context, doc domain.Document, items []domain.InvoiceItem) (domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	identifier := normalizeID(doc.Identifier)
	for _, existing := range s.documents {
		if normalizeID(existing.Identifier) == identifier {
			return domain.Document{}, fmt.Errorf("insert document %s: %w", doc.Identifier, domain.ErrDuplicateKey)
		}
		if existing.FileHash != "" && existing.FileHash == doc.FileHash {
			return domain.Document{}, fmt.Errorf("insert document %s: %w", doc.Identifier, domain.ErrDuplicateKey)
		}
	}

	doc.ID = s.nextDocID
	s.nextDocID++
	if doc.ProcessedAt.IsZero() {
		doc.ProcessedAt = time.Now().UTC()
	}
	s.documents = append(s.documents, doc)

	now := time.Now().UTC()
	for _, item := range items {
		item.ID = s.nextItemID
		s.nextItemID++
		if item.Status == "" {
			item.Status = domain.StatusPendingPlacement
		}
		item.CreatedAt = now
		item.UpdatedAt = now
		s.items = append(s.items, item)
	}
	return doc, nil
}

func (s *Store) GetDocumentByIdentifier(ctx context.Context, identifier string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	identifier = normalizeID(identifier)
	for i := range s.documents {
		if normalizeID(s.documents[i].Identifier) == identifier {
			doc := s.documents[i]
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetDocumentByFileHash(ctx context.Context, fileHash string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fileHash == "" {
		return nil, domain.ErrNotFound
	}
	for i := range s.documents {
		if s.documents[i].FileHash == fileHash {
			doc := s.documents[i]
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetDocumentByFingerprint(ctx context.Context, fp string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if fp == "" {
		return nil, domain.ErrNotFound
	}
	for i := range s.documents {
		if s.documents[i].Fingerprint == fp {
			doc := s.documents[i]
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) FindDocumentByDateAmount(ctx context.Context, date time.Time, total, tolerance decimal.Decimal) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	day := date.Format("2006-01-02")
	for i := range s.documents {
		if s.documents[i].DocumentDate.Format("2006-01-02") != day {
			continue
		}
		if s.documents[i].TotalAmount.Sub(total).Abs().LessThanOrEqual(tolerance) {
			doc := s.documents[i]
			return &doc, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) GetDocumentsByIdentifiers(ctx context.Context, identifiers []string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]bool, len(identifiers))
	for _, id := range identifiers {
		wanted[normalizeID(id)] = true
	}
	result := make([]domain.Document, 0, len(identifiers))
	for i := range s.documents {
		if wanted[normalizeID(s.documents[i].Identifier)] {
			result = append(result, s.documents[i])
		}
	}
	return result, nil
}

func (s *Store) LastDocumentBefore(ctx context.Context, cutoff time.Time) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.Document
	for i := range s.documents {
		doc := &s.documents[i]
		if doc.DocumentDate.After(cutoff) {
			continue
		}
		if latest == nil || doc.DocumentDate.After(latest.DocumentDate) ||
			(doc.DocumentDate.Equal(latest.DocumentDate) && doc.ID > latest.ID) {
			latest = doc
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *Store) CountDocuments(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.documents), nil
}

func (s *Store) InsertDuplicateAttempt(ctx context.Context, attempt domain.DuplicateAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	attempt.ID = s.nextAttemptID
	s.nextAttemptID++
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	s.attempts = append(s.attempts, attempt)
	return nil
}

func (s *Store) CountAttemptsByMethod(ctx context.Context) (map[domain.DuplicateMethod]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[domain.DuplicateMethod]int)
	for i := range s.attempts {
		result[s.attempts[i].Method]++
	}
	return result, nil
}

func (s *Store) ListItems(ctx context.Context, filter store.ItemFilter) ([]domain.InvoiceItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.InvoiceItem, 0)
	for i := range s.items {
		item := s.items[i]
		if filter.InvoiceNumber != "" && normalizeID(item.InvoiceNumber) != normalizeID(filter.InvoiceNumber) {
			continue
		}
		if filter.ItemCode != "" && normalizeID(item.ItemCode) != normalizeID(filter.ItemCode) {
			continue
		}
		if filter.Location != "" && (item.Location == nil || *item.Location != filter.Location) {
			continue
		}
		if filter.Status != "" && item.Status != filter.Status {
			continue
		}
		result = append(result, item)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.InvoiceItem{}, nil
		}
		result = result[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

func (s *Store) AssignLocation(ctx context.Context, invoiceNumber, itemCode, location, actor string) (domain.InvoiceItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var blocked *domain.InvoiceItem
	for i := range s.items {
		item := &s.items[i]
		if normalizeID(item.InvoiceNumber) != normalizeID(invoiceNumber) ||
			normalizeID(item.ItemCode) != normalizeID(itemCode) {
			continue
		}
		if item.Status != domain.StatusPendingPlacement {
			blocked = item
			continue
		}
		s.placeItem(item, location, actor, "")
		return *item, nil
	}
	if blocked != nil {
		return domain.InvoiceItem{}, &domain.PreconditionFailedError{
			Op:       "assign location",
			Expected: string(domain.StatusPendingPlacement),
			Actual:   string(blocked.Status),
		}
	}
	return domain.InvoiceItem{}, domain.ErrNotFound
}

func (s *Store) BulkAssignLocation(ctx context.Context, invoiceNumber, location, actor string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	for i := range s.items {
		item := &s.items[i]
		if normalizeID(item.InvoiceNumber) != normalizeID(invoiceNumber) {
			continue
		}
		if item.Status != domain.StatusPendingPlacement {
			continue
		}
		s.placeItem(item, location, actor, "bulk assignment")
		affected++
	}
	return affected, nil
}

// placeItem must be called with the write lock held.
func (s *Store) placeItem(item *domain.InvoiceItem, location, actor, reason string) {
	now := time.Now().UTC()
	loc := location
	by := actor
	item.Status = domain.StatusPlaced
	item.Location = &loc
	item.AssignedBy = &by
	item.AssignedAt = &now
	item.UpdatedAt = now

	s.assignments = append(s.assignments, domain.LocationAssignment{
		ID:            s.nextAssignmentID,
		InvoiceNumber: item.InvoiceNumber,
		ItemCode:      item.ItemCode,
		Quantity:      item.Quantity,
		Unit:          item.Unit,
		Location:      location,
		AssignedBy:    actor,
		AssignedAt:    now,
		Reason:        reason,
	})
	s.nextAssignmentID++
}

func (s *Store) MarkReadyToCount(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	now := time.Now().UTC()
	for i := range s.items {
		item := &s.items[i]
		if item.Status != domain.StatusPlaced {
			continue
		}
		if item.DocumentDate.After(cutoff) {
			continue
		}
		item.Status = domain.StatusReadyToCount
		item.UpdatedAt = now
		affected++
	}
	return affected, nil
}

func (s *Store) PartitionCounts(ctx context.Context, cutoff time.Time) (int, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	included, excluded := 0, 0
	for i := range s.items {
		item := &s.items[i]
		if !domain.IsCountable(item.Status) {
			continue
		}
		if item.DocumentDate.After(cutoff) {
			excluded++
		} else {
			included++
		}
	}
	return included, excluded, nil
}

func (s *Store) LockAfter(ctx context.Context, after time.Time, actor, reason string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	now := time.Now().UTC()
	for i := range s.items {
		item := &s.items[i]
		if item.Status == domain.StatusLocked || item.Status == domain.StatusCounted {
			continue
		}
		if !item.DocumentDate.After(after) {
			continue
		}
		by := actor
		why := reason
		item.Status = domain.StatusLocked
		item.LockedAt = &now
		item.LockedBy = &by
		item.LockReason = &why
		item.UnlockedAt = nil
		item.UnlockedBy = nil
		item.UpdatedAt = now
		affected++
	}
	return affected, nil
}

func (s *Store) Unlock(ctx context.Context, sel store.UnlockSelector, actor string) (int, error) {
	if sel.Empty() {
		return 0, fmt.Errorf("unlock selector is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	now := time.Now().UTC()
	for i := range s.items {
		item := &s.items[i]
		if item.Status != domain.StatusLocked {
			continue
		}
		if sel.InvoiceNumber != "" && normalizeID(item.InvoiceNumber) != normalizeID(sel.InvoiceNumber) {
			continue
		}
		if sel.ItemCode != "" && normalizeID(item.ItemCode) != normalizeID(sel.ItemCode) {
			continue
		}
		if sel.AfterDate != nil && !item.DocumentDate.After(*sel.AfterDate) {
			continue
		}
		by := actor
		item.Status = domain.StatusPlaced
		item.UnlockedAt = &now
		item.UnlockedBy = &by
		item.UpdatedAt = now
		affected++
	}
	return affected, nil
}

func (s *Store) ExpectedQuantities(ctx context.Context, cutoff *time.Time, location string) ([]domain.ExpectedItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type key struct{ code, loc string }
	grouped := make(map[key]*domain.ExpectedItem)
	latest := make(map[key]time.Time)
	order := make([]key, 0)

	for i := range s.items {
		item := &s.items[i]
		if !domain.IsCountable(item.Status) || item.Location == nil {
			continue
		}
		if cutoff != nil && item.DocumentDate.After(*cutoff) {
			continue
		}
		if location != "" && *item.Location != location {
			continue
		}
		k := key{code: normalizeID(item.ItemCode), loc: *item.Location}
		entry, ok := grouped[k]
		if !ok {
			entry = &domain.ExpectedItem{
				ItemCode:    item.ItemCode,
				Description: item.Description,
				Location:    *item.Location,
				Unit:        item.Unit,
			}
			grouped[k] = entry
			order = append(order, k)
		}
		entry.ExpectedQty = entry.ExpectedQty.Add(item.Quantity)
		if item.DocumentDate.After(latest[k]) || latest[k].IsZero() {
			latest[k] = item.DocumentDate
			entry.UnitPrice = item.UnitPrice
		}
	}

	sort.Slice(order, func(i, j int) bool {
		if order[i].code != order[j].code {
			return order[i].code < order[j].code
		}
		return order[i].loc < order[j].loc
	})
	result := make([]domain.ExpectedItem, 0, len(order))
	for _, k := range order {
		result = append(result, *grouped[k])
	}
	return result, nil
}

func (s *Store) ExpectedForItem(ctx context.Context, itemCode, location string) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		qty        decimal.Decimal
		unitPrice  decimal.Decimal
		priceDate  time.Time
		codeExists bool
	)
	for i := range s.items {
		item := &s.items[i]
		if normalizeID(item.ItemCode) != normalizeID(itemCode) {
			continue
		}
		codeExists = true
		if item.DocumentDate.After(priceDate) || priceDate.IsZero() {
			priceDate = item.DocumentDate
			unitPrice = item.UnitPrice
		}
		if !domain.IsCountable(item.Status) {
			continue
		}
		if location != "" && (item.Location == nil || *item.Location != location) {
			continue
		}
		qty = qty.Add(item.Quantity)
	}
	if !codeExists {
		return decimal.Decimal{}, decimal.Decimal{}, domain.ErrNotFound
	}
	return qty, unitPrice, nil
}

func (s *Store) ListLocationAssignments(ctx context.Context, invoiceNumber string) ([]domain.LocationAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.LocationAssignment, 0)
	for i := range s.assignments {
		if invoiceNumber == "" || normalizeID(s.assignments[i].InvoiceNumber) == normalizeID(invoiceNumber) {
			result = append(result, s.assignments[i])
		}
	}
	return result, nil
}

func (s *Store) CountItemsByStatus(ctx context.Context) (map[domain.ItemStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make(map[domain.ItemStatus]int)
	for i := range s.items {
		result[s.items[i].Status]++
	}
	return result, nil
}

func (s *Store) CreateCount(ctx context.Context, count domain.PhysicalCount) (domain.PhysicalCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if count.ID == uuid.Nil {
		count.ID = uuid.New()
	}
	if count.Status == "" {
		count.Status = domain.CountOpen
	}
	if count.CreatedAt.IsZero() {
		count.CreatedAt = time.Now().UTC()
	}
	s.counts = append(s.counts, count)
	return count, nil
}

func (s *Store) GetCount(ctx context.Context, id uuid.UUID) (*domain.PhysicalCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.counts {
		if s.counts[i].ID == id {
			count := s.counts[i]
			return &count, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) InsertCountRecord(ctx context.Context, rec domain.CountRecord) (domain.CountRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.counts {
		if s.counts[i].ID == rec.CountID {
			if s.counts[i].Status != domain.CountOpen {
				return domain.CountRecord{}, &domain.PreconditionFailedError{
					Op:       "record count",
					Expected: string(domain.CountOpen),
					Actual:   string(s.counts[i].Status),
				}
			}
			found = true
			break
		}
	}
	if !found {
		return domain.CountRecord{}, domain.ErrNotFound
	}

	rec.ID = s.nextRecordID
	s.nextRecordID++
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *Store) ListCountRecords(ctx context.Context, countID uuid.UUID) ([]domain.CountRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.CountRecord, 0)
	for i := range s.records {
		if s.records[i].CountID == countID {
			result = append(result, s.records[i])
		}
	}
	return result, nil
}

func (s *Store) CompleteCount(ctx context.Context, countID uuid.UUID) (domain.PhysicalCount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var header *domain.PhysicalCount
	for i := range s.counts {
		if s.counts[i].ID == countID {
			header = &s.counts[i]
			break
		}
	}
	if header == nil {
		return domain.PhysicalCount{}, domain.ErrNotFound
	}
	if header.Status != domain.CountOpen {
		return domain.PhysicalCount{}, &domain.PreconditionFailedError{
			Op:       "complete count",
			Expected: string(domain.CountOpen),
			Actual:   string(header.Status),
		}
	}

	counted := decimal.Decimal{}
	expected := decimal.Decimal{}
	variance := decimal.Decimal{}
	recordCount := 0
	now := time.Now().UTC()

	for i := range s.records {
		rec := &s.records[i]
		if rec.CountID != countID {
			continue
		}
		recordCount++
		counted = counted.Add(rec.CountedQty.Mul(rec.UnitPrice))
		expected = expected.Add(rec.ExpectedQty.Mul(rec.UnitPrice))
		variance = variance.Add(rec.VarianceValue)

		for j := range s.items {
			item := &s.items[j]
			if normalizeID(item.ItemCode) != normalizeID(rec.ItemCode) {
				continue
			}
			if item.Location == nil || *item.Location != rec.Location {
				continue
			}
			if !domain.IsCountable(item.Status) {
				continue
			}
			item.Status = domain.StatusCounted
			item.UpdatedAt = now
		}
	}

	header.Status = domain.CountCompleted
	header.CompletedAt = &now
	header.RecordCount = recordCount
	header.TotalCountedValue = counted
	header.TotalExpectedValue = expected
	header.TotalVarianceValue = variance
	return *header, nil
}

func (s *Store) LatestCompletedCount(ctx context.Context) (*domain.PhysicalCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *domain.PhysicalCount
	for i := range s.counts {
		count := &s.counts[i]
		if count.Status != domain.CountCompleted || count.CompletedAt == nil {
			continue
		}
		if latest == nil || count.CompletedAt.After(*latest.CompletedAt) {
			latest = count
		}
	}
	if latest == nil {
		return nil, domain.ErrNotFound
	}
	copied := *latest
	return &copied, nil
}

func (s *Store) InsertSnapshot(ctx context.Context, snap domain.Snapshot, items []domain.SnapshotItem) (domain.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	s.snapshots = append(s.snapshots, snap)

	for _, item := range items {
		item.ID = s.nextSnapItemID
		s.nextSnapItemID++
		item.SnapshotID = snap.ID
		s.snapItems = append(s.snapItems, item)
	}
	return snap, nil
}

func (s *Store) GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.snapshots {
		if s.snapshots[i].ID == id {
			snap := s.snapshots[i]
			return &snap, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (s *Store) ListSnapshotItems(ctx context.Context, id uuid.UUID) ([]domain.SnapshotItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]domain.SnapshotItem, 0)
	for i := range s.snapItems {
		if s.snapItems[i].SnapshotID == id {
			result = append(result, s.snapItems[i])
		}
	}
	return result, nil
}

func (s *Store) SaveCutoffConfig(ctx context.Context, cfg domain.CutoffConfig) (domain.CutoffConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cfg.PreparedAt.IsZero() {
		cfg.PreparedAt = time.Now().UTC()
	}
	day := cfg.CutoffDate.Format("2006-01-02")
	for i := range s.cutoffs {
		if s.cutoffs[i].CutoffDate.Format("2006-01-02") == day {
			cfg.ID = s.cutoffs[i].ID
			s.cutoffs[i] = cfg
			return cfg, nil
		}
	}
	cfg.ID = s.nextCutoffID
	s.nextCutoffID++
	s.cutoffs = append(s.cutoffs, cfg)
	return cfg, nil
}

func (s *Store) LatestCutoffConfig(ctx context.Context) (*domain.CutoffConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.cutoffs) == 0 {
		return nil, domain.ErrNotFound
	}
	latest := s.cutoffs[0]
	for _, cfg := range s.cutoffs[1:] {
		if cfg.PreparedAt.After(latest.PreparedAt) {
			latest = cfg
		}
	}
	return &latest, nil
}
