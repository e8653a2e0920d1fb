// Package inventory exposes the invoice-item lifecycle operations:
// placement, ready-to-count marking, and the lock/unlock pair. The status
// guards themselves live in the store so every check-and-set is atomic;
// this layer adds input validation, authorization, and audit logging.
package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/auth"
	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

type Service struct {
	store      store.ItemStore
	authorizer auth.Authorizer
	log        *logrus.Logger
}

func New(items store.ItemStore, authorizer auth.Authorizer, log *logrus.Logger) *Service {
	return &Service{store: items, authorizer: authorizer, log: log}
}

func (s *Service) ListItems(ctx context.Context, filter store.ItemFilter) ([]domain.InvoiceItem, error) {
	return s.store.ListItems(ctx, filter)
}

func (s *Service) ListLocationAssignments(ctx context.Context, invoiceNumber string) ([]domain.LocationAssignment, error) {
	return s.store.ListLocationAssignments(ctx, invoiceNumber)
}

func (s *Service) StatusBreakdown(ctx context.Context) (map[domain.ItemStatus]int, error) {
	return s.store.CountItemsByStatus(ctx)
}

// AssignLocation places one pending item. Guard: current status must be
// PENDING_PLACEMENT; enforced atomically by the store.
func (s *Service) AssignLocation(ctx context.Context, invoiceNumber, itemCode, location, actor string) (domain.InvoiceItem, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return domain.InvoiceItem{}, fmt.Errorf("location is required")
	}
	item, err := s.store.AssignLocation(ctx, invoiceNumber, itemCode, location, actor)
	if err != nil {
		return domain.InvoiceItem{}, err
	}
	s.log.WithFields(logrus.Fields{
		"invoice":  invoiceNumber,
		"item":     itemCode,
		"location": location,
		"actor":    actor,
	}).Info("item placed")
	return item, nil
}

// BulkAssignLocation places every pending item of one invoice in a single
// transaction and reports how many rows moved.
func (s *Service) BulkAssignLocation(ctx context.Context, invoiceNumber, location, actor string) (int, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return 0, fmt.Errorf("location is required")
	}
	affected, err := s.store.BulkAssignLocation(ctx, invoiceNumber, location, actor)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"invoice":  invoiceNumber,
		"location": location,
		"affected": affected,
		"actor":    actor,
	}).Info("invoice items placed")
	return affected, nil
}

func (s *Service) MarkReadyToCount(ctx context.Context, cutoff time.Time) (int, error) {
	return s.store.MarkReadyToCount(ctx, cutoff)
}

// PartitionCounts reports how many countable items fall on each side of
// the cutoff date.
func (s *Service) PartitionCounts(ctx context.Context, cutoff time.Time) (included, excluded int, err error) {
	return s.store.PartitionCounts(ctx, cutoff)
}

// Lock excludes items dated strictly after the given date from counting
// and reporting until explicitly unlocked.
func (s *Service) Lock(ctx context.Context, afterDate time.Time, actor, reason string) (int, error) {
	affected, err := s.store.LockAfter(ctx, afterDate, actor, reason)
	if err != nil {
		return 0, err
	}
	s.log.WithFields(logrus.Fields{
		"after":    afterDate.Format("2006-01-02"),
		"affected": affected,
		"actor":    actor,
		"reason":   reason,
	}).Info("items locked")
	return affected, nil
}

// Unlock restores locked rows to PLACED. Authorization is a hard
// precondition, not a front-end convention; every attempt is logged with
// actor and timestamp regardless of outcome.
func (s *Service) Unlock(ctx context.Context, sel store.UnlockSelector, actor, credentials string) (int, error) {
	entry := s.log.WithFields(logrus.Fields{
		"actor":   actor,
		"invoice": sel.InvoiceNumber,
		"at":      time.Now().UTC().Format(time.RFC3339),
	})
	if !s.authorizer.IsAuthorized(actor, credentials) {
		entry.Warn("unlock refused: invalid credentials")
		return 0, &domain.AuthorizationError{Actor: actor, Op: "unlock"}
	}
	if sel.Empty() {
		return 0, fmt.Errorf("unlock selector is required")
	}
	affected, err := s.store.Unlock(ctx, sel, actor)
	if err != nil {
		return 0, err
	}
	entry.WithField("affected", affected).Info("items unlocked")
	return affected, nil
}
