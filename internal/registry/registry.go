// Package registry owns the "has this document been seen before" decision.
// Four independent checks run in fixed precedence order, cheapest and most
// authoritative first: invoice number, file hash, content fingerprint,
// then the date+amount heuristic.
package registry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/fingerprint"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

type Registry struct {
	store store.DocumentStore
	log   *logrus.Logger
}

func New(docs store.DocumentStore, log *logrus.Logger) *Registry {
	return &Registry{store: docs, log: log}
}

// CheckForDuplicate runs the four detection methods and reports the first
// match. Read-only; never mutates the registry. fileBytes and parsed are
// optional: checks whose inputs are missing are skipped.
func (r *Registry) CheckForDuplicate(ctx context.Context, identifier string, fileBytes []byte, parsed *domain.ParsedInvoice) (domain.DuplicateCheck, error) {
	identifier = strings.TrimSpace(identifier)

	if identifier != "" {
		matched, err := r.store.GetDocumentByIdentifier(ctx, identifier)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.DuplicateCheck{}, fmt.Errorf("check invoice number: %w", err)
		}
		if matched != nil {
			return duplicateOf(domain.DuplicateByInvoiceNumber, matched,
				fmt.Sprintf("invoice number %s already processed on %s",
					matched.Identifier, matched.ProcessedAt.Format("2006-01-02"))), nil
		}
	}

	if len(fileBytes) > 0 {
		hash := fingerprint.FileHashBytes(fileBytes)
		matched, err := r.store.GetDocumentByFileHash(ctx, hash)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.DuplicateCheck{}, fmt.Errorf("check file hash: %w", err)
		}
		if matched != nil {
			return duplicateOf(domain.DuplicateByFileHash, matched,
				fmt.Sprintf("file bytes identical to already processed %s", matched.Identifier)), nil
		}
	}

	if parsed != nil {
		fp := fingerprint.ContentFingerprint(*parsed)
		matched, err := r.store.GetDocumentByFingerprint(ctx, fp)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.DuplicateCheck{}, fmt.Errorf("check content fingerprint: %w", err)
		}
		if matched != nil {
			return duplicateOf(domain.DuplicateByFingerprint, matched,
				fmt.Sprintf("extracted content matches already processed %s", matched.Identifier)), nil
		}

		matched, err = r.store.FindDocumentByDateAmount(ctx, parsed.Date, parsed.TotalAmount, domain.AmountTolerance)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return domain.DuplicateCheck{}, fmt.Errorf("check date+amount: %w", err)
		}
		if matched != nil {
			check := duplicateOf(domain.DuplicateByDateAmount, matched,
				fmt.Sprintf("same date %s and total within $0.01 of %s",
					parsed.Date.Format("2006-01-02"), matched.Identifier))
			// Heuristic method: two genuinely different same-day,
			// same-amount invoices would also match, so front-ends get a
			// warning reason to drive manual confirmation.
			check.Reasons = append(check.Reasons,
				"warning: date+amount is a heuristic match; confirm the invoices really are the same before discarding")
			return check, nil
		}
	}

	return domain.DuplicateCheck{IsDuplicate: false}, nil
}

func duplicateOf(method domain.DuplicateMethod, matched *domain.Document, reason string) domain.DuplicateCheck {
	return domain.DuplicateCheck{
		IsDuplicate: true,
		Method:      method,
		Matched:     matched,
		Reasons:     []string{reason},
	}
}

// MarkAsProcessed inserts the accepted document, computing the file hash
// and content fingerprint at insert time. The line items, when given, land
// in the same transaction so a crash cannot leave a document without its
// items. A lost race against a concurrent ingestion surfaces as
// domain.ErrDuplicateKey; it never silently overwrites.
func (r *Registry) MarkAsProcessed(ctx context.Context, parsed domain.ParsedInvoice, filePath string, fileBytes []byte, actor string, items []domain.InvoiceItem) (domain.Document, error) {
	identifier := strings.TrimSpace(parsed.Identifier)
	if identifier == "" {
		return domain.Document{}, fmt.Errorf("identifier is required")
	}

	doc := domain.Document{
		Identifier:   identifier,
		DocumentDate: parsed.Date,
		TotalAmount:  parsed.TotalAmount,
		ItemCount:    len(parsed.Items),
		Fingerprint:  fingerprint.ContentFingerprint(parsed),
		FilePath:     filePath,
		IsCreditMemo: parsed.IsCreditMemo,
		ProcessedAt:  time.Now().UTC(),
		ProcessedBy:  actor,
	}
	if len(fileBytes) > 0 {
		doc.FileHash = fingerprint.FileHashBytes(fileBytes)
	}

	inserted, err := r.store.InsertDocument(ctx, doc, items)
	if err != nil {
		return domain.Document{}, fmt.Errorf("mark %s as processed: %w", identifier, err)
	}
	return inserted, nil
}

// LogDuplicateAttempt appends one rejection to the audit log. A logging
// failure is non-fatal: the rejection already holds, so the error is
// logged and swallowed.
func (r *Registry) LogDuplicateAttempt(ctx context.Context, attempt domain.DuplicateAttempt) {
	if attempt.AttemptedAt.IsZero() {
		attempt.AttemptedAt = time.Now().UTC()
	}
	if err := r.store.InsertDuplicateAttempt(ctx, attempt); err != nil {
		r.log.WithFields(logrus.Fields{
			"identifier": attempt.Identifier,
			"method":     attempt.Method,
		}).WithError(err).Warn("failed to log duplicate attempt")
	}
}

func (r *Registry) GetStats(ctx context.Context) (domain.RegistryStats, error) {
	accepted, err := r.store.CountDocuments(ctx)
	if err != nil {
		return domain.RegistryStats{}, fmt.Errorf("count documents: %w", err)
	}
	byMethod, err := r.store.CountAttemptsByMethod(ctx)
	if err != nil {
		return domain.RegistryStats{}, fmt.Errorf("count attempts: %w", err)
	}
	total := 0
	for _, n := range byMethod {
		total += n
	}
	return domain.RegistryStats{
		AcceptedDocuments: accepted,
		TotalAttempts:     total,
		AttemptsByMethod:  byMethod,
	}, nil
}
