// Package ingest orchestrates document acceptance: consult the duplicate
// registry, then write the document and its line items, then report the
// outcome. It holds no state of its own.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/fingerprint"
	"github.com/Neuropilotai/inventory-backend/internal/registry"
)

type Pipeline struct {
	registry *registry.Registry
	log      *logrus.Logger
}

func New(reg *registry.Registry, log *logrus.Logger) *Pipeline {
	return &Pipeline{registry: reg, log: log}
}

type Result struct {
	Document domain.Document      `json:"document"`
	Items    []domain.InvoiceItem `json:"items"`
}

// Ingest accepts one parsed document. On any duplicate match the attempt
// is logged and a *domain.DuplicateDocumentError is returned; the registry
// unique constraints backstop the race where two ingestions of the same
// invoice pass the pre-check simultaneously; the loser is re-reported as
// a duplicate, never a crash. Credit memos carry negative totals and flow
// through the same path.
func (p *Pipeline) Ingest(ctx context.Context, parsed domain.ParsedInvoice, filePath string, fileBytes []byte, actor string) (Result, error) {
	parsed.Identifier = strings.TrimSpace(parsed.Identifier)
	if parsed.Identifier == "" {
		return Result{}, fmt.Errorf("ingest: identifier is required")
	}

	check, err := p.registry.CheckForDuplicate(ctx, parsed.Identifier, fileBytes, &parsed)
	if err != nil {
		return Result{}, fmt.Errorf("ingest %s: %w", parsed.Identifier, err)
	}
	if check.IsDuplicate {
		return Result{}, p.reject(ctx, parsed, filePath, fileBytes, actor, check)
	}

	items := buildItems(parsed)
	doc, err := p.registry.MarkAsProcessed(ctx, parsed, filePath, fileBytes, actor, items)
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateKey) {
			// Lost the check/insert race. Re-run the check so the
			// rejection names the winning record.
			recheck, checkErr := p.registry.CheckForDuplicate(ctx, parsed.Identifier, fileBytes, &parsed)
			if checkErr == nil && recheck.IsDuplicate {
				return Result{}, p.reject(ctx, parsed, filePath, fileBytes, actor, recheck)
			}
			return Result{}, p.reject(ctx, parsed, filePath, fileBytes, actor, domain.DuplicateCheck{
				IsDuplicate: true,
				Method:      domain.DuplicateByInvoiceNumber,
				Reasons:     []string{"concurrent ingestion won the insert race"},
			})
		}
		return Result{}, fmt.Errorf("ingest %s: %w", parsed.Identifier, err)
	}

	p.log.WithFields(logrus.Fields{
		"identifier": doc.Identifier,
		"items":      len(items),
		"total":      doc.TotalAmount.String(),
		"actor":      actor,
	}).Info("document ingested")

	return Result{Document: doc, Items: items}, nil
}

func (p *Pipeline) reject(ctx context.Context, parsed domain.ParsedInvoice, filePath string, fileBytes []byte, actor string, check domain.DuplicateCheck) error {
	matchedID := ""
	if check.Matched != nil {
		matchedID = check.Matched.Identifier
	}

	attempt := domain.DuplicateAttempt{
		Identifier:        parsed.Identifier,
		FilePath:          filePath,
		Method:            check.Method,
		MatchedIdentifier: matchedID,
		AttemptedBy:       actor,
		Notes:             strings.Join(check.Reasons, "; "),
	}
	if len(fileBytes) > 0 {
		attempt.FileHash = fingerprint.FileHashBytes(fileBytes)
	}
	p.registry.LogDuplicateAttempt(ctx, attempt)

	p.log.WithFields(logrus.Fields{
		"identifier": parsed.Identifier,
		"method":     check.Method,
		"matched":    matchedID,
	}).Info("duplicate ingestion rejected")

	return &domain.DuplicateDocumentError{
		Identifier:        parsed.Identifier,
		Method:            check.Method,
		MatchedIdentifier: matchedID,
		Reasons:           check.Reasons,
	}
}

// buildItems turns parsed lines into PENDING_PLACEMENT items. Line totals
// are recomputed rather than trusted from the extractor.
func buildItems(parsed domain.ParsedInvoice) []domain.InvoiceItem {
	items := make([]domain.InvoiceItem, 0, len(parsed.Items))
	for _, line := range parsed.Items {
		items = append(items, domain.InvoiceItem{
			InvoiceNumber: parsed.Identifier,
			ItemCode:      strings.TrimSpace(line.Code),
			Description:   strings.TrimSpace(line.Description),
			Quantity:      line.Quantity,
			Unit:          line.Unit,
			UnitPrice:     line.UnitPrice,
			LineTotal:     line.Quantity.Mul(line.UnitPrice),
			Status:        domain.StatusPendingPlacement,
			DocumentDate:  parsed.Date,
		})
	}
	return items
}
