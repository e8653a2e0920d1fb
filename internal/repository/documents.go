package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
)

const documentColumns = `
	id,
	identifier,
	document_date,
	total_amount,
	item_count,
	file_hash,
	fingerprint,
	file_path,
	is_credit_memo,
	processed_at,
	processed_by
`

func (r *Repository) InsertDocument(ctx context.Context, doc domain.Document, items []domain.InvoiceItem) (domain.Document, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Document{}, fmt.Errorf("begin insert document tx: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `
		INSERT INTO documents (
			identifier,
			document_date,
			total_amount,
			item_count,
			file_hash,
			fingerprint,
			file_path,
			is_credit_memo,
			processed_at,
			processed_by
		)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6, $7, $8, $9, $10)
		RETURNING `+documentColumns,
		doc.Identifier,
		doc.DocumentDate,
		doc.TotalAmount,
		doc.ItemCount,
		doc.FileHash,
		doc.Fingerprint,
		doc.FilePath,
		doc.IsCreditMemo,
		doc.ProcessedAt,
		doc.ProcessedBy,
	)
	inserted, err := scanDocumentRow(row)
	if err != nil {
		return domain.Document{}, fmt.Errorf("insert document %s: %w", doc.Identifier, mapDuplicateKey(err))
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO invoice_items (
				invoice_number,
				item_code,
				description,
				quantity,
				unit,
				unit_price,
				line_total,
				status,
				document_date
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`,
			item.InvoiceNumber,
			item.ItemCode,
			item.Description,
			item.Quantity,
			item.Unit,
			item.UnitPrice,
			item.LineTotal,
			item.Status,
			item.DocumentDate,
		); err != nil {
			return domain.Document{}, fmt.Errorf("insert item %s for %s: %w", item.ItemCode, doc.Identifier, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Document{}, fmt.Errorf("commit insert document tx: %w", err)
	}
	return inserted, nil
}

func (r *Repository) GetDocumentByIdentifier(ctx context.Context, identifier string) (*domain.Document, error) {
	return r.getDocument(ctx, `UPPER(TRIM(identifier)) = UPPER(TRIM($1))`, identifier)
}

func (r *Repository) GetDocumentByFileHash(ctx context.Context, fileHash string) (*domain.Document, error) {
	if fileHash == "" {
		return nil, domain.ErrNotFound
	}
	return r.getDocument(ctx, `file_hash = $1`, fileHash)
}

func (r *Repository) GetDocumentByFingerprint(ctx context.Context, fp string) (*domain.Document, error) {
	if fp == "" {
		return nil, domain.ErrNotFound
	}
	return r.getDocument(ctx, `fingerprint = $1`, fp)
}

func (r *Repository) getDocument(ctx context.Context, where string, arg any) (*domain.Document, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE `+where, arg)
	doc, err := scanDocumentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get document: %w", err)
	}
	return &doc, nil
}

func (r *Repository) FindDocumentByDateAmount(ctx context.Context, date time.Time, total, tolerance decimal.Decimal) (*domain.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE document_date::date = $1::date
		  AND ABS(total_amount - $2) <= $3
		ORDER BY id ASC
		LIMIT 1
	`, date, total, tolerance)
	doc, err := scanDocumentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("find document by date+amount: %w", err)
	}
	return &doc, nil
}

func (r *Repository) GetDocumentsByIdentifiers(ctx context.Context, identifiers []string) ([]domain.Document, error) {
	if len(identifiers) == 0 {
		return []domain.Document{}, nil
	}
	rows, err := r.pool.Query(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE UPPER(TRIM(identifier)) = ANY(SELECT UPPER(TRIM(x)) FROM UNNEST($1::text[]) AS x)
		ORDER BY id ASC
	`, identifiers)
	if err != nil {
		return nil, fmt.Errorf("get documents by identifiers: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0, len(identifiers))
	for rows.Next() {
		doc, err := scanDocumentRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func (r *Repository) LastDocumentBefore(ctx context.Context, cutoff time.Time) (*domain.Document, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+documentColumns+`
		FROM documents
		WHERE document_date <= $1
		ORDER BY document_date DESC, id DESC
		LIMIT 1
	`, cutoff)
	doc, err := scanDocumentRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("last document before %s: %w", cutoff.Format("2006-01-02"), err)
	}
	return &doc, nil
}

func (r *Repository) CountDocuments(ctx context.Context) (int, error) {
	var count int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*)::int FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}

func (r *Repository) InsertDuplicateAttempt(ctx context.Context, attempt domain.DuplicateAttempt) error {
	if _, err := r.pool.Exec(ctx, `
		INSERT INTO duplicate_attempts (
			identifier,
			file_path,
			file_hash,
			method,
			matched_identifier,
			attempted_at,
			attempted_by,
			notes
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		attempt.Identifier,
		attempt.FilePath,
		attempt.FileHash,
		attempt.Method,
		attempt.MatchedIdentifier,
		attempt.AttemptedAt,
		attempt.AttemptedBy,
		attempt.Notes,
	); err != nil {
		return fmt.Errorf("insert duplicate attempt for %s: %w", attempt.Identifier, err)
	}
	return nil
}

func (r *Repository) CountAttemptsByMethod(ctx context.Context) (map[domain.DuplicateMethod]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT method, COUNT(*)::int
		FROM duplicate_attempts
		GROUP BY method
	`)
	if err != nil {
		return nil, fmt.Errorf("count attempts by method: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.DuplicateMethod]int)
	for rows.Next() {
		var (
			method domain.DuplicateMethod
			count  int
		)
		if err := rows.Scan(&method, &count); err != nil {
			return nil, fmt.Errorf("scan attempt count: %w", err)
		}
		result[method] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempt counts: %w", err)
	}
	return result, nil
}

func scanDocumentRow(row pgx.Row) (domain.Document, error) {
	var (
		doc      domain.Document
		fileHash *string
	)
	if err := row.Scan(
		&doc.ID,
		&doc.Identifier,
		&doc.DocumentDate,
		&doc.TotalAmount,
		&doc.ItemCount,
		&fileHash,
		&doc.Fingerprint,
		&doc.FilePath,
		&doc.IsCreditMemo,
		&doc.ProcessedAt,
		&doc.ProcessedBy,
	); err != nil {
		return domain.Document{}, err
	}
	if fileHash != nil {
		doc.FileHash = *fileHash
	}
	return doc, nil
}
