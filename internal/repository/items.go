package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

const itemColumns = `
	id,
	invoice_number,
	item_code,
	description,
	quantity,
	unit,
	unit_price,
	line_total,
	status,
	location,
	document_date,
	assigned_by,
	assigned_at,
	locked_at,
	locked_by,
	lock_reason,
	unlocked_at,
	unlocked_by,
	created_at,
	updated_at
`

func (r *Repository) ListItems(ctx context.Context, filter store.ItemFilter) ([]domain.InvoiceItem, error) {
	limit := normalizeLimit(filter.Limit)
	offset := normalizeOffset(filter.Offset)

	query := `SELECT ` + itemColumns + ` FROM invoice_items WHERE 1=1`
	args := []any{}
	idx := 1

	if s := strings.TrimSpace(filter.InvoiceNumber); s != "" {
		query += fmt.Sprintf(" AND UPPER(TRIM(invoice_number)) = UPPER(TRIM($%d))", idx)
		args = append(args, s)
		idx++
	}
	if s := strings.TrimSpace(filter.ItemCode); s != "" {
		query += fmt.Sprintf(" AND UPPER(TRIM(item_code)) = UPPER(TRIM($%d))", idx)
		args = append(args, s)
		idx++
	}
	if filter.Location != "" {
		query += fmt.Sprintf(" AND location = $%d", idx)
		args = append(args, filter.Location)
		idx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	query += fmt.Sprintf(" ORDER BY id ASC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.InvoiceItem, 0, limit)
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}

func (r *Repository) AssignLocation(ctx context.Context, invoiceNumber, itemCode, location, actor string) (domain.InvoiceItem, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.InvoiceItem{}, fmt.Errorf("begin assign location tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Single check-and-set: only a PENDING_PLACEMENT row can be claimed,
	// and FOR UPDATE in the subquery serializes concurrent assignments.
	row := tx.QueryRow(ctx, `
		UPDATE invoice_items
		SET
			status = $4,
			location = $3,
			assigned_by = $5,
			assigned_at = NOW(),
			updated_at = NOW()
		WHERE id = (
			SELECT id FROM invoice_items
			WHERE UPPER(TRIM(invoice_number)) = UPPER(TRIM($1))
			  AND UPPER(TRIM(item_code)) = UPPER(TRIM($2))
			  AND status = $6
			ORDER BY id ASC
			LIMIT 1
			FOR UPDATE
		)
		RETURNING `+itemColumns,
		invoiceNumber, itemCode, location,
		domain.StatusPlaced, actor, domain.StatusPendingPlacement,
	)
	item, err := scanItemRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.InvoiceItem{}, r.assignFailure(ctx, invoiceNumber, itemCode)
		}
		return domain.InvoiceItem{}, fmt.Errorf("assign location: %w", err)
	}

	if err := insertAssignmentTx(ctx, tx, item, location, actor, ""); err != nil {
		return domain.InvoiceItem{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.InvoiceItem{}, fmt.Errorf("commit assign location tx: %w", err)
	}
	return item, nil
}

// assignFailure distinguishes "no such item" from "item exists but is not
// pending", so the caller sees the precondition that actually failed.
func (r *Repository) assignFailure(ctx context.Context, invoiceNumber, itemCode string) error {
	var status domain.ItemStatus
	err := r.pool.QueryRow(ctx, `
		SELECT status FROM invoice_items
		WHERE UPPER(TRIM(invoice_number)) = UPPER(TRIM($1))
		  AND UPPER(TRIM(item_code)) = UPPER(TRIM($2))
		ORDER BY id ASC
		LIMIT 1
	`, invoiceNumber, itemCode).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("inspect assignment target: %w", err)
	}
	return &domain.PreconditionFailedError{
		Op:       "assign location",
		Expected: string(domain.StatusPendingPlacement),
		Actual:   string(status),
	}
}

func (r *Repository) BulkAssignLocation(ctx context.Context, invoiceNumber, location, actor string) (int, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin bulk assign tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		UPDATE invoice_items
		SET
			status = $3,
			location = $2,
			assigned_by = $4,
			assigned_at = NOW(),
			updated_at = NOW()
		WHERE UPPER(TRIM(invoice_number)) = UPPER(TRIM($1))
		  AND status = $5
		RETURNING `+itemColumns,
		invoiceNumber, location,
		domain.StatusPlaced, actor, domain.StatusPendingPlacement,
	)
	if err != nil {
		return 0, fmt.Errorf("bulk assign location: %w", err)
	}

	placed := make([]domain.InvoiceItem, 0)
	for rows.Next() {
		item, err := scanItemRow(rows)
		if err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan placed item: %w", err)
		}
		placed = append(placed, item)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate placed items: %w", err)
	}

	for _, item := range placed {
		if err := insertAssignmentTx(ctx, tx, item, location, actor, "bulk assignment"); err != nil {
			return 0, err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit bulk assign tx: %w", err)
	}
	return len(placed), nil
}

func insertAssignmentTx(ctx context.Context, tx pgx.Tx, item domain.InvoiceItem, location, actor, reason string) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO location_assignments (
			invoice_number,
			item_code,
			quantity,
			unit,
			location,
			assigned_by,
			assigned_at,
			reason
		) VALUES ($1, $2, $3, $4, $5, $6, NOW(), $7)
	`,
		item.InvoiceNumber,
		item.ItemCode,
		item.Quantity,
		item.Unit,
		location,
		actor,
		reason,
	); err != nil {
		return fmt.Errorf("insert location assignment for %s: %w", item.ItemCode, err)
	}
	return nil
}

func (r *Repository) MarkReadyToCount(ctx context.Context, cutoff time.Time) (int, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE invoice_items
		SET status = $1, updated_at = NOW()
		WHERE status = $2
		  AND document_date <= $3
	`, domain.StatusReadyToCount, domain.StatusPlaced, cutoff)
	if err != nil {
		return 0, fmt.Errorf("mark ready to count: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *Repository) PartitionCounts(ctx context.Context, cutoff time.Time) (int, int, error) {
	var included, excluded int
	if err := r.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE document_date <= $1)::int,
			COUNT(*) FILTER (WHERE document_date > $1)::int
		FROM invoice_items
		WHERE status = ANY($2)
	`, cutoff, countableStatuses()).Scan(&included, &excluded); err != nil {
		return 0, 0, fmt.Errorf("partition counts: %w", err)
	}
	return included, excluded, nil
}

func (r *Repository) LockAfter(ctx context.Context, after time.Time, actor, reason string) (int, error) {
	cmd, err := r.pool.Exec(ctx, `
		UPDATE invoice_items
		SET
			status = $1,
			locked_at = NOW(),
			locked_by = $2,
			lock_reason = $3,
			unlocked_at = NULL,
			unlocked_by = NULL,
			updated_at = NOW()
		WHERE document_date > $4
		  AND status NOT IN ($5, $6)
	`, domain.StatusLocked, actor, reason, after, domain.StatusLocked, domain.StatusCounted)
	if err != nil {
		return 0, fmt.Errorf("lock items after %s: %w", after.Format("2006-01-02"), err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *Repository) Unlock(ctx context.Context, sel store.UnlockSelector, actor string) (int, error) {
	if sel.Empty() {
		return 0, fmt.Errorf("unlock selector is empty")
	}

	query := `
		UPDATE invoice_items
		SET
			status = $1,
			unlocked_at = NOW(),
			unlocked_by = $2,
			updated_at = NOW()
		WHERE status = $3`
	args := []any{domain.StatusPlaced, actor, domain.StatusLocked}
	idx := 4

	if sel.InvoiceNumber != "" {
		query += fmt.Sprintf(" AND UPPER(TRIM(invoice_number)) = UPPER(TRIM($%d))", idx)
		args = append(args, sel.InvoiceNumber)
		idx++
	}
	if sel.ItemCode != "" {
		query += fmt.Sprintf(" AND UPPER(TRIM(item_code)) = UPPER(TRIM($%d))", idx)
		args = append(args, sel.ItemCode)
		idx++
	}
	if sel.AfterDate != nil {
		query += fmt.Sprintf(" AND document_date > $%d", idx)
		args = append(args, *sel.AfterDate)
		idx++
	}

	cmd, err := r.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("unlock items: %w", err)
	}
	return int(cmd.RowsAffected()), nil
}

func (r *Repository) ExpectedQuantities(ctx context.Context, cutoff *time.Time, location string) ([]domain.ExpectedItem, error) {
	query := `
		WITH latest_price AS (
			SELECT DISTINCT ON (UPPER(TRIM(item_code)))
				UPPER(TRIM(item_code)) AS code_key,
				unit_price
			FROM invoice_items
			ORDER BY UPPER(TRIM(item_code)), document_date DESC, id DESC
		)
		SELECT
			MIN(i.item_code),
			MIN(i.description),
			i.location,
			MIN(i.unit),
			COALESCE(SUM(i.quantity), 0),
			MIN(lp.unit_price)
		FROM invoice_items i
		JOIN latest_price lp ON lp.code_key = UPPER(TRIM(i.item_code))
		WHERE i.status = ANY($1)
		  AND i.location IS NOT NULL`
	args := []any{countableStatuses()}
	idx := 2

	if cutoff != nil {
		query += fmt.Sprintf(" AND i.document_date <= $%d", idx)
		args = append(args, *cutoff)
		idx++
	}
	if location != "" {
		query += fmt.Sprintf(" AND i.location = $%d", idx)
		args = append(args, location)
		idx++
	}
	query += `
		GROUP BY UPPER(TRIM(i.item_code)), i.location
		ORDER BY UPPER(TRIM(i.item_code)) ASC, i.location ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("expected quantities: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ExpectedItem, 0)
	for rows.Next() {
		var item domain.ExpectedItem
		if err := rows.Scan(
			&item.ItemCode,
			&item.Description,
			&item.Location,
			&item.Unit,
			&item.ExpectedQty,
			&item.UnitPrice,
		); err != nil {
			return nil, fmt.Errorf("scan expected item: %w", err)
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expected items: %w", err)
	}
	return result, nil
}

func (r *Repository) ExpectedForItem(ctx context.Context, itemCode, location string) (decimal.Decimal, decimal.Decimal, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM invoice_items
			WHERE UPPER(TRIM(item_code)) = UPPER(TRIM($1))
		)
	`, itemCode).Scan(&exists); err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("check item code %s: %w", itemCode, err)
	}
	if !exists {
		return decimal.Decimal{}, decimal.Decimal{}, domain.ErrNotFound
	}

	var qty, unitPrice decimal.Decimal
	query := `
		SELECT
			COALESCE(SUM(quantity) FILTER (
				WHERE status = ANY($2)`
	args := []any{itemCode, countableStatuses()}
	idx := 3
	if location != "" {
		query += fmt.Sprintf(" AND location = $%d", idx)
		args = append(args, location)
		idx++
	}
	query += `
			), 0),
			(
				SELECT unit_price FROM invoice_items
				WHERE UPPER(TRIM(item_code)) = UPPER(TRIM($1))
				ORDER BY document_date DESC, id DESC
				LIMIT 1
			)
		FROM invoice_items
		WHERE UPPER(TRIM(item_code)) = UPPER(TRIM($1))`

	if err := r.pool.QueryRow(ctx, query, args...).Scan(&qty, &unitPrice); err != nil {
		return decimal.Decimal{}, decimal.Decimal{}, fmt.Errorf("expected qty for %s: %w", itemCode, err)
	}
	return qty, unitPrice, nil
}

func (r *Repository) ListLocationAssignments(ctx context.Context, invoiceNumber string) ([]domain.LocationAssignment, error) {
	query := `
		SELECT
			id,
			invoice_number,
			item_code,
			quantity,
			unit,
			location,
			assigned_by,
			assigned_at,
			reason
		FROM location_assignments`
	args := []any{}
	if s := strings.TrimSpace(invoiceNumber); s != "" {
		query += ` WHERE UPPER(TRIM(invoice_number)) = UPPER(TRIM($1))`
		args = append(args, s)
	}
	query += ` ORDER BY id ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list location assignments: %w", err)
	}
	defer rows.Close()

	result := make([]domain.LocationAssignment, 0)
	for rows.Next() {
		var a domain.LocationAssignment
		if err := rows.Scan(
			&a.ID,
			&a.InvoiceNumber,
			&a.ItemCode,
			&a.Quantity,
			&a.Unit,
			&a.Location,
			&a.AssignedBy,
			&a.AssignedAt,
			&a.Reason,
		); err != nil {
			return nil, fmt.Errorf("scan location assignment: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate location assignments: %w", err)
	}
	return result, nil
}

func (r *Repository) CountItemsByStatus(ctx context.Context) (map[domain.ItemStatus]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT status, COUNT(*)::int
		FROM invoice_items
		GROUP BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("count items by status: %w", err)
	}
	defer rows.Close()

	result := make(map[domain.ItemStatus]int)
	for rows.Next() {
		var (
			status domain.ItemStatus
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		result[status] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate status counts: %w", err)
	}
	return result, nil
}

func countableStatuses() []string {
	statuses := make([]string, 0, len(domain.CountableStatuses))
	for _, s := range domain.CountableStatuses {
		statuses = append(statuses, string(s))
	}
	return statuses
}

func scanItemRow(row pgx.Row) (domain.InvoiceItem, error) {
	var item domain.InvoiceItem
	if err := row.Scan(
		&item.ID,
		&item.InvoiceNumber,
		&item.ItemCode,
		&item.Description,
		&item.Quantity,
		&item.Unit,
		&item.UnitPrice,
		&item.LineTotal,
		&item.Status,
		&item.Location,
		&item.DocumentDate,
		&item.AssignedBy,
		&item.AssignedAt,
		&item.LockedAt,
		&item.LockedBy,
		&item.LockReason,
		&item.UnlockedAt,
		&item.UnlockedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	); err != nil {
		return domain.InvoiceItem{}, err
	}
	return item, nil
}
