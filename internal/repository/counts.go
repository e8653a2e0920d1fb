package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
)

const countColumns = `
	id,
	count_date,
	status,
	created_by,
	created_at,
	completed_at,
	record_count,
	total_counted_value,
	total_expected_value,
	total_variance_value
`

const countRecordColumns = `
	id,
	count_id,
	item_code,
	location,
	expected_qty,
	counted_qty,
	variance,
	unit_price,
	variance_value,
	requires_recount,
	counted_by,
	created_at
`

func (r *Repository) CreateCount(ctx context.Context, count domain.PhysicalCount) (domain.PhysicalCount, error) {
	if count.ID == uuid.Nil {
		count.ID = uuid.New()
	}
	if count.Status == "" {
		count.Status = domain.CountOpen
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO physical_counts (
			id,
			count_date,
			status,
			created_by
		) VALUES ($1, $2, $3, $4)
		RETURNING `+countColumns,
		count.ID, count.CountDate, count.Status, count.CreatedBy,
	)
	inserted, err := scanCountRow(row)
	if err != nil {
		return domain.PhysicalCount{}, fmt.Errorf("create count: %w", err)
	}
	return inserted, nil
}

func (r *Repository) GetCount(ctx context.Context, id uuid.UUID) (*domain.PhysicalCount, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+countColumns+` FROM physical_counts WHERE id = $1`, id)
	count, err := scanCountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get count %s: %w", id, err)
	}
	return &count, nil
}

func (r *Repository) InsertCountRecord(ctx context.Context, rec domain.CountRecord) (domain.CountRecord, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.CountRecord{}, fmt.Errorf("begin count record tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status domain.CountStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM physical_counts WHERE id = $1 FOR UPDATE`,
		rec.CountID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.CountRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.CountRecord{}, fmt.Errorf("load count %s: %w", rec.CountID, err)
	}
	if status != domain.CountOpen {
		return domain.CountRecord{}, &domain.PreconditionFailedError{
			Op:       "record count",
			Expected: string(domain.CountOpen),
			Actual:   string(status),
		}
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO count_records (
			count_id,
			item_code,
			location,
			expected_qty,
			counted_qty,
			variance,
			unit_price,
			variance_value,
			requires_recount,
			counted_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING `+countRecordColumns,
		rec.CountID,
		rec.ItemCode,
		rec.Location,
		rec.ExpectedQty,
		rec.CountedQty,
		rec.Variance,
		rec.UnitPrice,
		rec.VarianceValue,
		rec.RequiresRecount,
		rec.CountedBy,
	)
	inserted, err := scanCountRecordRow(row)
	if err != nil {
		return domain.CountRecord{}, fmt.Errorf("insert count record for %s: %w", rec.ItemCode, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.CountRecord{}, fmt.Errorf("commit count record tx: %w", err)
	}
	return inserted, nil
}

func (r *Repository) ListCountRecords(ctx context.Context, countID uuid.UUID) ([]domain.CountRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+countRecordColumns+` FROM count_records WHERE count_id = $1 ORDER BY id ASC`,
		countID,
	)
	if err != nil {
		return nil, fmt.Errorf("list count records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.CountRecord, 0)
	for rows.Next() {
		rec, err := scanCountRecordRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan count record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate count records: %w", err)
	}
	return records, nil
}

func (r *Repository) CompleteCount(ctx context.Context, countID uuid.UUID) (domain.PhysicalCount, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.PhysicalCount{}, fmt.Errorf("begin complete count tx: %w", err)
	}
	defer tx.Rollback(ctx)

	var status domain.CountStatus
	err = tx.QueryRow(ctx,
		`SELECT status FROM physical_counts WHERE id = $1 FOR UPDATE`,
		countID,
	).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.PhysicalCount{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.PhysicalCount{}, fmt.Errorf("load count %s: %w", countID, err)
	}
	if status != domain.CountOpen {
		return domain.PhysicalCount{}, &domain.PreconditionFailedError{
			Op:       "complete count",
			Expected: string(domain.CountOpen),
			Actual:   string(status),
		}
	}

	// Every item referenced by this count's records moves to COUNTED in
	// the same transaction that freezes the header; a failure anywhere
	// rolls the whole completion back.
	if _, err := tx.Exec(ctx, `
		UPDATE invoice_items i
		SET status = $2, updated_at = NOW()
		FROM count_records cr
		WHERE cr.count_id = $1
		  AND UPPER(TRIM(i.item_code)) = UPPER(TRIM(cr.item_code))
		  AND i.location = cr.location
		  AND i.status = ANY($3)
	`, countID, domain.StatusCounted, countableStatuses()); err != nil {
		return domain.PhysicalCount{}, fmt.Errorf("mark counted items: %w", err)
	}

	row := tx.QueryRow(ctx, `
		UPDATE physical_counts
		SET
			status = $2,
			completed_at = NOW(),
			record_count = agg.records,
			total_counted_value = agg.counted_value,
			total_expected_value = agg.expected_value,
			total_variance_value = agg.variance_value
		FROM (
			SELECT
				COUNT(*)::int AS records,
				COALESCE(SUM(counted_qty * unit_price), 0) AS counted_value,
				COALESCE(SUM(expected_qty * unit_price), 0) AS expected_value,
				COALESCE(SUM(variance_value), 0) AS variance_value
			FROM count_records
			WHERE count_id = $1
		) agg
		WHERE physical_counts.id = $1
		RETURNING `+qualifiedCountColumns(),
		countID, domain.CountCompleted,
	)
	completed, err := scanCountRow(row)
	if err != nil {
		return domain.PhysicalCount{}, fmt.Errorf("freeze count totals: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.PhysicalCount{}, fmt.Errorf("commit complete count tx: %w", err)
	}
	return completed, nil
}

func (r *Repository) LatestCompletedCount(ctx context.Context) (*domain.PhysicalCount, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+countColumns+`
		FROM physical_counts
		WHERE status = $1
		ORDER BY completed_at DESC
		LIMIT 1
	`, domain.CountCompleted)
	count, err := scanCountRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("latest completed count: %w", err)
	}
	return &count, nil
}

func qualifiedCountColumns() string {
	return `
		physical_counts.id,
		physical_counts.count_date,
		physical_counts.status,
		physical_counts.created_by,
		physical_counts.created_at,
		physical_counts.completed_at,
		physical_counts.record_count,
		physical_counts.total_counted_value,
		physical_counts.total_expected_value,
		physical_counts.total_variance_value
	`
}

func scanCountRow(row pgx.Row) (domain.PhysicalCount, error) {
	var (
		count             domain.PhysicalCount
		counted, expected decimal.NullDecimal
		variance          decimal.NullDecimal
	)
	if err := row.Scan(
		&count.ID,
		&count.CountDate,
		&count.Status,
		&count.CreatedBy,
		&count.CreatedAt,
		&count.CompletedAt,
		&count.RecordCount,
		&counted,
		&expected,
		&variance,
	); err != nil {
		return domain.PhysicalCount{}, err
	}
	if counted.Valid {
		count.TotalCountedValue = counted.Decimal
	}
	if expected.Valid {
		count.TotalExpectedValue = expected.Decimal
	}
	if variance.Valid {
		count.TotalVarianceValue = variance.Decimal
	}
	return count, nil
}

func scanCountRecordRow(row pgx.Row) (domain.CountRecord, error) {
	var rec domain.CountRecord
	if err := row.Scan(
		&rec.ID,
		&rec.CountID,
		&rec.ItemCode,
		&rec.Location,
		&rec.ExpectedQty,
		&rec.CountedQty,
		&rec.Variance,
		&rec.UnitPrice,
		&rec.VarianceValue,
		&rec.RequiresRecount,
		&rec.CountedBy,
		&rec.CreatedAt,
	); err != nil {
		return domain.CountRecord{}, err
	}
	return rec, nil
}
