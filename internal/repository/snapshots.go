package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
)

const snapshotColumns = `
	id,
	name,
	count_date,
	cutoff_date,
	notes,
	last_invoice_number,
	counted_value,
	expected_value,
	variance_value,
	item_count,
	created_by,
	created_at
`

func (r *Repository) InsertSnapshot(ctx context.Context, snap domain.Snapshot, items []domain.SnapshotItem) (domain.Snapshot, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if snap.ID == uuid.Nil {
		snap.ID = uuid.New()
	}
	row := tx.QueryRow(ctx, `
		INSERT INTO snapshots (
			id,
			name,
			count_date,
			cutoff_date,
			notes,
			last_invoice_number,
			counted_value,
			expected_value,
			variance_value,
			item_count,
			created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING `+snapshotColumns,
		snap.ID,
		snap.Name,
		snap.CountDate,
		snap.CutoffDate,
		snap.Notes,
		snap.LastInvoiceNumber,
		snap.CountedValue,
		snap.ExpectedValue,
		snap.VarianceValue,
		snap.ItemCount,
		snap.CreatedBy,
	)
	inserted, err := scanSnapshotRow(row)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("insert snapshot %q: %w", snap.Name, err)
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, `
			INSERT INTO snapshot_items (
				snapshot_id,
				item_code,
				location,
				counted_qty,
				expected_qty,
				unit_price,
				counted_value,
				variance_value
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`,
			inserted.ID,
			item.ItemCode,
			item.Location,
			item.CountedQty,
			item.ExpectedQty,
			item.UnitPrice,
			item.CountedValue,
			item.VarianceValue,
		); err != nil {
			return domain.Snapshot{}, fmt.Errorf("insert snapshot item %s: %w", item.ItemCode, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Snapshot{}, fmt.Errorf("commit snapshot tx: %w", err)
	}
	return inserted, nil
}

func (r *Repository) GetSnapshot(ctx context.Context, id uuid.UUID) (*domain.Snapshot, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+snapshotColumns+` FROM snapshots WHERE id = $1`, id)
	snap, err := scanSnapshotRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return &snap, nil
}

func (r *Repository) ListSnapshotItems(ctx context.Context, id uuid.UUID) ([]domain.SnapshotItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT
			id,
			snapshot_id,
			item_code,
			location,
			counted_qty,
			expected_qty,
			unit_price,
			counted_value,
			variance_value
		FROM snapshot_items
		WHERE snapshot_id = $1
		ORDER BY id ASC
	`, id)
	if err != nil {
		return nil, fmt.Errorf("list snapshot items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.SnapshotItem, 0)
	for rows.Next() {
		var item domain.SnapshotItem
		if err := rows.Scan(
			&item.ID,
			&item.SnapshotID,
			&item.ItemCode,
			&item.Location,
			&item.CountedQty,
			&item.ExpectedQty,
			&item.UnitPrice,
			&item.CountedValue,
			&item.VarianceValue,
		); err != nil {
			return nil, fmt.Errorf("scan snapshot item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshot items: %w", err)
	}
	return items, nil
}

func (r *Repository) SaveCutoffConfig(ctx context.Context, cfg domain.CutoffConfig) (domain.CutoffConfig, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO cutoff_configs (
			cutoff_date,
			included_count,
			excluded_count,
			locked,
			prepared_by,
			prepared_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (cutoff_date)
		DO UPDATE SET
			included_count = EXCLUDED.included_count,
			excluded_count = EXCLUDED.excluded_count,
			locked = EXCLUDED.locked,
			prepared_by = EXCLUDED.prepared_by,
			prepared_at = EXCLUDED.prepared_at
		RETURNING
			id,
			cutoff_date,
			included_count,
			excluded_count,
			locked,
			prepared_by,
			prepared_at
	`,
		cfg.CutoffDate,
		cfg.IncludedCount,
		cfg.ExcludedCount,
		cfg.Locked,
		cfg.PreparedBy,
		cfg.PreparedAt,
	)
	saved, err := scanCutoffRow(row)
	if err != nil {
		return domain.CutoffConfig{}, fmt.Errorf("save cutoff config: %w", err)
	}
	return saved, nil
}

func (r *Repository) LatestCutoffConfig(ctx context.Context) (*domain.CutoffConfig, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT
			id,
			cutoff_date,
			included_count,
			excluded_count,
			locked,
			prepared_by,
			prepared_at
		FROM cutoff_configs
		ORDER BY prepared_at DESC
		LIMIT 1
	`)
	cfg, err := scanCutoffRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("latest cutoff config: %w", err)
	}
	return &cfg, nil
}

func scanSnapshotRow(row pgx.Row) (domain.Snapshot, error) {
	var snap domain.Snapshot
	if err := row.Scan(
		&snap.ID,
		&snap.Name,
		&snap.CountDate,
		&snap.CutoffDate,
		&snap.Notes,
		&snap.LastInvoiceNumber,
		&snap.CountedValue,
		&snap.ExpectedValue,
		&snap.VarianceValue,
		&snap.ItemCount,
		&snap.CreatedBy,
		&snap.CreatedAt,
	); err != nil {
		return domain.Snapshot{}, err
	}
	return snap, nil
}

func scanCutoffRow(row pgx.Row) (domain.CutoffConfig, error) {
	var cfg domain.CutoffConfig
	if err := row.Scan(
		&cfg.ID,
		&cfg.CutoffDate,
		&cfg.IncludedCount,
		&cfg.ExcludedCount,
		&cfg.Locked,
		&cfg.PreparedBy,
		&cfg.PreparedAt,
	); err != nil {
		return domain.CutoffConfig{}, err
	}
	return cfg, nil
}
