// Package repository is the Postgres implementation of the store
// interfaces, built on pgx/v5. All status guards are enforced in SQL so a
// check-and-set can never interleave with a concurrent writer, and every
// multi-row transition runs in one transaction.
package repository

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

type Repository struct {
	pool *pgxpool.Pool
}

var _ store.Store = (*Repository)(nil)

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const uniqueViolationCode = "23505"

// mapDuplicateKey translates a Postgres unique violation into the domain
// sentinel so callers can treat a lost insert race as a duplicate.
func mapDuplicateKey(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return domain.ErrDuplicateKey
	}
	return err
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 200
	}
	if limit > 1000 {
		return 1000
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
