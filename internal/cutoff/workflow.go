// Package cutoff implements "count inventory as of date X" while orders
// keep arriving: partition placed items around the cutoff date, mark the
// included side ready to count, and optionally hard-lock the excluded
// side so it cannot leak into count sheets.
package cutoff

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/domain"
	"github.com/Neuropilotai/inventory-backend/internal/inventory"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

type Workflow struct {
	items   *inventory.Service
	configs store.CutoffStore
	log     *logrus.Logger
}

func New(items *inventory.Service, configs store.CutoffStore, log *logrus.Logger) *Workflow {
	return &Workflow{items: items, configs: configs, log: log}
}

// PrepareCutoff partitions countable items around cutoffDate, marks the
// included side READY_TO_COUNT, and persists the partition as an explicit
// configuration record. Idempotent: the status guard on MarkReadyToCount
// means a re-run with the same date transitions zero additional rows and
// only refreshes the persisted counts.
func (w *Workflow) PrepareCutoff(ctx context.Context, cutoffDate time.Time, actor string) (domain.CutoffConfig, error) {
	marked, err := w.items.MarkReadyToCount(ctx, cutoffDate)
	if err != nil {
		return domain.CutoffConfig{}, fmt.Errorf("prepare cutoff %s: %w", cutoffDate.Format("2006-01-02"), err)
	}

	included, excluded, err := w.partition(ctx, cutoffDate)
	if err != nil {
		return domain.CutoffConfig{}, err
	}

	cfg, err := w.configs.SaveCutoffConfig(ctx, domain.CutoffConfig{
		CutoffDate:    cutoffDate,
		IncludedCount: included,
		ExcludedCount: excluded,
		PreparedBy:    actor,
		PreparedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.CutoffConfig{}, fmt.Errorf("save cutoff config: %w", err)
	}

	w.log.WithFields(logrus.Fields{
		"cutoff":   cutoffDate.Format("2006-01-02"),
		"marked":   marked,
		"included": included,
		"excluded": excluded,
	}).Info("cutoff prepared")
	return cfg, nil
}

// LockAfterCutoff hard-locks the excluded partition so late-arriving
// orders cannot surface even when queried directly.
func (w *Workflow) LockAfterCutoff(ctx context.Context, cutoffDate time.Time, actor string) (domain.CutoffConfig, error) {
	locked, err := w.items.Lock(ctx, cutoffDate, actor,
		fmt.Sprintf("arrived after cutoff %s", cutoffDate.Format("2006-01-02")))
	if err != nil {
		return domain.CutoffConfig{}, fmt.Errorf("lock after cutoff: %w", err)
	}

	included, excluded, err := w.partition(ctx, cutoffDate)
	if err != nil {
		return domain.CutoffConfig{}, err
	}

	cfg, err := w.configs.SaveCutoffConfig(ctx, domain.CutoffConfig{
		CutoffDate:    cutoffDate,
		IncludedCount: included,
		ExcludedCount: excluded + locked,
		Locked:        true,
		PreparedBy:    actor,
		PreparedAt:    time.Now().UTC(),
	})
	if err != nil {
		return domain.CutoffConfig{}, fmt.Errorf("save cutoff config: %w", err)
	}
	return cfg, nil
}

// Unlock reverses a post-cutoff lock for an authorized actor.
func (w *Workflow) Unlock(ctx context.Context, sel store.UnlockSelector, actor, credentials string) (int, error) {
	return w.items.Unlock(ctx, sel, actor, credentials)
}

func (w *Workflow) CurrentConfig(ctx context.Context) (*domain.CutoffConfig, error) {
	return w.configs.LatestCutoffConfig(ctx)
}

func (w *Workflow) partition(ctx context.Context, cutoffDate time.Time) (int, int, error) {
	included, excluded, err := w.items.PartitionCounts(ctx, cutoffDate)
	if err != nil {
		return 0, 0, fmt.Errorf("partition counts: %w", err)
	}
	return included, excluded, nil
}
