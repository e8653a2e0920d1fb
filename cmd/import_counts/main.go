// Command import_counts records a count sheet xlsx against a physical
// count directly from the shell, for sites that collect counts on paper
// and type them into a spreadsheet.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/auth"
	"github.com/Neuropilotai/inventory-backend/internal/config"
	"github.com/Neuropilotai/inventory-backend/internal/db"
	"github.com/Neuropilotai/inventory-backend/internal/excel"
	"github.com/Neuropilotai/inventory-backend/internal/repository"
	"github.com/Neuropilotai/inventory-backend/internal/service"
)

type options struct {
	filePath  string
	countID   string
	countDate string
	actor     string
	strict    bool
	complete  bool
}

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	opts := parseFlags()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.WithError(err).Fatal("database error")
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool); err != nil {
		log.WithError(err).Fatal("migration error")
	}

	svc := service.New(repository.New(pool), auth.NewStaticAuthorizer(nil), log)

	if err := run(ctx, svc, opts, log); err != nil {
		log.WithError(err).Fatal("import failed")
	}
}

func parseFlags() options {
	var opts options
	flag.StringVar(&opts.filePath, "file", "", "path to the count sheet xlsx (required)")
	flag.StringVar(&opts.countID, "count", "", "existing count id; a new count is opened when empty")
	flag.StringVar(&opts.countDate, "date", "", "count date for a new count (YYYY-MM-DD, default today)")
	flag.StringVar(&opts.actor, "actor", "import_counts", "name recorded on each count record")
	flag.BoolVar(&opts.strict, "strict", false, "abort on the first bad row instead of reporting and continuing")
	flag.BoolVar(&opts.complete, "complete", false, "complete the count after importing")
	flag.Parse()

	if opts.filePath == "" {
		flag.Usage()
		os.Exit(2)
	}
	return opts
}

func run(ctx context.Context, svc *service.Service, opts options, log *logrus.Logger) error {
	file, err := os.Open(opts.filePath)
	if err != nil {
		return fmt.Errorf("open %s: %w", opts.filePath, err)
	}
	defer file.Close()

	rows, err := excel.ParseCountRows(file)
	if err != nil {
		return fmt.Errorf("parse %s: %w", opts.filePath, err)
	}

	countID, err := resolveCount(ctx, svc, opts)
	if err != nil {
		return err
	}

	report, err := svc.Counting.ImportCounts(ctx, countID, rows, opts.actor, opts.strict)
	for _, rowErr := range report.Errors {
		log.WithFields(logrus.Fields{
			"row":   rowErr.Row,
			"field": rowErr.Field,
		}).Warn(rowErr.Message)
	}
	if err != nil {
		return err
	}

	log.WithFields(logrus.Fields{
		"count_id": countID,
		"imported": report.Imported,
		"skipped":  report.Skipped,
	}).Info("count sheet imported")

	if opts.complete {
		completed, err := svc.Counting.CompletePhysicalCount(ctx, countID)
		if err != nil {
			return err
		}
		log.WithFields(logrus.Fields{
			"count_id":       countID,
			"records":        completed.RecordCount,
			"counted_value":  completed.TotalCountedValue.String(),
			"variance_value": completed.TotalVarianceValue.String(),
		}).Info("count completed")
	}
	return nil
}

func resolveCount(ctx context.Context, svc *service.Service, opts options) (uuid.UUID, error) {
	if opts.countID != "" {
		id, err := uuid.Parse(opts.countID)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("invalid count id %q", opts.countID)
		}
		return id, nil
	}

	countDate := time.Now().UTC()
	if opts.countDate != "" {
		parsed, err := time.Parse("2006-01-02", opts.countDate)
		if err != nil {
			return uuid.UUID{}, fmt.Errorf("invalid date %q, want YYYY-MM-DD", opts.countDate)
		}
		countDate = parsed.UTC()
	}

	count, err := svc.Counting.OpenCount(ctx, countDate, opts.actor)
	if err != nil {
		return uuid.UUID{}, err
	}
	return count.ID, nil
}
