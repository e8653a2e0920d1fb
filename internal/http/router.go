package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

func NewRouter(handler *Handler, log *logrus.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Logger(log))
	r.Use(Recoverer(log))
	r.Use(Timeout)
	r.Use(CORS)

	r.Get("/healthz", handler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/documents/ingest", handler.IngestDocument)
		r.Post("/documents/check-duplicate", handler.CheckDuplicate)
		r.Get("/documents/stats", handler.RegistryStats)

		r.Get("/items", handler.ListItems)
		r.Get("/items/status-breakdown", handler.StatusBreakdown)
		r.Post("/items/assign-location", handler.AssignLocation)
		r.Post("/items/bulk-assign-location", handler.BulkAssignLocation)
		r.Get("/items/assignments", handler.ListAssignments)

		r.Post("/cutoff/prepare", handler.PrepareCutoff)
		r.Post("/cutoff/lock", handler.LockAfterCutoff)
		r.Post("/cutoff/unlock", handler.Unlock)
		r.Get("/cutoff/config", handler.CutoffConfig)

		r.Get("/counts/sheet", handler.CountSheet)
		r.Post("/counts", handler.OpenCount)
		r.Get("/counts/{id}", handler.GetCount)
		r.Get("/counts/{id}/records", handler.ListCountRecords)
		r.Post("/counts/{id}/records", handler.RecordCount)
		r.Post("/counts/{id}/import-excel", handler.ImportCountsExcel)
		r.Post("/counts/{id}/complete", handler.CompleteCount)

		r.Post("/snapshots", handler.CreateSnapshot)
		r.Get("/snapshots/{id}", handler.GetSnapshot)
		r.Get("/snapshots/{id}/items", handler.ListSnapshotItems)
		r.Post("/snapshots/{id}/report", handler.SnapshotReport)
	})

	return r
}
