// Package service composes the subsystem services behind one facade so
// the HTTP layer and CLI tools wire against a single type.
package service

import (
	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/auth"
	"github.com/Neuropilotai/inventory-backend/internal/counting"
	"github.com/Neuropilotai/inventory-backend/internal/cutoff"
	"github.com/Neuropilotai/inventory-backend/internal/ingest"
	"github.com/Neuropilotai/inventory-backend/internal/inventory"
	"github.com/Neuropilotai/inventory-backend/internal/registry"
	"github.com/Neuropilotai/inventory-backend/internal/store"
)

type Service struct {
	Registry  *registry.Registry
	Ingest    *ingest.Pipeline
	Inventory *inventory.Service
	Cutoff    *cutoff.Workflow
	Counting  *counting.Service
}

func New(st store.Store, authorizer auth.Authorizer, log *logrus.Logger) *Service {
	reg := registry.New(st, log)
	inv := inventory.New(st, authorizer, log)
	return &Service{
		Registry:  reg,
		Ingest:    ingest.New(reg, log),
		Inventory: inv,
		Cutoff:    cutoff.New(inv, st, log),
		Counting:  counting.New(st, st, st, st, log),
	}
}
