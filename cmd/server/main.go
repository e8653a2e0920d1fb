package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Neuropilotai/inventory-backend/internal/auth"
	"github.com/Neuropilotai/inventory-backend/internal/config"
	"github.com/Neuropilotai/inventory-backend/internal/db"
	httpapi "github.com/Neuropilotai/inventory-backend/internal/http"
	"github.com/Neuropilotai/inventory-backend/internal/repository"
	"github.com/Neuropilotai/inventory-backend/internal/service"
)

func main() {
	log := logrus.New()
	log.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("config error")
	}
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
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

	secrets := map[string]string{}
	if cfg.UnlockUser != "" {
		secrets[cfg.UnlockUser] = cfg.UnlockPassword
	} else {
		log.Warn("UNLOCK_USER not set; unlock operations will be refused")
	}

	repo := repository.New(pool)
	svc := service.New(repo, auth.NewStaticAuthorizer(secrets), log)
	handler := httpapi.NewHandler(svc)
	router := httpapi.NewRouter(handler, log)

	server := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		log.WithField("addr", server.Addr).Info("backend listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
		if closeErr := server.Close(); closeErr != nil {
			log.WithError(closeErr).Error("force close failed")
		}
	}
}
