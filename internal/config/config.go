// Package config loads runtime settings from the environment, with an
// optional .env file for local development.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        int
	DatabaseURL string
	LogLevel    string

	// UnlockUser and UnlockPassword gate the unlock operation. Unlock is
	// refused entirely when they are unset.
	UnlockUser     string
	UnlockPassword string
}

func Load() (Config, error) {
	// Missing .env is fine; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	cfg := Config{
		Port:           8080,
		LogLevel:       "info",
		UnlockUser:     strings.TrimSpace(os.Getenv("UNLOCK_USER")),
		UnlockPassword: os.Getenv("UNLOCK_PASSWORD"),
	}

	if portRaw := strings.TrimSpace(os.Getenv("PORT")); portRaw != "" {
		port, err := strconv.Atoi(portRaw)
		if err != nil || port <= 0 {
			return Config{}, fmt.Errorf("invalid PORT: %q", portRaw)
		}
		cfg.Port = port
	}

	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		cfg.LogLevel = level
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL is required (environment variable or .env)")
	}

	return cfg, nil
}
