// Package main applies embedded migrations to the coaching and idempotency
// databases, creating them when missing.
package main

import (
	"context"
	"log"
	"path/filepath"
	"strings"
	"time"

	ledgersqlite "github.com/kindredlabs/kindred/internal/coaching/idempotency/ledger/sqlite"
	storagesqlite "github.com/kindredlabs/kindred/internal/coaching/storage/sqlite"
	"github.com/kindredlabs/kindred/internal/platform/config"
	"github.com/kindredlabs/kindred/internal/platform/otel"
)

const otelShutdownTimeout = 5 * time.Second

type migrateEnv struct {
	CoachingDBPath string `env:"KINDRED_COACHING_DB_PATH"`
	LedgerDBPath   string `env:"KINDRED_LEDGER_DB_PATH"`
}

func loadMigrateEnv() migrateEnv {
	var cfg migrateEnv
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("parse environment: %v", err)
	}
	if strings.TrimSpace(cfg.CoachingDBPath) == "" {
		cfg.CoachingDBPath = filepath.Join("data", "coaching.db")
	}
	if strings.TrimSpace(cfg.LedgerDBPath) == "" {
		cfg.LedgerDBPath = filepath.Join("data", "ledger.db")
	}
	return cfg
}

func main() {
	log.SetPrefix("[MIGRATE] ")
	ctx := context.Background()
	cfg := loadMigrateEnv()

	shutdown, err := otel.Setup(ctx, "migrate")
	if err != nil {
		config.Exitf("setup telemetry: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("telemetry shutdown: %v", err)
		}
	}()

	store, err := storagesqlite.Open(cfg.CoachingDBPath)
	if err != nil {
		config.Exitf("migrate coaching db %s: %v", cfg.CoachingDBPath, err)
	}
	if err := store.Close(); err != nil {
		config.Exitf("close coaching db: %v", err)
	}
	log.Printf("coaching db ready at %s", cfg.CoachingDBPath)

	ledger, err := ledgersqlite.Open(cfg.LedgerDBPath)
	if err != nil {
		config.Exitf("migrate ledger db %s: %v", cfg.LedgerDBPath, err)
	}
	if err := ledger.Close(); err != nil {
		config.Exitf("close ledger db: %v", err)
	}
	log.Printf("ledger db ready at %s", cfg.LedgerDBPath)
}
