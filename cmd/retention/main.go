package main

import (
	"context"
	"os"
	"time"

	"veritas/internal/platform/config"
	"veritas/internal/platform/logger"
	"veritas/internal/platform/postgres"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/retention"
	auditpg "veritas/pkg/platform/audit/store/postgres"
)

// main runs one retention sweep and exits. Intended to be scheduled
// (cron, Kubernetes CronJob); the sweep itself is the only code path in
// the system allowed to delete audit events.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	store := auditpg.New(db)
	writer := audit.NewWriter(store, log, audit.WithMetrics(audit.NewMetrics()))
	policy := retention.ConfiguredPolicy(
		cfg.Retention.Compliance,
		cfg.Retention.Security,
		cfg.Retention.Operations,
	)
	sweeper := retention.NewSweeper(policy, store, writer, log)

	deleted, err := sweeper.Sweep(ctx, time.Now())
	if err != nil {
		log.Error("retention sweep failed", "deleted", deleted, "error", err)
		os.Exit(1)
	}
	log.Info("retention sweep complete", "deleted", deleted)
}
