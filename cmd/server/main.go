package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"veritas/internal/engine"
	enginemetrics "veritas/internal/engine/metrics"
	"veritas/internal/idempotency"
	"veritas/internal/ledger"
	"veritas/internal/platform/config"
	"veritas/internal/platform/httpserver"
	"veritas/internal/platform/logger"
	"veritas/internal/platform/postgres"
	platformredis "veritas/internal/platform/redis"
	httptransport "veritas/internal/transport/http"
	audit "veritas/pkg/platform/audit"
	"veritas/pkg/platform/audit/mirror"
	"veritas/pkg/platform/audit/retention"
	auditpg "veritas/pkg/platform/audit/store/postgres"
)

// main wires high-level dependencies and keeps the process lifecycle
// small. Business logic lives in the internal services packages.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database)
	if err != nil {
		log.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisClient, err := platformredis.New(ctx, cfg.Redis)
	if err != nil {
		log.Error("redis connection failed", "error", err)
		os.Exit(1)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	auditStore := auditpg.New(db)
	auditMetrics := audit.NewMetrics()
	writer := audit.NewWriter(auditStore, log, audit.WithMetrics(auditMetrics))

	guardOpts := []idempotency.GuardOption{}
	if redisClient != nil {
		guardOpts = append(guardOpts, idempotency.WithCache(idempotency.NewCache(redisClient.Client, log)))
	}
	guard := idempotency.NewGuard(idempotency.NewPostgres(db), log, guardOpts...)

	engMetrics := enginemetrics.New()
	coordinator := engine.NewCoordinator(writer, log, engMetrics)
	applier := ledger.NewApplier(ledger.NewPostgres(db))
	sessions := func() engine.Session { return engine.NewSQLSession(db) }
	eng := engine.New(guard, coordinator, sessions, writer, applier.Apply, log, engMetrics)

	policy := retention.ConfiguredPolicy(
		cfg.Retention.Compliance,
		cfg.Retention.Security,
		cfg.Retention.Operations,
	)
	handler := httptransport.New(eng, writer, auditStore, policy, log)
	router := httptransport.NewRouter(handler, log)
	srv := httpserver.New(cfg.Addr, router)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.Info("starting veritas", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if len(cfg.Kafka.Brokers) > 0 {
		publisher, err := mirror.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			log.Error("kafka connection failed", "error", err)
			os.Exit(1)
		}
		defer publisher.Close()

		worker := mirror.NewWorker(auditStore, publisher, log,
			mirror.WithInterval(cfg.Mirror.Interval),
			mirror.WithBatchSize(cfg.Mirror.BatchSize),
			mirror.WithDepthGauge(auditMetrics),
		)
		group.Go(func() error {
			if err := worker.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		log.Error("shutdown with error", "error", err)
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
