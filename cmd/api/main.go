// Copyright (c) 2026 Egregore. All rights reserved.
// Author: ops@egregore.dev

// Command api is the entry point for the Egregore HTTP API server.
//
// # Startup Sequence
//
//  1. Initialize structured logger.
//  2. Load configuration from environment variables.
//  3. Connect to PostgreSQL (pgxpool).
//  4. Connect to Redis.
//  5. Run database migrations (idempotent).
//  6. Parse the API keyring.
//  7. Open document collections (advances each primary term).
//  8. Wire HTTP handlers.
//  9. Start HTTP server with graceful shutdown.
//
// No business logic lives here. All wiring is explicit constructor injection.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/egregore/egregore/internal/api"
	"github.com/egregore/egregore/internal/core/audit"
	"github.com/egregore/egregore/internal/core/history"
	"github.com/egregore/egregore/internal/core/metrics"
	"github.com/egregore/egregore/internal/core/tag"
	"github.com/egregore/egregore/internal/platform/config"
	"github.com/egregore/egregore/internal/platform/constants"
	"github.com/egregore/egregore/internal/platform/docstore"
	"github.com/egregore/egregore/internal/platform/identity"
	"github.com/egregore/egregore/internal/platform/migration"
	pgstore "github.com/egregore/egregore/internal/platform/postgres"
	redisstore "github.com/egregore/egregore/internal/platform/redis"
)

func main() {
	// ── 1. Logger ──────────────────────────────────────────────────────────
	// Initialize first so that subsequent startup errors are structured JSON.
	rawLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	// Add global context to all log entries.
	log := rawLog.With(slog.String("app", "egregore"))
	slog.SetDefault(log)

	log.Info("[Egregore] service_initializing")

	// ── 2. Configuration ──────────────────────────────────────────────────
	cfg, err := config.Load()
	must(log, err, "load configuration")

	if cfg.Debug {
		debugLog := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
		log = debugLog.With(slog.String("app", "egregore"))
		slog.SetDefault(log)
		log.Debug("debug_logging_enabled")
	}

	log.Info("configuration_loaded",
		slog.String("environment", cfg.Environment),
		slog.String("port", cfg.ServerPort),
	)

	// Root context for startup. Use a 30s deadline so misconfiguration is
	// caught quickly rather than hanging indefinitely.
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startupCancel()

	// ── 3. PostgreSQL ─────────────────────────────────────────────────────
	pool, err := pgstore.NewPool(startupCtx, cfg.DatabaseURL, log)
	must(log, err, "connect to postgres")
	defer func() {
		log.Info("closing postgres pool")
		pool.Close()
	}()

	// ── 4. Redis ──────────────────────────────────────────────────────────
	rdb, err := redisstore.NewClient(startupCtx, cfg.RedisURL, log)
	must(log, err, "connect to redis")
	defer func() {
		log.Info("closing redis client")
		if cerr := rdb.Close(); cerr != nil {
			log.Error("redis close error", slog.Any("error", cerr))
		}
	}()

	// ── 5. Migrations ─────────────────────────────────────────────────────
	must(log, migration.RunUp(cfg.DatabaseURL, cfg.MigrationPath, log), "run migrations")

	// ── 6. API Keyring ────────────────────────────────────────────────────
	keyring, err := identity.ParseKeyring(cfg.APIKeys)
	must(log, err, "parse API keyring")

	// ── 7. Document Collections ───────────────────────────────────────────
	// Opening a collection advances its primary term, invalidating every
	// sequence token issued before this process started.
	store := docstore.New(pool)

	tagsCollection, err := store.Collection(startupCtx, constants.CollectionTags)
	must(log, err, "open tags collection")
	historyCollection, err := store.Collection(startupCtx, constants.CollectionTagHistory)
	must(log, err, "open tag history collection")
	auditCollection, err := store.Collection(startupCtx, constants.CollectionTagAudit)
	must(log, err, "open tag audit collection")

	log.Info("collections_opened",
		slog.Int64("tags_primary_term", tagsCollection.PrimaryTerm()),
	)

	// ── 8. Health handlers (wired with real dependency checkers) ──────────
	liveness, readiness := api.NewHealthHandlers(api.HealthDependencies{
		CheckDatabase: func() error {
			return pgstore.Ping(context.Background(), pool)
		},
		CheckCache: func() error {
			return redisstore.Ping(context.Background(), rdb)
		},
	}, log)

	// ── 9. Domain Wiring ──────────────────────────────────────────────────
	historyService := history.NewService(historyCollection, log)
	auditService := audit.NewService(auditCollection, log)
	tagService := tag.NewService(tagsCollection, historyService, auditService, log)
	metricsService := metrics.NewService(tagsCollection, auditService, metrics.NewRedisCache(rdb), log)

	// ── 10. HTTP Server ───────────────────────────────────────────────────
	handlers := api.Handlers{
		Liveness:  liveness,
		Readiness: readiness,
		Tag:       tag.NewHandler(tagService),
		History:   history.NewHandler(historyService),
		Audit:     audit.NewHandler(auditService),
		Metrics:   metrics.NewHandler(metricsService),
	}

	server := api.NewServer(context.Background(), cfg, log, keyring, handlers)

	// ── 11. Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until OS signal or server error.
	select {
	case sig := <-quit:
		log.Info("shutdown signal received", slog.String("signal", sig.String()))
	case err := <-serverErr:
		log.Error("server startup error", slog.Any("error", err))
	}

	// Give in-flight requests enough time to complete.
	shutdownTimeout := constants.ShutdownTimeout
	log.Info("shutting down server", slog.Duration("timeout", shutdownTimeout))

	if err := server.Shutdown(shutdownTimeout); err != nil {
		log.Error("shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	log.Info("server stopped cleanly")
}

// must logs a structured fatal error and terminates the process if err is non-nil.
//
// It is intentionally limited to startup wiring. After startup, all errors
// must be returned and handled explicitly (never panic).
func must(log *slog.Logger, err error, context string) {
	if err != nil {
		log.Error("startup failure",
			slog.String("context", context),
			slog.Any("error", err),
		)
		os.Exit(1)
	}
}
