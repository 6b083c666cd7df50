// Package main is the entrypoint for the errdeck API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/errdeck/errdeck/internal/api"
	"github.com/errdeck/errdeck/internal/api/handler"
	mw "github.com/errdeck/errdeck/internal/api/middleware"
	"github.com/errdeck/errdeck/internal/api/response"
	"github.com/errdeck/errdeck/internal/cache"
	"github.com/errdeck/errdeck/internal/config"
	"github.com/errdeck/errdeck/internal/ingest"
	"github.com/errdeck/errdeck/internal/notify"
	"github.com/errdeck/errdeck/internal/problem"
	"github.com/errdeck/errdeck/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config — fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and cached credential lookup
	pgStore := store.NewPostgresStore(pool)
	appLookup := cache.NewAppLookup(redisCache, pgStore)

	// 6. Build the ingestion pipeline and maintenance operations
	merger := problem.NewMerger(pgStore)
	compressor := problem.NewCompressor(pgStore)
	destroyer := problem.NewDestroyer(pgStore)

	var dispatcher notify.Dispatcher = notify.LogDispatcher{}
	if cfg.Webhook.URL != "" {
		dispatcher = notify.NewWebhookDispatcher(cfg.Webhook.URL, cfg.Webhook.Timeout)
		slog.Info("webhook notifications enabled", "url", cfg.Webhook.URL)
	}

	pipeline := ingest.NewPipeline(pgStore, appLookup, merger, compressor, dispatcher)

	// 7. Build router with dependencies
	deps := api.Dependencies{
		AdminAuth: mw.NewAdminAuth(cfg.Admin.TokenHash),
		RateLimit: mw.NewRateLimit(redisCache, cfg.RateLimit.PerMinute),

		HealthHandler:    healthHandler(pgStore, redisCache),
		IngestHandler:    handler.NewIngestHandler(pipeline),
		MergeHandler:     handler.NewMergeHandler(merger),
		ResolveHandler:   handler.NewResolveHandler(pgStore),
		UnresolveHandler: handler.NewUnresolveHandler(pgStore),
		DestroyHandler:   handler.NewDestroyHandler(destroyer),
	}

	router := api.NewRouter(deps)

	// 8. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// pinger is the connectivity check the health endpoint needs.
type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, cache pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := cache.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
