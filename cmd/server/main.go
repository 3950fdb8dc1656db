// Package main is the entrypoint for the ThreatLens API server.
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

	"github.com/kiranshivaraju/threatlens/internal/ai"
	"github.com/kiranshivaraju/threatlens/internal/analysis"
	"github.com/kiranshivaraju/threatlens/internal/api"
	"github.com/kiranshivaraju/threatlens/internal/api/handler"
	mw "github.com/kiranshivaraju/threatlens/internal/api/middleware"
	"github.com/kiranshivaraju/threatlens/internal/cache"
	"github.com/kiranshivaraju/threatlens/internal/config"
	"github.com/kiranshivaraju/threatlens/internal/jobs"
	"github.com/kiranshivaraju/threatlens/internal/logging"
	"github.com/kiranshivaraju/threatlens/internal/metrics"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/internal/upload"
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
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.SetDefault(logging.New(cfg.Log, os.Stdout))
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Open job store (applies migrations for Postgres)
	st, err := store.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()
	slog.Info("job store ready")

	// 3. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 4. Create AI provider
	provider, err := ai.NewProvider(ctx, cfg.AI)
	if err != nil {
		return fmt.Errorf("create AI provider: %w", err)
	}
	svc := ai.NewInstrumented(provider)
	slog.Info("AI provider initialized", "provider", svc.Name())

	metrics.MustRegister()

	// 5. Pipeline
	processor := jobs.NewProcessor(st, redisCache,
		analysis.NewDiagramStage(svc, cfg.Analysis.DiagramTokenBudget),
		analysis.NewThreatStage(svc, cfg.Analysis.ThreatTokenBudget, cfg.Analysis.CategoryDelay),
	)
	jobService := jobs.NewService(st, redisCache, processor)

	go func() {
		worker := jobs.NewCleanupWorker(jobService, cfg.Cleanup.RetentionDays, cfg.Cleanup.Interval)
		if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("cleanup worker stopped", "error", err)
		}
	}()

	// 6. Build router with dependencies
	analysisHandler := handler.NewAnalysis(jobService,
		upload.NewSaver(cfg.Upload.Dir, cfg.Upload.MaxBytes), svc.Name())

	deps := api.Dependencies{
		Auth:      mw.NewAuth(cfg.Auth.APIKeyHashes),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RequestsPerMinute),

		HealthHandler:        handler.NewHealthHandler(st, redisCache),
		MetricsHandler:       metrics.Handler(),
		AnalyzeHandler:       analysisHandler.Analyze,
		GetJobHandler:        analysisHandler.GetJob,
		JobStatusHandler:     analysisHandler.JobStatus,
		ListJobsHandler:      analysisHandler.ListJobs,
		ServiceStatusHandler: analysisHandler.ServiceStatus,
	}
	if !deps.Auth.Enabled() {
		slog.Warn("no API key hashes configured, analysis endpoints are unauthenticated")
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := processor.WaitContext(shutdownCtx); err != nil {
		slog.Warn("jobs still running at shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}
