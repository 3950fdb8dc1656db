package jobs

import (
	"context"
	"log/slog"
	"time"
)

// CleanupWorker periodically deletes expired jobs through the Service.
type CleanupWorker struct {
	svc           *Service
	retentionDays int
	interval      time.Duration
}

// NewCleanupWorker creates a worker that deletes jobs older than retentionDays
// every interval.
func NewCleanupWorker(svc *Service, retentionDays int, interval time.Duration) *CleanupWorker {
	return &CleanupWorker{svc: svc, retentionDays: retentionDays, interval: interval}
}

// Run deletes once immediately and then on every tick until ctx is done. A
// non-positive interval returns at once.
func (w *CleanupWorker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		slog.Info("cleanup worker disabled")
		return nil
	}
	slog.Info("starting cleanup worker", "interval", w.interval, "retention_days", w.retentionDays)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)
		select {
		case <-ctx.Done():
			slog.Info("stopping cleanup worker")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunOnce performs a single cleanup pass and logs any error.
func (w *CleanupWorker) RunOnce(ctx context.Context) int64 {
	n, err := w.svc.DeleteOlderThan(ctx, w.retentionDays)
	if err != nil {
		slog.Error("cleanup worker error", "error", err)
		return 0
	}
	return n
}
