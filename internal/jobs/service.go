package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kiranshivaraju/threatlens/internal/cache"
	"github.com/kiranshivaraju/threatlens/internal/metrics"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// Starter schedules a job run. *Processor implements it.
type Starter interface {
	StartJob(jobID uuid.UUID, systemName, imageRef string) bool
}

// Service is the entry point for creating, starting, querying and expiring
// jobs.
type Service struct {
	store   store.Store
	cache   cache.Cache
	starter Starter
	now     func() time.Time
}

// NewService creates a Service. starter may be nil for callers that never
// start jobs, such as the cleanup command.
func NewService(st store.Store, c cache.Cache, starter Starter) *Service {
	return &Service{store: st, cache: c, starter: starter, now: time.Now}
}

// CreateJob records a pending job and returns its id.
func (s *Service) CreateJob(ctx context.Context, systemName, imageRef string) (uuid.UUID, error) {
	systemName = strings.TrimSpace(systemName)
	if systemName == "" {
		return uuid.Nil, &ValidationError{Field: "systemName", Reason: "must not be empty"}
	}
	if strings.TrimSpace(imageRef) == "" {
		return uuid.Nil, &ValidationError{Field: "imageRef", Reason: "must not be empty"}
	}

	now := s.now().UTC()
	path := imageRef
	job := &models.Job{
		ID:         uuid.New(),
		SystemName: systemName,
		Status:     models.JobStatusPending,
		ImagePath:  &path,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return uuid.Nil, fmt.Errorf("create job: %w", err)
	}
	metrics.IncJobTransition(models.JobStatusPending)
	mirrorStatus(ctx, s.cache, job.ID, models.JobStatusPending)

	slog.Info("job created", "job_id", job.ID, "system_name", systemName)
	return job.ID, nil
}

// StartJob hands the job to the processor. It never blocks on the run.
func (s *Service) StartJob(jobID uuid.UUID, systemName, imageRef string) bool {
	return s.starter.StartJob(jobID, strings.TrimSpace(systemName), imageRef)
}

// Submit creates a job and starts it.
func (s *Service) Submit(ctx context.Context, systemName, imageRef string) (uuid.UUID, error) {
	id, err := s.CreateJob(ctx, systemName, imageRef)
	if err != nil {
		return uuid.Nil, err
	}
	s.StartJob(id, systemName, imageRef)
	return id, nil
}

// GetJob returns the stored job or store.ErrNotFound.
func (s *Service) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	return s.store.GetJob(ctx, id)
}

// ListJobs returns recent jobs, newest first. A non-positive limit uses
// DefaultListLimit; limits above MaxListLimit are capped.
func (s *Service) ListJobs(ctx context.Context, limit int) ([]*models.JobSummary, error) {
	return s.store.ListRecentJobs(ctx, EffectiveLimit(limit))
}

// EffectiveLimit applies the listing default and cap to a requested limit.
func EffectiveLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}

// JobStatus returns the cached status when present, otherwise the stored one.
func (s *Service) JobStatus(ctx context.Context, id uuid.UUID) (string, error) {
	if s.cache != nil {
		status, ok, err := s.cache.GetJobStatus(ctx, id)
		if err != nil {
			slog.Debug("job status cache read failed", "job_id", id, "error", err)
		} else if ok {
			return status, nil
		}
	}

	job, err := s.store.GetJob(ctx, id)
	if err != nil {
		return "", err
	}
	mirrorStatus(ctx, s.cache, id, job.Status)
	return job.Status, nil
}

// DeleteOlderThan removes completed and failed jobs created more than days
// days ago and returns how many were removed.
func (s *Service) DeleteOlderThan(ctx context.Context, days int) (int64, error) {
	if days < 0 {
		return 0, &ValidationError{Field: "days", Reason: "must not be negative"}
	}
	cutoff := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	n, err := s.store.DeleteJobsOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete jobs older than %d days: %w", days, err)
	}
	metrics.AddJobsDeleted(n)
	slog.Info("old jobs deleted", "days", days, "count", n)
	return n, nil
}
