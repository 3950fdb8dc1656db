package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/kiranshivaraju/threatlens/internal/analysis"
	"github.com/kiranshivaraju/threatlens/internal/cache"
	"github.com/kiranshivaraju/threatlens/internal/imagefile"
	"github.com/kiranshivaraju/threatlens/internal/metrics"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

const tracerName = "github.com/kiranshivaraju/threatlens/internal/jobs"

// StatusCacheTTL is how long a mirrored job status stays in the cache.
const StatusCacheTTL = 30 * time.Minute

const (
	defaultStartAttempts   = 3
	defaultStartRetryDelay = 500 * time.Millisecond
)

// Processor runs the analysis pipeline for a job in its own goroutine. At most
// one run per job id is active at any time.
type Processor struct {
	store   store.Store
	cache   cache.Cache
	diagram *analysis.DiagramStage
	threats *analysis.ThreatStage
	now     func() time.Time

	startAttempts   int
	startRetryDelay time.Duration

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
	wg     sync.WaitGroup
}

type ProcessorOption func(*Processor)

// WithStartRetry sets how many times the processing transition is attempted
// when the store returns an unexpected error, and the pause between attempts.
func WithStartRetry(attempts int, delay time.Duration) ProcessorOption {
	return func(p *Processor) {
		if attempts > 0 {
			p.startAttempts = attempts
		}
		if delay >= 0 {
			p.startRetryDelay = delay
		}
	}
}

// NewProcessor creates a Processor. c may be nil, in which case status
// mirroring is skipped.
func NewProcessor(st store.Store, c cache.Cache, diagram *analysis.DiagramStage, threats *analysis.ThreatStage, opts ...ProcessorOption) *Processor {
	p := &Processor{
		store:           st,
		cache:           c,
		diagram:         diagram,
		threats:         threats,
		now:             time.Now,
		startAttempts:   defaultStartAttempts,
		startRetryDelay: defaultStartRetryDelay,
		active:          make(map[uuid.UUID]struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// StartJob schedules a run and returns immediately. It returns false without
// doing anything when a run for jobID is already active.
func (p *Processor) StartJob(jobID uuid.UUID, systemName, imageRef string) bool {
	if !p.acquire(jobID) {
		metrics.IncDuplicateStart()
		slog.Info("job already running, start ignored", "job_id", jobID)
		return false
	}

	p.wg.Add(1)
	go p.run(jobID, systemName, imageRef)
	return true
}

// Active reports whether a run for jobID is in progress.
func (p *Processor) Active(jobID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.active[jobID]
	return ok
}

// Wait blocks until every started run has finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// WaitContext is Wait bounded by ctx.
func (p *Processor) WaitContext(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Processor) acquire(jobID uuid.UUID) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.active[jobID]; ok {
		return false
	}
	p.active[jobID] = struct{}{}
	return true
}

func (p *Processor) release(jobID uuid.UUID) {
	p.mu.Lock()
	delete(p.active, jobID)
	p.mu.Unlock()
}

func (p *Processor) run(jobID uuid.UUID, systemName, imageRef string) {
	ctx, span := otel.Tracer(tracerName).Start(context.Background(), "job.run",
		trace.WithAttributes(
			attribute.String("job.id", jobID.String()),
			attribute.String("job.system_name", systemName),
		))
	metrics.JobStarted()
	started := p.now()
	// The image belongs to the run only once the job is processing.
	owned := false

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic during analysis: %v", r)
			metrics.IncRecoveredPanic("job")
			slog.Error("panic in job run", "job_id", jobID, "error", err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			p.fail(ctx, jobID, err, started)
		}
		if owned {
			if err := imagefile.Remove(imageRef); err != nil {
				slog.Warn("failed to remove uploaded image", "job_id", jobID, "error", err)
			}
		}
		p.release(jobID)
		metrics.JobFinished()
		span.End()
		p.wg.Done()
	}()

	if err := p.begin(ctx, jobID); err != nil {
		span.SetAttributes(attribute.Bool("job.skipped", true))
		if errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			slog.Warn("job not started", "job_id", jobID, "error", err)
			return
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("job left pending, image kept for a later start", "job_id", jobID, "error", err)
		return
	}
	owned = true
	slog.Info("job processing", "job_id", jobID, "system_name", systemName)

	report, err := p.analyze(ctx, systemName, imageRef)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.fail(ctx, jobID, err, started)
		return
	}

	if err := p.transition(ctx, jobID, models.JobStatusCompleted, store.WithResult(report)); err != nil {
		slog.Error("failed to store job result", "job_id", jobID, "error", err)
		p.fail(ctx, jobID, fmt.Errorf("store result: %w", err), started)
		return
	}
	metrics.ObserveJobDuration(models.JobStatusCompleted, p.now().Sub(started))
	recordThreats(report.SeverityCounts)
	slog.Info("job completed",
		"job_id", jobID,
		"threats", len(report.Threats),
		"duration", p.now().Sub(started),
	)
}

// begin moves the job to processing, retrying errors other than a rejected
// transition or a missing job.
func (p *Processor) begin(ctx context.Context, jobID uuid.UUID) error {
	var err error
	for attempt := 1; attempt <= p.startAttempts; attempt++ {
		err = p.transition(ctx, jobID, models.JobStatusProcessing)
		if err == nil || errors.Is(err, store.ErrInvalidTransition) || errors.Is(err, store.ErrNotFound) {
			return err
		}
		if attempt < p.startAttempts {
			slog.Warn("processing transition failed, retrying",
				"job_id", jobID, "attempt", attempt, "error", err)
			time.Sleep(p.startRetryDelay)
		}
	}
	return err
}

func (p *Processor) analyze(ctx context.Context, systemName, imageRef string) (*models.Report, error) {
	arch, err := p.diagram.Analyze(ctx, imageRef)
	if err != nil {
		return nil, err
	}

	result, err := p.threats.Analyze(ctx, systemName, arch)
	if err != nil {
		return nil, err
	}
	for _, c := range result.FailedCategories() {
		metrics.IncCategoryFailure(string(c))
	}

	image, err := imagefile.DataURL(imageRef)
	if err != nil {
		return nil, fmt.Errorf("embed diagram: %w", err)
	}

	return &models.Report{
		SystemName:     systemName,
		Architecture:   *arch,
		Threats:        result.Threats,
		Summary:        result.Summary,
		SeverityCounts: result.SeverityCounts,
		Timestamp:      p.now().UTC(),
		DiagramImage:   image,
	}, nil
}

func (p *Processor) fail(ctx context.Context, jobID uuid.UUID, cause error, started time.Time) {
	slog.Error("job failed", "job_id", jobID, "error", cause)
	err := p.transition(ctx, jobID, models.JobStatusFailed, store.WithErrorMessage(cause.Error()))
	if err != nil {
		if !errors.Is(err, store.ErrInvalidTransition) {
			slog.Error("failed to mark job failed", "job_id", jobID, "error", err)
		}
		return
	}
	metrics.ObserveJobDuration(models.JobStatusFailed, p.now().Sub(started))
}

// transition writes the status, then mirrors it into the cache.
func (p *Processor) transition(ctx context.Context, jobID uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	if err := p.store.UpdateJobStatus(ctx, jobID, status, opts...); err != nil {
		return err
	}
	metrics.IncJobTransition(status)
	mirrorStatus(ctx, p.cache, jobID, status)
	return nil
}

func mirrorStatus(ctx context.Context, c cache.Cache, jobID uuid.UUID, status string) {
	if c == nil {
		return
	}
	err := c.SetJobStatus(ctx, jobID, status, StatusCacheTTL)
	if err == nil {
		return
	}
	// A stale entry would shadow the store, so drop it and let reads fall through.
	if delErr := c.DeleteJobStatus(ctx, jobID); delErr != nil {
		slog.Warn("failed to cache job status, stale entry may remain",
			"job_id", jobID, "status", status, "error", err, "evict_error", delErr)
		return
	}
	slog.Debug("failed to cache job status, entry evicted", "job_id", jobID, "error", err)
}

func recordThreats(c models.SeverityCounts) {
	metrics.AddThreats(string(models.SeverityCritical), c.Critical)
	metrics.AddThreats(string(models.SeverityHigh), c.High)
	metrics.AddThreats(string(models.SeverityMedium), c.Medium)
	metrics.AddThreats(string(models.SeverityLow), c.Low)
}
