package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

var (
	ErrNotFound          = errors.New("resource not found")
	ErrInvalidTransition = errors.New("invalid job status transition")
)

// Store is the data access interface. All job persistence goes through here.
type Store interface {
	Ping(ctx context.Context) error
	Close() error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// UpdateJobStatus moves a job to status only if its stored status is a legal
	// predecessor; the check and the write are a single statement. Terminal
	// statuses clear the image path.
	UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error
	ListRecentJobs(ctx context.Context, limit int) ([]*models.JobSummary, error)
	// DeleteJobsOlderThan removes completed and failed jobs created before cutoff.
	DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type jobUpdateParams struct {
	Result       *models.Report
	ErrorMessage *string
}

type JobUpdateOption func(*jobUpdateParams)

func WithResult(r *models.Report) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.Result = r
	}
}

func WithErrorMessage(msg string) JobUpdateOption {
	return func(p *jobUpdateParams) {
		p.ErrorMessage = &msg
	}
}

func applyOptions(opts []JobUpdateOption) *jobUpdateParams {
	params := &jobUpdateParams{}
	for _, opt := range opts {
		opt(params)
	}
	return params
}

// validate keeps result and error message tied to their terminal status.
func (p *jobUpdateParams) validate(status string) error {
	if p.Result != nil && status != models.JobStatusCompleted {
		return fmt.Errorf("%w: result requires status %s", ErrInvalidTransition, models.JobStatusCompleted)
	}
	if p.ErrorMessage != nil && status != models.JobStatusFailed {
		return fmt.Errorf("%w: error message requires status %s", ErrInvalidTransition, models.JobStatusFailed)
	}
	if status == models.JobStatusCompleted && p.Result == nil {
		return fmt.Errorf("%w: status %s requires a result", ErrInvalidTransition, status)
	}
	if status == models.JobStatusFailed && p.ErrorMessage == nil {
		return fmt.Errorf("%w: status %s requires an error message", ErrInvalidTransition, status)
	}
	return nil
}
