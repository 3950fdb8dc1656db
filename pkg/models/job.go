package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusCompleted  = "completed"
	JobStatusFailed     = "failed"
)

// Job tracks one diagram-to-report analysis. The API returns the job id on
// POST /api/v1/analysis/analyze; the client polls GET /api/v1/analysis/jobs/{job_id}
// until status is completed or failed.
type Job struct {
	ID           uuid.UUID `json:"id"`
	SystemName   string    `json:"system_name"`
	Status       string    `json:"status"`
	ImagePath    *string   `json:"-"`
	Result       *Report   `json:"result,omitempty"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// JobSummary is the listing projection of a Job, without result payloads.
type JobSummary struct {
	ID         uuid.UUID `json:"id"`
	SystemName string    `json:"system_name"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var jobTransitions = map[string][]string{
	JobStatusPending:    {JobStatusProcessing},
	JobStatusProcessing: {JobStatusCompleted, JobStatusFailed},
}

// CanTransition reports whether a job may move from one status to another.
// Completed and failed are terminal.
func CanTransition(from, to string) bool {
	for _, s := range jobTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PredecessorStatuses returns every status from which status can be reached
// in a single transition.
func PredecessorStatuses(status string) []string {
	var out []string
	for from, tos := range jobTransitions {
		for _, to := range tos {
			if to == status {
				out = append(out, from)
			}
		}
	}
	return out
}

// IsTerminalStatus reports whether status has no outgoing transitions.
func IsTerminalStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusFailed
}
