package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kiranshivaraju/threatlens/internal/analysis"
	"github.com/kiranshivaraju/threatlens/internal/api/response"
	"github.com/kiranshivaraju/threatlens/internal/imagefile"
	"github.com/kiranshivaraju/threatlens/internal/jobs"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/internal/upload"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// Room for the systemName field and multipart framing on top of the file.
const (
	multipartOverhead = 1 << 20
	multipartMemory   = 1 << 20
)

// JobService defines the interface the analysis handlers depend on.
type JobService interface {
	Submit(ctx context.Context, systemName, imageRef string) (uuid.UUID, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*models.JobSummary, error)
	JobStatus(ctx context.Context, id uuid.UUID) (string, error)
}

// Analysis serves the /api/v1/analysis endpoints.
type Analysis struct {
	jobs     JobService
	saver    *upload.Saver
	provider string
}

func NewAnalysis(svc JobService, saver *upload.Saver, provider string) *Analysis {
	return &Analysis{jobs: svc, saver: saver, provider: provider}
}

// Analyze handles POST /api/v1/analysis/analyze.
func (h *Analysis) Analyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.saver.MaxBytes()+multipartOverhead)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			fileTooLarge(w, h.saver.MaxBytes())
			return
		}
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
			"Request must be multipart/form-data", nil)
		return
	}
	defer r.MultipartForm.RemoveAll()

	systemName := strings.TrimSpace(r.FormValue("systemName"))
	if systemName == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "systemName is required", nil)
		return
	}

	file, header, err := r.FormFile("diagram")
	if err != nil {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "diagram file is required", nil)
		return
	}
	defer file.Close()

	path, err := h.saver.Save(file, header.Filename)
	if err != nil {
		switch {
		case errors.Is(err, upload.ErrTooLarge):
			fileTooLarge(w, h.saver.MaxBytes())
		case errors.Is(err, upload.ErrUnsupportedType):
			response.Error(w, http.StatusUnsupportedMediaType, "UNSUPPORTED_FILE_TYPE",
				"diagram must be a JPEG, PNG or GIF image", nil)
		default:
			slog.Error("failed to save upload", "error", err)
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
				"Failed to store the uploaded diagram", nil)
		}
		return
	}

	id, err := h.jobs.Submit(r.Context(), systemName, path)
	if err != nil {
		if rerr := imagefile.Remove(path); rerr != nil {
			slog.Warn("failed to remove upload after rejected job", "error", rerr)
		}
		if errors.Is(err, jobs.ErrValidation) {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", err.Error(), nil)
			return
		}
		slog.Error("failed to create job", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"Failed to create analysis job", nil)
		return
	}

	response.Accepted(w, map[string]any{
		"job_id":     id,
		"status":     models.JobStatusPending,
		"status_url": "/api/v1/analysis/jobs/" + id.String(),
	})
}

type jobView struct {
	JobID      uuid.UUID      `json:"job_id"`
	SystemName string         `json:"system_name"`
	Status     string         `json:"status"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	Data       *models.Report `json:"data,omitempty"`
	Error      *string        `json:"error,omitempty"`
}

// GetJob handles GET /api/v1/analysis/jobs/{jobID}.
func (h *Analysis) GetJob(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	job, err := h.jobs.GetJob(r.Context(), id)
	if err != nil {
		jobLookupError(w, id, err)
		return
	}

	response.JSON(w, jobView{
		JobID:      job.ID,
		SystemName: job.SystemName,
		Status:     job.Status,
		CreatedAt:  job.CreatedAt,
		UpdatedAt:  job.UpdatedAt,
		Data:       job.Result,
		Error:      job.ErrorMessage,
	})
}

// JobStatus handles GET /api/v1/analysis/jobs/{jobID}/status.
func (h *Analysis) JobStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := jobID(w, r)
	if !ok {
		return
	}

	status, err := h.jobs.JobStatus(r.Context(), id)
	if err != nil {
		jobLookupError(w, id, err)
		return
	}
	response.JSON(w, map[string]any{"job_id": id, "status": status})
}

// ListJobs handles GET /api/v1/analysis/jobs.
func (h *Analysis) ListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR",
				"limit must be a positive integer", nil)
			return
		}
		limit = n
	}
	limit = jobs.EffectiveLimit(limit)

	list, err := h.jobs.ListJobs(r.Context(), limit)
	if err != nil {
		slog.Error("failed to list jobs", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to list jobs", nil)
		return
	}
	if list == nil {
		list = []*models.JobSummary{}
	}
	response.Collection(w, list, response.ListMeta{Limit: limit, Count: len(list)})
}

// ServiceStatus handles GET /api/v1/analysis/status.
func (h *Analysis) ServiceStatus(w http.ResponseWriter, _ *http.Request) {
	categories := make([]string, 0, len(analysis.Categories))
	for _, c := range analysis.Categories {
		categories = append(categories, analysis.CategoryName(c))
	}
	response.JSON(w, map[string]any{
		"status":     "ready",
		"provider":   h.provider,
		"categories": categories,
	})
}

func jobID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "jobID"))
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "jobID must be a UUID", nil)
		return uuid.Nil, false
	}
	return id, true
}

func jobLookupError(w http.ResponseWriter, id uuid.UUID, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Job not found", nil)
		return
	}
	slog.Error("failed to load job", "job_id", id, "error", err)
	response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to load job", nil)
}

func fileTooLarge(w http.ResponseWriter, maxBytes int64) {
	response.Error(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE",
		"diagram exceeds the maximum upload size", map[string]int64{"max_bytes": maxBytes})
}
