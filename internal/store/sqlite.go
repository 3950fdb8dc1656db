package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// jobRecord is the gorm mapping of the jobs table. Result holds the report as
// JSON text.
type jobRecord struct {
	ID           string `gorm:"primaryKey;type:text"`
	SystemName   string `gorm:"not null"`
	Status       string `gorm:"not null;index:idx_jobs_status_created_at,priority:1"`
	ImagePath    *string
	Result       *string
	ErrorMessage *string
	CreatedAt    time.Time `gorm:"not null;index;index:idx_jobs_status_created_at,priority:2"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (jobRecord) TableName() string { return "jobs" }

// SQLiteStore implements the Store interface on SQLite through gorm. It holds
// a single connection so conditional updates are serialized.
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLite opens (or creates) the database at dsn and migrates the schema.
// Use ":memory:" for an ephemeral database.
func OpenSQLite(dsn string) (*SQLiteStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&jobRecord{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *SQLiteStore) CreateJob(ctx context.Context, job *models.Job) error {
	rec := jobRecord{
		ID:         job.ID.String(),
		SystemName: job.SystemName,
		Status:     job.Status,
		ImagePath:  job.ImagePath,
		CreatedAt:  job.CreatedAt.UTC(),
		UpdatedAt:  job.UpdatedAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var rec jobRecord
	err := s.db.WithContext(ctx).Where("id = ?", id.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}

	job := &models.Job{
		ID:           id,
		SystemName:   rec.SystemName,
		Status:       rec.Status,
		ImagePath:    rec.ImagePath,
		ErrorMessage: rec.ErrorMessage,
		CreatedAt:    rec.CreatedAt.UTC(),
		UpdatedAt:    rec.UpdatedAt.UTC(),
	}
	if rec.Result != nil {
		if job.Result, err = decodeResult([]byte(*rec.Result)); err != nil {
			return nil, fmt.Errorf("get job: %w", err)
		}
	}
	return job, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...JobUpdateOption) error {
	params := applyOptions(opts)
	if err := params.validate(status); err != nil {
		return err
	}

	updates := map[string]any{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	if params.Result != nil {
		b, err := json.Marshal(params.Result)
		if err != nil {
			return fmt.Errorf("encode job result: %w", err)
		}
		updates["result"] = string(b)
	}
	if params.ErrorMessage != nil {
		updates["error_message"] = *params.ErrorMessage
	}
	if models.IsTerminalStatus(status) {
		updates["image_path"] = nil
	}

	res := s.db.WithContext(ctx).Model(&jobRecord{}).
		Where("id = ? AND status IN ?", id.String(), models.PredecessorStatuses(status)).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("update job status: %w", res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var rec jobRecord
	err := s.db.WithContext(ctx).Select("status").Where("id = ?", id.String()).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get job status: %w", err)
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, rec.Status, status)
}

func (s *SQLiteStore) ListRecentJobs(ctx context.Context, limit int) ([]*models.JobSummary, error) {
	var recs []jobRecord
	err := s.db.WithContext(ctx).
		Select("id", "system_name", "status", "created_at", "updated_at").
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}

	jobs := make([]*models.JobSummary, 0, len(recs))
	for _, rec := range recs {
		id, err := uuid.Parse(rec.ID)
		if err != nil {
			return nil, fmt.Errorf("list jobs: parse id %q: %w", rec.ID, err)
		}
		jobs = append(jobs, &models.JobSummary{
			ID:         id,
			SystemName: rec.SystemName,
			Status:     rec.Status,
			CreatedAt:  rec.CreatedAt.UTC(),
			UpdatedAt:  rec.UpdatedAt.UTC(),
		})
	}
	return jobs, nil
}

func (s *SQLiteStore) DeleteJobsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("status IN ? AND created_at < ?",
			[]string{models.JobStatusCompleted, models.JobStatusFailed}, cutoff.UTC()).
		Delete(&jobRecord{})
	if res.Error != nil {
		return 0, fmt.Errorf("delete old jobs: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Compile-time check that SQLiteStore implements Store.
var _ Store = (*SQLiteStore)(nil)
