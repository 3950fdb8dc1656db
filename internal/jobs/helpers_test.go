package jobs_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/threatlens/internal/ai/mock"
	"github.com/kiranshivaraju/threatlens/internal/analysis"
	"github.com/kiranshivaraju/threatlens/internal/jobs"
	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

// recordingStore wraps a real store and records every accepted status write.
type recordingStore struct {
	store.Store

	mu         sync.Mutex
	statuses   map[uuid.UUID][]string
	listLimits []int
	// processingFaults is how many processing writes fail with faultErr
	// before the real store is reached.
	processingFaults int
	faultErr         error
}

func (s *recordingStore) failProcessing(n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processingFaults = n
	s.faultErr = err
}

func (s *recordingStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, status string, opts ...store.JobUpdateOption) error {
	s.mu.Lock()
	if status == models.JobStatusProcessing && s.processingFaults > 0 {
		s.processingFaults--
		err := s.faultErr
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()
	if err := s.Store.UpdateJobStatus(ctx, id, status, opts...); err != nil {
		return err
	}
	s.mu.Lock()
	s.statuses[id] = append(s.statuses[id], status)
	s.mu.Unlock()
	return nil
}

func (s *recordingStore) ListRecentJobs(ctx context.Context, limit int) ([]*models.JobSummary, error) {
	s.mu.Lock()
	s.listLimits = append(s.listLimits, limit)
	s.mu.Unlock()
	return s.Store.ListRecentJobs(ctx, limit)
}

func (s *recordingStore) history(id uuid.UUID) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.statuses[id]...)
}

// fakeCache is an in-memory cache.Cache.
type fakeCache struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
	counters map[string]int64
	getErr   error
	// terminalSetErr fails SetJobStatus for completed and failed statuses.
	terminalSetErr error
}

func newFakeCache() *fakeCache {
	return &fakeCache{statuses: map[uuid.UUID]string{}, counters: map[string]int64{}}
}

func (c *fakeCache) Ping(context.Context) error { return nil }
func (c *fakeCache) Close() error               { return nil }

func (c *fakeCache) SetJobStatus(_ context.Context, jobID uuid.UUID, status string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.terminalSetErr != nil && models.IsTerminalStatus(status) {
		return c.terminalSetErr
	}
	c.statuses[jobID] = status
	return nil
}

func (c *fakeCache) DeleteJobStatus(_ context.Context, jobID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.statuses, jobID)
	return nil
}

func (c *fakeCache) GetJobStatus(_ context.Context, jobID uuid.UUID) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return "", false, c.getErr
	}
	s, ok := c.statuses[jobID]
	return s, ok, nil
}

func (c *fakeCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counters[key]++
	return c.counters[key], nil
}

func (c *fakeCache) status(jobID uuid.UUID) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statuses[jobID]
}

func (c *fakeCache) cached(jobID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.statuses[jobID]
	return ok
}

type harness struct {
	store     *recordingStore
	cache     *fakeCache
	provider  *mock.MockProvider
	processor *jobs.Processor
	service   *jobs.Service
}

func newHarness(t *testing.T, provider *mock.MockProvider, opts ...jobs.ProcessorOption) *harness {
	t.Helper()
	sqlite, err := store.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })

	st := &recordingStore{Store: sqlite, statuses: map[uuid.UUID][]string{}}
	c := newFakeCache()
	proc := jobs.NewProcessor(st, c,
		analysis.NewDiagramStage(provider, 0),
		analysis.NewThreatStage(provider, 0, 0),
		opts...,
	)
	return &harness{
		store:     st,
		cache:     c,
		provider:  provider,
		processor: proc,
		service:   jobs.NewService(st, c, proc),
	}
}

// writeImage creates a small image file that the pipeline can embed and remove.
func writeImage(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diagram.png")
	require.NoError(t, os.WriteFile(path, []byte("\x89PNG\r\n\x1a\nfake"), 0o600))
	return path
}

func (h *harness) runJob(t *testing.T, systemName string) (*models.Job, string) {
	t.Helper()
	image := writeImage(t)
	id, err := h.service.Submit(context.Background(), systemName, image)
	require.NoError(t, err)
	h.processor.Wait()

	job, err := h.service.GetJob(context.Background(), id)
	require.NoError(t, err)
	return job, image
}

// assertJobInvariants checks the status, result and error coupling and the
// transition history of a finished job.
func (h *harness) assertJobInvariants(t *testing.T, job *models.Job) {
	t.Helper()
	switch job.Status {
	case models.JobStatusCompleted:
		assert.NotNil(t, job.Result)
		assert.Nil(t, job.ErrorMessage)
	case models.JobStatusFailed:
		assert.Nil(t, job.Result)
		require.NotNil(t, job.ErrorMessage)
		assert.NotEmpty(t, *job.ErrorMessage)
	default:
		assert.Nil(t, job.Result)
		assert.Nil(t, job.ErrorMessage)
	}

	history := h.store.history(job.ID)
	if len(history) > 0 {
		assert.Equal(t, models.JobStatusProcessing, history[0])
		assert.Equal(t, []string{models.JobStatusProcessing, job.Status}, history)
	}
	for i := 1; i < len(history); i++ {
		assert.True(t, models.CanTransition(history[i-1], history[i]),
			"illegal transition %s -> %s", history[i-1], history[i])
	}
}

func assertRemoved(t *testing.T, path string) {
	t.Helper()
	_, err := os.Stat(path)
	assert.True(t, errors.Is(err, os.ErrNotExist), "expected %s to be removed", path)
}
