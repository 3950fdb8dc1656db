package main

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kiranshivaraju/threatlens/internal/store"
	"github.com/kiranshivaraju/threatlens/pkg/models"
)

func TestParseDays(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		want    int
		wantErr string
	}{
		{name: "default", args: nil, want: 7},
		{name: "flag", args: []string{"-days", "30"}, want: 30},
		{name: "positional", args: []string{"14"}, want: 14},
		{name: "zero", args: []string{"0"}, want: 0},
		{name: "not a number", args: []string{"week"}, wantErr: "must be an integer"},
		{name: "negative", args: []string{"-days", "-1"}, wantErr: "must not be negative"},
		{name: "too many", args: []string{"1", "2"}, wantErr: "at most one"},
		{name: "unknown flag", args: []string{"-weeks", "2"}, wantErr: "parse arguments"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDays(tt.args, 7, io.Discard)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRun_FailsWithoutDatabaseURL(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "")

	err := run(nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load config")
}

func TestRun_DeletesExpiredJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "jobs.db")
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("DATABASE_URL", "sqlite://"+path)

	st, err := store.OpenSQLite(path)
	require.NoError(t, err)
	ctx := context.Background()
	old := time.Now().UTC().Add(-10 * 24 * time.Hour)
	oldID := uuid.New()
	require.NoError(t, st.CreateJob(ctx, &models.Job{
		ID: oldID, SystemName: "Legacy", Status: models.JobStatusFailed,
		CreatedAt: old, UpdatedAt: old,
	}))
	freshID := uuid.New()
	now := time.Now().UTC()
	require.NoError(t, st.CreateJob(ctx, &models.Job{
		ID: freshID, SystemName: "Fresh", Status: models.JobStatusFailed,
		CreatedAt: now, UpdatedAt: now,
	}))
	require.NoError(t, st.Close())

	require.NoError(t, run([]string{"-days", "5"}))

	st, err = store.OpenSQLite(path)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.GetJob(ctx, oldID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetJob(ctx, freshID)
	assert.NoError(t, err)
}
