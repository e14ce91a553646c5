package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestCreateAndCompleteRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "run")
	require.NoError(t, err)
	assert.NotEmpty(t, run.ID)
	assert.Equal(t, RunStatusRunning, run.Status)

	require.NoError(t, s.CompleteRun(ctx, run.ID, 3, 12))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, "run", runs[0].Mode)
	assert.Equal(t, RunStatusCompleted, runs[0].Status)
	assert.Equal(t, 3, runs[0].ItemsProcessed)
	assert.Equal(t, 12, runs[0].ItemsSkipped)
	assert.Empty(t, runs[0].Error)
	require.NotNil(t, runs[0].FinishedAt)
}

func TestFailRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	run, err := s.CreateRun(ctx, "backfill")
	require.NoError(t, err)
	require.NoError(t, s.FailRun(ctx, run.ID, eris.New("ledger save failed")))

	runs, err := s.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, RunStatusFailed, runs[0].Status)
	assert.Contains(t, runs[0].Error, "ledger save failed")
}

func TestListRunsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := s.CreateRun(ctx, "run")
		require.NoError(t, err)
	}

	runs, err := s.ListRuns(ctx, 3)
	require.NoError(t, err)
	assert.Len(t, runs, 3)
}

func TestUpdateMissingRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.CompleteRun(ctx, "does-not-exist", 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")

	err = s.FailRun(ctx, "does-not-exist", eris.New("x"))
	require.Error(t, err)
}
