package housekeeping

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/fentz26/dormindo/internal/models"
	"github.com/fentz26/dormindo/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(filepath.Join(t.TempDir(), "hk.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func finishedRun(t *testing.T, s *store.Store, id string) {
	t.Helper()
	ctx := context.Background()
	_, err := s.CreateRun(ctx, id, 60, models.MediaInfo{})
	require.NoError(t, err)
	require.NoError(t, s.FinishRun(ctx, id, models.OutcomeCompleted, ""))
}

func TestPruneKeepsRecentRuns(t *testing.T) {
	s := newTestStore(t)
	finishedRun(t, s, "recent")

	j := New(s, 24*time.Hour, time.Hour)
	n, err := j.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestPruneRemovesExpiredRuns(t *testing.T) {
	s := newTestStore(t)
	finishedRun(t, s, "old")
	_, err := s.CreateRun(context.Background(), "open", 60, models.MediaInfo{})
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)

	j := New(s, time.Millisecond, time.Hour)
	n, err := j.Prune(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	runs, err := s.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "open", runs[0].ID)
	assert.Equal(t, int64(1), j.GetStats()["pruned"])
}

func TestStartRunsImmediately(t *testing.T) {
	s := newTestStore(t)
	finishedRun(t, s, "old")
	time.Sleep(5 * time.Millisecond)

	j := New(s, time.Millisecond, time.Hour)
	require.NoError(t, j.Start())
	defer j.Stop()

	assert.Eventually(t, func() bool {
		runs, err := s.ListRuns(context.Background(), 10)
		return err == nil && len(runs) == 0
	}, 2*time.Second, 20*time.Millisecond)
}

func TestStartDisabled(t *testing.T) {
	j := New(newTestStore(t), 0, time.Hour)
	require.NoError(t, j.Start())
	j.Stop()
}
