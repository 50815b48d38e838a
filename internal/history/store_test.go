package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, path
}

func sampleRun(id string, startedAt time.Time) RunRecord {
	return RunRecord{
		ID:         id,
		Pipeline:   "ci/main.hcl",
		StartedAt:  startedAt,
		FinishedAt: startedAt.Add(2 * time.Second),
		OK:         false,
		Tasks: []TaskRecord{
			{Name: "build", Outcome: "SUCCESS", Output: map[string]any{"stdout": "ok", "exit_code": 0}},
			{Name: "test", Outcome: "FAILED", Error: "command exited with code 1"},
			{Name: "deploy", Outcome: "UPSTREAM_FAILED", Error: `upstream task "test" did not succeed`},
		},
	}
}

func TestStoreRecordRun(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	startedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, store.RecordRun(ctx, sampleRun("run-1", startedAt)))

	runs, err := store.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	run := runs[0]
	assert.Equal(t, "run-1", run.ID)
	assert.Equal(t, "ci/main.hcl", run.Pipeline)
	assert.Equal(t, startedAt, run.StartedAt)
	assert.Equal(t, startedAt.Add(2*time.Second), run.FinishedAt)
	assert.False(t, run.OK)
	assert.Equal(t, 3, run.TaskCount)

	tasks, err := store.RunTasks(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, tasks, 3)

	// Plan order is preserved.
	assert.Equal(t, "build", tasks[0].Name)
	assert.Equal(t, "test", tasks[1].Name)
	assert.Equal(t, "deploy", tasks[2].Name)

	assert.Equal(t, "SUCCESS", tasks[0].Outcome)
	assert.Contains(t, tasks[0].Output, `"stdout":"ok"`)
	assert.Empty(t, tasks[0].Error)

	assert.Equal(t, "FAILED", tasks[1].Outcome)
	assert.Empty(t, tasks[1].Output, "no output was recorded for the failed task")
	assert.Contains(t, tasks[1].Error, "code 1")
}

func TestStoreRunsOrderingAndLimit(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-old", "run-mid", "run-new"} {
		rec := sampleRun(id, base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, store.RecordRun(ctx, rec))
	}

	runs, err := store.Runs(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-new", runs[0].ID)
	assert.Equal(t, "run-mid", runs[1].ID)
}

func TestStoreEmpty(t *testing.T) {
	store, _ := newTestStore(t)

	runs, err := store.Runs(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, runs)

	tasks, err := store.RunTasks(context.Background(), "nope")
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestStoreReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	ctx := context.Background()
	startedAt := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	first, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, first.RecordRun(ctx, sampleRun("run-1", startedAt)))
	require.NoError(t, first.Close())

	// Reopening applies migrations again; they must be harmless.
	second, err := NewStore(path)
	require.NoError(t, err)
	defer second.Close()

	runs, err := second.Runs(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}
