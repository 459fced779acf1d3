package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	store, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func seedTask(t *testing.T, store *DB, name string) *Task {
	t.Helper()
	task := &Task{
		Name:           name,
		TaskType:       TaskTypeAnalyzeContext,
		ScheduleType:   ScheduleCron,
		CronExpression: "0 9 * * *",
		Enabled:        true,
	}
	require.NoError(t, store.CreateTask(task))
	return task
}
