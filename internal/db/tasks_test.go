package db

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskRoundTrip(t *testing.T) {
	store := newTestDB(t)

	task := seedTask(t, store, "daily-analysis")
	require.NotEmpty(t, task.ID)

	got, err := store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "daily-analysis", got.Name)
	assert.Equal(t, TaskTypeAnalyzeContext, got.TaskType)
	assert.Equal(t, ScheduleCron, got.ScheduleType)
	assert.Equal(t, "0 9 * * *", got.CronExpression)
	assert.True(t, got.Enabled)
}

func TestTaskNameUnique(t *testing.T) {
	store := newTestDB(t)

	seedTask(t, store, "daily-analysis")
	err := store.CreateTask(&Task{
		Name:           "daily-analysis",
		TaskType:       TaskTypeHealthCheck,
		ScheduleType:   ScheduleCron,
		CronExpression: "0 10 * * *",
	})
	require.ErrorIs(t, err, ErrConflict)
}

func TestGetTaskNotFound(t *testing.T) {
	store := newTestDB(t)

	_, err := store.GetTask("nope")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestListTasksFilters(t *testing.T) {
	store := newTestDB(t)

	a := seedTask(t, store, "a")
	b := &Task{
		Name:          "b",
		TaskType:      TaskTypeHealthCheck,
		ScheduleType:  ScheduleInterval,
		IntervalHours: 6,
		MachineID:     "m1",
		Enabled:       false,
	}
	require.NoError(t, store.CreateTask(b))

	all, err := store.ListTasks(TaskFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byType, err := store.ListTasks(TaskFilter{TaskType: TaskTypeHealthCheck})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, b.ID, byType[0].ID)

	byMachine, err := store.ListTasks(TaskFilter{MachineID: "m1"})
	require.NoError(t, err)
	require.Len(t, byMachine, 1)
	assert.Equal(t, b.ID, byMachine[0].ID)

	enabled := true
	byEnabled, err := store.ListTasks(TaskFilter{Enabled: &enabled})
	require.NoError(t, err)
	require.Len(t, byEnabled, 1)
	assert.Equal(t, a.ID, byEnabled[0].ID)
}

func TestListDueCandidatesSkipsManual(t *testing.T) {
	store := newTestDB(t)

	seedTask(t, store, "cron-task")
	require.NoError(t, store.CreateTask(&Task{
		Name:         "manual-task",
		TaskType:     TaskTypeAnalyzeContext,
		ScheduleType: ScheduleManual,
		Enabled:      true,
	}))
	require.NoError(t, store.CreateTask(&Task{
		Name:           "disabled-task",
		TaskType:       TaskTypeAnalyzeContext,
		ScheduleType:   ScheduleCron,
		CronExpression: "0 9 * * *",
		Enabled:        false,
	}))

	due, err := store.ListDueCandidates()
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "cron-task", due[0].Name)
}

func TestUpdateTask(t *testing.T) {
	store := newTestDB(t)

	task := seedTask(t, store, "daily-analysis")
	task.Name = "nightly-analysis"
	task.Enabled = false
	require.NoError(t, store.UpdateTask(task))

	got, err := store.GetTask(task.ID)
	require.NoError(t, err)
	assert.Equal(t, "nightly-analysis", got.Name)
	assert.False(t, got.Enabled)

	missing := &Task{ID: "nope", Name: "x", TaskType: TaskTypeCustom, ScheduleType: ScheduleManual}
	require.ErrorIs(t, store.UpdateTask(missing), ErrNotFound)
}

func TestUpdateTaskRunTimes(t *testing.T) {
	store := newTestDB(t)

	task := seedTask(t, store, "daily-analysis")
	last := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	next := last.Add(24 * time.Hour)
	require.NoError(t, store.UpdateTaskRunTimes(task.ID, &last, &next))

	got, err := store.GetTask(task.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastRunAt)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.LastRunAt.Equal(last))
	assert.True(t, got.NextRunAt.Equal(next))
}

func TestDeleteTaskRetainsHistory(t *testing.T) {
	store := newTestDB(t)

	task := seedTask(t, store, "daily-analysis")
	exec := &Execution{TaskID: task.ID, TriggerType: TriggerManual}
	require.NoError(t, store.CreateExecution(exec))
	exec.Status = ExecCompleted
	require.NoError(t, store.FinalizeExecution(exec))

	require.NoError(t, store.DeleteTask(task.ID))
	require.ErrorIs(t, store.DeleteTask(task.ID), ErrNotFound)

	// History survives the task.
	got, err := store.GetExecution(exec.ID)
	require.NoError(t, err)
	assert.Equal(t, task.ID, got.TaskID)
}

func TestCountTasks(t *testing.T) {
	store := newTestDB(t)

	seedTask(t, store, "a")
	require.NoError(t, store.CreateTask(&Task{
		Name:         "b",
		TaskType:     TaskTypeHealthCheck,
		ScheduleType: ScheduleManual,
		Enabled:      false,
	}))

	counts, err := store.CountTasks()
	require.NoError(t, err)
	assert.Equal(t, TaskCounts{Total: 2, Enabled: 1, Disabled: 1}, counts)
}
