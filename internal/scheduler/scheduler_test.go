package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fleet-tasks/internal/db"
	"github.com/fleetops/fleet-tasks/internal/engine"
	"github.com/fleetops/fleet-tasks/internal/metrics"
	"github.com/fleetops/fleet-tasks/internal/trigger"
	"github.com/fleetops/fleet-tasks/internal/webhook"
)

func newTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newTestScheduler(t *testing.T, store *db.DB, provider metrics.Provider) (*Scheduler, *engine.Engine) {
	t.Helper()
	registry := engine.NewRegistry()
	registry.Register(db.TaskTypeAnalyzeContext, func(ctx context.Context, req engine.BodyRequest) (*engine.BodyResult, error) {
		return &engine.BodyResult{Summary: "ok"}, nil
	})
	dispatcher := webhook.NewDispatcher(store, zerolog.Nop(), time.Second, 100)
	eng := engine.New(store, registry, dispatcher, zerolog.Nop(), 0)
	sched := New(store, eng, trigger.Evaluator{}, provider, time.Minute, zerolog.Nop())
	return sched, eng
}

func TestPollFiresDueCronTask(t *testing.T) {
	store := newTestStore(t)

	lastRun := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task := &db.Task{
		Name:           "nightly",
		TaskType:       db.TaskTypeAnalyzeContext,
		ScheduleType:   db.ScheduleCron,
		CronExpression: "0 9 * * *",
		Enabled:        true,
		LastRunAt:      &lastRun,
	}
	require.NoError(t, store.CreateTask(task))

	sched, eng := newTestScheduler(t, store, metrics.StaticProvider{})
	sched.Poll(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	eng.Wait()

	execs, err := store.ListExecutions(db.ExecutionFilter{TaskID: task.ID})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, db.TriggerScheduled, execs[0].TriggerType)
	assert.Equal(t, db.ExecCompleted, execs[0].Status)
}

func TestPollFiresThresholdTask(t *testing.T) {
	store := newTestStore(t)

	task := &db.Task{
		Name:            "low-health",
		TaskType:        db.TaskTypeAnalyzeContext,
		ScheduleType:    db.ScheduleThreshold,
		ThresholdMetric: db.MetricHealthScore,
		ThresholdValue:  50,
		ThresholdOp:     db.OpLT,
		Enabled:         true,
	}
	require.NoError(t, store.CreateTask(task))

	provider := metrics.StaticProvider{Values: trigger.MetricSnapshot{db.MetricHealthScore: 30}}
	sched, eng := newTestScheduler(t, store, provider)
	sched.Poll(time.Now().UTC())
	eng.Wait()

	execs, err := store.ListExecutions(db.ExecutionFilter{TaskID: task.ID})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, db.TriggerThreshold, execs[0].TriggerType)
}

func TestPollSkipsTaskWithInflightExecution(t *testing.T) {
	store := newTestStore(t)

	task := &db.Task{
		Name:           "nightly",
		TaskType:       db.TaskTypeAnalyzeContext,
		ScheduleType:   db.ScheduleCron,
		CronExpression: "0 9 * * *",
		Enabled:        true,
	}
	require.NoError(t, store.CreateTask(task))

	// Another instance already claimed it.
	inflight := &db.Execution{TaskID: task.ID, TriggerType: db.TriggerScheduled}
	require.NoError(t, store.CreateExecution(inflight))

	sched, eng := newTestScheduler(t, store, metrics.StaticProvider{})
	sched.Poll(time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC))
	eng.Wait()

	execs, err := store.ListExecutions(db.ExecutionFilter{TaskID: task.ID})
	require.NoError(t, err)
	assert.Len(t, execs, 1)
}

type failingProvider struct{}

func (failingProvider) Snapshot() (trigger.MetricSnapshot, error) {
	return nil, errors.New("sampler offline")
}

func TestPollMetricFailureStillFiresTimeBasedTasks(t *testing.T) {
	store := newTestStore(t)

	require.NoError(t, store.CreateTask(&db.Task{
		Name:           "nightly",
		TaskType:       db.TaskTypeAnalyzeContext,
		ScheduleType:   db.ScheduleCron,
		CronExpression: "0 9 * * *",
		Enabled:        true,
	}))
	require.NoError(t, store.CreateTask(&db.Task{
		Name:            "low-health",
		TaskType:        db.TaskTypeAnalyzeContext,
		ScheduleType:    db.ScheduleThreshold,
		ThresholdMetric: db.MetricHealthScore,
		ThresholdValue:  50,
		ThresholdOp:     db.OpLT,
		Enabled:         true,
	}))

	sched, eng := newTestScheduler(t, store, failingProvider{})
	sched.Poll(time.Now().UTC().Add(48 * time.Hour))
	eng.Wait()

	execs, err := store.ListExecutions(db.ExecutionFilter{})
	require.NoError(t, err)
	require.Len(t, execs, 1)
	assert.Equal(t, db.TriggerScheduled, execs[0].TriggerType)
}

func TestRunSweepsStaleExecutionsOnStartup(t *testing.T) {
	store := newTestStore(t)

	task := &db.Task{
		Name:         "nightly",
		TaskType:     db.TaskTypeAnalyzeContext,
		ScheduleType: db.ScheduleManual,
		Enabled:      true,
	}
	require.NoError(t, store.CreateTask(task))

	stale := &db.Execution{TaskID: task.ID, TriggerType: db.TriggerScheduled}
	require.NoError(t, store.CreateExecution(stale))
	require.NoError(t, store.MarkExecutionRunning(stale.ID))

	sched, _ := newTestScheduler(t, store, metrics.StaticProvider{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		exec, err := store.GetExecution(stale.ID)
		return err == nil && exec.Status == db.ExecFailed
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
	assert.False(t, sched.StartedAt().IsZero())
}
