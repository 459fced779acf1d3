package trigger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fleetops/fleet-tasks/internal/db"
)

func cronTask(expr string, lastRun *time.Time) *db.Task {
	return &db.Task{
		Name:           "nightly",
		ScheduleType:   db.ScheduleCron,
		CronExpression: expr,
		Enabled:        true,
		CreatedAt:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		LastRunAt:      lastRun,
	}
}

func TestValidateCron(t *testing.T) {
	require.NoError(t, ValidateCron("0 9 * * *"))
	require.NoError(t, ValidateCron("*/5 * * * *"))

	assert.Error(t, ValidateCron("not a cron"))
	assert.Error(t, ValidateCron("0 9 * *"))
	// 6-field (seconds) expressions are rejected; the API stores 5-field only.
	assert.Error(t, ValidateCron("0 0 9 * * *"))
}

func TestCronDue(t *testing.T) {
	var e Evaluator

	lastRun := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task := cronTask("0 9 * * *", &lastRun)

	// Next fire after lastRun is 2026-03-02 09:00.
	assert.False(t, e.IsDue(task, time.Date(2026, 3, 2, 8, 59, 0, 0, time.UTC), nil))
	assert.True(t, e.IsDue(task, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), nil))
	assert.True(t, e.IsDue(task, time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC), nil))
}

func TestCronDueDeterministic(t *testing.T) {
	var e Evaluator

	lastRun := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	task := cronTask("0 9 * * *", &lastRun)
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	first := e.IsDue(task, now, nil)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, e.IsDue(task, now, nil))
	}
}

func TestCronDueNeverRun(t *testing.T) {
	var e Evaluator

	// Never run: due time counts from creation.
	task := cronTask("0 9 * * *", nil)
	assert.False(t, e.IsDue(task, time.Date(2026, 1, 1, 8, 0, 0, 0, time.UTC), nil))
	assert.True(t, e.IsDue(task, time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC), nil))
}

func TestIntervalDue(t *testing.T) {
	var e Evaluator

	task := &db.Task{
		ScheduleType:  db.ScheduleInterval,
		IntervalHours: 6,
		Enabled:       true,
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Never run fires immediately.
	assert.True(t, e.IsDue(task, now, nil))

	lastRun := now.Add(-1 * time.Hour)
	task.LastRunAt = &lastRun
	assert.False(t, e.IsDue(task, now, nil))

	lastRun = now.Add(-6 * time.Hour)
	task.LastRunAt = &lastRun
	assert.True(t, e.IsDue(task, now, nil))
}

func TestThresholdDue(t *testing.T) {
	var e Evaluator

	task := &db.Task{
		ScheduleType:    db.ScheduleThreshold,
		ThresholdMetric: db.MetricHealthScore,
		ThresholdValue:  50,
		ThresholdOp:     db.OpLT,
		Enabled:         true,
	}
	now := time.Now().UTC()

	assert.True(t, e.IsDue(task, now, MetricSnapshot{db.MetricHealthScore: 49}))
	// Boundary value is excluded for lt.
	assert.False(t, e.IsDue(task, now, MetricSnapshot{db.MetricHealthScore: 50}))
	assert.False(t, e.IsDue(task, now, MetricSnapshot{db.MetricHealthScore: 51}))

	task.ThresholdOp = db.OpLTE
	assert.True(t, e.IsDue(task, now, MetricSnapshot{db.MetricHealthScore: 50}))

	task.ThresholdOp = db.OpGT
	assert.True(t, e.IsDue(task, now, MetricSnapshot{db.MetricHealthScore: 51}))
	assert.False(t, e.IsDue(task, now, MetricSnapshot{db.MetricHealthScore: 50}))

	task.ThresholdOp = db.OpGTE
	assert.True(t, e.IsDue(task, now, MetricSnapshot{db.MetricHealthScore: 50}))

	// Missing metric never fires.
	task.ThresholdMetric = db.MetricCPUPercent
	assert.False(t, e.IsDue(task, now, MetricSnapshot{db.MetricHealthScore: 10}))
}

func TestThresholdCooldown(t *testing.T) {
	e := Evaluator{ThresholdCooldown: time.Hour}

	now := time.Now().UTC()
	lastRun := now.Add(-30 * time.Minute)
	task := &db.Task{
		ScheduleType:    db.ScheduleThreshold,
		ThresholdMetric: db.MetricHealthScore,
		ThresholdValue:  50,
		ThresholdOp:     db.OpLT,
		Enabled:         true,
		LastRunAt:       &lastRun,
	}
	snap := MetricSnapshot{db.MetricHealthScore: 10}

	// Condition holds but the cooldown suppresses the re-fire.
	assert.False(t, e.IsDue(task, now, snap))

	lastRun = now.Add(-2 * time.Hour)
	task.LastRunAt = &lastRun
	assert.True(t, e.IsDue(task, now, snap))

	// Zero cooldown re-fires every poll.
	var eager Evaluator
	lastRun = now.Add(-time.Second)
	task.LastRunAt = &lastRun
	assert.True(t, eager.IsDue(task, now, snap))
}

func TestManualAndDisabledNeverDue(t *testing.T) {
	var e Evaluator
	now := time.Now().UTC()

	manual := &db.Task{ScheduleType: db.ScheduleManual, Enabled: true}
	assert.False(t, e.IsDue(manual, now, nil))

	lastRun := now.Add(-48 * time.Hour)
	disabled := cronTask("0 9 * * *", &lastRun)
	disabled.Enabled = false
	assert.False(t, e.IsDue(disabled, now, nil))
}

func TestNextFire(t *testing.T) {
	after := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	next := NextFire(cronTask("0 9 * * *", nil), after)
	require.NotNil(t, next)
	assert.Equal(t, time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), *next)

	next = NextFire(&db.Task{ScheduleType: db.ScheduleInterval, IntervalHours: 6}, after)
	require.NotNil(t, next)
	assert.Equal(t, after.Add(6*time.Hour), *next)

	assert.Nil(t, NextFire(&db.Task{ScheduleType: db.ScheduleThreshold}, after))
	assert.Nil(t, NextFire(&db.Task{ScheduleType: db.ScheduleManual}, after))
}
