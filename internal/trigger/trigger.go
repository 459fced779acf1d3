// Package trigger decides whether a task is due to run. It is pure: no I/O,
// no clock reads; callers pass in the current time and a metric snapshot.
package trigger

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fleetops/fleet-tasks/internal/db"
)

// cronParser accepts standard 5-field expressions (minute through day-of-week).
var cronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// MetricSnapshot carries the live metric values threshold tasks compare against.
type MetricSnapshot map[db.ThresholdMetric]float64

// Evaluator holds the due-check policy knobs.
type Evaluator struct {
	// ThresholdCooldown suppresses threshold re-fires for this long after a
	// run. Zero means a threshold task may re-fire on every poll while the
	// condition holds.
	ThresholdCooldown time.Duration
}

// ValidateCron rejects malformed cron expressions. Called at task
// creation/update time so IsDue never sees an invalid expression.
func ValidateCron(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// IsDue reports whether the task should fire now. Manual tasks are never due
// via polling.
func (e Evaluator) IsDue(task *db.Task, now time.Time, metrics MetricSnapshot) bool {
	if !task.Enabled {
		return false
	}

	switch task.ScheduleType {
	case db.ScheduleCron:
		return e.cronDue(task, now)
	case db.ScheduleInterval:
		return e.intervalDue(task, now)
	case db.ScheduleThreshold:
		return e.thresholdDue(task, now, metrics)
	default:
		return false
	}
}

func (e Evaluator) cronDue(task *db.Task, now time.Time) bool {
	sched, err := cronParser.Parse(task.CronExpression)
	if err != nil {
		// Unreachable for tasks that passed creation-time validation.
		return false
	}
	base := task.CreatedAt
	if task.LastRunAt != nil {
		base = *task.LastRunAt
	}
	next := sched.Next(base)
	return !next.IsZero() && !next.After(now)
}

func (e Evaluator) intervalDue(task *db.Task, now time.Time) bool {
	if task.IntervalHours <= 0 {
		return false
	}
	if task.LastRunAt == nil {
		return true
	}
	return now.Sub(*task.LastRunAt) >= time.Duration(task.IntervalHours)*time.Hour
}

func (e Evaluator) thresholdDue(task *db.Task, now time.Time, metrics MetricSnapshot) bool {
	if e.ThresholdCooldown > 0 && task.LastRunAt != nil &&
		now.Sub(*task.LastRunAt) < e.ThresholdCooldown {
		return false
	}
	value, ok := metrics[task.ThresholdMetric]
	if !ok {
		return false
	}
	switch task.ThresholdOp {
	case db.OpLT:
		return value < task.ThresholdValue
	case db.OpLTE:
		return value <= task.ThresholdValue
	case db.OpGT:
		return value > task.ThresholdValue
	case db.OpGTE:
		return value >= task.ThresholdValue
	default:
		return false
	}
}

// NextFire returns the next scheduled fire time after the given instant, or
// nil for schedule types with no computable next time (threshold, manual).
func NextFire(task *db.Task, after time.Time) *time.Time {
	switch task.ScheduleType {
	case db.ScheduleCron:
		sched, err := cronParser.Parse(task.CronExpression)
		if err != nil {
			return nil
		}
		next := sched.Next(after)
		if next.IsZero() {
			return nil
		}
		return &next
	case db.ScheduleInterval:
		if task.IntervalHours <= 0 {
			return nil
		}
		next := after.Add(time.Duration(task.IntervalHours) * time.Hour)
		return &next
	default:
		return nil
	}
}
