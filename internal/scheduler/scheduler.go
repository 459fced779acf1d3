// Package scheduler runs the recurring poll loop that fires due tasks.
//
// Each poll cycle is stateless: it lists enabled non-manual tasks, asks the
// trigger evaluator which are due, and hands them to the engine. All overlap
// control lives in the store's single-flight constraint, so several scheduler
// instances can poll the same database concurrently — the losers of a claim
// race just see a conflict and move on.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleet-tasks/internal/db"
	"github.com/fleetops/fleet-tasks/internal/engine"
	"github.com/fleetops/fleet-tasks/internal/metrics"
	"github.com/fleetops/fleet-tasks/internal/trigger"
)

// Scheduler polls for due tasks at a fixed cadence.
type Scheduler struct {
	store     *db.DB
	engine    *engine.Engine
	evaluator trigger.Evaluator
	provider  metrics.Provider
	interval  time.Duration
	log       zerolog.Logger

	startedAt time.Time
}

// New creates a scheduler. interval is the poll cadence.
func New(store *db.DB, eng *engine.Engine, evaluator trigger.Evaluator, provider metrics.Provider, interval time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Scheduler{
		store:     store,
		engine:    eng,
		evaluator: evaluator,
		provider:  provider,
		interval:  interval,
		log:       log.With().Str("component", "scheduler").Logger(),
	}
}

// Run polls until ctx is cancelled. It sweeps stale executions once on
// startup so runs interrupted by a restart don't block their tasks forever.
func (s *Scheduler) Run(ctx context.Context) {
	s.startedAt = time.Now().UTC()

	if n, err := s.store.MarkStaleExecutionsFailed(); err != nil {
		s.log.Error().Err(err).Msg("sweeping stale executions")
	} else if n > 0 {
		s.log.Warn().Int64("count", n).Msg("marked stale executions as failed")
	}

	s.log.Info().Dur("interval", s.interval).Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.Poll(time.Now().UTC())
		}
	}
}

// Poll runs one scheduling cycle at the given instant. Exposed for tests and
// for the daemon's signal-driven immediate poll.
func (s *Scheduler) Poll(now time.Time) {
	tasks, err := s.store.ListDueCandidates()
	if err != nil {
		s.log.Error().Err(err).Msg("listing tasks")
		return
	}
	if len(tasks) == 0 {
		return
	}

	snap, err := s.provider.Snapshot()
	if err != nil {
		// Threshold tasks simply won't fire this cycle; time-based ones still do.
		s.log.Warn().Err(err).Msg("metric snapshot failed")
		snap = trigger.MetricSnapshot{}
	}

	for _, task := range tasks {
		if !s.evaluator.IsDue(task, now, snap) {
			continue
		}

		trig := db.TriggerScheduled
		if task.ScheduleType == db.ScheduleThreshold {
			trig = db.TriggerThreshold
		}

		exec, err := s.engine.Trigger(task.ID, trig)
		switch {
		case errors.Is(err, db.ErrConflict):
			// Already running here or claimed by another instance.
			s.log.Debug().Str("task_id", task.ID).Msg("skipping task with execution in flight")
		case errors.Is(err, db.ErrNotFound):
			s.log.Debug().Str("task_id", task.ID).Msg("task deleted between list and claim")
		case err != nil:
			s.log.Error().Err(err).Str("task_id", task.ID).Msg("claiming task")
		default:
			s.log.Info().
				Str("task_id", task.ID).
				Str("task", task.Name).
				Str("execution_id", exec.ID).
				Str("trigger", string(trig)).
				Msg("fired due task")
		}
	}
}

// StartedAt returns when the loop started, for the status endpoint.
func (s *Scheduler) StartedAt() time.Time {
	return s.startedAt
}

// Interval returns the poll cadence.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}
