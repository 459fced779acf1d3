// Package engine owns the task execution lifecycle: claiming a task,
// transitioning its execution through pending/running to a terminal state,
// and fanning out lifecycle notifications.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fleetops/fleet-tasks/internal/db"
	"github.com/fleetops/fleet-tasks/internal/trigger"
	"github.com/fleetops/fleet-tasks/internal/webhook"
)

// ErrInvalidTriggerType rejects run requests with an unknown trigger type.
var ErrInvalidTriggerType = errors.New("invalid trigger type")

// Engine claims and runs tasks. Single-flight per task is enforced by the
// store's conditional insert, never by in-process locking, so multiple engine
// instances can poll the same database safely.
type Engine struct {
	store      *db.DB
	registry   *Registry
	dispatcher *webhook.Dispatcher
	log        zerolog.Logger
	timeout    time.Duration

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

// New creates an engine. timeout is the per-execution wall-clock ceiling;
// zero disables the watchdog.
func New(store *db.DB, registry *Registry, dispatcher *webhook.Dispatcher, log zerolog.Logger, timeout time.Duration) *Engine {
	return &Engine{
		store:      store,
		registry:   registry,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "engine").Logger(),
		timeout:    timeout,
		cancels:    make(map[string]context.CancelFunc),
	}
}

// Trigger claims the task and starts its execution asynchronously. The
// returned execution is in the pending state; the caller gets it back before
// the body runs (202 semantics at the API layer).
//
// Errors: db.ErrNotFound for an unknown task, db.ErrConflict when another
// execution is in flight, ErrInvalidTriggerType for a bad trigger type.
func (e *Engine) Trigger(taskID string, trig db.TriggerType) (*db.Execution, error) {
	if !db.ValidTriggerType(trig) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTriggerType, trig)
	}

	task, err := e.store.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	exec := &db.Execution{
		TaskID:      task.ID,
		Status:      db.ExecPending,
		TriggerType: trig,
		StartedAt:   time.Now().UTC(),
	}
	if err := e.store.CreateExecution(exec); err != nil {
		return nil, err
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.run(task, exec)
	}()

	return exec, nil
}

// Cancel requests a best-effort cancellation of a non-terminal execution.
// When the execution runs in this process its context is cancelled; an
// execution claimed by another instance is finalized as cancelled directly
// (the conditional terminal write resolves any race).
func (e *Engine) Cancel(executionID string) error {
	exec, err := e.store.GetExecution(executionID)
	if err != nil {
		return err
	}
	if exec.Status.IsTerminal() {
		return fmt.Errorf("execution %s is already %s: %w", exec.ID, exec.Status, db.ErrConflict)
	}

	e.mu.Lock()
	cancel, local := e.cancels[executionID]
	e.mu.Unlock()
	if local {
		cancel()
		return nil
	}

	exec.Status = db.ExecCancelled
	exec.Error = "execution cancelled"
	now := time.Now().UTC()
	exec.CompletedAt = &now
	if err := e.store.FinalizeExecution(exec); err != nil && !errors.Is(err, db.ErrConflict) {
		return err
	}
	return nil
}

// Wait blocks until all in-flight executions in this process have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
}

type bodyOutcome struct {
	result *BodyResult
	err    error
}

func (e *Engine) run(task *db.Task, exec *db.Execution) {
	log := e.log.With().
		Str("task_id", task.ID).
		Str("execution_id", exec.ID).
		Str("trigger", string(exec.TriggerType)).
		Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	e.mu.Lock()
	e.cancels[exec.ID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, exec.ID)
		e.mu.Unlock()
	}()

	if err := e.store.MarkExecutionRunning(exec.ID); err != nil {
		// Cancelled before the body started; nothing to run.
		log.Debug().Err(err).Msg("execution left pending state before start")
		return
	}
	exec.Status = db.ExecRunning
	log.Info().Str("task", task.Name).Msg("execution started")

	var fired []string
	fired = append(fired, e.dispatcher.Dispatch(e.event(db.EventTaskStarted, task, exec))...)
	if exec.TriggerType == db.TriggerThreshold {
		fired = append(fired, e.dispatcher.Dispatch(e.event(db.EventThresholdTriggered, task, exec))...)
	}

	runCtx := ctx
	if e.timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(ctx, e.timeout)
		defer cancelTimeout()
	}

	outcomeCh := make(chan bodyOutcome, 1)
	go e.invokeBody(runCtx, task, outcomeCh)

	var extraEvents []db.EventType
	select {
	case out := <-outcomeCh:
		now := time.Now().UTC()
		exec.CompletedAt = &now
		if ctx.Err() != nil {
			// A cooperative body returning after Cancel still counts as
			// cancelled, not failed.
			exec.Status = db.ExecCancelled
			exec.Error = "execution cancelled"
		} else if out.err != nil {
			exec.Status = db.ExecFailed
			exec.Error = out.err.Error()
		} else {
			exec.Status = db.ExecCompleted
			e.captureResult(exec, out.result, log)
			extraEvents = out.result.Events
		}
	case <-runCtx.Done():
		now := time.Now().UTC()
		exec.CompletedAt = &now
		if ctx.Err() != nil {
			exec.Status = db.ExecCancelled
			exec.Error = "execution cancelled"
		} else {
			// Watchdog fired: the body is abandoned, not interrupted.
			exec.Status = db.ExecFailed
			exec.Error = fmt.Sprintf("execution timed out after %s", e.timeout)
		}
	}

	ms := exec.CompletedAt.Sub(exec.StartedAt).Milliseconds()
	exec.DurationMs = &ms

	if err := e.store.FinalizeExecution(exec); err != nil {
		if errors.Is(err, db.ErrConflict) {
			log.Debug().Msg("execution already finalized elsewhere")
		} else {
			log.Error().Err(err).Msg("finalizing execution")
		}
		return
	}

	last := *exec.CompletedAt
	next := trigger.NextFire(task, last)
	if err := e.store.UpdateTaskRunTimes(task.ID, &last, next); err != nil {
		log.Error().Err(err).Msg("updating task run times")
	}

	switch exec.Status {
	case db.ExecCompleted:
		fired = append(fired, e.dispatcher.Dispatch(e.event(db.EventTaskCompleted, task, exec))...)
		log.Info().Int64("duration_ms", ms).Msg("execution completed")
	case db.ExecFailed:
		fired = append(fired, e.dispatcher.Dispatch(e.event(db.EventTaskFailed, task, exec))...)
		log.Warn().Int64("duration_ms", ms).Str("error", exec.Error).Msg("execution failed")
	case db.ExecCancelled:
		log.Info().Int64("duration_ms", ms).Msg("execution cancelled")
	}
	for _, ev := range extraEvents {
		fired = append(fired, e.dispatcher.Dispatch(e.event(ev, task, exec))...)
	}

	if len(fired) > 0 {
		if err := e.store.SetNotificationsSent(exec.ID, dedupe(fired)); err != nil {
			log.Error().Err(err).Msg("recording notifications sent")
		}
	}
}

func (e *Engine) invokeBody(ctx context.Context, task *db.Task, out chan<- bodyOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out <- bodyOutcome{err: fmt.Errorf("task body panicked: %v", r)}
		}
	}()

	body, err := e.registry.Resolve(task)
	if err != nil {
		out <- bodyOutcome{err: err}
		return
	}

	var machine *db.Machine
	if task.MachineID != "" {
		machine, err = e.store.GetMachine(task.MachineID)
		if err != nil {
			out <- bodyOutcome{err: fmt.Errorf("resolving machine %s: %w", task.MachineID, err)}
			return
		}
	}

	result, err := body(ctx, BodyRequest{
		Task:    task,
		Machine: machine,
		Config:  json.RawMessage(task.Config),
	})
	if err != nil {
		out <- bodyOutcome{err: err}
		return
	}
	if result == nil {
		result = &BodyResult{}
	}
	out <- bodyOutcome{result: result}
}

func (e *Engine) captureResult(exec *db.Execution, result *BodyResult, log zerolog.Logger) {
	exec.ProjectsProcessed = result.ProjectsProcessed
	exec.IssuesFound = result.IssuesFound
	exec.TokensSaved = result.TokensSaved
	data, err := json.Marshal(result)
	if err != nil {
		log.Error().Err(err).Msg("marshaling body result")
		return
	}
	exec.Result = string(data)
}

func (e *Engine) event(kind db.EventType, task *db.Task, exec *db.Execution) webhook.Event {
	evt := webhook.Event{
		Event:       kind,
		Timestamp:   time.Now().UTC(),
		Source:      webhook.Source,
		TaskID:      task.ID,
		TaskName:    task.Name,
		MachineID:   task.MachineID,
		ExecutionID: exec.ID,
		Status:      string(exec.Status),
		TriggerType: string(exec.TriggerType),
		TokensSaved: exec.TokensSaved,
		Error:       exec.Error,
	}
	if exec.DurationMs != nil {
		evt.DurationMs = *exec.DurationMs
	}
	if exec.Result != "" {
		var res BodyResult
		if err := json.Unmarshal([]byte(exec.Result), &res); err == nil {
			evt.Summary = res.Summary
		}
	}
	return evt
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
