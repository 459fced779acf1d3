package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const executionColumns = `id, task_id, status, trigger_type, started_at, completed_at,
	duration_ms, result, error, projects_processed, issues_found, tokens_saved,
	notifications_sent`

// ExecutionFilter narrows ListExecutions results.
type ExecutionFilter struct {
	TaskID      string
	Status      ExecStatus
	TriggerType TriggerType
	Limit       int
	Offset      int
}

// ExecutionStats aggregates the execution history in scope. TotalTokensSaved
// counts completed executions only.
type ExecutionStats struct {
	Total            int `json:"total"`
	Completed        int `json:"completed"`
	Failed           int `json:"failed"`
	TotalTokensSaved int `json:"total_tokens_saved"`
}

// CreateExecution inserts a new non-terminal execution row. The partial unique
// index on (task_id) rejects the insert when another pending/running execution
// exists for the task; that violation surfaces as ErrConflict.
func (db *DB) CreateExecution(exec *Execution) error {
	if exec.ID == "" {
		exec.ID = uuid.NewString()
	}
	if exec.Status == "" {
		exec.Status = ExecPending
	}
	if exec.StartedAt.IsZero() {
		exec.StartedAt = time.Now().UTC()
	}

	sent, err := json.Marshal(exec.NotificationsSent)
	if err != nil {
		return err
	}

	_, err = db.conn.Exec(`
		INSERT INTO executions (`+executionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, exec.ID, exec.TaskID, exec.Status, exec.TriggerType, exec.StartedAt,
		exec.CompletedAt, exec.DurationMs, exec.Result, exec.Error,
		exec.ProjectsProcessed, exec.IssuesFound, exec.TokensSaved, string(sent))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task %s already has an execution in flight: %w", exec.TaskID, ErrConflict)
		}
		return err
	}
	return nil
}

// MarkExecutionRunning transitions pending -> running. Returns ErrConflict if
// the execution left the pending state in the meantime (e.g. cancelled).
func (db *DB) MarkExecutionRunning(id string) error {
	res, err := db.conn.Exec(`
		UPDATE executions SET status = ? WHERE id = ? AND status = ?
	`, ExecRunning, id, ExecPending)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// FinalizeExecution writes the terminal transition. The conditional update
// guarantees the row is finalized exactly once: a late body result racing a
// cancellation loses and gets ErrConflict.
func (db *DB) FinalizeExecution(exec *Execution) error {
	if !exec.Status.IsTerminal() {
		return fmt.Errorf("finalize with non-terminal status %q", exec.Status)
	}
	if exec.CompletedAt == nil {
		now := time.Now().UTC()
		exec.CompletedAt = &now
	}
	if exec.DurationMs == nil {
		ms := exec.CompletedAt.Sub(exec.StartedAt).Milliseconds()
		exec.DurationMs = &ms
	}

	res, err := db.conn.Exec(`
		UPDATE executions SET status = ?, completed_at = ?, duration_ms = ?,
			result = ?, error = ?, projects_processed = ?, issues_found = ?,
			tokens_saved = ?
		WHERE id = ? AND status IN (?, ?)
	`, exec.Status, exec.CompletedAt, exec.DurationMs, exec.Result, exec.Error,
		exec.ProjectsProcessed, exec.IssuesFound, exec.TokensSaved,
		exec.ID, ExecPending, ExecRunning)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// SetNotificationsSent records the webhook ids fired for an execution. This is
// the only write allowed after the terminal transition and never touches status.
func (db *DB) SetNotificationsSent(id string, webhookIDs []string) error {
	sent, err := json.Marshal(webhookIDs)
	if err != nil {
		return err
	}
	_, err = db.conn.Exec(`UPDATE executions SET notifications_sent = ? WHERE id = ?`, string(sent), id)
	return err
}

// GetExecution retrieves an execution by ID.
func (db *DB) GetExecution(id string) (*Execution, error) {
	row := db.conn.QueryRow(`SELECT `+executionColumns+` FROM executions WHERE id = ?`, id)
	return scanExecution(row)
}

// GetInflightExecution returns the pending/running execution for a task, if any.
func (db *DB) GetInflightExecution(taskID string) (*Execution, error) {
	row := db.conn.QueryRow(`
		SELECT `+executionColumns+` FROM executions
		WHERE task_id = ? AND status IN (?, ?)
	`, taskID, ExecPending, ExecRunning)
	return scanExecution(row)
}

// ListExecutions retrieves executions matching the filter, newest first.
func (db *DB) ListExecutions(f ExecutionFilter) ([]*Execution, error) {
	query := `SELECT ` + executionColumns + ` FROM executions WHERE 1=1`
	var args []any
	if f.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, f.TaskID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.TriggerType != "" {
		query += " AND trigger_type = ?"
		args = append(args, f.TriggerType)
	}
	query += " ORDER BY started_at DESC"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var execs []*Execution
	for rows.Next() {
		exec, err := scanExecution(rows)
		if err != nil {
			return nil, err
		}
		execs = append(execs, exec)
	}
	return execs, rows.Err()
}

// CountExecutions returns the number of executions matching the filter,
// ignoring Limit/Offset.
func (db *DB) CountExecutions(f ExecutionFilter) (int, error) {
	query := `SELECT COUNT(*) FROM executions WHERE 1=1`
	var args []any
	if f.TaskID != "" {
		query += " AND task_id = ?"
		args = append(args, f.TaskID)
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.TriggerType != "" {
		query += " AND trigger_type = ?"
		args = append(args, f.TriggerType)
	}
	var n int
	err := db.conn.QueryRow(query, args...).Scan(&n)
	return n, err
}

// GetExecutionStats aggregates the history for a task scope (empty taskID =
// all tasks). Token totals only count completed executions.
func (db *DB) GetExecutionStats(taskID string) (ExecutionStats, error) {
	query := `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'failed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'completed' THEN tokens_saved ELSE 0 END), 0)
		FROM executions`
	var args []any
	if taskID != "" {
		query += " WHERE task_id = ?"
		args = append(args, taskID)
	}
	var s ExecutionStats
	err := db.conn.QueryRow(query, args...).Scan(&s.Total, &s.Completed, &s.Failed, &s.TotalTokensSaved)
	return s, err
}

// CountExecutionsSince returns the number of executions started at or after t.
func (db *DB) CountExecutionsSince(t time.Time) (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM executions WHERE started_at >= ?`, t).Scan(&n)
	return n, err
}

// MarkStaleExecutionsFailed marks all non-terminal executions as failed.
// Called on startup to clean up runs interrupted by a server restart.
func (db *DB) MarkStaleExecutionsFailed() (int64, error) {
	res, err := db.conn.Exec(`
		UPDATE executions
		SET status = ?, error = 'server restarted during execution', completed_at = CURRENT_TIMESTAMP
		WHERE status IN (?, ?)
	`, ExecFailed, ExecPending, ExecRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanExecution(row rowScanner) (*Execution, error) {
	exec := &Execution{}
	var sent string
	err := row.Scan(&exec.ID, &exec.TaskID, &exec.Status, &exec.TriggerType,
		&exec.StartedAt, &exec.CompletedAt, &exec.DurationMs, &exec.Result,
		&exec.Error, &exec.ProjectsProcessed, &exec.IssuesFound,
		&exec.TokensSaved, &sent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if sent != "" {
		if err := json.Unmarshal([]byte(sent), &exec.NotificationsSent); err != nil {
			return nil, fmt.Errorf("execution %s: bad notifications_sent: %w", exec.ID, err)
		}
	}
	return exec, nil
}
