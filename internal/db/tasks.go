package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const taskColumns = `id, name, description, task_type, schedule_type, cron_expression,
	interval_hours, threshold_metric, threshold_value, threshold_op, machine_id,
	config, enabled, created_at, updated_at, last_run_at, next_run_at`

// TaskFilter narrows ListTasks results. Zero values mean "no filter".
type TaskFilter struct {
	MachineID    string
	TaskType     TaskType
	ScheduleType ScheduleType
	Enabled      *bool
}

// TaskCounts summarizes the task table for the status endpoint.
type TaskCounts struct {
	Total    int `json:"total"`
	Enabled  int `json:"enabled"`
	Disabled int `json:"disabled"`
}

// CreateTask inserts a new task, assigning an id when the caller left it empty.
func (db *DB) CreateTask(task *Task) error {
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := db.conn.Exec(`
		INSERT INTO tasks (`+taskColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.ID, task.Name, task.Description, task.TaskType, task.ScheduleType,
		task.CronExpression, task.IntervalHours, task.ThresholdMetric,
		task.ThresholdValue, task.ThresholdOp, task.MachineID, task.Config,
		task.Enabled, task.CreatedAt, task.UpdatedAt, task.LastRunAt, task.NextRunAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task name %q: %w", task.Name, ErrConflict)
		}
		return err
	}
	return nil
}

// GetTask retrieves a task by ID.
func (db *DB) GetTask(id string) (*Task, error) {
	row := db.conn.QueryRow(`SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	return scanTask(row)
}

// ListTasks retrieves tasks matching the filter, newest first.
func (db *DB) ListTasks(f TaskFilter) ([]*Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE 1=1`
	var args []any
	if f.MachineID != "" {
		query += " AND machine_id = ?"
		args = append(args, f.MachineID)
	}
	if f.TaskType != "" {
		query += " AND task_type = ?"
		args = append(args, f.TaskType)
	}
	if f.ScheduleType != "" {
		query += " AND schedule_type = ?"
		args = append(args, f.ScheduleType)
	}
	if f.Enabled != nil {
		query += " AND enabled = ?"
		args = append(args, *f.Enabled)
	}
	query += " ORDER BY created_at DESC"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ListDueCandidates retrieves enabled tasks the poll loop should evaluate,
// i.e. everything except manual-only tasks.
func (db *DB) ListDueCandidates() ([]*Task, error) {
	enabled := true
	tasks, err := db.ListTasks(TaskFilter{Enabled: &enabled})
	if err != nil {
		return nil, err
	}
	out := tasks[:0]
	for _, t := range tasks {
		if t.ScheduleType != ScheduleManual {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateTask persists all mutable fields of a task.
func (db *DB) UpdateTask(task *Task) error {
	task.UpdatedAt = time.Now().UTC()
	res, err := db.conn.Exec(`
		UPDATE tasks SET name = ?, description = ?, task_type = ?, schedule_type = ?,
			cron_expression = ?, interval_hours = ?, threshold_metric = ?,
			threshold_value = ?, threshold_op = ?, machine_id = ?, config = ?,
			enabled = ?, updated_at = ?, last_run_at = ?, next_run_at = ?
		WHERE id = ?
	`, task.Name, task.Description, task.TaskType, task.ScheduleType,
		task.CronExpression, task.IntervalHours, task.ThresholdMetric,
		task.ThresholdValue, task.ThresholdOp, task.MachineID, task.Config,
		task.Enabled, task.UpdatedAt, task.LastRunAt, task.NextRunAt, task.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("task name %q: %w", task.Name, ErrConflict)
		}
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateTaskRunTimes updates only the cached last/next run columns.
func (db *DB) UpdateTaskRunTimes(id string, lastRunAt, nextRunAt *time.Time) error {
	_, err := db.conn.Exec(`
		UPDATE tasks SET last_run_at = ?, next_run_at = ?, updated_at = ? WHERE id = ?
	`, lastRunAt, nextRunAt, time.Now().UTC(), id)
	return err
}

// DeleteTask deletes a task. Execution history is retained for audit.
func (db *DB) DeleteTask(id string) error {
	res, err := db.conn.Exec("DELETE FROM tasks WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// CountTasks returns total/enabled/disabled task counts.
func (db *DB) CountTasks() (TaskCounts, error) {
	var c TaskCounts
	err := db.conn.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN enabled THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN enabled THEN 0 ELSE 1 END), 0)
		FROM tasks
	`).Scan(&c.Total, &c.Enabled, &c.Disabled)
	return c, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	task := &Task{}
	err := row.Scan(&task.ID, &task.Name, &task.Description, &task.TaskType,
		&task.ScheduleType, &task.CronExpression, &task.IntervalHours,
		&task.ThresholdMetric, &task.ThresholdValue, &task.ThresholdOp,
		&task.MachineID, &task.Config, &task.Enabled, &task.CreatedAt,
		&task.UpdatedAt, &task.LastRunAt, &task.NextRunAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return task, nil
}
