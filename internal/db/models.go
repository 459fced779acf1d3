package db

import "time"

// TaskType identifies which task body the engine invokes for a task.
type TaskType string

const (
	TaskTypeAnalyzeContext          TaskType = "analyze_context"
	TaskTypeHealthCheck             TaskType = "health_check"
	TaskTypeGenerateRecommendations TaskType = "generate_recommendations"
	TaskTypeCustom                  TaskType = "custom"
)

// ValidTaskType reports whether t is one of the known task types.
func ValidTaskType(t TaskType) bool {
	switch t {
	case TaskTypeAnalyzeContext, TaskTypeHealthCheck, TaskTypeGenerateRecommendations, TaskTypeCustom:
		return true
	}
	return false
}

// ScheduleType selects how a task's due time is decided.
type ScheduleType string

const (
	ScheduleCron      ScheduleType = "cron"
	ScheduleInterval  ScheduleType = "interval"
	ScheduleThreshold ScheduleType = "threshold"
	ScheduleManual    ScheduleType = "manual"
)

// ValidScheduleType reports whether s is one of the known schedule types.
func ValidScheduleType(s ScheduleType) bool {
	switch s {
	case ScheduleCron, ScheduleInterval, ScheduleThreshold, ScheduleManual:
		return true
	}
	return false
}

// ThresholdMetric names a live metric a threshold task compares against.
type ThresholdMetric string

const (
	MetricHealthScore   ThresholdMetric = "health_score"
	MetricCPUPercent    ThresholdMetric = "cpu_percent"
	MetricMemoryPercent ThresholdMetric = "memory_percent"
)

// ValidThresholdMetric reports whether m is one of the known metrics.
func ValidThresholdMetric(m ThresholdMetric) bool {
	switch m {
	case MetricHealthScore, MetricCPUPercent, MetricMemoryPercent:
		return true
	}
	return false
}

// ThresholdOp is the comparison operator for threshold tasks.
type ThresholdOp string

const (
	OpLT  ThresholdOp = "lt"
	OpLTE ThresholdOp = "lte"
	OpGT  ThresholdOp = "gt"
	OpGTE ThresholdOp = "gte"
)

// ValidThresholdOp reports whether op is one of the known operators.
func ValidThresholdOp(op ThresholdOp) bool {
	switch op {
	case OpLT, OpLTE, OpGT, OpGTE:
		return true
	}
	return false
}

// Task represents a named, schedulable unit of work.
type Task struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	TaskType        TaskType        `json:"task_type"`
	ScheduleType    ScheduleType    `json:"schedule_type"`
	CronExpression  string          `json:"cron_expression,omitempty"`
	IntervalHours   int             `json:"interval_hours,omitempty"`
	ThresholdMetric ThresholdMetric `json:"threshold_metric,omitempty"`
	ThresholdValue  float64         `json:"threshold_value,omitempty"`
	ThresholdOp     ThresholdOp     `json:"threshold_op,omitempty"`
	MachineID       string          `json:"machine_id,omitempty"` // empty = global scope
	Config          string          `json:"config,omitempty"`     // opaque JSON passed to the task body
	Enabled         bool            `json:"enabled"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
	LastRunAt       *time.Time      `json:"last_run_at,omitempty"`
	NextRunAt       *time.Time      `json:"next_run_at,omitempty"`
}

// ExecStatus represents the lifecycle state of an execution.
type ExecStatus string

const (
	ExecPending   ExecStatus = "pending"
	ExecRunning   ExecStatus = "running"
	ExecCompleted ExecStatus = "completed"
	ExecFailed    ExecStatus = "failed"
	ExecCancelled ExecStatus = "cancelled"
)

// IsTerminal reports whether the status is a terminal state.
func (s ExecStatus) IsTerminal() bool {
	return s == ExecCompleted || s == ExecFailed || s == ExecCancelled
}

// ValidExecStatus reports whether s is one of the known statuses.
func ValidExecStatus(s ExecStatus) bool {
	switch s {
	case ExecPending, ExecRunning, ExecCompleted, ExecFailed, ExecCancelled:
		return true
	}
	return false
}

// TriggerType records why an execution was started.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerManual    TriggerType = "manual"
	TriggerThreshold TriggerType = "threshold"
	TriggerWebhook   TriggerType = "webhook"
)

// ValidTriggerType reports whether t is one of the known trigger types.
func ValidTriggerType(t TriggerType) bool {
	switch t {
	case TriggerScheduled, TriggerManual, TriggerThreshold, TriggerWebhook:
		return true
	}
	return false
}

// Execution is one concrete run of a task. Rows are append-only: created at
// claim time, finalized exactly once at the terminal transition.
type Execution struct {
	ID                string      `json:"id"`
	TaskID            string      `json:"task_id"`
	Status            ExecStatus  `json:"status"`
	TriggerType       TriggerType `json:"trigger_type"`
	StartedAt         time.Time   `json:"started_at"`
	CompletedAt       *time.Time  `json:"completed_at,omitempty"`
	DurationMs        *int64      `json:"duration_ms,omitempty"`
	Result            string      `json:"result,omitempty"` // opaque JSON from the task body
	Error             string      `json:"error,omitempty"`
	ProjectsProcessed int         `json:"projects_processed"`
	IssuesFound       int         `json:"issues_found"`
	TokensSaved       int         `json:"tokens_saved"`
	NotificationsSent []string    `json:"notifications_sent,omitempty"`
}

// EventType is an execution lifecycle event webhooks can subscribe to.
type EventType string

const (
	EventTaskStarted         EventType = "task_started"
	EventTaskCompleted       EventType = "task_completed"
	EventTaskFailed          EventType = "task_failed"
	EventThresholdTriggered  EventType = "threshold_triggered"
	EventOptimizationApplied EventType = "optimization_applied"
	EventHealthAlert         EventType = "health_alert"
)

// ValidEventType reports whether e is one of the known event types.
func ValidEventType(e EventType) bool {
	switch e {
	case EventTaskStarted, EventTaskCompleted, EventTaskFailed,
		EventThresholdTriggered, EventOptimizationApplied, EventHealthAlert:
		return true
	}
	return false
}

// WebhookType determines the payload shape a webhook receives.
type WebhookType string

const (
	WebhookSlack   WebhookType = "slack"
	WebhookDiscord WebhookType = "discord"
	WebhookN8N     WebhookType = "n8n"
	WebhookGeneric WebhookType = "generic"
)

// ValidWebhookType reports whether t is one of the known webhook types.
func ValidWebhookType(t WebhookType) bool {
	switch t {
	case WebhookSlack, WebhookDiscord, WebhookN8N, WebhookGeneric:
		return true
	}
	return false
}

// Webhook is an outbound notification target.
type Webhook struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	WebhookType  WebhookType `json:"webhook_type"`
	WebhookURL   string      `json:"-"`                // sensitive; masked in API responses
	Config       string      `json:"config,omitempty"` // opaque JSON, type-specific
	EventTypes   []EventType `json:"event_types"`
	MachineID    string      `json:"machine_id,omitempty"` // empty = all machines
	Enabled      bool        `json:"enabled"`
	CreatedAt    time.Time   `json:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at"`
	LastUsedAt   *time.Time  `json:"last_used_at,omitempty"`
	FailureCount int         `json:"failure_count"`
}

// Subscribed reports whether the webhook wants the given event.
func (w *Webhook) Subscribed(event EventType) bool {
	for _, e := range w.EventTypes {
		if e == event {
			return true
		}
	}
	return false
}

// InScope reports whether the webhook's machine scope matches. An unscoped
// webhook matches everything.
func (w *Webhook) InScope(machineID string) bool {
	return w.MachineID == "" || w.MachineID == machineID
}

// Machine is a registered fleet member tasks can be scoped to.
type Machine struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
}
