package api

import (
	"encoding/json"
	"time"

	"github.com/fleetops/fleet-tasks/internal/db"
)

// TaskRequest represents a task creation request.
type TaskRequest struct {
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	TaskType        string          `json:"taskType"`
	ScheduleType    string          `json:"scheduleType"`
	CronExpression  string          `json:"cronExpression,omitempty"`
	IntervalHours   int             `json:"intervalHours,omitempty"`
	ThresholdMetric string          `json:"thresholdMetric,omitempty"`
	ThresholdValue  *float64        `json:"thresholdValue,omitempty"`
	ThresholdOp     string          `json:"thresholdOp,omitempty"`
	MachineID       string          `json:"machineId,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
	Enabled         *bool           `json:"enabled,omitempty"` // defaults to true
}

// TaskPatch represents a partial task update. Only non-nil fields are applied.
type TaskPatch struct {
	Name            *string          `json:"name,omitempty"`
	Description     *string          `json:"description,omitempty"`
	ScheduleType    *string          `json:"scheduleType,omitempty"`
	CronExpression  *string          `json:"cronExpression,omitempty"`
	IntervalHours   *int             `json:"intervalHours,omitempty"`
	ThresholdMetric *string          `json:"thresholdMetric,omitempty"`
	ThresholdValue  *float64         `json:"thresholdValue,omitempty"`
	ThresholdOp     *string          `json:"thresholdOp,omitempty"`
	MachineID       *string          `json:"machineId,omitempty"`
	Config          *json.RawMessage `json:"config,omitempty"`
	Enabled         *bool            `json:"enabled,omitempty"`
}

// TaskResponse represents a task in API responses.
type TaskResponse struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	Description     string          `json:"description,omitempty"`
	TaskType        string          `json:"taskType"`
	ScheduleType    string          `json:"scheduleType"`
	CronExpression  string          `json:"cronExpression,omitempty"`
	IntervalHours   int             `json:"intervalHours,omitempty"`
	ThresholdMetric string          `json:"thresholdMetric,omitempty"`
	ThresholdValue  float64         `json:"thresholdValue,omitempty"`
	ThresholdOp     string          `json:"thresholdOp,omitempty"`
	MachineID       string          `json:"machineId,omitempty"`
	Config          json.RawMessage `json:"config,omitempty"`
	Enabled         bool            `json:"enabled"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
	LastRunAt       *time.Time      `json:"lastRunAt,omitempty"`
	NextRunAt       *time.Time      `json:"nextRunAt,omitempty"`
}

// TaskListResponse represents a list of tasks.
type TaskListResponse struct {
	Tasks []TaskResponse `json:"tasks"`
	Total int            `json:"total"`
}

// TaskDetailResponse is a task plus its recent execution history and stats.
type TaskDetailResponse struct {
	Task             TaskResponse        `json:"task"`
	RecentExecutions []ExecutionResponse `json:"recentExecutions"`
	Stats            StatsResponse       `json:"stats"`
}

// RunResponse acknowledges an accepted manual trigger.
type RunResponse struct {
	TaskID      string `json:"taskId"`
	ExecutionID string `json:"executionId"`
	Status      string `json:"status"`
	TriggerType string `json:"triggerType"`
}

// ExecutionResponse represents an execution in API responses.
type ExecutionResponse struct {
	ID                string          `json:"id"`
	TaskID            string          `json:"taskId"`
	Status            string          `json:"status"`
	TriggerType       string          `json:"triggerType"`
	StartedAt         time.Time       `json:"startedAt"`
	CompletedAt       *time.Time      `json:"completedAt,omitempty"`
	DurationMs        *int64          `json:"durationMs,omitempty"`
	Result            json.RawMessage `json:"result,omitempty"`
	Error             string          `json:"error,omitempty"`
	ProjectsProcessed int             `json:"projectsProcessed"`
	IssuesFound       int             `json:"issuesFound"`
	TokensSaved       int             `json:"tokensSaved"`
	NotificationsSent []string        `json:"notificationsSent,omitempty"`
}

// ExecutionListResponse represents filtered, paginated execution history.
type ExecutionListResponse struct {
	Executions []ExecutionResponse `json:"executions"`
	Pagination PaginationResponse  `json:"pagination"`
	Stats      StatsResponse       `json:"stats"`
}

// PaginationResponse describes the page returned by a list endpoint.
type PaginationResponse struct {
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// StatsResponse summarizes execution history in scope.
type StatsResponse struct {
	Total            int `json:"total"`
	Completed        int `json:"completed"`
	Failed           int `json:"failed"`
	TotalTokensSaved int `json:"totalTokensSaved"`
}

func statsToResponse(s db.ExecutionStats) StatsResponse {
	return StatsResponse{
		Total:            s.Total,
		Completed:        s.Completed,
		Failed:           s.Failed,
		TotalTokensSaved: s.TotalTokensSaved,
	}
}

// WebhookRequest represents a webhook creation request.
type WebhookRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	WebhookType string          `json:"webhookType"`
	WebhookURL  string          `json:"webhookUrl"`
	Config      json.RawMessage `json:"config,omitempty"`
	EventTypes  []string        `json:"eventTypes"`
	MachineID   string          `json:"machineId,omitempty"`
	Enabled     *bool           `json:"enabled,omitempty"` // defaults to true
}

// WebhookPatch represents a partial webhook update.
type WebhookPatch struct {
	Name        *string          `json:"name,omitempty"`
	Description *string          `json:"description,omitempty"`
	WebhookType *string          `json:"webhookType,omitempty"`
	WebhookURL  *string          `json:"webhookUrl,omitempty"`
	Config      *json.RawMessage `json:"config,omitempty"`
	EventTypes  *[]string        `json:"eventTypes,omitempty"`
	MachineID   *string          `json:"machineId,omitempty"`
	Enabled     *bool            `json:"enabled,omitempty"`
}

// WebhookResponse represents a webhook in API responses. The URL is always
// masked; the raw value never leaves the store through a read path.
type WebhookResponse struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Description  string          `json:"description,omitempty"`
	WebhookType  string          `json:"webhookType"`
	WebhookURL   string          `json:"webhookUrl"`
	Config       json.RawMessage `json:"config,omitempty"`
	EventTypes   []string        `json:"eventTypes"`
	MachineID    string          `json:"machineId,omitempty"`
	Enabled      bool            `json:"enabled"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
	LastUsedAt   *time.Time      `json:"lastUsedAt,omitempty"`
	FailureCount int             `json:"failureCount"`
}

// WebhookListResponse represents a list of webhooks.
type WebhookListResponse struct {
	Webhooks []WebhookResponse `json:"webhooks"`
	Total    int               `json:"total"`
}

// WebhookTestResponse reports a test-fire outcome.
type WebhookTestResponse struct {
	Success bool   `json:"success"`
	Status  int    `json:"status,omitempty"`
	Error   string `json:"error,omitempty"`
}

// MachineRequest represents a machine registration request.
type MachineRequest struct {
	Name     string `json:"name"`
	Hostname string `json:"hostname,omitempty"`
	Enabled  *bool  `json:"enabled,omitempty"` // defaults to true
}

// MachineResponse represents a machine in API responses.
type MachineResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname,omitempty"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"createdAt"`
}

// MachineListResponse represents a list of machines.
type MachineListResponse struct {
	Machines []MachineResponse `json:"machines"`
	Total    int               `json:"total"`
}

// StatusResponse represents scheduler health and aggregate counts.
type StatusResponse struct {
	Status          string    `json:"status"`
	Version         string    `json:"version"`
	SchedulerUptime string    `json:"schedulerUptime"`
	PollInterval    string    `json:"pollInterval"`
	StartedAt       time.Time `json:"startedAt"`
	Tasks           struct {
		Total    int `json:"total"`
		Enabled  int `json:"enabled"`
		Disabled int `json:"disabled"`
	} `json:"tasks"`
	ExecutionsToday int `json:"executionsToday"`
}

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse represents a generic success response.
type SuccessResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}
