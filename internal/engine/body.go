package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fleetops/fleet-tasks/internal/db"
	"github.com/fleetops/fleet-tasks/internal/metrics"
)

// BodyRequest carries everything a task body gets to see: the task config and
// its machine scope. The engine is otherwise opaque to what the body does.
type BodyRequest struct {
	Task    *db.Task
	Machine *db.Machine // nil for globally scoped tasks
	Config  json.RawMessage
}

// BodyResult is what a task body reports back on success.
type BodyResult struct {
	Summary           string         `json:"summary,omitempty"`
	ProjectsProcessed int            `json:"projects_processed,omitempty"`
	IssuesFound       int            `json:"issues_found,omitempty"`
	TokensSaved       int            `json:"tokens_saved,omitempty"`
	Details           map[string]any `json:"details,omitempty"`

	// Events the body wants raised beyond the standard lifecycle pair,
	// e.g. health_alert from a health check.
	Events []db.EventType `json:"-"`
}

// Body is an opaque unit of work invoked by the engine. Bodies must respect
// ctx cancellation but the engine does not rely on it: a non-cooperative body
// is abandoned, not interrupted.
type Body func(ctx context.Context, req BodyRequest) (*BodyResult, error)

// Registry maps task types to bodies. Custom bodies are registered by name
// and selected via the task config's "body" field.
type Registry struct {
	builtin map[db.TaskType]Body
	custom  map[string]Body
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		builtin: make(map[db.TaskType]Body),
		custom:  make(map[string]Body),
	}
}

// Register binds a body to a task type.
func (r *Registry) Register(t db.TaskType, body Body) {
	r.builtin[t] = body
}

// RegisterCustom binds a named body selectable by custom tasks.
func (r *Registry) RegisterCustom(name string, body Body) {
	r.custom[name] = body
}

// Resolve returns the body for a task. For custom tasks the body name comes
// from the task config; an unknown name is an execution failure, not a claim
// failure.
func (r *Registry) Resolve(task *db.Task) (Body, error) {
	if task.TaskType == db.TaskTypeCustom {
		var cfg struct {
			Body string `json:"body"`
		}
		if task.Config != "" {
			if err := json.Unmarshal([]byte(task.Config), &cfg); err != nil {
				return nil, fmt.Errorf("parsing custom task config: %w", err)
			}
		}
		if cfg.Body == "" {
			return nil, fmt.Errorf("custom task %q has no body configured", task.Name)
		}
		body, ok := r.custom[cfg.Body]
		if !ok {
			return nil, fmt.Errorf("unknown custom body %q", cfg.Body)
		}
		return body, nil
	}

	body, ok := r.builtin[task.TaskType]
	if !ok {
		return nil, fmt.Errorf("no body registered for task type %q", task.TaskType)
	}
	return body, nil
}

// DefaultRegistry wires up the built-in task bodies.
func DefaultRegistry(store *db.DB, provider metrics.Provider) *Registry {
	r := NewRegistry()
	r.Register(db.TaskTypeAnalyzeContext, analyzeContextBody(store))
	r.Register(db.TaskTypeHealthCheck, healthCheckBody(provider))
	r.Register(db.TaskTypeGenerateRecommendations, generateRecommendationsBody(store))
	return r
}
