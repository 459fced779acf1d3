package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fleetops/fleet-tasks/internal/db"
	"github.com/fleetops/fleet-tasks/internal/trigger"
	"github.com/fleetops/fleet-tasks/internal/version"
	"github.com/fleetops/fleet-tasks/internal/webhook"
)

// HealthCheck handles GET /api/v1/health
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, HealthResponse{
		Status:  "ok",
		Version: version.Version,
	})
}

// Status handles GET /api/v1/status
func (s *Server) Status(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:  "ok",
		Version: version.Version,
	}

	if s.scheduler != nil {
		resp.StartedAt = s.scheduler.StartedAt()
		resp.PollInterval = s.scheduler.Interval().String()
		if !resp.StartedAt.IsZero() {
			resp.SchedulerUptime = time.Since(resp.StartedAt).Round(time.Second).String()
		}
	}

	counts, err := s.store.CountTasks()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to count tasks", err)
		return
	}
	resp.Tasks.Total = counts.Total
	resp.Tasks.Enabled = counts.Enabled
	resp.Tasks.Disabled = counts.Disabled

	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	today, err := s.store.CountExecutionsSince(midnight)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to count executions", err)
		return
	}
	resp.ExecutionsToday = today

	s.jsonResponse(w, http.StatusOK, resp)
}

// ListTasks handles GET /api/v1/tasks
func (s *Server) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.TaskFilter{
		MachineID: q.Get("machineId"),
		TaskType:  db.TaskType(q.Get("taskType")),
	}
	if v := q.Get("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid enabled filter", err)
			return
		}
		filter.Enabled = &enabled
	}

	tasks, err := s.store.ListTasks(filter)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to fetch tasks", err)
		return
	}

	resp := TaskListResponse{
		Tasks: make([]TaskResponse, len(tasks)),
		Total: len(tasks),
	}
	for i, task := range tasks {
		resp.Tasks[i] = taskToResponse(task)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// CreateTask handles POST /api/v1/tasks
func (s *Server) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req TaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	task, err := taskFromRequest(&req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if task.MachineID != "" {
		if _, err := s.store.GetMachine(task.MachineID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				s.errorResponse(w, http.StatusNotFound, "machine not found", nil)
				return
			}
			s.errorResponse(w, http.StatusInternalServerError, "failed to resolve machine", err)
			return
		}
	}

	if err := s.store.CreateTask(task); err != nil {
		s.storeError(w, err, "task")
		return
	}

	s.jsonResponse(w, http.StatusCreated, taskToResponse(task))
}

// GetTask handles GET /api/v1/tasks/{id}
func (s *Server) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "task")
		return
	}

	recent, err := s.store.ListExecutions(db.ExecutionFilter{TaskID: task.ID, Limit: 10})
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to fetch executions", err)
		return
	}
	stats, err := s.store.GetExecutionStats(task.ID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to fetch stats", err)
		return
	}

	resp := TaskDetailResponse{
		Task:             taskToResponse(task),
		RecentExecutions: make([]ExecutionResponse, len(recent)),
		Stats:            statsToResponse(stats),
	}
	for i, exec := range recent {
		resp.RecentExecutions[i] = executionToResponse(exec)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// PatchTask handles PATCH /api/v1/tasks/{id}
func (s *Server) PatchTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.store.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "task")
		return
	}

	var patch TaskPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	applyTaskPatch(task, &patch)
	if err := validateTaskSchedule(task); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	normalizeScheduleFields(task)

	if patch.MachineID != nil && task.MachineID != "" {
		if _, err := s.store.GetMachine(task.MachineID); err != nil {
			if errors.Is(err, db.ErrNotFound) {
				s.errorResponse(w, http.StatusNotFound, "machine not found", nil)
				return
			}
			s.errorResponse(w, http.StatusInternalServerError, "failed to resolve machine", err)
			return
		}
	}

	if err := s.store.UpdateTask(task); err != nil {
		s.storeError(w, err, "task")
		return
	}
	s.jsonResponse(w, http.StatusOK, taskToResponse(task))
}

// DeleteTask handles DELETE /api/v1/tasks/{id}. Execution history is retained;
// in-flight executions are unaffected.
func (s *Server) DeleteTask(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteTask(chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err, "task")
		return
	}
	s.jsonResponse(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "task deleted",
	})
}

// RunTask handles POST /api/v1/tasks/{id}/run
func (s *Server) RunTask(w http.ResponseWriter, r *http.Request) {
	trig := db.TriggerManual
	if r.Body != nil && r.ContentLength != 0 {
		var req struct {
			TriggerType string `json:"triggerType"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid request body", err)
			return
		}
		if req.TriggerType != "" {
			trig = db.TriggerType(req.TriggerType)
		}
	}
	// Scheduled and threshold triggers are reserved for the poll loop.
	if trig != db.TriggerManual && trig != db.TriggerWebhook {
		s.errorResponse(w, http.StatusBadRequest, "invalid triggerType", nil)
		return
	}

	exec, err := s.engine.Trigger(chi.URLParam(r, "id"), trig)
	if err != nil {
		s.storeError(w, err, "task")
		return
	}

	s.jsonResponse(w, http.StatusAccepted, RunResponse{
		TaskID:      exec.TaskID,
		ExecutionID: exec.ID,
		Status:      "running",
		TriggerType: string(exec.TriggerType),
	})
}

// ListExecutions handles GET /api/v1/executions
func (s *Server) ListExecutions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := db.ExecutionFilter{
		TaskID: q.Get("taskId"),
		Limit:  50,
	}
	if v := q.Get("status"); v != "" {
		status := db.ExecStatus(v)
		if !db.ValidExecStatus(status) {
			s.errorResponse(w, http.StatusBadRequest, "invalid status filter", nil)
			return
		}
		filter.Status = status
	}
	if v := q.Get("triggerType"); v != "" {
		trig := db.TriggerType(v)
		if !db.ValidTriggerType(trig) {
			s.errorResponse(w, http.StatusBadRequest, "invalid triggerType filter", nil)
			return
		}
		filter.TriggerType = trig
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	execs, err := s.store.ListExecutions(filter)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to fetch executions", err)
		return
	}
	total, err := s.store.CountExecutions(filter)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to count executions", err)
		return
	}
	stats, err := s.store.GetExecutionStats(filter.TaskID)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to fetch stats", err)
		return
	}

	resp := ExecutionListResponse{
		Executions: make([]ExecutionResponse, len(execs)),
		Pagination: PaginationResponse{
			Total:  total,
			Limit:  filter.Limit,
			Offset: filter.Offset,
		},
		Stats: statsToResponse(stats),
	}
	for i, exec := range execs {
		resp.Executions[i] = executionToResponse(exec)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// GetExecution handles GET /api/v1/executions/{id}
func (s *Server) GetExecution(w http.ResponseWriter, r *http.Request) {
	exec, err := s.store.GetExecution(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "execution")
		return
	}
	s.jsonResponse(w, http.StatusOK, executionToResponse(exec))
}

// CancelExecution handles POST /api/v1/executions/{id}/cancel
func (s *Server) CancelExecution(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Cancel(chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err, "execution")
		return
	}
	s.jsonResponse(w, http.StatusAccepted, SuccessResponse{
		Success: true,
		Message: "cancellation requested",
	})
}

// ListWebhooks handles GET /api/v1/webhooks
func (s *Server) ListWebhooks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.WebhookFilter{
		MachineID:   q.Get("machineId"),
		WebhookType: db.WebhookType(q.Get("webhookType")),
	}
	if v := q.Get("enabled"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			s.errorResponse(w, http.StatusBadRequest, "invalid enabled filter", err)
			return
		}
		filter.Enabled = &enabled
	}

	hooks, err := s.store.ListWebhooks(filter)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to fetch webhooks", err)
		return
	}

	resp := WebhookListResponse{
		Webhooks: make([]WebhookResponse, len(hooks)),
		Total:    len(hooks),
	}
	for i, hook := range hooks {
		resp.Webhooks[i] = webhookToResponse(hook)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// CreateWebhook handles POST /api/v1/webhooks
func (s *Server) CreateWebhook(w http.ResponseWriter, r *http.Request) {
	var req WebhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	hook, err := webhookFromRequest(&req)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.store.CreateWebhook(hook); err != nil {
		s.storeError(w, err, "webhook")
		return
	}
	s.jsonResponse(w, http.StatusCreated, webhookToResponse(hook))
}

// GetWebhook handles GET /api/v1/webhooks/{id}
func (s *Server) GetWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := s.store.GetWebhook(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "webhook")
		return
	}
	s.jsonResponse(w, http.StatusOK, webhookToResponse(hook))
}

// PatchWebhook handles PATCH /api/v1/webhooks/{id}
func (s *Server) PatchWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := s.store.GetWebhook(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "webhook")
		return
	}

	var patch WebhookPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	applyWebhookPatch(hook, &patch)
	if err := validateWebhook(hook); err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := s.store.UpdateWebhook(hook); err != nil {
		s.storeError(w, err, "webhook")
		return
	}
	s.jsonResponse(w, http.StatusOK, webhookToResponse(hook))
}

// DeleteWebhook handles DELETE /api/v1/webhooks/{id}
func (s *Server) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteWebhook(chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err, "webhook")
		return
	}
	s.jsonResponse(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "webhook deleted",
	})
}

// TestWebhook handles POST /api/v1/webhooks/{id}/test
func (s *Server) TestWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := s.store.GetWebhook(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "webhook")
		return
	}

	res := s.dispatcher.Test(hook)
	s.jsonResponse(w, http.StatusOK, WebhookTestResponse{
		Success: res.Success,
		Status:  res.StatusCode,
		Error:   res.Error,
	})
}

// ListMachines handles GET /api/v1/machines
func (s *Server) ListMachines(w http.ResponseWriter, r *http.Request) {
	machines, err := s.store.ListMachines()
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, "failed to fetch machines", err)
		return
	}

	resp := MachineListResponse{
		Machines: make([]MachineResponse, len(machines)),
		Total:    len(machines),
	}
	for i, m := range machines {
		resp.Machines[i] = machineToResponse(m)
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// CreateMachine handles POST /api/v1/machines
func (s *Server) CreateMachine(w http.ResponseWriter, r *http.Request) {
	var req MachineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		s.errorResponse(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	machine := &db.Machine{
		Name:     req.Name,
		Hostname: req.Hostname,
		Enabled:  true,
	}
	if req.Enabled != nil {
		machine.Enabled = *req.Enabled
	}

	if err := s.store.CreateMachine(machine); err != nil {
		s.storeError(w, err, "machine")
		return
	}
	s.jsonResponse(w, http.StatusCreated, machineToResponse(machine))
}

// GetMachine handles GET /api/v1/machines/{id}
func (s *Server) GetMachine(w http.ResponseWriter, r *http.Request) {
	machine, err := s.store.GetMachine(chi.URLParam(r, "id"))
	if err != nil {
		s.storeError(w, err, "machine")
		return
	}
	s.jsonResponse(w, http.StatusOK, machineToResponse(machine))
}

// DeleteMachine handles DELETE /api/v1/machines/{id}
func (s *Server) DeleteMachine(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteMachine(chi.URLParam(r, "id")); err != nil {
		s.storeError(w, err, "machine")
		return
	}
	s.jsonResponse(w, http.StatusOK, SuccessResponse{
		Success: true,
		Message: "machine deleted",
	})
}

// Request assembly and validation

func taskFromRequest(req *TaskRequest) (*db.Task, error) {
	task := &db.Task{
		Name:            req.Name,
		Description:     req.Description,
		TaskType:        db.TaskType(req.TaskType),
		ScheduleType:    db.ScheduleType(req.ScheduleType),
		CronExpression:  req.CronExpression,
		IntervalHours:   req.IntervalHours,
		ThresholdMetric: db.ThresholdMetric(req.ThresholdMetric),
		ThresholdOp:     db.ThresholdOp(req.ThresholdOp),
		MachineID:       req.MachineID,
		Config:          string(req.Config),
		Enabled:         true,
	}
	if req.ThresholdValue != nil {
		task.ThresholdValue = *req.ThresholdValue
	}
	if req.Enabled != nil {
		task.Enabled = *req.Enabled
	}

	if task.Name == "" {
		return nil, validationError("name is required")
	}
	if task.TaskType == "" {
		return nil, validationError("taskType is required")
	}
	if !db.ValidTaskType(task.TaskType) {
		return nil, validationError("invalid taskType")
	}
	if task.ScheduleType == db.ScheduleThreshold && req.ThresholdValue == nil {
		return nil, validationError("thresholdValue is required")
	}
	if err := validateTaskSchedule(task); err != nil {
		return nil, err
	}
	normalizeScheduleFields(task)
	return task, nil
}

func validateTaskSchedule(task *db.Task) error {
	if !db.ValidScheduleType(task.ScheduleType) {
		if task.ScheduleType == "" {
			return validationError("scheduleType is required")
		}
		return validationError("invalid scheduleType")
	}

	switch task.ScheduleType {
	case db.ScheduleCron:
		if task.CronExpression == "" {
			return validationError("cronExpression is required")
		}
		if err := trigger.ValidateCron(task.CronExpression); err != nil {
			return validationError("invalid cronExpression")
		}
	case db.ScheduleInterval:
		if task.IntervalHours <= 0 {
			return validationError("intervalHours must be a positive integer")
		}
	case db.ScheduleThreshold:
		if task.ThresholdMetric == "" {
			return validationError("thresholdMetric is required")
		}
		if !db.ValidThresholdMetric(task.ThresholdMetric) {
			return validationError("invalid thresholdMetric")
		}
		if task.ThresholdOp == "" {
			return validationError("thresholdOp is required")
		}
		if !db.ValidThresholdOp(task.ThresholdOp) {
			return validationError("invalid thresholdOp")
		}
	}
	return nil
}

// normalizeScheduleFields clears schedule parameters that don't belong to the
// task's schedule type, so stray input fields are ignored rather than stored.
func normalizeScheduleFields(task *db.Task) {
	if task.ScheduleType != db.ScheduleCron {
		task.CronExpression = ""
	}
	if task.ScheduleType != db.ScheduleInterval {
		task.IntervalHours = 0
	}
	if task.ScheduleType != db.ScheduleThreshold {
		task.ThresholdMetric = ""
		task.ThresholdValue = 0
		task.ThresholdOp = ""
	}
}

func applyTaskPatch(task *db.Task, patch *TaskPatch) {
	if patch.Name != nil {
		task.Name = *patch.Name
	}
	if patch.Description != nil {
		task.Description = *patch.Description
	}
	if patch.ScheduleType != nil {
		task.ScheduleType = db.ScheduleType(*patch.ScheduleType)
	}
	if patch.CronExpression != nil {
		task.CronExpression = *patch.CronExpression
	}
	if patch.IntervalHours != nil {
		task.IntervalHours = *patch.IntervalHours
	}
	if patch.ThresholdMetric != nil {
		task.ThresholdMetric = db.ThresholdMetric(*patch.ThresholdMetric)
	}
	if patch.ThresholdValue != nil {
		task.ThresholdValue = *patch.ThresholdValue
	}
	if patch.ThresholdOp != nil {
		task.ThresholdOp = db.ThresholdOp(*patch.ThresholdOp)
	}
	if patch.MachineID != nil {
		task.MachineID = *patch.MachineID
	}
	if patch.Config != nil {
		task.Config = string(*patch.Config)
	}
	if patch.Enabled != nil {
		task.Enabled = *patch.Enabled
	}
}

func webhookFromRequest(req *WebhookRequest) (*db.Webhook, error) {
	hook := &db.Webhook{
		Name:        req.Name,
		Description: req.Description,
		WebhookType: db.WebhookType(req.WebhookType),
		WebhookURL:  req.WebhookURL,
		Config:      string(req.Config),
		MachineID:   req.MachineID,
		Enabled:     true,
	}
	for _, e := range req.EventTypes {
		hook.EventTypes = append(hook.EventTypes, db.EventType(e))
	}
	if req.Enabled != nil {
		hook.Enabled = *req.Enabled
	}
	if err := validateWebhook(hook); err != nil {
		return nil, err
	}
	return hook, nil
}

func validateWebhook(hook *db.Webhook) error {
	if hook.Name == "" {
		return validationError("name is required")
	}
	if hook.WebhookType == "" {
		return validationError("webhookType is required")
	}
	if !db.ValidWebhookType(hook.WebhookType) {
		return validationError("invalid webhookType")
	}
	u, err := url.Parse(hook.WebhookURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return validationError("invalid webhookUrl")
	}
	if len(hook.EventTypes) == 0 {
		return validationError("eventTypes is required")
	}
	for _, e := range hook.EventTypes {
		if !db.ValidEventType(e) {
			return validationError("invalid eventTypes")
		}
	}
	return nil
}

func applyWebhookPatch(hook *db.Webhook, patch *WebhookPatch) {
	if patch.Name != nil {
		hook.Name = *patch.Name
	}
	if patch.Description != nil {
		hook.Description = *patch.Description
	}
	if patch.WebhookType != nil {
		hook.WebhookType = db.WebhookType(*patch.WebhookType)
	}
	if patch.WebhookURL != nil {
		hook.WebhookURL = *patch.WebhookURL
	}
	if patch.Config != nil {
		hook.Config = string(*patch.Config)
	}
	if patch.EventTypes != nil {
		hook.EventTypes = nil
		for _, e := range *patch.EventTypes {
			hook.EventTypes = append(hook.EventTypes, db.EventType(e))
		}
	}
	if patch.MachineID != nil {
		hook.MachineID = *patch.MachineID
	}
	if patch.Enabled != nil {
		hook.Enabled = *patch.Enabled
	}
}

// Response mapping

func taskToResponse(task *db.Task) TaskResponse {
	resp := TaskResponse{
		ID:              task.ID,
		Name:            task.Name,
		Description:     task.Description,
		TaskType:        string(task.TaskType),
		ScheduleType:    string(task.ScheduleType),
		CronExpression:  task.CronExpression,
		IntervalHours:   task.IntervalHours,
		ThresholdMetric: string(task.ThresholdMetric),
		ThresholdValue:  task.ThresholdValue,
		ThresholdOp:     string(task.ThresholdOp),
		MachineID:       task.MachineID,
		Enabled:         task.Enabled,
		CreatedAt:       task.CreatedAt,
		UpdatedAt:       task.UpdatedAt,
		LastRunAt:       task.LastRunAt,
		NextRunAt:       task.NextRunAt,
	}
	if task.Config != "" {
		resp.Config = json.RawMessage(task.Config)
	}
	return resp
}

func executionToResponse(exec *db.Execution) ExecutionResponse {
	resp := ExecutionResponse{
		ID:                exec.ID,
		TaskID:            exec.TaskID,
		Status:            string(exec.Status),
		TriggerType:       string(exec.TriggerType),
		StartedAt:         exec.StartedAt,
		CompletedAt:       exec.CompletedAt,
		DurationMs:        exec.DurationMs,
		Error:             exec.Error,
		ProjectsProcessed: exec.ProjectsProcessed,
		IssuesFound:       exec.IssuesFound,
		TokensSaved:       exec.TokensSaved,
		NotificationsSent: exec.NotificationsSent,
	}
	if exec.Result != "" {
		resp.Result = json.RawMessage(exec.Result)
	}
	return resp
}

func webhookToResponse(hook *db.Webhook) WebhookResponse {
	resp := WebhookResponse{
		ID:           hook.ID,
		Name:         hook.Name,
		Description:  hook.Description,
		WebhookType:  string(hook.WebhookType),
		WebhookURL:   webhook.MaskURL(hook.WebhookURL),
		EventTypes:   make([]string, len(hook.EventTypes)),
		MachineID:    hook.MachineID,
		Enabled:      hook.Enabled,
		CreatedAt:    hook.CreatedAt,
		UpdatedAt:    hook.UpdatedAt,
		LastUsedAt:   hook.LastUsedAt,
		FailureCount: hook.FailureCount,
	}
	for i, e := range hook.EventTypes {
		resp.EventTypes[i] = string(e)
	}
	if hook.Config != "" {
		resp.Config = json.RawMessage(hook.Config)
	}
	return resp
}

func machineToResponse(m *db.Machine) MachineResponse {
	return MachineResponse{
		ID:        m.ID,
		Name:      m.Name,
		Hostname:  m.Hostname,
		Enabled:   m.Enabled,
		CreatedAt: m.CreatedAt,
	}
}

// Helpers

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	s.jsonResponse(w, status, resp)
}

// storeError maps repository errors onto the HTTP taxonomy: missing rows are
// 404, single-flight and uniqueness violations are 409, anything else is 500.
func (s *Server) storeError(w http.ResponseWriter, err error, entity string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, entity+" not found", nil)
	case errors.Is(err, db.ErrConflict):
		s.errorResponse(w, http.StatusConflict, "conflict", err)
	default:
		s.errorResponse(w, http.StatusInternalServerError, "internal error", err)
	}
}

type validationError string

func (e validationError) Error() string { return string(e) }
