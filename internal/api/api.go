// Package api exposes the REST surface: task CRUD and manual triggering,
// execution history, webhook management, machine registry, and status.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/fleetops/fleet-tasks/internal/db"
	"github.com/fleetops/fleet-tasks/internal/engine"
	"github.com/fleetops/fleet-tasks/internal/scheduler"
	"github.com/fleetops/fleet-tasks/internal/webhook"
)

// Server wires the HTTP surface to the store, engine, and dispatcher.
type Server struct {
	store      *db.DB
	engine     *engine.Engine
	scheduler  *scheduler.Scheduler
	dispatcher *webhook.Dispatcher
	log        zerolog.Logger
	router     chi.Router
}

// NewServer creates the API server. scheduler may be nil when running in
// API-only mode; the status endpoint then omits loop health.
func NewServer(store *db.DB, eng *engine.Engine, sched *scheduler.Scheduler, dispatcher *webhook.Dispatcher, log zerolog.Logger) *Server {
	s := &Server{
		store:      store,
		engine:     eng,
		scheduler:  sched,
		dispatcher: dispatcher,
		log:        log.With().Str("component", "api").Logger(),
		router:     chi.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	r.Get("/api/v1/health", s.HealthCheck)
	r.Get("/api/v1/status", s.Status)

	r.Get("/api/v1/tasks", s.ListTasks)
	r.Post("/api/v1/tasks", s.CreateTask)
	r.Get("/api/v1/tasks/{id}", s.GetTask)
	r.Patch("/api/v1/tasks/{id}", s.PatchTask)
	r.Delete("/api/v1/tasks/{id}", s.DeleteTask)
	r.Post("/api/v1/tasks/{id}/run", s.RunTask)

	r.Get("/api/v1/executions", s.ListExecutions)
	r.Get("/api/v1/executions/{id}", s.GetExecution)
	r.Post("/api/v1/executions/{id}/cancel", s.CancelExecution)

	r.Get("/api/v1/webhooks", s.ListWebhooks)
	r.Post("/api/v1/webhooks", s.CreateWebhook)
	r.Get("/api/v1/webhooks/{id}", s.GetWebhook)
	r.Patch("/api/v1/webhooks/{id}", s.PatchWebhook)
	r.Delete("/api/v1/webhooks/{id}", s.DeleteWebhook)
	r.Post("/api/v1/webhooks/{id}/test", s.TestWebhook)

	r.Get("/api/v1/machines", s.ListMachines)
	r.Post("/api/v1/machines", s.CreateMachine)
	r.Get("/api/v1/machines/{id}", s.GetMachine)
	r.Delete("/api/v1/machines/{id}", s.DeleteMachine)
}

// Router returns the chi router for use with http.Server.
func (s *Server) Router() http.Handler {
	return s.router
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("request")
	})
}

// CORS allows browser dashboards on other origins to call the API.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
