// Package api is the Server API (C3, spec.md §4.2): a chi router mapping
// the FSM/CLI-query/Reaper endpoints onto one internal/store.Store. Every
// handler is one store call (or a short fixed sequence of them) plus JSON
// marshaling — the transactional boundary, row locking, and FSM validity
// checks all live in internal/store/postgres, matching spec.md §4.2's
// "the dependency get_db yields a session inside BEGIN...COMMIT/ROLLBACK;
// all route handlers are transactional by default" (here: one store call
// per handler is one driver-level transaction).
//
// Grounded on cuemby-warren's pkg/api (NewServer/Start/Stop shape, the
// health.go liveness/readiness handlers) generalized from Warren's gRPC+
// mTLS transport to the plain HTTP/JSON transport spec.md §6 specifies,
// and on go-chi/cors + go-chi/chi/v5's own middleware chain idiom for the
// "CORS, gzip, security headers" request pipeline (spec.md §4.2).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

// Config holds the Server API's own settings, distinct from any one
// store/transport driver's configuration.
type Config struct {
	ServerVersion        string
	AllowedOrigins       []string
	ReadHeaderTimeout    time.Duration
	DistributorExpungeBy time.Duration
}

// Server is the Server API: the store plus whatever ambient state the
// handlers need (validator instance, config).
type Server struct {
	store     store.Store
	cfg       Config
	validate  *validator.Validate
	startedAt time.Time
}

// New builds a Server over an already-constructed Store.
func New(st store.Store, cfg Config) *Server {
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 5 * time.Second
	}
	return &Server{
		store:     st,
		cfg:       cfg,
		validate:  validator.New(),
		startedAt: time.Now(),
	}
}

// Router assembles the full request pipeline and route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.allowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", jobmonlog.LogContextHeader, "X-Request-Id"},
		ExposedHeaders:   []string{"X-Request-Id"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(gzhttp.GzipHandler)
	r.Use(securityHeaders)
	r.Use(correlationID)
	r.Use(requestMetrics)

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/tool", func(r chi.Router) {
		r.Post("/bind", s.handleBindTool)
	})
	r.Route("/tool_version", func(r chi.Router) {
		r.Post("/bind", s.handleBindToolVersion)
	})
	r.Route("/node", func(r chi.Router) {
		r.Post("/add", s.handleAddNodes)
	})
	r.Route("/dag", func(r chi.Router) {
		r.Post("/", s.handleAddDag)
		r.Post("/{dagID}/edges", s.handleAddEdges)
		r.Post("/{dagID}/complete", s.handleMarkDagComplete)
	})

	r.Route("/workflow", func(r chi.Router) {
		r.Post("/bind", s.handleBindWorkflow)
		r.Get("/{workflowID}", s.handleGetWorkflow)
		r.Get("/{workflowID}/task_status", s.handleGetTaskStatuses)
		r.Post("/{workflowID}/bind_tasks", s.handleBindTasks)
		r.Post("/{workflowID}/link_workflow_run", s.handleLinkWorkflowRun)
		r.Post("/{workflowID}/set_resume", s.handleSetResume)
		r.Post("/{workflowID}/reset_task_statuses", s.handleResetTaskStatuses)
		r.Post("/{workflowID}/increase_resources", s.handleIncreaseResources)
	})

	r.Route("/workflow_run", func(r chi.Router) {
		r.Post("/{workflowRunID}/queue_task_batch", s.handleQueueTaskBatch)
		r.Post("/{workflowRunID}/log_heartbeat", s.handleWorkflowRunHeartbeat)
	})

	r.Route("/batch", func(r chi.Router) {
		r.Post("/{batchID}/transition_to_launched", s.handleTransitionBatchToLaunched)
		r.Post("/{batchID}/log_distributor_ids", s.handleLogDistributorIDs)
	})

	r.Route("/task_instance", func(r chi.Router) {
		r.Post("/{taskInstanceID}/log_running", s.handleLogRunning)
		r.Post("/{taskInstanceID}/log_done", s.handleLogDone)
		r.Post("/{taskInstanceID}/log_known_error", s.handleLogKnownError)
		r.Post("/{taskInstanceID}/log_unknown_error", s.handleLogUnknownError)
		r.Post("/{taskInstanceID}/log_heartbeat", s.handleTaskInstanceHeartbeat)
	})

	r.Route("/task", func(r chi.Router) {
		r.Post("/update_statuses", s.handleTaskUpdateStatuses)
		r.Post("/recursive_up", s.handleTasksRecursiveUp)
		r.Post("/recursive_down", s.handleTasksRecursiveDown)
	})

	r.Route("/distributor_instance", func(r chi.Router) {
		r.Post("/register", s.handleRegisterDistributorInstance)
		r.Post("/select", s.handleSelectDistributorInstance)
		r.Post("/{distributorInstanceID}/heartbeat", s.handleDistributorHeartbeat)
		r.Post("/expunge", s.handleExpungeDistributorInstances)
	})

	r.Route("/request_triage", func(r chi.Router) {
		r.Post("/", s.handleRequestTriage)
	})

	r.Route("/reaper", func(r chi.Router) {
		r.Get("/lost_workflow_runs", s.handleLostWorkflowRuns)
		r.Post("/workflow_run/{workflowRunID}/reap", s.handleReapWorkflowRun)
		r.Post("/fix_status_inconsistency", s.handleFixStatusInconsistency)
	})

	return r
}

func (s *Server) allowedOrigins() []string {
	if len(s.cfg.AllowedOrigins) == 0 {
		return []string{"*"}
	}
	return s.cfg.AllowedOrigins
}
