package api

import "github.com/prometheus/client_golang/prometheus"

// Metric definitions follow cuemby-warren's pkg/metrics.go naming
// convention (a *Total counter/gauge per resource class, a *Duration
// histogram per request path) generalized from Warren's node/service/task
// vocabulary to the Server API's own request and entity vocabulary.
var (
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmon_api_requests_total",
			Help: "Total Server API requests by method, route, and status class.",
		},
		[]string{"method", "route", "status_class"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "jobmon_api_request_duration_seconds",
			Help:    "Server API request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	workflowRunsLostTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "jobmon_reaper_workflow_runs_lost_total",
			Help: "WorkflowRuns reaped for missing a heartbeat deadline.",
		},
	)

	triageTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobmon_triage_transitions_total",
			Help: "TaskInstances moved into TRIAGING or NO_HEARTBEAT by request_triage.",
		},
		[]string{"to_status"},
	)
)

func init() {
	prometheus.MustRegister(apiRequestsTotal, apiRequestDuration, workflowRunsLostTotal, triageTransitionsTotal)
}
