package api

import (
	"net/http"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

type heartbeatRequest struct {
	NextReportIncrement float64 `json:"next_report_increment" validate:"required,gt=0"`
}

type heartbeatResponse struct {
	Status string `json:"status"`
}

// handleWorkflowRunHeartbeat updates report_by_date and echoes the current
// status so the caller (the Swarm) can notice a server-initiated change,
// e.g. a user-requested pause (spec.md §4.2 "log_heartbeat").
func (s *Server) handleWorkflowRunHeartbeat(w http.ResponseWriter, r *http.Request) {
	workflowRunID, err := idParam(r, "workflowRunID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req heartbeatRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := s.store.LogWorkflowRunHeartbeat(r.Context(), workflowRunID, toDuration(req.NextReportIncrement))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, heartbeatResponse{Status: string(status)})
}

func (s *Server) handleTaskInstanceHeartbeat(w http.ResponseWriter, r *http.Request) {
	taskInstanceID, err := idParam(r, "taskInstanceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req heartbeatRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := s.store.LogTaskInstanceHeartbeat(r.Context(), taskInstanceID, toDuration(req.NextReportIncrement))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, heartbeatResponse{Status: string(status)})
}

// handleLogRunning transitions a TaskInstance to RUNNING, which drives its
// owning Task to TaskRunning (spec.md §4.1 Task FSM), then seeds its first
// heartbeat deadline.
func (s *Server) handleLogRunning(w http.ResponseWriter, r *http.Request) {
	taskInstanceID, err := idParam(r, "taskInstanceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.LogKnownError(r.Context(), taskInstanceID, model.TIRunning, ""); err != nil {
		writeError(w, r, err)
		return
	}
	if _, err := s.store.LogTaskInstanceHeartbeat(r.Context(), taskInstanceID, 30*time.Second); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type logDoneRequest struct {
	WallclockSeconds float64 `json:"wallclock_seconds"`
	MaxRSSBytes      int64   `json:"max_rss_bytes"`
}

// handleLogDone marks a TaskInstance DONE, which drives its Task to DONE
// and unblocks downstream tasks (spec.md §4.1 Task FSM).
func (s *Server) handleLogDone(w http.ResponseWriter, r *http.Request) {
	taskInstanceID, err := idParam(r, "taskInstanceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req logDoneRequest
	_ = decodeJSON(r, &req)

	if err := s.store.LogKnownError(r.Context(), taskInstanceID, model.TIDone, ""); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type logKnownErrorRequest struct {
	Status      string `json:"status" validate:"required"`
	Description string `json:"description"`
}

// handleLogKnownError reports a failure the worker itself classified
// (e.g. KILL_SELF). The server still decides the owning Task's retry
// transition (spec.md §7).
func (s *Server) handleLogKnownError(w http.ResponseWriter, r *http.Request) {
	taskInstanceID, err := idParam(r, "taskInstanceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req logKnownErrorRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	status := model.TaskInstanceStatus(req.Status)
	if err := s.store.LogKnownError(r.Context(), taskInstanceID, status, req.Description); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type logUnknownErrorRequest struct {
	Description string `json:"description"`
}

func (s *Server) handleLogUnknownError(w http.ResponseWriter, r *http.Request) {
	taskInstanceID, err := idParam(r, "taskInstanceID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req logUnknownErrorRequest
	_ = decodeJSON(r, &req)
	if err := s.store.LogUnknownError(r.Context(), taskInstanceID, req.Description); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// handleRequestTriage scans report_by_date-overdue TaskInstances in
// LAUNCHED/RUNNING and transitions them to NO_HEARTBEAT/TRIAGING
// (spec.md §4.2 "request_triage"). It is polled by whichever Distributor
// owns TRIAGING work, not by the worker nodes themselves.
func (s *Server) handleRequestTriage(w http.ResponseWriter, r *http.Request) {
	triaged, err := s.store.RequestTriage(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	for _, ti := range triaged {
		triageTransitionsTotal.WithLabelValues(string(ti.Status)).Inc()
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_instances": triaged})
}

func toDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
