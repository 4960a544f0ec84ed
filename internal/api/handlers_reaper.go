package api

import (
	"net/http"
)

// handleLostWorkflowRuns lists WorkflowRuns whose heartbeat has lapsed
// while still claiming an active status, the Reaper's sweep target
// (spec.md §4.6 "lost_workflow_runs").
func (s *Server) handleLostWorkflowRuns(w http.ResponseWriter, r *http.Request) {
	lost, err := s.store.LostWorkflowRuns(r.Context(), s.cfg.ServerVersion)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"workflow_runs": lost})
}

// handleReapWorkflowRun moves a lost WorkflowRun to the status fsm.Reap
// picks for it (ABORTED, TERMINATED or ERROR) and updates its Workflow's
// status to match; its TaskInstances and Tasks are left as they are
// (spec.md §4.6).
func (s *Server) handleReapWorkflowRun(w http.ResponseWriter, r *http.Request) {
	workflowRunID, err := idParam(r, "workflowRunID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.ReapWorkflowRun(r.Context(), workflowRunID); err != nil {
		writeError(w, r, err)
		return
	}
	workflowRunsLostTotal.Inc()
	writeJSON(w, http.StatusOK, nil)
}

type fixStatusInconsistencyRequest struct {
	StartID int64 `json:"start_id"`
	Step    int   `json:"step" validate:"required,min=1"`
}

type fixStatusInconsistencyResponse struct {
	Fixed int `json:"fixed"`
}

// handleFixStatusInconsistency scans one page (starting at StartID, Step
// rows wide) of Task/TaskInstance pairs for status drift the FSM would
// never produce on its own — e.g. a Task left RUNNING whose only
// TaskInstance already finished — and corrects it (spec.md §4.6 "periodic
// consistency sweep").
func (s *Server) handleFixStatusInconsistency(w http.ResponseWriter, r *http.Request) {
	var req fixStatusInconsistencyRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	fixed, err := s.store.FixStatusInconsistency(r.Context(), req.StartID, req.Step)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, fixStatusInconsistencyResponse{Fixed: fixed})
}
