package api

import (
	"net/http"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// handleGetTaskStatuses lists a Workflow's Tasks, optionally filtered to
// those whose status_date has changed since a watermark, the polling
// primitive the CLI's "workflow status" and "task status" views use
// (spec.md §4.2 "get_task_statuses").
func (s *Server) handleGetTaskStatuses(w http.ResponseWriter, r *http.Request) {
	workflowID, err := idParam(r, "workflowID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var since *time.Time
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, r, jobmonerrors.InvalidUsage("invalid since: "+raw))
			return
		}
		since = &t
	}
	tasks, err := s.store.GetTaskStatuses(r.Context(), workflowID, since)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type taskUpdateStatusesRequest struct {
	TaskIDs  []int64 `json:"task_ids" validate:"required,min=1"`
	ToStatus string  `json:"to_status" validate:"required"`
	Username string  `json:"username"`
}

// handleTaskUpdateStatuses performs the user-initiated bulk transitions of
// spec.md §4.2 ("task update_statuses ... reset/resume a subset of tasks"),
// classifying every id into the same transitioned/invalid/locked/not_found
// buckets queue_task_batch uses.
func (s *Server) handleTaskUpdateStatuses(w http.ResponseWriter, r *http.Request) {
	var req taskUpdateStatusesRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.store.TaskUpdateStatuses(r.Context(), req.TaskIDs, model.TaskStatus(req.ToStatus), req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, transitionResultResponse{
		Transitioned:       result.Transitioned,
		InvalidSourceState: result.InvalidSourceState,
		Locked:             result.Locked,
		NotFound:           result.NotFound,
	})
}

type taskIDsRequest struct {
	TaskIDs []int64 `json:"task_ids" validate:"required,min=1"`
}

// handleTasksRecursiveUp walks upstream from the given tasks along DAG
// edges, the dependency-closure query the CLI's "task dependencies" command
// and the user-facing subset-rerun workflow both rely on (spec.md §4.2
// "recursive_up/down").
func (s *Server) handleTasksRecursiveUp(w http.ResponseWriter, r *http.Request) {
	var req taskIDsRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := s.store.TasksRecursiveUp(r.Context(), req.TaskIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_ids": ids})
}

func (s *Server) handleTasksRecursiveDown(w http.ResponseWriter, r *http.Request) {
	var req taskIDsRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	ids, err := s.store.TasksRecursiveDown(r.Context(), req.TaskIDs)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"task_ids": ids})
}
