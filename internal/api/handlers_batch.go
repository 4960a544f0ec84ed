package api

import (
	"net/http"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
)

type queueTaskBatchRequest struct {
	TaskIDs               []int64 `json:"task_ids" validate:"required,min=1"`
	DistributorInstanceID int64   `json:"distributor_instance_id"`
}

type transitionResultResponse struct {
	Transitioned       []int64 `json:"transitioned"`
	InvalidSourceState []int64 `json:"invalid_source_state"`
	Locked             []int64 `json:"locked"`
	NotFound           []int64 `json:"not_found"`
}

type queueTaskBatchResponse struct {
	BatchID int64                    `json:"batch_id"`
	ArrayID int64                    `json:"array_id"`
	Result  transitionResultResponse `json:"result"`
}

// handleQueueTaskBatch atomically transitions REGISTERING/
// ADJUSTING_RESOURCES tasks to QUEUED, creates a Batch, and inserts one
// TaskInstance per task with a dense array_step_id (spec.md §4.2
// "queue_task_batch"). Callers (the Swarm's Scheduler) are expected to
// have already grouped taskIDs by (array_id, task_resources_id).
func (s *Server) handleQueueTaskBatch(w http.ResponseWriter, r *http.Request) {
	workflowRunID, err := idParam(r, "workflowRunID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req queueTaskBatchRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	batch, _, result, err := s.store.QueueTaskBatch(r.Context(), workflowRunID, req.TaskIDs, req.DistributorInstanceID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, queueTaskBatchResponse{
		BatchID: batch.ID,
		ArrayID: batch.ArrayID,
		Result: transitionResultResponse{
			Transitioned:       result.Transitioned,
			InvalidSourceState: result.InvalidSourceState,
			Locked:             result.Locked,
			NotFound:           result.NotFound,
		},
	})
}

type transitionBatchToLaunchedRequest struct {
	NextReportIncrementSeconds float64 `json:"next_report_increment_seconds" validate:"required,gt=0"`
}

func (s *Server) handleTransitionBatchToLaunched(w http.ResponseWriter, r *http.Request) {
	batchID, err := idParam(r, "batchID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req transitionBatchToLaunchedRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	increment := time.Duration(req.NextReportIncrementSeconds * float64(time.Second))
	if err := s.store.TransitionBatchToLaunched(r.Context(), batchID, increment); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type logDistributorIDsRequest struct {
	StepToDistributorID map[int]string `json:"step_to_distributor_id" validate:"required"`
}

// handleLogDistributorIDs records backend opaque ids for each TaskInstance
// in a batch; the Distributor chunks its own calls to bound lock-hold time
// (spec.md §4.2 "log_distributor_ids (chunked)").
func (s *Server) handleLogDistributorIDs(w http.ResponseWriter, r *http.Request) {
	batchID, err := idParam(r, "batchID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req logDistributorIDsRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if len(req.StepToDistributorID) == 0 {
		writeError(w, r, jobmonerrors.InvalidUsage("step_to_distributor_id must not be empty"))
		return
	}
	if err := s.store.LogDistributorIDs(r.Context(), batchID, req.StepToDistributorID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}
