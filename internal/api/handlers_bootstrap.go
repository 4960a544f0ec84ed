package api

import (
	"net/http"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

type bindToolRequest struct {
	Name string `json:"name" validate:"required"`
}

// handleBindTool is an idempotent lookup/insert of a Tool by name
// (spec.md §4.2 "bind_tool ... race-safe under unique-key collision").
func (s *Server) handleBindTool(w http.ResponseWriter, r *http.Request) {
	var req bindToolRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tool, err := s.store.BindTool(r.Context(), req.Name)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tool)
}

type bindToolVersionRequest struct {
	ToolID int64 `json:"tool_id" validate:"required"`
}

func (s *Server) handleBindToolVersion(w http.ResponseWriter, r *http.Request) {
	var req bindToolVersionRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tv, err := s.store.BindToolVersion(r.Context(), req.ToolID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tv)
}

type addNodesRequest struct {
	Nodes []model.Node `json:"nodes" validate:"required,min=1,dive"`
}

// handleAddNodes bulk-inserts Nodes, deduplicated by (TemplateVersionID,
// NodeArgsHash) — the store does the "ignore duplicate, select back ids"
// two-step (spec.md §4.2 "add_nodes").
func (s *Server) handleAddNodes(w http.ResponseWriter, r *http.Request) {
	var req addNodesRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	nodes, err := s.store.AddNodes(r.Context(), req.Nodes)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"nodes": nodes})
}

type addDagRequest struct {
	DagHash string `json:"dag_hash" validate:"required"`
}

func (s *Server) handleAddDag(w http.ResponseWriter, r *http.Request) {
	var req addDagRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	dag, err := s.store.AddDag(r.Context(), req.DagHash)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dag)
}

type addEdgesRequest struct {
	Edges []model.Edge `json:"edges" validate:"required,min=1,dive"`
}

func (s *Server) handleAddEdges(w http.ResponseWriter, r *http.Request) {
	dagID, err := idParam(r, "dagID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req addEdgesRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.AddEdges(r.Context(), dagID, req.Edges); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// handleMarkDagComplete sets a Dag's created_date once the client signals
// it has finished appending edges (spec.md §4.2 "add_dag, add_edges ...
// mark created_date when the client signals dag complete").
func (s *Server) handleMarkDagComplete(w http.ResponseWriter, r *http.Request) {
	dagID, err := idParam(r, "dagID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.MarkDagComplete(r.Context(), dagID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type bindWorkflowRequest struct {
	ToolVersionID          int64  `json:"tool_version_id" validate:"required"`
	DagID                  int64  `json:"dag_id" validate:"required"`
	WorkflowArgsHash       string `json:"workflow_args_hash" validate:"required"`
	TaskHash               string `json:"task_hash" validate:"required"`
	MaxConcurrentlyRunning int    `json:"max_concurrently_running"`
}

type bindWorkflowResponse struct {
	WorkflowID int64  `json:"workflow_id"`
	Outcome    string `json:"outcome"`
}

// handleBindWorkflow finds-or-creates a Workflow and classifies the
// outcome for the caller: a freshly-created workflow, an existing one with
// no active run (resumable by proceeding straight to link_workflow_run),
// or an existing one with an active run the caller must resume through
// (spec.md §4.2 "bind_workflow ... enforce resume rules", §4.5).
func (s *Server) handleBindWorkflow(w http.ResponseWriter, r *http.Request) {
	var req bindWorkflowRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	wfID, created, err := s.store.BindWorkflow(r.Context(), model.Workflow{
		ToolVersionID:          req.ToolVersionID,
		DagID:                  req.DagID,
		WorkflowArgsHash:       req.WorkflowArgsHash,
		TaskHash:               req.TaskHash,
		MaxConcurrentlyRunning: req.MaxConcurrentlyRunning,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	outcome := "created"
	if !created {
		if _, active, err := s.store.GetActiveWorkflowRun(r.Context(), wfID); err != nil {
			writeError(w, r, err)
			return
		} else if active {
			outcome = "running"
		} else {
			outcome = "resumable"
		}
	}

	writeJSON(w, http.StatusOK, bindWorkflowResponse{WorkflowID: wfID, Outcome: outcome})
}

func (s *Server) handleGetWorkflow(w http.ResponseWriter, r *http.Request) {
	workflowID, err := idParam(r, "workflowID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	wf, err := s.store.GetWorkflow(r.Context(), workflowID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wf)
}

type bindTasksRequest struct {
	Tasks []model.Task `json:"tasks" validate:"required,min=1,dive"`
}

// handleBindTasks bulk-upserts a Workflow's Tasks; the store sets new tasks
// to REGISTERING and resets retry counters on tasks that survive a resume
// (spec.md §4.2 "bind_tasks").
func (s *Server) handleBindTasks(w http.ResponseWriter, r *http.Request) {
	workflowID, err := idParam(r, "workflowID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req bindTasksRequest
	if err := s.decodeAndValidate(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	tasks, err := s.store.BindTasks(r.Context(), workflowID, req.Tasks)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

type linkWorkflowRunRequest struct {
	JobmonServerVersion string `json:"jobmon_server_version"`
}

// handleLinkWorkflowRun creates the new active WorkflowRun under the
// single-writer LINKING guard (spec.md §4.5 "Race prevention").
func (s *Server) handleLinkWorkflowRun(w http.ResponseWriter, r *http.Request) {
	workflowID, err := idParam(r, "workflowID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req linkWorkflowRunRequest
	_ = decodeJSON(r, &req) // optional body

	wfr, err := s.store.LinkWorkflowRun(r.Context(), workflowID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if req.JobmonServerVersion != "" {
		wfr.JobmonServerVersion = req.JobmonServerVersion
	}
	writeJSON(w, http.StatusOK, wfr)
}

type setResumeRequest struct {
	ResetIfRunning    bool `json:"reset_if_running"`
	IncreaseResources bool `json:"increase_resources"`
}

// handleSetResume signals the workflow into COLD_RESUME or HOT_RESUME,
// step 1 of the five-step resume protocol (spec.md §4.5).
func (s *Server) handleSetResume(w http.ResponseWriter, r *http.Request) {
	workflowID, err := idParam(r, "workflowID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req setResumeRequest
	_ = decodeJSON(r, &req)

	wfr, active, err := s.store.GetActiveWorkflowRun(r.Context(), workflowID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !active {
		writeError(w, r, jobmonerrors.WorkflowNotResumable("workflow has no active run to resume"))
		return
	}

	to := model.WFRHotResume
	if req.ResetIfRunning {
		to = model.WFRColdResume
	}
	if err := s.store.SetWorkflowRunStatus(r.Context(), wfr.ID, wfr.Status, to); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

type resetTaskStatusesRequest struct {
	HotResume bool `json:"hot_resume"`
}

// handleResetTaskStatuses is step 3 of resume: tasks tied to the prior run
// reset to REGISTERING for a COLD_RESUME, or are left RUNNING/QUEUED alone
// for a HOT_RESUME so in-flight work is adopted, not restarted (spec.md
// §4.5).
func (s *Server) handleResetTaskStatuses(w http.ResponseWriter, r *http.Request) {
	workflowID, err := idParam(r, "workflowID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req resetTaskStatusesRequest
	_ = decodeJSON(r, &req)

	wfr, active, err := s.store.GetActiveWorkflowRun(r.Context(), workflowID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if !active {
		writeError(w, r, jobmonerrors.WorkflowNotResumable("workflow has no active run"))
		return
	}
	if err := s.store.ResetTaskStatuses(r.Context(), wfr.ID, req.HotResume); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// handleIncreaseResources is the optional step 4 of resume. It calls
// Store.IncreaseResourcesOnResourceError, which finds the tasks with a
// RESOURCE_ERROR TaskInstance but does not change their TaskResources
// (spec.md §4.4, §4.5).
func (s *Server) handleIncreaseResources(w http.ResponseWriter, r *http.Request) {
	workflowID, err := idParam(r, "workflowID")
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.store.IncreaseResourcesOnResourceError(r.Context(), workflowID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nil)
}

// decodeAndValidate decodes the request body and runs struct validation
// tags via go-playground/validator, the same pair jobmonconfig.Load uses
// for its own config struct.
func (s *Server) decodeAndValidate(r *http.Request, dst interface{}) error {
	if err := decodeJSON(r, dst); err != nil {
		return err
	}
	if err := s.validate.Struct(dst); err != nil {
		return jobmonerrors.InvalidUsage(err.Error())
	}
	return nil
}
