// Package factory is the client-side Workflow-Run Factory (C7, spec.md
// §4.5): the bootstrap and resume protocol every client (the reference
// CLI, a user's workflow-authoring script) drives before a Swarm can
// start. It talks to the Server API exclusively over internal/requester —
// it holds no DB connection of its own, matching spec.md §1's "these
// three roles communicate only through the server's HTTP API."
package factory

import (
	"context"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/requester"
)

// Factory drives workflow binding and resume against one Server API.
type Factory struct {
	http *requester.Client
}

// New builds a Factory over an already-configured requester.Client.
func New(http *requester.Client) *Factory {
	return &Factory{http: http}
}

// BindOutcome classifies the result of BindWorkflow (spec.md §4.5:
// "Binding a workflow returns one of: (a) freshly created, (b)
// existing-resumable, (c) existing-running-reject").
type BindOutcome string

const (
	BindCreated           BindOutcome = "created"
	BindExistingResumable BindOutcome = "resumable"
	BindExistingRunning   BindOutcome = "running"
)

// BindWorkflowRequest is the payload for POST /workflow/bind.
type BindWorkflowRequest struct {
	ToolVersionID          int64  `json:"tool_version_id"`
	DagID                  int64  `json:"dag_id"`
	WorkflowArgsHash       string `json:"workflow_args_hash"`
	TaskHash               string `json:"task_hash"`
	MaxConcurrentlyRunning int    `json:"max_concurrently_running"`
}

type bindWorkflowResponse struct {
	WorkflowID int64       `json:"workflow_id"`
	Outcome    BindOutcome `json:"outcome"`
}

// BindWorkflow finds-or-creates a Workflow by (tool_version_id,
// workflow_args_hash). The caller must inspect Outcome: BindExistingRunning
// means an active WorkflowRun already owns this workflow and the caller
// must not proceed without going through Resume first.
func (f *Factory) BindWorkflow(ctx context.Context, req BindWorkflowRequest) (int64, BindOutcome, error) {
	var resp bindWorkflowResponse
	if err := f.http.Do(ctx, "POST", "/workflow/bind", req, &resp); err != nil {
		return 0, "", err
	}
	return resp.WorkflowID, resp.Outcome, nil
}

// BindTaskRequest mirrors model.Task's client-supplied fields.
type BindTaskRequest struct {
	NodeID          int64                 `json:"node_id"`
	TaskArgsHash    string                `json:"task_args_hash"`
	Name            string                `json:"name"`
	Command         string                `json:"command"`
	MaxAttempts     int                   `json:"max_attempts"`
	TaskResourcesID int64                 `json:"task_resources_id"`
	ResourceScales  []model.ResourceScale `json:"resource_scales"`
}

// BindTasks bulk-upserts a workflow's tasks.
func (f *Factory) BindTasks(ctx context.Context, workflowID int64, tasks []BindTaskRequest) ([]model.Task, error) {
	path := "/workflow/" + itoa(workflowID) + "/bind_tasks"
	body := map[string]any{"tasks": tasks}
	var resp struct {
		Tasks []model.Task `json:"tasks"`
	}
	if err := f.http.Do(ctx, "POST", path, body, &resp); err != nil {
		return nil, err
	}
	return resp.Tasks, nil
}

// CreateWorkflowRun links a new WorkflowRun for workflowID, becoming the
// active one, via the single-writer-guarded link_workflow_run
// transaction (spec.md §4.5 "Race prevention").
func (f *Factory) CreateWorkflowRun(ctx context.Context, workflowID int64, serverVersion string) (model.WorkflowRun, error) {
	path := "/workflow/" + itoa(workflowID) + "/link_workflow_run"
	body := map[string]any{"jobmon_server_version": serverVersion}
	var wfr model.WorkflowRun
	if err := f.http.Do(ctx, "POST", path, body, &wfr); err != nil {
		return model.WorkflowRun{}, err
	}
	return wfr, nil
}
