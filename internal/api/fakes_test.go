package api

import (
	"context"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

// fakeStore backs the handler tests in this package. It embeds
// store.Store so any method a given test never configures panics loudly
// instead of silently returning a zero value that could mask a bug.
type fakeStore struct {
	store.Store

	tool        model.Tool
	toolVersion model.ToolVersion

	nodes []model.Node
	dag   model.Dag

	workflow       model.Workflow
	workflowID     int64
	workflowErr    error
	workflowCreated bool

	activeRun   model.WorkflowRun
	hasActiveRun bool
	activeRunErr error

	boundTasks []model.Task

	linkedRun model.WorkflowRun
	linkErr   error

	setStatusCalls []struct {
		id       int64
		from, to model.WorkflowRunStatus
	}

	resetCalls []struct {
		wfrID     int64
		hotResume bool
	}

	increaseResourcesCalled bool

	queueResult   store.TransitionResult
	queueBatch    model.Batch
	queueErr      error

	taskArrayIDsErr error
}

func (f *fakeStore) BindTool(ctx context.Context, name string) (model.Tool, error) {
	return model.Tool{ID: 1, Name: name}, nil
}

func (f *fakeStore) BindToolVersion(ctx context.Context, toolID int64) (model.ToolVersion, error) {
	return model.ToolVersion{ID: 1, ToolID: toolID}, nil
}

func (f *fakeStore) AddNodes(ctx context.Context, nodes []model.Node) ([]model.Node, error) {
	return nodes, nil
}

func (f *fakeStore) AddDag(ctx context.Context, dagHash string) (model.Dag, error) {
	return model.Dag{ID: 1, DagHash: dagHash}, nil
}

func (f *fakeStore) AddEdges(ctx context.Context, dagID int64, edges []model.Edge) error {
	return nil
}

func (f *fakeStore) MarkDagComplete(ctx context.Context, dagID int64) error { return nil }

func (f *fakeStore) BindWorkflow(ctx context.Context, wf model.Workflow) (int64, bool, error) {
	if f.workflowErr != nil {
		return 0, false, f.workflowErr
	}
	if f.workflowID != 0 {
		return f.workflowID, f.workflowCreated, nil
	}
	return 1, true, nil
}

func (f *fakeStore) GetWorkflow(ctx context.Context, id int64) (model.Workflow, error) {
	return f.workflow, nil
}

func (f *fakeStore) GetActiveWorkflowRun(ctx context.Context, workflowID int64) (model.WorkflowRun, bool, error) {
	return f.activeRun, f.hasActiveRun, f.activeRunErr
}

func (f *fakeStore) BindTasks(ctx context.Context, workflowID int64, tasks []model.Task) ([]model.Task, error) {
	if f.boundTasks != nil {
		return f.boundTasks, nil
	}
	return tasks, nil
}

func (f *fakeStore) LinkWorkflowRun(ctx context.Context, workflowID int64) (model.WorkflowRun, error) {
	if f.linkErr != nil {
		return model.WorkflowRun{}, f.linkErr
	}
	return f.linkedRun, nil
}

func (f *fakeStore) SetWorkflowRunStatus(ctx context.Context, id int64, from, to model.WorkflowRunStatus) error {
	f.setStatusCalls = append(f.setStatusCalls, struct {
		id       int64
		from, to model.WorkflowRunStatus
	}{id, from, to})
	return nil
}

func (f *fakeStore) ResetTaskStatuses(ctx context.Context, workflowRunID int64, hotResume bool) error {
	f.resetCalls = append(f.resetCalls, struct {
		wfrID     int64
		hotResume bool
	}{workflowRunID, hotResume})
	return nil
}

func (f *fakeStore) IncreaseResourcesOnResourceError(ctx context.Context, workflowID int64) error {
	f.increaseResourcesCalled = true
	return nil
}

func (f *fakeStore) QueueTaskBatch(ctx context.Context, workflowRunID int64, taskIDs []int64, distributorInstanceID int64) (model.Batch, []model.TaskInstance, store.TransitionResult, error) {
	if f.queueErr != nil {
		return model.Batch{}, nil, store.TransitionResult{}, f.queueErr
	}
	return f.queueBatch, nil, f.queueResult, nil
}

func (f *fakeStore) GetTaskArrayIDs(ctx context.Context, workflowID int64) (map[int64]int64, error) {
	if f.taskArrayIDsErr != nil {
		return nil, f.taskArrayIDsErr
	}
	return map[int64]int64{}, nil
}

func (f *fakeStore) Close() error { return nil }
