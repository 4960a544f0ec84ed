// Package store defines the State Store contract (spec.md §4.2, C1): a set
// of named operations exposed to the API layer, never raw SQL. Grounded on
// cuemby-warren's pkg/storage.Store interface-over-driver shape, expanded
// from Warren's dozen container-orchestration entities to Jobmon's richer
// workflow/task graph, and on 88lin-divinesense's store.Store facade
// (a thin struct delegating one line per method to an interchangeable
// driver) for the "facade wraps driver" layering.
package store

import (
	"context"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// LockPolicy selects between the two row-locking strategies of spec.md
// §4.1: NOWAIT for single-entity transitions that should fail fast, and
// SkipLocked for bulk transitions that should make progress on whatever is
// unlocked.
type LockPolicy int

const (
	NOWAIT LockPolicy = iota
	SkipLocked
)

// TransitionResult classifies every input id into one of four buckets, per
// spec.md §4.1.
type TransitionResult struct {
	Transitioned       []int64
	InvalidSourceState []int64
	Locked             []int64
	NotFound           []int64
}

// BatchWithInstances pairs a Batch with its not-yet-submitted TaskInstances.
type BatchWithInstances struct {
	Batch     model.Batch
	Instances []model.TaskInstance
}

// Store is the full set of named operations the Server API, Swarm,
// Distributor, and Reaper are built on. Postgres is the only implementation
// (internal/store/postgres); the interface exists so the API handlers,
// Distributor, Reaper and Swarm can be unit-tested against hand-written
// fakes.
type Store interface {
	// Tool / ToolVersion / TaskTemplate(Version) / Node / Dag / Edge —
	// content-addressed, globally deduplicated (spec.md §3).
	BindTool(ctx context.Context, name string) (model.Tool, error)
	BindToolVersion(ctx context.Context, toolID int64) (model.ToolVersion, error)
	BindTaskTemplate(ctx context.Context, toolID int64, name string) (model.TaskTemplate, error)
	BindTaskTemplateVersion(ctx context.Context, ttv model.TaskTemplateVersion) (model.TaskTemplateVersion, error)
	AddNodes(ctx context.Context, nodes []model.Node) ([]model.Node, error)
	AddDag(ctx context.Context, dagHash string) (model.Dag, error)
	AddEdges(ctx context.Context, dagID int64, edges []model.Edge) error
	MarkDagComplete(ctx context.Context, dagID int64) error

	// Workflow / WorkflowRun lifecycle (spec.md §4.2, §4.5).
	BindWorkflow(ctx context.Context, wf model.Workflow) (wfID int64, created bool, err error)
	GetWorkflow(ctx context.Context, id int64) (model.Workflow, error)
	SetWorkflowStatus(ctx context.Context, id int64, from, to model.WorkflowStatus) error
	BindTasks(ctx context.Context, workflowID int64, tasks []model.Task) ([]model.Task, error)
	LinkWorkflowRun(ctx context.Context, workflowID int64) (model.WorkflowRun, error)
	GetActiveWorkflowRun(ctx context.Context, workflowID int64) (model.WorkflowRun, bool, error)
	SetWorkflowRunStatus(ctx context.Context, id int64, from, to model.WorkflowRunStatus) error
	ResetTaskStatuses(ctx context.Context, workflowRunID int64, hotResume bool) error
	IncreaseResourcesOnResourceError(ctx context.Context, workflowID int64) error

	// Batching / queueing (spec.md §4.2, §4.3).
	QueueTaskBatch(ctx context.Context, workflowRunID int64, taskIDs []int64, distributorInstanceID int64) (model.Batch, []model.TaskInstance, TransitionResult, error)
	TransitionBatchToLaunched(ctx context.Context, batchID int64, nextReportIncrement time.Duration) error
	LogDistributorIDs(ctx context.Context, batchID int64, stepToDistributorID map[int]string) error
	// ListQueuedBatches returns every Batch still holding QUEUED
	// TaskInstances, the Distributor's submission worklist (spec.md §4.3
	// main loop step "QUEUED → load task instances, build batches, submit").
	ListQueuedBatches(ctx context.Context) ([]BatchWithInstances, error)

	// Heartbeats and triage (spec.md §4.2, §4.3, §4.4).
	LogWorkflowRunHeartbeat(ctx context.Context, id int64, nextReportIncrement time.Duration) (model.WorkflowRunStatus, error)
	LogTaskInstanceHeartbeat(ctx context.Context, id int64, nextReportIncrement time.Duration) (model.TaskInstanceStatus, error)
	RequestTriage(ctx context.Context) ([]model.TaskInstance, error)
	RequestKillSelf(ctx context.Context) ([]model.TaskInstance, error)
	LogKnownError(ctx context.Context, taskInstanceID int64, status model.TaskInstanceStatus, description string) error
	LogUnknownError(ctx context.Context, taskInstanceID int64, description string) error

	// Status queries and bulk user operations (spec.md §4.2).
	TaskUpdateStatuses(ctx context.Context, taskIDs []int64, to model.TaskStatus, username string) (TransitionResult, error)
	TasksRecursiveUp(ctx context.Context, taskIDs []int64) ([]int64, error)
	TasksRecursiveDown(ctx context.Context, taskIDs []int64) ([]int64, error)
	GetTaskStatuses(ctx context.Context, workflowID int64, since *time.Time) ([]model.Task, error)
	GetWorkflowConcurrencyLimit(ctx context.Context, workflowID int64) (int, error)
	GetArrayConcurrencyLimits(ctx context.Context, workflowID int64) (map[int64]int, error)
	GetTaskArrayIDs(ctx context.Context, workflowID int64) (map[int64]int64, error)
	// GetWorkflowDownstreamTasks maps each task id onto the task ids bound
	// to its node's immediate downstream nodes, the shape
	// swarm.New's downstream readiness map is seeded from at bootstrap.
	GetWorkflowDownstreamTasks(ctx context.Context, workflowID int64) (map[int64][]int64, error)

	// TaskResources (spec.md §3, §4.4 Resource Adjuster).
	BindTaskResources(ctx context.Context, tr model.TaskResources) (model.TaskResources, error)
	GetTaskResources(ctx context.Context, id int64) (model.TaskResources, error)
	RepointTaskResources(ctx context.Context, taskID, taskResourcesID int64) error

	// DistributorInstance lifecycle (spec.md §3, §4.3 Liveness).
	RegisterDistributorInstance(ctx context.Context, clusterID int64, workflowRunID *int64) (model.DistributorInstance, error)
	SelectDistributorInstance(ctx context.Context, clusterID int64, workflowRunID int64) (model.DistributorInstance, error)
	HeartbeatDistributorInstance(ctx context.Context, id int64, nextReportIncrement time.Duration) error
	ExpungeStaleDistributorInstances(ctx context.Context, clusterID int64) ([]int64, error)

	// Reaper (spec.md §4.6).
	LostWorkflowRuns(ctx context.Context, serverVersion string) ([]model.WorkflowRun, error)
	ReapWorkflowRun(ctx context.Context, id int64) error
	FixStatusInconsistency(ctx context.Context, startID int64, step int) (int, error)

	// Error log (spec.md §3).
	AppendTaskInstanceErrorLog(ctx context.Context, taskInstanceID int64, description string) error

	Close() error
}
