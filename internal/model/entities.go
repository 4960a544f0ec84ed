// Package model holds the shared Jobmon domain entities and their status
// vocabularies (spec.md §3). It has no dependency on the store, API, or
// any process role: every other internal package imports it, it imports
// nothing Jobmon-specific in return.
package model

import (
	"strconv"
	"time"
)

// Tool is a namespace for ToolVersions (spec.md §3).
type Tool struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ToolVersion belongs to exactly one Tool and is immutable after creation.
type ToolVersion struct {
	ID     int64 `json:"id"`
	ToolID int64 `json:"tool_id"`
}

// TaskTemplate groups TaskTemplateVersions under one user-facing name.
type TaskTemplate struct {
	ID     int64  `json:"id"`
	ToolID int64  `json:"tool_id"`
	Name   string `json:"name"`
}

// TaskTemplateVersion is keyed by (TemplateID, CommandTemplate,
// ArgMappingHash) — content-addressed and deduplicated (spec.md §3).
type TaskTemplateVersion struct {
	ID              int64    `json:"id"`
	TemplateID      int64    `json:"template_id"`
	CommandTemplate string   `json:"command_template"`
	ArgMappingHash  string   `json:"arg_mapping_hash"`
	NodeArgs        []string `json:"node_args"`
	TaskArgs        []string `json:"task_args"`
	OpArgs          []string `json:"op_args"`
}

// Node is one DAG vertex shape, identified by (TemplateVersionID,
// NodeArgsHash). Nodes are deduplicated across workflows (spec.md §3).
type Node struct {
	ID                int64  `json:"id"`
	TemplateVersionID int64  `json:"template_version_id"`
	NodeArgsHash      string `json:"node_args_hash"`
}

// Dag is content-addressed by DagHash (spec.md §3).
type Dag struct {
	ID          int64      `json:"id"`
	DagHash     string     `json:"dag_hash"`
	CreatedDate *time.Time `json:"created_date,omitempty"`
}

// Edge records a Node's upstream/downstream neighbors within a Dag.
type Edge struct {
	DagID             int64   `json:"dag_id"`
	NodeID            int64   `json:"node_id"`
	UpstreamNodeIDs   []int64 `json:"upstream_node_ids"`
	DownstreamNodeIDs []int64 `json:"downstream_node_ids"`
}

// TaskResources is an immutable, content-addressed bundle of
// (Queue, RequestedResources). Tasks point to a "current" TaskResources;
// adjusting resources creates a new row and re-points the task (spec.md §3).
type TaskResources struct {
	ID                 int64             `json:"id"`
	Queue              string            `json:"queue"`
	RequestedResources map[string]string `json:"requested_resources"`
	Hash               string            `json:"hash"`
}

// ResourceScale describes how a resource value escalates on an
// ADJUSTING_RESOURCES retry (spec.md §4.4 Resource Adjuster). Kind selects
// which of Factor (ScaleConstant) or Sequence (ScaleIterator) is
// meaningful; ScaleCallable uses neither.
type ResourceScaleKind string

const (
	ScaleConstant ResourceScaleKind = "constant"
	ScaleIterator ResourceScaleKind = "iterator"
	ScaleCallable ResourceScaleKind = "callable"
)

type ResourceScale struct {
	Resource string            `json:"resource"`
	Kind     ResourceScaleKind `json:"kind"`
	Factor   float64           `json:"factor,omitempty"`   // for ScaleConstant: new = old * (1 + Factor)
	Sequence []string          `json:"sequence,omitempty"` // for ScaleIterator: successive absolute values, consumed in order
}

// Array groups tasks sharing a TaskTemplateVersion, with an optional
// per-array concurrency limit (spec.md §3).
type Array struct {
	ID                     int64  `json:"id"`
	Name                   string `json:"name"`
	TemplateVersionID      int64  `json:"template_version_id"`
	MaxConcurrentlyRunning int    `json:"max_concurrently_running"` // 0 means unlimited
}

// Workflow is keyed uniquely by (ToolVersionID, WorkflowArgsHash); re-binding
// the same args finds the existing workflow and enables resume (spec.md §3).
type Workflow struct {
	ID                     int64          `json:"id"`
	ToolVersionID          int64          `json:"tool_version_id"`
	DagID                  int64          `json:"dag_id"`
	WorkflowArgsHash       string         `json:"workflow_args_hash"`
	TaskHash               string         `json:"task_hash"`
	MaxConcurrentlyRunning int            `json:"max_concurrently_running"`
	Status                 WorkflowStatus `json:"status"`
	ReadyToLink            bool           `json:"ready_to_link"`
}

// WorkflowRun is one attempt at a Workflow (spec.md §3).
type WorkflowRun struct {
	ID                  int64             `json:"id"`
	WorkflowID          int64             `json:"workflow_id"`
	Status              WorkflowRunStatus `json:"status"`
	HeartbeatDate       time.Time         `json:"heartbeat_date"`
	JobmonServerVersion string            `json:"jobmon_server_version"`
	CreatedDate         time.Time         `json:"created_date"`
}

// Task is a concrete node instantiation inside a workflow (spec.md §3).
type Task struct {
	ID              int64           `json:"id"`
	WorkflowID      int64           `json:"workflow_id"`
	NodeID          int64           `json:"node_id"`
	TaskArgsHash    string          `json:"task_args_hash"`
	Name            string          `json:"name"`
	Command         string          `json:"command"`
	Status          TaskStatus      `json:"status"`
	NumAttempts     int             `json:"num_attempts"`
	MaxAttempts     int             `json:"max_attempts"`
	TaskResourcesID int64           `json:"task_resources_id"`
	ResourceScales  []ResourceScale `json:"resource_scales,omitempty"`
	StatusDate      time.Time       `json:"status_date"`
}

// Batch is a set of TaskInstances submitted to a cluster together, sharing
// (ArrayID, TaskResourcesID). SubmissionName is the backend job name
// (spec.md §3: "{array_name}-{batch_id}").
type Batch struct {
	ID              int64  `json:"id"`
	ArrayID         int64  `json:"array_id"`
	ArrayName       string `json:"array_name"`
	TaskResourcesID int64  `json:"task_resources_id"`
}

func (b Batch) SubmissionName() string {
	return b.ArrayName + "-" + strconv.FormatInt(b.ID, 10)
}

// TaskInstance is one attempt at executing a Task (spec.md §3).
type TaskInstance struct {
	ID            int64              `json:"id"`
	TaskID        int64              `json:"task_id"`
	WorkflowRunID int64              `json:"workflow_run_id"`
	BatchID       int64              `json:"batch_id"`
	ArrayStepID   int                `json:"array_step_id"`
	DistributorID string             `json:"distributor_id,omitempty"`
	Status        TaskInstanceStatus `json:"status"`
	SubmittedDate *time.Time         `json:"submitted_date,omitempty"`
	ReportByDate  time.Time          `json:"report_by_date"`
	Stdout        string             `json:"stdout,omitempty"`
	Stderr        string             `json:"stderr,omitempty"`
	WallclockSecs float64            `json:"wallclock_seconds,omitempty"`
	MaxRSSBytes   int64              `json:"max_rss_bytes,omitempty"`
}

// DistributorInstance is one running Distributor process (spec.md §3).
// A "local" instance is pinned to one WorkflowRunID (non-nil); a "shared"
// instance (nil WorkflowRunID) can serve any workflow-run on its cluster.
type DistributorInstance struct {
	ID            int64     `json:"id"`
	ClusterID     int64     `json:"cluster_id"`
	WorkflowRunID *int64    `json:"workflow_run_id,omitempty"`
	ReportByDate  time.Time `json:"report_by_date"`
	Expunged      bool      `json:"expunged"`
}

// TaskInstanceErrorLog is an append-only error record (spec.md §3).
type TaskInstanceErrorLog struct {
	ID             int64     `json:"id"`
	TaskInstanceID int64     `json:"task_instance_id"`
	ErrorTime      time.Time `json:"error_time"`
	Description    string    `json:"description"`
}
