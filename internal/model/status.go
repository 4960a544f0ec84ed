package model

// Status codes are exchanged over the wire as single characters, matching
// the short-code convention of the reference server (spec.md §6). Each
// family below is a set of compile-time constants plus a label map, not a
// scattering of string literals through the codebase.

// TaskStatus is the status of a Task (spec.md §4.1 Task FSM).
type TaskStatus string

const (
	TaskRegistering       TaskStatus = "G"
	TaskQueued            TaskStatus = "Q"
	TaskInstantiating     TaskStatus = "I"
	TaskLaunched          TaskStatus = "O"
	TaskRunning           TaskStatus = "R"
	TaskErrorRecoverable  TaskStatus = "E"
	TaskAdjustingResources TaskStatus = "A"
	TaskDone              TaskStatus = "D"
	TaskErrorFatal        TaskStatus = "F"
)

var taskStatusLabels = map[TaskStatus]string{
	TaskRegistering:        "REGISTERING",
	TaskQueued:             "QUEUED",
	TaskInstantiating:      "INSTANTIATING",
	TaskLaunched:           "LAUNCHED",
	TaskRunning:            "RUNNING",
	TaskErrorRecoverable:   "ERROR_RECOVERABLE",
	TaskAdjustingResources: "ADJUSTING_RESOURCES",
	TaskDone:               "DONE",
	TaskErrorFatal:         "ERROR_FATAL",
}

// Label returns the long-form name of a task status, for logs and API
// responses that spell statuses out.
func (s TaskStatus) Label() string { return taskStatusLabels[s] }

// IsTerminal reports whether a task has reached DONE or ERROR_FATAL and
// will never transition again.
func (s TaskStatus) IsTerminal() bool {
	return s == TaskDone || s == TaskErrorFatal
}

// TaskInstanceStatus is the status of a TaskInstance (spec.md §6 lists the
// canonical short codes; labels below match the reference server's
// task_instance_status table).
type TaskInstanceStatus string

const (
	TIQueued          TaskInstanceStatus = "Q"
	TIInstantiated    TaskInstanceStatus = "I"
	TINoDistributorID TaskInstanceStatus = "W"
	TILaunched        TaskInstanceStatus = "O"
	TIRunning         TaskInstanceStatus = "R"
	TITriaging        TaskInstanceStatus = "T"
	TIResourceError   TaskInstanceStatus = "Z"
	TIUnknownError    TaskInstanceStatus = "U"
	TIError           TaskInstanceStatus = "E"
	TIDone            TaskInstanceStatus = "D"
	TIKillSelf        TaskInstanceStatus = "K"
	TIErrorFatal      TaskInstanceStatus = "F"
	TINoHeartbeat     TaskInstanceStatus = "N"
)

var taskInstanceStatusLabels = map[TaskInstanceStatus]string{
	TIQueued:          "QUEUED",
	TIInstantiated:    "INSTANTIATED",
	TINoDistributorID: "NO_DISTRIBUTOR_ID",
	TILaunched:        "LAUNCHED",
	TIRunning:         "RUNNING",
	TITriaging:        "TRIAGING",
	TIResourceError:   "RESOURCE_ERROR",
	TIUnknownError:    "UNKNOWN_ERROR",
	TIError:           "ERROR",
	TIDone:            "DONE",
	TIKillSelf:        "KILL_SELF",
	TIErrorFatal:      "ERROR_FATAL",
	TINoHeartbeat:     "NO_HEARTBEAT",
}

func (s TaskInstanceStatus) Label() string { return taskInstanceStatusLabels[s] }

// IsErrorLike reports whether a TaskInstanceStatus represents a failed
// attempt subject to the server's retry-classification decision
// (spec.md §7: "Error classification for a TaskInstance is always the
// server's decision").
func (s TaskInstanceStatus) IsErrorLike() bool {
	switch s {
	case TINoDistributorID, TIError, TIUnknownError, TIResourceError:
		return true
	default:
		return false
	}
}

// WorkflowRunStatus is the status of a WorkflowRun (spec.md §4.1 WorkflowRun FSM).
type WorkflowRunStatus string

const (
	WFRRegistered  WorkflowRunStatus = "G"
	WFRLinking     WorkflowRunStatus = "L"
	WFRBound       WorkflowRunStatus = "B"
	WFRInstantiated WorkflowRunStatus = "I"
	WFRLaunched    WorkflowRunStatus = "O"
	WFRRunning     WorkflowRunStatus = "R"
	WFRDone        WorkflowRunStatus = "D"
	WFRError       WorkflowRunStatus = "E"
	WFRColdResume  WorkflowRunStatus = "C"
	WFRHotResume   WorkflowRunStatus = "H"
	WFRTerminated  WorkflowRunStatus = "T"
	WFRAborted     WorkflowRunStatus = "A"
)

var workflowRunStatusLabels = map[WorkflowRunStatus]string{
	WFRRegistered:   "REGISTERED",
	WFRLinking:      "LINKING",
	WFRBound:        "BOUND",
	WFRInstantiated: "INSTANTIATED",
	WFRLaunched:     "LAUNCHED",
	WFRRunning:      "RUNNING",
	WFRDone:         "DONE",
	WFRError:        "ERROR",
	WFRColdResume:   "COLD_RESUME",
	WFRHotResume:    "HOT_RESUME",
	WFRTerminated:   "TERMINATED",
	WFRAborted:      "ABORTED",
}

func (s WorkflowRunStatus) Label() string { return workflowRunStatusLabels[s] }

// IsActive reports whether a workflow-run is in a non-terminal state and
// therefore "the" active run of its workflow (spec.md §3: "A workflow has
// ≥0 historical workflow-runs plus ≤1 active one at any time").
func (s WorkflowRunStatus) IsActive() bool {
	switch s {
	case WFRDone, WFRError, WFRTerminated, WFRAborted:
		return false
	default:
		return true
	}
}

// WorkflowStatus is the status of a Workflow (spec.md §4.1 Workflow FSM).
type WorkflowStatus string

const (
	WFRegistering   WorkflowStatus = "G"
	WFQueued        WorkflowStatus = "Q"
	WFInstantiating WorkflowStatus = "I"
	WFLaunched      WorkflowStatus = "O"
	WFRunning       WorkflowStatus = "R"
	WFDone          WorkflowStatus = "D"
	WFFailed        WorkflowStatus = "F"
	WFAborted       WorkflowStatus = "A"
	WFHalted        WorkflowStatus = "H"
)

var workflowStatusLabels = map[WorkflowStatus]string{
	WFRegistering:   "REGISTERING",
	WFQueued:        "QUEUED",
	WFInstantiating: "INSTANTIATING",
	WFLaunched:      "LAUNCHED",
	WFRunning:       "RUNNING",
	WFDone:          "DONE",
	WFFailed:        "FAILED",
	WFAborted:       "ABORTED",
	WFHalted:        "HALTED",
}

func (s WorkflowStatus) Label() string { return workflowStatusLabels[s] }
