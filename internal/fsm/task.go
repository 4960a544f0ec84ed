// Package fsm is the Transition Service (spec.md §4.1, C2): a pure module
// that validates and applies status transitions for Task, WorkflowRun, and
// Workflow. Transition tables are compile-time data — a from_status ->
// set(to_status) map plus its auto-derived reverse lookup — rather than
// if/elif chains scattered through handlers, per spec.md §9's explicit
// re-architecture hint. This mirrors the reference server's
// jobmon.server.web.services.task_fsm.TaskFSM almost table-for-table.
package fsm

import "github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"

// TaskTransitions is the Task FSM (spec.md §4.1).
var TaskTransitions = map[model.TaskStatus]map[model.TaskStatus]bool{
	model.TaskRegistering: set(model.TaskQueued),
	model.TaskAdjustingResources: set(
		model.TaskQueued, model.TaskErrorFatal,
	),
	model.TaskQueued: set(model.TaskInstantiating),
	model.TaskInstantiating: set(
		model.TaskLaunched, model.TaskRunning, model.TaskErrorRecoverable,
	),
	model.TaskLaunched: set(
		model.TaskRunning, model.TaskErrorRecoverable, model.TaskErrorFatal,
	),
	model.TaskRunning: set(
		model.TaskDone, model.TaskErrorRecoverable,
		model.TaskRegistering, model.TaskAdjustingResources, model.TaskErrorFatal,
	),
	model.TaskErrorRecoverable: set(
		model.TaskRegistering, model.TaskAdjustingResources,
		model.TaskErrorFatal, model.TaskQueued,
	),
	model.TaskDone:       {},
	model.TaskErrorFatal: {},
}

var taskValidSources = reverse(TaskTransitions)

func set(statuses ...model.TaskStatus) map[model.TaskStatus]bool {
	m := make(map[model.TaskStatus]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

func reverse(forward map[model.TaskStatus]map[model.TaskStatus]bool) map[model.TaskStatus]map[model.TaskStatus]bool {
	rev := make(map[model.TaskStatus]map[model.TaskStatus]bool)
	for from, tos := range forward {
		for to := range tos {
			if rev[to] == nil {
				rev[to] = make(map[model.TaskStatus]bool)
			}
			rev[to][from] = true
		}
	}
	return rev
}

// IsValidTaskTransition reports whether (from, to) is an allowed Task
// transition.
func IsValidTaskTransition(from, to model.TaskStatus) bool {
	return TaskTransitions[from][to]
}

// ValidTaskSources returns the statuses that may transition into `to`.
func ValidTaskSources(to model.TaskStatus) map[model.TaskStatus]bool {
	return taskValidSources[to]
}

// IsTaskTerminal reports whether a Task status has no outgoing transitions.
func IsTaskTerminal(s model.TaskStatus) bool {
	return len(TaskTransitions[s]) == 0
}

// NextTaskStatusForInstance is the server-side decision table mapping a
// reported TaskInstance status, together with the owning Task's attempt
// counters, to the Task's next status. This is the authoritative
// retry/escalate/give-up decision spec.md §4.1 and §7 both call out as
// belonging solely to the server, and is recovered verbatim in shape from
// the reference server's TaskFSM.get_task_status_for_ti (originalsource:
// jobmon_server/.../services/task_fsm.py). ok is false when the TI status
// carries no Task-level consequence (e.g. TRIAGING, KILL_SELF).
func NextTaskStatusForInstance(tiStatus model.TaskInstanceStatus, numAttempts, maxAttempts int) (next model.TaskStatus, ok bool) {
	switch tiStatus {
	case model.TIQueued:
		return model.TaskQueued, true
	case model.TIInstantiated:
		return model.TaskInstantiating, true
	case model.TILaunched:
		return model.TaskLaunched, true
	case model.TIRunning:
		return model.TaskRunning, true
	case model.TIDone:
		return model.TaskDone, true
	case model.TIErrorFatal:
		return model.TaskErrorFatal, true
	}

	if tiStatus.IsErrorLike() {
		if numAttempts >= maxAttempts {
			return model.TaskErrorFatal, true
		}
		if tiStatus == model.TIResourceError {
			return model.TaskAdjustingResources, true
		}
		return model.TaskRegistering, true
	}

	return "", false
}
