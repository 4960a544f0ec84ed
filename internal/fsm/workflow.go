package fsm

import "github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"

// WorkflowTransitions is the Workflow FSM (spec.md §4.1), including the
// resume transitions back into REGISTERING and the HALTED signal path.
var WorkflowTransitions = map[model.WorkflowStatus]map[model.WorkflowStatus]bool{
	model.WFRegistering:   setWF(model.WFQueued, model.WFAborted),
	model.WFQueued:        setWF(model.WFInstantiating, model.WFHalted),
	model.WFInstantiating: setWF(model.WFLaunched),
	model.WFLaunched:      setWF(model.WFRunning),
	model.WFRunning:       setWF(model.WFDone, model.WFFailed, model.WFHalted),
	model.WFDone:          {},
	model.WFFailed:        setWF(model.WFRegistering),
	model.WFAborted:       setWF(model.WFRegistering),
	model.WFHalted:        setWF(model.WFRegistering),
}

var workflowValidSources = reverseWF(WorkflowTransitions)

func setWF(statuses ...model.WorkflowStatus) map[model.WorkflowStatus]bool {
	m := make(map[model.WorkflowStatus]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

func reverseWF(forward map[model.WorkflowStatus]map[model.WorkflowStatus]bool) map[model.WorkflowStatus]map[model.WorkflowStatus]bool {
	rev := make(map[model.WorkflowStatus]map[model.WorkflowStatus]bool)
	for from, tos := range forward {
		for to := range tos {
			if rev[to] == nil {
				rev[to] = make(map[model.WorkflowStatus]bool)
			}
			rev[to][from] = true
		}
	}
	return rev
}

func IsValidWorkflowTransition(from, to model.WorkflowStatus) bool {
	return WorkflowTransitions[from][to]
}

func ValidWorkflowSources(to model.WorkflowStatus) map[model.WorkflowStatus]bool {
	return workflowValidSources[to]
}

func IsWorkflowTerminal(s model.WorkflowStatus) bool {
	return len(WorkflowTransitions[s]) == 0
}
