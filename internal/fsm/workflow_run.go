package fsm

import "github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"

// WorkflowRunTransitions is the WorkflowRun FSM (spec.md §4.1).
var WorkflowRunTransitions = map[model.WorkflowRunStatus]map[model.WorkflowRunStatus]bool{
	model.WFRRegistered:   setWFR(model.WFRLinking),
	model.WFRLinking:      setWFR(model.WFRBound, model.WFRAborted),
	model.WFRBound:        setWFR(model.WFRInstantiated, model.WFRColdResume, model.WFRHotResume),
	model.WFRInstantiated: setWFR(model.WFRLaunched, model.WFRColdResume, model.WFRHotResume),
	model.WFRLaunched:     setWFR(model.WFRRunning, model.WFRColdResume, model.WFRHotResume),
	model.WFRRunning: setWFR(
		model.WFRDone, model.WFRError, model.WFRColdResume, model.WFRHotResume,
	),
	model.WFRColdResume: setWFR(model.WFRTerminated),
	model.WFRHotResume:  setWFR(model.WFRTerminated),
	model.WFRDone:        {},
	model.WFRError:       {},
	model.WFRTerminated:  {},
	model.WFRAborted:     {},
}

var workflowRunValidSources = reverseWFR(WorkflowRunTransitions)

func setWFR(statuses ...model.WorkflowRunStatus) map[model.WorkflowRunStatus]bool {
	m := make(map[model.WorkflowRunStatus]bool, len(statuses))
	for _, s := range statuses {
		m[s] = true
	}
	return m
}

func reverseWFR(forward map[model.WorkflowRunStatus]map[model.WorkflowRunStatus]bool) map[model.WorkflowRunStatus]map[model.WorkflowRunStatus]bool {
	rev := make(map[model.WorkflowRunStatus]map[model.WorkflowRunStatus]bool)
	for from, tos := range forward {
		for to := range tos {
			if rev[to] == nil {
				rev[to] = make(map[model.WorkflowRunStatus]bool)
			}
			rev[to][from] = true
		}
	}
	return rev
}

func IsValidWorkflowRunTransition(from, to model.WorkflowRunStatus) bool {
	return WorkflowRunTransitions[from][to]
}

func ValidWorkflowRunSources(to model.WorkflowRunStatus) map[model.WorkflowRunStatus]bool {
	return workflowRunValidSources[to]
}

func IsWorkflowRunTerminal(s model.WorkflowRunStatus) bool {
	return len(WorkflowRunTransitions[s]) == 0
}
