package fsm

import "github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"

// ReapDecision is the outcome the Reaper applies to one lost WorkflowRun
// (spec.md §4.6): the run's own terminal status plus the Workflow status
// it drives.
type ReapDecision struct {
	WorkflowRunStatus model.WorkflowRunStatus
	WorkflowStatus    model.WorkflowStatus
}

// Reap maps a lost WorkflowRun's current status to its terminal decision.
// ok is false if the status is not one the reaper acts on (already terminal).
func Reap(current model.WorkflowRunStatus) (ReapDecision, bool) {
	switch current {
	case model.WFRLinking:
		return ReapDecision{model.WFRAborted, model.WFAborted}, true
	case model.WFRColdResume, model.WFRHotResume:
		return ReapDecision{model.WFRTerminated, model.WFHalted}, true
	case model.WFRRunning, model.WFRBound, model.WFRInstantiated, model.WFRLaunched:
		return ReapDecision{model.WFRError, model.WFFailed}, true
	default:
		return ReapDecision{}, false
	}
}
