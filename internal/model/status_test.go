package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStatusLabel(t *testing.T) {
	assert.Equal(t, "REGISTERING", TaskRegistering.Label())
	assert.Equal(t, "ERROR_FATAL", TaskErrorFatal.Label())
	assert.Equal(t, "", TaskStatus("?").Label(), "unknown codes label as empty, not panic")
}

func TestTaskStatusIsTerminal(t *testing.T) {
	assert.True(t, TaskDone.IsTerminal())
	assert.True(t, TaskErrorFatal.IsTerminal())
	assert.False(t, TaskRunning.IsTerminal())
	assert.False(t, TaskQueued.IsTerminal())
}

func TestTaskInstanceStatusIsErrorLike(t *testing.T) {
	errorLike := []TaskInstanceStatus{TINoDistributorID, TIError, TIUnknownError, TIResourceError}
	for _, s := range errorLike {
		assert.True(t, s.IsErrorLike(), "%s should be error-like", s)
	}
	notErrorLike := []TaskInstanceStatus{TIQueued, TIInstantiated, TILaunched, TIRunning, TITriaging, TIDone, TIKillSelf, TIErrorFatal, TINoHeartbeat}
	for _, s := range notErrorLike {
		assert.False(t, s.IsErrorLike(), "%s should not be error-like", s)
	}
}

func TestWorkflowRunStatusIsActive(t *testing.T) {
	terminal := []WorkflowRunStatus{WFRDone, WFRError, WFRTerminated, WFRAborted}
	for _, s := range terminal {
		assert.False(t, s.IsActive(), "%s should not be active", s)
	}
	active := []WorkflowRunStatus{WFRRegistered, WFRLinking, WFRBound, WFRInstantiated, WFRLaunched, WFRRunning, WFRColdResume, WFRHotResume}
	for _, s := range active {
		assert.True(t, s.IsActive(), "%s should be active", s)
	}
}

func TestLabelsCoverEveryConstant(t *testing.T) {
	for s := range taskStatusLabels {
		assert.NotEmpty(t, s.Label())
	}
	for s := range taskInstanceStatusLabels {
		assert.NotEmpty(t, s.Label())
	}
	for s := range workflowRunStatusLabels {
		assert.NotEmpty(t, s.Label())
	}
	for s := range workflowStatusLabels {
		assert.NotEmpty(t, s.Label())
	}
}
