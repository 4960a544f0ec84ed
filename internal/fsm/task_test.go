package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

func TestIsValidTaskTransition(t *testing.T) {
	cases := []struct {
		name     string
		from, to model.TaskStatus
		want     bool
	}{
		{"registering to queued", model.TaskRegistering, model.TaskQueued, true},
		{"registering to running skips intermediate states", model.TaskRegistering, model.TaskRunning, false},
		{"running to done", model.TaskRunning, model.TaskDone, true},
		{"running to registering (retry)", model.TaskRunning, model.TaskRegistering, true},
		{"done is terminal", model.TaskDone, model.TaskQueued, false},
		{"error_fatal is terminal", model.TaskErrorFatal, model.TaskRegistering, false},
		{"error_recoverable to queued", model.TaskErrorRecoverable, model.TaskQueued, true},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, IsValidTaskTransition(c.from, c.to))
		})
	}
}

func TestIsTaskTerminal(t *testing.T) {
	assert.True(t, IsTaskTerminal(model.TaskDone))
	assert.True(t, IsTaskTerminal(model.TaskErrorFatal))
	assert.False(t, IsTaskTerminal(model.TaskRunning))
}

func TestValidTaskSources(t *testing.T) {
	sources := ValidTaskSources(model.TaskQueued)
	assert.True(t, sources[model.TaskRegistering])
	assert.True(t, sources[model.TaskAdjustingResources])
	assert.True(t, sources[model.TaskErrorRecoverable])
	assert.False(t, sources[model.TaskDone])
}

func TestNextTaskStatusForInstance(t *testing.T) {
	cases := []struct {
		name                    string
		tiStatus                model.TaskInstanceStatus
		numAttempts, maxAttempts int
		wantStatus              model.TaskStatus
		wantOK                  bool
	}{
		{"queued passes through", model.TIQueued, 0, 3, model.TaskQueued, true},
		{"instantiated passes through", model.TIInstantiated, 0, 3, model.TaskInstantiating, true},
		{"launched passes through", model.TILaunched, 0, 3, model.TaskLaunched, true},
		{"running passes through", model.TIRunning, 0, 3, model.TaskRunning, true},
		{"done passes through", model.TIDone, 0, 3, model.TaskDone, true},
		{"fatal passes through", model.TIErrorFatal, 0, 3, model.TaskErrorFatal, true},
		{"error under budget retries", model.TIError, 1, 3, model.TaskRegistering, true},
		{"error at budget escalates to fatal", model.TIError, 3, 3, model.TaskErrorFatal, true},
		{"unknown error under budget retries", model.TIUnknownError, 0, 3, model.TaskRegistering, true},
		{"resource error under budget adjusts", model.TIResourceError, 0, 3, model.TaskAdjustingResources, true},
		{"resource error at budget escalates to fatal", model.TIResourceError, 3, 3, model.TaskErrorFatal, true},
		{"triaging has no task consequence", model.TITriaging, 0, 3, "", false},
		{"kill_self has no task consequence", model.TIKillSelf, 0, 3, "", false},
		{"no_heartbeat has no task consequence", model.TINoHeartbeat, 0, 3, "", false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := NextTaskStatusForInstance(c.tiStatus, c.numAttempts, c.maxAttempts)
			assert.Equal(t, c.wantOK, ok)
			assert.Equal(t, c.wantStatus, got)
		})
	}
}
