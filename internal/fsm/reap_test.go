package fsm

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

func TestReap(t *testing.T) {
	cases := []struct {
		name    string
		current model.WorkflowRunStatus
		want    ReapDecision
		wantOK  bool
	}{
		{"linking aborts", model.WFRLinking, ReapDecision{model.WFRAborted, model.WFAborted}, true},
		{"cold resume terminates and halts", model.WFRColdResume, ReapDecision{model.WFRTerminated, model.WFHalted}, true},
		{"hot resume terminates and halts", model.WFRHotResume, ReapDecision{model.WFRTerminated, model.WFHalted}, true},
		{"running errors and fails", model.WFRRunning, ReapDecision{model.WFRError, model.WFFailed}, true},
		{"bound errors and fails", model.WFRBound, ReapDecision{model.WFRError, model.WFFailed}, true},
		{"already done is not reaped", model.WFRDone, ReapDecision{}, false},
		{"already terminated is not reaped", model.WFRTerminated, ReapDecision{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, ok := Reap(c.current)
			assert.Equal(t, c.wantOK, ok)
			assert.Equal(t, c.want, got)
		})
	}
}
