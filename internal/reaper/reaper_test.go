package reaper

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

func TestSweepReapsLostRunsAndNotifies(t *testing.T) {
	fs := &fakeStore{
		lost: []model.WorkflowRun{
			{ID: 1, WorkflowID: 10},
			{ID: 2, WorkflowID: 20},
		},
	}
	fn := &fakeNotifier{}
	r := New(Config{PollInterval: time.Second, NotifyChannel: "#jobmon"}, fs, fn)

	require.NoError(t, r.sweep(context.Background()))

	assert.ElementsMatch(t, []int64{1, 2}, fs.reaped)
	assert.Len(t, fn.posts, 2)
	assert.Contains(t, fn.posts[0].message, "workflow_run 1")
}

func TestSweepSkipsNotifyWithoutChannel(t *testing.T) {
	fs := &fakeStore{lost: []model.WorkflowRun{{ID: 1, WorkflowID: 10}}}
	fn := &fakeNotifier{}
	r := New(Config{PollInterval: time.Second}, fs, fn)

	require.NoError(t, r.sweep(context.Background()))

	assert.Equal(t, []int64{1}, fs.reaped)
	assert.Empty(t, fn.posts)
}

func TestSweepToleratesNilNotifier(t *testing.T) {
	fs := &fakeStore{lost: []model.WorkflowRun{{ID: 1, WorkflowID: 10}}}
	r := New(Config{PollInterval: time.Second, NotifyChannel: "#jobmon"}, fs, nil)

	require.NoError(t, r.sweep(context.Background()))
	assert.Equal(t, []int64{1}, fs.reaped)
}

func TestSweepContinuesAfterOneReapFailure(t *testing.T) {
	fs := &fakeStore{
		lost:    []model.WorkflowRun{{ID: 1, WorkflowID: 10}, {ID: 2, WorkflowID: 20}},
		reapErr: map[int64]error{1: assertErr{"locked"}},
	}
	r := New(Config{PollInterval: time.Second}, fs, nil)

	require.NoError(t, r.sweep(context.Background()))
	assert.Equal(t, []int64{2}, fs.reaped)
}

func TestFixStatusInconsistencyTickAdvancesCursor(t *testing.T) {
	fs := &fakeStore{}
	r := New(Config{PollInterval: time.Second, FixStatusStep: 50}, fs, nil)

	require.NoError(t, r.sweep(context.Background()))
	require.NoError(t, r.sweep(context.Background()))

	require.Len(t, fs.fixCalls, 2)
	assert.EqualValues(t, 1, fs.fixCalls[0].startID)
	assert.EqualValues(t, 51, fs.fixCalls[1].startID)
}

func TestFixStatusInconsistencyDefaultsStepWhenUnset(t *testing.T) {
	fs := &fakeStore{}
	r := New(Config{PollInterval: time.Second}, fs, nil)

	require.NoError(t, r.sweep(context.Background()))

	require.Len(t, fs.fixCalls, 1)
	assert.Equal(t, 1000, fs.fixCalls[0].step)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
