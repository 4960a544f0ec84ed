package swarm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// chain: task 1 -> task 2 -> task 3, task 2 also depends on task 4.
func chainDownstream() map[int64][]int64 {
	return map[int64][]int64{
		1: {2},
		4: {2},
		2: {3},
	}
}

func TestNewSeedsReadyQueueWithNoUpstreamTasks(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Status: model.TaskRegistering},
		{ID: 4, Status: model.TaskRegistering},
		{ID: 2, Status: model.TaskRegistering},
		{ID: 3, Status: model.TaskRegistering},
	}
	s := New(Config{}, nil, 100, 1000, tasks, chainDownstream())

	assert.ElementsMatch(t, []int64{1, 4}, s.readyQueue)
	assert.Equal(t, 2, s.upstreamsTotal[2])
	assert.Equal(t, 0, s.upstreamsTotal[1])
}

func TestApplyStateUpdateUnlocksDownstreamOnlyWhenAllUpstreamsDone(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Status: model.TaskRegistering},
		{ID: 4, Status: model.TaskRegistering},
		{ID: 2, Status: model.TaskRegistering},
		{ID: 3, Status: model.TaskRegistering},
	}
	s := New(Config{}, nil, 100, 1000, tasks, chainDownstream())
	s.workflowRunState = model.WFRBound

	s.applyStateUpdate(StateUpdate{TaskStatuses: map[int64]model.TaskStatus{1: model.TaskDone}})
	assert.NotContains(t, s.readyQueue, int64(2), "task 2 still needs task 4 to finish")

	s.applyStateUpdate(StateUpdate{TaskStatuses: map[int64]model.TaskStatus{4: model.TaskDone}})
	assert.Contains(t, s.readyQueue, int64(2))
}

func TestApplyStateUpdateDoesNotDoubleCountRepeatedDoneStatus(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Status: model.TaskRegistering},
		{ID: 2, Status: model.TaskRegistering},
	}
	s := New(Config{}, nil, 100, 1000, tasks, map[int64][]int64{1: {2}})
	s.workflowRunState = model.WFRBound

	s.applyStateUpdate(StateUpdate{TaskStatuses: map[int64]model.TaskStatus{1: model.TaskDone}})
	s.applyStateUpdate(StateUpdate{TaskStatuses: map[int64]model.TaskStatus{1: model.TaskDone}})

	assert.Equal(t, 1, s.upstreamsDone[2])
}

func TestCheckTerminalFiresDoneWhenAllTasksTerminal(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Status: model.TaskRegistering},
		{ID: 2, Status: model.TaskRegistering},
	}
	s := New(Config{}, nil, 100, 1000, tasks, map[int64][]int64{1: {2}})
	s.workflowRunState = model.WFRBound

	s.applyStateUpdate(StateUpdate{TaskStatuses: map[int64]model.TaskStatus{1: model.TaskDone, 2: model.TaskDone}})

	select {
	case term := <-s.done:
		assert.Equal(t, model.WFDone, term.status)
	default:
		t.Fatal("expected a terminal signal on s.done")
	}
}

func TestCheckTerminalFiresFailedWhenAnyTaskFatal(t *testing.T) {
	tasks := []model.Task{
		{ID: 1, Status: model.TaskRegistering},
		{ID: 2, Status: model.TaskRegistering},
	}
	s := New(Config{}, nil, 100, 1000, tasks, map[int64][]int64{1: {2}})
	s.workflowRunState = model.WFRBound

	s.applyStateUpdate(StateUpdate{TaskStatuses: map[int64]model.TaskStatus{1: model.TaskDone, 2: model.TaskErrorFatal}})

	select {
	case term := <-s.done:
		assert.Equal(t, model.WFFailed, term.status)
	default:
		t.Fatal("expected a terminal signal on s.done")
	}
}

func TestCheckTerminalFiresWhenWorkflowRunGoesInactive(t *testing.T) {
	tasks := []model.Task{{ID: 1, Status: model.TaskRunning}}
	s := New(Config{}, nil, 100, 1000, tasks, map[int64][]int64{})
	s.workflowRunState = model.WFRBound

	s.applyStateUpdate(StateUpdate{WorkflowRunStatus: model.WFRAborted})

	select {
	case term := <-s.done:
		assert.Equal(t, model.WFHalted, term.status)
	default:
		t.Fatal("expected a terminal signal once the workflow run became inactive")
	}
}

func TestApplyStateUpdateMergesResourcesAndLimits(t *testing.T) {
	tasks := []model.Task{{ID: 1, Status: model.TaskRegistering}}
	s := New(Config{}, nil, 100, 1000, tasks, map[int64][]int64{})

	s.applyStateUpdate(StateUpdate{
		TaskResourcesID:  map[int64]int64{1: 55},
		ConcurrencyLimit: 10,
		ArrayLimits:      map[int64]int{1: 3},
	})

	require.Equal(t, int64(55), s.taskResourcesID[1])
	assert.Equal(t, 10, s.concurrencyLimit)
	assert.Equal(t, 3, s.arrayLimits[1])
}
