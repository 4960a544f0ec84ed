package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// seedTaskInstance builds the minimal FK chain a task_instance row needs --
// tool/task_template(_version)/node/task_resources/task_array/task/batch --
// via raw SQL and inserts one task_instance in the given status pinned to
// workflowRunID. suffix must be unique per call within a test so the
// content-addressed unique constraints (task_resources, node, task) don't
// collide.
func seedTaskInstance(t *testing.T, st *Store, workflowRunID int64, status model.TaskInstanceStatus, suffix string) int64 {
	t.Helper()
	ctx := context.Background()

	var workflowID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`SELECT workflow_id FROM workflow_run WHERE id = $1`, workflowRunID).Scan(&workflowID))

	var toolID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO tool (name) VALUES ($1) RETURNING id`, "seed-tool-"+suffix).Scan(&toolID))
	var templateID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO task_template (tool_id, name) VALUES ($1, $2) RETURNING id`,
		toolID, "seed-template-"+suffix).Scan(&templateID))
	var templateVersionID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO task_template_version (template_id, command_template, arg_mapping_hash)
			VALUES ($1, $2, $3) RETURNING id`,
		templateID, "echo {x}", "hash-"+suffix).Scan(&templateVersionID))
	var nodeID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO node (template_version_id, node_args_hash) VALUES ($1, $2) RETURNING id`,
		templateVersionID, "node-hash-"+suffix).Scan(&nodeID))

	var taskResourcesID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO task_resources (queue, requested_resources, hash)
			VALUES ($1, $2, $3) RETURNING id`,
		"q", `{"cores":"1"}`, "resources-hash-"+suffix).Scan(&taskResourcesID))

	var taskID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO task
			(workflow_id, node_id, task_args_hash, name, command, status, task_resources_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		workflowID, nodeID, "task-args-hash-"+suffix, "seed-task-"+suffix, "echo hi",
		model.TaskLaunched, taskResourcesID).Scan(&taskID))

	var arrayID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO task_array (name, template_version_id) VALUES ($1, $2) RETURNING id`,
		"seed-array-"+suffix, templateVersionID).Scan(&arrayID))

	var batchID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO batch (array_id, array_name, task_resources_id) VALUES ($1, $2, $3) RETURNING id`,
		arrayID, "seed-array-"+suffix, taskResourcesID).Scan(&batchID))

	var tiID int64
	require.NoError(t, st.pool.QueryRow(ctx,
		`INSERT INTO task_instance (task_id, workflow_run_id, batch_id, array_step_id, status)
			VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		taskID, workflowRunID, batchID, 0, status).Scan(&tiID))

	return tiID
}

// TestResetTaskStatusesColdResumeKillsInFlightTaskInstances proves cold
// resume's reset_if_running=true step (spec.md §4.5 step 1, "kill all
// running TIs") actually flips in-flight TaskInstances to KILL_SELF instead
// of only resetting Task rows and orphaning their backend processes.
func TestResetTaskStatusesColdResumeKillsInFlightTaskInstances(t *testing.T) {
	ctx := context.Background()
	st := newMigratedStore(t)
	runID := newWorkflowRun(t, st, "cold-resume-kills")

	launchedID := seedTaskInstance(t, st, runID, model.TILaunched, "launched")
	runningID := seedTaskInstance(t, st, runID, model.TIRunning, "running")
	doneID := seedTaskInstance(t, st, runID, model.TIDone, "done")

	require.NoError(t, st.ResetTaskStatuses(ctx, runID, false))

	var status model.TaskInstanceStatus
	require.NoError(t, st.pool.QueryRow(ctx, `SELECT status FROM task_instance WHERE id = $1`, launchedID).Scan(&status))
	require.Equal(t, model.TIKillSelf, status, "a LAUNCHED instance must be killed on cold resume")

	require.NoError(t, st.pool.QueryRow(ctx, `SELECT status FROM task_instance WHERE id = $1`, runningID).Scan(&status))
	require.Equal(t, model.TIKillSelf, status, "a RUNNING instance must be killed on cold resume")

	require.NoError(t, st.pool.QueryRow(ctx, `SELECT status FROM task_instance WHERE id = $1`, doneID).Scan(&status))
	require.Equal(t, model.TIDone, status, "a DONE instance must be left alone")
}

// TestResetTaskStatusesHotResumePreservesInFlightTaskInstances proves the
// hot-resume branch never touches task_instance rows at all -- it only
// reclassifies Tasks, leaving whatever is already running in place.
func TestResetTaskStatusesHotResumePreservesInFlightTaskInstances(t *testing.T) {
	ctx := context.Background()
	st := newMigratedStore(t)
	runID := newWorkflowRun(t, st, "hot-resume-preserves")

	launchedID := seedTaskInstance(t, st, runID, model.TILaunched, "launched")

	require.NoError(t, st.ResetTaskStatuses(ctx, runID, true))

	var status model.TaskInstanceStatus
	require.NoError(t, st.pool.QueryRow(ctx, `SELECT status FROM task_instance WHERE id = $1`, launchedID).Scan(&status))
	require.Equal(t, model.TILaunched, status, "hot resume must not touch task instances")
}
