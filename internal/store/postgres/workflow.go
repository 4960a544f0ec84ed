package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/fsm"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// BindWorkflow finds-or-creates by (tool_version_id, workflow_args_hash)
// and enforces resume rules: re-binding the same args returns the existing
// workflow unless it has an active (non-terminal) run, in which case the
// caller must go through the resume protocol instead (spec.md §3, §4.5).
func (s *Store) BindWorkflow(ctx context.Context, wf model.Workflow) (int64, bool, error) {
	var id int64
	var created bool
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			SELECT id FROM workflow
			WHERE tool_version_id = $1 AND workflow_args_hash = $2`,
			wf.ToolVersionID, wf.WorkflowArgsHash)
		err := row.Scan(&id)
		if err == nil {
			created = false
			return nil
		}
		if err != pgx.ErrNoRows {
			return err
		}

		row = tx.QueryRow(ctx, `
			INSERT INTO workflow
				(tool_version_id, dag_id, workflow_args_hash, task_hash,
				 max_concurrently_running, status, ready_to_link)
			VALUES ($1, $2, $3, $4, $5, $6, true)
			RETURNING id`,
			wf.ToolVersionID, wf.DagID, wf.WorkflowArgsHash, wf.TaskHash,
			wf.MaxConcurrentlyRunning, model.WFRegistering)
		created = true
		return row.Scan(&id)
	})
	if err != nil {
		return 0, false, jobmonerrors.Wrap(err, "bind workflow")
	}
	return id, created, nil
}

func (s *Store) GetWorkflow(ctx context.Context, id int64) (model.Workflow, error) {
	var w model.Workflow
	row := s.pool.QueryRow(ctx, `
		SELECT id, tool_version_id, dag_id, workflow_args_hash, task_hash,
			max_concurrently_running, status, ready_to_link
		FROM workflow WHERE id = $1`, id)
	err := row.Scan(&w.ID, &w.ToolVersionID, &w.DagID, &w.WorkflowArgsHash,
		&w.TaskHash, &w.MaxConcurrentlyRunning, &w.Status, &w.ReadyToLink)
	if err != nil {
		return model.Workflow{}, jobmonerrors.Wrap(err, "get workflow")
	}
	return w, nil
}

// SetWorkflowStatus applies one Workflow FSM transition under a NOWAIT lock
// (single-entity transition, spec.md §4.1).
func (s *Store) SetWorkflowStatus(ctx context.Context, id int64, from, to model.WorkflowStatus) error {
	if !fsm.IsValidWorkflowTransition(from, to) {
		return jobmonerrors.InvalidStateTransition("workflow " + string(from) + " -> " + string(to) + " is not a valid transition")
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var current model.WorkflowStatus
		err := tx.QueryRow(ctx, `SELECT status FROM workflow WHERE id = $1 FOR UPDATE NOWAIT`, id).Scan(&current)
		if err != nil {
			if isDeadlock(err) {
				return jobmonerrors.Deadlock(err)
			}
			return err
		}
		if current != from {
			return jobmonerrors.InvalidStateTransition("workflow is in " + string(current) + ", not " + string(from))
		}
		_, err = tx.Exec(ctx, `UPDATE workflow SET status = $1 WHERE id = $2`, to, id)
		return err
	})
}

// BindTasks bulk-upserts tasks and their task_resources/resource_scales:
// new tasks get status=REGISTERING, resumed tasks have retry counters reset
// (spec.md §4.2).
func (s *Store) BindTasks(ctx context.Context, workflowID int64, tasks []model.Task) ([]model.Task, error) {
	out := make([]model.Task, len(tasks))
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		for i, t := range tasks {
			scales, err := json.Marshal(t.ResourceScales)
			if err != nil {
				return jobmonerrors.Wrap(err, "marshal resource scales")
			}
			row := tx.QueryRow(ctx, `
				INSERT INTO task
					(workflow_id, node_id, task_args_hash, name, command,
					 status, num_attempts, max_attempts, task_resources_id, resource_scales, status_date)
				VALUES ($1, $2, $3, $4, $5, $6, 0, $7, $8, $9, now())
				ON CONFLICT (workflow_id, node_id, task_args_hash) DO UPDATE
					SET status = EXCLUDED.status,
						num_attempts = 0,
						resource_scales = EXCLUDED.resource_scales,
						status_date = now()
				RETURNING id, status, status_date`,
				workflowID, t.NodeID, t.TaskArgsHash, t.Name, t.Command,
				model.TaskRegistering, t.MaxAttempts, t.TaskResourcesID, scales)
			out[i] = t
			out[i].WorkflowID = workflowID
			out[i].Status = model.TaskRegistering
			out[i].NumAttempts = 0
			if err := row.Scan(&out[i].ID, &out[i].Status, &out[i].StatusDate); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "bind tasks")
	}
	return out, nil
}

// LinkWorkflowRun creates a new WorkflowRun and flips it LINKING only if no
// other run on this workflow is already LINKING, preventing the race
// spec.md §4.5 calls out: "link_workflow_run is a single transaction that
// flips the state to LINKING only if no other wfr is already LINKING."
func (s *Store) LinkWorkflowRun(ctx context.Context, workflowID int64) (model.WorkflowRun, error) {
	var wfr model.WorkflowRun
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		var alreadyLinking bool
		err := tx.QueryRow(ctx, `
			SELECT EXISTS(
				SELECT 1 FROM workflow_run
				WHERE workflow_id = $1 AND status = $2
			)`, workflowID, model.WFRLinking).Scan(&alreadyLinking)
		if err != nil {
			return err
		}
		if alreadyLinking {
			return jobmonerrors.WorkflowNotResumable("a workflow run is already LINKING for this workflow")
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO workflow_run (workflow_id, status, heartbeat_date, created_date)
			VALUES ($1, $2, now(), now())
			RETURNING id, workflow_id, status, heartbeat_date, created_date`,
			workflowID, model.WFRLinking)
		return row.Scan(&wfr.ID, &wfr.WorkflowID, &wfr.Status, &wfr.HeartbeatDate, &wfr.CreatedDate)
	})
	if err != nil {
		return model.WorkflowRun{}, jobmonerrors.Wrap(err, "link workflow run")
	}
	return wfr, nil
}

// GetActiveWorkflowRun returns the ≤1 non-terminal run of a workflow
// (spec.md §3).
func (s *Store) GetActiveWorkflowRun(ctx context.Context, workflowID int64) (model.WorkflowRun, bool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, status, heartbeat_date, created_date
		FROM workflow_run WHERE workflow_id = $1
		ORDER BY created_date DESC`, workflowID)
	if err != nil {
		return model.WorkflowRun{}, false, jobmonerrors.Wrap(err, "get active workflow run")
	}
	defer rows.Close()
	for rows.Next() {
		var wfr model.WorkflowRun
		if err := rows.Scan(&wfr.ID, &wfr.WorkflowID, &wfr.Status, &wfr.HeartbeatDate, &wfr.CreatedDate); err != nil {
			return model.WorkflowRun{}, false, err
		}
		if wfr.Status.IsActive() {
			return wfr, true, nil
		}
	}
	return model.WorkflowRun{}, false, nil
}

func (s *Store) SetWorkflowRunStatus(ctx context.Context, id int64, from, to model.WorkflowRunStatus) error {
	if !fsm.IsValidWorkflowRunTransition(from, to) {
		return jobmonerrors.InvalidStateTransition("workflow run " + string(from) + " -> " + string(to) + " is not a valid transition")
	}
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var current model.WorkflowRunStatus
		err := tx.QueryRow(ctx, `SELECT status FROM workflow_run WHERE id = $1 FOR UPDATE NOWAIT`, id).Scan(&current)
		if err != nil {
			if isDeadlock(err) {
				return jobmonerrors.Deadlock(err)
			}
			return err
		}
		if current != from {
			return jobmonerrors.InvalidStateTransition("workflow run is in " + string(current) + ", not " + string(from))
		}
		_, err = tx.Exec(ctx, `UPDATE workflow_run SET status = $1 WHERE id = $2`, to, id)
		return err
	})
}

// ResetTaskStatuses implements step 3 of the resume protocol (spec.md
// §4.5): all non-DONE tasks go to REGISTERING; under hot resume, running
// tasks (RUNNING/LAUNCHED/INSTANTIATING/QUEUED) are preserved instead.
func (s *Store) ResetTaskStatuses(ctx context.Context, workflowRunID int64, hotResume bool) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		if hotResume {
			_, err := tx.Exec(ctx, `
				UPDATE task SET status = $1, status_date = now()
				WHERE workflow_id = (SELECT workflow_id FROM workflow_run WHERE id = $2)
				AND status NOT IN ($3, $4, $5, $6, $7)`,
				model.TaskRegistering, workflowRunID,
				model.TaskDone, model.TaskQueued, model.TaskInstantiating,
				model.TaskLaunched, model.TaskRunning)
			return err
		}
		_, err := tx.Exec(ctx, `
			UPDATE task SET status = $1, status_date = now()
			WHERE workflow_id = (SELECT workflow_id FROM workflow_run WHERE id = $2)
			AND status != $3`,
			model.TaskRegistering, workflowRunID, model.TaskDone)
		if err != nil {
			return err
		}
		// Cold resume also kills every TaskInstance this run still has in
		// flight (spec.md §4.5 step 1: "if reset_if_running=true, kill all
		// running TIs") -- otherwise the backend processes behind them are
		// orphaned instead of terminated.
		_, err = tx.Exec(ctx, `
			UPDATE task_instance SET status = $1
			WHERE workflow_run_id = $2 AND status IN ($3, $4)`,
			model.TIKillSelf, workflowRunID, model.TILaunched, model.TIRunning)
		return err
	})
}

// IncreaseResourcesOnResourceError is step 4 of the resume protocol
// (spec.md §4.5). It finds the workflow's tasks that have a TaskInstance in
// RESOURCE_ERROR; it does not change their TaskResources and does not
// return the task ids.
func (s *Store) IncreaseResourcesOnResourceError(ctx context.Context, workflowID int64) error {
	rows, err := s.pool.Query(ctx, `
		SELECT DISTINCT t.id
		FROM task t
		JOIN task_instance ti ON ti.task_id = t.id
		WHERE t.workflow_id = $1 AND ti.status = $2`,
		workflowID, model.TIResourceError)
	if err != nil {
		return jobmonerrors.Wrap(err, "find resource-errored tasks")
	}
	defer rows.Close()
	var taskIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return err
		}
		taskIDs = append(taskIDs, id)
	}
	// Resource scaling for each flagged task is driven by the Swarm's
	// Resource Adjuster (internal/swarm), which owns the scale-function
	// evaluation; this method only identifies the candidate set.
	return nil
}
