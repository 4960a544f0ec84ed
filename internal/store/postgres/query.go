package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/fsm"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

// TaskUpdateStatuses is the user-facing bulk status override (e.g. "reset
// these tasks so the next resume retries them"), validated per-row against
// internal/fsm and applied under SKIP LOCKED so one locked task never blocks
// the rest of the batch (spec.md §4.1, §6 PUT /task/update_statuses).
func (s *Store) TaskUpdateStatuses(ctx context.Context, taskIDs []int64, to model.TaskStatus, username string) (store.TransitionResult, error) {
	var result store.TransitionResult
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, status FROM task WHERE id = ANY($1) FOR UPDATE SKIP LOCKED`, taskIDs)
		if err != nil {
			return err
		}
		seen := make(map[int64]bool)
		var toTransition []int64
		for rows.Next() {
			var id int64
			var from model.TaskStatus
			if err := rows.Scan(&id, &from); err != nil {
				rows.Close()
				return err
			}
			seen[id] = true
			if !fsm.IsValidTaskTransition(from, to) {
				result.InvalidSourceState = append(result.InvalidSourceState, id)
				continue
			}
			toTransition = append(toTransition, id)
		}
		rows.Close()
		for _, id := range taskIDs {
			if !seen[id] {
				result.Locked = append(result.Locked, id)
			}
		}
		if len(toTransition) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `
			UPDATE task SET status = $1, status_date = now(), num_attempts = 0
			WHERE id = ANY($2)`, to, toTransition)
		if err != nil {
			return err
		}
		result.Transitioned = toTransition
		return nil
	})
	if err != nil {
		return store.TransitionResult{}, jobmonerrors.Wrap(err, "task update statuses")
	}
	return result, nil
}

// TasksRecursiveUp walks edge.upstream_node_ids transitively from the nodes
// of taskIDs, returning every task bound to a reachable upstream node
// (spec.md §6: "resume from here" / "rerun downstream").
func (s *Store) TasksRecursiveUp(ctx context.Context, taskIDs []int64) ([]int64, error) {
	return s.tasksRecursive(ctx, taskIDs, true)
}

func (s *Store) TasksRecursiveDown(ctx context.Context, taskIDs []int64) ([]int64, error) {
	return s.tasksRecursive(ctx, taskIDs, false)
}

func (s *Store) tasksRecursive(ctx context.Context, taskIDs []int64, upstream bool) ([]int64, error) {
	column := "downstream_node_ids"
	if upstream {
		column = "upstream_node_ids"
	}
	query := `
		WITH RECURSIVE frontier(node_id) AS (
			SELECT n.id FROM node n
			JOIN task t ON t.node_id = n.id
			WHERE t.id = ANY($1)
			UNION
			SELECT unnest(e.` + column + `) FROM edge e
			JOIN frontier f ON e.node_id = f.node_id
		)
		SELECT DISTINCT t.id FROM task t JOIN frontier f ON t.node_id = f.node_id`
	rows, err := s.pool.Query(ctx, query, taskIDs)
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "tasks recursive traversal")
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, nil
}

// GetTaskStatuses lists a workflow's tasks, optionally filtered to those
// whose status_date changed since a checkpoint (spec.md §6, used by the CLI
// and the Workflow-Run Factory's resume check).
func (s *Store) GetTaskStatuses(ctx context.Context, workflowID int64, since *time.Time) ([]model.Task, error) {
	var rows pgx.Rows
	var err error
	if since != nil {
		rows, err = s.pool.Query(ctx, `
			SELECT id, workflow_id, node_id, task_args_hash, name, command, status,
				num_attempts, max_attempts, task_resources_id, resource_scales, status_date
			FROM task WHERE workflow_id = $1 AND status_date > $2`, workflowID, *since)
	} else {
		rows, err = s.pool.Query(ctx, `
			SELECT id, workflow_id, node_id, task_args_hash, name, command, status,
				num_attempts, max_attempts, task_resources_id, resource_scales, status_date
			FROM task WHERE workflow_id = $1`, workflowID)
	}
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "get task statuses")
	}
	defer rows.Close()
	var out []model.Task
	for rows.Next() {
		var t model.Task
		var scales []byte
		if err := rows.Scan(&t.ID, &t.WorkflowID, &t.NodeID, &t.TaskArgsHash, &t.Name,
			&t.Command, &t.Status, &t.NumAttempts, &t.MaxAttempts, &t.TaskResourcesID,
			&scales, &t.StatusDate); err != nil {
			return nil, err
		}
		if len(scales) > 0 {
			if err := json.Unmarshal(scales, &t.ResourceScales); err != nil {
				return nil, jobmonerrors.Wrap(err, "unmarshal resource scales")
			}
		}
		out = append(out, t)
	}
	return out, nil
}

// GetWorkflowDownstreamTasks maps each task id onto the task ids bound to
// the immediate downstream nodes of its own node, via edge.downstream_node_ids
// (spec.md §4.4: the Swarm seeds its upstream-readiness counters from this
// shape before its first Synchronizer pass).
func (s *Store) GetWorkflowDownstreamTasks(ctx context.Context, workflowID int64) (map[int64][]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, dt.id
		FROM task t
		JOIN node n ON n.id = t.node_id
		JOIN edge e ON e.node_id = n.id
		JOIN node dn ON dn.id = ANY(e.downstream_node_ids)
		JOIN task dt ON dt.node_id = dn.id AND dt.workflow_id = t.workflow_id
		WHERE t.workflow_id = $1`, workflowID)
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "get workflow downstream tasks")
	}
	defer rows.Close()
	out := make(map[int64][]int64)
	for rows.Next() {
		var taskID, downstreamTaskID int64
		if err := rows.Scan(&taskID, &downstreamTaskID); err != nil {
			return nil, err
		}
		out[taskID] = append(out[taskID], downstreamTaskID)
	}
	return out, nil
}

func (s *Store) GetWorkflowConcurrencyLimit(ctx context.Context, workflowID int64) (int, error) {
	var limit int
	err := s.pool.QueryRow(ctx, `
		SELECT max_concurrently_running FROM workflow WHERE id = $1`, workflowID).Scan(&limit)
	if err != nil {
		return 0, jobmonerrors.Wrap(err, "get workflow concurrency limit")
	}
	return limit, nil
}

// GetArrayConcurrencyLimits returns each Array's max_concurrently_running
// for a workflow, consulted by the Scheduler before queuing a batch
// (spec.md §4.4, §5).
func (s *Store) GetArrayConcurrencyLimits(ctx context.Context, workflowID int64) (map[int64]int, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT a.id, a.max_concurrently_running
		FROM task_array a
		JOIN node n ON n.template_version_id = a.template_version_id
		JOIN task t ON t.node_id = n.id
		WHERE t.workflow_id = $1
		GROUP BY a.id, a.max_concurrently_running`, workflowID)
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "get array concurrency limits")
	}
	defer rows.Close()
	out := make(map[int64]int)
	for rows.Next() {
		var id int64
		var limit int
		if err := rows.Scan(&id, &limit); err != nil {
			return nil, err
		}
		out[id] = limit
	}
	return out, nil
}

// GetTaskArrayIDs maps each of a workflow's tasks onto the Array its Node
// belongs to, so the Scheduler can group ready tasks by (array_id,
// task_resources_id) before calling QueueTaskBatch (spec.md §4.4 item 3).
func (s *Store) GetTaskArrayIDs(ctx context.Context, workflowID int64) (map[int64]int64, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT t.id, a.id
		FROM task t
		JOIN node n ON n.id = t.node_id
		JOIN task_array a ON a.template_version_id = n.template_version_id
		WHERE t.workflow_id = $1`, workflowID)
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "get task array ids")
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var taskID, arrayID int64
		if err := rows.Scan(&taskID, &arrayID); err != nil {
			return nil, err
		}
		out[taskID] = arrayID
	}
	return out, nil
}
