package postgres

import (
	"context"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

// QueueTaskBatch atomically transitions a set of tasks from
// REGISTERING/ADJUSTING_RESOURCES -> QUEUED using SKIP LOCKED (a bulk
// transition, spec.md §4.1), creates one Batch per distinct
// (array_id, task_resources_id) pairing among the candidates, and inserts
// one TaskInstance per task with a dense array_step_id sorted by task_id
// (spec.md §4.2, §8 "every TaskInstance in a batch has distinct
// array_step_id ∈ [0, |b|)"). Callers are expected to have already grouped
// taskIDs by (array_id, task_resources_id) — see internal/swarm's
// Scheduler — so this call always yields exactly one Batch.
func (s *Store) QueueTaskBatch(ctx context.Context, workflowRunID int64, taskIDs []int64, distributorInstanceID int64) (model.Batch, []model.TaskInstance, store.TransitionResult, error) {
	var batch model.Batch
	var instances []model.TaskInstance
	var result store.TransitionResult

	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, status, task_resources_id
			FROM task
			WHERE id = ANY($1)
			FOR UPDATE SKIP LOCKED`, taskIDs)
		if err != nil {
			return err
		}
		type candidate struct {
			id              int64
			taskResourcesID int64
		}
		var candidates []candidate
		seen := make(map[int64]bool)
		for rows.Next() {
			var id, taskResourcesID int64
			var status model.TaskStatus
			if err := rows.Scan(&id, &status, &taskResourcesID); err != nil {
				rows.Close()
				return err
			}
			seen[id] = true
			if status != model.TaskRegistering && status != model.TaskAdjustingResources {
				result.InvalidSourceState = append(result.InvalidSourceState, id)
				continue
			}
			candidates = append(candidates, candidate{id, taskResourcesID})
		}
		rows.Close()
		for _, id := range taskIDs {
			if !seen[id] {
				result.Locked = append(result.Locked, id)
			}
		}
		if len(candidates) == 0 {
			return nil
		}

		var arrayID int64
		var arrayName string
		err = tx.QueryRow(ctx, `
			SELECT a.id, a.name FROM task_array a
			JOIN node n ON n.template_version_id = a.template_version_id
			JOIN task t ON t.node_id = n.id
			WHERE t.id = $1 LIMIT 1`, candidates[0].id).Scan(&arrayID, &arrayName)
		if err != nil {
			return err
		}

		row := tx.QueryRow(ctx, `
			INSERT INTO batch (array_id, array_name, task_resources_id)
			VALUES ($1, $2, $3) RETURNING id, array_id, array_name, task_resources_id`,
			arrayID, arrayName, candidates[0].taskResourcesID)
		if err := row.Scan(&batch.ID, &batch.ArrayID, &batch.ArrayName, &batch.TaskResourcesID); err != nil {
			return err
		}

		sort.Slice(candidates, func(i, j int) bool { return candidates[i].id < candidates[j].id })

		for stepID, c := range candidates {
			_, err := tx.Exec(ctx, `
				UPDATE task SET status = $1, status_date = now() WHERE id = $2`,
				model.TaskQueued, c.id)
			if err != nil {
				return err
			}
			var ti model.TaskInstance
			ti.TaskID = c.id
			ti.WorkflowRunID = workflowRunID
			ti.BatchID = batch.ID
			ti.ArrayStepID = stepID
			ti.Status = model.TIQueued
			row := tx.QueryRow(ctx, `
				INSERT INTO task_instance
					(task_id, workflow_run_id, batch_id, array_step_id, status, report_by_date)
				VALUES ($1, $2, $3, $4, $5, now())
				RETURNING id, report_by_date`,
				ti.TaskID, ti.WorkflowRunID, ti.BatchID, ti.ArrayStepID, ti.Status)
			if err := row.Scan(&ti.ID, &ti.ReportByDate); err != nil {
				return err
			}
			instances = append(instances, ti)
			result.Transitioned = append(result.Transitioned, c.id)
		}
		return nil
	})
	if err != nil {
		return model.Batch{}, nil, store.TransitionResult{}, jobmonerrors.Wrap(err, "queue task batch")
	}
	return batch, instances, result, nil
}

// TransitionBatchToLaunched bulk-transitions Task->LAUNCHED and
// TaskInstance->LAUNCHED with a fresh report_by_date (spec.md §4.2).
func (s *Store) TransitionBatchToLaunched(ctx context.Context, batchID int64, nextReportIncrement time.Duration) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			UPDATE task_instance
			SET status = $1, report_by_date = now() + $2::interval
			WHERE batch_id = $3`,
			model.TILaunched, nextReportIncrement.String(), batchID)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `
			UPDATE task SET status = $1, status_date = now()
			WHERE id IN (SELECT task_id FROM task_instance WHERE batch_id = $2)`,
			model.TaskLaunched, batchID)
		return err
	})
}

// ListQueuedBatches returns every Batch whose TaskInstances are still
// QUEUED (not yet handed to a ClusterDriver), the Distributor's submission
// worklist (spec.md §4.3).
func (s *Store) ListQueuedBatches(ctx context.Context) ([]store.BatchWithInstances, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT b.id, b.array_id, b.array_name, b.task_resources_id,
			ti.id, ti.task_id, ti.workflow_run_id, ti.batch_id, ti.array_step_id,
			ti.distributor_id, ti.status, ti.report_by_date
		FROM batch b
		JOIN task_instance ti ON ti.batch_id = b.id
		WHERE ti.status = $1
		ORDER BY b.id, ti.array_step_id`, model.TIQueued)
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "list queued batches")
	}
	defer rows.Close()

	byBatch := make(map[int64]*store.BatchWithInstances)
	var order []int64
	for rows.Next() {
		var b model.Batch
		var ti model.TaskInstance
		if err := rows.Scan(&b.ID, &b.ArrayID, &b.ArrayName, &b.TaskResourcesID,
			&ti.ID, &ti.TaskID, &ti.WorkflowRunID, &ti.BatchID, &ti.ArrayStepID,
			&ti.DistributorID, &ti.Status, &ti.ReportByDate); err != nil {
			return nil, err
		}
		entry, ok := byBatch[b.ID]
		if !ok {
			entry = &store.BatchWithInstances{Batch: b}
			byBatch[b.ID] = entry
			order = append(order, b.ID)
		}
		entry.Instances = append(entry.Instances, ti)
	}

	out := make([]store.BatchWithInstances, 0, len(order))
	for _, id := range order {
		out = append(out, *byBatch[id])
	}
	return out, nil
}

// LogDistributorIDs records backend-assigned opaque ids for each TI in a
// batch; callers chunk at 1000 (SPEC_FULL.md §D.3) to bound lock-hold time.
func (s *Store) LogDistributorIDs(ctx context.Context, batchID int64, stepToDistributorID map[int]string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		for step, distributorID := range stepToDistributorID {
			_, err := tx.Exec(ctx, `
				UPDATE task_instance SET distributor_id = $1
				WHERE batch_id = $2 AND array_step_id = $3`,
				distributorID, batchID, step)
			if err != nil {
				return err
			}
		}
		return nil
	})
}
