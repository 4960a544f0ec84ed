package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/fsm"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// LostWorkflowRuns returns active runs whose heartbeat has elapsed, the
// Reaper's sweep target (spec.md §4.6, C6).
func (s *Store) LostWorkflowRuns(ctx context.Context, serverVersion string) ([]model.WorkflowRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, workflow_id, status, heartbeat_date, jobmon_server_version, created_date
		FROM workflow_run
		WHERE heartbeat_date < now()
			AND status NOT IN ($1, $2, $3, $4)
			AND ($5 = '' OR jobmon_server_version = $5)`,
		model.WFRDone, model.WFRError, model.WFRTerminated, model.WFRAborted, serverVersion)
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "list lost workflow runs")
	}
	defer rows.Close()
	var out []model.WorkflowRun
	for rows.Next() {
		var wfr model.WorkflowRun
		if err := rows.Scan(&wfr.ID, &wfr.WorkflowID, &wfr.Status, &wfr.HeartbeatDate,
			&wfr.JobmonServerVersion, &wfr.CreatedDate); err != nil {
			return nil, err
		}
		out = append(out, wfr)
	}
	return out, nil
}

// ReapWorkflowRun applies the terminal transition fsm.Reap derives from the
// run's current status, cascading onto the owning Workflow (spec.md §4.6).
func (s *Store) ReapWorkflowRun(ctx context.Context, id int64) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var current model.WorkflowRunStatus
		var workflowID int64
		err := tx.QueryRow(ctx, `
			SELECT status, workflow_id FROM workflow_run WHERE id = $1 FOR UPDATE NOWAIT`, id).
			Scan(&current, &workflowID)
		if err != nil {
			if isDeadlock(err) {
				return jobmonerrors.Deadlock(err)
			}
			return err
		}
		decision, ok := fsm.Reap(current)
		if !ok {
			return nil
		}
		if _, err := tx.Exec(ctx, `UPDATE workflow_run SET status = $1 WHERE id = $2`,
			decision.WorkflowRunStatus, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE workflow SET status = $1 WHERE id = $2`,
			decision.WorkflowStatus, workflowID)
		return err
	})
}

// FixStatusInconsistency repairs tasks that claim a launched/running status
// but whose TaskInstances are all terminal (a status the Synchronizer
// missed reconciling), processing ids in [startID, startID+step) so a full
// sweep can be chunked across many calls (spec.md §4.6).
func (s *Store) FixStatusInconsistency(ctx context.Context, startID int64, step int) (int, error) {
	var fixed int
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT t.id
			FROM task t
			WHERE t.id >= $1 AND t.id < $1 + $2
				AND t.status IN ($3, $4, $5)
				AND NOT EXISTS (
					SELECT 1 FROM task_instance ti
					WHERE ti.task_id = t.id
						AND ti.status IN ($6, $7, $8)
				)
			FOR UPDATE SKIP LOCKED`,
			startID, step, model.TaskInstantiating, model.TaskLaunched, model.TaskRunning,
			model.TIQueued, model.TILaunched, model.TIRunning)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var id int64
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return err
			}
			ids = append(ids, id)
		}
		rows.Close()
		if len(ids) == 0 {
			return nil
		}
		tag, err := tx.Exec(ctx, `
			UPDATE task SET status = $1, status_date = now() WHERE id = ANY($2)`,
			model.TaskRegistering, ids)
		if err != nil {
			return err
		}
		fixed = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, jobmonerrors.Wrap(err, "fix status inconsistency")
	}
	return fixed, nil
}
