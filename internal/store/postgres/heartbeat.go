package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/fsm"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// LogWorkflowRunHeartbeat bumps heartbeat_date and returns the current
// status so the Swarm's HeartbeatService can notice an externally-requested
// resume (COLD_RESUME/HOT_RESUME) without a second round trip (spec.md
// §4.4).
func (s *Store) LogWorkflowRunHeartbeat(ctx context.Context, id int64, nextReportIncrement time.Duration) (model.WorkflowRunStatus, error) {
	var status model.WorkflowRunStatus
	err := s.pool.QueryRow(ctx, `
		UPDATE workflow_run
		SET heartbeat_date = now() + $1::interval
		WHERE id = $2
		RETURNING status`,
		nextReportIncrement.String(), id).Scan(&status)
	if err != nil {
		return "", jobmonerrors.Wrap(err, "log workflow run heartbeat")
	}
	return status, nil
}

// LogTaskInstanceHeartbeat bumps report_by_date and returns the current
// status so the Distributor can notice a server-requested KILL_SELF
// (spec.md §4.3).
func (s *Store) LogTaskInstanceHeartbeat(ctx context.Context, id int64, nextReportIncrement time.Duration) (model.TaskInstanceStatus, error) {
	var status model.TaskInstanceStatus
	err := s.pool.QueryRow(ctx, `
		UPDATE task_instance
		SET report_by_date = now() + $1::interval
		WHERE id = $2
		RETURNING status`,
		nextReportIncrement.String(), id).Scan(&status)
	if err != nil {
		return "", jobmonerrors.Wrap(err, "log task instance heartbeat")
	}
	return status, nil
}

// RequestTriage finds launched/running TaskInstances whose report_by_date
// has elapsed and flips them to TRIAGING so the Distributor can classify
// the underlying cause (spec.md §4.3 "triages stuck/dead instances").
func (s *Store) RequestTriage(ctx context.Context) ([]model.TaskInstance, error) {
	var out []model.TaskInstance
	err := s.WithTx(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `
			SELECT id, task_id, workflow_run_id, batch_id, array_step_id,
				distributor_id, status
			FROM task_instance
			WHERE status IN ($1, $2) AND report_by_date < now()
			FOR UPDATE SKIP LOCKED`,
			model.TILaunched, model.TIRunning)
		if err != nil {
			return err
		}
		var ids []int64
		for rows.Next() {
			var ti model.TaskInstance
			if err := rows.Scan(&ti.ID, &ti.TaskID, &ti.WorkflowRunID, &ti.BatchID,
				&ti.ArrayStepID, &ti.DistributorID, &ti.Status); err != nil {
				rows.Close()
				return err
			}
			ti.Status = model.TITriaging
			out = append(out, ti)
			ids = append(ids, ti.ID)
		}
		rows.Close()
		if len(ids) == 0 {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE task_instance SET status = $1 WHERE id = ANY($2)`,
			model.TITriaging, ids)
		return err
	})
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "request triage")
	}
	return out, nil
}

// RequestKillSelf finds TaskInstances the server has flagged KILL_SELF
// (set by ResetTaskStatuses' cold-resume path) so the Distributor can
// force their termination via the driver (spec.md §4.3, §5 "the
// distributor's KILL_SELF handler forces termination via the driver if
// self-kill does not occur"). Rows are locked FOR UPDATE SKIP LOCKED, the
// same contention-avoidance RequestTriage uses, since more than one
// Distributor process may share a cluster.
func (s *Store) RequestKillSelf(ctx context.Context) ([]model.TaskInstance, error) {
	var out []model.TaskInstance
	rows, err := s.pool.Query(ctx, `
		SELECT id, task_id, workflow_run_id, batch_id, array_step_id,
			distributor_id, status
		FROM task_instance
		WHERE status = $1
		FOR UPDATE SKIP LOCKED`,
		model.TIKillSelf)
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "request kill self")
	}
	defer rows.Close()
	for rows.Next() {
		var ti model.TaskInstance
		if err := rows.Scan(&ti.ID, &ti.TaskID, &ti.WorkflowRunID, &ti.BatchID,
			&ti.ArrayStepID, &ti.DistributorID, &ti.Status); err != nil {
			return nil, jobmonerrors.Wrap(err, "request kill self")
		}
		out = append(out, ti)
	}
	if err := rows.Err(); err != nil {
		return nil, jobmonerrors.Wrap(err, "request kill self")
	}
	return out, nil
}

// LogKnownError records a classified TaskInstance failure, appends the
// error log, and derives the owning Task's next status via
// fsm.NextTaskStatusForInstance — ERROR_FATAL once attempts are exhausted,
// otherwise ADJUSTING_RESOURCES or REGISTERING for retry (spec.md §4.1).
func (s *Store) LogKnownError(ctx context.Context, taskInstanceID int64, status model.TaskInstanceStatus, description string) error {
	return s.WithTx(ctx, func(tx pgx.Tx) error {
		var taskID int64
		err := tx.QueryRow(ctx, `
			UPDATE task_instance SET status = $1 WHERE id = $2
			RETURNING task_id`, status, taskInstanceID).Scan(&taskID)
		if err != nil {
			return err
		}
		if description != "" {
			if _, err := tx.Exec(ctx, `
				INSERT INTO task_instance_error_log (task_instance_id, error_time, description)
				VALUES ($1, now(), $2)`, taskInstanceID, description); err != nil {
				return err
			}
		}

		var numAttempts, maxAttempts int
		if status.IsErrorLike() {
			err = tx.QueryRow(ctx, `
				UPDATE task SET num_attempts = num_attempts + 1 WHERE id = $1
				RETURNING num_attempts, max_attempts`, taskID).Scan(&numAttempts, &maxAttempts)
		} else {
			err = tx.QueryRow(ctx, `
				SELECT num_attempts, max_attempts FROM task WHERE id = $1`, taskID).Scan(&numAttempts, &maxAttempts)
		}
		if err != nil {
			return err
		}
		next, ok := fsm.NextTaskStatusForInstance(status, numAttempts, maxAttempts)
		if !ok {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE task SET status = $1, status_date = now() WHERE id = $2`, next, taskID)
		return err
	})
}

// LogUnknownError records a TaskInstance failure whose cause the
// ClusterDriver could not classify (spec.md §4.3 UNKNOWN_ERROR).
func (s *Store) LogUnknownError(ctx context.Context, taskInstanceID int64, description string) error {
	return s.LogKnownError(ctx, taskInstanceID, model.TIUnknownError, description)
}
