package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// RegisterDistributorInstance records a newly-started Distributor process
// (spec.md §3 DistributorInstance, §9 startup handshake). workflowRunID is
// nil for a cluster-wide distributor not yet bound to a specific run.
func (s *Store) RegisterDistributorInstance(ctx context.Context, clusterID int64, workflowRunID *int64) (model.DistributorInstance, error) {
	var di model.DistributorInstance
	err := s.pool.QueryRow(ctx, `
		INSERT INTO distributor_instance (cluster_id, workflow_run_id, report_by_date, expunged)
		VALUES ($1, $2, now(), false)
		RETURNING id, cluster_id, workflow_run_id, report_by_date, expunged`,
		clusterID, workflowRunID).Scan(&di.ID, &di.ClusterID, &di.WorkflowRunID, &di.ReportByDate, &di.Expunged)
	if err != nil {
		return model.DistributorInstance{}, jobmonerrors.Wrap(err, "register distributor instance")
	}
	return di, nil
}

// SelectDistributorInstance returns the live (non-expunged, not stale)
// DistributorInstance for a (cluster, workflow run) pair. Swarm.Run
// resolves it once and passes its id to every QueueTaskBatch call
// (spec.md §4.2).
// A distributor pinned to workflowRunID (a "local" instance) is preferred;
// a cluster-wide one (workflow_run_id IS NULL, "shared") is the fallback.
func (s *Store) SelectDistributorInstance(ctx context.Context, clusterID int64, workflowRunID int64) (model.DistributorInstance, error) {
	var di model.DistributorInstance
	err := s.pool.QueryRow(ctx, `
		SELECT id, cluster_id, workflow_run_id, report_by_date, expunged
		FROM distributor_instance
		WHERE cluster_id = $1 AND (workflow_run_id = $2 OR workflow_run_id IS NULL)
			AND expunged = false AND report_by_date > now()
		ORDER BY workflow_run_id IS NULL, id DESC LIMIT 1`, clusterID, workflowRunID).
		Scan(&di.ID, &di.ClusterID, &di.WorkflowRunID, &di.ReportByDate, &di.Expunged)
	if err != nil {
		if err == pgx.ErrNoRows {
			return model.DistributorInstance{}, jobmonerrors.NoActiveDistributor(clusterID)
		}
		return model.DistributorInstance{}, jobmonerrors.Wrap(err, "select distributor instance")
	}
	return di, nil
}

func (s *Store) HeartbeatDistributorInstance(ctx context.Context, id int64, nextReportIncrement time.Duration) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE distributor_instance
		SET report_by_date = now() + $1::interval
		WHERE id = $2 AND expunged = false`,
		nextReportIncrement.String(), id)
	if err != nil {
		return jobmonerrors.Wrap(err, "heartbeat distributor instance")
	}
	return nil
}

// ExpungeStaleDistributorInstances marks any instance on clusterID whose
// report_by_date has elapsed as expunged, returning their ids so the caller
// (Reaper or Swarm) can reassign their in-flight TaskInstances (spec.md
// §4.3 Liveness, §4.6).
func (s *Store) ExpungeStaleDistributorInstances(ctx context.Context, clusterID int64) ([]int64, error) {
	rows, err := s.pool.Query(ctx, `
		UPDATE distributor_instance
		SET expunged = true
		WHERE cluster_id = $1 AND expunged = false AND report_by_date < now()
		RETURNING id`, clusterID)
	if err != nil {
		return nil, jobmonerrors.Wrap(err, "expunge stale distributor instances")
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
