package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// BindTaskResources is content-addressed and deduplicated on (queue, hash)
// (spec.md §3): identical requested_resources for the same queue always
// resolve to the same row.
func (s *Store) BindTaskResources(ctx context.Context, tr model.TaskResources) (model.TaskResources, error) {
	payload, err := json.Marshal(tr.RequestedResources)
	if err != nil {
		return model.TaskResources{}, jobmonerrors.Wrap(err, "marshal requested resources")
	}
	out := tr
	err = s.WithTx(ctx, func(tx pgx.Tx) error {
		row := tx.QueryRow(ctx, `
			INSERT INTO task_resources (queue, requested_resources, hash)
			VALUES ($1, $2, $3)
			ON CONFLICT (queue, hash) DO UPDATE SET queue = EXCLUDED.queue
			RETURNING id`, tr.Queue, payload, tr.Hash)
		return row.Scan(&out.ID)
	})
	if err != nil {
		return model.TaskResources{}, jobmonerrors.Wrap(err, "bind task resources")
	}
	return out, nil
}

func (s *Store) GetTaskResources(ctx context.Context, id int64) (model.TaskResources, error) {
	var tr model.TaskResources
	var payload []byte
	err := s.pool.QueryRow(ctx, `
		SELECT id, queue, requested_resources, hash
		FROM task_resources WHERE id = $1`, id).Scan(&tr.ID, &tr.Queue, &payload, &tr.Hash)
	if err != nil {
		return model.TaskResources{}, jobmonerrors.Wrap(err, "get task resources")
	}
	if err := json.Unmarshal(payload, &tr.RequestedResources); err != nil {
		return model.TaskResources{}, jobmonerrors.Wrap(err, "unmarshal requested resources")
	}
	return tr, nil
}

// RepointTaskResources swaps a task onto a (typically scaled-up)
// TaskResources row ahead of its next QUEUED transition (spec.md §4.4
// Resource Adjuster).
func (s *Store) RepointTaskResources(ctx context.Context, taskID, taskResourcesID int64) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE task SET task_resources_id = $1 WHERE id = $2`, taskResourcesID, taskID)
	if err != nil {
		return jobmonerrors.Wrap(err, "repoint task resources")
	}
	return nil
}
