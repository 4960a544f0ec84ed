package postgres

import (
	"context"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
)

// AppendTaskInstanceErrorLog records a free-text error description against
// a TaskInstance, independent of the status transition it may accompany
// (spec.md §3 TaskInstanceErrorLog).
func (s *Store) AppendTaskInstanceErrorLog(ctx context.Context, taskInstanceID int64, description string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO task_instance_error_log (task_instance_id, error_time, description)
		VALUES ($1, now(), $2)`, taskInstanceID, description)
	if err != nil {
		return jobmonerrors.Wrap(err, "append task instance error log")
	}
	return nil
}
