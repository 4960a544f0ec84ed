package swarm

import (
	"context"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
)

// runHeartbeat is the HeartbeatService: every Config.HeartbeatInterval it
// records a heartbeat through the Store with next_report_increment = interval * buffer and
// applies whatever WorkflowRunStatus divergence the server reports — e.g.
// an operator requested COLD_RESUME out of band (spec.md §4.4 item 1). The
// loop ticks at max(0.1s, interval/2) so it notices ctx cancellation
// promptly without busy-waiting.
func (s *Swarm) runHeartbeat(ctx context.Context) {
	log := jobmonlog.WithComponent("swarm.heartbeat")
	tick := s.cfg.HeartbeatInterval / 2
	if tick < 100*time.Millisecond {
		tick = 100 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	nextDue := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if now.Before(nextDue) {
				continue
			}
			nextDue = now.Add(s.cfg.HeartbeatInterval)
			increment := time.Duration(float64(s.cfg.HeartbeatInterval) * s.cfg.ReportByBuffer)
			status, err := s.store.LogWorkflowRunHeartbeat(ctx, s.wfRunID, increment)
			if err != nil {
				log.Warn().Err(err).Msg("heartbeat failed")
				continue
			}
			s.applyStateUpdate(StateUpdate{WorkflowRunStatus: status})
		}
	}
}
