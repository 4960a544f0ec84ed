// Package workerclient is the contract a TaskInstance's worker-node
// command uses to report its own lifecycle back to the server: log_running,
// log_done, log_known_error/log_unknown_error, and periodic heartbeats
// that double as the KILL_SELF signal check (spec.md §5 "a task's
// TaskInstance can be KILL_SELF instructed; the worker checks this status
// at heartbeat time and self-terminates"). Grounded on internal/requester
// for the HTTP transport and on cuemby-warren's worker.go for the
// ticker-driven heartbeat-while-executing shape.
package workerclient

import (
	"context"
	"fmt"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/requester"
)

// Client is the WorkerClient contract, implemented over the shared
// requester.Client.
type Client struct {
	http           *requester.Client
	taskInstanceID int64
}

// New builds a Client bound to one TaskInstance.
func New(http *requester.Client, taskInstanceID int64) *Client {
	return &Client{http: http, taskInstanceID: taskInstanceID}
}

// LogRunning reports the TaskInstance has started executing.
func (c *Client) LogRunning(ctx context.Context) error {
	path := fmt.Sprintf("/task_instance/%d/log_running", c.taskInstanceID)
	return c.http.Do(ctx, "POST", path, nil, nil)
}

// LogDone reports successful completion with resource usage.
func (c *Client) LogDone(ctx context.Context, wallclockSecs float64, maxRSSBytes int64) error {
	path := fmt.Sprintf("/task_instance/%d/log_done", c.taskInstanceID)
	body := map[string]any{
		"wallclock_seconds": wallclockSecs,
		"max_rss_bytes":     maxRSSBytes,
	}
	return c.http.Do(ctx, "POST", path, body, nil)
}

// LogKnownError reports a classified failure (e.g. a non-zero exit code
// the worker itself can interpret).
func (c *Client) LogKnownError(ctx context.Context, status model.TaskInstanceStatus, description string) error {
	path := fmt.Sprintf("/task_instance/%d/log_known_error", c.taskInstanceID)
	body := map[string]any{"status": status, "description": description}
	return c.http.Do(ctx, "POST", path, body, nil)
}

// LogUnknownError reports a failure the worker can't classify further
// than "it failed".
func (c *Client) LogUnknownError(ctx context.Context, description string) error {
	path := fmt.Sprintf("/task_instance/%d/log_unknown_error", c.taskInstanceID)
	body := map[string]any{"description": description}
	return c.http.Do(ctx, "POST", path, body, nil)
}

type heartbeatResponse struct {
	Status model.TaskInstanceStatus `json:"status"`
}

// Heartbeat reports liveness and returns the server's view of this
// TaskInstance's status so the caller can notice a server-initiated
// KILL_SELF.
func (c *Client) Heartbeat(ctx context.Context, nextReportIncrement time.Duration) (model.TaskInstanceStatus, error) {
	path := fmt.Sprintf("/task_instance/%d/log_heartbeat", c.taskInstanceID)
	body := map[string]any{"next_report_increment": nextReportIncrement.Seconds()}
	var resp heartbeatResponse
	if err := c.http.Do(ctx, "POST", path, body, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// WatchForKillSelf polls Heartbeat at interval until ctx is done or the
// server reports TIKillSelf, at which point it invokes onKillSelf and
// returns. It is meant to run alongside the task command's execution.
func (c *Client) WatchForKillSelf(ctx context.Context, interval time.Duration, onKillSelf func()) {
	log := jobmonlog.WithTaskID(c.taskInstanceID)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status, err := c.Heartbeat(ctx, interval*2)
			if err != nil {
				log.Warn().Err(err).Msg("worker heartbeat failed")
				continue
			}
			if status == model.TIKillSelf {
				onKillSelf()
				return
			}
		}
	}
}
