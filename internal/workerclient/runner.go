package workerclient

import (
	"context"
	"os/exec"
	"syscall"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
)

// Runner is the reference worker-node command: it wraps the execution of
// a Task's shell command with the log_running/log_done/log_error
// reporting and KILL_SELF watch every real TaskInstance must perform
// (spec.md §5, §6). cmd/jobmon-worker is a thin binary around this type,
// invoked as the command ClusterDriver.BuildWorkerNodeCommand produces.
type Runner struct {
	client            *Client
	heartbeatInterval time.Duration
}

// NewRunner builds a Runner that heartbeats (and watches for KILL_SELF)
// at heartbeatInterval while the task command executes.
func NewRunner(client *Client, heartbeatInterval time.Duration) *Runner {
	return &Runner{client: client, heartbeatInterval: heartbeatInterval}
}

// Run executes command via the shell, reporting its lifecycle to the
// server. It returns the command's error, if any, purely for the caller's
// own exit-code propagation — the authoritative outcome has already been
// reported to the server by the time Run returns.
func (r *Runner) Run(ctx context.Context, command string) error {
	log := jobmonlog.WithTaskID(r.client.taskInstanceID)

	if err := r.client.LogRunning(ctx); err != nil {
		log.Error().Err(err).Msg("log_running failed")
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		if logErr := r.client.LogUnknownError(ctx, "failed to start command: "+err.Error()); logErr != nil {
			log.Error().Err(logErr).Msg("log_unknown_error failed")
		}
		return err
	}

	killed := make(chan struct{})
	go r.client.WatchForKillSelf(runCtx, r.heartbeatInterval, func() {
		close(killed)
		cancel()
	})

	waitErr := cmd.Wait()
	wallclock := time.Since(start).Seconds()

	select {
	case <-killed:
		if err := r.client.LogKnownError(ctx, "K", "task instance received KILL_SELF"); err != nil {
			log.Error().Err(err).Msg("log_known_error failed")
		}
		return waitErr
	default:
	}

	if waitErr != nil {
		if err := r.client.LogUnknownError(ctx, "command exited with error: "+waitErr.Error()); err != nil {
			log.Error().Err(err).Msg("log_unknown_error failed")
		}
		return waitErr
	}

	maxRSS := int64(0)
	if state := cmd.ProcessState; state != nil {
		if rusage, ok := state.SysUsage().(*syscall.Rusage); ok {
			maxRSS = rusage.Maxrss * 1024 // Linux reports Maxrss in KB
		}
	}
	if err := r.client.LogDone(ctx, wallclock, maxRSS); err != nil {
		log.Error().Err(err).Msg("log_done failed")
	}
	return nil
}
