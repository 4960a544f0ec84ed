// Package reaper is the Reaper (C6): a standalone long-running sweeper
// that finds WorkflowRuns whose heartbeat has lapsed and forces them to a
// terminal status (spec.md §4.6). Grounded on cuemby-warren's
// pkg/reconciler.Reconciler for the ticker-driven, mutex-serialized sweep
// loop and Start/Stop lifecycle; generalized from node/container health
// checks to workflow-run liveness.
package reaper

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

// Notifier posts a message to an external channel — the spec's
// "contract: post(channel, message)" (spec.md §4.6).
type Notifier interface {
	Post(ctx context.Context, channel, message string) error
}

// Config is the tunable behavior of one Reaper instance.
type Config struct {
	PollInterval    time.Duration
	ServerVersion   string // only reap runs whose server version matches; "" matches all
	FixStatusStep   int    // FixStatusInconsistency chunk size
	NotifyChannel   string // empty disables notification
}

// Reaper owns one sweep loop.
type Reaper struct {
	cfg      Config
	store    store.Store
	notifier Notifier
	logger   zerolog.Logger

	mu        sync.Mutex
	stopCh    chan struct{}
	nextFixID int64
}

// New constructs a Reaper. notifier may be nil, disabling notifications
// regardless of Config.NotifyChannel.
func New(cfg Config, st store.Store, notifier Notifier) *Reaper {
	return &Reaper{
		cfg:       cfg,
		store:     st,
		notifier:  notifier,
		logger:    jobmonlog.WithComponent("reaper"),
		stopCh:    make(chan struct{}),
		nextFixID: 1,
	}
}

// Start begins the sweep loop in a new goroutine.
func (r *Reaper) Start() {
	go r.run()
}

// Stop signals the sweep loop to exit; it does not wait for it to join.
func (r *Reaper) Stop() {
	close(r.stopCh)
}

func (r *Reaper) run() {
	ticker := time.NewTicker(r.cfg.PollInterval)
	defer ticker.Stop()

	r.logger.Info().Msg("reaper started")

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), r.cfg.PollInterval)
			if err := r.sweep(ctx); err != nil {
				r.logger.Error().Err(err).Msg("sweep cycle failed")
			}
			cancel()
		case <-r.stopCh:
			r.logger.Info().Msg("reaper stopped")
			return
		}
	}
}

// sweep performs one reap cycle: reap every lost WorkflowRun, then advance
// the status-inconsistency repair cursor by one chunk (spec.md §4.6).
func (r *Reaper) sweep(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.reapLostRuns(ctx); err != nil {
		r.logger.Error().Err(err).Msg("reap lost workflow runs failed")
	}
	if err := r.fixStatusInconsistencyTick(ctx); err != nil {
		r.logger.Error().Err(err).Msg("fix status inconsistency failed")
	}
	return nil
}

func (r *Reaper) reapLostRuns(ctx context.Context) error {
	lost, err := r.store.LostWorkflowRuns(ctx, r.cfg.ServerVersion)
	if err != nil {
		return err
	}
	for _, wfr := range lost {
		if err := r.store.ReapWorkflowRun(ctx, wfr.ID); err != nil {
			r.logger.Error().Err(err).Int64("workflow_run_id", wfr.ID).Msg("reap workflow run failed")
			continue
		}
		r.logger.Warn().
			Int64("workflow_run_id", wfr.ID).
			Int64("workflow_id", wfr.WorkflowID).
			Msg("reaped lost workflow run")
		r.notify(ctx, wfr.ID, wfr.WorkflowID)
	}
	return nil
}

func (r *Reaper) notify(ctx context.Context, workflowRunID, workflowID int64) {
	if r.notifier == nil || r.cfg.NotifyChannel == "" {
		return
	}
	msg := "jobmon: workflow_run " + strconv.FormatInt(workflowRunID, 10) +
		" (workflow " + strconv.FormatInt(workflowID, 10) + ") reaped for lost heartbeat"
	if err := r.notifier.Post(ctx, r.cfg.NotifyChannel, msg); err != nil {
		r.logger.Error().Err(err).Msg("post reap notification failed")
	}
}

// fixStatusInconsistencyTick repairs one chunk of [nextFixID,
// nextFixID+step) each sweep, so a full table sweep is spread across many
// cycles instead of locking a large range at once (spec.md §4.6).
func (r *Reaper) fixStatusInconsistencyTick(ctx context.Context) error {
	step := r.cfg.FixStatusStep
	if step <= 0 {
		step = 1000
	}
	fixed, err := r.store.FixStatusInconsistency(ctx, r.nextFixID, step)
	if err != nil {
		return err
	}
	if fixed > 0 {
		r.logger.Info().Int("fixed", fixed).Int64("start_id", r.nextFixID).Msg("fixed status inconsistency")
	}
	r.nextFixID += int64(step)
	return nil
}
