// Command jobmon-reaper runs the Reaper (C6, spec.md §4.6): a
// long-running sweeper that finds WorkflowRuns whose heartbeat has lapsed
// and forces them to a terminal status, independent of any one Swarm
// process's lifetime. Grounded on cuemby-warren's cmd/warren "cluster
// init" reconciler wiring (reconciler.NewReconciler(mgr).Start()/Stop())
// for the "construct, Start, wait on signal, Stop" shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonconfig"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/reaper"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store/postgres"
)

var Version = "dev"

func main() {
	configFile := flag.String("config", "", "path to a config file (optional; env vars override)")
	pollInterval := flag.Duration("poll-interval", time.Minute, "interval between reap sweeps")
	fixStatusStep := flag.Int("fix-status-step", 500, "FixStatusInconsistency chunk size")
	notifyChannel := flag.String("notify-channel", "", "Slack channel to notify on reap; empty disables notification")
	flag.Parse()

	cfg, err := jobmonconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	jobmonlog.Init(jobmonlog.Config{
		Level:      jobmonlog.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	log := jobmonlog.WithComponent("reaper")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := postgres.Open(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	var notifier reaper.Notifier
	if *notifyChannel != "" {
		if url := os.Getenv("JOBMON_SLACK_WEBHOOK_URL"); url != "" {
			notifier = reaper.NewSlackNotifier(map[string]string{*notifyChannel: url})
		}
	}

	r := reaper.New(reaper.Config{
		PollInterval:  *pollInterval,
		ServerVersion: Version,
		FixStatusStep: *fixStatusStep,
		NotifyChannel: *notifyChannel,
	}, st, notifier)

	r.Start()
	log.Info().Dur("poll_interval", *pollInterval).Msg("reaper started")

	<-ctx.Done()
	log.Info().Msg("shutting down")
	r.Stop()
}
