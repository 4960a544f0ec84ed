// Command jobmon-distributor runs the Distributor (C4, spec.md §4.3): the
// per-cluster process that submits QUEUED batches to a ClusterDriver,
// triages stuck/dead TaskInstances, and reports their outcomes back to the
// State Store. Unlike the Factory and worker nodes, the Distributor talks
// to internal/store/postgres directly, in-process — spec.md §1 scopes the
// client/server HTTP boundary to external callers, not the roles that
// share the server's own deployment. Grounded on cuemby-warren's
// cmd/warren "worker start" subcommand for the
// construct-component/run/wait-on-signal shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver/dummy"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver/sequential"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/distributor"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/distributor/journal"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonconfig"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/leasecache"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store/postgres"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (optional; env vars override)")
	clusterID := flag.Int64("cluster-id", 1, "the cluster id this distributor serves")
	clusterName := flag.String("cluster-name", "sequential", "cluster driver to run: sequential or dummy")
	workflowRunID := flag.Int64("workflow-run-id", 0, "pin this distributor to one workflow run as a \"local\" instance (0 registers a cluster-wide \"shared\" instance)")
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
	log := jobmonlog.WithComponent("distributor")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := postgres.Open(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	driver := selectDriver(*clusterName)

	var lease *leasecache.Cache
	if cfg.Redis.URL != "" {
		lease, err = leasecache.New(cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to lease cache")
		}
		defer lease.Close()
	}

	var journ *journal.Journal
	if cfg.Distributor.JournalPath != "" {
		journ, err = journal.Open(cfg.Distributor.JournalPath)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open distributor journal")
		}
		defer journ.Close()
	}

	var pinnedRunID *int64
	if *workflowRunID != 0 {
		pinnedRunID = workflowRunID
	}

	d, err := distributor.New(ctx, distributor.Config{
		ClusterID:           *clusterID,
		WorkflowRunID:       pinnedRunID,
		PollInterval:        cfg.Distributor.PollInterval,
		HeartbeatIncrement:  cfg.Heartbeat.Interval,
		NextReportIncrement: cfg.Heartbeat.Interval * 2,
		LeaseCache:          lease,
		Journal:             journ,
	}, st, driver)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register distributor instance")
	}
	if err := distributor.SignalAlive(os.Stderr); err != nil {
		log.Error().Err(err).Msg("failed to signal ALIVE")
	}

	log.Info().Str("driver", driver.ClusterName()).Msg("distributor starting")
	if err := d.Run(ctx); err != nil {
		log.Error().Err(err).Msg("distributor stopped with error")
	}
	_ = distributor.SignalShutdown(os.Stderr)
}

func selectDriver(name string) clusterdriver.Driver {
	if name == "dummy" {
		return dummy.New(name)
	}
	return sequential.New(name)
}
