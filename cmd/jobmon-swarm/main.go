// Command jobmon-swarm runs one Swarm Orchestrator (C5, spec.md §4.4): a
// single process owning one WorkflowRun's DAG-readiness view from bind
// through terminal status. The workflow-authoring client (internal/factory,
// the CLI) starts one of these per run after link_workflow_run succeeds.
// Like the Distributor, it talks to internal/store/postgres directly
// in-process rather than through the Server API (spec.md §1's client/
// server HTTP boundary covers the Factory and worker nodes, not the
// roles sharing the server's own deployment).
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/events"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonconfig"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store/postgres"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/swarm"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (optional; env vars override)")
	workflowID := flag.Int64("workflow-id", 0, "the Workflow id to orchestrate")
	workflowRunID := flag.Int64("workflow-run-id", 0, "the active WorkflowRun id returned by link_workflow_run")
	clusterID := flag.Int64("cluster-id", 1, "the cluster id tasks in this run should be queued against")
	flag.Parse()

	if *workflowID == 0 || *workflowRunID == 0 {
		fmt.Fprintln(os.Stderr, "usage: jobmon-swarm -workflow-id ID -workflow-run-id ID")
		os.Exit(2)
	}

	cfg, err := jobmonconfig.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	jobmonlog.Init(jobmonlog.Config{
		Level:      jobmonlog.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	log := jobmonlog.WithWorkflowRunID(*workflowRunID)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	st, err := postgres.Open(ctx, cfg.DB.DSN)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}
	defer st.Close()

	initialTasks, err := st.GetTaskStatuses(ctx, *workflowID, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load initial task statuses")
	}
	downstream, err := st.GetWorkflowDownstreamTasks(ctx, *workflowID)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load task dependency graph")
	}

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	go func() {
		for ev := range broker.Subscribe() {
			log.Info().Str("event", string(ev.Type)).Str("detail", ev.Message).Msg("workflow run event")
		}
	}()

	sw := swarm.New(swarm.Config{
		ClusterID:         *clusterID,
		HeartbeatInterval: cfg.Heartbeat.Interval,
		ReportByBuffer:    cfg.Heartbeat.ReportByBuffer,
		SyncInterval:      cfg.Heartbeat.Interval,
		SchedulerInterval: cfg.Distributor.PollInterval,
		MaxBatchSize:      cfg.Distributor.MaxBatchSize,
		Events:            broker,
	}, st, *workflowID, *workflowRunID, initialTasks, downstream)

	log.Info().Int("tasks", len(initialTasks)).Msg("swarm starting")
	status, err := sw.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("swarm run failed")
		os.Exit(1)
	}
	log.Info().Str("status", string(status)).Msg("swarm finished")
}
