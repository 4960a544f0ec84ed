// Command jobmon-worker is the thin binary a ClusterDriver's submitted
// shell command actually invokes on the execution node: it wraps the
// task's real command with the log_running/log_done/log_error reporting
// and KILL_SELF watch of spec.md §5 via internal/workerclient.Runner.
// Grounded on cuemby-warren's cmd/warren "worker start" subcommand for the
// "thin flag-driven binary around one long-lived component" shape.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonconfig"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/requester"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/workerclient"
)

func main() {
	configFile := flag.String("config", "", "path to a config file (optional; env vars override)")
	taskInstanceID := flag.Int64("task-instance-id", 0, "the TaskInstance id this process executes on behalf of")
	flag.Parse()

	command := strings.Join(flag.Args(), " ")
	if *taskInstanceID == 0 || command == "" {
		fmt.Fprintln(os.Stderr, "usage: jobmon-worker -task-instance-id ID -- <command>")
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

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	http := requester.New(cfg.HTTP.ServiceURL, cfg.HTTP.RetriesTimeout)
	client := workerclient.New(http, *taskInstanceID)
	runner := workerclient.NewRunner(client, cfg.Heartbeat.Interval)

	if err := runner.Run(ctx, command); err != nil {
		os.Exit(1)
	}
}
