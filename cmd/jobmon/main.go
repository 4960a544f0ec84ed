// Command jobmon is the reference CLI client: it drives workflow bind/
// resume through internal/factory and exposes the read/write Server API
// operations of spec.md §4.2 a human operator needs (status queries, bulk
// task status updates, dependency walks). Grounded on cuemby-warren's
// cmd/warren cobra command tree (one noun subcommand per resource, a
// shared --manager-style connection flag, tabular Printf output) adapted
// from Warren's gRPC client.Client to internal/requester over plain HTTP.
package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/factory"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonconfig"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/requester"
)

var (
	Version = "dev"

	cfgFile     string
	serviceURL  string
	httpTimeout = jobmonconfig.Default().HTTP.RetriesTimeout
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "jobmon",
	Short:   "Jobmon workflow orchestration client",
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a config file (optional; env vars override)")
	rootCmd.PersistentFlags().StringVar(&serviceURL, "server", "", "Server API base URL (overrides config http.service_url)")

	rootCmd.AddCommand(workflowCmd, taskCmd, configCmd)
}

// httpClient resolves config (file/env/flag) and returns a requester.Client
// bound to the Server API.
func httpClient() (*requester.Client, error) {
	cfg, err := jobmonconfig.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	jobmonlog.Init(jobmonlog.Config{Level: jobmonlog.Level(cfg.Log.Level), JSONOutput: cfg.Log.JSON})

	url := cfg.HTTP.ServiceURL
	if serviceURL != "" {
		url = serviceURL
	}
	timeout := cfg.HTTP.RetriesTimeout
	if timeout == 0 {
		timeout = httpTimeout
	}
	return requester.New(url, timeout), nil
}

// --- workflow ---

var workflowCmd = &cobra.Command{
	Use:   "workflow",
	Short: "Inspect and manage workflows",
}

var workflowStatusCmd = &cobra.Command{
	Use:   "status WORKFLOW_ID",
	Short: "Show a workflow's aggregate task status counts",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		http, err := httpClient()
		if err != nil {
			return err
		}
		var tasks struct {
			Tasks []model.Task `json:"tasks"`
		}
		path := fmt.Sprintf("/workflow/%s/task_status", args[0])
		if err := http.Do(context.Background(), "GET", path, nil, &tasks); err != nil {
			return err
		}
		counts := make(map[model.TaskStatus]int)
		for _, t := range tasks.Tasks {
			counts[t.Status]++
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "STATUS\tCOUNT")
		for status, n := range counts {
			fmt.Fprintf(w, "%s\t%d\n", status.Label(), n)
		}
		return w.Flush()
	},
}

var workflowTasksCmd = &cobra.Command{
	Use:   "tasks WORKFLOW_ID",
	Short: "List a workflow's tasks",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		http, err := httpClient()
		if err != nil {
			return err
		}
		var resp struct {
			Tasks []model.Task `json:"tasks"`
		}
		path := fmt.Sprintf("/workflow/%s/task_status", args[0])
		if err := http.Do(context.Background(), "GET", path, nil, &resp); err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tSTATUS\tATTEMPTS")
		for _, t := range resp.Tasks {
			fmt.Fprintf(w, "%d\t%s\t%s\t%d/%d\n", t.ID, t.Name, t.Status.Label(), t.NumAttempts, t.MaxAttempts)
		}
		return w.Flush()
	},
}

var workflowResumeCmd = &cobra.Command{
	Use:   "resume WORKFLOW_ID",
	Short: "Resume a workflow through the five-step resume protocol",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		http, err := httpClient()
		if err != nil {
			return err
		}
		coldResume, _ := cmd.Flags().GetBool("cold")
		increaseResources, _ := cmd.Flags().GetBool("increase-resources")

		var workflowID int64
		if _, err := fmt.Sscanf(args[0], "%d", &workflowID); err != nil {
			return fmt.Errorf("invalid workflow id %q", args[0])
		}

		f := factory.New(http)
		wfrID, err := f.Resume(context.Background(), factory.ResumeRequest{
			WorkflowID:        workflowID,
			ResetIfRunning:    coldResume,
			IncreaseResources: increaseResources,
		}, Version)
		if err != nil {
			return err
		}
		fmt.Printf("resumed workflow %d as workflow_run %d\n", workflowID, wfrID)
		return nil
	},
}

var workflowResetCmd = &cobra.Command{
	Use:   "reset TASK_ID [TASK_ID...]",
	Short: "Reset tasks back to REGISTERING so the next resume retries them",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		http, err := httpClient()
		if err != nil {
			return err
		}
		taskIDs, err := parseInt64s(args)
		if err != nil {
			return err
		}
		body := map[string]any{
			"task_ids":  taskIDs,
			"to_status": string(model.TaskRegistering),
		}
		var resp struct {
			Transitioned       []int64 `json:"transitioned"`
			InvalidSourceState []int64 `json:"invalid_source_state"`
			Locked             []int64 `json:"locked"`
			NotFound           []int64 `json:"not_found"`
		}
		if err := http.Do(context.Background(), "POST", "/task/update_statuses", body, &resp); err != nil {
			return err
		}
		fmt.Printf("transitioned: %v\ninvalid: %v\nlocked: %v\nnot found: %v\n",
			resp.Transitioned, resp.InvalidSourceState, resp.Locked, resp.NotFound)
		return nil
	},
}

func init() {
	workflowResumeCmd.Flags().Bool("cold", false, "cold-resume: reset in-flight tasks instead of adopting them")
	workflowResumeCmd.Flags().Bool("increase-resources", false, "bump TaskResources for tasks that last failed with RESOURCE_ERROR")

	workflowCmd.AddCommand(workflowStatusCmd, workflowTasksCmd, workflowResumeCmd, workflowResetCmd)
}

// --- task ---

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and manage individual tasks",
}

var taskUpdateCmd = &cobra.Command{
	Use:   "update-status TO_STATUS TASK_ID [TASK_ID...]",
	Short: "Bulk-transition tasks to a new status",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		http, err := httpClient()
		if err != nil {
			return err
		}
		taskIDs, err := parseInt64s(args[1:])
		if err != nil {
			return err
		}
		body := map[string]any{"task_ids": taskIDs, "to_status": args[0]}
		var resp struct {
			Transitioned       []int64 `json:"transitioned"`
			InvalidSourceState []int64 `json:"invalid_source_state"`
			Locked             []int64 `json:"locked"`
			NotFound           []int64 `json:"not_found"`
		}
		if err := http.Do(context.Background(), "POST", "/task/update_statuses", body, &resp); err != nil {
			return err
		}
		fmt.Printf("transitioned: %v\ninvalid: %v\nlocked: %v\nnot found: %v\n",
			resp.Transitioned, resp.InvalidSourceState, resp.Locked, resp.NotFound)
		return nil
	},
}

var taskDependenciesCmd = &cobra.Command{
	Use:   "dependencies TASK_ID [TASK_ID...]",
	Short: "List every task reachable upstream from the given tasks",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		http, err := httpClient()
		if err != nil {
			return err
		}
		taskIDs, err := parseInt64s(args)
		if err != nil {
			return err
		}
		var resp struct {
			TaskIDs []int64 `json:"task_ids"`
		}
		if err := http.Do(context.Background(), "POST", "/task/recursive_up", map[string]any{"task_ids": taskIDs}, &resp); err != nil {
			return err
		}
		for _, id := range resp.TaskIDs {
			fmt.Println(id)
		}
		return nil
	},
}

func init() {
	taskCmd.AddCommand(taskUpdateCmd, taskDependenciesCmd)
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect resolved configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the layered configuration jobmon would use for this invocation",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := jobmonconfig.Load(cfgFile)
		if err != nil {
			return err
		}
		fmt.Printf("db.dsn: %s\n", redactDSN(cfg.DB.DSN))
		fmt.Printf("http.service_url: %s\n", cfg.HTTP.ServiceURL)
		fmt.Printf("http.retries_timeout: %s\n", cfg.HTTP.RetriesTimeout)
		fmt.Printf("heartbeat.interval: %s\n", cfg.Heartbeat.Interval)
		fmt.Printf("log.level: %s\n", cfg.Log.Level)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
}

func parseInt64s(args []string) ([]int64, error) {
	out := make([]int64, 0, len(args))
	for _, a := range args {
		var id int64
		if _, err := fmt.Sscanf(a, "%d", &id); err != nil {
			return nil, fmt.Errorf("invalid id %q", a)
		}
		out = append(out, id)
	}
	return out, nil
}

func redactDSN(dsn string) string {
	if dsn == "" {
		return ""
	}
	return "***"
}
