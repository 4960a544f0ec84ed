// Package sequential is a ClusterDriver that runs each submitted command as
// a real child process, one at a time, blocking the caller until it exits.
// Ported from jobmon_core/plugins/sequential/seq_distributor.py; useful for
// single-node deployments and integration tests where a dummy's fake
// completion isn't enough.
package sequential

import (
	"bytes"
	"context"
	"os/exec"
	"strconv"
	"sync"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
)

// exitCodeKillSelf is the Python reference's "job was told to kill itself"
// marker exit code (jobmon_core/plugins/sequential/seq_distributor.py),
// surfaced verbatim as GetRemoteExitInfo's code so the distributor can
// recognize it (spec.md:178: "Exit code 199 → UNKNOWN_ERROR").
const exitCodeKillSelf = 199

type exitInfo struct {
	exitCode int
	stderr   string
}

// Driver is the sequential ClusterDriver.
type Driver struct {
	clusterName string

	mu       sync.Mutex
	nextID   int64
	exitInfo map[string]exitInfo
}

func New(clusterName string) *Driver {
	return &Driver{clusterName: clusterName, nextID: 1, exitInfo: make(map[string]exitInfo)}
}

func (d *Driver) ClusterName() string { return d.clusterName }

// SubmitToBatchDistributor runs command via /bin/sh -c, blocking until it
// exits, and records the exit code for later retrieval via
// GetRemoteExitInfo.
func (d *Driver) SubmitToBatchDistributor(ctx context.Context, command, name string, resources clusterdriver.Resources) (string, error) {
	d.mu.Lock()
	id := strconv.FormatInt(d.nextID, 10)
	d.nextID++
	d.mu.Unlock()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	err := cmd.Run()
	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	d.mu.Lock()
	d.exitInfo[id] = exitInfo{exitCode: exitCode, stderr: stderr.String()}
	d.mu.Unlock()
	return id, nil
}

// SubmitArrayToBatchDistributor is unsupported: the sequential driver has
// no native batch-array execution path.
func (d *Driver) SubmitArrayToBatchDistributor(ctx context.Context, command, name string, resources clusterdriver.Resources, length int) (map[int]string, error) {
	return nil, clusterdriver.ErrArraySubmitUnsupported
}

func (d *Driver) GetRemoteExitInfo(ctx context.Context, distributorID string) (string, string, error) {
	d.mu.Lock()
	info, ok := d.exitInfo[distributorID]
	d.mu.Unlock()
	if !ok {
		return "", "", jobmonerrors.RemoteExitInfoNotAvailable(distributorID)
	}
	if info.exitCode == 0 {
		return "DONE", "", nil
	}
	if info.exitCode == exitCodeKillSelf {
		return strconv.Itoa(exitCodeKillSelf), info.stderr, nil
	}
	return "UNKNOWN_ERROR", "exit code " + strconv.Itoa(info.exitCode) + ": " + info.stderr, nil
}

func (d *Driver) GetQueueingErrors(ctx context.Context, distributorIDs []string) (map[string]string, error) {
	return map[string]string{}, nil
}

func (d *Driver) GetSubmittedOrRunning(ctx context.Context, distributorIDs []string) (map[string]bool, error) {
	return map[string]bool{}, nil
}

func (d *Driver) TerminateTaskInstances(ctx context.Context, distributorIDs []string) error {
	return nil
}

func (d *Driver) BuildWorkerNodeCommand(taskInstanceID int64, arrayID *int64, arrayStepID *int) string {
	return "worker_node_entry_point --task-instance-id " + strconv.FormatInt(taskInstanceID, 10)
}

func (d *Driver) ValidateResources(queue string, resources clusterdriver.Resources) (bool, string) {
	return true, ""
}

func (d *Driver) CoerceResources(queue string, resources clusterdriver.Resources) clusterdriver.Resources {
	return resources
}

var _ clusterdriver.Driver = (*Driver)(nil)
