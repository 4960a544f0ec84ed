// Package dummy is a ClusterDriver that never actually runs anything: it
// mints a fake distributor id and records it as finished at once. Ported from jobmon_core/plugins/dummy/dummy_distributor.py,
// used for smoke-testing the Server/Swarm/Distributor wiring without a
// real backend.
package dummy

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"strconv"
	"sync"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonerrors"
)

// Driver is the dummy ClusterDriver. Every submitted id is recorded as
// finished at once; GetRemoteExitInfo reports UNKNOWN_ERROR with a fixed
// message for those ids, matching the Python reference's "whatever" exit
// info, and RemoteExitInfoNotAvailable for any other id.
type Driver struct {
	clusterName string

	mu   sync.Mutex
	done map[string]bool
}

func New(clusterName string) *Driver {
	return &Driver{clusterName: clusterName, done: make(map[string]bool)}
}

func (d *Driver) ClusterName() string { return d.clusterName }

func (d *Driver) SubmitToBatchDistributor(ctx context.Context, command, name string, resources clusterdriver.Resources) (string, error) {
	id := nextID()
	d.mu.Lock()
	d.done[id] = true
	d.mu.Unlock()
	return id, nil
}

func (d *Driver) SubmitArrayToBatchDistributor(ctx context.Context, command, name string, resources clusterdriver.Resources, length int) (map[int]string, error) {
	out := make(map[int]string, length)
	d.mu.Lock()
	defer d.mu.Unlock()
	for i := 0; i < length; i++ {
		id := nextID()
		d.done[id] = true
		out[i] = id
	}
	return out, nil
}

func (d *Driver) GetRemoteExitInfo(ctx context.Context, distributorID string) (string, string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.done[distributorID] {
		return "", "", jobmonerrors.RemoteExitInfoNotAvailable(distributorID)
	}
	return "UNKNOWN_ERROR", "whatever", nil
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

func nextID() string {
	var b [8]byte
	_, _ = rand.Read(b[:])
	return strconv.FormatUint(binary.BigEndian.Uint64(b[:])%1_000_000, 10)
}

var _ clusterdriver.Driver = (*Driver)(nil)
