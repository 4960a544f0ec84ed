package distributor

import (
	"context"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

// fakeStore is a hand-rolled store.Store double. A method it does not
// implement falls through to the nil embedded store.Store and panics; the
// handful the Distributor exercises are backed by plain fields so tests can set up state and
// assert on it directly instead of recording expectations.
type fakeStore struct {
	store.Store

	registeredClusterID int64
	instanceID          int64

	heartbeats []int64

	queuedBatches []store.BatchWithInstances
	taskResources map[int64]model.TaskResources

	loggedDistributorIDs map[int64]map[int]string
	launchedBatches      []int64
	unknownErrors        []int64
	knownErrors          []struct {
		taskInstanceID int64
		status         model.TaskInstanceStatus
		description    string
	}

	triageQueue   []model.TaskInstance
	killSelfQueue []model.TaskInstance
}

func (f *fakeStore) RegisterDistributorInstance(ctx context.Context, clusterID int64, workflowRunID *int64) (model.DistributorInstance, error) {
	f.registeredClusterID = clusterID
	return model.DistributorInstance{ID: f.instanceID, ClusterID: clusterID}, nil
}

func (f *fakeStore) HeartbeatDistributorInstance(ctx context.Context, id int64, nextReportIncrement time.Duration) error {
	f.heartbeats = append(f.heartbeats, id)
	return nil
}

func (f *fakeStore) ListQueuedBatches(ctx context.Context) ([]store.BatchWithInstances, error) {
	return f.queuedBatches, nil
}

func (f *fakeStore) GetTaskResources(ctx context.Context, id int64) (model.TaskResources, error) {
	return f.taskResources[id], nil
}

func (f *fakeStore) LogDistributorIDs(ctx context.Context, batchID int64, stepToDistributorID map[int]string) error {
	if f.loggedDistributorIDs == nil {
		f.loggedDistributorIDs = make(map[int64]map[int]string)
	}
	f.loggedDistributorIDs[batchID] = stepToDistributorID
	return nil
}

func (f *fakeStore) TransitionBatchToLaunched(ctx context.Context, batchID int64, nextReportIncrement time.Duration) error {
	f.launchedBatches = append(f.launchedBatches, batchID)
	return nil
}

func (f *fakeStore) LogUnknownError(ctx context.Context, taskInstanceID int64, description string) error {
	f.unknownErrors = append(f.unknownErrors, taskInstanceID)
	return nil
}

func (f *fakeStore) LogKnownError(ctx context.Context, taskInstanceID int64, status model.TaskInstanceStatus, description string) error {
	f.knownErrors = append(f.knownErrors, struct {
		taskInstanceID int64
		status         model.TaskInstanceStatus
		description    string
	}{taskInstanceID, status, description})
	return nil
}

func (f *fakeStore) RequestTriage(ctx context.Context) ([]model.TaskInstance, error) {
	return f.triageQueue, nil
}

func (f *fakeStore) RequestKillSelf(ctx context.Context) ([]model.TaskInstance, error) {
	return f.killSelfQueue, nil
}

func (f *fakeStore) Close() error { return nil }

// fakeDriver is a clusterdriver.Driver double whose behavior is entirely
// field-driven: tests set the outcome they want and inspect what was
// submitted.
type fakeDriver struct {
	clusterdriver.Driver

	supportsArray bool
	exitCode      string
	exitMessage   string
	exitErr       error

	arraySubmissions      []string
	individualSubmissions []string
	terminated            [][]string
	nextID                int
}

func (f *fakeDriver) ClusterName() string { return "fake" }

func (f *fakeDriver) SubmitToBatchDistributor(ctx context.Context, command, name string, resources clusterdriver.Resources) (string, error) {
	f.individualSubmissions = append(f.individualSubmissions, command)
	f.nextID++
	return "d-" + string(rune('a'+f.nextID)), nil
}

func (f *fakeDriver) SubmitArrayToBatchDistributor(ctx context.Context, command, name string, resources clusterdriver.Resources, length int) (map[int]string, error) {
	if !f.supportsArray {
		return nil, clusterdriver.ErrArraySubmitUnsupported
	}
	f.arraySubmissions = append(f.arraySubmissions, command)
	out := make(map[int]string, length)
	for i := 0; i < length; i++ {
		f.nextID++
		out[i] = "d-" + string(rune('a'+f.nextID))
	}
	return out, nil
}

func (f *fakeDriver) GetRemoteExitInfo(ctx context.Context, distributorID string) (string, string, error) {
	return f.exitCode, f.exitMessage, f.exitErr
}

func (f *fakeDriver) TerminateTaskInstances(ctx context.Context, distributorIDs []string) error {
	f.terminated = append(f.terminated, distributorIDs)
	return nil
}

func (f *fakeDriver) BuildWorkerNodeCommand(taskInstanceID int64, arrayID *int64, arrayStepID *int) string {
	return "worker"
}
