package distributor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/distributor/journal"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

func newTestDistributor(t *testing.T, fs *fakeStore, fd *fakeDriver) *Distributor {
	t.Helper()
	d, err := New(context.Background(), Config{ClusterID: 7, HeartbeatIncrement: time.Minute}, fs, fd)
	require.NoError(t, err)
	return d
}

func TestNewRegistersDistributorInstance(t *testing.T) {
	fs := &fakeStore{instanceID: 42}
	d := newTestDistributor(t, fs, &fakeDriver{})
	assert.EqualValues(t, 7, fs.registeredClusterID)
	assert.EqualValues(t, 42, d.instanceID)
}

func TestTickHeartbeatsSelf(t *testing.T) {
	fs := &fakeStore{instanceID: 1}
	d := newTestDistributor(t, fs, &fakeDriver{})
	d.tick(context.Background())
	assert.Equal(t, []int64{1}, fs.heartbeats)
}

func TestSubmitBatchSingleInstanceFallsBackToIndividual(t *testing.T) {
	fs := &fakeStore{
		instanceID:    1,
		taskResources: map[int64]model.TaskResources{10: {ID: 10, RequestedResources: map[string]string{"cores": "1"}}},
	}
	fd := &fakeDriver{}
	d := newTestDistributor(t, fs, fd)

	batch := store.BatchWithInstances{
		Batch:     model.Batch{ID: 100, ArrayName: "arr", TaskResourcesID: 10},
		Instances: []model.TaskInstance{{ID: 1, ArrayStepID: 0}},
	}
	require.NoError(t, d.submitBatch(context.Background(), batch))

	assert.Len(t, fd.individualSubmissions, 1)
	assert.Empty(t, fd.arraySubmissions)
	assert.Contains(t, fs.launchedBatches, int64(100))
	assert.Len(t, fs.loggedDistributorIDs[100], 1)
}

func TestSubmitBatchMultiInstanceUsesArraySubmit(t *testing.T) {
	fs := &fakeStore{
		instanceID:    1,
		taskResources: map[int64]model.TaskResources{10: {ID: 10}},
	}
	fd := &fakeDriver{supportsArray: true}
	d := newTestDistributor(t, fs, fd)

	batch := store.BatchWithInstances{
		Batch: model.Batch{ID: 200, ArrayName: "arr", TaskResourcesID: 10},
		Instances: []model.TaskInstance{
			{ID: 1, ArrayStepID: 0},
			{ID: 2, ArrayStepID: 1},
		},
	}
	require.NoError(t, d.submitBatch(context.Background(), batch))

	assert.Len(t, fd.arraySubmissions, 1)
	assert.Empty(t, fd.individualSubmissions)
	assert.Len(t, fs.loggedDistributorIDs[200], 2)
}

func TestSubmitBatchFallsBackWhenArrayUnsupported(t *testing.T) {
	fs := &fakeStore{
		instanceID:    1,
		taskResources: map[int64]model.TaskResources{10: {ID: 10}},
	}
	fd := &fakeDriver{supportsArray: false}
	d := newTestDistributor(t, fs, fd)

	batch := store.BatchWithInstances{
		Batch: model.Batch{ID: 300, ArrayName: "arr", TaskResourcesID: 10},
		Instances: []model.TaskInstance{
			{ID: 1, ArrayStepID: 0},
			{ID: 2, ArrayStepID: 1},
		},
	}
	require.NoError(t, d.submitBatch(context.Background(), batch))

	assert.Empty(t, fd.arraySubmissions)
	assert.Len(t, fd.individualSubmissions, 2)
	assert.Contains(t, fs.launchedBatches, int64(300))
}

func TestTriageClassifiesDoneExitCode(t *testing.T) {
	fs := &fakeStore{
		instanceID: 1,
		triageQueue: []model.TaskInstance{
			{ID: 1, DistributorID: "d-1"},
			{ID: 2, DistributorID: "d-2"},
		},
	}
	fd := &fakeDriver{exitCode: "DONE", exitMessage: "ok"}
	d := newTestDistributor(t, fs, fd)

	require.NoError(t, d.triage(context.Background()))

	require.Len(t, fs.knownErrors, 2)
	for _, ke := range fs.knownErrors {
		assert.Equal(t, model.TIDone, ke.status)
	}
}

func TestTriageKillSelfExitCode(t *testing.T) {
	fs := &fakeStore{
		instanceID:  1,
		triageQueue: []model.TaskInstance{{ID: 1, DistributorID: "d-1"}},
	}
	fd := &fakeDriver{exitCode: exitCodeKillSelf, exitMessage: "killed"}
	d := newTestDistributor(t, fs, fd)

	require.NoError(t, d.triage(context.Background()))

	require.Len(t, fs.knownErrors, 1)
	assert.Equal(t, model.TIUnknownError, fs.knownErrors[0].status, "a KILL_SELF exit marker is reported, not a fatal error")
}

func TestTriageRemoteExitInfoUnavailableLogsUnknownError(t *testing.T) {
	fs := &fakeStore{
		instanceID:  1,
		triageQueue: []model.TaskInstance{{ID: 1, DistributorID: "d-1"}},
	}
	fd := &fakeDriver{exitErr: assertErr{"not found"}}
	d := newTestDistributor(t, fs, fd)

	require.NoError(t, d.triage(context.Background()))

	assert.Equal(t, []int64{1}, fs.unknownErrors)
	assert.Empty(t, fs.knownErrors)
}

func TestKillSelfTerminatesAndLogsFatal(t *testing.T) {
	fs := &fakeStore{instanceID: 1}
	fd := &fakeDriver{}
	d := newTestDistributor(t, fs, fd)

	require.NoError(t, d.KillSelf(context.Background(), model.TaskInstance{ID: 9, DistributorID: "d-9"}))

	assert.Equal(t, [][]string{{"d-9"}}, fd.terminated)
	require.Len(t, fs.knownErrors, 1)
	assert.Equal(t, model.TIErrorFatal, fs.knownErrors[0].status)
}

func TestTickActsOnKillSelfQueue(t *testing.T) {
	fs := &fakeStore{
		instanceID:    1,
		killSelfQueue: []model.TaskInstance{{ID: 9, DistributorID: "d-9"}},
	}
	fd := &fakeDriver{}
	d := newTestDistributor(t, fs, fd)

	d.tick(context.Background())

	assert.Equal(t, [][]string{{"d-9"}}, fd.terminated, "tick must drive KillSelf for every KILL_SELF-flagged instance")
	require.Len(t, fs.knownErrors, 1)
	assert.Equal(t, model.TIErrorFatal, fs.knownErrors[0].status)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }

func TestSubmitBatchClearsJournalEntryAfterCommit(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "distributor.db"))
	require.NoError(t, err)
	defer j.Close()

	fs := &fakeStore{
		instanceID:    1,
		taskResources: map[int64]model.TaskResources{10: {ID: 10}},
	}
	fd := &fakeDriver{}
	d, err := New(context.Background(), Config{ClusterID: 7, Journal: j}, fs, fd)
	require.NoError(t, err)

	batch := store.BatchWithInstances{
		Batch:     model.Batch{ID: 100, ArrayName: "arr", TaskResourcesID: 10},
		Instances: []model.TaskInstance{{ID: 1, ArrayStepID: 0}},
	}
	require.NoError(t, d.submitBatch(context.Background(), batch))

	assert.Contains(t, fs.launchedBatches, int64(100))
	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "a committed submission should be cleared from the journal")
}

func TestNewReplaysPendingJournalEntriesOnStartup(t *testing.T) {
	j, err := journal.Open(filepath.Join(t.TempDir(), "distributor.db"))
	require.NoError(t, err)
	defer j.Close()
	require.NoError(t, j.Record(200, map[int]string{0: "d-a", 1: "d-b"}))

	fs := &fakeStore{instanceID: 1}
	d, err := New(context.Background(), Config{ClusterID: 7, Journal: j}, fs, &fakeDriver{})
	require.NoError(t, err)
	_ = d

	assert.Equal(t, map[int]string{0: "d-a", 1: "d-b"}, fs.loggedDistributorIDs[200])
	assert.Contains(t, fs.launchedBatches, int64(200))

	pending, err := j.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending, "a replayed submission should be cleared from the journal")
}
