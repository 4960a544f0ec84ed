package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

func newTestServer(fs *fakeStore) *Server {
	return New(fs, Config{ServerVersion: "test"})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealthReportsVersion(t *testing.T) {
	s := newTestServer(&fakeStore{})
	rec := doJSON(t, s.Router(), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"test"`)
}

func TestHandleReadyReportsNotReadyOnStoreError(t *testing.T) {
	s := newTestServer(&fakeStore{taskArrayIDsErr: assertErr{"connection refused"}})
	rec := doJSON(t, s.Router(), http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "not ready")
}

func TestHandleBindToolReturnsTool(t *testing.T) {
	s := newTestServer(&fakeStore{})
	rec := doJSON(t, s.Router(), http.MethodPost, "/tool/bind", map[string]string{"name": "jobmon_cli"})
	require.Equal(t, http.StatusOK, rec.Code)
	var tool model.Tool
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tool))
	assert.Equal(t, "jobmon_cli", tool.Name)
}

func TestHandleBindToolRejectsMissingName(t *testing.T) {
	s := newTestServer(&fakeStore{})
	rec := doJSON(t, s.Router(), http.MethodPost, "/tool/bind", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleBindWorkflowOutcomeCreated(t *testing.T) {
	s := newTestServer(&fakeStore{workflowID: 5, workflowCreated: true})
	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow/bind", bindWorkflowRequest{
		ToolVersionID: 1, DagID: 1, WorkflowArgsHash: "h", TaskHash: "t",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp bindWorkflowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 5, resp.WorkflowID)
	assert.Equal(t, "created", resp.Outcome)
}

func TestHandleBindWorkflowOutcomeRunningBlocksResume(t *testing.T) {
	s := newTestServer(&fakeStore{workflowID: 5, workflowCreated: false, hasActiveRun: true})
	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow/bind", bindWorkflowRequest{
		ToolVersionID: 1, DagID: 1, WorkflowArgsHash: "h", TaskHash: "t",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp bindWorkflowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "running", resp.Outcome)
}

func TestHandleBindWorkflowOutcomeResumable(t *testing.T) {
	s := newTestServer(&fakeStore{workflowID: 5, workflowCreated: false, hasActiveRun: false})
	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow/bind", bindWorkflowRequest{
		ToolVersionID: 1, DagID: 1, WorkflowArgsHash: "h", TaskHash: "t",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp bindWorkflowResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "resumable", resp.Outcome)
}

func TestHandleSetResumeRejectsWithoutActiveRun(t *testing.T) {
	s := newTestServer(&fakeStore{hasActiveRun: false})
	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow/9/set_resume", setResumeRequest{})
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandleSetResumeColdVsHot(t *testing.T) {
	fs := &fakeStore{hasActiveRun: true, activeRun: model.WorkflowRun{ID: 3, Status: model.WFRBound}}
	s := newTestServer(fs)

	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow/9/set_resume", setResumeRequest{ResetIfRunning: true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fs.setStatusCalls, 1)
	assert.Equal(t, model.WFRColdResume, fs.setStatusCalls[0].to)

	rec = doJSON(t, s.Router(), http.MethodPost, "/workflow/9/set_resume", setResumeRequest{ResetIfRunning: false})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fs.setStatusCalls, 2)
	assert.Equal(t, model.WFRHotResume, fs.setStatusCalls[1].to)
}

func TestHandleResetTaskStatusesPassesHotResumeFlag(t *testing.T) {
	fs := &fakeStore{hasActiveRun: true, activeRun: model.WorkflowRun{ID: 4}}
	s := newTestServer(fs)

	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow/9/reset_task_statuses", resetTaskStatusesRequest{HotResume: true})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, fs.resetCalls, 1)
	assert.EqualValues(t, 4, fs.resetCalls[0].wfrID)
	assert.True(t, fs.resetCalls[0].hotResume)
}

func TestHandleIncreaseResources(t *testing.T) {
	fs := &fakeStore{}
	s := newTestServer(fs)
	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow/9/increase_resources", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, fs.increaseResourcesCalled)
}

func TestHandleQueueTaskBatchReturnsTransitionResult(t *testing.T) {
	fs := &fakeStore{
		queueBatch:  model.Batch{ID: 10, ArrayID: 2},
		queueResult: store.TransitionResult{Transitioned: []int64{1, 2}, Locked: []int64{3}},
	}
	s := newTestServer(fs)
	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow_run/1/queue_task_batch", queueTaskBatchRequest{
		TaskIDs: []int64{1, 2, 3},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp queueTaskBatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.EqualValues(t, 10, resp.BatchID)
	assert.Equal(t, []int64{1, 2}, resp.Result.Transitioned)
	assert.Equal(t, []int64{3}, resp.Result.Locked)
}

func TestHandleQueueTaskBatchRejectsEmptyTaskIDs(t *testing.T) {
	s := newTestServer(&fakeStore{})
	rec := doJSON(t, s.Router(), http.MethodPost, "/workflow_run/1/queue_task_batch", queueTaskBatchRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
