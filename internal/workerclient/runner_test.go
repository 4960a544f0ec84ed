package workerclient

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/requester"
)

func TestRunnerLogsDoneOnSuccess(t *testing.T) {
	rec := newRecordingServer()
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	client := New(requester.New(srv.URL, time.Second), 1)
	runner := NewRunner(client, time.Hour)

	err := runner.Run(context.Background(), "exit 0")
	assert.NoError(t, err)
	assert.True(t, rec.sawPath("/task_instance/1/log_running"))
	assert.True(t, rec.sawPath("/task_instance/1/log_done"))
	assert.False(t, rec.sawPath("/task_instance/1/log_unknown_error"))
}

func TestRunnerLogsUnknownErrorOnNonzeroExit(t *testing.T) {
	rec := newRecordingServer()
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	client := New(requester.New(srv.URL, time.Second), 2)
	runner := NewRunner(client, time.Hour)

	err := runner.Run(context.Background(), "exit 7")
	assert.Error(t, err)
	assert.True(t, rec.sawPath("/task_instance/2/log_unknown_error"))
	assert.False(t, rec.sawPath("/task_instance/2/log_done"))
}
