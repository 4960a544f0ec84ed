package workerclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/requester"
)

type recordingServer struct {
	mu    sync.Mutex
	paths []string
	body  map[string][]byte

	heartbeatStatus model.TaskInstanceStatus
}

func newRecordingServer() *recordingServer { return &recordingServer{body: map[string][]byte{}} }

func (s *recordingServer) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		b := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(b)
		s.body[r.URL.Path] = b
		status := s.heartbeatStatus
		s.mu.Unlock()

		w.WriteHeader(http.StatusOK)
		if status != "" {
			_ = json.NewEncoder(w).Encode(heartbeatResponse{Status: status})
		}
	}
}

func (s *recordingServer) sawPath(p string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, seen := range s.paths {
		if seen == p {
			return true
		}
	}
	return false
}

func TestLogRunningAndLogDone(t *testing.T) {
	rec := newRecordingServer()
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c := New(requester.New(srv.URL, time.Second), 42)
	require.NoError(t, c.LogRunning(context.Background()))
	require.NoError(t, c.LogDone(context.Background(), 1.5, 2048))

	assert.True(t, rec.sawPath("/task_instance/42/log_running"))
	assert.True(t, rec.sawPath("/task_instance/42/log_done"))
}

func TestHeartbeatReturnsServerStatus(t *testing.T) {
	rec := newRecordingServer()
	rec.heartbeatStatus = model.TIKillSelf
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c := New(requester.New(srv.URL, time.Second), 7)
	status, err := c.Heartbeat(context.Background(), time.Minute)
	require.NoError(t, err)
	assert.Equal(t, model.TIKillSelf, status)
}

func TestWatchForKillSelfInvokesCallbackOnKillSelf(t *testing.T) {
	rec := newRecordingServer()
	rec.heartbeatStatus = model.TIKillSelf
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c := New(requester.New(srv.URL, time.Second), 7)

	called := make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	c.WatchForKillSelf(ctx, 10*time.Millisecond, func() { close(called) })

	select {
	case <-called:
	default:
		t.Fatal("expected KILL_SELF callback to have fired by the time WatchForKillSelf returned")
	}
}

func TestWatchForKillSelfStopsOnContextCancel(t *testing.T) {
	rec := newRecordingServer()
	rec.heartbeatStatus = model.TIRunning
	srv := httptest.NewServer(rec.handler())
	defer srv.Close()

	c := New(requester.New(srv.URL, time.Second), 7)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		c.WatchForKillSelf(ctx, 5*time.Millisecond, func() { t.Error("onKillSelf should not fire") })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("WatchForKillSelf did not return after context cancellation")
	}
}
