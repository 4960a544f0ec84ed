package reaper

import (
	"context"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

type fakeStore struct {
	store.Store

	lost       []model.WorkflowRun
	lostErr    error
	reaped     []int64
	reapErr    map[int64]error

	fixCalls    []struct{ startID int64; step int }
	fixCount    int
	fixErr      error
}

func (f *fakeStore) LostWorkflowRuns(ctx context.Context, serverVersion string) ([]model.WorkflowRun, error) {
	return f.lost, f.lostErr
}

func (f *fakeStore) ReapWorkflowRun(ctx context.Context, id int64) error {
	if err := f.reapErr[id]; err != nil {
		return err
	}
	f.reaped = append(f.reaped, id)
	return nil
}

func (f *fakeStore) FixStatusInconsistency(ctx context.Context, startID int64, step int) (int, error) {
	f.fixCalls = append(f.fixCalls, struct {
		startID int64
		step    int
	}{startID, step})
	return f.fixCount, f.fixErr
}

func (f *fakeStore) Close() error { return nil }

type fakeNotifier struct {
	posts []struct{ channel, message string }
	err   error
}

func (n *fakeNotifier) Post(ctx context.Context, channel, message string) error {
	n.posts = append(n.posts, struct{ channel, message string }{channel, message})
	return n.err
}
