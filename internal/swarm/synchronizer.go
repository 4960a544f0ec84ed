package swarm

import (
	"context"
	"sync"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// runSynchronizer periodically fetches triage requests, task-status deltas,
// and concurrency limits in parallel, merging them into one StateUpdate;
// an individual sub-fetch failure is logged but never blocks the others
// (spec.md §4.4 item 2).
func (s *Swarm) runSynchronizer(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sync(ctx)
		}
	}
}

func (s *Swarm) sync(ctx context.Context) {
	log := jobmonlog.WithComponent("swarm.synchronizer")

	update := StateUpdate{
		TaskStatuses:    make(map[int64]model.TaskStatus),
		TaskResourcesID: make(map[int64]int64),
	}
	var wg sync.WaitGroup
	var mu sync.Mutex

	wg.Add(4)
	go func() {
		defer wg.Done()
		if _, err := s.store.RequestTriage(ctx); err != nil {
			log.Warn().Err(err).Msg("request triage failed")
		}
	}()
	go func() {
		defer wg.Done()
		tasks, err := s.store.GetTaskStatuses(ctx, s.workflowID, s.lastSync)
		if err != nil {
			log.Warn().Err(err).Msg("get task statuses failed")
			return
		}
		mu.Lock()
		defer mu.Unlock()
		for _, t := range tasks {
			update.TaskStatuses[t.ID] = t.Status
			update.TaskResourcesID[t.ID] = t.TaskResourcesID
		}
	}()
	go func() {
		defer wg.Done()
		limit, err := s.store.GetWorkflowConcurrencyLimit(ctx, s.workflowID)
		if err != nil {
			log.Warn().Err(err).Msg("get workflow concurrency limit failed")
			return
		}
		mu.Lock()
		update.ConcurrencyLimit = limit
		mu.Unlock()
	}()
	go func() {
		defer wg.Done()
		limits, err := s.store.GetArrayConcurrencyLimits(ctx, s.workflowID)
		if err != nil {
			log.Warn().Err(err).Msg("get array concurrency limits failed")
			return
		}
		mu.Lock()
		update.ArrayLimits = limits
		mu.Unlock()
	}()
	wg.Wait()

	now := time.Now()
	s.lastSync = &now
	s.applyStateUpdate(update)
}
