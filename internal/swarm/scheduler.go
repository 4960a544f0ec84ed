package swarm

import (
	"context"
	"sort"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// runScheduler is the Scheduler: each tick it drains as much of the local
// ready-to-run queue as workflow and per-array concurrency allow, grouped
// by (array_id, task_resources_id) as QueueTaskBatch requires, and queues
// one Batch per group. Tasks that can't be batched this tick — because
// capacity is exhausted or their rows were locked by a concurrent
// transition — are re-enqueued for the next tick (spec.md §4.4 item 3).
func (s *Swarm) runScheduler(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.scheduleTick(ctx)
		}
	}
}

type batchGroup struct {
	arrayID         int64
	taskResourcesID int64
	taskIDs         []int64
}

func (s *Swarm) scheduleTick(ctx context.Context) {
	log := jobmonlog.WithComponent("swarm.scheduler")

	candidates, requeue := s.drainReadyQueue()
	if len(requeue) > 0 {
		s.mu.Lock()
		s.readyQueue = append(requeue, s.readyQueue...)
		s.mu.Unlock()
	}
	if len(candidates) == 0 {
		return
	}

	groups := s.groupByArrayAndResources(candidates)

	update := StateUpdate{TaskStatuses: make(map[int64]model.TaskStatus)}
	var relock []int64
	for _, g := range groups {
		for i := 0; i < len(g.taskIDs); i += s.maxBatchSize() {
			end := i + s.maxBatchSize()
			if end > len(g.taskIDs) {
				end = len(g.taskIDs)
			}
			chunk := g.taskIDs[i:end]

			_, _, result, err := s.store.QueueTaskBatch(ctx, s.wfRunID, chunk, s.distributorInstanceID)
			if err != nil {
				log.Error().Err(err).Int64("array_id", g.arrayID).Msg("queue task batch failed")
				relock = append(relock, chunk...)
				continue
			}
			for _, id := range result.Transitioned {
				update.TaskStatuses[id] = model.TaskQueued
			}
			// Locked rows are only momentarily contended; retry next tick.
			// InvalidSourceState/NotFound tasks already moved on (e.g. a
			// concurrent reset) and are dropped from the local queue.
			relock = append(relock, result.Locked...)
		}
	}

	if len(update.TaskStatuses) > 0 {
		s.applyStateUpdate(update)
	}
	if len(relock) > 0 {
		s.mu.Lock()
		s.readyQueue = append(relock, s.readyQueue...)
		s.mu.Unlock()
	}
}

// drainReadyQueue pops every ready task off the queue, then hands back
// the subset that current workflow/array concurrency allows to schedule
// this tick; the rest is returned for the caller to push back.
func (s *Swarm) drainReadyQueue() (scheduled, requeued []int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ready := s.readyQueue
	s.readyQueue = nil
	if len(ready) == 0 {
		return nil, nil
	}

	inFlight := 0
	arrayInFlight := make(map[int64]int)
	for id, status := range s.taskStatus {
		if !status.IsTerminal() && status != model.TaskRegistering && status != model.TaskAdjustingResources {
			inFlight++
			if arrayID, ok := s.taskArrayID[id]; ok {
				arrayInFlight[arrayID]++
			}
		}
	}

	headroom := -1 // unlimited
	if s.concurrencyLimit > 0 {
		headroom = s.concurrencyLimit - inFlight
		if headroom < 0 {
			headroom = 0
		}
	}

	for _, id := range ready {
		if headroom == 0 {
			requeued = append(requeued, id)
			continue
		}
		if arrayID, ok := s.taskArrayID[id]; ok {
			if limit := s.arrayLimits[arrayID]; limit > 0 && arrayInFlight[arrayID] >= limit {
				requeued = append(requeued, id)
				continue
			}
		}
		scheduled = append(scheduled, id)
		if headroom > 0 {
			headroom--
		}
		if arrayID, ok := s.taskArrayID[id]; ok {
			arrayInFlight[arrayID]++
		}
	}
	return scheduled, requeued
}

func (s *Swarm) groupByArrayAndResources(taskIDs []int64) []batchGroup {
	s.mu.Lock()
	defer s.mu.Unlock()

	index := make(map[[2]int64]int)
	var groups []batchGroup
	for _, id := range taskIDs {
		key := [2]int64{s.taskArrayID[id], s.taskResourcesID[id]}
		if i, ok := index[key]; ok {
			groups[i].taskIDs = append(groups[i].taskIDs, id)
			continue
		}
		index[key] = len(groups)
		groups = append(groups, batchGroup{arrayID: key[0], taskResourcesID: key[1], taskIDs: []int64{id}})
	}
	for i := range groups {
		sort.Slice(groups[i].taskIDs, func(a, b int) bool { return groups[i].taskIDs[a] < groups[i].taskIDs[b] })
	}
	return groups
}

func (s *Swarm) maxBatchSize() int {
	if s.cfg.MaxBatchSize <= 0 {
		return 1
	}
	return s.cfg.MaxBatchSize
}
