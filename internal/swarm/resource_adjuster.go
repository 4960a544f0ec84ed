package swarm

import (
	"strconv"

	"github.com/docker/go-units"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/contenthash"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// adjustResources implements the Resource Adjuster (spec.md §4.4 item 4):
// once a task lands in ADJUSTING_RESOURCES, compute its next
// requested_resources from the old values and its configured
// resource_scales, bind-or-reuse the resulting TaskResources, and
// re-point the task onto it. QueueTaskBatch already accepts
// ADJUSTING_RESOURCES as a valid source status, so re-enqueuing the task
// is enough for the Scheduler to queue it on the next tick without a
// separate server-side status flip.
func (s *Swarm) adjustResources(taskID int64) {
	ctx := s.runCtx
	log := jobmonlog.WithComponent("swarm.resource_adjuster")

	s.mu.Lock()
	scales := s.resourceScales[taskID]
	oldResourcesID := s.taskResourcesID[taskID]
	s.mu.Unlock()

	if len(scales) == 0 {
		log.Warn().Int64("task_id", taskID).Msg("task in ADJUSTING_RESOURCES with no resource_scales configured")
		s.requeue(taskID)
		return
	}

	old, err := s.store.GetTaskResources(ctx, oldResourcesID)
	if err != nil {
		log.Error().Err(err).Int64("task_id", taskID).Msg("get task resources failed")
		return
	}

	next := make(map[string]string, len(old.RequestedResources))
	for k, v := range old.RequestedResources {
		next[k] = v
	}

	scaled := false
	for _, scale := range scales {
		current, ok := old.RequestedResources[scale.Resource]
		if !ok {
			continue
		}
		updated, ok := s.scaleValue(taskID, scale, current)
		if !ok {
			// Exhausted iterator: leave this resource unchanged, per
			// spec.md §4.4 ("raises StopIteration -> no further scaling").
			continue
		}
		next[scale.Resource] = updated
		scaled = true
	}
	if !scaled {
		log.Info().Int64("task_id", taskID).Msg("no resource scale applied, leaving task resources unchanged")
		s.requeue(taskID)
		return
	}

	pairs := make([]contenthash.KV, 0, len(next))
	for k, v := range next {
		pairs = append(pairs, contenthash.KV{Key: k, Value: v})
	}
	bound, err := s.store.BindTaskResources(ctx, model.TaskResources{
		Queue:              old.Queue,
		RequestedResources: next,
		Hash:               contenthash.Hash(pairs),
	})
	if err != nil {
		log.Error().Err(err).Int64("task_id", taskID).Msg("bind task resources failed")
		return
	}
	if err := s.store.RepointTaskResources(ctx, taskID, bound.ID); err != nil {
		log.Error().Err(err).Int64("task_id", taskID).Msg("repoint task resources failed")
		return
	}

	s.mu.Lock()
	s.taskResourcesID[taskID] = bound.ID
	s.mu.Unlock()
	s.requeue(taskID)
}

func (s *Swarm) requeue(taskID int64) {
	s.mu.Lock()
	s.readyQueue = append(s.readyQueue, taskID)
	s.mu.Unlock()
}

// scaleValue applies one ResourceScale to a resource's current value. The
// "constant" and "iterator" kinds are the two the spec requires; the
// Python reference's third kind ("callable", an arbitrary in-process
// function) has no meaning across a process boundary in this port — a
// callable scale is treated as already-exhausted (ok=false) the same way
// a depleted iterator is.
func (s *Swarm) scaleValue(taskID int64, scale model.ResourceScale, current string) (string, bool) {
	switch scale.Kind {
	case model.ScaleConstant:
		return scaleConstant(current, scale.Factor), true
	case model.ScaleIterator:
		return s.nextIteratorValue(taskID, scale)
	default:
		return "", false
	}
}

// scaleConstant multiplies a resource value by (1 + factor). Memory-like
// values ("1G", "512M") are parsed and re-rendered with
// github.com/docker/go-units; anything else is treated as a plain decimal.
func scaleConstant(current string, factor float64) string {
	if bytes, err := units.RAMInBytes(current); err == nil {
		scaled := float64(bytes) * (1 + factor)
		return units.BytesSize(scaled)
	}
	if n, err := strconv.ParseFloat(current, 64); err == nil {
		return strconv.FormatFloat(n*(1+factor), 'f', -1, 64)
	}
	return current
}

// nextIteratorValue consumes the next value from a scale's finite
// Sequence for this task, tracking each (task, resource) cursor
// independently so repeated ADJUSTING_RESOURCES cycles advance instead of
// replaying the same value.
func (s *Swarm) nextIteratorValue(taskID int64, scale model.ResourceScale) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cursors, ok := s.scaleCursor[taskID]
	if !ok {
		cursors = make(map[string]int)
		s.scaleCursor[taskID] = cursors
	}
	i := cursors[scale.Resource]
	if i >= len(scale.Sequence) {
		return "", false
	}
	cursors[scale.Resource] = i + 1
	return scale.Sequence[i], true
}
