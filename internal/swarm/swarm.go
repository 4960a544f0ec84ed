// Package swarm is the Swarm Orchestrator (C5): one process per
// WorkflowRun, owning the in-memory DAG-readiness view and the local
// ready-to-run queue, driven by four cooperating loops — HeartbeatService,
// Synchronizer, Scheduler, and the Resource Adjuster (spec.md §4.4).
// Grounded on cuemby-warren's pkg/scheduler.Scheduler for the
// Start/Stop/ticker-loop shape; the Python reference's single-threaded
// cooperative asyncio model is expressed here as one goroutine per loop
// guarded by a single mutex over the shared DAG-readiness state, since Go
// has no event loop to pin everything to one thread.
package swarm

import (
	"context"
	"sync"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/events"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

// Config is the tunable behavior of one Swarm instance.
type Config struct {
	ClusterID          int64
	HeartbeatInterval  time.Duration
	ReportByBuffer     float64 // e.g. 1.5 -> next_report_increment = interval * buffer
	SyncInterval       time.Duration
	SchedulerInterval  time.Duration
	MaxBatchSize       int
	Timeout            time.Duration // 0 means no top-level timeout

	// Events, if set, receives a WorkflowRunTerminal event when the run
	// reaches a terminal state or times out; nothing is published when the
	// caller cancels ctx. Nil is fine: Broker.Publish no-ops on a nil
	// receiver.
	Events *events.Broker
}

// Swarm orchestrates one WorkflowRun end to end.
type Swarm struct {
	cfg        Config
	store      store.Store
	workflowID int64
	wfRunID    int64

	downstream map[int64][]int64 // immutable after New: task id -> its downstream task ids

	mu               sync.Mutex
	taskStatus       map[int64]model.TaskStatus
	upstreamsTotal   map[int64]int
	upstreamsDone    map[int64]int
	readyQueue       []int64
	workflowRunState model.WorkflowRunStatus
	lastSync         *time.Time
	concurrencyLimit int
	arrayLimits      map[int64]int
	taskResourcesID  map[int64]int64                 // task id -> its current TaskResources id
	taskArrayID      map[int64]int64                 // task id -> the Array its Node belongs to
	resourceScales   map[int64][]model.ResourceScale // task id -> its configured escalation rules
	scaleCursor      map[int64]map[string]int        // task id -> resource name -> next iterator index

	distributorInstanceID int64           // resolved once, at the top of Run
	runCtx                context.Context // the (possibly timeout-bound) context Run() is executing under

	done chan terminal
}

type terminal struct {
	status model.WorkflowStatus
}

// New constructs a Swarm for a bound WorkflowRun. downstream maps each
// task id to the task ids that depend on it (its downstream set) so the
// Swarm can seed upstream counts before its first Synchronizer pass.
func New(cfg Config, st store.Store, workflowID, workflowRunID int64, initialTasks []model.Task, downstream map[int64][]int64) *Swarm {
	s := &Swarm{
		cfg:              cfg,
		store:            st,
		workflowID:       workflowID,
		wfRunID:          workflowRunID,
		taskStatus:       make(map[int64]model.TaskStatus, len(initialTasks)),
		upstreamsTotal:   make(map[int64]int, len(initialTasks)),
		upstreamsDone:    make(map[int64]int, len(initialTasks)),
		workflowRunState: model.WFRBound,
		arrayLimits:      make(map[int64]int),
		taskResourcesID:  make(map[int64]int64, len(initialTasks)),
		taskArrayID:      make(map[int64]int64, len(initialTasks)),
		resourceScales:   make(map[int64][]model.ResourceScale, len(initialTasks)),
		scaleCursor:      make(map[int64]map[string]int),
		downstream:       downstream,
		done:             make(chan terminal, 1),
	}
	for _, t := range initialTasks {
		s.taskStatus[t.ID] = t.Status
		s.taskResourcesID[t.ID] = t.TaskResourcesID
		s.resourceScales[t.ID] = t.ResourceScales
	}
	for _, downstreams := range downstream {
		for _, d := range downstreams {
			s.upstreamsTotal[d]++
		}
	}
	for _, t := range initialTasks {
		if t.Status == model.TaskRegistering && s.upstreamsTotal[t.ID] == 0 {
			s.readyQueue = append(s.readyQueue, t.ID)
		}
	}
	return s
}

// Run drives the four cooperating loops until the run reaches a terminal
// WorkflowStatus, the server signals halt, or cfg.Timeout elapses (spec.md
// §4.4 Completion detection).
func (s *Swarm) Run(ctx context.Context) (model.WorkflowStatus, error) {
	log := jobmonlog.WithComponent("swarm")

	di, err := s.store.SelectDistributorInstance(ctx, s.cfg.ClusterID, s.wfRunID)
	if err != nil {
		return model.WFFailed, err
	}
	s.distributorInstanceID = di.ID

	arrayIDs, err := s.store.GetTaskArrayIDs(ctx, s.workflowID)
	if err != nil {
		return model.WFFailed, err
	}
	s.mu.Lock()
	s.taskArrayID = arrayIDs
	s.mu.Unlock()

	runCtx := ctx
	var cancel context.CancelFunc
	if s.cfg.Timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, s.cfg.Timeout)
		defer cancel()
	}
	s.runCtx = runCtx

	var wg sync.WaitGroup
	wg.Add(3)
	go func() { defer wg.Done(); s.runHeartbeat(runCtx) }()
	go func() { defer wg.Done(); s.runSynchronizer(runCtx) }()
	go func() { defer wg.Done(); s.runScheduler(runCtx) }()

	select {
	case t := <-s.done:
		log.Info().Msg("workflow run reached terminal state")
		s.cfg.Events.Publish(&events.Event{
			Type:       events.WorkflowRunTerminal,
			WorkflowID: s.workflowID,
			EntityID:   s.wfRunID,
			Message:    string(t.status),
		})
		return t.status, nil
	case <-runCtx.Done():
		if ctx.Err() == nil {
			// Our own timeout, not the caller's cancellation.
			log.Warn().Msg("workflow run timed out")
			s.cfg.Events.Publish(&events.Event{
				Type:       events.WorkflowRunTerminal,
				WorkflowID: s.workflowID,
				EntityID:   s.wfRunID,
				Message:    string(model.WFFailed),
			})
			return model.WFFailed, nil
		}
		return model.WFHalted, ctx.Err()
	}
}

// applyStateUpdate merges a StateUpdate into the shared DAG-readiness
// state, advancing downstream readiness for every newly-DONE task and
// detecting terminal conditions (spec.md §4.4 Completion detection).
func (s *Swarm) applyStateUpdate(update StateUpdate) {
	s.mu.Lock()

	var newlyAdjusting []int64
	for taskID, status := range update.TaskStatuses {
		prev := s.taskStatus[taskID]
		s.taskStatus[taskID] = status
		if status == model.TaskDone && prev != model.TaskDone {
			for _, d := range s.downstream[taskID] {
				s.upstreamsDone[d]++
				if s.upstreamsDone[d] == s.upstreamsTotal[d] && s.taskStatus[d] == model.TaskRegistering {
					s.readyQueue = append(s.readyQueue, d)
				}
			}
		}
		if status == model.TaskAdjustingResources && prev != model.TaskAdjustingResources {
			newlyAdjusting = append(newlyAdjusting, taskID)
		}
	}

	for id, trID := range update.TaskResourcesID {
		s.taskResourcesID[id] = trID
	}

	if update.ConcurrencyLimit > 0 {
		s.concurrencyLimit = update.ConcurrencyLimit
	}
	for id, limit := range update.ArrayLimits {
		s.arrayLimits[id] = limit
	}

	if update.WorkflowRunStatus != "" {
		s.workflowRunState = update.WorkflowRunStatus
	}

	s.checkTerminal()
	s.mu.Unlock()

	// Resource adjustment does server round-trips; run it outside the lock
	// so a slow BindTaskResources call never blocks the Scheduler/Synchronizer.
	for _, taskID := range newlyAdjusting {
		go s.adjustResources(taskID)
	}
}

func (s *Swarm) checkTerminal() {
	if !s.workflowRunState.IsActive() {
		select {
		case s.done <- terminal{status: terminalWorkflowStatus(s.workflowRunState)}:
		default:
		}
		return
	}

	allTerminal, anyFatal := true, false
	for _, st := range s.taskStatus {
		if st != model.TaskDone && st != model.TaskErrorFatal {
			allTerminal = false
			break
		}
		if st == model.TaskErrorFatal {
			anyFatal = true
		}
	}
	if allTerminal && len(s.taskStatus) > 0 {
		status := model.WFDone
		if anyFatal {
			status = model.WFFailed
		}
		select {
		case s.done <- terminal{status: status}:
		default:
		}
	}
}

func terminalWorkflowStatus(wfrStatus model.WorkflowRunStatus) model.WorkflowStatus {
	switch wfrStatus {
	case model.WFRDone:
		return model.WFDone
	case model.WFRTerminated, model.WFRAborted:
		return model.WFHalted
	default:
		return model.WFFailed
	}
}

// StateUpdate is the merged result of one Synchronizer or Scheduler pass
// (spec.md §4.4): individual sub-fetch failures are logged but never
// poison the rest of the update.
type StateUpdate struct {
	TaskStatuses      map[int64]model.TaskStatus
	TaskResourcesID   map[int64]int64
	WorkflowRunStatus model.WorkflowRunStatus
	ConcurrencyLimit  int
	ArrayLimits       map[int64]int
}
