package distributor

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/clusterdriver"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/distributor/journal"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/jobmonlog"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/leasecache"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/store"
)

// Config is the tunable behavior of one Distributor process.
type Config struct {
	ClusterID int64

	// WorkflowRunID, if set, registers this process as a "local"
	// DistributorInstance pinned to one workflow run (spec.md §4.3
	// Liveness), preferred over a cluster-wide "shared" one by
	// Store.SelectDistributorInstance. Nil registers a shared instance.
	WorkflowRunID *int64

	PollInterval        time.Duration
	HeartbeatIncrement  time.Duration
	NextReportIncrement time.Duration

	// LeaseCache, if set, receives a fast TTL heartbeat alongside the
	// Postgres one every tick, so a watcher can check liveness without a
	// DB round trip. Nil disables it.
	LeaseCache *leasecache.Cache

	// Journal, if set, records each batch submission locally before the
	// Store write that makes it durable, so a crashed process can replay
	// submissions the cluster already accepted instead of losing track
	// of them. Nil disables it.
	Journal *journal.Journal
}

// Distributor serves a single clusterdriver.Driver on behalf of one
// cluster, polling the Store for work every PollInterval (spec.md §4.3).
// It does not multiplex several drivers in one process.
type Distributor struct {
	cfg    Config
	store  store.Store
	driver clusterdriver.Driver
	log    zeroLogger

	instanceID int64
}

// zeroLogger narrows the logging surface this package needs so tests can
// swap in a no-op.
type zeroLogger interface {
	Info(msg string)
	Error(msg string)
}

type componentLogger struct{}

func (componentLogger) Info(msg string) { jobmonlog.WithComponent("distributor").Info().Msg(msg) }
func (componentLogger) Error(msg string) { jobmonlog.WithComponent("distributor").Error().Msg(msg) }

// New registers a DistributorInstance for clusterID and returns a
// Distributor ready to Run. If cfg.Journal is set, any submissions left
// pending by a previous process are replayed into the Store first.
func New(ctx context.Context, cfg Config, st store.Store, driver clusterdriver.Driver) (*Distributor, error) {
	inst, err := st.RegisterDistributorInstance(ctx, cfg.ClusterID, cfg.WorkflowRunID)
	if err != nil {
		return nil, err
	}
	d := &Distributor{cfg: cfg, store: st, driver: driver, log: componentLogger{}, instanceID: inst.ID}
	if cfg.Journal != nil {
		if err := d.recoverJournal(ctx); err != nil {
			return nil, fmt.Errorf("recover journal: %w", err)
		}
	}
	return d, nil
}

// recoverJournal replays every batch submission the journal still holds:
// each one reached the cluster driver in a prior process but never made
// it into the Store, so it is committed now and then cleared.
func (d *Distributor) recoverJournal(ctx context.Context) error {
	pending, err := d.cfg.Journal.Pending()
	if err != nil {
		return err
	}
	for batchID, stepToDistributorID := range pending {
		if err := d.commitSubmission(ctx, batchID, stepToDistributorID); err != nil {
			d.log.Error(fmt.Sprintf("journal recovery for batch %d failed: %s", batchID, err.Error()))
			continue
		}
		d.log.Info(fmt.Sprintf("recovered journaled submission for batch %d", batchID))
	}
	return nil
}

// Run executes the polling loop (spec.md §4.3 Main loop) until ctx is
// canceled. Each tick: heartbeat self, submit queued batches, triage
// overdue instances, and force-terminate KILL_SELF instances.
func (d *Distributor) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// leaseKey is the Redis key one DistributorInstance's fast liveness lease
// is stored under.
func (d *Distributor) leaseKey() string {
	return fmt.Sprintf("jobmon:distributor_instance:%d", d.instanceID)
}

func (d *Distributor) tick(ctx context.Context) {
	if err := d.store.HeartbeatDistributorInstance(ctx, d.instanceID, d.cfg.HeartbeatIncrement); err != nil {
		d.log.Error("heartbeat failed: " + err.Error())
	}
	if d.cfg.LeaseCache != nil {
		if err := d.cfg.LeaseCache.Heartbeat(ctx, d.leaseKey(), d.cfg.HeartbeatIncrement); err != nil {
			d.log.Error("lease cache heartbeat failed: " + err.Error())
		}
	}
	if err := d.submitQueuedBatches(ctx); err != nil {
		d.log.Error("submit queued batches failed: " + err.Error())
	}
	if err := d.triage(ctx); err != nil {
		d.log.Error("triage failed: " + err.Error())
	}
	if err := d.killSelfBackstop(ctx); err != nil {
		d.log.Error("kill self backstop failed: " + err.Error())
	}
}

// killSelfBackstop implements the KILL_SELF branch of spec.md §4.3's main
// loop: any TaskInstance the server has flagged KILL_SELF (spec.md §5) is
// force-terminated via the driver, covering the case where the instance
// did not exit on its own.
func (d *Distributor) killSelfBackstop(ctx context.Context) error {
	instances, err := d.store.RequestKillSelf(ctx)
	if err != nil {
		return err
	}
	for _, ti := range instances {
		if err := d.KillSelf(ctx, ti); err != nil {
			d.log.Error("kill self failed for task instance " + ti.DistributorID + ": " + err.Error())
		}
	}
	return nil
}

// submitQueuedBatches implements the QUEUED branch of spec.md §4.3's main
// loop: every Batch still holding QUEUED TaskInstances is submitted to the
// ClusterDriver, its distributor ids logged, and the batch transitioned to
// LAUNCHED.
func (d *Distributor) submitQueuedBatches(ctx context.Context) error {
	batches, err := d.store.ListQueuedBatches(ctx)
	if err != nil {
		return err
	}
	for _, b := range batches {
		if err := d.submitBatch(ctx, b); err != nil {
			d.log.Error("submit batch " + b.Batch.SubmissionName() + " failed: " + err.Error())
		}
	}
	return nil
}

func (d *Distributor) submitBatch(ctx context.Context, b store.BatchWithInstances) error {
	sort.Slice(b.Instances, func(i, j int) bool { return b.Instances[i].ArrayStepID < b.Instances[j].ArrayStepID })

	tr, err := d.store.GetTaskResources(ctx, b.Batch.TaskResourcesID)
	if err != nil {
		return err
	}

	stepToDistributorID := make(map[int]string, len(b.Instances))
	if len(b.Instances) > 1 {
		ids, err := d.driver.SubmitArrayToBatchDistributor(ctx, b.Batch.SubmissionName(),
			b.Batch.ArrayName, clusterdriver.Resources(tr.RequestedResources), len(b.Instances))
		if err == clusterdriver.ErrArraySubmitUnsupported {
			stepToDistributorID, err = d.submitIndividually(ctx, b, tr)
			if err != nil {
				return err
			}
		} else if err != nil {
			return d.markNoDistributorID(ctx, b.Instances, err.Error())
		} else {
			stepToDistributorID = ids
		}
	} else {
		var err error
		stepToDistributorID, err = d.submitIndividually(ctx, b, tr)
		if err != nil {
			return err
		}
	}

	if d.cfg.Journal != nil {
		if err := d.cfg.Journal.Record(b.Batch.ID, stepToDistributorID); err != nil {
			d.log.Error("journal record failed: " + err.Error())
		}
	}

	return d.commitSubmission(ctx, b.Batch.ID, stepToDistributorID)
}

// commitSubmission writes a batch's distributor ids to the Store,
// transitions it to launched, and clears its journal entry if any. It is
// the single path shared by a fresh submission and journal recovery.
func (d *Distributor) commitSubmission(ctx context.Context, batchID int64, stepToDistributorID map[int]string) error {
	const chunkSize = 1000 // rows per LogDistributorIDs call, bounding lock-hold time
	chunk, remaining := make(map[int]string, chunkSize), len(stepToDistributorID)
	for step, distributorID := range stepToDistributorID {
		chunk[step] = distributorID
		remaining--
		if len(chunk) == chunkSize || remaining == 0 {
			if err := d.store.LogDistributorIDs(ctx, batchID, chunk); err != nil {
				return err
			}
			chunk = make(map[int]string, chunkSize)
		}
	}
	if err := d.store.TransitionBatchToLaunched(ctx, batchID, d.cfg.NextReportIncrement); err != nil {
		return err
	}
	if d.cfg.Journal != nil {
		if err := d.cfg.Journal.Clear(batchID); err != nil {
			d.log.Error("journal clear failed: " + err.Error())
		}
	}
	return nil
}

func (d *Distributor) submitIndividually(ctx context.Context, b store.BatchWithInstances, tr model.TaskResources) (map[int]string, error) {
	out := make(map[int]string, len(b.Instances))
	for _, ti := range b.Instances {
		command := d.driver.BuildWorkerNodeCommand(ti.ID, &b.Batch.ArrayID, &ti.ArrayStepID)
		id, err := d.driver.SubmitToBatchDistributor(ctx, command, b.Batch.SubmissionName(), clusterdriver.Resources(tr.RequestedResources))
		if err != nil {
			if logErr := d.store.LogUnknownError(ctx, ti.ID, err.Error()); logErr != nil {
				d.log.Error("log unknown error failed: " + logErr.Error())
			}
			continue
		}
		out[ti.ArrayStepID] = id
	}
	return out, nil
}

func (d *Distributor) markNoDistributorID(ctx context.Context, instances []model.TaskInstance, message string) error {
	for _, ti := range instances {
		if err := d.store.LogKnownError(ctx, ti.ID, model.TINoDistributorID, message); err != nil {
			return err
		}
	}
	return nil
}
