package distributor

import (
	"context"

	"github.com/ihmeuw-scicomp/jobmon-sub003/internal/model"
)

// exitCodeKillSelf is the Python reference's "job was in kill self state"
// marker exit code (jobmon_core/plugins/sequential/seq_distributor.py).
const exitCodeKillSelf = "199"

// triage implements the TRIAGING branch of spec.md §4.3's main loop: for
// every TaskInstance the server flagged as overdue (RequestTriage), ask the
// driver for its remote exit info and classify the failure. The server
// decides the owning Task's retry/adjust/fatal transition from
// (num_attempts, max_attempts) — the distributor only reports the
// classified TaskInstance outcome.
func (d *Distributor) triage(ctx context.Context) error {
	overdue, err := d.store.RequestTriage(ctx)
	if err != nil {
		return err
	}
	for _, ti := range overdue {
		d.triageOne(ctx, ti)
	}
	return nil
}

func (d *Distributor) triageOne(ctx context.Context, ti model.TaskInstance) {
	code, message, err := d.driver.GetRemoteExitInfo(ctx, ti.DistributorID)
	if err != nil {
		if logErr := d.store.LogUnknownError(ctx, ti.ID, "remote exit info not available: "+err.Error()); logErr != nil {
			d.log.Error("log unknown error failed: " + logErr.Error())
		}
		return
	}

	if code == exitCodeKillSelf {
		if err := d.store.LogKnownError(ctx, ti.ID, model.TIUnknownError, "instance exited via KILL_SELF marker (exit code 199)"); err != nil {
			d.log.Error("log kill-self marker failed: " + err.Error())
		}
		return
	}

	status := classifyExitCode(code)
	if err := d.store.LogKnownError(ctx, ti.ID, status, message); err != nil {
		d.log.Error("log known error failed: " + err.Error())
	}
}

// classifyExitCode maps a ClusterDriver's reported status code onto one of
// the TaskInstance error statuses the server FSM understands (spec.md
// §4.3: "Non-zero → UNKNOWN_ERROR or driver-specific RESOURCE_ERROR").
func classifyExitCode(code string) model.TaskInstanceStatus {
	switch code {
	case "DONE":
		return model.TIDone
	case "RESOURCE_ERROR":
		return model.TIResourceError
	default:
		return model.TIUnknownError
	}
}

// KillSelf implements the KILL_SELF branch: ask the driver to terminate the
// instance, then record it as a fatal, non-retryable error regardless of
// whether the driver's terminate call actually lands (spec.md §4.3, §5
// "the distributor's KILL_SELF handler forces termination via the driver
// if self-kill does not occur").
func (d *Distributor) KillSelf(ctx context.Context, ti model.TaskInstance) error {
	if err := d.driver.TerminateTaskInstances(ctx, []string{ti.DistributorID}); err != nil {
		d.log.Error("terminate task instance failed: " + err.Error())
	}
	return d.store.LogKnownError(ctx, ti.ID, model.TIErrorFatal, "task instance killed by KILL_SELF")
}
