// Package clusterdriver defines the pluggable execution-backend contract
// (spec.md §6 ClusterDriver contract, §1 Non-goals: the actual scheduler
// integration is external). A ClusterDriver is how the Distributor submits
// work and later asks "did it finish, and how"; Jobmon ships two reference
// implementations (dummy, sequential), ported from
// jobmon_core/plugins/{dummy,sequential}, for tests and single-node runs.
package clusterdriver

import "context"

// Resources is a free-form per-queue resource request (spec.md §3
// TaskResources.requested_resources), e.g. {"cores": "4", "mem": "8G"}.
type Resources map[string]string

// Driver is the capability surface the Distributor consumes. It is a
// tagged-variant contract, not a class hierarchy: array submission is
// optional (a driver that can't batch-submit returns
// ErrArraySubmitUnsupported and the Distributor falls back to submitting
// each TaskInstance individually).
type Driver interface {
	// ClusterName identifies this driver instance for logging and for
	// DistributorInstance.ClusterID resolution.
	ClusterName() string

	// SubmitToBatchDistributor submits a single command for execution,
	// returning the backend's opaque distributor id.
	SubmitToBatchDistributor(ctx context.Context, command, name string, resources Resources) (distributorID string, err error)

	// SubmitArrayToBatchDistributor submits length copies of command as one
	// array job, returning a backend distributor id per array step. Drivers
	// that can't batch-submit return ErrArraySubmitUnsupported.
	SubmitArrayToBatchDistributor(ctx context.Context, command, name string, resources Resources, length int) (stepToDistributorID map[int]string, err error)

	// GetRemoteExitInfo returns a TaskInstanceStatus code and message for a
	// finished distributor id, or a jobmonerrors.RemoteExitInfoNotAvailable
	// error if the backend has no record of it.
	GetRemoteExitInfo(ctx context.Context, distributorID string) (statusCode, message string, err error)

	// GetQueueingErrors returns a reason string for every id the backend
	// refused to queue.
	GetQueueingErrors(ctx context.Context, distributorIDs []string) (map[string]string, error)

	// GetSubmittedOrRunning returns the subset of distributorIDs the
	// backend still considers submitted or running; a nil/empty slice asks
	// for all such ids known to the backend.
	GetSubmittedOrRunning(ctx context.Context, distributorIDs []string) (map[string]bool, error)

	// TerminateTaskInstances asks the backend to kill the given distributor
	// ids; best-effort, errors are logged not returned.
	TerminateTaskInstances(ctx context.Context, distributorIDs []string) error

	// BuildWorkerNodeCommand renders the shell command the backend should
	// execute for one TaskInstance (or one step of an array submission).
	BuildWorkerNodeCommand(taskInstanceID int64, arrayID *int64, arrayStepID *int) string

	// ValidateResources checks a per-queue resource request before bind
	// time, returning a human-readable reason on rejection.
	ValidateResources(queue string, resources Resources) (ok bool, reason string)

	// CoerceResources normalizes a resource request's units/representation
	// for the given queue (e.g. "4" cores -> "4", "1G" mem -> "1024M").
	CoerceResources(queue string, resources Resources) Resources
}

// ErrArraySubmitUnsupported is returned by SubmitArrayToBatchDistributor on
// a driver with no native array-submission capability.
type errArraySubmitUnsupported struct{}

func (errArraySubmitUnsupported) Error() string { return "driver does not support array submission" }

var ErrArraySubmitUnsupported error = errArraySubmitUnsupported{}
