// Package jobmonerrors defines the error kinds of spec.md §7 as typed
// errors, matched with errors.Is/errors.As and mapped to HTTP status codes
// at the API boundary. Built on github.com/go-faster/errors instead of bare
// fmt.Errorf/stdlib errors so every wrap carries a stack trace, the idiom
// the jordigilh-kubernaut corpus uses throughout its service layer.
package jobmonerrors

import (
	"net/http"

	"github.com/go-faster/errors"
)

// Kind enumerates the error kinds of spec.md §7.
type Kind string

const (
	KindInvalidUsage             Kind = "InvalidUsage"
	KindInvalidStateTransition   Kind = "InvalidStateTransition"
	KindDeadlock                 Kind = "DeadlockError"
	KindDistributorStartupTimeout Kind = "DistributorStartupTimeout"
	KindRemoteExitInfoNotAvailable Kind = "RemoteExitInfoNotAvailable"
	KindWorkflowNotResumable     Kind = "WorkflowNotResumable"
	KindNoActiveDistributor      Kind = "NoActiveDistributor"
)

// Error is a Jobmon-specific error carrying its kind and the HTTP status it
// maps to at the API boundary (spec.md §6's error envelope).
type Error struct {
	Kind    Kind
	Status  int
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return e.Message + ": " + e.cause.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func newKind(kind Kind, status int, msg string, cause error) *Error {
	return &Error{Kind: kind, Status: status, Message: msg, cause: cause}
}

// InvalidUsage wraps a client-input validation failure. Never retried.
func InvalidUsage(msg string) *Error {
	return newKind(KindInvalidUsage, http.StatusBadRequest, msg, nil)
}

// InvalidStateTransition wraps an FSM transition rejected because the
// entity's current status does not permit it.
func InvalidStateTransition(msg string) *Error {
	return newKind(KindInvalidStateTransition, http.StatusConflict, msg, nil)
}

// Deadlock wraps a retryable DB deadlock/lock-contention condition
// (spec.md §6: "status 423 signals a deadlock-retryable DB condition").
func Deadlock(cause error) *Error {
	return newKind(KindDeadlock, http.StatusLocked, "deadlock detected, retry", cause)
}

// DistributorStartupTimeout is raised by the Swarm if the distributor
// subprocess never writes ALIVE within its startup budget.
func DistributorStartupTimeout(msg string) *Error {
	return newKind(KindDistributorStartupTimeout, http.StatusGatewayTimeout, msg, nil)
}

// RemoteExitInfoNotAvailable is raised by a ClusterDriver when it cannot
// resolve exit info for a distributor id.
func RemoteExitInfoNotAvailable(distributorID string) *Error {
	return newKind(KindRemoteExitInfoNotAvailable, http.StatusNotFound,
		"no remote exit info available for distributor id "+distributorID, nil)
}

// WorkflowNotResumable is surfaced to the user with no auto-recovery.
func WorkflowNotResumable(msg string) *Error {
	return newKind(KindWorkflowNotResumable, http.StatusConflict, msg, nil)
}

// NoActiveDistributor is raised when the server cannot select a
// DistributorInstance for a cluster; callers retry later.
func NoActiveDistributor(clusterID int64) *Error {
	return newKind(KindNoActiveDistributor, http.StatusServiceUnavailable,
		"no active distributor instance for cluster", nil)
}

// Wrap attaches a stack trace via go-faster/errors while preserving Is/As
// compatibility with the sentinel constructors above.
func Wrap(err error, msg string) error {
	return errors.Wrap(err, msg)
}

// As is re-exported so callers need only import this package for the common
// case of unwrapping a *Error.
func As(err error) (*Error, bool) {
	var e *Error
	ok := errors.As(err, &e)
	return e, ok
}
