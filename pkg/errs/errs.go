// Package errs defines the error-kind taxonomy shared by every component:
// storage nodes, the router, and the replica-set coordinator all report
// failures through the same small vocabulary instead of ad-hoc strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its disposition, not its cause.
type Kind string

const (
	// BadInput is a malformed request or an unrecognized operator.
	// Reported to the caller; no state change.
	BadInput Kind = "bad_input"

	// StaleConfig means the caller's chunk version trails the server's.
	// The reply carries the flag; the router is expected to refresh.
	StaleConfig Kind = "stale_config"

	// NeedAuthoritative means the node has not yet learned its config
	// server; the caller should retry with authoritative=true.
	NeedAuthoritative Kind = "need_authoritative"

	// Transient is an I/O failure or unreachable peer. Retry at the
	// next poll; surfaces as "down" in health.
	Transient Kind = "transient"

	// ConfigConflict means a peer already has a config version >= the
	// one being proposed. Reported back to the requester.
	ConfigConflict Kind = "config_conflict"

	// Fatal is absorbing: the local op-log is unreadable, or self
	// appears twice in a configuration. The node stays up for
	// diagnostics but refuses further cluster participation.
	Fatal Kind = "fatal"
)

// Error is the concrete error type carrying a Kind plus an optional
// wrapped cause and structured fields for logging.
type Error struct {
	Kind   Kind
	Op     string
	Fields map[string]any
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// Is allows errors.Is(err, errs.StaleConfig) style matching by kind when
// the target is a bare Kind wrapped as an *Error with no cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New constructs an *Error of the given kind.
func New(kind Kind, op string, cause error, fields map[string]any) *Error {
	return &Error{Kind: kind, Op: op, Err: cause, Fields: fields}
}

// Of extracts the Kind from err, walking the wrap chain. Returns false if
// err does not originate from this package.
func Of(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}

// Is reports whether err carries the given Kind anywhere in its chain.
func Is(err error, kind Kind) bool {
	k, ok := Of(err)
	return ok && k == kind
}
