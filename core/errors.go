package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison with errors.Is. These are wrapped by
// SequencerError when additional context (operation, task/target ID)
// is available, but callers can always compare against the sentinel
// directly.
var (
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrTimeout          = errors.New("operation timeout")
	ErrDevice           = errors.New("device error")
	ErrCancelled        = errors.New("operation cancelled")
	ErrDependency       = errors.New("dependency failed")
	ErrInternal         = errors.New("internal error")

	ErrAlreadyRegistered = errors.New("already registered")
	ErrNotRegistered     = errors.New("not registered")
	ErrCycleDetected     = errors.New("cycle detected")
	ErrNotFound          = errors.New("not found")
	ErrAlreadyRunning    = errors.New("already running")
)

// ErrorKind classifies a SequencerError along the taxonomy from the
// error handling design: every failure surfaced across Task, Target,
// DependencyGraph and Scheduler boundaries fits exactly one of these.
type ErrorKind string

const (
	KindNone             ErrorKind = ""
	KindInvalidParameter ErrorKind = "invalid_parameter"
	KindTimeout          ErrorKind = "timeout"
	KindDevice           ErrorKind = "device"
	KindCancelled        ErrorKind = "cancelled"
	KindDependency       ErrorKind = "dependency"
	KindInternal         ErrorKind = "internal"
)

// SequencerError carries the operation that failed, its classification,
// and the task/target identifier involved, wrapping an underlying
// sentinel or device-supplied error so callers can still errors.Is it.
type SequencerError struct {
	Op   string
	Kind ErrorKind
	ID   string
	Err  error
}

func (e *SequencerError) Error() string {
	if e.Op != "" && e.ID != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.ID, e.Err)
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s error", e.Kind)
}

func (e *SequencerError) Unwrap() error {
	return e.Err
}

// NewSequencerError builds a SequencerError classified by kind, wrapping
// err. If err is nil the matching sentinel for kind is used so the
// result is always comparable with errors.Is.
func NewSequencerError(op string, kind ErrorKind, id string, err error) *SequencerError {
	if err == nil {
		err = sentinelFor(kind)
	}
	return &SequencerError{Op: op, Kind: kind, ID: id, Err: err}
}

func sentinelFor(kind ErrorKind) error {
	switch kind {
	case KindInvalidParameter:
		return ErrInvalidParameter
	case KindTimeout:
		return ErrTimeout
	case KindDevice:
		return ErrDevice
	case KindCancelled:
		return ErrCancelled
	case KindDependency:
		return ErrDependency
	default:
		return ErrInternal
	}
}

// IsRetryable reports whether an error represents a transient condition
// a Task's retry policy should act on. Cancelled and invalid-parameter
// failures are never retryable: the first means the caller gave up, the
// second means retrying would reproduce the exact same failure.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTimeout) || errors.Is(err, ErrDevice)
}

// IsTerminal reports whether an error should stop a Target's remaining
// tasks outright rather than trigger a restart/retry.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrCancelled) || errors.Is(err, ErrInvalidParameter)
}

// Kind extracts the ErrorKind from err if it is (or wraps) a
// SequencerError, otherwise KindInternal.
func Kind(err error) ErrorKind {
	var se *SequencerError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}
