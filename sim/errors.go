package sim

import (
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures so callers can decide whether to
// reset-and-continue or abort.
type ErrorKind string

const (
	// KindUnknown is returned for nil or unclassified errors.
	KindUnknown ErrorKind = "unknown"
	// KindUsage marks programming errors: wrong batch length, protocol misuse,
	// calls after Close. Never retried.
	KindUsage ErrorKind = "usage"
	// KindBackend marks a Unit that failed while stepping, resetting or
	// restoring state.
	KindBackend ErrorKind = "backend"
	// KindResource marks construction failures (bad asset, unknown title).
	KindResource ErrorKind = "resource"
)

// Usage errors.
var (
	ErrShape          = errors.New("action batch length does not match number of units")
	ErrPipelineBusy   = errors.New("a batch is already in flight; call StepWait first")
	ErrNoPendingBatch = errors.New("no batch in flight; call StepAsync first")
	ErrClosed         = errors.New("pipeline is closed")
	ErrNotReset       = errors.New("pipeline must be reset before stepping")
	ErrWorkerBusy     = errors.New("worker already has an outstanding request")
)

// ErrInvalidAction is a usage error when the pipeline rejects an action batch,
// and a backend error when a Unit reports it from Step.
var ErrInvalidAction = errors.New("action index out of range")

// Backend and resource errors.
var (
	ErrInvalidSlot   = errors.New("invalid save-state slot")
	ErrUnknownTitle  = errors.New("unknown title")
	ErrAssetNotFound = errors.New("asset not found")
)

var usageErrors = []error{ErrShape, ErrPipelineBusy, ErrNoPendingBatch, ErrClosed, ErrNotReset, ErrWorkerBusy, ErrInvalidAction}

// BackendError reports a Unit failure surfaced at StepWait, Reset or a
// state operation. Worker is the lowest failing worker index.
type BackendError struct {
	Worker int
	Op     string
	Err    error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("worker %d: %s: %v", e.Worker, e.Op, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// ResourceError reports a Unit that could not be constructed.
// Worker is -1 when the failure is not tied to a single index.
type ResourceError struct {
	Worker int
	Err    error
}

func (e *ResourceError) Error() string {
	if e.Worker < 0 {
		return fmt.Sprintf("constructing units: %v", e.Err)
	}
	return fmt.Sprintf("constructing unit %d: %v", e.Worker, e.Err)
}

func (e *ResourceError) Unwrap() error { return e.Err }

// KindOf classifies err. Typed wrappers take precedence over the sentinels
// they wrap, so a BackendError wrapping ErrInvalidSlot is KindBackend.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var be *BackendError
	if errors.As(err, &be) {
		return KindBackend
	}
	var re *ResourceError
	if errors.As(err, &re) {
		return KindResource
	}
	for _, u := range usageErrors {
		if errors.Is(err, u) {
			return KindUsage
		}
	}
	if errors.Is(err, ErrUnknownTitle) || errors.Is(err, ErrAssetNotFound) {
		return KindResource
	}
	return KindUnknown
}
