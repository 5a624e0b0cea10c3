package synapse

import (
	"fmt"
	"runtime/debug"
	"time"
)

// ValidationError is raised by the engine when a node's required provider is
// missing, and by the dispatcher when no handler is registered for the
// trigger port or heavy-mode inputs are not JSON-serialisable. The engine's
// missing-provider error routes to a locally wired Error Flow if one exists,
// else escalates like any other runtime error (spec.md §7); one returned by
// the dispatcher takes the runtime-error path.
type ValidationError struct {
	NodeID  string
	Port    string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Port != "" {
		return fmt.Sprintf("validation failed for %s.%s: %s", e.NodeID, e.Port, e.Message)
	}
	return fmt.Sprintf("validation failed for %s: %s", e.NodeID, e.Message)
}

// RuntimeError wraps an error returned by a node handler during dispatch.
type RuntimeError struct {
	NodeID string
	Cause  error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Cause)
}

func (e *RuntimeError) Unwrap() error { return e.Cause }

// PanicError wraps a recovered panic from inside a node handler or the
// dispatcher itself, with the stack trace captured at recovery time
// (spec.md §4.6.3).
type PanicError struct {
	NodeID     string
	Recovered  any
	StackTrace []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in node %s: %v", e.NodeID, e.Recovered)
}

func NewPanicError(nodeID string, recovered any) *PanicError {
	return &PanicError{NodeID: nodeID, Recovered: recovered, StackTrace: debug.Stack()}
}

// CancellationError marks a pulse dropped because its scope was cancelled
// (spec.md §5, SYNAPSE_CANCEL_SCOPE_{scope}). The engine does not construct
// it: a cancelled pulse is dropped silently and never reaches a catch handler.
type CancellationError struct {
	ScopeID string
}

func (e *CancellationError) Error() string {
	return fmt.Sprintf("scope %s cancelled", e.ScopeID)
}

// LockTimeoutError is returned (never raised as a node-terminating error) by
// Bridge.Lock when the advisory lock could not be acquired before its
// deadline (spec.md §4.1, §5).
type LockTimeoutError struct {
	Key     string
	NodeID  string
	Timeout time.Duration
}

func (e *LockTimeoutError) Error() string {
	return fmt.Sprintf("lock timeout on key %q for node %s after %s", e.Key, e.NodeID, e.Timeout)
}

// ShutdownRaceError marks a transient failure (closed pipe, EOF) observed
// while the engine is tearing down. Per spec.md §4.1/§7 these are swallowed
// silently by callers. The bridge does not construct this type: it detects
// such failures with isShutdownErr and swallows them.
type ShutdownRaceError struct {
	Key   string
	Cause error
}

func (e *ShutdownRaceError) Error() string {
	return fmt.Sprintf("shutdown race on key %q: %v", e.Key, e.Cause)
}

func (e *ShutdownRaceError) Unwrap() error { return e.Cause }

// errorCode is the stable numeric code table referenced by
// ContextManager.error_mapping (spec.md §4.4) and published to
// _SYSTEM_LAST_ERROR_CODE.
type errorCode int

const (
	errCodeUnknown errorCode = iota
	errCodeValidation
	errCodeRuntime
	errCodePanic
	errCodeLockTimeout
	errCodeMissingProvider
)

// classifyError maps an error's dynamic type to a stable numeric code.
func classifyError(err error) errorCode {
	switch err.(type) {
	case *ValidationError:
		return errCodeValidation
	case *RuntimeError:
		return errCodeRuntime
	case *PanicError:
		return errCodePanic
	case *LockTimeoutError:
		return errCodeLockTimeout
	default:
		return errCodeUnknown
	}
}
