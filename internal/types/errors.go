package types

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a compare-and-swap write lost against a
	// concurrent mutation. Callers should re-read and retry or surface 409.
	ErrConflict = errors.New("conflict: state changed concurrently")
)

// IsConflict reports whether err is (or wraps) ErrConflict.
func IsConflict(err error) bool { return errors.Is(err, ErrConflict) }

// IsNotFound reports whether err is (or wraps) ErrNotFound.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// ValidationError covers both malformed input (Field/Msg set) and a
// commit rejected for blocking rule violations (Violations set).
type ValidationError struct {
	Field      string
	Msg        string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
	}
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Rule+": "+v.Message)
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(parts, "; "))
}

// InvalidInput builds a ValidationError for one offending field
func InvalidInput(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Msg: fmt.Sprintf(format, args...)}
}

// TransitionError rejects a workflow move that is not an edge of the state
// machine for the request's kind.
type TransitionError struct {
	RequestID string
	Kind      RequestKind
	From      RequestStatus
	To        RequestStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("request %s: %s transition %s -> %s not allowed", e.RequestID, e.Kind, e.From, e.To)
}

// SwapExecutionError reports a swap whose shift exchange could not complete,
// usually because one of the two roster records disappeared.
type SwapExecutionError struct {
	RequestID string
	Missing   string // "agentID/date" of the absent shift record
	Err       error
}

func (e *SwapExecutionError) Error() string {
	if e.Missing != "" {
		return fmt.Sprintf("swap %s: shift record %s missing", e.RequestID, e.Missing)
	}
	return fmt.Sprintf("swap %s: execution failed: %v", e.RequestID, e.Err)
}

func (e *SwapExecutionError) Unwrap() error { return e.Err }

// InsufficientBalanceError rejects a leave approval whose deduction would
// push the agent's balance below zero.
type InsufficientBalanceError struct {
	AgentID   string
	Requested int
	Available int
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("agent %s: leave balance %d below requested %d days", e.AgentID, e.Available, e.Requested)
}
