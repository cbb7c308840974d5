// Package evoerrors defines the error taxonomy shared by every Evolution
// Engine component. Errors carry a Kind so callers (the Executor, the CLI)
// can branch on category without string matching, following the same
// classification shape the rest of the codebase uses for its error types.
package evoerrors

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the callers that need to branch on it -
// principally the CLI's exit codes.
type Kind int

const (
	KindConfigInvalid Kind = iota
	KindStateCorrupted
	KindTargetMissing
	KindTargetConflict
	KindTimeout
	KindRateLimited
	KindUnavailable
	KindInternalAssertion
)

func (k Kind) String() string {
	names := []string{
		"config-invalid",
		"state-corrupted",
		"target-missing",
		"target-conflict",
		"timeout",
		"rate-limited",
		"unavailable",
		"internal-assertion",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "unknown"
}

// Error is the concrete error type every engine package returns. It wraps
// an underlying cause while attaching a stable Kind.
type Error struct {
	Kind    Kind
	Op      string // operation that failed, e.g. "store.PutProposal"
	Cause   error
	Message string
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Error implements Unwrap but not an Is method, so errors.Is does not match
// by Kind; kind comparison goes through KindOf and Is below.

// New constructs a classified error with no underlying cause.
func New(kind Kind, op, message string) *Error {
	return &Error{Kind: kind, Op: op, Message: message}
}

// Wrap attaches a Kind and operation to an existing error.
func Wrap(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause, Message: cause.Error()}
}

// Wrapf attaches a Kind, operation and formatted message to an existing error.
func Wrapf(kind Kind, op string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Op: op, Cause: cause, Message: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind from err, walking the unwrap chain. Returns
// (KindInternalAssertion, false) if err carries no classification.
func KindOf(err error) (Kind, bool) {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind, true
	}
	return KindInternalAssertion, false
}

// Is reports whether err is classified with the given Kind.
func Is(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// Sentinel errors for conditions that don't need per-call context.
var (
	// ErrAlreadyLocked is returned by the State Store when another process
	// holds the workspace lock.
	ErrAlreadyLocked = errors.New("workspace already locked by another process")

	// ErrDryRun is not returned by any engine package: while the engine
	// config has dry_run set, the Decision Policy defers every proposal
	// instead.
	ErrDryRun = errors.New("apply refused: engine is in dry-run mode")

	// ErrNotFound is returned when a lookup by ID finds nothing.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a Proposal status change does
	// not follow the allowed state machine.
	ErrInvalidTransition = errors.New("invalid proposal status transition")
)
