// Package apperr defines the error kinds the service reports to callers.
// Only the HTTP layer translates kinds into status codes; everything below
// it returns *Error values (or wraps unexpected failures as Internal).
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies an error for the transport layer.
type Kind int

const (
	// Internal is the zero-ish default for unexpected failures.
	Internal Kind = iota
	// NotFound covers absent entities and cross-tenant probes.
	NotFound
	// Forbidden covers courier actions outside their own batch.
	Forbidden
	// InvalidTransition is a state-machine guard failure.
	InvalidTransition
	// Validation is malformed or out-of-range input.
	Validation
	// Conflict covers duplicates and delete-with-active-work.
	Conflict
	// TrialExpired marks a blocked tenant; surfaces as 403 plus a header.
	TrialExpired
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case InvalidTransition:
		return "invalid_transition"
	case Validation:
		return "validation"
	case Conflict:
		return "conflict"
	case TrialExpired:
		return "trial_expired"
	default:
		return "internal"
	}
}

// Error carries a kind and a caller-facing message.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind with a fixed message.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf builds an error of the given kind with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and message to an underlying error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf extracts the kind from err, defaulting to Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return Internal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind == kind
	}
	return false
}

// Message returns the caller-facing message, hiding internals.
func Message(err error) string {
	var ae *Error
	if errors.As(err, &ae) && ae.Kind != Internal {
		return ae.Msg
	}
	return "erro interno, tente novamente"
}
