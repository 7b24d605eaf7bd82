package shared

import (
	"errors"
	"fmt"
)

// Kind classifies a domain failure for transport mapping and retry policy.
type Kind int

const (
	// KindUnknown is the zero value for errors the core did not classify.
	KindUnknown Kind = iota
	// KindValidation marks malformed or missing input; the caller can correct and retry.
	KindValidation
	// KindConflict marks a business-rule rejection (duplicate code, unbalanced
	// entry, insufficient stock). Never retried automatically.
	KindConflict
	// KindNotFound marks an unknown identifier.
	KindNotFound
	// KindState marks an operation invalid for the current lifecycle state.
	KindState
	// KindIntegrity marks a violation the core should never itself produce,
	// e.g. a running-balance mismatch detected on replay. Fatal, never swallowed.
	KindIntegrity
)

// Error is a classified domain error. Domain packages declare sentinel
// instances and wrap them with detail via fmt.Errorf("%w: ...").
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

// NewError constructs a classified sentinel error.
func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// KindOf walks the error chain and returns the first classified kind.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindUnknown
}

// Integrityf builds a KindIntegrity error with a formatted reason.
func Integrityf(format string, args ...any) error {
	return &Error{Kind: KindIntegrity, Message: fmt.Sprintf(format, args...)}
}
