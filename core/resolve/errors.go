package resolve

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel categories for resolution failures. Callers match them with
// errors.Is; the full *Error carries the document position.
var (
	// ErrUnknownKey marks a key present in the document but not declared
	// by a dict schema without an extra_keys_schema.
	ErrUnknownKey = errors.New("unknown key")

	// ErrMissingKey marks a required key absent from the document.
	ErrMissingKey = errors.New("missing required key")

	// ErrTypeMismatch marks a value that cannot be coerced to its
	// declared kind, including nulls at non-nullable positions.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrCyclicReference marks a placeholder chain that reaches back
	// into a position still being resolved.
	ErrCyclicReference = errors.New("cyclic reference")

	// ErrUnresolvableReference marks a placeholder that names a
	// position, variable, or namespace that does not exist.
	ErrUnresolvableReference = errors.New("unresolvable reference")

	// ErrInvalidValue marks values that violate rules beyond simple
	// typing, such as a negative offset in a relative time expression.
	ErrInvalidValue = errors.New("invalid value")
)

// Error is a resolution failure at a specific document position.
type Error struct {
	// Path locates the failing position from the document root.
	Path Path

	// Err is the sentinel category, available to errors.Is.
	Err error

	// Reason elaborates on the failure. May be empty.
	Reason string
}

func (e *Error) Error() string {
	at := e.Path.String()
	if at == "" {
		at = "the document root"
	}
	if e.Reason == "" {
		return fmt.Sprintf("%s at %s", e.Err, at)
	}
	return fmt.Sprintf("%s at %s: %s", e.Err, at, e.Reason)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func errAt(p Path, sentinel error, format string, args ...any) *Error {
	return &Error{Path: p, Err: sentinel, Reason: fmt.Sprintf(format, args...)}
}

// Path locates a position in a document as the keys and list indices
// walked from the root, rendered dot-joined ("artifacts.homework.path").
type Path []string

func (p Path) String() string {
	return strings.Join(p, ".")
}

// Child returns a new path extended by seg. The receiver is copied, so
// sibling paths built from the same parent stay independent.
func (p Path) Child(seg string) Path {
	child := make(Path, len(p), len(p)+1)
	copy(child, p)
	return append(child, seg)
}
