package pattern

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned when the raw key has the wrong Go type for
	// the requested kind (for example a slice for a path pattern).
	ErrInvalidKey = errors.New("pattern: invalid key for kind")

	// ErrEmptyParamName is returned for a segment that is exactly ":".
	ErrEmptyParamName = errors.New("pattern: missing parameter name")

	// ErrInvalidParamName is returned for ":*", whose name is reserved for
	// wildcard captures.
	ErrInvalidParamName = errors.New("pattern: reserved parameter name")

	// ErrDuplicateParam is returned when a parameter name is used twice
	// within the same pattern.
	ErrDuplicateParam = errors.New("pattern: duplicated parameter")

	// ErrUnsupportedSegment is returned for tuple elements that cannot be
	// compared, such as functions, channels or structs.
	ErrUnsupportedSegment = errors.New("pattern: unsupported segment type")

	// ErrWildcardPosition is returned when a path or tuple wildcard is
	// followed by more segments.
	ErrWildcardPosition = errors.New("pattern: wildcard must be the last segment")

	// ErrEmptySegment is returned for an empty procedure segment, as in
	// "user..get".
	ErrEmptySegment = errors.New("pattern: empty segment")

	// ErrUnknownKind is returned by ParseKind for unrecognised names.
	ErrUnknownKind = errors.New("pattern: unknown kind")
)

// CompileError describes a key that could not be compiled.
type CompileError struct {
	Kind Kind
	Key  any
	Err  error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("%v: %s key %s", e.Err, e.Kind, describeKey(e.Key))
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func describeKey(key any) string {
	if s, ok := key.(string); ok {
		return fmt.Sprintf("%q", s)
	}
	return fmt.Sprintf("%v", key)
}
