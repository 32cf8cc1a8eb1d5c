package types

import (
	"errors"
	"fmt"
)

// Kind classifies scan failures. The HTTP layer maps kinds to status codes.
type Kind string

const (
	KindConfiguration     Kind = "configuration"
	KindEmptyInput        Kind = "empty_input"
	KindInvalidInput      Kind = "invalid_input"
	KindUpstreamTransport Kind = "upstream_transport"
	KindUpstreamFormat    Kind = "upstream_format"
	KindNoUsableResult    Kind = "no_usable_result"
	KindImageLookup       Kind = "image_lookup"
	KindInternal          Kind = "internal"
)

// Error is a classified failure raised by one pipeline operation.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// E builds a classified error. A nil cause is allowed.
func E(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified error from a format string.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports the kind of the first classified error in err's chain.
// Unclassified errors are internal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
