// Package fixture defines fixture handlers and the executor that turns any
// of them into a result.
//
// A Handler is a tagged variant: a static payload, a synchronous function
// of the call context, or an asynchronous function that delivers its
// result on a channel. The variant is fixed when the handler is built, so
// a static payload that happens to be a function value is never called.
package fixture

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrNilHandler is returned when executing a zero Handler.
	ErrNilHandler = errors.New("fixture: nil handler")

	// ErrNoResult is returned when an async handler closes its channel
	// without delivering a result.
	ErrNoResult = errors.New("fixture: async handler produced no result")
)

// Kind discriminates the Handler variants.
type Kind uint8

const (
	kindNone Kind = iota
	KindStatic
	KindFunc
	KindAsync
)

func (k Kind) String() string {
	switch k {
	case KindStatic:
		return "static"
	case KindFunc:
		return "func"
	case KindAsync:
		return "async"
	default:
		return "none"
	}
}

// Result is the value delivered by an async handler.
type Result struct {
	Value any
	Err   error
}

// Func is the synchronous handler signature. C is the adapter's context
// type.
type Func[C any] func(ctx context.Context, c C) (any, error)

// AsyncFunc is the asynchronous handler signature. The first Result sent
// on the returned channel is used.
type AsyncFunc[C any] func(ctx context.Context, c C) <-chan Result

// Handler produces a fixture's result for a call context of type C.
// The zero value is not usable; build handlers with Static, FromFunc or
// FromAsync.
type Handler[C any] struct {
	kind  Kind
	value any
	fn    Func[C]
	async AsyncFunc[C]
}

// Static returns a handler that always yields v.
func Static[C any](v any) Handler[C] {
	return Handler[C]{kind: KindStatic, value: v}
}

// FromFunc returns a handler that calls fn.
func FromFunc[C any](fn Func[C]) Handler[C] {
	if fn == nil {
		return Handler[C]{}
	}
	return Handler[C]{kind: KindFunc, fn: fn}
}

// FromAsync returns a handler that calls fn and waits for its result.
func FromAsync[C any](fn AsyncFunc[C]) Handler[C] {
	if fn == nil {
		return Handler[C]{}
	}
	return Handler[C]{kind: KindAsync, async: fn}
}

// Kind returns the handler variant.
func (h Handler[C]) Kind() Kind {
	return h.kind
}

// IsZero reports whether h was built without a payload or function.
func (h Handler[C]) IsZero() bool {
	return h.kind == kindNone
}

// Value returns the static payload and true for static handlers.
func (h Handler[C]) Value() (any, bool) {
	if h.kind != KindStatic {
		return nil, false
	}
	return h.value, true
}

func (h Handler[C]) String() string {
	if h.kind == KindStatic {
		return fmt.Sprintf("static(%T)", h.value)
	}
	return h.kind.String()
}
