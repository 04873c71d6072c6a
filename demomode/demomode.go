// Package demomode provides the predicates interceptors consult to decide
// whether demo fixtures are active for a call.
//
// How the flag is resolved (query parameters, cookies, headers,
// environment) belongs to the application. It either supplies a Func, or
// stores a per-request decision in the context with WithEnabled and uses
// FromContext as the predicate.
package demomode

import (
	"context"
	"sync/atomic"
)

// Predicate decides whether demo mode is on for the call carried by ctx.
type Predicate interface {
	Enabled(ctx context.Context) (bool, error)
}

// Func adapts a function to Predicate.
type Func func(ctx context.Context) (bool, error)

// Enabled implements Predicate.
func (f Func) Enabled(ctx context.Context) (bool, error) {
	return f(ctx)
}

// Static is a predicate with a fixed answer.
type Static bool

// Enabled implements Predicate.
func (s Static) Enabled(context.Context) (bool, error) {
	return bool(s), nil
}

// Toggle is a predicate that can be flipped at runtime, for example from
// a UI control. The zero value is off.
type Toggle struct {
	on atomic.Bool
}

// NewToggle returns a Toggle with the given initial state.
func NewToggle(on bool) *Toggle {
	t := &Toggle{}
	t.on.Store(on)
	return t
}

// Enabled implements Predicate.
func (t *Toggle) Enabled(context.Context) (bool, error) {
	return t.on.Load(), nil
}

// Set switches demo mode on or off.
func (t *Toggle) Set(on bool) {
	t.on.Store(on)
}

// On reports the current state.
func (t *Toggle) On() bool {
	return t.on.Load()
}

type enabledKey struct{}

// WithEnabled returns a context that records a per-call demo decision.
func WithEnabled(ctx context.Context, on bool) context.Context {
	return context.WithValue(ctx, enabledKey{}, on)
}

// FromContext is a predicate that reads the decision stored by
// WithEnabled. Calls without a stored decision are not in demo mode.
var FromContext Predicate = Func(func(ctx context.Context) (bool, error) {
	on, _ := ctx.Value(enabledKey{}).(bool)
	return on, nil
})

// Lookup returns the decision stored by WithEnabled and whether one was
// stored.
func Lookup(ctx context.Context) (on, ok bool) {
	on, ok = ctx.Value(enabledKey{}).(bool)
	return on, ok
}

// Any returns a predicate that is on when any of ps is on. Predicates are
// consulted in order and the first error is returned.
func Any(ps ...Predicate) Predicate {
	return Func(func(ctx context.Context) (bool, error) {
		for _, p := range ps {
			if p == nil {
				continue
			}
			on, err := p.Enabled(ctx)
			if err != nil {
				return false, err
			}
			if on {
				return true, nil
			}
		}
		return false, nil
	})
}
