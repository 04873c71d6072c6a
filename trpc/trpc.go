// Package trpc provides a tRPC-style link that answers procedure calls
// from fixtures.
//
// Procedures are keyed by dot-separated paths. Patterns may use ":name"
// to capture a segment and "*" as a glob: "user.*" matches every
// procedure under user, "*.get" every get procedure.
package trpc

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/intercept"
	"github.com/Kasava-AI/demokit-sub003/pattern"
	"github.com/Kasava-AI/demokit-sub003/registry"
)

var (
	// ErrNilFixtures is returned by Link without a fixture set.
	ErrNilFixtures = errors.New("trpc: fixtures are required")

	// ErrInvalidTree is returned by SetTree for an empty key.
	ErrInvalidTree = errors.New("trpc: invalid fixture tree")
)

// Type is the kind of a procedure call.
type Type string

const (
	TypeQuery        Type = "query"
	TypeMutation     Type = "mutation"
	TypeSubscription Type = "subscription"
)

// Operation is one procedure call travelling through a link chain.
type Operation struct {
	Type  Type
	Path  string
	Input any
}

// Context is passed to procedure fixtures.
type Context struct {
	Path   string
	Input  any
	Type   Type
	Params pattern.Params
	CallID string
}

// Next runs an operation further down the link chain.
type Next func(ctx context.Context, op Operation) (any, error)

// Fixtures holds procedure fixtures.
type Fixtures struct {
	procedures *registry.Registry[fixture.Handler[Context]]
}

// NewFixtures returns an empty procedure registry.
func NewFixtures(opts ...registry.Option) *Fixtures {
	return &Fixtures{
		procedures: registry.New[fixture.Handler[Context]](pattern.KindProcedure, opts...),
	}
}

// Set registers h for a procedure pattern.
func (f *Fixtures) Set(path string, h fixture.Handler[Context]) error {
	return f.procedures.Set(path, h)
}

// SetTree registers a nested map of fixtures, mirroring a router
// definition. Map values are descended into and joined with dots;
// handlers are registered as they are; any other value is registered as
// a static payload. Keys are registered in sorted order at each level.
//
//	fx.SetTree(map[string]any{
//		"user": map[string]any{
//			"get":  fixture.FromFunc(getUser),
//			"list": []User{ada, bob},
//		},
//	})
func (f *Fixtures) SetTree(tree map[string]any) error {
	return f.setTree("", tree)
}

func (f *Fixtures) setTree(prefix string, tree map[string]any) error {
	keys := make([]string, 0, len(tree))
	for k := range tree {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "" {
			return fmt.Errorf("%w: empty key under %q", ErrInvalidTree, prefix)
		}
		path := k
		if prefix != "" {
			path = prefix + "." + k
		}

		var err error
		switch v := tree[k].(type) {
		case map[string]any:
			err = f.setTree(path, v)
		case fixture.Handler[Context]:
			err = f.Set(path, v)
		default:
			err = f.Set(path, fixture.Static[Context](v))
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Remove removes the fixture registered under path.
func (f *Fixtures) Remove(path string) (bool, error) {
	return f.procedures.Remove(path)
}

// Clear removes every fixture.
func (f *Fixtures) Clear() {
	f.procedures.Clear()
}

// Replace swaps in the fixtures of src.
func (f *Fixtures) Replace(src *Fixtures) error {
	return f.procedures.ReplaceWith(src.procedures)
}

// Len returns the number of fixtures.
func (f *Fixtures) Len() int {
	return f.procedures.Len()
}

// Procedures returns the underlying registry.
func (f *Fixtures) Procedures() *registry.Registry[fixture.Handler[Context]] {
	return f.procedures
}

// Paths returns the registered patterns in registration order.
func (f *Fixtures) Paths() []string {
	entries := f.procedures.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Pattern.String()
	}
	return out
}

// Link returns a link that serves operations from f in demo mode and
// forwards them to next otherwise. cfg.Adapter defaults to "trpc".
func Link(f *Fixtures, cfg intercept.Config) (func(Next) Next, error) {
	if f == nil {
		return nil, ErrNilFixtures
	}
	if cfg.Adapter == "" {
		cfg.Adapter = "trpc"
	}
	ic, err := intercept.New[Context](cfg)
	if err != nil {
		return nil, err
	}

	return func(next Next) Next {
		return func(ctx context.Context, op Operation) (any, error) {
			return ic.Do(ctx, intercept.Call[Context]{
				Kind:       pattern.KindProcedure,
				Identifier: op.Path,
				Lookup:     intercept.Find(f.procedures, op.Path),
				Context: func(m intercept.Match, callID string) (Context, error) {
					return Context{
						Path:   op.Path,
						Input:  op.Input,
						Type:   op.Type,
						Params: m.Params,
						CallID: callID,
					}, nil
				},
			}, func(ctx context.Context) (any, error) {
				return next(ctx, op)
			})
		}
	}, nil
}

// Chain composes links so that the first link sees an operation first.
func Chain(terminal Next, links ...func(Next) Next) Next {
	next := terminal
	for i := len(links) - 1; i >= 0; i-- {
		next = links[i](next)
	}
	return next
}
