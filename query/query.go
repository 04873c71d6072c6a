// Package query intercepts query and mutation functions keyed by tuples,
// the way a React-Query client keys its cache.
//
// A key is an ordered slice whose elements are scalars or string-keyed
// objects. Patterns use the same shape with ":name" strings as captures:
//
//	fx.SetQuery([]any{"users", ":id"}, h)
//	fx.SetQuery([]any{"users", map[string]any{"status": ":status"}}, h)
//	fx.SetQuery([]any{"projects", "*"}, h) // any key starting with "projects"
package query

import (
	"context"
	"errors"

	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/intercept"
	"github.com/Kasava-AI/demokit-sub003/pattern"
	"github.com/Kasava-AI/demokit-sub003/registry"
)

// ErrNilFixtures is returned by New without a fixture set.
var ErrNilFixtures = errors.New("query: fixtures are required")

// QueryContext is passed to query fixtures.
type QueryContext struct {
	Key     []any
	Params  pattern.Params
	Pattern string
	CallID  string
}

// MutationContext is passed to mutation fixtures.
type MutationContext struct {
	Key       []any
	Variables any
	Params    pattern.Params
	Pattern   string
	CallID    string
}

// QueryFunc is a real query function.
type QueryFunc func(ctx context.Context, key []any) (any, error)

// MutationFunc is a real mutation function.
type MutationFunc func(ctx context.Context, key []any, variables any) (any, error)

// Fixtures holds query and mutation fixtures.
type Fixtures struct {
	queries   *registry.Registry[fixture.Handler[QueryContext]]
	mutations *registry.Registry[fixture.Handler[MutationContext]]
}

// NewFixtures returns empty query and mutation registries.
func NewFixtures(opts ...registry.Option) *Fixtures {
	return &Fixtures{
		queries:   registry.New[fixture.Handler[QueryContext]](pattern.KindTuple, opts...),
		mutations: registry.New[fixture.Handler[MutationContext]](pattern.KindTuple, opts...),
	}
}

// SetQuery registers h for query keys matching key, such as
// []any{"todos", ":id"}. An existing fixture for the same key is replaced
// in place.
func (f *Fixtures) SetQuery(key []any, h fixture.Handler[QueryContext]) error {
	return f.queries.Set(key, h)
}

// RemoveQuery removes the query fixture registered under key.
func (f *Fixtures) RemoveQuery(key []any) (bool, error) {
	return f.queries.Remove(key)
}

// SetMutation registers h for mutation keys matching key.
func (f *Fixtures) SetMutation(key []any, h fixture.Handler[MutationContext]) error {
	return f.mutations.Set(key, h)
}

// RemoveMutation removes the mutation fixture registered under key.
func (f *Fixtures) RemoveMutation(key []any) (bool, error) {
	return f.mutations.Remove(key)
}

// Clear removes all query and mutation fixtures.
func (f *Fixtures) Clear() {
	f.queries.Clear()
	f.mutations.Clear()
}

// Replace swaps in the fixtures of src.
func (f *Fixtures) Replace(src *Fixtures) error {
	if err := f.queries.ReplaceWith(src.queries); err != nil {
		return err
	}
	return f.mutations.ReplaceWith(src.mutations)
}

// Queries returns the query registry.
func (f *Fixtures) Queries() *registry.Registry[fixture.Handler[QueryContext]] {
	return f.queries
}

// Mutations returns the mutation registry.
func (f *Fixtures) Mutations() *registry.Registry[fixture.Handler[MutationContext]] {
	return f.mutations
}

// Interceptor wraps query and mutation functions.
type Interceptor struct {
	fixtures  *Fixtures
	queries   *intercept.Interceptor[QueryContext]
	mutations *intercept.Interceptor[MutationContext]
}

// New returns an Interceptor serving fixtures from f. cfg.Adapter is
// replaced by "query" and "mutation".
func New(f *Fixtures, cfg intercept.Config) (*Interceptor, error) {
	if f == nil {
		return nil, ErrNilFixtures
	}

	qc := cfg
	qc.Adapter = "query"
	queries, err := intercept.New[QueryContext](qc)
	if err != nil {
		return nil, err
	}

	mc := cfg
	mc.Adapter = "mutation"
	mutations, err := intercept.New[MutationContext](mc)
	if err != nil {
		return nil, err
	}

	return &Interceptor{fixtures: f, queries: queries, mutations: mutations}, nil
}

// Wrap returns a query function that serves a matching fixture in demo
// mode and calls next otherwise.
func (i *Interceptor) Wrap(next QueryFunc) QueryFunc {
	return func(ctx context.Context, key []any) (any, error) {
		return i.queries.Do(ctx, intercept.Call[QueryContext]{
			Kind:       pattern.KindTuple,
			Identifier: key,
			Lookup:     intercept.Find(i.fixtures.queries, key),
			Context: func(m intercept.Match, callID string) (QueryContext, error) {
				return QueryContext{Key: key, Params: m.Params, Pattern: m.Pattern.String(), CallID: callID}, nil
			},
		}, func(ctx context.Context) (any, error) {
			return next(ctx, key)
		})
	}
}

// WrapMutation returns a mutation function that serves a matching fixture
// in demo mode and calls next otherwise.
func (i *Interceptor) WrapMutation(next MutationFunc) MutationFunc {
	return func(ctx context.Context, key []any, variables any) (any, error) {
		return i.mutations.Do(ctx, intercept.Call[MutationContext]{
			Kind:       pattern.KindTuple,
			Identifier: key,
			Lookup:     intercept.Find(i.fixtures.mutations, key),
			Context: func(m intercept.Match, callID string) (MutationContext, error) {
				return MutationContext{
					Key:       key,
					Variables: variables,
					Params:    m.Params,
					Pattern:   m.Pattern.String(),
					CallID:    callID,
				}, nil
			},
		}, func(ctx context.Context) (any, error) {
			return next(ctx, key, variables)
		})
	}
}
