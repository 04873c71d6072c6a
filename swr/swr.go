// Package swr provides fetcher middleware in the style of SWR: a fetcher
// is called with a key and the middleware may answer it from fixtures.
//
// Keys are strings, slices, or functions returning either. A string key
// is matched as a path ("/api/users/:id"); a slice key is matched as a
// tuple. A nil or empty key, or a key function returning one, means the
// caller does not want to fetch yet: the call passes straight to the
// fetcher.
package swr

import (
	"context"
	"errors"
	"reflect"

	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/intercept"
	"github.com/Kasava-AI/demokit-sub003/pattern"
	"github.com/Kasava-AI/demokit-sub003/registry"
)

// ErrNilFixtures is returned by Middleware without a fixture set.
var ErrNilFixtures = errors.New("swr: fixtures are required")

// Context is passed to SWR fixtures.
type Context struct {
	// Key is the resolved key: a string or a slice.
	Key           any
	NormalizedKey string
	Params        pattern.Params
	// Match is the source of the pattern that matched.
	Match  string
	CallID string
}

// Fetcher is an SWR fetcher.
type Fetcher func(ctx context.Context, key any) (any, error)

// Fixtures holds fixtures for string keys and slice keys.
type Fixtures struct {
	strings *registry.Registry[fixture.Handler[Context]]
	tuples  *registry.Registry[fixture.Handler[Context]]
}

// NewFixtures returns empty registries.
func NewFixtures(opts ...registry.Option) *Fixtures {
	return &Fixtures{
		strings: registry.New[fixture.Handler[Context]](pattern.KindPath, opts...),
		tuples:  registry.New[fixture.Handler[Context]](pattern.KindTuple, opts...),
	}
}

// Set registers h for key, a string pattern or a slice pattern.
func (f *Fixtures) Set(key any, h fixture.Handler[Context]) error {
	r, err := f.registryFor(key)
	if err != nil {
		return err
	}
	return r.Set(key, h)
}

// Remove removes the fixture registered under key.
func (f *Fixtures) Remove(key any) (bool, error) {
	r, err := f.registryFor(key)
	if err != nil {
		return false, err
	}
	return r.Remove(key)
}

// Clear removes every fixture.
func (f *Fixtures) Clear() {
	f.strings.Clear()
	f.tuples.Clear()
}

// Replace swaps in the fixtures of src.
func (f *Fixtures) Replace(src *Fixtures) error {
	if err := f.strings.ReplaceWith(src.strings); err != nil {
		return err
	}
	return f.tuples.ReplaceWith(src.tuples)
}

// Len returns the number of fixtures.
func (f *Fixtures) Len() int {
	return f.strings.Len() + f.tuples.Len()
}

func (f *Fixtures) registryFor(key any) (*registry.Registry[fixture.Handler[Context]], error) {
	if _, ok := key.(string); ok {
		return f.strings, nil
	}
	if isSlice(key) {
		return f.tuples, nil
	}
	return nil, &pattern.CompileError{Kind: pattern.KindTuple, Key: key, Err: pattern.ErrInvalidKey}
}

// Middleware returns SWR middleware that serves fixtures from f.
// cfg.Adapter defaults to "swr".
func Middleware(f *Fixtures, cfg intercept.Config) (func(Fetcher) Fetcher, error) {
	if f == nil {
		return nil, ErrNilFixtures
	}
	if cfg.Adapter == "" {
		cfg.Adapter = "swr"
	}
	ic, err := intercept.New[Context](cfg)
	if err != nil {
		return nil, err
	}

	return func(next Fetcher) Fetcher {
		return func(ctx context.Context, key any) (any, error) {
			k, ok := resolveKey(key)
			if !ok {
				return next(ctx, key)
			}

			kind, reg := pattern.KindPath, f.strings
			if _, isString := k.(string); !isString {
				kind, reg = pattern.KindTuple, f.tuples
			}

			return ic.Do(ctx, intercept.Call[Context]{
				Kind:       kind,
				Identifier: k,
				Lookup:     intercept.Find(reg, k),
				Context: func(m intercept.Match, callID string) (Context, error) {
					return Context{
						Key:           k,
						NormalizedKey: normalize(k),
						Params:        m.Params,
						Match:         m.Pattern.String(),
						CallID:        callID,
					}, nil
				},
			}, func(ctx context.Context) (any, error) {
				return next(ctx, k)
			})
		}
	}, nil
}

// NormalizeKey returns the canonical string form of key: strings are
// returned as-is, slices as compact JSON with sorted object keys. Key
// functions are resolved first. Nil and unsupported keys give "".
func NormalizeKey(key any) string {
	k, ok := resolveKey(key)
	if !ok {
		return ""
	}
	return normalize(k)
}

func normalize(k any) string {
	if s, ok := k.(string); ok {
		return s
	}
	s, err := pattern.CanonicalKey(pattern.KindTuple, k)
	if err != nil {
		return ""
	}
	return s
}

// resolveKey unwraps key functions and reports whether the result is a
// fetchable key.
func resolveKey(key any) (any, bool) {
	switch k := key.(type) {
	case nil:
		return nil, false
	case func() any:
		return resolveKey(k())
	case func() string:
		return resolveKey(k())
	case func() []any:
		return resolveKey(k())
	case string:
		return k, k != ""
	}
	if isSlice(key) && reflect.ValueOf(key).Len() > 0 {
		return key, true
	}
	return nil, false
}

func isSlice(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Slice
}
