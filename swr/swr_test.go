package swr

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kasava-AI/demokit-sub003/demomode"
	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/intercept"
	"github.com/Kasava-AI/demokit-sub003/pattern"
)

type fetchRecorder struct {
	calls int
	keys  []any
}

func (r *fetchRecorder) fetch(_ context.Context, key any) (any, error) {
	r.calls++
	r.keys = append(r.keys, key)
	return "real", nil
}

func newFetcher(t *testing.T, fx *Fixtures, on demomode.Predicate) (Fetcher, *fetchRecorder) {
	t.Helper()
	mw, err := Middleware(fx, intercept.Config{Enabled: on})
	require.NoError(t, err)
	rec := &fetchRecorder{}
	return mw(rec.fetch), rec
}

func TestMiddlewareErrors(t *testing.T) {
	_, err := Middleware(nil, intercept.Config{Enabled: demomode.Static(true)})
	assert.ErrorIs(t, err, ErrNilFixtures)

	_, err = Middleware(NewFixtures(), intercept.Config{})
	assert.ErrorIs(t, err, intercept.ErrNoPredicate)
}

func TestMiddlewareStringKeys(t *testing.T) {
	fx := NewFixtures()
	require.NoError(t, fx.Set("/api/users/:id", fixture.FromFunc(func(_ context.Context, c Context) (any, error) {
		return map[string]any{"id": c.Params.String("id"), "match": c.Match, "key": c.NormalizedKey}, nil
	})))
	require.NoError(t, fx.Set("/api/files/*", fixture.FromFunc(func(_ context.Context, c Context) (any, error) {
		return c.Params.String("*"), nil
	})))

	fetch, rec := newFetcher(t, fx, demomode.Static(true))

	got, err := fetch(context.Background(), "/api/users/7")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "7", "match": "/api/users/:id", "key": "/api/users/7"}, got)

	got, err = fetch(context.Background(), "/api/files/docs/readme.md")
	require.NoError(t, err)
	assert.Equal(t, "docs/readme.md", got)

	got, err = fetch(context.Background(), "/api/teams")
	require.NoError(t, err)
	assert.Equal(t, "real", got)
	assert.Equal(t, []any{"/api/teams"}, rec.keys)
}

func TestMiddlewareTupleKeys(t *testing.T) {
	fx := NewFixtures()
	require.NoError(t, fx.Set([]any{"/api/user", ":token"}, fixture.FromFunc(func(_ context.Context, c Context) (any, error) {
		return c.NormalizedKey + " " + c.Params.String("token"), nil
	})))

	fetch, rec := newFetcher(t, fx, demomode.Static(true))

	got, err := fetch(context.Background(), []any{"/api/user", "abc"})
	require.NoError(t, err)
	assert.Equal(t, `["/api/user","abc"] abc`, got)

	got, err = fetch(context.Background(), []string{"/api/user", "xyz"})
	require.NoError(t, err)
	assert.Equal(t, `["/api/user","xyz"] xyz`, got)

	got, err = fetch(context.Background(), []any{"/api/user"})
	require.NoError(t, err)
	assert.Equal(t, "real", got)
	assert.Equal(t, 1, rec.calls)
}

func TestMiddlewareKeyFunctions(t *testing.T) {
	fx := NewFixtures()
	require.NoError(t, fx.Set("/api/me", fixture.Static[Context]("me")))

	fetch, rec := newFetcher(t, fx, demomode.Static(true))

	got, err := fetch(context.Background(), func() any { return "/api/me" })
	require.NoError(t, err)
	assert.Equal(t, "me", got)

	got, err = fetch(context.Background(), func() string { return "/api/me" })
	require.NoError(t, err)
	assert.Equal(t, "me", got)

	t.Run("nil keys bypass", func(t *testing.T) {
		for _, key := range []any{nil, "", []any{}, func() any { return nil }, func() []any { return nil }} {
			got, err := fetch(context.Background(), key)
			require.NoError(t, err)
			assert.Equal(t, "real", got)
		}
		assert.Equal(t, 5, rec.calls)
	})
}

func TestMiddlewareDisabled(t *testing.T) {
	fx := NewFixtures()
	require.NoError(t, fx.Set("/api/me", fixture.Static[Context]("me")))

	toggle := demomode.NewToggle(false)
	fetch, _ := newFetcher(t, fx, toggle)

	got, err := fetch(context.Background(), "/api/me")
	require.NoError(t, err)
	assert.Equal(t, "real", got)

	toggle.Set(true)
	got, err = fetch(context.Background(), "/api/me")
	require.NoError(t, err)
	assert.Equal(t, "me", got)
}

func TestMiddlewareHandlerError(t *testing.T) {
	boom := errors.New("expired")
	fx := NewFixtures()
	require.NoError(t, fx.Set("/api/session", fixture.FromFunc(func(context.Context, Context) (any, error) {
		return nil, boom
	})))

	fetch, rec := newFetcher(t, fx, demomode.Static(true))
	_, err := fetch(context.Background(), "/api/session")
	assert.Same(t, boom, err)
	assert.Zero(t, rec.calls)
}

func TestNormalizeKey(t *testing.T) {
	tests := []struct {
		name string
		key  any
		want string
	}{
		{"nil", nil, ""},
		{"string", "/api/users", "/api/users"},
		{"tuple", []any{"/api/users", 1, true}, `["/api/users",1,true]`},
		{"object keys sorted", []any{"q", map[string]any{"b": 2, "a": 1}}, `["q",{"a":1,"b":2}]`},
		{"func", func() any { return []any{"x"} }, `["x"]`},
		{"unsupported", 42, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeKey(tt.key))
		})
	}
}

func TestFixtures(t *testing.T) {
	fx := NewFixtures()
	require.NoError(t, fx.Set("/a", fixture.Static[Context](1)))
	require.NoError(t, fx.Set([]any{"b"}, fixture.Static[Context](2)))
	assert.Equal(t, 2, fx.Len())

	err := fx.Set(42, fixture.Static[Context](3))
	assert.ErrorIs(t, err, pattern.ErrInvalidKey)

	removed, err := fx.Remove([]any{"b"})
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = fx.Remove(3.5)
	assert.Error(t, err)

	fx.Clear()
	assert.Zero(t, fx.Len())
}
