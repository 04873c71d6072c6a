package intercept

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Kasava-AI/demokit-sub003/demomode"
	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/pattern"
	"github.com/Kasava-AI/demokit-sub003/registry"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type testCtx struct {
	Params pattern.Params
	Path   string
	CallID string
}

type recorder struct {
	mu        sync.Mutex
	served    int
	failed    int
	fallbacks []Reason
}

func (r *recorder) Served(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.served++
}

func (r *recorder) Fallback(_ string, reason Reason) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fallbacks = append(r.fallbacks, reason)
}

func (r *recorder) Failed(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func pathCall(reg *registry.Registry[fixture.Handler[testCtx]], path string) Call[testCtx] {
	return Call[testCtx]{
		Kind:       pattern.KindPath,
		Identifier: path,
		Lookup:     Find(reg, path),
		Context: func(m Match, callID string) (testCtx, error) {
			return testCtx{Params: m.Params, Path: path, CallID: callID}, nil
		},
	}
}

func realReturning(v any, calls *int) RealFunc {
	return func(context.Context) (any, error) {
		if calls != nil {
			*calls++
		}
		return v, nil
	}
}

func newReg(t *testing.T) *registry.Registry[fixture.Handler[testCtx]] {
	t.Helper()
	return registry.New[fixture.Handler[testCtx]](pattern.KindPath)
}

func TestNew(t *testing.T) {
	t.Run("requires predicate", func(t *testing.T) {
		_, err := New[testCtx](Config{})
		assert.ErrorIs(t, err, ErrNoPredicate)
	})

	t.Run("rejects negative delay", func(t *testing.T) {
		_, err := New[testCtx](Config{Enabled: demomode.Static(true), Delay: -time.Second})
		assert.ErrorIs(t, err, ErrInvalidDelay)
	})

	t.Run("defaults", func(t *testing.T) {
		ic, err := New[testCtx](Config{Adapter: "loader", Enabled: demomode.Static(true)})
		require.NoError(t, err)
		assert.Equal(t, "loader", ic.Adapter())
		assert.True(t, ic.Enabled(context.Background()))
	})
}

func TestDoDisabled(t *testing.T) {
	lookups := 0
	rec := &recorder{}
	ic, err := New[testCtx](Config{Enabled: demomode.Static(false), Observer: rec})
	require.NoError(t, err)

	realCalls := 0
	got, err := ic.Do(context.Background(), Call[testCtx]{
		Lookup: func() (registry.Hit[fixture.Handler[testCtx]], registry.Outcome) {
			lookups++
			return registry.Hit[fixture.Handler[testCtx]]{}, registry.OutcomeNoMatch
		},
	}, realReturning("real", &realCalls))

	require.NoError(t, err)
	assert.Equal(t, "real", got)
	assert.Equal(t, 1, realCalls)
	assert.Zero(t, lookups)
	assert.Equal(t, []Reason{ReasonDisabled}, rec.fallbacks)
}

func TestDoNoMatch(t *testing.T) {
	reg := newReg(t)
	require.NoError(t, reg.Set("/users/:id", fixture.Static[testCtx]("fixture")))

	var missingKind pattern.Kind
	var missingID any
	rec := &recorder{}
	ic, err := New[testCtx](Config{
		Enabled:  demomode.Static(true),
		Observer: rec,
		OnMissing: func(kind pattern.Kind, id any) {
			missingKind, missingID = kind, id
		},
	})
	require.NoError(t, err)

	realCalls := 0
	got, err := ic.Do(context.Background(), pathCall(reg, "/posts/1"), realReturning("real", &realCalls))
	require.NoError(t, err)
	assert.Equal(t, "real", got)
	assert.Equal(t, 1, realCalls)
	assert.Equal(t, pattern.KindPath, missingKind)
	assert.Equal(t, "/posts/1", missingID)
	assert.Equal(t, []Reason{ReasonNoMatch}, rec.fallbacks)
}

func TestDoMatched(t *testing.T) {
	reg := newReg(t)
	require.NoError(t, reg.Set("/users/:id", fixture.FromFunc(func(_ context.Context, c testCtx) (any, error) {
		return map[string]any{"id": c.Params.String("id"), "call": c.CallID}, nil
	})))

	var demoCtx any
	rec := &recorder{}
	ic, err := New[testCtx](Config{
		Enabled:  demomode.Static(true),
		Observer: rec,
		IDFunc:   func(context.Context) string { return "call-1" },
		OnDemo: func(_ context.Context, hc any) {
			demoCtx = hc
		},
	})
	require.NoError(t, err)

	realCalls := 0
	got, err := ic.Do(context.Background(), pathCall(reg, "/users/42"), realReturning("real", &realCalls))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"id": "42", "call": "call-1"}, got)
	assert.Zero(t, realCalls)
	assert.Equal(t, 1, rec.served)
	assert.Empty(t, rec.fallbacks)

	hc, ok := demoCtx.(testCtx)
	require.True(t, ok)
	assert.Equal(t, "/users/42", hc.Path)
	assert.Equal(t, "call-1", hc.CallID)
}

func TestDoDefaultCallID(t *testing.T) {
	reg := newReg(t)
	require.NoError(t, reg.Set("/me", fixture.FromFunc(func(_ context.Context, c testCtx) (any, error) {
		return c.CallID, nil
	})))

	ic, err := New[testCtx](Config{Enabled: demomode.Static(true)})
	require.NoError(t, err)

	a, err := ic.Do(context.Background(), pathCall(reg, "/me"), realReturning(nil, nil))
	require.NoError(t, err)
	b, err := ic.Do(context.Background(), pathCall(reg, "/me"), realReturning(nil, nil))
	require.NoError(t, err)

	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

func TestDoMethodDispatch(t *testing.T) {
	reg := newReg(t)
	require.NoError(t, reg.SetMethods("/items/:id", map[fixture.Method]fixture.Handler[testCtx]{
		fixture.MethodPut: fixture.Static[testCtx]("updated"),
	}))

	rec := &recorder{}
	ic, err := New[testCtx](Config{Enabled: demomode.Static(true), Observer: rec})
	require.NoError(t, err)

	call := func(m fixture.Method) Call[testCtx] {
		c := pathCall(reg, "/items/1")
		c.Lookup = FindForMethod(reg, "/items/1", m)
		return c
	}

	got, err := ic.Do(context.Background(), call(fixture.MethodPut), realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "updated", got)

	got, err = ic.Do(context.Background(), call(fixture.MethodDelete), realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "real", got)
	assert.Equal(t, []Reason{ReasonNoHandlerForMethod}, rec.fallbacks)

	t.Run("find without method skips keyed entries", func(t *testing.T) {
		got, err := ic.Do(context.Background(), pathCall(reg, "/items/1"), realReturning("real", nil))
		require.NoError(t, err)
		assert.Equal(t, "real", got)
	})
}

func TestDoToggle(t *testing.T) {
	reg := newReg(t)
	require.NoError(t, reg.Set("/dashboard", fixture.Static[testCtx]("demo")))

	toggle := demomode.NewToggle(false)
	ic, err := New[testCtx](Config{Enabled: toggle})
	require.NoError(t, err)

	got, err := ic.Do(context.Background(), pathCall(reg, "/dashboard"), realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "real", got)

	toggle.Set(true)

	got, err = ic.Do(context.Background(), pathCall(reg, "/dashboard"), realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "demo", got)
}

func TestDoRegistrationTakesEffect(t *testing.T) {
	reg := newReg(t)
	ic, err := New[testCtx](Config{Enabled: demomode.Static(true)})
	require.NoError(t, err)

	got, err := ic.Do(context.Background(), pathCall(reg, "/late"), realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "real", got)

	require.NoError(t, reg.Set("/late", fixture.Static[testCtx]("fixture")))

	got, err = ic.Do(context.Background(), pathCall(reg, "/late"), realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "fixture", got)
}

func TestDoHandlerError(t *testing.T) {
	boom := errors.New("user not found")
	reg := newReg(t)
	require.NoError(t, reg.Set("/users/:id", fixture.FromFunc(func(context.Context, testCtx) (any, error) {
		return nil, boom
	})))

	rec := &recorder{}
	ic, err := New[testCtx](Config{Enabled: demomode.Static(true), Observer: rec})
	require.NoError(t, err)

	realCalls := 0
	_, err = ic.Do(context.Background(), pathCall(reg, "/users/1"), realReturning("real", &realCalls))
	assert.Same(t, boom, err)
	assert.Equal(t, "user not found", err.Error())
	assert.Zero(t, realCalls)
	assert.Equal(t, 1, rec.failed)
}

func TestDoContextError(t *testing.T) {
	bad := errors.New("bad form")
	reg := newReg(t)
	require.NoError(t, reg.Set("/form", fixture.Static[testCtx]("ok")))

	ic, err := New[testCtx](Config{Enabled: demomode.Static(true)})
	require.NoError(t, err)

	call := pathCall(reg, "/form")
	call.Context = func(Match, string) (testCtx, error) {
		return testCtx{}, bad
	}
	_, err = ic.Do(context.Background(), call, realReturning("real", nil))
	assert.ErrorIs(t, err, bad)
}

func TestDoPredicateError(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	rec := &recorder{}
	ic, err := New[testCtx](Config{
		Enabled: demomode.Func(func(context.Context) (bool, error) {
			return true, errors.New("cookie jar unavailable")
		}),
		Logger:   zap.New(core),
		Observer: rec,
	})
	require.NoError(t, err)

	got, err := ic.Do(context.Background(), Call[testCtx]{}, realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "real", got)
	assert.Equal(t, []Reason{ReasonPredicateError}, rec.fallbacks)

	entries := logs.FilterMessage("demo mode predicate failed").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "cookie jar unavailable", entries[0].ContextMap()["error"])
}

func TestDoRequestScopedPredicate(t *testing.T) {
	reg := newReg(t)
	require.NoError(t, reg.Set("/", fixture.Static[testCtx]("demo")))

	ic, err := New[testCtx](Config{Enabled: demomode.FromContext})
	require.NoError(t, err)

	got, err := ic.Do(context.Background(), pathCall(reg, "/"), realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "real", got)

	got, err = ic.Do(demomode.WithEnabled(context.Background(), true), pathCall(reg, "/"), realReturning("real", nil))
	require.NoError(t, err)
	assert.Equal(t, "demo", got)
}

func TestDoDelay(t *testing.T) {
	const delay = 150 * time.Millisecond

	reg := newReg(t)
	require.NoError(t, reg.Set("/slow/:n", fixture.FromFunc(func(_ context.Context, c testCtx) (any, error) {
		return c.Params.String("n"), nil
	})))

	ic, err := New[testCtx](Config{Enabled: demomode.Static(true), Delay: delay})
	require.NoError(t, err)

	t.Run("single call waits", func(t *testing.T) {
		start := time.Now()
		got, err := ic.Do(context.Background(), pathCall(reg, "/slow/1"), realReturning(nil, nil))
		require.NoError(t, err)
		assert.Equal(t, "1", got)
		assert.GreaterOrEqual(t, time.Since(start), delay)
	})

	t.Run("concurrent delays run in parallel", func(t *testing.T) {
		const calls = 8
		var wg sync.WaitGroup
		took := make([]time.Duration, calls)

		start := time.Now()
		for n := range calls {
			wg.Add(1)
			go func() {
				defer wg.Done()
				s := time.Now()
				_, err := ic.Do(context.Background(), pathCall(reg, "/slow/x"), realReturning(nil, nil))
				assert.NoError(t, err)
				took[n] = time.Since(s)
			}()
		}
		wg.Wait()
		total := time.Since(start)

		for _, d := range took {
			assert.GreaterOrEqual(t, d, delay)
		}
		assert.Less(t, total, 4*delay)
	})

	t.Run("cancellation stops the delay", func(t *testing.T) {
		ran := false
		reg := newReg(t)
		require.NoError(t, reg.Set("/never", fixture.FromFunc(func(context.Context, testCtx) (any, error) {
			ran = true
			return nil, nil
		})))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		start := time.Now()
		_, err := ic.Do(ctx, pathCall(reg, "/never"), realReturning(nil, nil))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
		assert.Less(t, time.Since(start), delay)
		assert.False(t, ran)
	})
}

func TestDoAsyncCancellation(t *testing.T) {
	reg := newReg(t)
	require.NoError(t, reg.Set("/stream", fixture.FromAsync(func(ctx context.Context, _ testCtx) <-chan fixture.Result {
		ch := make(chan fixture.Result, 1)
		go func() {
			select {
			case <-time.After(time.Second):
				ch <- fixture.Result{Value: "late"}
			case <-ctx.Done():
			}
		}()
		return ch
	})))

	ic, err := New[testCtx](Config{Enabled: demomode.Static(true)})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err = ic.Do(ctx, pathCall(reg, "/stream"), realReturning(nil, nil))
	assert.ErrorIs(t, err, context.Canceled)
}

func BenchmarkDo(b *testing.B) {
	reg := registry.New[fixture.Handler[testCtx]](pattern.KindPath)
	for _, p := range []string{"/a/:x", "/b/:y/c", "/users/:id", "/users/:id/posts/*"} {
		if err := reg.Set(p, fixture.Static[testCtx]("v")); err != nil {
			b.Fatal(err)
		}
	}
	ic, err := New[testCtx](Config{Enabled: demomode.Static(true), IDFunc: func(context.Context) string { return "bench" }})
	if err != nil {
		b.Fatal(err)
	}
	call := pathCall(reg, "/users/7/posts/1/comments")
	next := realReturning(nil, nil)

	for b.Loop() {
		_, _ = ic.Do(context.Background(), call, next)
	}
}
