// Package intercept implements the per-call state machine shared by every
// adapter: check demo mode, look the call up in a registry, then either
// run the matched fixture or fall back to the real function.
package intercept

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Kasava-AI/demokit-sub003/demomode"
	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/pattern"
	"github.com/Kasava-AI/demokit-sub003/registry"
)

var (
	// ErrNoPredicate is returned by New when Config.Enabled is nil.
	ErrNoPredicate = errors.New("intercept: demo mode predicate is required")

	// ErrInvalidDelay is returned by New for a negative delay.
	ErrInvalidDelay = errors.New("intercept: delay must not be negative")
)

// Reason explains why a call was passed to the real function.
type Reason string

const (
	ReasonDisabled           Reason = "disabled"
	ReasonPredicateError     Reason = "predicate_error"
	ReasonNoMatch            Reason = "no_match"
	ReasonNoHandlerForMethod Reason = "no_handler_for_method"
)

// Observer receives the outcome of every intercepted call. Implementations
// must be safe for concurrent use.
type Observer interface {
	// Served is called after a fixture produced a result.
	Served(adapter string, d time.Duration)
	// Fallback is called before the real function runs.
	Fallback(adapter string, reason Reason)
	// Failed is called when a matched fixture returned an error or the
	// call was cancelled while it ran.
	Failed(adapter string, d time.Duration)
}

type nopObserver struct{}

func (nopObserver) Served(string, time.Duration) {}
func (nopObserver) Fallback(string, Reason)      {}
func (nopObserver) Failed(string, time.Duration) {}

// MissingFunc is notified when demo mode is on but no fixture serves the
// call.
type MissingFunc func(kind pattern.Kind, id any)

// DemoFunc is notified with the handler context of every call served by a
// fixture.
type DemoFunc func(ctx context.Context, hc any)

// Config configures an Interceptor.
type Config struct {
	// Adapter names the call shape in logs and metrics.
	Adapter string

	// Enabled decides per call whether fixtures are consulted.
	Enabled demomode.Predicate

	// Delay is the simulated latency applied before every fixture runs.
	Delay time.Duration

	OnMissing MissingFunc
	OnDemo    DemoFunc

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Observer defaults to a no-op observer.
	Observer Observer

	// IDFunc generates call IDs. It defaults to a random UUID; servers
	// may return the request ID carried by ctx instead.
	IDFunc func(ctx context.Context) string
}

// RealFunc runs the real, non-demo implementation of a call.
type RealFunc func(ctx context.Context) (any, error)

// Lookup resolves a call against a registry.
type Lookup[C any] func() (registry.Hit[fixture.Handler[C]], registry.Outcome)

// Match describes the registry entry serving a call.
type Match struct {
	Pattern *pattern.Pattern
	Params  pattern.Params
	// Exact is true when the identifier hit the exact-key index.
	Exact bool
}

// Call describes one intercepted invocation.
type Call[C any] struct {
	// Kind and Identifier are reported to OnMissing and logs.
	Kind       pattern.Kind
	Identifier any

	Lookup Lookup[C]

	// Context builds the handler context for a matched call.
	Context func(m Match, callID string) (C, error)
}

// Interceptor runs calls whose handler context is C.
type Interceptor[C any] struct {
	cfg    Config
	logger *zap.Logger
}

// New validates cfg and returns an Interceptor.
func New[C any](cfg Config) (*Interceptor[C], error) {
	if cfg.Enabled == nil {
		return nil, ErrNoPredicate
	}
	if cfg.Delay < 0 {
		return nil, ErrInvalidDelay
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if cfg.IDFunc == nil {
		cfg.IDFunc = newCallID
	}

	return &Interceptor[C]{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("adapter", cfg.Adapter)),
	}, nil
}

// Adapter returns the configured adapter name.
func (i *Interceptor[C]) Adapter() string {
	return i.cfg.Adapter
}

// Enabled evaluates the demo mode predicate. Predicate errors are logged
// and count as disabled.
func (i *Interceptor[C]) Enabled(ctx context.Context) bool {
	on, _ := i.enabled(ctx)
	return on
}

func (i *Interceptor[C]) enabled(ctx context.Context) (bool, Reason) {
	on, err := i.cfg.Enabled.Enabled(ctx)
	if err != nil {
		i.logger.Warn("demo mode predicate failed", zap.Error(err))
		return false, ReasonPredicateError
	}
	if !on {
		return false, ReasonDisabled
	}
	return true, ""
}

// Do runs call. When demo mode is off, or no fixture serves the call,
// fallback is invoked. Otherwise the matched handler runs after the
// configured delay and its result or error is returned unchanged.
//
// Both the delay and async handlers stop waiting when ctx is done; the
// call then returns ctx.Err().
func (i *Interceptor[C]) Do(ctx context.Context, call Call[C], fallback RealFunc) (any, error) {
	on, reason := i.enabled(ctx)
	if !on {
		i.cfg.Observer.Fallback(i.cfg.Adapter, reason)
		return fallback(ctx)
	}

	var (
		hit     registry.Hit[fixture.Handler[C]]
		outcome = registry.OutcomeNoMatch
	)
	if call.Lookup != nil {
		hit, outcome = call.Lookup()
	}

	if outcome != registry.OutcomeHit {
		reason := ReasonNoMatch
		if outcome == registry.OutcomeNoHandlerForMethod {
			reason = ReasonNoHandlerForMethod
		}
		i.logger.Debug("no fixture, calling real function",
			zap.Stringer("kind", call.Kind),
			zap.Any("identifier", call.Identifier),
			zap.String("reason", string(reason)),
		)
		if i.cfg.OnMissing != nil {
			i.cfg.OnMissing(call.Kind, call.Identifier)
		}
		i.cfg.Observer.Fallback(i.cfg.Adapter, reason)
		return fallback(ctx)
	}

	callID := i.cfg.IDFunc(ctx)
	logger := i.logger.With(zap.String("call_id", callID), zap.String("pattern", hit.Entry.Pattern.String()))

	var hc C
	if call.Context != nil {
		var err error
		m := Match{Pattern: hit.Entry.Pattern, Params: hit.Params, Exact: hit.Exact}
		if hc, err = call.Context(m, callID); err != nil {
			logger.Debug("building fixture context failed", zap.Error(err))
			i.cfg.Observer.Failed(i.cfg.Adapter, 0)
			return nil, err
		}
	}

	if i.cfg.OnDemo != nil {
		i.cfg.OnDemo(ctx, hc)
	}

	start := time.Now()
	if err := fixture.Sleep(ctx, i.cfg.Delay); err != nil {
		logger.Debug("fixture delay interrupted", zap.Error(err))
		i.cfg.Observer.Failed(i.cfg.Adapter, time.Since(start))
		return nil, err
	}

	v, err := fixture.Execute(ctx, hit.Handler, hc)
	took := time.Since(start)
	if err != nil {
		logger.Debug("fixture returned error", zap.Error(err), zap.Duration("took", took))
		i.cfg.Observer.Failed(i.cfg.Adapter, took)
		return nil, err
	}

	logger.Debug("fixture served", zap.Duration("took", took))
	i.cfg.Observer.Served(i.cfg.Adapter, took)
	return v, nil
}

func newCallID(context.Context) string {
	return uuid.NewString()
}

// Find returns a Lookup that resolves id in r without a method. A
// method-keyed entry matched this way has no handler to run.
func Find[C any](r *registry.Registry[fixture.Handler[C]], id any) Lookup[C] {
	return func() (registry.Hit[fixture.Handler[C]], registry.Outcome) {
		hit, ok := r.Find(id)
		if !ok {
			return hit, registry.OutcomeNoMatch
		}
		if hit.Entry.Target.MethodKeyed() {
			return hit, registry.OutcomeNoHandlerForMethod
		}
		return hit, registry.OutcomeHit
	}
}

// FindForMethod returns a Lookup that resolves id in r for the given verb.
func FindForMethod[C any](r *registry.Registry[fixture.Handler[C]], id any, m fixture.Method) Lookup[C] {
	return func() (registry.Hit[fixture.Handler[C]], registry.Outcome) {
		return r.FindForMethod(id, m)
	}
}
