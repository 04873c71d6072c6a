package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/pattern"
	"github.com/Kasava-AI/demokit-sub003/query"
	"github.com/Kasava-AI/demokit-sub003/route"
	"github.com/Kasava-AI/demokit-sub003/swr"
	"github.com/Kasava-AI/demokit-sub003/trpc"
)

var (
	// ErrNoTarget is returned when a fixture's kind has no registry in the
	// Targets passed to Apply.
	ErrNoTarget = errors.New("config: no registry for fixture kind")

	// ErrDuplicateMethod is returned when two action fixtures share a key
	// and a method.
	ErrDuplicateMethod = errors.New("config: duplicate action method")
)

// Targets are the fixture sets Apply registers into. Nil targets are
// only an error when a file has fixtures for them.
type Targets struct {
	Routes     *route.Fixtures
	Queries    *query.Fixtures
	SWR        *swr.Fixtures
	Procedures *trpc.Fixtures
}

// Apply registers the fixtures of f into t.
func (f *File) Apply(t Targets) error {
	return Apply([]*File{f}, t)
}

// actionGroup collects method-keyed actions that share a key, remembering
// where each method was defined.
type actionGroup struct {
	methods fixture.Methods[route.ActionContext]
	origin  map[fixture.Method]string
}

// Apply registers the fixtures of files into t, in file order. Action
// fixtures that share a key and carry a method are merged into one
// method-keyed fixture at the position of the first of them. Every
// fixture is validated and its key compiled before anything is
// registered.
func Apply(files []*File, t Targets) error {
	var (
		steps  []func() error
		groups = map[string]*actionGroup{}
	)

	for _, file := range files {
		for i := range file.Fixtures {
			fx := &file.Fixtures[i]
			step, err := plan(file, i, fx, t, groups)
			if err != nil {
				return wrap(file, i, err)
			}
			if step == nil {
				continue
			}
			steps = append(steps, func() error {
				if err := step(); err != nil {
					return wrap(file, i, err)
				}
				return nil
			})
		}
	}

	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func wrap(file *File, i int, err error) error {
	return fmt.Errorf("%s: %w", origin(file, i), err)
}

// origin names fixture i of file in errors.
func origin(file *File, i int) string {
	if file.Path == "" {
		return fmt.Sprintf("fixture %d", i)
	}
	return fmt.Sprintf("%s: fixture %d", file.Path, i)
}

// compile compiles the fixture key with the pattern kind of its adapter.
func (fx *Fixture) compile() (*pattern.Pattern, error) {
	switch fx.Kind {
	case KindLoader, KindAction:
		return pattern.Compile(pattern.KindPath, fx.Key)
	case KindProcedure:
		return pattern.Compile(pattern.KindProcedure, fx.Key)
	case KindSWR:
		if _, ok := fx.Key.(string); ok {
			return pattern.Compile(pattern.KindPath, fx.Key)
		}
	}
	return pattern.Compile(pattern.KindTuple, fx.Key)
}

// plan returns the registration for fx. A method-keyed action whose key
// was already planned is merged into the earlier registration and yields
// no step of its own.
func plan(file *File, i int, fx *Fixture, t Targets, groups map[string]*actionGroup) (func() error, error) {
	if err := fx.validate(); err != nil {
		return nil, err
	}
	p, err := fx.compile()
	if err != nil {
		return nil, err
	}

	d := time.Duration(file.Delay)
	if fx.Delay != nil {
		d = time.Duration(*fx.Delay)
	}

	switch fx.Kind {
	case KindLoader:
		if t.Routes == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoTarget, fx.Kind)
		}
		key, h := fx.Key.(string), static[route.LoaderContext](fx.routeValue(), d)
		return func() error { return t.Routes.SetLoader(key, h) }, nil

	case KindAction:
		if t.Routes == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoTarget, fx.Kind)
		}
		key, h := fx.Key.(string), static[route.ActionContext](fx.routeValue(), d)
		if fx.Method == "" {
			return func() error { return t.Routes.SetAction(key, h) }, nil
		}

		m := fixture.Method(fx.Method)
		where := origin(file, i)
		if g, ok := groups[p.String()]; ok {
			if prev, dup := g.origin[m]; dup {
				return nil, fmt.Errorf("%w: %s %s also set by %s", ErrDuplicateMethod, m, key, prev)
			}
			g.methods[m] = h
			g.origin[m] = where
			return nil, nil
		}
		g := &actionGroup{
			methods: fixture.Methods[route.ActionContext]{m: h},
			origin:  map[fixture.Method]string{m: where},
		}
		groups[p.String()] = g
		return func() error { return t.Routes.SetActionMethods(key, g.methods) }, nil

	case KindQuery:
		if t.Queries == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoTarget, fx.Kind)
		}
		key, h := fx.Key.([]any), static[query.QueryContext](fx.Body, d)
		return func() error { return t.Queries.SetQuery(key, h) }, nil

	case KindMutation:
		if t.Queries == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoTarget, fx.Kind)
		}
		key, h := fx.Key.([]any), static[query.MutationContext](fx.Body, d)
		return func() error { return t.Queries.SetMutation(key, h) }, nil

	case KindSWR:
		if t.SWR == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoTarget, fx.Kind)
		}
		key, h := fx.Key, static[swr.Context](fx.Body, d)
		return func() error { return t.SWR.Set(key, h) }, nil

	case KindProcedure:
		if t.Procedures == nil {
			return nil, fmt.Errorf("%w: %s", ErrNoTarget, fx.Kind)
		}
		key, h := fx.Key.(string), static[trpc.Context](fx.Body, d)
		return func() error { return t.Procedures.Set(key, h) }, nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(fx.Kind))
}

// routeValue wraps the body in a route.Response when the fixture sets a
// status or headers.
func (fx *Fixture) routeValue() any {
	if fx.Status == 0 && len(fx.Headers) == 0 {
		return fx.Body
	}
	return &route.Response{Status: fx.Status, Header: fx.header(), Body: fx.Body}
}

func static[C any](v any, d time.Duration) fixture.Handler[C] {
	return fixture.Delayed(fixture.Static[C](v), d)
}
