// Package route intercepts route-level data functions: loaders for reads
// and actions for writes, keyed by URL path.
//
// Loader fixtures are single handlers. Action fixtures are either a single
// handler serving every verb, or a set of handlers keyed by POST, PUT,
// PATCH or DELETE. An action call whose verb has no handler falls back to
// the real action.
//
//	fx := route.NewFixtures()
//	fx.SetLoader("/users/:id", fixture.FromFunc(func(_ context.Context, c route.LoaderContext) (any, error) {
//		return User{ID: c.Params.String("id")}, nil
//	}))
//
//	ic, err := route.New(fx, route.Options{Config: intercept.Config{Enabled: demomode.FromContext}})
//	loader := ic.WrapLoader(realLoader)
package route

import (
	"net/http"
	"net/url"

	"github.com/tidwall/gjson"

	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/pattern"
	"github.com/Kasava-AI/demokit-sub003/registry"
)

// LoaderContext is passed to loader fixtures.
type LoaderContext struct {
	Params  pattern.Params
	Request *http.Request
	Path    string
	CallID  string
}

// ActionContext is passed to action fixtures. FormData holds url-encoded
// or multipart form values; any other request body is kept in Body.
type ActionContext struct {
	Params   pattern.Params
	Request  *http.Request
	Path     string
	Method   fixture.Method
	FormData url.Values
	Body     []byte
	CallID   string
}

// Form returns the first form value for name.
func (c ActionContext) Form(name string) string {
	return c.FormData.Get(name)
}

// JSON returns the value at path in a JSON body, using gjson path syntax.
func (c ActionContext) JSON(path string) gjson.Result {
	return gjson.GetBytes(c.Body, path)
}

// LoaderFunc is a real loader.
type LoaderFunc func(r *http.Request) (any, error)

// ActionFunc is a real action.
type ActionFunc func(r *http.Request) (any, error)

type (
	loaderRegistry = registry.Registry[fixture.Handler[LoaderContext]]
	actionRegistry = registry.Registry[fixture.Handler[ActionContext]]
)

// Fixtures holds the loader and action fixtures of an application.
type Fixtures struct {
	loaders *loaderRegistry
	actions *actionRegistry
}

// NewFixtures returns empty loader and action registries.
func NewFixtures(opts ...registry.Option) *Fixtures {
	return &Fixtures{
		loaders: registry.New[fixture.Handler[LoaderContext]](pattern.KindPath, opts...),
		actions: registry.New[fixture.Handler[ActionContext]](pattern.KindPath, opts...),
	}
}

// SetLoader registers a loader fixture for a path pattern.
func (f *Fixtures) SetLoader(path string, h fixture.Handler[LoaderContext]) error {
	return f.loaders.Set(path, h)
}

// RemoveLoader removes the loader fixture registered under path.
func (f *Fixtures) RemoveLoader(path string) (bool, error) {
	return f.loaders.Remove(path)
}

// SetAction registers an action fixture that serves every verb.
func (f *Fixtures) SetAction(path string, h fixture.Handler[ActionContext]) error {
	return f.actions.Set(path, h)
}

// SetActionMethods registers method-keyed action fixtures.
func (f *Fixtures) SetActionMethods(path string, handlers fixture.Methods[ActionContext]) error {
	return f.actions.SetMethods(path, handlers)
}

// RemoveAction removes the action fixture registered under path.
func (f *Fixtures) RemoveAction(path string) (bool, error) {
	return f.actions.Remove(path)
}

// Clear removes all loader and action fixtures.
func (f *Fixtures) Clear() {
	f.loaders.Clear()
	f.actions.Clear()
}

// Replace swaps in the fixtures of src. Each registry is replaced in one
// step.
func (f *Fixtures) Replace(src *Fixtures) error {
	if err := f.loaders.ReplaceWith(src.loaders); err != nil {
		return err
	}
	return f.actions.ReplaceWith(src.actions)
}

// Loaders exposes the loader registry.
func (f *Fixtures) Loaders() *registry.Registry[fixture.Handler[LoaderContext]] {
	return f.loaders
}

// Actions exposes the action registry.
func (f *Fixtures) Actions() *registry.Registry[fixture.Handler[ActionContext]] {
	return f.actions
}
