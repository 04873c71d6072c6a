package route

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/intercept"
	"github.com/Kasava-AI/demokit-sub003/pattern"
)

const defaultMaxFormMemory = 32 << 20

var (
	// ErrNilFixtures is returned by New without a fixture set.
	ErrNilFixtures = errors.New("route: fixtures are required")

	// ErrBodyTooLarge is returned when a non-form action body exceeds
	// Options.MaxFormMemory.
	ErrBodyTooLarge = errors.New("route: request body too large")
)

// Options configures an Interceptor. Config.Adapter is ignored; loader
// and action calls are reported as "loader" and "action".
type Options struct {
	intercept.Config

	// PathFunc derives the fixture identifier from a request. Defaults
	// to the cleaned URL path.
	PathFunc func(r *http.Request) string

	// MaxFormMemory bounds the memory used to parse multipart forms and
	// the size of any other action body. Defaults to 32 MiB.
	MaxFormMemory int64
}

// Interceptor wraps loaders and actions.
type Interceptor struct {
	fixtures  *Fixtures
	loaders   *intercept.Interceptor[LoaderContext]
	actions   *intercept.Interceptor[ActionContext]
	pathFunc  func(r *http.Request) string
	maxMemory int64
}

// New returns an Interceptor serving fixtures from f.
func New(f *Fixtures, opts Options) (*Interceptor, error) {
	if f == nil {
		return nil, ErrNilFixtures
	}

	lc := opts.Config
	lc.Adapter = "loader"
	loaders, err := intercept.New[LoaderContext](lc)
	if err != nil {
		return nil, err
	}

	ac := opts.Config
	ac.Adapter = "action"
	actions, err := intercept.New[ActionContext](ac)
	if err != nil {
		return nil, err
	}

	i := &Interceptor{
		fixtures:  f,
		loaders:   loaders,
		actions:   actions,
		pathFunc:  opts.PathFunc,
		maxMemory: opts.MaxFormMemory,
	}
	if i.pathFunc == nil {
		i.pathFunc = requestPath
	}
	if i.maxMemory <= 0 {
		i.maxMemory = defaultMaxFormMemory
	}
	return i, nil
}

// Fixtures returns the fixture set the interceptor reads.
func (i *Interceptor) Fixtures() *Fixtures {
	return i.fixtures
}

// WrapLoader returns a loader that serves a matching fixture in demo mode
// and calls next otherwise.
func (i *Interceptor) WrapLoader(next LoaderFunc) LoaderFunc {
	return func(r *http.Request) (any, error) {
		return i.load(r, func(context.Context) (any, error) {
			return next(r)
		})
	}
}

// WrapAction returns an action that serves a matching fixture for the
// request's verb in demo mode and calls next otherwise.
func (i *Interceptor) WrapAction(next ActionFunc) ActionFunc {
	return func(r *http.Request) (any, error) {
		return i.act(r, func(context.Context) (any, error) {
			return next(r)
		})
	}
}

func (i *Interceptor) load(r *http.Request, fallback intercept.RealFunc) (any, error) {
	p := i.pathFunc(r)
	return i.loaders.Do(r.Context(), intercept.Call[LoaderContext]{
		Kind:       pattern.KindPath,
		Identifier: p,
		Lookup:     intercept.Find(i.fixtures.loaders, p),
		Context: func(m intercept.Match, callID string) (LoaderContext, error) {
			return LoaderContext{Params: m.Params, Request: r, Path: p, CallID: callID}, nil
		},
	}, fallback)
}

func (i *Interceptor) act(r *http.Request, fallback intercept.RealFunc) (any, error) {
	p := i.pathFunc(r)
	method := fixture.Method(r.Method)
	return i.actions.Do(r.Context(), intercept.Call[ActionContext]{
		Kind:       pattern.KindPath,
		Identifier: p,
		Lookup:     intercept.FindForMethod(i.fixtures.actions, p, method),
		Context: func(m intercept.Match, callID string) (ActionContext, error) {
			ac := ActionContext{
				Params:  m.Params,
				Request: r,
				Path:    p,
				Method:  method,
				CallID:  callID,
			}
			if err := readBody(r, &ac, i.maxMemory); err != nil {
				return ac, err
			}
			return ac, nil
		},
	}, fallback)
}

// readBody fills FormData for form submissions and Body for anything else.
func readBody(r *http.Request, ac *ActionContext, maxMemory int64) error {
	if r.Body == nil || r.Body == http.NoBody {
		return nil
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("route: parse form: %w", err)
		}
		ac.FormData = r.PostForm
	case "multipart/form-data":
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return fmt.Errorf("route: parse multipart form: %w", err)
		}
		ac.FormData = url.Values(r.MultipartForm.Value)
	default:
		body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxMemory))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return fmt.Errorf("%w: limit %d bytes", ErrBodyTooLarge, tooLarge.Limit)
			}
			return fmt.Errorf("route: read body: %w", err)
		}
		ac.Body = body
	}
	return nil
}

// requestPath returns the cleaned URL path of r.
func requestPath(r *http.Request) string {
	return cleanPath(r.URL.Path)
}

// cleanPath returns the canonical form of p: rooted, with dot segments
// and duplicate slashes removed.
func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if p[0] != '/' {
		p = "/" + p
	}
	return path.Clean(p)
}
