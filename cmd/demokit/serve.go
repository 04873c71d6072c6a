package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/Kasava-AI/demokit-sub003/config"
	"github.com/Kasava-AI/demokit-sub003/demomode"
	"github.com/Kasava-AI/demokit-sub003/httpmw"
	"github.com/Kasava-AI/demokit-sub003/intercept"
	"github.com/Kasava-AI/demokit-sub003/metrics"
	"github.com/Kasava-AI/demokit-sub003/pattern"
	"github.com/Kasava-AI/demokit-sub003/registry"
	"github.com/Kasava-AI/demokit-sub003/route"
	"github.com/Kasava-AI/demokit-sub003/trpc"
)

// demoHeader switches demo mode for a single request.
const demoHeader = "X-Demo-Mode"

type serveOptions struct {
	fixtures        string
	addr            string
	upstream        string
	trpcPrefix      string
	corsOrigins     []string
	demo            bool
	watch           bool
	delay           time.Duration
	shutdownTimeout time.Duration
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve fixtures over HTTP, forwarding unmatched requests upstream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := root.logger()
			if err != nil {
				return err
			}
			defer log.Sync() //nolint:errcheck

			s, err := newServer(opts, log, prometheus.NewRegistry())
			if err != nil {
				return err
			}

			ln, err := net.Listen("tcp", opts.addr)
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return s.run(ctx, ln)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.fixtures, "fixtures", "fixtures/**/*.yaml", "glob of fixture files")
	f.StringVar(&opts.addr, "addr", ":8080", "listen address")
	f.StringVar(&opts.upstream, "upstream", "", "URL of the real backend for unmatched requests")
	f.StringVar(&opts.trpcPrefix, "trpc-prefix", "/trpc/", "path prefix of tRPC procedures, empty to disable")
	f.StringSliceVar(&opts.corsOrigins, "cors-origin", nil, "allowed CORS origin, may be a glob; repeatable")
	f.BoolVar(&opts.demo, "demo", false, "start with demo mode on")
	f.BoolVar(&opts.watch, "watch", false, "reload fixtures when files change")
	f.DurationVar(&opts.delay, "delay", 0, "latency added to every fixture")
	f.DurationVar(&opts.shutdownTimeout, "shutdown-timeout", 10*time.Second, "grace period for in-flight requests")
	return cmd
}

type server struct {
	opts    serveOptions
	log     *zap.Logger
	toggle  *demomode.Toggle
	targets config.Targets
	handler http.Handler
}

// servedTargets holds the fixture kinds serve answers over HTTP. Query,
// mutation and swr fixtures only feed in-process adapters, so loading
// them here fails with config.ErrNoTarget.
func servedTargets(log *zap.Logger) config.Targets {
	opt := registry.WithLogger(log)
	return config.Targets{
		Routes:     route.NewFixtures(opt),
		Procedures: trpc.NewFixtures(opt),
	}
}

func newServer(opts serveOptions, log *zap.Logger, reg *prometheus.Registry) (*server, error) {
	s := &server{
		opts:    opts,
		log:     log,
		toggle:  demomode.NewToggle(opts.demo),
		targets: servedTargets(log),
	}

	files, err := config.LoadGlob(opts.fixtures)
	if err != nil {
		return nil, err
	}
	if err := s.apply(files); err != nil {
		return nil, err
	}

	fallback, err := s.fallback()
	if err != nil {
		return nil, err
	}

	collector := metrics.New(reg)
	cfg := intercept.Config{
		Enabled:  demomode.Func(s.demoEnabled),
		Delay:    opts.delay,
		Logger:   log,
		Observer: collector,
		IDFunc:   httpmw.CallID,
		OnMissing: func(kind pattern.Kind, id any) {
			log.Debug("no fixture for call", zap.Stringer("kind", kind), zap.Any("id", id))
		},
	}

	routes, err := route.New(s.targets.Routes, route.Options{Config: cfg})
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", collector.Handler())
	mux.Handle("/_demokit/", s.adminHandler())
	if opts.trpcPrefix != "" {
		link, err := trpc.Link(s.targets.Procedures, cfg)
		if err != nil {
			return nil, err
		}
		mux.Handle(opts.trpcPrefix, newTRPCHandler(opts.trpcPrefix, link, fallback))
	}
	mux.Handle("/", routes.Middleware(fallback))

	serverMW, err := httpmw.ServerMiddleware(httpmw.ServerConfig{
		HostnameEnv: []string{"POD_NAME", "HOSTNAME"},
		Demo: func(r *http.Request) bool {
			on, _ := s.demoEnabled(r.Context())
			return on
		},
	})
	if err != nil {
		return nil, err
	}

	var cors httpmw.Middleware
	if len(opts.corsOrigins) > 0 {
		cors, err = httpmw.CORSMiddleware(httpmw.CORSConfig{
			AllowedOrigins:   opts.corsOrigins,
			ExposeHeaders:    []string{route.HeaderFixture, httpmw.DefaultRequestIDHeader, demoHeader},
			AllowCredentials: !slices.Contains(opts.corsOrigins, "*"),
		})
		if err != nil {
			return nil, err
		}
	}

	s.handler = httpmw.Chain(mux,
		httpmw.RecoveryMiddleware(httpmw.RecoveryConfig{Logger: log}),
		httpmw.RequestIDMiddleware(httpmw.RequestIDConfig{TrustIncoming: true}),
		httpmw.AccessLogMiddleware(httpmw.AccessLogConfig{
			Logger:        log,
			SkipPaths:     []string{"/metrics"},
			FixtureHeader: route.HeaderFixture,
		}),
		cors,
		demoFromRequest,
		serverMW,
	)
	return s, nil
}

// apply builds fresh fixture sets from files and swaps them in, so a
// failed reload leaves the served fixtures untouched.
func (s *server) apply(files []*config.File) error {
	fresh := servedTargets(s.log)
	if err := config.Apply(files, fresh); err != nil {
		if errors.Is(err, config.ErrNoTarget) {
			return fmt.Errorf("%w (serve handles loader, action and procedure fixtures)", err)
		}
		return err
	}

	if err := s.targets.Routes.Replace(fresh.Routes); err != nil {
		return err
	}
	return s.targets.Procedures.Replace(fresh.Procedures)
}

func (s *server) reload() error {
	files, err := config.LoadGlob(s.opts.fixtures)
	if errors.Is(err, config.ErrNoFiles) {
		files, err = nil, nil
	}
	if err != nil {
		return err
	}
	return s.apply(files)
}

// demoEnabled prefers a per-request decision over the server toggle.
func (s *server) demoEnabled(ctx context.Context) (bool, error) {
	if on, ok := demomode.Lookup(ctx); ok {
		return on, nil
	}
	return s.toggle.On(), nil
}

func (s *server) fallback() (http.Handler, error) {
	if s.opts.upstream == "" {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "no fixture and no upstream"})
		}), nil
	}

	u, err := url.Parse(s.opts.upstream)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream %q", s.opts.upstream)
	}

	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		s.log.Warn("upstream request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", httpmw.RequestIDFromContext(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusBadGateway, map[string]string{"error": "upstream unavailable"})
	}
	return proxy, nil
}

// demoFromRequest records a per-request demo decision from the X-Demo-Mode
// header or the demo query parameter.
func demoFromRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v := r.Header.Get(demoHeader)
		if v == "" {
			v = r.URL.Query().Get("demo")
		}
		if on, ok := parseSwitch(v); ok {
			r = r.WithContext(demomode.WithEnabled(r.Context(), on))
		}
		next.ServeHTTP(w, r)
	})
}

func parseSwitch(v string) (on, ok bool) {
	switch v {
	case "":
		return false, false
	case "on":
		return true, true
	case "off":
		return false, true
	}
	on, err := strconv.ParseBool(v)
	return on, err == nil
}

func (s *server) run(ctx context.Context, ln net.Listener) error {
	hs := &http.Server{
		Handler:           h2c.NewHandler(s.handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	var watcher *config.Watcher
	if s.opts.watch {
		w, err := config.NewWatcher(s.opts.fixtures, func(files []*config.File) {
			if err := s.apply(files); err != nil {
				s.log.Error("applying reloaded fixtures failed", zap.Error(err))
			}
		}, config.WithWatchLogger(s.log))
		if err != nil {
			ln.Close()
			return err
		}
		watcher = w
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.log.Info("demokit listening",
			zap.String("addr", ln.Addr().String()),
			zap.String("fixtures", s.opts.fixtures),
			zap.Bool("demo", s.toggle.On()),
		)
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.log.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), s.opts.shutdownTimeout)
		defer cancel()
		return hs.Shutdown(sctx)
	})

	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	return g.Wait()
}
