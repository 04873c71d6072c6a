package httpmw

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

var (
	uuidV4Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	uuidV7Regex = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
)

func ok(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func TestChain(t *testing.T) {
	var order []string
	mark := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := Chain(http.HandlerFunc(ok), mark("outer"), nil, mark("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestRequestIDMiddleware(t *testing.T) {
	tests := []struct {
		name          string
		config        RequestIDConfig
		incoming      string
		wantID        string
		wantGenerated *regexp.Regexp
	}{
		{name: "generates UUID v7 by default", wantGenerated: uuidV7Regex},
		{name: "ignores incoming by default", incoming: "client-id", wantGenerated: uuidV7Regex},
		{name: "trusts incoming", config: RequestIDConfig{TrustIncoming: true}, incoming: "client-id", wantID: "client-id"},
		{name: "v4 generator", config: RequestIDConfig{GenerateFunc: GenerateUUIDv4}, wantGenerated: uuidV4Regex},
		{
			name:   "custom header",
			config: RequestIDConfig{HeaderName: "X-Trace-ID", GenerateFunc: func(*http.Request) string { return "trace-1" }},
			wantID: "trace-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := tt.config.HeaderName
			if header == "" {
				header = DefaultRequestIDHeader
			}

			var fromCtx, fromHeader string
			h := RequestIDMiddleware(tt.config)(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				fromCtx = RequestIDFromContext(r.Context())
				fromHeader = r.Header.Get(header)
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.incoming != "" {
				req.Header.Set(header, tt.incoming)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			got := w.Header().Get(header)
			if tt.wantID != "" {
				assert.Equal(t, tt.wantID, got)
			} else {
				assert.Regexp(t, tt.wantGenerated, got)
				assert.NotEqual(t, tt.incoming, got)
			}
			assert.Equal(t, got, fromCtx)
			assert.Equal(t, got, fromHeader)
		})
	}
}

func TestCallID(t *testing.T) {
	t.Run("outside request", func(t *testing.T) {
		assert.Regexp(t, uuidV4Regex, CallID(context.Background()))
	})

	t.Run("reuses request id", func(t *testing.T) {
		var id string
		h := RequestIDMiddleware(RequestIDConfig{TrustIncoming: true})(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
			id = CallID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(DefaultRequestIDHeader, "req-42")
		h.ServeHTTP(httptest.NewRecorder(), req)

		assert.Equal(t, "req-42", id)
	})
}

func TestRecoveryMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)

	h := RecoveryMiddleware(RecoveryConfig{Logger: zap.New(core)})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("fixture exploded")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "handler panic", entry.Message)
	assert.Equal(t, "fixture exploded", entry.ContextMap()["panic"])
	assert.Equal(t, "/boom", entry.ContextMap()["path"])

	t.Run("abort handler is repanicked", func(t *testing.T) {
		h := RecoveryMiddleware(RecoveryConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			panic(http.ErrAbortHandler)
		}))
		assert.PanicsWithValue(t, http.ErrAbortHandler, func() {
			h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		})
	})
}

func TestAccessLogMiddleware(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)

	h := Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fixture" {
			w.Header().Set("X-Demo-Fixture", "1")
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte("hello"))
	}),
		RequestIDMiddleware(RequestIDConfig{GenerateFunc: func(*http.Request) string { return "id-1" }}),
		AccessLogMiddleware(AccessLogConfig{
			Logger:        zap.New(core),
			SkipPaths:     []string{"/metrics"},
			FixtureHeader: "X-Demo-Fixture",
		}),
	)

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/fixture?x=1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/real", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, 2, logs.Len())

	first := logs.All()[0].ContextMap()
	assert.Equal(t, "POST", first["method"])
	assert.Equal(t, "/fixture", first["path"])
	assert.Equal(t, int64(http.StatusCreated), first["status"])
	assert.Equal(t, int64(5), first["bytes"])
	assert.Equal(t, "id-1", first["request_id"])
	assert.Equal(t, "x=1", first["query"])
	assert.Equal(t, true, first["fixture"])

	second := logs.All()[1].ContextMap()
	assert.Equal(t, false, second["fixture"])
}

func TestServerMiddleware(t *testing.T) {
	t.Setenv("DEMOKIT_POD", "pod-7")

	tests := []struct {
		name     string
		config   ServerConfig
		wantHost string
		wantDemo string
	}{
		{"explicit hostname", ServerConfig{Hostname: "demo-1"}, "demo-1", ""},
		{"env hostname", ServerConfig{HostnameEnv: []string{"DEMOKIT_UNSET", "DEMOKIT_POD"}}, "pod-7", ""},
		{"demo on", ServerConfig{Hostname: "h", Demo: func(*http.Request) bool { return true }}, "h", "on"},
		{"demo off", ServerConfig{Hostname: "h", Demo: func(*http.Request) bool { return false }}, "h", "off"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mw, err := ServerMiddleware(tt.config)
			require.NoError(t, err)

			w := httptest.NewRecorder()
			mw(http.HandlerFunc(ok)).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

			assert.Equal(t, tt.wantHost, w.Header().Get("X-Server-Hostname"))
			assert.Equal(t, tt.wantDemo, w.Header().Get("X-Demo-Mode"))
		})
	}
}

func TestCORSMiddleware(t *testing.T) {
	t.Run("config errors", func(t *testing.T) {
		_, err := CORSMiddleware(CORSConfig{AllowedOrigins: []string{"*"}, AllowCredentials: true})
		assert.ErrorIs(t, err, ErrWildcardCredentials)

		_, err = CORSMiddleware(CORSConfig{AllowedOrigins: []string{"https://[bad"}})
		assert.ErrorIs(t, err, ErrInvalidOrigin)
	})

	mw, err := CORSMiddleware(CORSConfig{
		AllowedOrigins:   []string{"https://*.example.com", "http://localhost:*"},
		ExposeHeaders:    []string{"X-Demo-Fixture"},
		AllowCredentials: true,
		MaxAge:           600,
	})
	require.NoError(t, err)

	var reached bool
	h := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		reached = true
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantReached bool
	}{
		{"subdomain", http.MethodGet, "https://app.example.com", false, http.StatusOK, "https://app.example.com", true},
		{"localhost port", http.MethodPost, "http://localhost:3000", false, http.StatusOK, "http://localhost:3000", true},
		{"other origin", http.MethodGet, "https://evil.test", false, http.StatusOK, "", true},
		{"no origin", http.MethodGet, "", false, http.StatusOK, "", true},
		{"preflight", http.MethodOptions, "https://app.example.com", true, http.StatusNoContent, "https://app.example.com", false},
		{"plain options", http.MethodOptions, "https://app.example.com", false, http.StatusOK, "https://app.example.com", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reached = false
			req := httptest.NewRequest(tt.method, "/users", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPut)
				req.Header.Set("Access-Control-Request-Headers", "Content-Type")
			}

			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantOrigin, w.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantReached, reached)

			if tt.preflight {
				assert.Contains(t, w.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)
				assert.Equal(t, "Content-Type", w.Header().Get("Access-Control-Allow-Headers"))
				assert.Equal(t, "600", w.Header().Get("Access-Control-Max-Age"))
				assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))
			} else if tt.wantOrigin != "" {
				assert.Equal(t, "X-Demo-Fixture", w.Header().Get("Access-Control-Expose-Headers"))
			}
		})
	}
}
