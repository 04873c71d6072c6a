package httpmw

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

var (
	// ErrWildcardCredentials is returned when "*" is combined with
	// AllowCredentials.
	ErrWildcardCredentials = errors.New("httpmw: wildcard origin cannot be used with credentials")

	// ErrInvalidOrigin is returned for a malformed origin pattern.
	ErrInvalidOrigin = errors.New("httpmw: invalid origin pattern")
)

// CORSConfig configures CORSMiddleware.
type CORSConfig struct {
	// AllowedOrigins holds exact origins, "*", or glob patterns such as
	// "https://*.example.com" and "http://localhost:*".
	AllowedOrigins []string

	// AllowedMethods defaults to the methods fixtures can be served for.
	AllowedMethods []string

	// AllowedHeaders are advertised on preflight. When empty the
	// requested headers are reflected.
	AllowedHeaders []string

	ExposeHeaders    []string
	AllowCredentials bool

	// MaxAge in seconds. Zero omits the header.
	MaxAge int
}

var defaultCORSMethods = []string{
	http.MethodGet, http.MethodHead, http.MethodPost,
	http.MethodPut, http.MethodPatch, http.MethodDelete,
}

// CORSMiddleware answers preflight requests with 204 and sets CORS headers
// on requests from allowed origins. Requests from other origins are
// passed through without CORS headers.
func CORSMiddleware(cfg CORSConfig) (Middleware, error) {
	wildcard := false
	for _, o := range cfg.AllowedOrigins {
		if o == "*" {
			wildcard = true
			continue
		}
		if !doublestar.ValidatePattern(strings.ToLower(o)) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidOrigin, o)
		}
	}
	if wildcard && cfg.AllowCredentials {
		return nil, ErrWildcardCredentials
	}

	methods := cfg.AllowedMethods
	if len(methods) == 0 {
		methods = defaultCORSMethods
	}
	allowMethods := strings.Join(methods, ", ")
	allowHeaders := strings.Join(cfg.AllowedHeaders, ", ")
	expose := strings.Join(cfg.ExposeHeaders, ", ")

	allowed := func(origin string) bool {
		if wildcard {
			return true
		}
		origin = strings.ToLower(origin)
		for _, o := range cfg.AllowedOrigins {
			if ok, _ := doublestar.Match(strings.ToLower(o), origin); ok {
				return true
			}
		}
		return false
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" || !allowed(origin) {
				next.ServeHTTP(w, r)
				return
			}

			h := w.Header()
			if wildcard {
				h.Set("Access-Control-Allow-Origin", "*")
			} else {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Add("Vary", "Origin")
			}
			if cfg.AllowCredentials {
				h.Set("Access-Control-Allow-Credentials", "true")
			}

			preflight := r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != ""
			if !preflight {
				if expose != "" {
					h.Set("Access-Control-Expose-Headers", expose)
				}
				next.ServeHTTP(w, r)
				return
			}

			h.Add("Vary", "Access-Control-Request-Method")
			h.Add("Vary", "Access-Control-Request-Headers")
			h.Set("Access-Control-Allow-Methods", allowMethods)
			if allowHeaders != "" {
				h.Set("Access-Control-Allow-Headers", allowHeaders)
			} else if req := r.Header.Get("Access-Control-Request-Headers"); req != "" {
				h.Set("Access-Control-Allow-Headers", req)
			}
			if cfg.MaxAge > 0 {
				h.Set("Access-Control-Max-Age", strconv.Itoa(cfg.MaxAge))
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}, nil
}
