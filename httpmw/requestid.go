package httpmw

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// DefaultRequestIDHeader carries the request ID when RequestIDConfig does
// not name another header.
const DefaultRequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestIDFromContext returns the ID stored by RequestIDMiddleware, or an
// empty string.
func RequestIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// CallID returns the request ID of ctx, or a fresh UUID outside a
// request. It fits intercept.Config.IDFunc, so a fixture served for a
// request carries the same ID as the request's logs.
func CallID(ctx context.Context) string {
	if id := RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// RequestIDConfig configures RequestIDMiddleware.
type RequestIDConfig struct {
	// HeaderName defaults to DefaultRequestIDHeader.
	HeaderName string

	// GenerateFunc returns a new ID. Defaults to GenerateUUIDv7.
	GenerateFunc func(r *http.Request) string

	// TrustIncoming reuses an ID sent by the client.
	TrustIncoming bool
}

// RequestIDMiddleware sets a request ID on the request context, the
// request header and the response header.
func RequestIDMiddleware(cfg RequestIDConfig) Middleware {
	header := cfg.HeaderName
	if header == "" {
		header = DefaultRequestIDHeader
	}
	generate := cfg.GenerateFunc
	if generate == nil {
		generate = GenerateUUIDv7
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var id string
			if cfg.TrustIncoming {
				id = r.Header.Get(header)
			}
			if id == "" {
				id = generate(r)
			}

			if id != "" {
				r.Header.Set(header, id)
				w.Header().Set(header, id)
				r = r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// GenerateUUIDv4 returns a random UUID.
func GenerateUUIDv4(_ *http.Request) string {
	return uuid.NewString()
}

// GenerateUUIDv7 returns a time-ordered UUID, so IDs sort by arrival.
func GenerateUUIDv7(_ *http.Request) string {
	return uuid.Must(uuid.NewV7()).String()
}
