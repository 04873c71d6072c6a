// Package httpmw holds the net/http middleware the demo server runs in
// front of the route interceptor: panic recovery, request IDs, access
// logs, CORS and server identification.
//
//	h := httpmw.Chain(routes.Middleware(upstream),
//		httpmw.RecoveryMiddleware(httpmw.RecoveryConfig{Logger: log}),
//		httpmw.RequestIDMiddleware(httpmw.RequestIDConfig{TrustIncoming: true}),
//		httpmw.AccessLogMiddleware(httpmw.AccessLogConfig{Logger: log}),
//	)
//
// The first middleware passed to Chain is the outermost.
package httpmw

import "net/http"

// Middleware wraps an http.Handler.
type Middleware func(http.Handler) http.Handler

// Chain wraps h so that mws[0] sees a request first.
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}
