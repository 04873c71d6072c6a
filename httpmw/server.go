package httpmw

import (
	"net/http"
	"os"
)

// ServerConfig configures ServerMiddleware.
type ServerConfig struct {
	// Hostname is written to X-Server-Hostname. When empty the first
	// non-empty variable in HostnameEnv is used, then os.Hostname.
	Hostname    string
	HostnameEnv []string

	// Demo reports whether demo mode is on for a request. When set, the
	// response carries X-Demo-Mode: on or off.
	Demo func(r *http.Request) bool
}

// ServerMiddleware sets server identification headers. The hostname is
// resolved once.
func ServerMiddleware(cfg ServerConfig) (Middleware, error) {
	hostname := cfg.Hostname
	if hostname == "" {
		for _, env := range cfg.HostnameEnv {
			if v := os.Getenv(env); v != "" {
				hostname = v
				break
			}
		}
	}
	if hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			return nil, err
		}
		hostname = h
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Server-Hostname", hostname)
			if cfg.Demo != nil {
				mode := "off"
				if cfg.Demo(r) {
					mode = "on"
				}
				w.Header().Set("X-Demo-Mode", mode)
			}
			next.ServeHTTP(w, r)
		})
	}, nil
}
