package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/registry"
)

type actionInfo struct {
	Pattern string           `json:"pattern"`
	Methods []fixture.Method `json:"methods,omitempty"`
}

type fixtureList struct {
	Loaders    []string     `json:"loaders"`
	Actions    []actionInfo `json:"actions"`
	Procedures []string     `json:"procedures"`
}

// adminHandler serves the control endpoints under /_demokit/.
func (s *server) adminHandler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /_demokit/demo", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"demo": s.toggle.On()})
	})

	mux.HandleFunc("PUT /_demokit/demo", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<16))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		v := gjson.GetBytes(body, "demo")
		if v.Type != gjson.True && v.Type != gjson.False {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": `body must be {"demo": true|false}`})
			return
		}

		s.toggle.Set(v.Bool())
		s.log.Info("demo mode switched", zap.Bool("demo", v.Bool()))
		writeJSON(w, http.StatusOK, map[string]bool{"demo": v.Bool()})
	})

	mux.HandleFunc("GET /_demokit/fixtures", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, s.listFixtures())
	})

	mux.HandleFunc("POST /_demokit/reload", func(w http.ResponseWriter, _ *http.Request) {
		if err := s.reload(); err != nil {
			s.log.Error("fixture reload failed", zap.Error(err))
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, s.listFixtures())
	})

	return mux
}

func (s *server) listFixtures() fixtureList {
	out := fixtureList{
		Loaders:    patterns(s.targets.Routes.Loaders()),
		Procedures: s.targets.Procedures.Paths(),
		Actions:    []actionInfo{},
	}
	for _, e := range s.targets.Routes.Actions().Entries() {
		out.Actions = append(out.Actions, actionInfo{
			Pattern: e.Pattern.String(),
			Methods: e.Target.Methods(),
		})
	}
	return out
}

func patterns[H any](r *registry.Registry[H]) []string {
	entries := r.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Pattern.String()
	}
	return out
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}
