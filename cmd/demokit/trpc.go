package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/Kasava-AI/demokit-sub003/route"
	"github.com/Kasava-AI/demokit-sub003/trpc"
)

const maxTRPCBody = 1 << 20

var errBadInput = errors.New("input is not valid JSON")

// trpcHandler answers tRPC HTTP calls: GET for queries with a JSON
// "input" query parameter, POST for mutations with a JSON body. Calls the
// link does not serve are forwarded to fallback unchanged.
type trpcHandler struct {
	prefix   string
	link     func(trpc.Next) trpc.Next
	fallback http.Handler
}

func newTRPCHandler(prefix string, link func(trpc.Next) trpc.Next, fallback http.Handler) *trpcHandler {
	return &trpcHandler{prefix: prefix, link: link, fallback: fallback}
}

type trpcError struct {
	Message string        `json:"message"`
	Data    trpcErrorData `json:"data"`
}

type trpcErrorData struct {
	Code       string `json:"code"`
	HTTPStatus int    `json:"httpStatus"`
	Path       string `json:"path"`
}

func (h *trpcHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	proc := strings.Trim(strings.TrimPrefix(r.URL.Path, h.prefix), "/")
	if proc == "" || strings.Contains(proc, ",") {
		// Batched calls go to the real server as a whole.
		h.fallback.ServeHTTP(w, r)
		return
	}

	op, err := h.operation(r, proc)
	if err != nil {
		writeTRPCError(w, proc, http.StatusBadRequest, "BAD_REQUEST", err)
		return
	}

	forwarded := false
	terminal := func(ctx context.Context, _ trpc.Operation) (any, error) {
		forwarded = true
		h.fallback.ServeHTTP(w, r.WithContext(ctx))
		return nil, nil
	}

	v, err := trpc.Chain(terminal, h.link)(r.Context(), op)
	if forwarded {
		return
	}
	if err != nil {
		writeTRPCError(w, proc, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", err)
		return
	}

	w.Header().Set(route.HeaderFixture, "1")
	writeJSON(w, http.StatusOK, map[string]any{"result": map[string]any{"data": v}})
}

// operation decodes the call. The request body is restored so the call
// can still be forwarded.
func (h *trpcHandler) operation(r *http.Request, proc string) (trpc.Operation, error) {
	op := trpc.Operation{Path: proc}

	var raw []byte
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		op.Type = trpc.TypeQuery
		raw = []byte(r.URL.Query().Get("input"))
	case http.MethodPost:
		op.Type = trpc.TypeMutation
		body, err := io.ReadAll(io.LimitReader(r.Body, maxTRPCBody))
		if err != nil {
			return op, err
		}
		r.Body.Close()
		r.Body = io.NopCloser(bytes.NewReader(body))
		raw = body
	default:
		return op, fmt.Errorf("method %s not supported", r.Method)
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return op, nil
	}
	if !gjson.ValidBytes(raw) {
		return op, errBadInput
	}
	op.Input = gjson.ParseBytes(raw).Value()
	return op, nil
}

func writeTRPCError(w http.ResponseWriter, proc string, status int, code string, err error) {
	w.Header().Set(route.HeaderFixture, "1")
	writeJSON(w, status, map[string]any{"error": trpcError{
		Message: err.Error(),
		Data:    trpcErrorData{Code: code, HTTPStatus: status, Path: proc},
	}})
}
