package route

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// HeaderFixture is set on every response produced by a fixture.
const HeaderFixture = "X-Demo-Fixture"

// Response lets a fixture control the HTTP response written by
// Middleware. It is also an error, so a handler may return it to abort
// with a status, the way a real loader would throw a redirect.
type Response struct {
	Status int
	Header http.Header
	// Body is written as JSON; a []byte body is written as-is.
	Body any
}

// Redirect returns a response redirecting to location.
func Redirect(location string, status int) *Response {
	if status == 0 {
		status = http.StatusFound
	}
	return &Response{
		Status: status,
		Header: http.Header{"Location": []string{location}},
	}
}

func (r *Response) Error() string {
	return http.StatusText(r.StatusCode())
}

// StatusCode returns the response status, defaulting to 200.
func (r *Response) StatusCode() int {
	if r.Status == 0 {
		return http.StatusOK
	}
	return r.Status
}

type statusCoder interface {
	StatusCode() int
}

// passThrough marks a request that was handed to the next handler.
type passThrough struct{}

// Middleware serves matching fixtures as HTTP responses. GET and HEAD
// requests are looked up as loaders, OPTIONS passes through, and every
// other verb is looked up as an action. Requests without a fixture, or
// outside demo mode, reach next unchanged.
//
// Fixture values are written as JSON with status 200, or per Response.
// A nil value writes 204. Handler errors are written as
// {"error": message} with the status from a StatusCode() int method, 413
// for ErrBodyTooLarge, or 500.
func (i *Interceptor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		fallback := func(context.Context) (any, error) {
			next.ServeHTTP(w, r)
			return passThrough{}, nil
		}

		var (
			v   any
			err error
		)
		if r.Method == http.MethodGet || r.Method == http.MethodHead {
			v, err = i.load(r, fallback)
		} else {
			v, err = i.act(r, fallback)
		}

		if err != nil {
			writeError(w, r, err)
			return
		}
		if _, ok := v.(passThrough); ok {
			return
		}
		writeValue(w, r, v)
	})
}

func writeValue(w http.ResponseWriter, r *http.Request, v any) {
	w.Header().Set(HeaderFixture, "1")

	switch resp := v.(type) {
	case nil:
		w.WriteHeader(http.StatusNoContent)
	case *Response:
		writeResponse(w, r, resp)
	default:
		responseJSON(w, r, http.StatusOK, v)
	}
}

func writeResponse(w http.ResponseWriter, r *http.Request, resp *Response) {
	for k, vs := range resp.Header {
		for _, v := range vs {
			w.Header().Add(k, v)
		}
	}

	switch body := resp.Body.(type) {
	case nil:
		w.WriteHeader(resp.StatusCode())
	case []byte:
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/octet-stream")
		}
		w.WriteHeader(resp.StatusCode())
		if r.Method != http.MethodHead {
			w.Write(body)
		}
	default:
		responseJSON(w, r, resp.StatusCode(), body)
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var resp *Response
	if errors.As(err, &resp) {
		w.Header().Set(HeaderFixture, "1")
		writeResponse(w, r, resp)
		return
	}

	code := http.StatusInternalServerError
	var sc statusCoder
	switch {
	case errors.As(err, &sc):
		code = sc.StatusCode()
	case errors.Is(err, ErrBodyTooLarge):
		code = http.StatusRequestEntityTooLarge
	}

	w.Header().Set(HeaderFixture, "1")
	responseJSON(w, r, code, map[string]string{"error": err.Error()})
}

// responseJSON encodes v as JSON and writes it with the given status. If
// encoding fails, 500 is written instead.
func responseJSON(w http.ResponseWriter, r *http.Request, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if r.Method != http.MethodHead {
		w.Write(buf.Bytes())
	}
}
