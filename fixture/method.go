package fixture

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrInvalidMethod is returned by ParseMethod for verbs that cannot key a
// mutation fixture. Reads are never method-keyed.
var ErrInvalidMethod = errors.New("fixture: method must be one of POST, PUT, PATCH, DELETE")

// Method is an HTTP verb that can key a mutation fixture.
type Method string

const (
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodPatch  Method = http.MethodPatch
	MethodDelete Method = http.MethodDelete
)

// MutationMethods lists the verbs accepted as method keys, in a stable
// order.
var MutationMethods = []Method{MethodPost, MethodPut, MethodPatch, MethodDelete}

// ParseMethod normalizes s to upper case and validates it.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: got %q", ErrInvalidMethod, s)
	}
	return m, nil
}

// Valid reports whether m is one of MutationMethods.
func (m Method) Valid() bool {
	switch m {
	case MethodPost, MethodPut, MethodPatch, MethodDelete:
		return true
	}
	return false
}

func (m Method) String() string {
	return string(m)
}

// Methods maps mutation verbs to handlers for one fixture key.
type Methods[C any] map[Method]Handler[C]
