// Package config loads demo fixtures from YAML files.
//
//	delay: 150ms
//	fixtures:
//	  - kind: loader
//	    key: /users/:id
//	    body: {id: 1, name: Ada}
//	  - kind: action
//	    key: /users/:id
//	    method: PUT
//	    status: 204
//	  - kind: query
//	    key: [users, {status: ":status"}]
//	    body: []
//	  - kind: procedure
//	    key: user.*
//	    delay: 50
//	    body: {ok: true}
//
// ${VAR} references inside scalar values are replaced with environment
// variables after the YAML is parsed, so a value can never change the
// document's structure. Unset variables are left as written. YAML ends a
// plain scalar at "{" inside flow collections, so write "${VAR}" quoted
// there:
//
//	body: {name: "${USER_NAME}"}
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"

	"github.com/Kasava-AI/demokit-sub003/fixture"
)

var (
	// ErrUnknownKind is returned for a fixture kind outside Kind's values.
	ErrUnknownKind = errors.New("config: unknown fixture kind")

	// ErrMissingKey is returned for a fixture without a key.
	ErrMissingKey = errors.New("config: fixture key is required")

	// ErrInvalidKey is returned when the key shape does not fit the kind.
	ErrInvalidKey = errors.New("config: invalid fixture key")

	// ErrInvalidStatus is returned for a status outside 100-599.
	ErrInvalidStatus = errors.New("config: invalid status")

	// ErrUnexpectedField is returned for HTTP-only fields on non-HTTP
	// fixtures.
	ErrUnexpectedField = errors.New("config: field not supported for kind")

	// ErrNoFiles is returned by LoadGlob when nothing matches.
	ErrNoFiles = errors.New("config: no fixture files matched")
)

// Kind selects the adapter registry a fixture is added to.
type Kind string

const (
	KindLoader    Kind = "loader"
	KindAction    Kind = "action"
	KindQuery     Kind = "query"
	KindMutation  Kind = "mutation"
	KindSWR       Kind = "swr"
	KindProcedure Kind = "procedure"
)

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	switch k {
	case KindLoader, KindAction, KindQuery, KindMutation, KindSWR, KindProcedure:
		return true
	}
	return false
}

// Duration accepts either a Go duration string ("150ms") or a number of
// milliseconds.
type Duration time.Duration

// UnmarshalYAML decodes a duration scalar.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("config: line %d: duration must be a scalar", node.Line)
	}
	if ms, err := strconv.ParseInt(node.Value, 10, 64); err == nil {
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return fmt.Errorf("config: line %d: %w", node.Line, err)
	}
	*d = Duration(v)
	return nil
}

// MarshalYAML encodes the duration as a Go duration string.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Fixture is one fixture definition.
type Fixture struct {
	Kind    Kind              `yaml:"kind"`
	Key     any               `yaml:"key"`
	Method  string            `yaml:"method,omitempty"`
	Status  int               `yaml:"status,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	// Delay overrides the file delay when set.
	Delay *Duration `yaml:"delay,omitempty"`
	Body  any       `yaml:"body,omitempty"`
}

// File is a parsed fixture file.
type File struct {
	// Path is the file the fixtures were loaded from, if any.
	Path string `yaml:"-"`

	// Delay applies to every fixture in the file without its own delay.
	Delay    Duration  `yaml:"delay,omitempty"`
	Fixtures []Fixture `yaml:"fixtures"`
}

var envPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expandEnv replaces ${VAR} in every scalar under n with the value of VAR
// when it is set.
func expandEnv(n *yaml.Node) {
	if n.Kind == yaml.ScalarNode {
		if !envPattern.MatchString(n.Value) {
			return
		}
		expanded := envPattern.ReplaceAllStringFunc(n.Value, func(match string) string {
			if v, ok := os.LookupEnv(match[2 : len(match)-1]); ok {
				return v
			}
			return match
		})
		if expanded != n.Value {
			n.Value = expanded
			if n.Style == 0 {
				n.Tag = ""
			}
		}
		return
	}
	for _, c := range n.Content {
		expandEnv(c)
	}
}

// Parse decodes and validates a fixture file.
func Parse(data []byte) (*File, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	f := &File{}
	if root.Kind == 0 {
		return f, nil
	}
	expandEnv(&root)

	var buf bytes.Buffer
	if err := yaml.NewEncoder(&buf).Encode(&root); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	dec := yaml.NewDecoder(&buf)
	dec.KnownFields(true)
	if err := dec.Decode(f); err != nil {
		if errors.Is(err, io.EOF) {
			return f, nil
		}
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}

// Load reads and parses the fixture file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	f.Path = path
	return f, nil
}

// LoadGlob loads every file matching pattern, which may use "**". Files
// are loaded in lexical order so fixture registration order is stable.
func LoadGlob(pattern string) ([]*File, error) {
	paths, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
	if err != nil {
		return nil, fmt.Errorf("config: glob %q: %w", pattern, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoFiles, pattern)
	}
	sort.Strings(paths)

	files := make([]*File, 0, len(paths))
	for _, p := range paths {
		f, err := Load(p)
		if err != nil {
			return nil, err
		}
		files = append(files, f)
	}
	return files, nil
}

// Validate checks every fixture of f.
func (f *File) Validate() error {
	if f.Delay < 0 {
		return fmt.Errorf("config: negative delay %s", time.Duration(f.Delay))
	}
	for i := range f.Fixtures {
		if err := f.Fixtures[i].validate(); err != nil {
			return fmt.Errorf("fixture %d: %w", i, err)
		}
	}
	return nil
}

func (fx *Fixture) validate() error {
	if !fx.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownKind, string(fx.Kind))
	}
	if fx.Key == nil {
		return ErrMissingKey
	}

	_, isString := fx.Key.(string)
	_, isList := fx.Key.([]any)
	switch fx.Kind {
	case KindLoader, KindAction, KindProcedure:
		if !isString {
			return fmt.Errorf("%w: %s key must be a string", ErrInvalidKey, fx.Kind)
		}
	case KindQuery, KindMutation:
		if !isList {
			return fmt.Errorf("%w: %s key must be a list", ErrInvalidKey, fx.Kind)
		}
	case KindSWR:
		if !isString && !isList {
			return fmt.Errorf("%w: swr key must be a string or a list", ErrInvalidKey)
		}
	}

	if fx.Method != "" {
		if fx.Kind != KindAction {
			return fmt.Errorf("%w: method on %s", ErrUnexpectedField, fx.Kind)
		}
		m, err := fixture.ParseMethod(fx.Method)
		if err != nil {
			return err
		}
		fx.Method = string(m)
	}

	if fx.Status != 0 || len(fx.Headers) > 0 {
		if fx.Kind != KindLoader && fx.Kind != KindAction {
			return fmt.Errorf("%w: status and headers on %s", ErrUnexpectedField, fx.Kind)
		}
	}
	if fx.Status != 0 && (fx.Status < 100 || fx.Status > 599) {
		return fmt.Errorf("%w: %d", ErrInvalidStatus, fx.Status)
	}
	if fx.Delay != nil && *fx.Delay < 0 {
		return fmt.Errorf("config: negative delay %s", time.Duration(*fx.Delay))
	}
	return nil
}

// header converts the configured headers into an http.Header.
func (fx *Fixture) header() http.Header {
	if len(fx.Headers) == 0 {
		return nil
	}
	h := make(http.Header, len(fx.Headers))
	for k, v := range fx.Headers {
		h.Set(k, v)
	}
	return h
}
