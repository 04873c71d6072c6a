package pattern

import (
	"fmt"
	"strings"
)

// Kind selects how a raw key is split into segments.
type Kind uint8

const (
	// KindPath keys are URL-style paths split on "/".
	KindPath Kind = iota + 1
	// KindTuple keys are ordered slices of scalars and objects.
	KindTuple
	// KindProcedure keys are dot-separated procedure names.
	KindProcedure
)

func (k Kind) String() string {
	switch k {
	case KindPath:
		return "path"
	case KindTuple:
		return "tuple"
	case KindProcedure:
		return "procedure"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseKind returns the Kind named by s ("path", "tuple" or "procedure").
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "path":
		return KindPath, nil
	case "tuple":
		return KindTuple, nil
	case "procedure":
		return KindProcedure, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// SegmentType discriminates the Segment variants.
type SegmentType uint8

const (
	SegmentLiteral SegmentType = iota
	SegmentParam
	SegmentWildcard
	SegmentObject
)

func (t SegmentType) String() string {
	switch t {
	case SegmentLiteral:
		return "literal"
	case SegmentParam:
		return "param"
	case SegmentWildcard:
		return "wildcard"
	case SegmentObject:
		return "object"
	default:
		return fmt.Sprintf("segment(%d)", uint8(t))
	}
}

// Segment is one compiled position of a Pattern.
type Segment struct {
	Type SegmentType

	// Value holds the normalized literal for SegmentLiteral.
	Value any

	// Name holds the capture name for SegmentParam.
	Name string

	// Fields holds the declared fields of a SegmentObject, sorted by name.
	Fields []Field
}

// Field is a named member of an object segment.
type Field struct {
	Name    string
	Segment Segment
}

// Pattern is the compiled, immutable form of a fixture key.
type Pattern struct {
	kind     Kind
	source   string
	segments []Segment
	params   []string
	static   bool
	trailing bool
	glob     *globMatcher
}

// Kind returns the kind the pattern was compiled for.
func (p *Pattern) Kind() Kind {
	return p.kind
}

// String returns the canonical source of the pattern. Two patterns with
// the same kind and String are considered identical by registries.
func (p *Pattern) String() string {
	return p.source
}

// Static reports whether the pattern has no parameter, wildcard or object
// segment. Static patterns match exactly one canonical key.
func (p *Pattern) Static() bool {
	return p.static
}

// Segments returns a copy of the compiled segments.
func (p *Pattern) Segments() []Segment {
	out := make([]Segment, len(p.segments))
	copy(out, p.segments)
	return out
}

// ParamNames returns the capture names in declaration order.
func (p *Pattern) ParamNames() []string {
	out := make([]string, len(p.params))
	copy(out, p.params)
	return out
}

// Params holds the values captured by a successful match.
type Params map[string]any

// Get returns the captured value for name.
func (p Params) Get(name string) (any, bool) {
	v, ok := p[name]
	return v, ok
}

// String returns the captured value for name formatted as a string, or ""
// when it was not captured.
func (p Params) String(name string) string {
	v, ok := p[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	if f, ok := v.(float64); ok {
		return formatNumber(f)
	}
	return fmt.Sprint(v)
}

// Clone returns a shallow copy of p.
func (p Params) Clone() Params {
	if p == nil {
		return nil
	}
	out := make(Params, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Result is the outcome of matching a Pattern against an identifier.
// Params is nil whenever Matched is false.
type Result struct {
	Matched bool
	Params  Params
}

// WildcardParam is the name under which a trailing path or tuple wildcard
// records the elements it consumed.
const WildcardParam = "*"
