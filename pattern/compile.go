package pattern

import (
	"sort"
	"strings"
)

// Compile parses a raw fixture key into a Pattern.
//
// Path and procedure keys must be strings. A segment that is exactly
// ":name" captures the value at that position, a segment that is exactly
// "*" is a wildcard, anything else must match literally. Tuple keys are
// slices whose string elements follow the same rule; map elements compile
// to object segments whose field values may themselves be ":name"
// captures.
//
// Malformed keys are rejected with a *CompileError rather than degraded
// to literal matches.
func Compile(kind Kind, raw any) (*Pattern, error) {
	var (
		p   *Pattern
		err error
	)
	switch kind {
	case KindPath, KindProcedure:
		s, ok := raw.(string)
		if !ok {
			err = ErrInvalidKey
			break
		}
		p, err = compileString(kind, s)
	case KindTuple:
		elems, ok := toSlice(raw)
		if !ok {
			err = ErrInvalidKey
			break
		}
		p, err = compileTuple(elems)
	default:
		err = ErrUnknownKind
	}
	if err != nil {
		return nil, &CompileError{Kind: kind, Key: raw, Err: err}
	}
	return p, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(kind Kind, raw any) *Pattern {
	p, err := Compile(kind, raw)
	if err != nil {
		panic(err)
	}
	return p
}

// CompilePath compiles a "/"-separated path pattern such as "/users/:id".
func CompilePath(s string) (*Pattern, error) {
	return Compile(KindPath, s)
}

// CompileProcedure compiles a dot-separated procedure pattern such as
// "user.byId" or "user.*".
func CompileProcedure(s string) (*Pattern, error) {
	return Compile(KindProcedure, s)
}

// CompileTuple compiles a tuple key from its elements.
func CompileTuple(elems ...any) (*Pattern, error) {
	return Compile(KindTuple, elems)
}

// names tracks capture names while compiling one pattern.
type names struct {
	seen  map[string]struct{}
	order []string
}

func (n *names) add(name string) error {
	if name == "" {
		return ErrEmptyParamName
	}
	if name == WildcardParam {
		return ErrInvalidParamName
	}
	if n.seen == nil {
		n.seen = make(map[string]struct{})
	}
	if _, ok := n.seen[name]; ok {
		return ErrDuplicateParam
	}
	n.seen[name] = struct{}{}
	n.order = append(n.order, name)
	return nil
}

func compileString(kind Kind, s string) (*Pattern, error) {
	var parts []string
	if kind == KindPath {
		parts = splitPath(s)
	} else {
		parts = splitProcedure(s)
	}

	var (
		n        names
		segments = make([]Segment, 0, len(parts))
		static   = true
		wildcard bool
	)
	for i, part := range parts {
		if kind == KindProcedure && part == "" {
			return nil, ErrEmptySegment
		}
		seg, err := compileToken(part, &n)
		if err != nil {
			return nil, err
		}
		if seg.Type == SegmentWildcard {
			wildcard = true
			if kind == KindPath && i != len(parts)-1 {
				return nil, ErrWildcardPosition
			}
		}
		if seg.Type != SegmentLiteral {
			static = false
		}
		segments = append(segments, seg)
	}

	p := &Pattern{
		kind:     kind,
		segments: segments,
		params:   n.order,
		static:   static,
	}
	if kind == KindPath {
		p.source = joinPath(parts)
		p.trailing = wildcard
	} else {
		p.source = strings.Join(parts, ".")
		if wildcard {
			g, err := compileGlob(segments)
			if err != nil {
				return nil, err
			}
			p.glob = g
		}
	}
	return p, nil
}

// compileToken applies the ":name" / "*" / literal rule to one string.
func compileToken(tok string, n *names) (Segment, error) {
	switch {
	case tok == "*":
		return Segment{Type: SegmentWildcard}, nil
	case strings.HasPrefix(tok, ":"):
		name := tok[1:]
		if err := n.add(name); err != nil {
			return Segment{}, err
		}
		return Segment{Type: SegmentParam, Name: name}, nil
	default:
		return Segment{Type: SegmentLiteral, Value: tok}, nil
	}
}

func compileTuple(elems []any) (*Pattern, error) {
	var (
		n        names
		segments = make([]Segment, 0, len(elems))
		static   = true
		wildcard bool
	)
	for i, elem := range elems {
		seg, err := compileElement(elem, &n)
		if err != nil {
			return nil, err
		}
		if seg.Type == SegmentWildcard {
			if i != len(elems)-1 {
				return nil, ErrWildcardPosition
			}
			wildcard = true
		}
		if seg.Type != SegmentLiteral {
			static = false
		}
		segments = append(segments, seg)
	}

	norm, err := normalize(elems, false)
	if err != nil {
		return nil, err
	}
	source, err := encodeJSON(norm)
	if err != nil {
		return nil, err
	}

	return &Pattern{
		kind:     KindTuple,
		source:   source,
		segments: segments,
		params:   n.order,
		static:   static,
		trailing: wildcard,
	}, nil
}

func compileElement(elem any, n *names) (Segment, error) {
	if s, ok := elem.(string); ok {
		return compileToken(s, n)
	}

	norm, err := normalize(elem, false)
	if err != nil {
		return Segment{}, err
	}
	if m, ok := norm.(map[string]any); ok {
		return compileObject(m, n)
	}
	return Segment{Type: SegmentLiteral, Value: norm}, nil
}

// compileObject builds an object segment. Field values that are ":name"
// strings capture, nested maps recurse, everything else is literal.
func compileObject(m map[string]any, n *names) (Segment, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	fields := make([]Field, 0, len(keys))
	for _, k := range keys {
		var seg Segment
		switch v := m[k].(type) {
		case string:
			if strings.HasPrefix(v, ":") {
				name := v[1:]
				if err := n.add(name); err != nil {
					return Segment{}, err
				}
				seg = Segment{Type: SegmentParam, Name: name}
			} else {
				seg = Segment{Type: SegmentLiteral, Value: v}
			}
		case map[string]any:
			nested, err := compileObject(v, n)
			if err != nil {
				return Segment{}, err
			}
			seg = nested
		default:
			seg = Segment{Type: SegmentLiteral, Value: v}
		}
		fields = append(fields, Field{Name: k, Segment: seg})
	}
	return Segment{Type: SegmentObject, Fields: fields}, nil
}
