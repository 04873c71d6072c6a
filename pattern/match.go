package pattern

// Match reports whether id satisfies p and returns the captured params.
// It is pure and safe for concurrent use. A nil pattern never matches.
func Match(p *Pattern, id any) Result {
	if p == nil {
		return Result{}
	}
	return p.Match(id)
}

// Match matches id against the pattern. Path and procedure patterns expect
// a string identifier, tuple patterns a slice.
func (p *Pattern) Match(id any) Result {
	switch p.kind {
	case KindPath, KindProcedure:
		s, ok := id.(string)
		if !ok {
			return Result{}
		}
		return p.matchString(s)
	case KindTuple:
		elems, ok := toSlice(id)
		if !ok {
			return Result{}
		}
		return p.matchTuple(elems)
	}
	return Result{}
}

func (p *Pattern) matchString(s string) Result {
	if p.glob != nil {
		return p.glob.match(s)
	}

	var parts []string
	if p.kind == KindPath {
		parts = splitPath(s)
	} else {
		parts = splitProcedure(s)
	}

	if p.static {
		if p.kind == KindPath && joinPath(parts) != p.source {
			return Result{}
		}
		if p.kind == KindProcedure && s != p.source {
			return Result{}
		}
		return Result{Matched: true, Params: Params{}}
	}

	elems := make([]any, len(parts))
	for i, part := range parts {
		elems[i] = part
	}
	return p.walk(elems)
}

func (p *Pattern) matchTuple(elems []any) Result {
	norm, err := normalize(elems, true)
	if err != nil {
		return Result{}
	}
	values := norm.([]any)

	if p.static {
		key, err := encodeJSON(values)
		if err != nil || key != p.source {
			return Result{}
		}
		return Result{Matched: true, Params: Params{}}
	}
	return p.walk(values)
}

// walk aligns segments with identifier elements. It never backtracks: a
// wildcard consumes everything that remains.
func (p *Pattern) walk(elems []any) Result {
	params := make(Params, len(p.params))
	for i, seg := range p.segments {
		if seg.Type == SegmentWildcard {
			if i >= len(elems) {
				return Result{}
			}
			params[WildcardParam] = p.remainder(elems[i:])
			return Result{Matched: true, Params: params}
		}
		if i >= len(elems) {
			return Result{}
		}
		if !matchSegment(seg, elems[i], params) {
			return Result{}
		}
	}
	if len(elems) != len(p.segments) {
		return Result{}
	}
	return Result{Matched: true, Params: params}
}

// remainder renders the elements consumed by a trailing wildcard: the
// joined sub-path for paths, the element slice for tuples.
func (p *Pattern) remainder(rest []any) any {
	if p.kind != KindPath {
		out := make([]any, len(rest))
		copy(out, rest)
		return out
	}
	parts := make([]string, len(rest))
	for i, r := range rest {
		parts[i] = r.(string)
	}
	return joinPath(parts)[1:]
}

func matchSegment(seg Segment, v any, params Params) bool {
	switch seg.Type {
	case SegmentLiteral:
		return literalEqual(seg.Value, v)
	case SegmentParam:
		if !isScalar(v) {
			return false
		}
		return bind(params, seg.Name, v)
	case SegmentObject:
		m, ok := v.(map[string]any)
		if !ok {
			return false
		}
		for _, f := range seg.Fields {
			fv, present := m[f.Name]
			if !present {
				return false
			}
			if !matchSegment(f.Segment, fv, params) {
				return false
			}
		}
		return true
	}
	return false
}

// bind records a capture, rejecting a contradiction with an earlier
// capture of the same name.
func bind(params Params, name string, v any) bool {
	if prev, ok := params[name]; ok {
		return prev == v
	}
	params[name] = v
	return true
}
