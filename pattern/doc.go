// Package pattern compiles fixture keys into matchable patterns and
// matches runtime identifiers against them.
//
// Three key shapes are supported, selected by Kind:
//
//	KindPath       "/users/:id", "/files/*"
//	KindProcedure  "user.byId", "user.*", "*.get", "post.:action"
//	KindTuple      []any{"todos", map[string]any{"status": ":status"}}
//
// A segment exactly ":name" captures the value at that position and a
// segment exactly "*" is a wildcard. In paths and tuples the wildcard must
// come last and consumes one or more remaining elements, which are recorded
// under WildcardParam. In procedures the wildcard may appear anywhere and
// matches one or more characters of the dot-joined name.
//
// Tuple elements that are maps compile to object segments. An identifier
// element matches an object segment when it is a string-keyed map (or a
// struct, through its JSON form) whose declared fields all match; extra
// fields are ignored.
//
//	p := pattern.MustCompile(pattern.KindPath, "/users/:id")
//	res := p.Match("/users/42")
//	// res.Matched == true, res.Params["id"] == "42"
//
// Numbers are compared by value, so a pattern literal 1 matches an
// identifier element int64(1) or float64(1).
package pattern
