package pattern

import (
	"regexp"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// globCacheSize bounds the number of distinct procedure globs kept
// compiled. Fixture sets are small; the bound only matters for programs
// that compile patterns from user input.
const globCacheSize = 512

var globCache = func() *lru.Cache[string, *regexp.Regexp] {
	c, err := lru.New[string, *regexp.Regexp](globCacheSize)
	if err != nil {
		panic(err)
	}
	return c
}()

// globMatcher matches a dot-joined procedure path against a pattern that
// contains wildcards. "*" matches one or more characters, so "user.*" is
// a prefix test and "*.get" a suffix test.
type globMatcher struct {
	re    *regexp.Regexp
	names []string
}

func compileGlob(segments []Segment) (*globMatcher, error) {
	var (
		b     strings.Builder
		names []string
	)
	b.WriteByte('^')
	for i, seg := range segments {
		if i > 0 {
			b.WriteString(`\.`)
		}
		switch seg.Type {
		case SegmentWildcard:
			b.WriteString(`.+`)
		case SegmentParam:
			b.WriteString(`([^.]+)`)
			names = append(names, seg.Name)
		default:
			b.WriteString(regexp.QuoteMeta(seg.Value.(string)))
		}
	}
	b.WriteByte('$')

	re, err := compileRegexp(b.String())
	if err != nil {
		return nil, err
	}
	return &globMatcher{re: re, names: names}, nil
}

func (g *globMatcher) match(s string) Result {
	m := g.re.FindStringSubmatch(s)
	if m == nil {
		return Result{}
	}
	params := make(Params, len(g.names))
	for i, name := range g.names {
		params[name] = m[i+1]
	}
	return Result{Matched: true, Params: params}
}

// compileRegexp returns a cached *regexp.Regexp for expr, compiling and
// caching it on first use.
func compileRegexp(expr string) (*regexp.Regexp, error) {
	if re, ok := globCache.Get(expr); ok {
		return re, nil
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, err
	}
	globCache.Add(expr, re)
	return re, nil
}
