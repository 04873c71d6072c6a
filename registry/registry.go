// Package registry holds fixtures in registration order and resolves
// identifiers against them.
//
// Lookups resolve to the first entry in registration order that matches.
// Static entries are found through an exact-key index, so a lookup only
// runs the matcher on the pattern entries registered before them.
// Mutations publish a new immutable snapshot, so lookups never lock and
// always observe a consistent set of entries.
package registry

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"

	"github.com/Kasava-AI/demokit-sub003/fixture"
	"github.com/Kasava-AI/demokit-sub003/pattern"
)

var (
	// ErrKindMismatch is returned when a pre-compiled pattern of another
	// kind is added to a registry.
	ErrKindMismatch = errors.New("registry: pattern kind does not match registry")

	// ErrEmptyMethods is returned by SetMethods for an empty handler map.
	ErrEmptyMethods = errors.New("registry: no method handlers")
)

// Outcome classifies a lookup.
type Outcome uint8

const (
	// OutcomeNoMatch means no entry matched the identifier.
	OutcomeNoMatch Outcome = iota
	// OutcomeHit means an entry matched and a handler was selected.
	OutcomeHit
	// OutcomeNoHandlerForMethod means an entry matched but it is
	// method-keyed and has no handler for the requested verb.
	OutcomeNoHandlerForMethod
)

func (o Outcome) String() string {
	switch o {
	case OutcomeHit:
		return "hit"
	case OutcomeNoHandlerForMethod:
		return "no_handler_for_method"
	default:
		return "no_match"
	}
}

// Target is what an entry resolves to: a single handler, or handlers
// keyed by mutation verb. The discriminant is set by the registration
// call, never inferred from the handler value.
type Target[H any] struct {
	single  H
	methods map[fixture.Method]H
	keyed   bool
}

// Single returns a target that serves every method with h.
func Single[H any](h H) Target[H] {
	return Target[H]{single: h}
}

// ByMethod returns a method-keyed target. The map is copied.
func ByMethod[H any](m map[fixture.Method]H) Target[H] {
	cp := make(map[fixture.Method]H, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Target[H]{methods: cp, keyed: true}
}

// MethodKeyed reports whether the target dispatches on the verb.
func (t Target[H]) MethodKeyed() bool {
	return t.keyed
}

// Handler returns the single handler of a non-keyed target.
func (t Target[H]) Handler() (H, bool) {
	if t.keyed {
		var zero H
		return zero, false
	}
	return t.single, true
}

// ForMethod selects the handler for m. Non-keyed targets serve every
// method.
func (t Target[H]) ForMethod(m fixture.Method) (H, bool) {
	if !t.keyed {
		return t.single, true
	}
	h, ok := t.methods[m]
	return h, ok
}

// Methods returns the verbs of a method-keyed target in a stable order.
func (t Target[H]) Methods() []fixture.Method {
	if !t.keyed {
		return nil
	}
	out := make([]fixture.Method, 0, len(t.methods))
	for _, m := range fixture.MutationMethods {
		if _, ok := t.methods[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// Entry is one registered fixture.
type Entry[H any] struct {
	Pattern *pattern.Pattern
	Target  Target[H]
}

// Hit is a successful lookup.
type Hit[H any] struct {
	Entry   Entry[H]
	Handler H
	Params  pattern.Params
	// Exact is true when the hit came from the exact-key index.
	Exact bool
}

type snapshot[H any] struct {
	entries []Entry[H]
	// exact maps the fingerprint of a static pattern's source to its
	// positions in entries.
	exact map[uint64][]int
	// position maps a pattern source to its position in entries.
	position map[string]int
}

// Registry is an ordered, concurrency-safe fixture store for one key kind.
type Registry[H any] struct {
	kind   pattern.Kind
	logger *zap.Logger

	mu   sync.Mutex
	snap atomic.Pointer[snapshot[H]]
}

// Option customizes a Registry.
type Option func(*options)

type options struct {
	logger *zap.Logger
}

// WithLogger sets the logger used to report registrations.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// New returns an empty registry for keys of the given kind.
func New[H any](kind pattern.Kind, opts ...Option) *Registry[H] {
	o := options{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	r := &Registry[H]{
		kind:   kind,
		logger: o.logger.With(zap.Stringer("kind", kind)),
	}
	r.snap.Store(&snapshot[H]{
		exact:    map[uint64][]int{},
		position: map[string]int{},
	})
	return r
}

// Kind returns the key kind of the registry.
func (r *Registry[H]) Kind() pattern.Kind {
	return r.kind
}

// Set compiles raw and registers h as a single-handler entry.
func (r *Registry[H]) Set(raw any, h H) error {
	p, err := pattern.Compile(r.kind, raw)
	if err != nil {
		return err
	}
	return r.SetPattern(p, Single(h))
}

// SetMethods compiles raw and registers a method-keyed entry. Only
// POST, PUT, PATCH and DELETE are accepted as keys.
func (r *Registry[H]) SetMethods(raw any, handlers map[fixture.Method]H) error {
	if len(handlers) == 0 {
		return ErrEmptyMethods
	}
	for m := range handlers {
		if !m.Valid() {
			return fmt.Errorf("%w: got %q", fixture.ErrInvalidMethod, string(m))
		}
	}
	p, err := pattern.Compile(r.kind, raw)
	if err != nil {
		return err
	}
	return r.SetPattern(p, ByMethod(handlers))
}

// SetPattern registers a pre-compiled pattern. An entry with an identical
// pattern is replaced in place and keeps its position; otherwise the entry
// is appended.
func (r *Registry[H]) SetPattern(p *pattern.Pattern, target Target[H]) error {
	if p == nil || p.Kind() != r.kind {
		return ErrKindMismatch
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	entry := Entry[H]{Pattern: p, Target: target}

	if pos, ok := cur.position[p.String()]; ok {
		entries := make([]Entry[H], len(cur.entries))
		copy(entries, cur.entries)
		entries[pos] = entry
		r.snap.Store(&snapshot[H]{
			entries:  entries,
			exact:    cur.exact,
			position: cur.position,
		})
		r.logger.Debug("fixture replaced", zap.String("pattern", p.String()), zap.Int("position", pos))
		return nil
	}

	entries := make([]Entry[H], len(cur.entries), len(cur.entries)+1)
	copy(entries, cur.entries)
	entries = append(entries, entry)
	r.snap.Store(index(entries))
	r.logger.Debug("fixture registered", zap.String("pattern", p.String()), zap.Int("position", len(entries)-1))
	return nil
}

// Remove deletes the entry whose pattern is identical to the compiled
// raw key. It reports whether an entry was removed.
func (r *Registry[H]) Remove(raw any) (bool, error) {
	p, err := pattern.Compile(r.kind, raw)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur := r.snap.Load()
	pos, ok := cur.position[p.String()]
	if !ok {
		return false, nil
	}

	entries := make([]Entry[H], 0, len(cur.entries)-1)
	entries = append(entries, cur.entries[:pos]...)
	entries = append(entries, cur.entries[pos+1:]...)
	r.snap.Store(index(entries))
	r.logger.Debug("fixture removed", zap.String("pattern", p.String()))
	return true, nil
}

// Clear removes every entry.
func (r *Registry[H]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snap.Store(index[H](nil))
	r.logger.Debug("fixtures cleared")
}

// ReplaceWith replaces every entry of r with the entries of src in one
// step, so concurrent lookups see either the old or the new set. src must
// have the same kind.
func (r *Registry[H]) ReplaceWith(src *Registry[H]) error {
	if src == nil || src.kind != r.kind {
		return ErrKindMismatch
	}
	if src == r {
		return nil
	}

	next := src.snap.Load()

	r.mu.Lock()
	defer r.mu.Unlock()

	r.snap.Store(next)
	r.logger.Debug("fixtures replaced", zap.Int("count", len(next.entries)))
	return nil
}

// Len returns the number of entries.
func (r *Registry[H]) Len() int {
	return len(r.snap.Load().entries)
}

// Entries returns the entries in registration order.
func (r *Registry[H]) Entries() []Entry[H] {
	cur := r.snap.Load()
	out := make([]Entry[H], len(cur.entries))
	copy(out, cur.entries)
	return out
}

// Get returns the entry registered under the identical pattern.
func (r *Registry[H]) Get(raw any) (Entry[H], bool) {
	p, err := pattern.Compile(r.kind, raw)
	if err != nil {
		return Entry[H]{}, false
	}
	cur := r.snap.Load()
	pos, ok := cur.position[p.String()]
	if !ok {
		return Entry[H]{}, false
	}
	return cur.entries[pos], true
}

// Find resolves id to the first entry in registration order that matches
// it. Method-keyed entries are found too, but Hit.Handler is only set for
// single-handler entries.
func (r *Registry[H]) Find(id any) (Hit[H], bool) {
	hit, ok := r.snap.Load().find(r.kind, id)
	if !ok {
		return Hit[H]{}, false
	}
	if h, ok := hit.Entry.Target.Handler(); ok {
		hit.Handler = h
	}
	return hit, true
}

// FindForMethod resolves id and then selects the handler for method. An
// entry that matches but has no handler for the verb yields
// OutcomeNoHandlerForMethod; later entries are not consulted.
func (r *Registry[H]) FindForMethod(id any, method fixture.Method) (Hit[H], Outcome) {
	hit, ok := r.snap.Load().find(r.kind, id)
	if !ok {
		return Hit[H]{}, OutcomeNoMatch
	}
	h, ok := hit.Entry.Target.ForMethod(method)
	if !ok {
		return Hit[H]{Entry: hit.Entry, Params: hit.Params, Exact: hit.Exact}, OutcomeNoHandlerForMethod
	}
	hit.Handler = h
	return hit, OutcomeHit
}

// find returns the first entry in registration order that matches id.
// The exact-key index locates a static entry without matching it; only
// the pattern entries registered before it are scanned.
func (s *snapshot[H]) find(kind pattern.Kind, id any) (Hit[H], bool) {
	exact := -1
	if len(s.exact) > 0 {
		if key, err := pattern.CanonicalKey(kind, id); err == nil {
			for _, pos := range s.exact[xxhash.Sum64String(key)] {
				if s.entries[pos].Pattern.String() == key {
					exact = pos
					break
				}
			}
		}
	}

	for i, e := range s.entries {
		if i == exact {
			return Hit[H]{Entry: e, Params: pattern.Params{}, Exact: true}, true
		}
		if e.Pattern.Static() {
			continue
		}
		if res := e.Pattern.Match(id); res.Matched {
			return Hit[H]{Entry: e, Params: res.Params}, true
		}
	}
	return Hit[H]{}, false
}

// index builds a snapshot for entries.
func index[H any](entries []Entry[H]) *snapshot[H] {
	s := &snapshot[H]{
		entries:  entries,
		exact:    make(map[uint64][]int),
		position: make(map[string]int, len(entries)),
	}
	for i, e := range entries {
		src := e.Pattern.String()
		s.position[src] = i
		if e.Pattern.Static() {
			sum := xxhash.Sum64String(src)
			s.exact[sum] = append(s.exact[sum], i)
		}
	}
	return s
}
