package strategy

import "fmt"

// Registry is the immutable-after-load index of Strategy values, indexed
// by slug and by (category, time_window, depth) (spec §4.2). A Registry is
// safe for concurrent reads across executions once Load returns — it is
// never mutated afterward (spec §3 ownership model).
type Registry struct {
	all    []*Strategy
	bySlug map[string]*Strategy
	byKey  map[Key][]*Strategy
}

// Lookup returns the strategy for an exact slug.
func (r *Registry) Lookup(slug string) (*Strategy, bool) {
	s, ok := r.bySlug[slug]
	return s, ok
}

// LookupByKey returns the strategies matching a (category, time_window,
// depth) tuple, in load order. Used by Scope when no strategy_hint is
// given.
func (r *Registry) LookupByKey(key Key) []*Strategy {
	return r.byKey[key]
}

// Slugs returns every registered slug, in load order (stable for the
// idempotent-load assertion in spec §8).
func (r *Registry) Slugs() []string {
	out := make([]string, 0, len(r.all))
	for _, s := range r.all {
		out = append(out, s.Slug)
	}
	return out
}

// Len reports the number of loaded strategies.
func (r *Registry) Len() int { return len(r.all) }

func newRegistry(strategies []*Strategy) *Registry {
	r := &Registry{
		all:    strategies,
		bySlug: make(map[string]*Strategy, len(strategies)),
		byKey:  make(map[Key][]*Strategy),
	}
	for _, s := range strategies {
		r.bySlug[s.Slug] = s
		k := Key{Category: s.Category, TimeWindow: s.TimeWindow, Depth: s.Depth}
		r.byKey[k] = append(r.byKey[k], s)
	}
	return r
}

// Error is a structural validation failure raised while loading strategies
// (spec §4.2: "Loading fails hard on structural errors").
type Error struct {
	Slug string
	Msg  string
}

func (e *Error) Error() string {
	if e.Slug == "" {
		return fmt.Sprintf("strategy: %s", e.Msg)
	}
	return fmt.Sprintf("strategy %q: %s", e.Slug, e.Msg)
}
