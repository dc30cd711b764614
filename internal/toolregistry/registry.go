package toolregistry

import (
	"context"
	"fmt"
	"sync"

	"github.com/mberto10/researchctl/internal/telemetry"
)

// Registry is a map from adapter key to Adapter plus a capability index
// for fallback lookup (spec §4.1). Once construction (RegisterDefaults or
// explicit Register calls) finishes, the registry is read-only for the
// remainder of the process's life — matching the "Adapter Registry is
// read-only after init" rule in spec §5.
type Registry struct {
	mu           sync.RWMutex
	byKey        map[string]Adapter
	byCapability map[Capability][]Adapter
	logger       telemetry.Logger
}

// NewRegistry constructs an empty Registry. logger may be nil, in which
// case a NoopLogger is used.
func NewRegistry(logger telemetry.Logger) *Registry {
	if logger == nil {
		logger = telemetry.NewNoopLogger()
	}
	return &Registry{
		byKey:        make(map[string]Adapter),
		byCapability: make(map[Capability][]Adapter),
		logger:       logger,
	}
}

// Register adds an adapter under its own Key() and every capability it
// declares. Construction-time only: callers must finish registering before
// any concurrent Lookup begins (spec §5: registries are read-only after
// init).
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byKey[a.Key()] = a
	for _, c := range a.Capabilities() {
		r.byCapability[c] = append(r.byCapability[c], a)
	}
}

// Unavailable marks that a known adapter could not be constructed (missing
// credentials) without being fatal to startup (spec §4.1:
// "register-default ... missing credentials demote an adapter to
// unavailable but not fatal"). It simply logs; the adapter is never added,
// so lookups for its key fall through to a capability fallback if one
// exists.
func (r *Registry) Unavailable(key string, reason error) {
	r.logger.Warn(context.Background(), "adapter unavailable", "key", key, "reason", reason)
}

// Lookup resolves use (an adapter key, or — when no adapter registers that
// exact key — a capability tag) to a concrete Adapter. Exact key matches
// win; otherwise the first adapter registered under the matching
// capability is returned (spec §4.1: "lookup that returns either the
// exact key or a capability-compatible substitute").
func (r *Registry) Lookup(use string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if a, ok := r.byKey[use]; ok {
		return a, true
	}
	if candidates := r.byCapability[Capability(use)]; len(candidates) > 0 {
		return candidates[0], true
	}
	return nil, false
}

// Known reports whether use resolves to either an exact key or a known
// capability — used by the Strategy Loader to validate every step's `use`
// at load time (spec §4.2).
func (r *Registry) Known(use string) bool {
	_, ok := r.Lookup(use)
	return ok
}

// Keys returns every registered adapter key, for diagnostics.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byKey))
	for k := range r.byKey {
		out = append(out, k)
	}
	return out
}

// MustLookup is a convenience for call sites (tests, CLI wiring) that treat
// an unresolvable key as a programmer error.
func (r *Registry) MustLookup(use string) Adapter {
	a, ok := r.Lookup(use)
	if !ok {
		panic(fmt.Sprintf("toolregistry: no adapter or capability for %q", use))
	}
	return a
}
