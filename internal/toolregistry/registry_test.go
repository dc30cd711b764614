package toolregistry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mberto10/researchctl/internal/evidence"
)

type fakeAdapter struct {
	key  string
	caps []Capability
}

func (a *fakeAdapter) Call(context.Context, map[string]any) ([]evidence.Evidence, *Usage, error) {
	return nil, nil, nil
}
func (a *fakeAdapter) Capabilities() []Capability { return a.caps }
func (a *fakeAdapter) CostHint() float64          { return 0 }
func (a *fakeAdapter) Key() string                { return a.key }
func (a *fakeAdapter) ParamsSchema() []byte        { return nil }

func TestLookupPrefersExactKeyOverCapabilityFallback(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeAdapter{key: "web_search.primary", caps: []Capability{CapabilityWebSearch}})
	r.Register(&fakeAdapter{key: "web_search.secondary", caps: []Capability{CapabilityWebSearch}})

	a, ok := r.Lookup("web_search.primary")
	require.True(t, ok)
	require.Equal(t, "web_search.primary", a.Key())

	a, ok = r.Lookup("web_search")
	require.True(t, ok)
	require.Equal(t, "web_search.primary", a.Key()) // first registered wins the fallback
}

func TestLookupUnknownKeyFails(t *testing.T) {
	r := NewRegistry(nil)
	_, ok := r.Lookup("nothing_registered")
	require.False(t, ok)
}

func TestKnownReflectsLookup(t *testing.T) {
	r := NewRegistry(nil)
	require.False(t, r.Known("llm_completion"))
	r.Register(&fakeAdapter{key: "llm.anthropic", caps: []Capability{CapabilityLLMCompletion}})
	require.True(t, r.Known("llm_completion"))
	require.True(t, r.Known("llm.anthropic"))
}

func TestMustLookupPanicsOnUnknown(t *testing.T) {
	r := NewRegistry(nil)
	require.Panics(t, func() { r.MustLookup("missing") })
}

func TestKeysListsEveryRegisteredAdapter(t *testing.T) {
	r := NewRegistry(nil)
	r.Register(&fakeAdapter{key: "a", caps: nil})
	r.Register(&fakeAdapter{key: "b", caps: nil})
	require.ElementsMatch(t, []string{"a", "b"}, r.Keys())
}
