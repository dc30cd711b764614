package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/toolregistry"
)

type stubStrategyRegistry struct {
	bySlug map[string]*strategy.Strategy
	byKey  map[strategy.Key][]*strategy.Strategy
}

func (r *stubStrategyRegistry) Lookup(slug string) (*strategy.Strategy, bool) {
	s, ok := r.bySlug[slug]
	return s, ok
}

func (r *stubStrategyRegistry) LookupByKey(key strategy.Key) []*strategy.Strategy {
	return r.byKey[key]
}

type stubLLMAdapter struct {
	snippet string
	err     error
}

func (a *stubLLMAdapter) Call(context.Context, map[string]any) ([]evidence.Evidence, *toolregistry.Usage, error) {
	if a.err != nil {
		return nil, nil, a.err
	}
	return []evidence.Evidence{{Snippet: a.snippet}}, nil, nil
}
func (a *stubLLMAdapter) Capabilities() []toolregistry.Capability {
	return []toolregistry.Capability{toolregistry.CapabilityLLMCompletion}
}
func (a *stubLLMAdapter) CostHint() float64   { return 0 }
func (a *stubLLMAdapter) Key() string         { return "llm.stub" }
func (a *stubLLMAdapter) ParamsSchema() []byte { return nil }

type stubToolRegistry struct {
	adapter toolregistry.Adapter
}

func (r *stubToolRegistry) Lookup(use string) (toolregistry.Adapter, bool) {
	if use == string(toolregistry.CapabilityLLMCompletion) && r.adapter != nil {
		return r.adapter, true
	}
	return nil, false
}

func TestRunWithStrategyHintBypassesCategorization(t *testing.T) {
	strat := &strategy.Strategy{Slug: "hinted", Category: "news", TimeWindow: "recent", Depth: "standard"}
	strategies := &stubStrategyRegistry{bySlug: map[string]*strategy.Strategy{"hinted": strat}}
	sel := New(strategies, &stubToolRegistry{}, nil, settings.Default())

	st := state.New("topic", state.Identity{})
	got, err := sel.Run(context.Background(), Request{Topic: "topic", StrategyHint: "hinted"}, st)

	require.NoError(t, err)
	require.Same(t, strat, got)
	require.Equal(t, "hinted", st.StrategySlug)
	require.Equal(t, state.PhaseScoped, st.CurrentPhase())
}

func TestRunWithUnknownStrategyHintIsConfigError(t *testing.T) {
	strategies := &stubStrategyRegistry{bySlug: map[string]*strategy.Strategy{}}
	sel := New(strategies, &stubToolRegistry{}, nil, settings.Default())

	_, err := sel.Run(context.Background(), Request{Topic: "topic", StrategyHint: "missing"}, state.New("topic", state.Identity{}))
	require.Error(t, err)
}

func TestRunWithoutHintCategorizesAndSelectsByKey(t *testing.T) {
	strat := &strategy.Strategy{Slug: "news_recent_standard", Category: "news", TimeWindow: "week", Depth: "deep"}
	key := strategy.Key{Category: "news", TimeWindow: "week", Depth: "deep"}
	strategies := &stubStrategyRegistry{
		bySlug: map[string]*strategy.Strategy{strat.Slug: strat},
		byKey:  map[strategy.Key][]*strategy.Strategy{key: {strat}},
	}
	llm := &stubLLMAdapter{snippet: `{"category":"news","time_window":"week","depth":"deep","tasks":["sub-query 1"]}`}
	sel := New(strategies, &stubToolRegistry{adapter: llm}, nil, settings.Default())

	st := state.New("export controls", state.Identity{})
	got, err := sel.Run(context.Background(), Request{Topic: "export controls"}, st)

	require.NoError(t, err)
	require.Same(t, strat, got)
	require.Equal(t, "news", st.Category)
	require.Equal(t, "week", st.TimeWindow)
	require.Equal(t, "deep", st.Depth)
	require.Equal(t, []string{"sub-query 1"}, st.Tasks)
}

func TestRunWithoutHintNoMatchingStrategyIsConfigError(t *testing.T) {
	strategies := &stubStrategyRegistry{bySlug: map[string]*strategy.Strategy{}, byKey: map[strategy.Key][]*strategy.Strategy{}}
	llm := &stubLLMAdapter{snippet: `{"category":"news","time_window":"week","depth":"deep"}`}
	sel := New(strategies, &stubToolRegistry{adapter: llm}, nil, settings.Default())

	_, err := sel.Run(context.Background(), Request{Topic: "topic"}, state.New("topic", state.Identity{}))
	require.Error(t, err)
}

func TestRunWithoutHintNoAdapterRegisteredIsConfigError(t *testing.T) {
	strategies := &stubStrategyRegistry{}
	sel := New(strategies, &stubToolRegistry{}, nil, settings.Default())

	_, err := sel.Run(context.Background(), Request{Topic: "topic"}, state.New("topic", state.Identity{}))
	require.Error(t, err)
}

func TestDepthOverrideWinsOverHintedStrategyDepth(t *testing.T) {
	strat := &strategy.Strategy{Slug: "hinted", Category: "news", TimeWindow: "recent", Depth: "standard"}
	strategies := &stubStrategyRegistry{bySlug: map[string]*strategy.Strategy{"hinted": strat}}
	sel := New(strategies, &stubToolRegistry{}, nil, settings.Default())

	st := state.New("topic", state.Identity{})
	_, err := sel.Run(context.Background(), Request{Topic: "topic", StrategyHint: "hinted", DepthOverride: "deep"}, st)

	require.NoError(t, err)
	require.Equal(t, "deep", st.Depth)
}
