package fill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mberto10/researchctl/internal/clock"
	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
	"github.com/mberto10/researchctl/internal/toolregistry"
)

type stubLLMAdapter struct {
	snippet string
	err     error
	calls   int
}

func (a *stubLLMAdapter) Call(context.Context, map[string]any) ([]evidence.Evidence, *toolregistry.Usage, error) {
	a.calls++
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

type stubRegistry struct{ adapter toolregistry.Adapter }

func (r *stubRegistry) Lookup(use string) (toolregistry.Adapter, bool) {
	if use == string(toolregistry.CapabilityLLMCompletion) && r.adapter != nil {
		return r.adapter, true
	}
	return nil, false
}

func TestRunSkipsLLMCallWhenNoVariableNeedsIt(t *testing.T) {
	r := New(&stubRegistry{}, nil, settings.Default(), nil)
	st := state.New("topic", state.Identity{})
	s := &strategy.Strategy{
		Variables: []strategy.Variable{{Name: "topic", Resolver: strategy.ResolverFromRequest, Default: "fallback"}},
		ToolChain: []strategy.Step{{Name: "search", Use: "web_search"}},
	}

	require.NoError(t, r.Run(context.Background(), s, st))
	require.Equal(t, state.PhaseFilled, st.CurrentPhase())
	require.Len(t, st.RuntimePlan, 1)
}

func TestRunBatchesLLMFillVariablesIntoOneCall(t *testing.T) {
	llm := &stubLLMAdapter{snippet: `{"depth":"deep","category":"technical"}`}
	r := New(&stubRegistry{adapter: llm}, nil, settings.Default(), nil)
	st := state.New("export controls", state.Identity{})
	s := &strategy.Strategy{
		Variables: []strategy.Variable{
			{Name: "depth", Resolver: strategy.ResolverLLMFill, Required: true},
			{Name: "category", Resolver: strategy.ResolverLLMFill, Required: true},
		},
		ToolChain: []strategy.Step{{Name: "search", Use: "web_search"}},
	}

	require.NoError(t, r.Run(context.Background(), s, st))
	require.Equal(t, 1, llm.calls)

	v, ok := st.Var("depth")
	require.True(t, ok)
	require.Equal(t, "deep", v.AsString())
}

func TestRunRequiredVariableMissingFromLLMResponseIsConfigError(t *testing.T) {
	llm := &stubLLMAdapter{snippet: `{}`}
	r := New(&stubRegistry{adapter: llm}, nil, settings.Default(), nil)
	st := state.New("topic", state.Identity{})
	s := &strategy.Strategy{
		Variables: []strategy.Variable{{Name: "depth", Resolver: strategy.ResolverLLMFill, Required: true}},
	}

	err := r.Run(context.Background(), s, st)
	require.Error(t, err)
	require.NotEqual(t, state.PhaseFilled, st.CurrentPhase())
}

func TestRunFallsBackToDefaultWhenOptionalVariableMissing(t *testing.T) {
	llm := &stubLLMAdapter{snippet: `{}`}
	r := New(&stubRegistry{adapter: llm}, nil, settings.Default(), nil)
	st := state.New("topic", state.Identity{})
	s := &strategy.Strategy{
		Variables: []strategy.Variable{{Name: "depth", Resolver: strategy.ResolverLLMFill, Default: "standard"}},
	}

	require.NoError(t, r.Run(context.Background(), s, st))
	v, ok := st.Var("depth")
	require.True(t, ok)
	require.Equal(t, "standard", v.AsString())
}

func TestRunExpandsTimeWindowIntoDateRangeUsingTheExecutionClock(t *testing.T) {
	fixed := clock.Fixed{At: time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)}
	r := New(&stubRegistry{}, nil, settings.Default(), fixed)
	st := state.New("topic", state.Identity{})
	st.SetScope("general_news_standard", "general", "week", "standard", nil)
	s := &strategy.Strategy{ToolChain: []strategy.Step{{Name: "search", Use: "web_search"}}}

	require.NoError(t, r.Run(context.Background(), s, st))

	v, ok := st.Var("date_range")
	require.True(t, ok)
	start, ok := v.Field("start")
	require.True(t, ok)
	end, ok := v.Field("end")
	require.True(t, ok)
	require.Equal(t, "2026-07-24", start.AsString())
	require.Equal(t, "2026-07-31", end.AsString())
}

func TestDateRangeForEachWindowKind(t *testing.T) {
	now := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	cases := map[string]string{"day": "2026-07-30", "week": "2026-07-24", "month": "2026-06-30", "custom": "2026-07-31"}
	for window, wantStart := range cases {
		start, end := dateRangeFor(window, now)
		require.Equal(t, wantStart, start.Format(dateLayout), "window=%s", window)
		require.Equal(t, "2026-07-31", end.Format(dateLayout), "window=%s", window)
	}
}

func TestRunNoAdapterRegisteredIsConfigError(t *testing.T) {
	r := New(&stubRegistry{}, nil, settings.Default(), nil)
	st := state.New("topic", state.Identity{})
	s := &strategy.Strategy{
		Variables: []strategy.Variable{{Name: "depth", Resolver: strategy.ResolverLLMFill, Required: true}},
	}

	err := r.Run(context.Background(), s, st)
	require.Error(t, err)
}
