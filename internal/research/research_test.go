package research

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/settings"
	"github.com/mberto10/researchctl/internal/state"
	"github.com/mberto10/researchctl/internal/strategy"
)

type stubExecutor struct {
	ran []string
	add map[string][]evidence.Evidence
	err error
}

func (e *stubExecutor) Run(_ context.Context, s *strategy.Step, st *state.State) error {
	e.ran = append(e.ran, s.Name)
	if e.err != nil {
		return e.err
	}
	st.AppendEvidence(e.add[s.Name]...)
	return nil
}

func newState() *state.State {
	s := state.New("topic", state.Identity{})
	s.LockRuntimePlan([]strategy.Step{{Name: "a", Use: "web_search"}, {Name: "b", Use: "web_search"}})
	return s
}

func TestRunExecutesStepsInDeclarationOrderAndTransitions(t *testing.T) {
	exec := &stubExecutor{}
	c := New(exec, nil, settings.Default().Limits)
	st := newState()

	err := c.Run(context.Background(), &strategy.Strategy{}, st)
	require.NoError(t, err)
	require.Equal(t, []string{"a", "b"}, exec.ran)
	require.Equal(t, state.PhaseResearched, st.CurrentPhase())
}

func TestRunDedupsByNormalizedURLAndTitle(t *testing.T) {
	exec := &stubExecutor{add: map[string][]evidence.Evidence{
		"a": {{URL: "https://Example.com/x/", Title: "Hello World"}},
		"b": {{URL: "https://example.com/x", Title: "hello world"}},
	}}
	c := New(exec, nil, settings.Default().Limits)
	st := newState()

	require.NoError(t, c.Run(context.Background(), &strategy.Strategy{}, st))
	require.Len(t, st.Evidence, 1)
	require.Equal(t, 1, st.EvictedCount)
}

func TestRunEvictsOldestFIFOWhenOverCap(t *testing.T) {
	lim := settings.Default().Limits
	lim.EvidenceCap = 1
	exec := &stubExecutor{add: map[string][]evidence.Evidence{
		"a": {{URL: "https://a.example", Title: "a"}},
		"b": {{URL: "https://b.example", Title: "b"}},
	}}
	c := New(exec, nil, lim)
	st := newState()

	require.NoError(t, c.Run(context.Background(), &strategy.Strategy{}, st))
	require.Len(t, st.Evidence, 1)
	require.Equal(t, "https://b.example", st.Evidence[0].URL)
	require.Equal(t, 1, st.EvictedCount)
}

func TestRunEnforcesPerToolCapIndependentlyOfCumulativeCap(t *testing.T) {
	lim := settings.Default().Limits
	lim.PerToolEvidenceCap = 1
	exec := &stubExecutor{add: map[string][]evidence.Evidence{
		"a": {
			{URL: "https://a1.example", Title: "a1", SourceTool: "websearch"},
			{URL: "https://a2.example", Title: "a2", SourceTool: "websearch"},
		},
		"b": {
			{URL: "https://b1.example", Title: "b1", SourceTool: "semsearch"},
		},
	}}
	c := New(exec, nil, lim)
	st := newState()

	require.NoError(t, c.Run(context.Background(), &strategy.Strategy{}, st))
	require.Len(t, st.Evidence, 2)
	urls := []string{st.Evidence[0].URL, st.Evidence[1].URL}
	require.ElementsMatch(t, []string{"https://a2.example", "https://b1.example"}, urls)
	require.Equal(t, 1, st.EvictedCount)
}

func TestRunPropagatesStepError(t *testing.T) {
	exec := &stubExecutor{err: context.DeadlineExceeded}
	c := New(exec, nil, settings.Default().Limits)
	st := newState()

	err := c.Run(context.Background(), &strategy.Strategy{}, st)
	require.Error(t, err)
	require.NotEqual(t, state.PhaseResearched, st.CurrentPhase())
}
