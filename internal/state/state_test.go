package state

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mberto10/researchctl/internal/evidence"
	"github.com/mberto10/researchctl/internal/exprval"
	"github.com/mberto10/researchctl/internal/strategy"
)

func TestNewStateStartsInInitPhase(t *testing.T) {
	s := New("export controls", Identity{UserID: "u1", TaskID: "t1"})
	require.Equal(t, PhaseInit, s.CurrentPhase())
	require.Empty(t, s.Evidence)
}

func TestTransitionIsOneWayAndTerminalOnceFinalized(t *testing.T) {
	s := New("topic", Identity{})
	require.NoError(t, s.Transition(PhaseScoped))
	require.NoError(t, s.Transition(PhaseFinalized))
	require.Error(t, s.Transition(PhaseFailed))
	require.Equal(t, PhaseFinalized, s.CurrentPhase())
}

func TestFailedIsReachableFromAnyNonTerminalPhase(t *testing.T) {
	s := New("topic", Identity{})
	require.NoError(t, s.Transition(PhaseScoped))
	require.NoError(t, s.Transition(PhaseFailed))
}

func TestAppendEvidenceAndReplaceEvidenceTracksEvicted(t *testing.T) {
	s := New("topic", Identity{})
	s.AppendEvidence(evidence.Evidence{URL: "https://a.example", Title: "A"})
	require.Len(t, s.Evidence, 1)

	s.ReplaceEvidence(nil, 1)
	require.Empty(t, s.Evidence)
	require.Equal(t, 1, s.EvictedCount)
}

func TestLockRuntimePlanSetsRuntimePlanVar(t *testing.T) {
	s := New("topic", Identity{})
	s.LockRuntimePlan([]strategy.Step{{Name: "search", Use: "web_search"}})

	require.Len(t, s.RuntimePlan, 1)
	v, ok := s.Var("runtime_plan")
	require.True(t, ok)
	require.Equal(t, exprval.KindList, v.Kind())
	require.Len(t, v.AsList(), 1)
}

func TestScopeExposesScopeFieldsAndVars(t *testing.T) {
	s := New("export controls", Identity{})
	s.SetScope("slug", "technical", "recent", "deep", []string{"task"})
	s.SetVar("limit", exprval.OfInt(5))

	scope := s.Scope()
	v, err := exprval.Resolve(scope, "category")
	require.NoError(t, err)
	require.Equal(t, "technical", v.AsString())

	v, err = exprval.Resolve(scope, "limit")
	require.NoError(t, err)
	require.Equal(t, int64(5), v.Native())
}
