package exprval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsBoolTruthiness(t *testing.T) {
	require.True(t, OfString("x").AsBool())
	require.False(t, OfString("").AsBool())
	require.True(t, OfInt(1).AsBool())
	require.False(t, OfInt(0).AsBool())
	require.False(t, Null.AsBool())
	require.True(t, OfList([]Value{OfInt(1)}).AsBool())
	require.False(t, OfList(nil).AsBool())
}

func TestEqualCoercesIntAndFloat(t *testing.T) {
	require.True(t, Equal(OfInt(1), OfFloat(1.0)))
	require.False(t, Equal(OfInt(1), OfFloat(1.5)))
	require.True(t, Equal(Null, Null))
	require.False(t, Equal(Null, OfInt(0)))
}

func TestFromNativeRoundTripsThroughNative(t *testing.T) {
	in := map[string]any{
		"name":  "widget",
		"count": int64(3),
		"tags":  []any{"a", "b"},
	}
	v := FromNative(in)
	require.Equal(t, KindMap, v.Kind())
	require.Equal(t, in, v.Native())
}

func TestFieldOnNonMapReturnsNotFound(t *testing.T) {
	_, ok := OfString("x").Field("anything")
	require.False(t, ok)
}
