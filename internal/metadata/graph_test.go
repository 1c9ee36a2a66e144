package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entigraph/internal/core/apperror"
)

func stored(t *testing.T, entity, name string) *Stored {
	t.Helper()
	d, err := NewStored(Attr(entity, name), TypeInteger)
	require.NoError(t, err)
	return d
}

func derived(t *testing.T, entity, name string, sources ...Attribute) *Derived {
	t.Helper()
	d, err := NewDerived(Attr(entity, name), TypeInteger, sources, func(SourceValues) any { return nil })
	require.NoError(t, err)
	return d
}

func names(attrs []Attribute) []string {
	out := make([]string, len(attrs))
	for i, a := range attrs {
		out[i] = a.Name
	}
	return out
}

func TestBuildGraph_OrderBreaksTiesByDeclaration(t *testing.T) {
	defs := []Definition{
		stored(t, "e", "a"),
		derived(t, "e", "c", Attr("e", "a")),
		stored(t, "e", "b"),
		derived(t, "e", "d", Attr("e", "c"), Attr("e", "b")),
	}

	g, err := BuildGraph("e", defs)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c", "b", "d"}, names(g.Order()))
	assert.Equal(t, []string{"c", "d"}, names(g.Dependents(Attr("e", "a"))))
	assert.Equal(t, []string{"d"}, names(g.Dependents(Attr("e", "b"))))
	assert.Empty(t, g.Dependents(Attr("e", "d")))
	assert.Equal(t, []string{"c", "b"}, names(g.Sources(Attr("e", "d"))))
	assert.Equal(t, []string{"c"}, names(g.DirectDependents(Attr("e", "a"))))
	assert.Equal(t, 1, g.Position(Attr("e", "c")))
	assert.Equal(t, -1, g.Position(Attr("e", "zz")))
	assert.Equal(t, "e", g.EntityType())
}

func TestBuildGraph_DiamondDependents(t *testing.T) {
	a := Attr("e", "a")
	defs := []Definition{
		derived(t, "e", "d", Attr("e", "b"), Attr("e", "c")),
		derived(t, "e", "c", a),
		derived(t, "e", "b", a),
		stored(t, "e", "a"),
	}

	g, err := BuildGraph("e", defs)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "b", "d"}, names(g.Dependents(a)))
}

func TestBuildGraph_RejectsCycleInEveryOrder(t *testing.T) {
	x := func() Definition { return derived(t, "e", "x", Attr("e", "y")) }
	y := func() Definition { return derived(t, "e", "y", Attr("e", "x")) }
	z := func() Definition { return stored(t, "e", "z") }

	orders := [][]Definition{
		{x(), y()},
		{y(), x()},
		{z(), x(), y()},
		{x(), z(), y()},
		{y(), x(), z()},
	}
	for _, defs := range orders {
		_, err := BuildGraph("e", defs)
		require.Error(t, err)

		appErr, ok := apperror.AsAppError(err)
		require.True(t, ok)
		assert.Equal(t, apperror.CodeCyclicDependency, appErr.Code)
		cycle := appErr.Details["cycle"].([]string)
		require.Len(t, cycle, 3)
		assert.Equal(t, cycle[0], cycle[2])
		assert.ElementsMatch(t, []string{"x", "y"}, cycle[:2])
	}
}

func TestBuildGraph_ReportsLongerCycle(t *testing.T) {
	defs := []Definition{
		stored(t, "e", "a"),
		derived(t, "e", "s", Attr("e", "a")),
		derived(t, "e", "p", Attr("e", "r")),
		derived(t, "e", "q", Attr("e", "p")),
		derived(t, "e", "r", Attr("e", "q"), Attr("e", "a")),
	}

	_, err := BuildGraph("e", defs)

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, []string{"q", "r", "p", "q"}, appErr.Details["cycle"])
}

func TestBuildGraph_Errors(t *testing.T) {
	tests := []struct {
		name string
		defs []Definition
		code string
	}{
		{"cross entity source", []Definition{derived(t, "e", "x", Attr("other", "a"))}, apperror.CodeCrossEntitySource},
		{"unknown source", []Definition{derived(t, "e", "x", Attr("e", "missing"))}, apperror.CodeInvalidDefinition},
		{"duplicate", []Definition{stored(t, "e", "a"), stored(t, "e", "a")}, apperror.CodeInvalidDefinition},
		{"foreign attribute", []Definition{stored(t, "other", "a")}, apperror.CodeInvalidDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildGraph("e", tt.defs)
			assert.True(t, apperror.Is(err, tt.code), "got %v", err)
		})
	}
}
