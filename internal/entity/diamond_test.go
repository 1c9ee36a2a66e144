package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entigraph/internal/metadata"
)

// diamond declares d = b + c with b = a + 1 and c = a * 2, plus
// parity = a % 2 and label derived from parity. Declaration order is
// permuted by perm to check that evaluation order does not depend on it.
type diamond struct {
	a, b, c, d, parity, label metadata.Attribute
	computed                  map[string]int
	entity                    *Entity
}

func newDiamond(t *testing.T, perm []int) *diamond {
	t.Helper()
	x := &diamond{
		a:        metadata.Attr("shape", "a"),
		b:        metadata.Attr("shape", "b"),
		c:        metadata.Attr("shape", "c"),
		d:        metadata.Attr("shape", "d"),
		parity:   metadata.Attr("shape", "parity"),
		label:    metadata.Attr("shape", "label"),
		computed: make(map[string]int),
	}
	intOf := func(s metadata.SourceValues, a metadata.Attribute) (int64, bool) {
		return metadata.Value[int64](s, a)
	}
	derive := func(attr metadata.Attribute, vt metadata.ValueType, sources []metadata.Attribute, fn metadata.ComputeFunc) metadata.Definition {
		d, err := metadata.NewDerived(attr, vt, sources, func(s metadata.SourceValues) any {
			x.computed[attr.Name]++
			return fn(s)
		})
		require.NoError(t, err)
		return d
	}

	a, err := metadata.NewStored(x.a, metadata.TypeInteger)
	require.NoError(t, err)
	defs := []metadata.Definition{
		a,
		derive(x.b, metadata.TypeInteger, []metadata.Attribute{x.a}, func(s metadata.SourceValues) any {
			if v, ok := intOf(s, x.a); ok {
				return v + 1
			}
			return nil
		}),
		derive(x.c, metadata.TypeInteger, []metadata.Attribute{x.a}, func(s metadata.SourceValues) any {
			if v, ok := intOf(s, x.a); ok {
				return v * 2
			}
			return nil
		}),
		derive(x.d, metadata.TypeInteger, []metadata.Attribute{x.b, x.c}, func(s metadata.SourceValues) any {
			b, ok := intOf(s, x.b)
			c, ok2 := intOf(s, x.c)
			if !ok || !ok2 {
				return nil
			}
			return b + c
		}),
		derive(x.parity, metadata.TypeInteger, []metadata.Attribute{x.a}, func(s metadata.SourceValues) any {
			if v, ok := intOf(s, x.a); ok {
				return v % 2
			}
			return nil
		}),
		derive(x.label, metadata.TypeString, []metadata.Attribute{x.parity}, func(s metadata.SourceValues) any {
			if v, ok := intOf(s, x.parity); ok && v == 0 {
				return "even"
			}
			return "odd"
		}),
	}
	if perm != nil {
		shuffled := make([]metadata.Definition, len(defs))
		for i, p := range perm {
			shuffled[i] = defs[p]
		}
		defs = shuffled
	}

	reg := metadata.NewRegistry()
	reg.MustRegister(metadata.EntityDef{Name: "shape", Attributes: defs})
	x.entity = New(reg.MustBuild().MustEntity("shape"))
	clear(x.computed)
	return x
}

func TestDiamond_RecomputesSinkOnce(t *testing.T) {
	x := newDiamond(t, nil)
	r := record(x.entity)

	require.NoError(t, x.entity.Set(x.a, 1))

	assert.Equal(t, int64(4), x.entity.Get(x.d))
	assert.Equal(t, map[string]int{"b": 1, "c": 1, "d": 1, "parity": 1, "label": 1}, x.computed)
	assert.Equal(t, []string{"a", "b", "c", "d", "parity"}, r.changed)
	assert.Equal(t, []string{"a", "b", "c", "d", "parity", "label"}, r.edited)
}

func TestDiamond_UnchangedDependentStopsPropagation(t *testing.T) {
	x := newDiamond(t, nil)
	require.NoError(t, x.entity.Set(x.a, 1))
	clear(x.computed)
	r := record(x.entity)

	require.NoError(t, x.entity.Set(x.a, 3))

	assert.Equal(t, 1, x.computed["parity"])
	assert.Zero(t, x.computed["label"])
	assert.NotContains(t, r.changed, "parity")
	assert.NotContains(t, r.edited, "label")
}

func TestDiamond_NoOpWriteRecomputesNothing(t *testing.T) {
	x := newDiamond(t, nil)
	require.NoError(t, x.entity.Set(x.a, 1))
	clear(x.computed)
	r := record(x.entity)

	require.NoError(t, x.entity.Set(x.a, int64(1)))

	assert.Empty(t, x.computed)
	assert.Empty(t, r.changed)
	assert.Equal(t, []string{"a"}, r.edited)
}

func TestDiamond_DeliveryIsTopologicalForAnyDeclarationOrder(t *testing.T) {
	perms := [][]int{
		{5, 4, 3, 2, 1, 0},
		{3, 1, 0, 2, 5, 4},
		{2, 3, 5, 0, 4, 1},
	}
	for _, perm := range perms {
		x := newDiamond(t, perm)
		r := record(x.entity)

		require.NoError(t, x.entity.Set(x.a, 2))

		pos := make(map[string]int)
		for i, name := range r.edited {
			pos[name] = i
		}
		assert.Less(t, pos["a"], pos["b"])
		assert.Less(t, pos["a"], pos["c"])
		assert.Less(t, pos["b"], pos["d"])
		assert.Less(t, pos["c"], pos["d"])
		assert.Less(t, pos["parity"], pos["label"])
		assert.Equal(t, 1, x.computed["d"], "perm %v", perm)
	}
}
