package metadata

import (
	"fmt"
	"slices"

	"entigraph/internal/core/apperror"
)

// Graph is the dependency graph of one entity type: nodes are attributes and
// edges run from a source attribute to the derived attributes computed from it.
//
// A Graph is immutable once built and safe for concurrent reads.
type Graph struct {
	entityType string
	order      []Attribute
	position   map[Attribute]int
	sources    map[Attribute][]Attribute
	direct     map[Attribute][]Attribute
	dependents map[Attribute][]Attribute
}

// BuildGraph builds the dependency graph for the definitions of one entity
// type. Evaluation order is a topological sort; ties are broken by
// declaration order so the result is deterministic.
func BuildGraph(entityType string, defs []Definition) (*Graph, error) {
	declared := make(map[Attribute]int, len(defs))
	attrs := make([]Attribute, len(defs))
	for i, def := range defs {
		a := def.Attribute()
		if a.Entity != entityType {
			return nil, apperror.NewInvalidDefinition(a.String(),
				fmt.Sprintf("attribute registered under entity type %s", entityType))
		}
		if _, dup := declared[a]; dup {
			return nil, apperror.NewInvalidDefinition(a.String(), "attribute defined twice")
		}
		declared[a] = i
		attrs[i] = a
	}

	g := &Graph{
		entityType: entityType,
		position:   make(map[Attribute]int, len(defs)),
		sources:    make(map[Attribute][]Attribute),
		direct:     make(map[Attribute][]Attribute),
		dependents: make(map[Attribute][]Attribute),
	}

	indegree := make([]int, len(defs))
	for i, def := range defs {
		derived, ok := def.(*Derived)
		if !ok {
			continue
		}
		for _, src := range derived.Sources {
			if src.Entity != entityType {
				return nil, apperror.NewCrossEntitySource(derived.Attr.String(), src.String())
			}
			if _, known := declared[src]; !known {
				return nil, apperror.NewInvalidDefinition(derived.Attr.String(),
					fmt.Sprintf("unknown source attribute %s", src))
			}
			g.direct[src] = append(g.direct[src], derived.Attr)
			g.sources[derived.Attr] = append(g.sources[derived.Attr], src)
			indegree[i]++
		}
	}

	// Kahn's algorithm, always taking the ready attribute declared first.
	ready := make([]int, 0, len(defs))
	for i := range defs {
		if indegree[i] == 0 {
			ready = append(ready, i)
		}
	}
	for len(ready) > 0 {
		next := slices.Min(ready)
		ready = slices.DeleteFunc(ready, func(i int) bool { return i == next })

		a := attrs[next]
		g.position[a] = len(g.order)
		g.order = append(g.order, a)
		for _, dep := range g.direct[a] {
			j := declared[dep]
			indegree[j]--
			if indegree[j] == 0 {
				ready = append(ready, j)
			}
		}
	}

	if len(g.order) < len(defs) {
		return nil, apperror.NewCyclicDependency(entityType, g.findCycle(attrs, declared))
	}

	for _, a := range g.order {
		if len(g.direct[a]) == 0 {
			continue
		}
		g.dependents[a] = g.closure(a)
	}
	for a := range g.direct {
		slices.SortFunc(g.direct[a], func(x, y Attribute) int { return g.position[x] - g.position[y] })
	}

	return g, nil
}

// findCycle walks backwards through unsorted attributes. Every attribute left
// over by Kahn's algorithm has an unsorted source, so the walk must revisit an
// attribute; the revisited segment is the cycle, returned in edge direction
// as a closed path.
func (g *Graph) findCycle(attrs []Attribute, declared map[Attribute]int) []string {
	var start Attribute
	for _, a := range attrs {
		if _, sorted := g.position[a]; !sorted {
			start = a
			break
		}
	}

	seenAt := make(map[Attribute]int)
	var walk []Attribute
	cur := start
	for {
		if idx, seen := seenAt[cur]; seen {
			walk = walk[idx:]
			break
		}
		seenAt[cur] = len(walk)
		walk = append(walk, cur)

		var next Attribute
		best := -1
		for _, src := range g.sources[cur] {
			if _, sorted := g.position[src]; sorted {
				continue
			}
			if best < 0 || declared[src] < best {
				best, next = declared[src], src
			}
		}
		cur = next
	}

	cycle := make([]string, 0, len(walk)+1)
	for i := len(walk) - 1; i >= 0; i-- {
		cycle = append(cycle, walk[i].Name)
	}
	return append(cycle, cycle[0])
}

func (g *Graph) closure(a Attribute) []Attribute {
	seen := make(map[Attribute]bool)
	stack := append([]Attribute(nil), g.direct[a]...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[n] {
			continue
		}
		seen[n] = true
		stack = append(stack, g.direct[n]...)
	}
	out := make([]Attribute, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	slices.SortFunc(out, func(x, y Attribute) int { return g.position[x] - g.position[y] })
	return out
}

// EntityType returns the name of the entity type the graph belongs to.
func (g *Graph) EntityType() string { return g.entityType }

// Dependents returns every attribute that must be recomputed when a changes,
// in evaluation order. The slice is shared and must not be modified.
func (g *Graph) Dependents(a Attribute) []Attribute {
	return g.dependents[a]
}

// DirectDependents returns the derived attributes that list a as a source.
func (g *Graph) DirectDependents(a Attribute) []Attribute {
	return slices.Clone(g.direct[a])
}

// Sources returns the direct sources of a derived attribute.
func (g *Graph) Sources(a Attribute) []Attribute {
	return slices.Clone(g.sources[a])
}

// Order returns every attribute of the entity type in evaluation order.
func (g *Graph) Order() []Attribute {
	return slices.Clone(g.order)
}

// Position returns the index of a in the evaluation order, -1 if unknown.
func (g *Graph) Position(a Attribute) int {
	if p, ok := g.position[a]; ok {
		return p
	}
	return -1
}
