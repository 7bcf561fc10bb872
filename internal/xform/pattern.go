package xform

import (
	"github.com/dusk-indust/dfir/internal/ir"
)

// PatternNode is a typed placeholder in a pattern graph. Accepts decides
// whether a concrete block may bind to it.
type PatternNode struct {
	Name    string
	Accepts func(ir.Block) bool
}

// AnyState is a placeholder for a dataflow state.
func AnyState(name string) *PatternNode {
	return &PatternNode{Name: name, Accepts: func(b ir.Block) bool {
		_, ok := b.(*ir.State)
		return ok
	}}
}

// PatternEdge requires a control edge between two bound placeholders.
type PatternEdge struct {
	Src, Dst *PatternNode
}

// PatternGraph is a small graph of placeholders matched against the blocks
// of one control-flow region. An empty pattern matches the whole graph
// exactly once, for transformations that operate globally.
type PatternGraph struct {
	Nodes []*PatternNode
	Edges []PatternEdge
}

// NewPatternGraph builds a pattern from placeholders and edges.
func NewPatternGraph(nodes []*PatternNode, edges ...PatternEdge) *PatternGraph {
	return &PatternGraph{Nodes: nodes, Edges: edges}
}

// WholeGraph is the empty pattern.
func WholeGraph() *PatternGraph { return &PatternGraph{} }

// FindMatches enumerates every binding of the pattern's placeholders to
// distinct blocks of the graph, drawn from any control-flow region, such
// that every pattern edge corresponds to a control edge between the bound
// blocks. Matching is deterministic: regions and blocks are scanned in
// insertion order.
func FindMatches(g *ir.Graph, pg *PatternGraph) []*Match {
	if len(pg.Nodes) == 0 {
		return []*Match{{Bindings: map[*PatternNode]ir.Block{}}}
	}
	var out []*Match
	for _, region := range g.AllRegions() {
		out = append(out, matchRegion(region, pg)...)
	}
	return out
}

func matchRegion(r *ir.Region, pg *PatternGraph) []*Match {
	blocks := r.Blocks()
	var out []*Match
	binding := map[*PatternNode]ir.Block{}
	used := map[ir.Block]struct{}{}

	var assign func(i int)
	assign = func(i int) {
		if i == len(pg.Nodes) {
			m := &Match{Bindings: make(map[*PatternNode]ir.Block, len(binding))}
			for k, v := range binding {
				m.Bindings[k] = v
			}
			out = append(out, m)
			return
		}
		p := pg.Nodes[i]
		for _, b := range blocks {
			if _, taken := used[b]; taken {
				continue
			}
			if p.Accepts != nil && !p.Accepts(b) {
				continue
			}
			binding[p] = b
			used[b] = struct{}{}
			if edgesSatisfied(r, pg, binding) {
				assign(i + 1)
			}
			delete(binding, p)
			delete(used, b)
		}
	}
	assign(0)
	return out
}

// edgesSatisfied checks every pattern edge whose endpoints are both bound.
func edgesSatisfied(r *ir.Region, pg *PatternGraph, binding map[*PatternNode]ir.Block) bool {
	for _, pe := range pg.Edges {
		src, sok := binding[pe.Src]
		dst, dok := binding[pe.Dst]
		if !sok || !dok {
			continue
		}
		found := false
		for _, e := range r.OutEdges(src) {
			if e.Dst == dst {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
