// Package xform implements the pattern-match and rewrite framework and the
// transformation passes built on it: folding constant interstate symbols
// into parallel maps, whole-graph device offload, and graph simplification.
package xform

import (
	"github.com/dusk-indust/dfir/internal/ir"
)

// Match binds the placeholders of one pattern graph to concrete blocks.
// Scratch carries information a guard derives during CanBeApplied for reuse
// in Apply; it belongs to the match, never to the transformation value, so
// repeated or nested matching cannot observe another match's state.
type Match struct {
	Bindings map[*PatternNode]ir.Block
	Scratch  any
}

// Block returns the concrete block bound to the given placeholder.
func (m *Match) Block(p *PatternNode) ir.Block { return m.Bindings[p] }

// State returns the bound block as a dataflow state, or nil.
func (m *Match) State(p *PatternNode) *ir.State {
	st, _ := m.Bindings[p].(*ir.State)
	return st
}

// Transformation is a graph rewrite following the match, guard, apply
// protocol. Implementations must be stateless: everything a match learns
// goes into the Match value.
type Transformation interface {
	// Expressions returns the pattern graphs to try, in priority order.
	Expressions() []*PatternGraph

	// CanBeApplied is a side-effect-free semantic guard over a structural
	// match. permissive relaxes optional safety checks. Derived information
	// may be cached on the match for Apply.
	CanBeApplied(m *Match, g *ir.Graph, permissive bool) bool

	// AnnotatesMemlets reports whether Apply leaves per-edge volume and
	// subset annotations consistent on its own. When false, the driver
	// re-runs memlet propagation after each application.
	AnnotatesMemlets() bool

	// Apply mutates the graph to realize the rewrite. Every graph invariant
	// must hold again by the time it returns.
	Apply(m *Match, g *ir.Graph) error
}
