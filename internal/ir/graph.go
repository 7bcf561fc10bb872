package ir

import (
	"fmt"
	"sort"
	"strconv"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

// Graph is the top-level compilation unit: a table of named data
// descriptors, a table of declared symbols, and a root control-flow
// region. Descriptor and symbol names are unique within a graph and
// disjoint from each other.
type Graph struct {
	name       string
	arrays     map[string]*Data
	arrayOrder []string
	constants  map[string]any
	symbols    map[string]Typeclass
	root       *Region
	parent     *NestedGraph // weak back-reference; nil for top-level graphs
}

// NewGraph returns an empty graph with the given name.
func NewGraph(name string) *Graph {
	g := &Graph{
		name:      name,
		arrays:    map[string]*Data{},
		constants: map[string]any{},
		symbols:   map[string]Typeclass{},
	}
	g.root = newRegion(name, g)
	return g
}

// Name returns the graph's unique name.
func (g *Graph) Name() string { return g.name }

// Root returns the root control-flow region.
func (g *Graph) Root() *Region { return g.root }

// ParentNode returns the nested-graph node embedding this graph, or nil.
func (g *Graph) ParentNode() *NestedGraph { return g.parent }

// ParentGraph returns the graph embedding this one, or nil for top-level.
func (g *Graph) ParentGraph() *Graph {
	if g.parent == nil {
		return nil
	}
	if st := g.parent.parentState; st != nil {
		return st.Graph()
	}
	return nil
}

// --- Descriptor table ---

// nameTaken reports whether name collides with a descriptor or symbol.
func (g *Graph) nameTaken(name string) bool {
	if _, ok := g.arrays[name]; ok {
		return true
	}
	_, ok := g.symbols[name]
	return ok
}

// AddDatadesc registers a descriptor under the given name. With
// findNewName, a numeric suffix is appended until the name is free;
// otherwise a collision is an error. Returns the registered name.
func (g *Graph) AddDatadesc(name string, d *Data, findNewName bool) (string, error) {
	if g.nameTaken(name) {
		if !findNewName {
			return "", fmt.Errorf("ir: name %q already exists in graph %q", name, g.name)
		}
		base := name
		for i := 0; ; i++ {
			name = base + "_" + strconv.Itoa(i)
			if !g.nameTaken(name) {
				break
			}
		}
	}
	g.arrays[name] = d
	g.arrayOrder = append(g.arrayOrder, name)
	return name, nil
}

// AddArray registers a non-transient array descriptor.
func (g *Graph) AddArray(name string, shape []symbolic.Expr, dtype Typeclass) (*Data, error) {
	d := NewArray(shape, dtype)
	if _, err := g.AddDatadesc(name, d, false); err != nil {
		return nil, err
	}
	return d, nil
}

// AddTransient registers a transient array descriptor.
func (g *Graph) AddTransient(name string, shape []symbolic.Expr, dtype Typeclass) (*Data, error) {
	d := NewArray(shape, dtype)
	d.Transient = true
	if _, err := g.AddDatadesc(name, d, false); err != nil {
		return nil, err
	}
	return d, nil
}

// AddScalar registers a scalar descriptor.
func (g *Graph) AddScalar(name string, dtype Typeclass, transient bool) (*Data, error) {
	d := NewScalar(dtype)
	d.Transient = transient
	if _, err := g.AddDatadesc(name, d, false); err != nil {
		return nil, err
	}
	return d, nil
}

// RemoveDatadesc drops the descriptor with the given name.
func (g *Graph) RemoveDatadesc(name string) error {
	if _, ok := g.arrays[name]; !ok {
		return fmt.Errorf("ir: no descriptor %q in graph %q", name, g.name)
	}
	delete(g.arrays, name)
	delete(g.constants, name)
	for i, n := range g.arrayOrder {
		if n == name {
			g.arrayOrder = append(g.arrayOrder[:i], g.arrayOrder[i+1:]...)
			break
		}
	}
	return nil
}

// Descriptor returns the descriptor for name. Dotted member accesses
// resolve through their prefix. Nil if absent.
func (g *Graph) Descriptor(name string) *Data {
	if d, ok := g.arrays[name]; ok {
		return d
	}
	if prefix, _, ok := cutDot(name); ok {
		return g.arrays[prefix]
	}
	return nil
}

// ResolveDescriptor looks name up in this graph, then in ancestor graphs.
func (g *Graph) ResolveDescriptor(name string) *Data {
	for cur := g; cur != nil; cur = cur.ParentGraph() {
		if d := cur.Descriptor(name); d != nil {
			return d
		}
	}
	return nil
}

// DataNames returns descriptor names in registration order.
func (g *Graph) DataNames() []string {
	out := make([]string, len(g.arrayOrder))
	copy(out, g.arrayOrder)
	return out
}

// Descriptors returns the descriptor table (live; do not mutate keys).
func (g *Graph) Descriptors() map[string]*Data { return g.arrays }

// SetConstant records a compile-time constant value for a descriptor name.
func (g *Graph) SetConstant(name string, value any) { g.constants[name] = value }

// Constant returns the constant bound to name, if any.
func (g *Graph) Constant(name string) (any, bool) {
	v, ok := g.constants[name]
	return v, ok
}

// --- Symbol table ---

// AddSymbol declares a graph-global symbol of the given scalar type.
func (g *Graph) AddSymbol(name string, t Typeclass) error {
	if g.nameTaken(name) {
		return fmt.Errorf("ir: name %q already exists in graph %q", name, g.name)
	}
	g.symbols[name] = t
	return nil
}

// RemoveSymbol drops a symbol declaration.
func (g *Graph) RemoveSymbol(name string) error {
	if _, ok := g.symbols[name]; !ok {
		return fmt.Errorf("ir: no symbol %q in graph %q", name, g.name)
	}
	delete(g.symbols, name)
	return nil
}

// HasSymbol reports whether name is a declared symbol.
func (g *Graph) HasSymbol(name string) bool {
	_, ok := g.symbols[name]
	return ok
}

// Symbols returns the symbol table (live; do not mutate keys).
func (g *Graph) Symbols() map[string]Typeclass { return g.symbols }

// --- Traversal ---

// States returns every dataflow state in the graph, including states inside
// nested control-flow regions, but not inside nested graphs.
func (g *Graph) States() []*State {
	var out []*State
	for _, b := range g.root.AllBlocks() {
		if st, ok := b.(*State); ok {
			out = append(out, st)
		}
	}
	return out
}

// AllBlocks returns every control-flow block. With recursive set, nested
// graphs are entered as well.
func (g *Graph) AllBlocks(recursive bool) []Block {
	out := g.root.AllBlocks()
	if !recursive {
		return out
	}
	for _, st := range g.States() {
		for _, n := range st.nodes {
			if ng, ok := n.(*NestedGraph); ok {
				out = append(out, ng.Graph.AllBlocks(true)...)
			}
		}
	}
	return out
}

// AllRegions returns every control-flow region in the graph, not crossing
// nested-graph boundaries.
func (g *Graph) AllRegions() []*Region { return g.root.AllRegions() }

// AllInterstateEdges returns every control edge of every region.
func (g *Graph) AllInterstateEdges() []*InterstateEdge {
	var out []*InterstateEdge
	for _, r := range g.AllRegions() {
		out = append(out, r.Edges()...)
	}
	return out
}

// NodeAndState pairs a dataflow node with its owning state.
type NodeAndState struct {
	Node  Node
	State *State
}

// AllNodesRecursive returns every dataflow node in this graph and, through
// nested-graph nodes, all embedded graphs.
func (g *Graph) AllNodesRecursive() []NodeAndState {
	var out []NodeAndState
	for _, st := range g.States() {
		for _, n := range st.nodes {
			out = append(out, NodeAndState{Node: n, State: st})
			if ng, ok := n.(*NestedGraph); ok {
				out = append(out, ng.Graph.AllNodesRecursive()...)
			}
		}
	}
	return out
}

// StartBlock returns the root region's start block.
func (g *Graph) StartBlock() Block { return g.root.StartBlock() }

// SinkBlocks returns the root region's terminal blocks.
func (g *Graph) SinkBlocks() []Block { return g.root.SinkBlocks() }

// AddState appends a state to the root region.
func (g *Graph) AddState(label string) *State { return g.root.AddState(label) }

// AddEdge connects two root-region blocks.
func (g *Graph) AddEdge(src, dst Block, e *InterstateEdge) *InterstateEdge {
	return g.root.AddEdge(src, dst, e)
}

// --- Symbol liveness ---

// AssignedSymbols returns every symbol written by an interstate assignment
// anywhere in the graph.
func (g *Graph) AssignedSymbols() map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range g.AllInterstateEdges() {
		for _, a := range e.Assignments {
			out[a.Symbol] = struct{}{}
		}
	}
	return out
}

// FreeSymbols returns the symbol names the graph reads but does not define:
// used in states, control edges, block metadata, and descriptor shapes,
// minus interstate-assigned symbols and descriptor names.
func (g *Graph) FreeSymbols() map[string]struct{} {
	used := map[string]struct{}{}
	for _, st := range g.States() {
		for name := range st.FreeSymbols() {
			used[name] = struct{}{}
		}
	}
	for _, e := range g.AllInterstateEdges() {
		for name := range e.FreeSymbols() {
			used[name] = struct{}{}
		}
	}
	for _, b := range g.AllBlocks(false) {
		if ma, ok := b.(metaAccessor); ok {
			for name := range ma.MetaFreeSymbols() {
				used[name] = struct{}{}
			}
		}
	}
	for _, d := range g.arrays {
		for name := range d.FreeSymbols() {
			used[name] = struct{}{}
		}
	}
	for name := range g.AssignedSymbols() {
		delete(used, name)
	}
	for name := range g.arrays {
		delete(used, name)
	}
	return used
}

// SymbolReferenced reports whether name occurs anywhere: states, control
// edges, block metadata, or descriptor shapes.
func (g *Graph) SymbolReferenced(name string) bool {
	for _, st := range g.States() {
		if _, ok := st.FreeSymbols()[name]; ok {
			return true
		}
	}
	for _, e := range g.AllInterstateEdges() {
		if _, ok := e.FreeSymbols()[name]; ok {
			return true
		}
		if _, ok := e.AssignmentValue(name); ok {
			return true
		}
	}
	for _, b := range g.AllBlocks(false) {
		if ma, ok := b.(metaAccessor); ok {
			if _, ok := ma.MetaFreeSymbols()[name]; ok {
				return true
			}
		}
	}
	for _, d := range g.arrays {
		if _, ok := d.FreeSymbols()[name]; ok {
			return true
		}
	}
	return false
}

// Arglist returns the graph's public parameter list: non-transient
// descriptor names sorted, followed by free symbol names sorted.
func (g *Graph) Arglist() []string {
	var data []string
	for name, d := range g.arrays {
		if !d.Transient {
			data = append(data, name)
		}
	}
	sort.Strings(data)

	free := g.FreeSymbols()
	var syms []string
	for name := range g.symbols {
		if _, ok := free[name]; ok {
			syms = append(syms, name)
		}
	}
	sort.Strings(syms)
	return append(data, syms...)
}

func cutDot(s string) (prefix, suffix string, found bool) {
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			return s[:i], s[i+1:], true
		}
	}
	return s, "", false
}
