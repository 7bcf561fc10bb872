package xform

import (
	"github.com/dusk-indust/dfir/internal/ir"
	"github.com/dusk-indust/dfir/internal/symbolic"
)

// SimplifyGraph runs the whole-graph cleanup passes to a fixed point:
// inline trivial nested graphs, fuse away empty states, and drop
// unreferenced transients and symbols. Nested graphs are simplified first
// so inlining sees their final form.
func SimplifyGraph(g *ir.Graph) {
	for _, st := range g.States() {
		for _, n := range st.Nodes() {
			if ng, ok := n.(*ir.NestedGraph); ok {
				SimplifyGraph(ng.Graph)
			}
		}
	}
	for {
		changed := false
		if inlineNestedGraphs(g) {
			changed = true
		}
		if fuseEmptyStates(g) {
			changed = true
		}
		if removeDeadTransients(g) {
			changed = true
		}
		if removeDeadSymbols(g) {
			changed = true
		}
		if !changed {
			return
		}
	}
}

// fuseEmptyStates removes states with no nodes whose single outgoing
// control edge is unconditional and assignment-free, redirecting their
// incoming edges to the successor.
func fuseEmptyStates(g *ir.Graph) bool {
	changed := false
	for _, r := range g.AllRegions() {
		for _, b := range r.Blocks() {
			st, ok := b.(*ir.State)
			if !ok || len(st.Nodes()) != 0 {
				continue
			}
			out := r.OutEdges(st)
			if len(out) != 1 || out[0].Condition != nil || len(out[0].Assignments) != 0 {
				continue
			}
			succ := out[0].Dst
			for _, e := range r.InEdges(st) {
				e.Dst = succ
			}
			wasStart := r.StartBlock() == st
			r.RemoveBlock(st)
			if wasStart {
				_ = r.SetStartBlock(succ)
			}
			changed = true
		}
	}
	return changed
}

// removeDeadTransients drops transient descriptors no access node or
// memlet references anymore.
func removeDeadTransients(g *ir.Graph) bool {
	used := map[string]struct{}{}
	for _, st := range g.States() {
		for _, n := range st.DataNodes() {
			used[rootName(n.Data)] = struct{}{}
		}
		for _, e := range st.Edges() {
			if !e.Data.IsEmpty() {
				used[rootName(e.Data.Data)] = struct{}{}
			}
		}
		for _, n := range st.Nodes() {
			if ng, ok := n.(*ir.NestedGraph); ok {
				// Connector names address outer descriptors through memlets
				// already counted; the symbol mapping may also read data.
				for _, v := range ng.SymbolMapping {
					for name := range symbolic.FreeSymbols(v) {
						used[rootName(name)] = struct{}{}
					}
				}
			}
		}
	}
	for _, e := range g.AllInterstateEdges() {
		for name := range e.FreeSymbols() {
			used[rootName(name)] = struct{}{}
		}
	}
	for _, b := range g.AllBlocks(false) {
		for name := range ir.MetaFreeSymbolsOf(b) {
			used[rootName(name)] = struct{}{}
		}
	}

	changed := false
	for _, name := range g.DataNames() {
		d := g.Descriptors()[name]
		if !d.Transient {
			continue
		}
		if _, alive := used[name]; alive {
			continue
		}
		if err := g.RemoveDatadesc(name); err == nil {
			changed = true
		}
	}
	return changed
}

// removeDeadSymbols drops declared symbols that are neither read nor
// assigned anywhere.
func removeDeadSymbols(g *ir.Graph) bool {
	assigned := g.AssignedSymbols()
	changed := false
	for name := range g.Symbols() {
		if _, written := assigned[name]; written {
			continue
		}
		if g.SymbolReferenced(name) {
			continue
		}
		if err := g.RemoveSymbol(name); err == nil {
			changed = true
		}
	}
	return changed
}

func rootName(name string) string {
	for i := 0; i < len(name); i++ {
		if name[i] == '.' {
			return name[:i]
		}
	}
	return name
}

// inlineNestedGraphs splices trivial nested graphs (a single state, no
// control edges, no interstate-assigned symbols) into their parent state.
// Inner descriptor names are rewritten to the outer names their connectors
// bind to, the symbol mapping is substituted throughout, and the boundary
// access nodes are dissolved so the inner dataflow attaches directly to the
// outer edges, preserving scope containment.
func inlineNestedGraphs(g *ir.Graph) bool {
	changed := false
	for _, st := range g.States() {
		for _, n := range st.Nodes() {
			ng, ok := n.(*ir.NestedGraph)
			if !ok {
				continue
			}
			if inlineOne(g, st, ng) {
				changed = true
			}
		}
	}
	return changed
}

func inlineOne(g *ir.Graph, st *ir.State, ng *ir.NestedGraph) bool {
	inner := ng.Graph
	states := inner.States()
	if len(states) != 1 || len(inner.AllInterstateEdges()) != 0 {
		return false
	}
	body := states[0]

	// Map each connector to the outer array its edge carries.
	rename := map[string]string{}
	inEdgesByConn := map[string]*ir.MultiEdge{}
	outEdgesByConn := map[string]*ir.MultiEdge{}
	for _, e := range st.InEdges(ng) {
		if e.Data.IsEmpty() {
			return false
		}
		inEdgesByConn[e.DstConn] = e
		if e.DstConn != e.Data.Data {
			rename[e.DstConn] = e.Data.Data
		}
	}
	for _, e := range st.OutEdges(ng) {
		if e.Data.IsEmpty() {
			return false
		}
		outEdgesByConn[e.SrcConn] = e
		if e.SrcConn != e.Data.Data {
			rename[e.SrcConn] = e.Data.Data
		}
	}
	// Offset-free inlining only: every connector memlet must cover the
	// full outer array, so inner subsets remain valid outer subsets.
	for _, e := range st.InEdges(ng) {
		if !coversFullArray(g, e.Data) {
			return false
		}
	}
	for _, e := range st.OutEdges(ng) {
		if !coversFullArray(g, e.Data) {
			return false
		}
	}

	// Inner transients move to the outer graph under fresh names.
	for _, name := range inner.DataNames() {
		d := inner.Descriptors()[name]
		if !d.Transient {
			continue
		}
		if _, isConn := inEdgesByConn[name]; isConn {
			continue
		}
		if _, isConn := outEdgesByConn[name]; isConn {
			continue
		}
		newName, err := g.AddDatadesc(name, d, true)
		if err != nil {
			return false
		}
		if newName != name {
			rename[name] = newName
		}
	}

	if err := ir.ReplaceDatadescNames(inner, rename); err != nil {
		return false
	}

	// Bind inner symbols to their outer expressions.
	symRepl := map[string]string{}
	for sym, val := range ng.SymbolMapping {
		symRepl[sym] = val.String()
	}
	if err := ir.ReplaceInState(body, symRepl); err != nil {
		return false
	}
	if len(symRepl) > 0 {
		repl := make(map[string]symbolic.Expr, len(symRepl))
		for k, v := range symRepl {
			repl[k] = symbolic.ParseOrOpaque(v)
		}
		for _, name := range inner.DataNames() {
			d := inner.Descriptors()[name]
			for i := range d.Shape {
				d.Shape[i] = symbolic.Subs(d.Shape[i], repl)
			}
		}
	}

	// Dissolve boundary access nodes: inner edges leaving an input-side
	// access node re-source from the outer edge's producer; inner edges
	// entering an output-side access node re-target the outer consumer.
	consumed := map[ir.Node]struct{}{}
	renamedConn := func(conn string) string {
		if nn, ok := rename[conn]; ok {
			return nn
		}
		return conn
	}
	for conn, outerEdge := range inEdgesByConn {
		data := renamedConn(conn)
		for _, bn := range body.Nodes() {
			a, isAcc := bn.(*ir.AccessNode)
			if !isAcc || a.Data != data || body.InDegree(a) != 0 {
				continue
			}
			for _, ie := range body.OutEdges(a) {
				st.AddEdge(outerEdge.Src, outerEdge.SrcConn, ie.Dst, ie.DstConn, ie.Data)
			}
			consumed[a] = struct{}{}
		}
	}
	for conn, outerEdge := range outEdgesByConn {
		data := renamedConn(conn)
		for _, bn := range body.Nodes() {
			a, isAcc := bn.(*ir.AccessNode)
			if !isAcc || a.Data != data || body.OutDegree(a) != 0 {
				continue
			}
			for _, ie := range body.InEdges(a) {
				st.AddEdge(ie.Src, ie.SrcConn, outerEdge.Dst, outerEdge.DstConn, ie.Data)
			}
			consumed[a] = struct{}{}
		}
	}

	// Move the remaining inner dataflow into the parent state.
	for _, bn := range body.Nodes() {
		if _, gone := consumed[bn]; gone {
			continue
		}
		st.AddNode(bn)
	}
	for _, ie := range body.Edges() {
		if _, gone := consumed[ie.Src]; gone {
			continue
		}
		if _, gone := consumed[ie.Dst]; gone {
			continue
		}
		st.AddEdge(ie.Src, ie.SrcConn, ie.Dst, ie.DstConn, ie.Data)
	}

	st.RemoveNode(ng)
	return true
}

// coversFullArray reports whether m's subset spans the entire descriptor.
func coversFullArray(g *ir.Graph, m *ir.Memlet) bool {
	d := g.Descriptor(m.Data)
	if d == nil {
		return false
	}
	if m.Subset == nil {
		return true
	}
	return m.Subset.Equals(ir.FullSubset(d.Shape))
}
