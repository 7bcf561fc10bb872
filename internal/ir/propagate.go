package ir

import (
	"github.com/dusk-indust/dfir/internal/symbolic"
)

// PropagateMemlets recomputes the memlets on the outer side of every map
// scope from the memlets inside it, innermost scopes first, recursing into
// nested graphs before their parents. Outer subsets are widened over the
// map's index ranges assuming affine, monotonic index expressions; volumes
// are recomputed from the widened subsets.
func PropagateMemlets(g *Graph) {
	for _, st := range g.States() {
		for _, n := range st.Nodes() {
			if ng, ok := n.(*NestedGraph); ok {
				PropagateMemlets(ng.Graph)
			}
		}
		PropagateMemletsState(st)
	}
}

// PropagateMemletsState propagates through the map scopes of one state.
func PropagateMemletsState(st *State) {
	sd := st.ScopeDict()
	for _, entry := range entriesInnermostFirst(st, sd) {
		me, ok := entry.(*MapEntry)
		if !ok {
			continue
		}
		exit, _ := st.ExitNode(me).(*MapExit)
		propagateEntry(st, me)
		if exit != nil {
			propagateExit(st, me, exit)
		}
	}
}

// entriesInnermostFirst orders scope entries by nesting depth, deepest
// first, so each propagation step sees already-propagated inner edges.
func entriesInnermostFirst(st *State, sd map[Node]EntryNode) []EntryNode {
	depth := func(n Node) int {
		d := 0
		for cur := sd[n]; cur != nil; cur = sd[cur] {
			d++
		}
		return d
	}
	var entries []EntryNode
	for _, n := range st.Nodes() {
		if e, ok := n.(EntryNode); ok {
			entries = append(entries, e)
		}
	}
	for i := 1; i < len(entries); i++ {
		for j := i; j > 0 && depth(entries[j]) > depth(entries[j-1]); j-- {
			entries[j], entries[j-1] = entries[j-1], entries[j]
		}
	}
	return entries
}

func propagateEntry(st *State, me *MapEntry) {
	for conn := range me.InConnectors() {
		if !hasPrefix(conn, "IN_") {
			continue
		}
		base := conn[3:]
		var inner []*Memlet
		for _, e := range st.OutEdges(me) {
			if e.SrcConn == "OUT_"+base && !e.Data.IsEmpty() {
				inner = append(inner, e.Data)
			}
		}
		outer := st.inEdgeByConnector(me, conn)
		if outer == nil || outer.Data.IsEmpty() {
			continue
		}
		applyPropagated(outer.Data, inner, me.Map)
	}
}

func propagateExit(st *State, me *MapEntry, mx *MapExit) {
	for conn := range mx.OutConnectors() {
		if !hasPrefix(conn, "OUT_") {
			continue
		}
		base := conn[4:]
		var inner []*Memlet
		for _, e := range st.InEdges(mx) {
			if e.DstConn == "IN_"+base && !e.Data.IsEmpty() {
				inner = append(inner, e.Data)
			}
		}
		outer := st.outEdgeByConnector(mx, conn)
		if outer == nil || outer.Data.IsEmpty() {
			continue
		}
		applyPropagated(outer.Data, inner, me.Map)
	}
}

// applyPropagated widens the union of the inner memlets over the map's
// index ranges and writes subset and volume onto the outer memlet.
func applyPropagated(outer *Memlet, inner []*Memlet, m *MapScope) {
	if len(inner) == 0 {
		return
	}
	widened := widenSubset(inner[0].Subset, m)
	for _, im := range inner[1:] {
		widened = unionSubset(widened, widenSubset(im.Subset, m))
	}
	dynamic := false
	for _, im := range inner {
		if im.Dynamic {
			dynamic = true
		}
	}
	outer.Subset = widened
	outer.Dynamic = dynamic
	if widened != nil {
		outer.Volume = widened.NumElements()
	}
}

// widenSubset substitutes each map parameter with its range extremes:
// starts take the range start, ends take the last index. For affine,
// monotonically increasing index expressions this yields the exact image.
func widenSubset(s *Subset, m *MapScope) *Subset {
	if s == nil || m.Ranges == nil {
		return s
	}
	lo := map[string]symbolic.Expr{}
	hi := map[string]symbolic.Expr{}
	for i, p := range m.Params {
		if i >= len(m.Ranges.Dims) {
			break
		}
		r := m.Ranges.Dims[i]
		lo[p] = r.Start
		hi[p] = symbolic.Simplify(&symbolic.Binary{Op: "-", L: r.End, R: symbolic.NewInt(1)})
	}
	out := s.Clone()
	for i := range out.Dims {
		out.Dims[i].Start = symbolic.Simplify(symbolic.Subs(out.Dims[i].Start, lo))
		out.Dims[i].End = symbolic.Simplify(symbolic.Subs(out.Dims[i].End, hi))
	}
	return out
}

// unionSubset returns a bounding subset of a and b. Where bounds cannot be
// compared symbolically, the wider-looking candidate is kept by taking the
// structural minimum of starts and maximum of ends via Min/Max calls.
func unionSubset(a, b *Subset) *Subset {
	if a == nil {
		return b
	}
	if b == nil || len(a.Dims) != len(b.Dims) {
		return a
	}
	out := a.Clone()
	for i := range out.Dims {
		out.Dims[i].Start = boundExpr("Min", a.Dims[i].Start, b.Dims[i].Start)
		out.Dims[i].End = boundExpr("Max", a.Dims[i].End, b.Dims[i].End)
	}
	return out
}

func boundExpr(fn string, x, y symbolic.Expr) symbolic.Expr {
	if symbolic.Equal(x, y) {
		return x
	}
	if cmp, ok := compareAffine(x, y); ok {
		if (fn == "Min") == (cmp < 0) {
			return x
		}
		return y
	}
	return &symbolic.Call{Fn: fn, Args: []symbolic.Expr{x, y}}
}

// compareAffine orders two expressions of the form base + c when they share
// the same base (or are both plain integers).
func compareAffine(x, y symbolic.Expr) (int, bool) {
	bx, cx := splitOffset(x)
	by, cy := splitOffset(y)
	if bx != nil || by != nil {
		if bx == nil || by == nil || bx.String() != by.String() {
			return 0, false
		}
	}
	switch {
	case cx < cy:
		return -1, true
	case cx > cy:
		return 1, true
	}
	return 0, true
}

// splitOffset decomposes e into a symbolic base plus an integer offset. A
// plain integer has a nil base.
func splitOffset(e symbolic.Expr) (symbolic.Expr, int64) {
	if v, ok := symbolic.AsInt(e); ok {
		return nil, v
	}
	if b, ok := e.(*symbolic.Binary); ok {
		if v, ok := symbolic.AsInt(b.R); ok {
			switch b.Op {
			case "+":
				return b.L, v
			case "-":
				return b.L, -v
			}
		}
	}
	return e, 0
}
