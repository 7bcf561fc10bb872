package xform

import (
	"fmt"
	"strconv"

	"github.com/dusk-indust/dfir/internal/ir"
	"github.com/dusk-indust/dfir/internal/symbolic"
)

// ConstSymbolToMap folds constant interstate symbols into a parallel map.
// It matches a "symbol" state chained to a sink "compute" state where the
// connecting control edge assigns symbols from single data accesses (a
// constant per-iteration gather). Each qualifying symbol becomes a map
// index parameter fed through a dynamic-range input connector, and the
// compute state's dataflow is rerouted through the new map scope.
type ConstSymbolToMap struct {
	symbolState  *PatternNode
	computeState *PatternNode
}

// NewConstSymbolToMap returns the transformation with its pattern nodes.
func NewConstSymbolToMap() *ConstSymbolToMap {
	return &ConstSymbolToMap{
		symbolState:  AnyState("symbol_state"),
		computeState: AnyState("compute_state"),
	}
}

type qualifiedSymbol struct {
	name   string
	memlet *ir.Memlet
}

type constSymbolScratch struct {
	edge *ir.InterstateEdge
	syms []qualifiedSymbol
}

func (t *ConstSymbolToMap) Expressions() []*PatternGraph {
	return []*PatternGraph{
		NewPatternGraph(
			[]*PatternNode{t.symbolState, t.computeState},
			PatternEdge{Src: t.symbolState, Dst: t.computeState},
		),
	}
}

func (t *ConstSymbolToMap) AnnotatesMemlets() bool { return false }

// CanBeApplied requires the compute state to be a control-flow sink, so the
// folded symbols cannot be read anywhere downstream, and keeps only the
// assignments whose value is a subscripted access into a known array.
func (t *ConstSymbolToMap) CanBeApplied(m *Match, g *ir.Graph, permissive bool) bool {
	symbolState := m.State(t.symbolState)
	computeState := m.State(t.computeState)
	region := computeState.ParentRegion()
	if len(region.OutEdges(computeState)) != 0 {
		return false
	}

	var edge *ir.InterstateEdge
	for _, e := range region.OutEdges(symbolState) {
		if e.Dst == computeState {
			edge = e
			break
		}
	}
	if edge == nil {
		return false
	}

	free := computeState.FreeSymbols()
	scratch := &constSymbolScratch{edge: edge}
	for _, a := range edge.Assignments {
		if _, used := free[a.Symbol]; !used {
			continue
		}
		mem, err := ir.NewMemlet(a.Value.String())
		if err != nil {
			continue // not a plain data access
		}
		if mem.Subset == nil {
			continue
		}
		if _, known := g.Descriptors()[mem.Data]; !known {
			continue
		}
		scratch.syms = append(scratch.syms, qualifiedSymbol{name: a.Symbol, memlet: mem})
	}
	if len(scratch.syms) == 0 {
		return false
	}
	m.Scratch = scratch
	return true
}

func (t *ConstSymbolToMap) Apply(m *Match, g *ir.Graph) error {
	computeState := m.State(t.computeState)
	scratch := m.Scratch.(*constSymbolScratch)

	entry, exit := computeState.AddMap(computeState.Label()+"_map", nil, &ir.Subset{}, ir.ScheduleDefault)
	scope := entry.Map

	// One input connector per folded symbol, disambiguated by a per-array
	// occurrence counter; its value feeds the parameter's dynamic range.
	idTable := map[string]int{}
	for _, qs := range scratch.syms {
		for _, p := range scope.Params {
			if p == qs.name {
				return fmt.Errorf("xform: internal error: symbol %q already a parameter of map %q",
					qs.name, scope.LabelName)
			}
		}
		idTable[qs.memlet.Data]++
		conn := qs.memlet.Data + "_" + strconv.Itoa(idTable[qs.memlet.Data])
		entry.AddInConnector(conn, g.Descriptors()[qs.memlet.Data].Dtype)

		var access *ir.AccessNode
		for _, n := range computeState.SourceNodes() {
			if a, ok := n.(*ir.AccessNode); ok && a.Data == qs.memlet.Data {
				access = a
				break
			}
		}
		if access == nil {
			access = computeState.AddAccess(qs.memlet.Data)
		}
		computeState.AddEdge(access, "", entry, conn, qs.memlet)

		scope.Params = append(scope.Params, qs.name)
		connSym := symbolic.NewSym(conn)
		scope.Ranges.Dims = append(scope.Ranges.Dims, ir.RangeDim{
			Start: connSym,
			End:   &symbolic.Binary{Op: "+", L: connSym, R: symbolic.NewInt(1)},
		})
	}

	// Reroute the remaining dataflow through the new scope: source-side
	// edges enter through the map entry, sink-side edges leave through the
	// map exit. The feeder access nodes added above stay outside.
	for _, n := range computeState.SourceNodes() {
		if a, ok := n.(*ir.AccessNode); ok {
			if _, feeder := idTable[a.Data]; feeder {
				continue
			}
		}
		if n == entry || n == exit {
			continue
		}
		for _, e := range computeState.Edges() {
			if e.Src == n && e.Dst != entry {
				rerouteThroughMap(computeState, e, entry)
			}
		}
	}
	for _, n := range computeState.SinkNodes() {
		if a, ok := n.(*ir.AccessNode); ok {
			if _, feeder := idTable[a.Data]; feeder {
				continue
			}
		}
		if n == entry || n == exit {
			continue
		}
		for _, e := range computeState.Edges() {
			if e.Dst == n && e.Src != exit {
				rerouteThroughMap(computeState, e, exit)
			}
		}
	}

	// The folded assignments are now expressed by the map; drop them, and
	// drop each symbol's declaration once nothing references it.
	for _, qs := range scratch.syms {
		scratch.edge.RemoveAssignment(qs.name)
	}
	for _, qs := range scratch.syms {
		if g.HasSymbol(qs.name) && !g.SymbolReferenced(qs.name) {
			if err := g.RemoveSymbol(qs.name); err != nil {
				return err
			}
		}
	}
	return nil
}

// rerouteThroughMap replaces e with a memlet path passing through the given
// scope node.
func rerouteThroughMap(st *ir.State, e *ir.MultiEdge, via ir.Node) {
	st.RemoveEdge(e)
	_ = st.AddMemletPath([]ir.Node{e.Src, via, e.Dst}, e.SrcConn, e.DstConn, e.Data)
}
