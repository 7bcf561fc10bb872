package xform

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dfir/internal/ir"
	"github.com/dusk-indust/dfir/internal/symbolic"
)

// buildSpmv constructs a CSR sparse matrix-vector product: a symbol state
// whose outgoing edge gathers a row extent into interstate symbols, and a
// sink compute state holding a nested graph that accumulates one row.
func buildSpmv(t *testing.T) *ir.Graph {
	t.Helper()
	g := ir.NewGraph("spmv")
	for _, sym := range []string{"M", "N", "nnz", "__start", "__stop"} {
		require.NoError(t, g.AddSymbol(sym, ir.TypeInt64))
	}
	shape := func(src string) []symbolic.Expr { return []symbolic.Expr{symbolic.MustParse(src)} }
	_, err := g.AddArray("A_row", shape("M + 1"), ir.TypeInt64)
	require.NoError(t, err)
	_, err = g.AddArray("A_col", shape("nnz"), ir.TypeInt64)
	require.NoError(t, err)
	_, err = g.AddArray("A_val", shape("nnz"), ir.TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("x", shape("N"), ir.TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("y", shape("M"), ir.TypeFloat64)
	require.NoError(t, err)

	inner := buildRowProduct(t)

	symbolState := g.AddState("spmv_symbols")
	computeState := g.AddState("spmv_compute")
	g.AddEdge(symbolState, computeState, ir.NewInterstateEdge().
		AssignString("__start", "A_row[0]").
		AssignString("__stop", "A_row[1]"))

	aval := computeState.AddAccess("A_val")
	acol := computeState.AddAccess("A_col")
	xin := computeState.AddAccess("x")
	yout := computeState.AddAccess("y")
	nested := computeState.AddNestedGraph(inner,
		[]string{"A_val", "A_col", "x"}, []string{"y"},
		map[string]symbolic.Expr{
			"start": symbolic.NewSym("__start"),
			"stop":  symbolic.NewSym("__stop"),
			"nnz":   symbolic.NewSym("nnz"),
			"N":     symbolic.NewSym("N"),
			"M":     symbolic.NewSym("M"),
		})
	computeState.AddEdge(aval, "", nested, "A_val", ir.MemletFromData("A_val", g.Descriptors()["A_val"]))
	computeState.AddEdge(acol, "", nested, "A_col", ir.MemletFromData("A_col", g.Descriptors()["A_col"]))
	computeState.AddEdge(xin, "", nested, "x", ir.MemletFromData("x", g.Descriptors()["x"]))
	computeState.AddEdge(nested, "y", yout, "", ir.MemletFromData("y", g.Descriptors()["y"]))
	return g
}

func buildRowProduct(t *testing.T) *ir.Graph {
	t.Helper()
	inner := ir.NewGraph("row_product")
	for _, sym := range []string{"start", "stop", "M", "N", "nnz"} {
		require.NoError(t, inner.AddSymbol(sym, ir.TypeInt64))
	}
	shape := func(src string) []symbolic.Expr { return []symbolic.Expr{symbolic.MustParse(src)} }
	_, err := inner.AddArray("A_col", shape("nnz"), ir.TypeInt64)
	require.NoError(t, err)
	_, err = inner.AddArray("A_val", shape("nnz"), ir.TypeFloat64)
	require.NoError(t, err)
	_, err = inner.AddArray("x", shape("N"), ir.TypeFloat64)
	require.NoError(t, err)
	_, err = inner.AddArray("y", shape("M"), ir.TypeFloat64)
	require.NoError(t, err)

	st := inner.AddState("row_product_body")
	ranges := &ir.Subset{Dims: []ir.RangeDim{{
		Start: symbolic.NewSym("start"),
		End:   symbolic.NewSym("stop"),
	}}}
	me, mx := st.AddMap("row_map", []string{"j"}, ranges, ir.ScheduleDefault)
	mul := st.AddTasklet("mul", []string{"v", "c", "xv"}, []string{"out"}, "out = v * xv[c]")

	aval := st.AddAccess("A_val")
	acol := st.AddAccess("A_col")
	xin := st.AddAccess("x")
	yout := st.AddAccess("y")

	require.NoError(t, st.AddMemletPath([]ir.Node{aval, me, mul}, "", "v", ir.MustMemlet("A_val[j]")))
	require.NoError(t, st.AddMemletPath([]ir.Node{acol, me, mul}, "", "c", ir.MustMemlet("A_col[j]")))
	require.NoError(t, st.AddMemletPath([]ir.Node{xin, me, mul}, "", "xv", ir.MustMemlet("x[0:N]")))
	accum := ir.MustMemlet("y[0]")
	accum.WCR = ir.WCRSum
	require.NoError(t, st.AddMemletPath([]ir.Node{mul, mx, yout}, "out", "", accum))
	return inner
}

// mapEntries returns the map entry nodes of a state in insertion order.
func mapEntries(st *ir.State) []*ir.MapEntry {
	var out []*ir.MapEntry
	for _, n := range st.Nodes() {
		if me, ok := n.(*ir.MapEntry); ok {
			out = append(out, me)
		}
	}
	return out
}

// nestedNodes returns the nested-graph nodes of a state.
func nestedNodes(st *ir.State) []*ir.NestedGraph {
	var out []*ir.NestedGraph
	for _, n := range st.Nodes() {
		if ng, ok := n.(*ir.NestedGraph); ok {
			out = append(out, ng)
		}
	}
	return out
}
