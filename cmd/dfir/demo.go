package main

import (
	"github.com/dusk-indust/dfir/internal/ir"
	"github.com/dusk-indust/dfir/internal/symbolic"
)

// buildSpmvGraph constructs a sparse matrix-vector product in CSR form: a
// symbol state whose outgoing edge gathers the row extent from the row
// pointer array into interstate symbols, and a compute state holding a
// nested graph that accumulates one row's product. This is exactly the
// shape the constant-symbol-to-map pass flattens.
func buildSpmvGraph() (*ir.Graph, error) {
	g := ir.NewGraph("spmv")
	for _, sym := range []string{"M", "N", "nnz"} {
		if err := g.AddSymbol(sym, ir.TypeInt64); err != nil {
			return nil, err
		}
	}
	shape := func(src string) []symbolic.Expr { return []symbolic.Expr{symbolic.MustParse(src)} }
	if _, err := g.AddArray("A_row", shape("M + 1"), ir.TypeInt64); err != nil {
		return nil, err
	}
	if _, err := g.AddArray("A_col", shape("nnz"), ir.TypeInt64); err != nil {
		return nil, err
	}
	if _, err := g.AddArray("A_val", shape("nnz"), ir.TypeFloat64); err != nil {
		return nil, err
	}
	if _, err := g.AddArray("x", shape("N"), ir.TypeFloat64); err != nil {
		return nil, err
	}
	if _, err := g.AddArray("y", shape("M"), ir.TypeFloat64); err != nil {
		return nil, err
	}
	for _, sym := range []string{"__start", "__stop"} {
		if err := g.AddSymbol(sym, ir.TypeInt64); err != nil {
			return nil, err
		}
	}

	inner, err := buildRowProduct()
	if err != nil {
		return nil, err
	}

	symbolState := g.AddState("spmv_symbols")
	computeState := g.AddState("spmv_compute")
	edge := ir.NewInterstateEdge().
		AssignString("__start", "A_row[0]").
		AssignString("__stop", "A_row[1]")
	g.AddEdge(symbolState, computeState, edge)

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
	return g, nil
}

// buildRowProduct builds the nested one-row accumulation graph: a map over
// the nonzero range [start, stop) multiplying values against the gathered
// x entries, reduced into y with a sum.
func buildRowProduct() (*ir.Graph, error) {
	inner := ir.NewGraph("row_product")
	for _, sym := range []string{"start", "stop", "M", "N", "nnz"} {
		if err := inner.AddSymbol(sym, ir.TypeInt64); err != nil {
			return nil, err
		}
	}
	shape := func(src string) []symbolic.Expr { return []symbolic.Expr{symbolic.MustParse(src)} }
	if _, err := inner.AddArray("A_col", shape("nnz"), ir.TypeInt64); err != nil {
		return nil, err
	}
	if _, err := inner.AddArray("A_val", shape("nnz"), ir.TypeFloat64); err != nil {
		return nil, err
	}
	if _, err := inner.AddArray("x", shape("N"), ir.TypeFloat64); err != nil {
		return nil, err
	}
	if _, err := inner.AddArray("y", shape("M"), ir.TypeFloat64); err != nil {
		return nil, err
	}

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

	if err := st.AddMemletPath([]ir.Node{aval, me, mul}, "", "v", ir.MustMemlet("A_val[j]")); err != nil {
		return nil, err
	}
	if err := st.AddMemletPath([]ir.Node{acol, me, mul}, "", "c", ir.MustMemlet("A_col[j]")); err != nil {
		return nil, err
	}
	if err := st.AddMemletPath([]ir.Node{xin, me, mul}, "", "xv", ir.MustMemlet("x[0:N]")); err != nil {
		return nil, err
	}
	accum := ir.MustMemlet("y[0]")
	accum.WCR = ir.WCRSum
	if err := st.AddMemletPath([]ir.Node{mul, mx, yout}, "out", "", accum); err != nil {
		return nil, err
	}
	return inner, nil
}
