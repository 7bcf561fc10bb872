package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

func TestPropagateMemletsWidensMapRange(t *testing.T) {
	g, st, me, mx, _ := buildMappedState(t)

	// Deliberately stale outer memlets.
	outerIn := st.inEdgeByConnector(me, "IN_A")
	require.NotNil(t, outerIn)
	outerIn.Data.Subset = NewIndexSubset(symbolic.NewInt(0))
	outerOut := st.outEdgeByConnector(mx, "OUT_B")
	require.NotNil(t, outerOut)
	outerOut.Data.Subset = NewIndexSubset(symbolic.NewInt(0))

	PropagateMemlets(g)

	// A[i] over i in [0, N) widens to A[0:N] on both sides of the scope.
	want, err := SubsetFromString("0:N")
	require.NoError(t, err)
	assert.True(t, outerIn.Data.Subset.Equals(want), "got %s", outerIn.Data.Subset)
	assert.True(t, outerOut.Data.Subset.Equals(want), "got %s", outerOut.Data.Subset)
	assert.True(t, symbolic.Equal(outerIn.Data.Volume, symbolic.NewSym("N")),
		"got volume %s", outerIn.Data.Volume)
}

func TestPropagateUnionsSiblingMemlets(t *testing.T) {
	g := NewGraph("union")
	require.NoError(t, g.AddSymbol("N", TypeInt64))
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewSym("N")}, TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("B", []symbolic.Expr{symbolic.NewSym("N")}, TypeFloat64)
	require.NoError(t, err)

	st := g.AddState("body")
	ranges := &Subset{Dims: []RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewSym("N")}}}
	me, mx := st.AddMap("m", []string{"i"}, ranges, ScheduleDefault)
	tk := st.AddTasklet("t", []string{"v", "w"}, []string{"out"}, "out = v + w")
	a := st.AddAccess("A")
	b := st.AddAccess("B")

	// Two reads through the same scope connector: A[i] and A[i + 1].
	require.NoError(t, st.AddMemletPath([]Node{a, me, tk}, "", "v", MustMemlet("A[i]")))
	st.AddEdge(me, "OUT_A", tk, "w", MustMemlet("A[i + 1]"))
	tk.AddInConnector("w", "")
	require.NoError(t, st.AddMemletPath([]Node{tk, mx, b}, "out", "", MustMemlet("B[i]")))

	PropagateMemlets(g)

	outer := st.inEdgeByConnector(me, "IN_A")
	require.NotNil(t, outer)
	// [0, N) union [1, N + 1) -> [0, N + 1).
	want, err := SubsetFromString("0:N + 1")
	require.NoError(t, err)
	assert.True(t, outer.Data.Subset.Equals(want), "got %s", outer.Data.Subset)
}

func TestPropagateDynamicFlag(t *testing.T) {
	_, st, me, _, tk := buildMappedState(t)

	inner := st.InEdges(tk)[0]
	inner.Data.Dynamic = true

	PropagateMemletsState(st)

	outer := st.inEdgeByConnector(me, "IN_A")
	require.NotNil(t, outer)
	assert.True(t, outer.Data.Dynamic)
}

func TestPropagateNestedScopesInnermostFirst(t *testing.T) {
	g := NewGraph("nested")
	require.NoError(t, g.AddSymbol("N", TypeInt64))
	require.NoError(t, g.AddSymbol("M", TypeInt64))
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewSym("N"), symbolic.NewSym("M")}, TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("B", []symbolic.Expr{symbolic.NewSym("N"), symbolic.NewSym("M")}, TypeFloat64)
	require.NoError(t, err)

	st := g.AddState("body")
	outerRange := &Subset{Dims: []RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewSym("N")}}}
	innerRange := &Subset{Dims: []RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewSym("M")}}}
	ome, omx := st.AddMap("rows", []string{"i"}, outerRange, ScheduleDefault)
	ime, imx := st.AddMap("cols", []string{"j"}, innerRange, ScheduleDefault)
	tk := st.AddTasklet("t", []string{"v"}, []string{"out"}, "out = v")
	a := st.AddAccess("A")
	b := st.AddAccess("B")

	require.NoError(t, st.AddMemletPath([]Node{a, ome, ime, tk}, "", "v", MustMemlet("A[i, j]")))
	require.NoError(t, st.AddMemletPath([]Node{tk, imx, omx, b}, "out", "", MustMemlet("B[i, j]")))

	PropagateMemlets(g)

	root := st.inEdgeByConnector(ome, "IN_A")
	require.NotNil(t, root)
	want, err := SubsetFromString("0:N, 0:M")
	require.NoError(t, err)
	assert.True(t, root.Data.Subset.Equals(want), "got %s", root.Data.Subset)
}
