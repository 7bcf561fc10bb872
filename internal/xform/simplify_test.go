package xform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dfir/internal/ir"
	"github.com/dusk-indust/dfir/internal/symbolic"
)

func TestFuseEmptyStates(t *testing.T) {
	g := ir.NewGraph("g")
	s0 := g.AddState("empty")
	s1 := g.AddState("work")
	g.AddEdge(s0, s1, nil)
	s1.AddTasklet("noop", nil, nil, "pass")

	SimplifyGraph(g)

	states := g.States()
	require.Len(t, states, 1)
	assert.Same(t, s1, states[0])
	assert.Same(t, ir.Block(s1), g.StartBlock())
}

func TestFuseEmptyStatesKeepsAssignments(t *testing.T) {
	g := ir.NewGraph("g")
	require.NoError(t, g.AddSymbol("k", ir.TypeInt64))
	s0 := g.AddState("assign")
	s1 := g.AddState("work")
	g.AddEdge(s0, s1, ir.NewInterstateEdge().AssignString("k", "1"))
	s1.AddTasklet("read", nil, []string{"o"}, "o = k")

	SimplifyGraph(g)

	// The empty state carries an assignment on its way out; fusing it
	// would lose the write.
	assert.Len(t, g.States(), 2)
	assert.True(t, g.HasSymbol("k"))
}

func TestRemoveDeadTransientsAndSymbols(t *testing.T) {
	g := ir.NewGraph("g")
	require.NoError(t, g.AddSymbol("N", ir.TypeInt64))
	require.NoError(t, g.AddSymbol("M", ir.TypeInt64))
	require.NoError(t, g.AddSymbol("Z", ir.TypeInt64))
	_, err := g.AddTransient("T", []symbolic.Expr{symbolic.NewSym("N")}, ir.TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("A", []symbolic.Expr{symbolic.NewSym("M")}, ir.TypeFloat64)
	require.NoError(t, err)

	SimplifyGraph(g)

	// T is never accessed, and with it gone nothing reads N; Z was never
	// referenced at all. The non-transient A pins itself and M.
	assert.Nil(t, g.Descriptors()["T"])
	assert.False(t, g.HasSymbol("N"))
	assert.False(t, g.HasSymbol("Z"))
	assert.NotNil(t, g.Descriptors()["A"])
	assert.True(t, g.HasSymbol("M"))
}

// buildLeafNested wraps a one-tasklet inner graph in a nested-graph node;
// the input connector memlet is configurable so coverage can be varied.
func buildLeafNested(t *testing.T, inMemlet string) (*ir.Graph, *ir.State) {
	t.Helper()
	shape := []symbolic.Expr{symbolic.NewSym("N")}

	inner := ir.NewGraph("leaf")
	require.NoError(t, inner.AddSymbol("N", ir.TypeInt64))
	_, err := inner.AddArray("A", shape, ir.TypeFloat64)
	require.NoError(t, err)
	_, err = inner.AddArray("R", shape, ir.TypeFloat64)
	require.NoError(t, err)
	body := inner.AddState("leaf_body")
	a := body.AddAccess("A")
	r := body.AddAccess("R")
	c := body.AddTasklet("bump", []string{"x"}, []string{"y"}, "y = x + 1")
	body.AddEdge(a, "", c, "x", ir.MustMemlet("A[0]"))
	body.AddEdge(c, "y", r, "", ir.MustMemlet("R[0]"))

	outer := ir.NewGraph("host")
	require.NoError(t, outer.AddSymbol("N", ir.TypeInt64))
	_, err = outer.AddArray("A", shape, ir.TypeFloat64)
	require.NoError(t, err)
	_, err = outer.AddArray("R", shape, ir.TypeFloat64)
	require.NoError(t, err)
	st := outer.AddState("host_body")
	accA := st.AddAccess("A")
	accR := st.AddAccess("R")
	ng := st.AddNestedGraph(inner, []string{"A"}, []string{"R"},
		map[string]symbolic.Expr{"N": symbolic.NewSym("N")})
	st.AddEdge(accA, "", ng, "A", ir.MustMemlet(inMemlet))
	st.AddEdge(ng, "R", accR, "", ir.MemletFromData("R", outer.Descriptors()["R"]))
	return outer, st
}

func TestInlineNestedGraph(t *testing.T) {
	g, st := buildLeafNested(t, "A[0:N]")
	require.NoError(t, ir.Validate(g))

	SimplifyGraph(g)
	require.NoError(t, ir.Validate(g))

	assert.Empty(t, nestedNodes(st))
	var bump *ir.Tasklet
	for _, n := range st.Nodes() {
		if tk, ok := n.(*ir.Tasklet); ok {
			bump = tk
		}
	}
	require.NotNil(t, bump)
	assert.Equal(t, "bump", bump.Label())

	// The boundary access nodes dissolved: the outer producer feeds the
	// inner tasklet directly, carrying the inner subset.
	in := st.InEdges(bump)
	require.Len(t, in, 1)
	assert.Equal(t, "A", in[0].Src.(*ir.AccessNode).Data)
	assert.Equal(t, "x", in[0].DstConn)
	assert.Equal(t, "A[0]", in[0].Data.String())
}

func TestInlineRequiresFullCoverage(t *testing.T) {
	g, st := buildLeafNested(t, "A[0:2]")

	SimplifyGraph(g)

	// A sub-range connector would shift the inner subsets; the nested
	// graph stays put.
	assert.Len(t, nestedNodes(st), 1)
}
