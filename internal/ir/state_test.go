package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

// mapped state: A -> entry -> tasklet -> exit -> B, one map over i in [0, N).
func buildMappedState(t *testing.T) (*Graph, *State, *MapEntry, *MapExit, *Tasklet) {
	t.Helper()
	g := NewGraph("mapped")
	require.NoError(t, g.AddSymbol("N", TypeInt64))
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewSym("N")}, TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("B", []symbolic.Expr{symbolic.NewSym("N")}, TypeFloat64)
	require.NoError(t, err)

	st := g.AddState("body")
	ranges := &Subset{Dims: []RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewSym("N")}}}
	me, mx := st.AddMap("m", []string{"i"}, ranges, ScheduleDefault)
	tk := st.AddTasklet("double", []string{"v"}, []string{"out"}, "out = v * 2")
	a := st.AddAccess("A")
	b := st.AddAccess("B")

	require.NoError(t, st.AddMemletPath([]Node{a, me, tk}, "", "v", MustMemlet("A[i]")))
	require.NoError(t, st.AddMemletPath([]Node{tk, mx, b}, "out", "", MustMemlet("B[i]")))
	return g, st, me, mx, tk
}

func TestAddMemletPathConnectors(t *testing.T) {
	_, st, me, mx, tk := buildMappedState(t)

	assert.Contains(t, me.InConnectors(), "IN_A")
	assert.Contains(t, me.OutConnectors(), "OUT_A")
	assert.Contains(t, mx.InConnectors(), "IN_B")
	assert.Contains(t, mx.OutConnectors(), "OUT_B")

	// Memlets are cloned per hop, not shared.
	in := st.InEdges(tk)
	require.Len(t, in, 1)
	outer := st.inEdgeByConnector(me, "IN_A")
	require.NotNil(t, outer)
	assert.NotSame(t, outer.Data, in[0].Data)
}

func TestScopeDict(t *testing.T) {
	_, st, me, mx, tk := buildMappedState(t)

	sd := st.ScopeDict()
	assert.Nil(t, sd[me])
	assert.Equal(t, EntryNode(me), sd[tk])
	// The exit belongs to the scope it closes; its successors do not.
	assert.Equal(t, EntryNode(me), sd[mx])
	for _, n := range st.Nodes() {
		if a, ok := n.(*AccessNode); ok {
			assert.Nil(t, sd[a], "access node %s", a.Data)
		}
	}

	assert.Equal(t, EntryNode(me), st.EntryNodeOf(tk))
	assert.Equal(t, ExitNode(mx), st.ExitNode(me))
	assert.Equal(t, EntryNode(me), st.EntryOf(mx))
}

func TestMemletPathAndTree(t *testing.T) {
	_, st, me, mx, tk := buildMappedState(t)

	inner := st.InEdges(tk)[0]
	path := st.MemletPath(inner)
	require.Len(t, path, 2)
	assert.Equal(t, "IN_A", path[0].DstConn)
	assert.Same(t, inner, path[1])

	// The root edge leads the tree; the inner edge hangs off it.
	tree := st.MemletTree(inner)
	assert.Same(t, path[0], tree.Root())
	assert.Equal(t, path, tree.Edges())

	// Output side: tasklet -> exit -> access node.
	outEdge := st.OutEdges(tk)[0]
	outPath := st.MemletPath(outEdge)
	require.Len(t, outPath, 2)
	assert.Same(t, outEdge, outPath[0])
	assert.Equal(t, "OUT_B", outPath[1].SrcConn)
	_ = mx
	_ = me
}

func TestStateFreeSymbols(t *testing.T) {
	_, st, _, _, tk := buildMappedState(t)

	free := st.FreeSymbols()
	// N from the map range; the map parameter i is bound.
	assert.Contains(t, free, "N")
	assert.NotContains(t, free, "i")
	// Connector names in tasklet code are not free reads.
	assert.NotContains(t, free, "v")
	assert.NotContains(t, free, "out")

	tk.IgnoredSymbols["alpha"] = struct{}{}
	tk.Code.Code = "out = v * alpha"
	free = st.FreeSymbols()
	assert.NotContains(t, free, "alpha")
}

func TestRemoveNodeDetachesEdges(t *testing.T) {
	_, st, _, _, tk := buildMappedState(t)

	before := len(st.Edges())
	st.RemoveNode(tk)
	assert.Len(t, st.Edges(), before-2)
	for _, e := range st.Edges() {
		assert.NotSame(t, Node(tk), e.Src)
		assert.NotSame(t, Node(tk), e.Dst)
	}
}

func TestSourceAndSinkNodes(t *testing.T) {
	_, st, _, _, _ := buildMappedState(t)

	sources := st.SourceNodes()
	require.Len(t, sources, 1)
	assert.Equal(t, "A", sources[0].Label())

	sinks := st.SinkNodes()
	require.Len(t, sinks, 1)
	assert.Equal(t, "B", sinks[0].Label())
}
