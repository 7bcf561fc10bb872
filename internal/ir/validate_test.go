package ir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

func TestValidateAcceptsMappedState(t *testing.T) {
	g, _, _, _, _ := buildMappedState(t)
	assert.NoError(t, Validate(g))
}

func TestValidateUnknownData(t *testing.T) {
	g := NewGraph("g")
	st := g.AddState("body")
	st.AddAccess("ghost")

	err := Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown data")
}

func TestValidateUnpairedScopeEntry(t *testing.T) {
	g := NewGraph("g")
	st := g.AddState("body")
	me, mx := NewMap("m", []string{"i"}, &Subset{Dims: []RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewInt(4)}}}, ScheduleDefault)
	st.AddNode(me)
	_ = mx // exit never added

	err := Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no paired exit")
}

func TestValidateUndeclaredConnector(t *testing.T) {
	g := NewGraph("g")
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewInt(4)}, TypeFloat64)
	require.NoError(t, err)

	st := g.AddState("body")
	a := st.AddAccess("A")
	tk := st.AddTasklet("t", []string{"v"}, []string{"out"}, "out = v")
	st.AddEdge(a, "", tk, "nope", MustMemlet("A[0]"))

	err = Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input connector")
}

func TestValidateSubsetDimensionMismatch(t *testing.T) {
	g := NewGraph("g")
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewInt(4), symbolic.NewInt(4)}, TypeFloat64)
	require.NoError(t, err)

	st := g.AddState("body")
	a := st.AddAccess("A")
	tk := st.AddTasklet("t", []string{"v"}, []string{"out"}, "out = v")
	st.AddEdge(a, "", tk, "v", MustMemlet("A[0]"))

	err = Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subset dimensions")
}

func TestValidateScalarMemletSkipsDimsCheck(t *testing.T) {
	g := NewGraph("g")
	_, err := g.AddScalar("s", TypeFloat64, false)
	require.NoError(t, err)

	st := g.AddState("body")
	a := st.AddAccess("s")
	tk := st.AddTasklet("t", []string{"v"}, []string{"out"}, "out = v")
	st.AddEdge(a, "", tk, "v", MemletFromData("s", g.Descriptors()["s"]))

	assert.NoError(t, Validate(g))
}

func TestValidateDataflowCycle(t *testing.T) {
	g := NewGraph("g")
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewInt(4)}, TypeFloat64)
	require.NoError(t, err)

	st := g.AddState("body")
	a := st.AddAccess("A")
	b := st.AddAccess("A")
	st.AddNEdge(a, b, MustMemlet("A[0]"))
	st.AddNEdge(b, a, MustMemlet("A[0]"))

	err = Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestValidateNestedGraphConnectors(t *testing.T) {
	outer := NewGraph("outer")
	_, err := outer.AddArray("A", []symbolic.Expr{symbolic.NewInt(4)}, TypeFloat64)
	require.NoError(t, err)

	inner := NewGraph("inner")
	inner.AddState("inner_body")

	st := outer.AddState("host")
	a := st.AddAccess("A")
	ng := st.AddNestedGraph(inner, []string{"A"}, nil, nil)
	st.AddEdge(a, "", ng, "A", MustMemlet("A[0:4]"))

	// The connector names an inner descriptor that does not exist.
	err = Validate(outer)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "matches no inner descriptor")

	_, err = inner.AddArray("A", []symbolic.Expr{symbolic.NewInt(4)}, TypeFloat64)
	require.NoError(t, err)
	assert.NoError(t, Validate(outer))
}

func TestValidateAssignmentDescriptorCollision(t *testing.T) {
	g := NewGraph("g")
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewInt(4)}, TypeFloat64)
	require.NoError(t, err)

	s0 := g.AddState("first")
	s1 := g.AddState("second")
	g.AddEdge(s0, s1, NewInterstateEdge().AssignString("A", "1"))

	err = Validate(g)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "collides with a data descriptor")
}
