package xform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/dfir/internal/ir"
	"github.com/dusk-indust/dfir/internal/symbolic"
)

// buildVectorMap constructs a single-state graph with one top-level map
// reading A[i] and writing B[i] over [0, N).
func buildVectorMap(t *testing.T, name string) *ir.Graph {
	t.Helper()
	g := ir.NewGraph(name)
	require.NoError(t, g.AddSymbol("N", ir.TypeInt64))
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewSym("N")}, ir.TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("B", []symbolic.Expr{symbolic.NewSym("N")}, ir.TypeFloat64)
	require.NoError(t, err)

	st := g.AddState(name + "_body")
	ranges := &ir.Subset{Dims: []ir.RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewSym("N")}}}
	me, mx := st.AddMap("m", []string{"i"}, ranges, ir.ScheduleDefault)
	tk := st.AddTasklet("double", []string{"v"}, []string{"out"}, "out = v * 2")
	a := st.AddAccess("A")
	b := st.AddAccess("B")
	require.NoError(t, st.AddMemletPath([]ir.Node{a, me, tk}, "", "v", ir.MustMemlet("A[i]")))
	require.NoError(t, st.AddMemletPath([]ir.Node{tk, mx, b}, "out", "", ir.MustMemlet("B[i]")))
	return g
}

func stateByLabel(t *testing.T, g *ir.Graph, label string) *ir.State {
	t.Helper()
	for _, st := range g.States() {
		if st.Label() == label {
			return st
		}
	}
	t.Fatalf("no state labeled %q", label)
	return nil
}

func TestOffloadVectorMap(t *testing.T) {
	g := buildVectorMap(t, "axpy")
	cfg := DefaultOffloadConfig()
	cfg.Simplify = false

	applied, err := ApplyOnce(g, &Offload{Config: cfg}, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, ir.Validate(g))

	// Device shadows for the non-transient boundary arrays.
	for _, name := range []string{"gpu_A", "gpu_B"} {
		d := g.Descriptors()[name]
		require.NotNil(t, d, name)
		assert.True(t, d.Transient, name)
		assert.Equal(t, ir.StorageDeviceGlobal, d.Storage, name)
	}

	// Copy-in leads the graph and moves only the input: B is fully
	// written inside, so its device shadow needs no initial contents.
	assert.Equal(t, "axpy_copyin", g.StartBlock().Label())
	copyin := stateByLabel(t, g, "axpy_copyin")
	require.Len(t, copyin.Edges(), 1)
	in := copyin.Edges()[0]
	assert.Equal(t, "A", in.Src.(*ir.AccessNode).Data)
	assert.Equal(t, "gpu_A", in.Dst.(*ir.AccessNode).Data)

	copyout := stateByLabel(t, g, "axpy_copyout")
	require.Len(t, copyout.Edges(), 1)
	out := copyout.Edges()[0]
	assert.Equal(t, "gpu_B", out.Src.(*ir.AccessNode).Data)
	assert.Equal(t, "B", out.Dst.(*ir.AccessNode).Data)

	// The compute map now runs on the device over the cloned arrays.
	body := stateByLabel(t, g, "axpy_body")
	entries := mapEntries(body)
	require.Len(t, entries, 1)
	assert.Equal(t, ir.ScheduleDevice, entries[0].Map.Schedule)
	for _, n := range body.Nodes() {
		if a, ok := n.(*ir.AccessNode); ok {
			assert.Contains(t, []string{"gpu_A", "gpu_B"}, a.Data)
		}
	}
}

func TestOffloadPartialWriteIsCopiedIn(t *testing.T) {
	g := ir.NewGraph("partial")
	require.NoError(t, g.AddSymbol("N", ir.TypeInt64))
	_, err := g.AddArray("A", []symbolic.Expr{symbolic.NewSym("N")}, ir.TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("B", []symbolic.Expr{symbolic.NewSym("N")}, ir.TypeFloat64)
	require.NoError(t, err)

	st := g.AddState("partial_body")
	ranges := &ir.Subset{Dims: []ir.RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewInt(1)}}}
	me, mx := st.AddMap("m", []string{"i"}, ranges, ir.ScheduleDefault)
	tk := st.AddTasklet("copy", []string{"v"}, []string{"out"}, "out = v")
	a := st.AddAccess("A")
	b := st.AddAccess("B")
	require.NoError(t, st.AddMemletPath([]ir.Node{a, me, tk}, "", "v", ir.MustMemlet("A[i]")))
	require.NoError(t, st.AddMemletPath([]ir.Node{tk, mx, b}, "out", "", ir.MustMemlet("B[i]")))

	cfg := DefaultOffloadConfig()
	cfg.Simplify = false
	applied, err := ApplyOnce(g, &Offload{Config: cfg}, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, ir.Validate(g))

	// Only B[0] is written, so the untouched remainder must survive the
	// copy back: B is transferred in as well as out.
	copyin := stateByLabel(t, g, "partial_copyin")
	copied := map[string]struct{}{}
	for _, e := range copyin.Edges() {
		copied[e.Src.(*ir.AccessNode).Data] = struct{}{}
	}
	assert.Contains(t, copied, "A")
	assert.Contains(t, copied, "B")
}

func TestOffloadDynamicRangeFeederStaysHost(t *testing.T) {
	g := buildVectorMap(t, "dyn")
	_, err := g.AddArray("R", []symbolic.Expr{symbolic.NewInt(2)}, ir.TypeInt64)
	require.NoError(t, err)

	body := stateByLabel(t, g, "dyn_body")
	entry := mapEntries(body)[0]
	entry.AddInConnector("bound", "")
	r := body.AddAccess("R")
	body.AddEdge(r, "", entry, "bound", ir.MustMemlet("R[0]"))
	require.NoError(t, ir.Validate(g))

	cfg := DefaultOffloadConfig()
	cfg.Simplify = false
	applied, err := ApplyOnce(g, &Offload{Config: cfg}, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, ir.Validate(g))

	// The range feeder is read on the host before the kernel launches.
	assert.Nil(t, g.Descriptors()["gpu_R"])
	assert.Equal(t, "R", r.Data)
	copyin := stateByLabel(t, g, "dyn_copyin")
	for _, e := range copyin.Edges() {
		assert.NotEqual(t, "R", e.Src.(*ir.AccessNode).Data)
	}
}

func buildScalarTasklet(t *testing.T) (*ir.Graph, *ir.Tasklet) {
	t.Helper()
	g := ir.NewGraph("scal")
	_, err := g.AddScalar("s", ir.TypeFloat64, true)
	require.NoError(t, err)

	calc := g.AddState("calc")
	done := g.AddState("done")
	g.AddEdge(calc, done, ir.NewInterstateEdge().WithCondition("s > 0"))

	init := calc.AddTasklet("init", nil, []string{"o"}, "o = 1")
	sa := calc.AddAccess("s")
	calc.AddEdge(init, "o", sa, "", ir.MemletFromData("s", g.Descriptors()["s"]))
	return g, init
}

func TestOffloadScalarTaskletToDevice(t *testing.T) {
	g, init := buildScalarTasklet(t)
	cfg := DefaultOffloadConfig()
	cfg.SkipScalarTasklets = false
	cfg.Simplify = false

	applied, err := ApplyOnce(g, &Offload{Config: cfg}, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, ir.Validate(g))

	// The scalar moves to the device and gets whole-graph lifetime.
	s := g.Descriptors()["s"]
	assert.Equal(t, ir.StorageDeviceGlobal, s.Storage)
	assert.Equal(t, ir.LifetimeGraph, s.Lifetime)

	// The free tasklet is wrapped in a synthetic size-one device map.
	calc := stateByLabel(t, g, "calc")
	entries := mapEntries(calc)
	require.Len(t, entries, 1)
	wrap := entries[0]
	assert.Equal(t, "init_gmap", wrap.Map.LabelName)
	assert.Equal(t, []string{"init__gmapi"}, wrap.Map.Params)
	assert.Equal(t, ir.ScheduleDevice, wrap.Map.Schedule)
	assert.Equal(t, ir.EntryNode(wrap), calc.EntryNodeOf(init))

	// The control edge read the scalar, so a copy-back state refreshes a
	// host shadow and the condition is rewritten to read it.
	host := g.Descriptors()["host_s"]
	require.NotNil(t, host)
	assert.True(t, host.Transient)
	assert.Equal(t, ir.StorageHostHeap, host.Storage)

	co := stateByLabel(t, g, "calc_icopyout")
	require.Len(t, co.Edges(), 1)
	e := co.Edges()[0]
	assert.Equal(t, "s", e.Src.(*ir.AccessNode).Data)
	assert.Equal(t, "host_s", e.Dst.(*ir.AccessNode).Data)

	outs := co.ParentRegion().OutEdges(co)
	require.Len(t, outs, 1)
	require.NotNil(t, outs[0].Condition)
	assert.Equal(t, "host_s > 0", outs[0].Condition.String())
}

func TestOffloadLeavesHostScalarChain(t *testing.T) {
	g, _ := buildScalarTasklet(t)
	cfg := DefaultOffloadConfig()
	cfg.Simplify = false

	applied, err := ApplyOnce(g, &Offload{Config: cfg}, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, ir.Validate(g))

	// A pure host-scalar chain is left alone under the default config.
	calc := stateByLabel(t, g, "calc")
	assert.Empty(t, mapEntries(calc))
	assert.Equal(t, ir.StorageDefault, g.Descriptors()["s"].Storage)
	assert.Nil(t, g.Descriptors()["host_s"])
	for _, st := range g.States() {
		assert.NotEqual(t, "calc_icopyout", st.Label())
	}
}

func TestOffloadRepairsInterstateReads(t *testing.T) {
	g := ir.NewGraph("flow")
	require.NoError(t, g.AddSymbol("N", ir.TypeInt64))
	shape := func(e symbolic.Expr) []symbolic.Expr { return []symbolic.Expr{e} }
	_, err := g.AddArray("A", shape(symbolic.NewSym("N")), ir.TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("B", shape(symbolic.NewSym("N")), ir.TypeFloat64)
	require.NoError(t, err)
	_, err = g.AddArray("R", shape(symbolic.NewInt(1)), ir.TypeFloat64)
	require.NoError(t, err)

	produce := g.AddState("produce")
	consume := g.AddState("consume")
	g.AddEdge(produce, consume, ir.NewInterstateEdge().WithCondition("R[0] > 0"))

	one := &ir.Subset{Dims: []ir.RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewInt(1)}}}
	me, mx := produce.AddMap("probe", []string{"i"}, one, ir.ScheduleDefault)
	tk := produce.AddTasklet("sample", []string{"v"}, []string{"out"}, "out = v")
	pa := produce.AddAccess("A")
	pr := produce.AddAccess("R")
	require.NoError(t, produce.AddMemletPath([]ir.Node{pa, me, tk}, "", "v", ir.MustMemlet("A[i]")))
	require.NoError(t, produce.AddMemletPath([]ir.Node{tk, mx, pr}, "out", "", ir.MustMemlet("R[i]")))

	all := &ir.Subset{Dims: []ir.RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewSym("N")}}}
	cme, cmx := consume.AddMap("m", []string{"i"}, all, ir.ScheduleDefault)
	ctk := consume.AddTasklet("double", []string{"v"}, []string{"out"}, "out = v * 2")
	ca := consume.AddAccess("A")
	cb := consume.AddAccess("B")
	require.NoError(t, consume.AddMemletPath([]ir.Node{ca, cme, ctk}, "", "v", ir.MustMemlet("A[i]")))
	require.NoError(t, consume.AddMemletPath([]ir.Node{ctk, cmx, cb}, "out", "", ir.MustMemlet("B[i]")))

	require.NoError(t, ir.Validate(g))
	cfg := DefaultOffloadConfig()
	cfg.Simplify = false
	applied, err := ApplyOnce(g, &Offload{Config: cfg}, false)
	require.NoError(t, err)
	require.True(t, applied)
	require.NoError(t, ir.Validate(g))

	// The condition reads R, which now lives in gpu_R: an interposed
	// state copies it back to the host name before the branch.
	r := g.Root()
	outs := r.OutEdges(produce)
	require.Len(t, outs, 1)
	assert.Nil(t, outs[0].Condition)
	co, ok := outs[0].Dst.(*ir.State)
	require.True(t, ok)
	assert.Equal(t, "produce_icopyout", co.Label())

	require.Len(t, co.Edges(), 1)
	e := co.Edges()[0]
	assert.Equal(t, "gpu_R", e.Src.(*ir.AccessNode).Data)
	assert.Equal(t, "R", e.Dst.(*ir.AccessNode).Data)

	// The read keeps its host name; only the data is refreshed.
	branches := r.OutEdges(co)
	require.Len(t, branches, 1)
	require.NotNil(t, branches[0].Condition)
	assert.Equal(t, "R[0] > 0", branches[0].Condition.String())
}

func TestOffloadRejectsAdjacentCodeNodes(t *testing.T) {
	g := ir.NewGraph("pair")
	st := g.AddState("body")
	t1 := st.AddTasklet("first", nil, []string{"o"}, "o = 1")
	t2 := st.AddTasklet("second", []string{"x"}, nil, "x")
	st.AddEdge(t1, "o", t2, "x", &ir.Memlet{})

	applied, err := ApplyOnce(g, NewOffload(), false)
	require.NoError(t, err)
	assert.False(t, applied)
}
