package xform

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dusk-indust/dfir/internal/ir"
	"github.com/dusk-indust/dfir/internal/symbolic"
)

// OffloadConfig controls the device-offload transformation. The zero value
// disables every optional behavior; use DefaultOffloadConfig for the
// standard settings.
type OffloadConfig struct {
	// ToplevelTransients hoists device transients to whole-graph lifetime
	// when their shapes only depend on constant symbols.
	ToplevelTransients bool
	// RegisterTransients turns transients inside device scopes into
	// register storage.
	RegisterTransients bool
	// SequentialInnerMaps forces scopes nested inside a device scope to
	// sequential execution.
	SequentialInnerMaps bool
	// SkipScalarTasklets leaves tasklets alone when they only touch
	// host-default scalars.
	SkipScalarTasklets bool
	// Simplify runs the whole-graph cleanup pass afterward.
	Simplify bool

	// ExcludeCopyIn and ExcludeCopyOut name arrays that must not be copied
	// across the boundary states.
	ExcludeCopyIn  []string
	ExcludeCopyOut []string
	// ExcludeTasklets names tasklet labels that are never wrapped.
	ExcludeTasklets []string
	// HostMaps lists scope-entry GUIDs kept on the host; HostData lists
	// array names kept host-resident.
	HostMaps []string
	HostData []string
}

// DefaultOffloadConfig enables every optional behavior.
func DefaultOffloadConfig() OffloadConfig {
	return OffloadConfig{
		ToplevelTransients:  true,
		RegisterTransients:  true,
		SequentialInnerMaps: true,
		SkipScalarTasklets:  true,
		Simplify:            true,
	}
}

// Offload restructures a whole graph to execute its top-level parallel
// scopes on an accelerator: non-transient inputs and outputs are shadowed
// by device-resident clones, copy-in/copy-out boundary states move the
// data, top-level scopes are rescheduled onto the device, free-floating
// tasklets touching device data are wrapped in size-one device maps, and
// control edges reading device data get interposed copy-back states.
type Offload struct {
	Config OffloadConfig
}

// NewOffload returns the transformation with default configuration.
func NewOffload() *Offload { return &Offload{Config: DefaultOffloadConfig()} }

func (t *Offload) Expressions() []*PatternGraph {
	return []*PatternGraph{WholeGraph()}
}

// AnnotatesMemlets is true: the pass runs propagation itself, up front.
func (t *Offload) AnnotatesMemlets() bool { return true }

// CanBeApplied rejects graphs with consume scopes anywhere, and graphs
// where two top-level code nodes are directly connected, which would turn
// into an invalid graph after wrapping.
func (t *Offload) CanBeApplied(m *Match, g *ir.Graph, permissive bool) bool {
	for _, ns := range g.AllNodesRecursive() {
		switch ns.Node.(type) {
		case *ir.ConsumeEntry, *ir.ConsumeExit:
			return false
		}
	}
	for _, st := range g.States() {
		sdict := st.ScopeDict()
		for _, n := range st.Nodes() {
			if _, isCode := n.(ir.CodeNode); !isCode || sdict[n] != nil {
				continue
			}
			for _, e := range st.OutEdges(n) {
				if _, dstCode := e.Dst.(ir.CodeNode); dstCode {
					return false
				}
			}
		}
	}
	return true
}

func (t *Offload) Apply(m *Match, g *ir.Graph) error {
	return offload(g, t.Config)
}

type stateNode struct {
	st *ir.State
	n  ir.Node
}

func offload(g *ir.Graph, cfg OffloadConfig) error {
	// Accurate subsets are needed before classification.
	ir.PropagateMemlets(g)

	hostData := stringSet(cfg.HostData)
	hostMaps := stringSet(cfg.HostMaps)
	excludedCopyin := stringSet(cfg.ExcludeCopyIn)
	excludedCopyout := stringSet(cfg.ExcludeCopyOut)
	excludedTasklets := stringSet(cfg.ExcludeTasklets)

	// Data crossing the boundary of a host-pinned map stays host-resident.
	for _, st := range g.States() {
		for _, n := range st.Nodes() {
			me, ok := n.(*ir.MapEntry)
			if !ok {
				continue
			}
			if _, pinned := hostMaps[me.GUID()]; !pinned {
				continue
			}
			for _, name := range scopeBoundaryData(st, me) {
				hostData[name] = struct{}{}
			}
		}
	}

	inputs, outputs := classifyData(g, hostData, hostMaps)

	startBlock := g.StartBlock()
	endBlocks := g.SinkBlocks()

	// Clone non-scalar inputs and outputs into device shadows.
	alreadyOnDevice := map[string]string{}
	cloned := map[string]string{}
	inputSeen := stringSet(inputs)
	cloneOne := func(name string) error {
		desc := g.Descriptors()[name]
		if desc.Storage == ir.StorageDeviceGlobal {
			alreadyOnDevice[name] = ""
			return nil
		}
		if desc.IsScalar() {
			return nil
		}
		if _, done := cloned[name]; done {
			return nil
		}
		nd := desc.Clone()
		nd.Storage = ir.StorageDeviceGlobal
		nd.Transient = true
		newName, err := g.AddDatadesc("gpu_"+name, nd, true)
		if err != nil {
			return err
		}
		cloned[name] = newName
		return nil
	}
	for _, name := range inputs {
		if err := cloneOne(name); err != nil {
			return err
		}
	}
	for _, name := range outputs {
		wasCloned := false
		if _, done := cloned[name]; done {
			wasCloned = true
		}
		if err := cloneOne(name); err != nil {
			return err
		}
		if wasCloned {
			continue
		}
		// A partially written output must also be copied in, or the copy
		// back would clobber the untouched remainder. A full-write witness
		// exempts it.
		if _, isInput := inputSeen[name]; !isInput {
			if _, nowCloned := cloned[name]; nowCloned && !hasFullWriteWitness(g, name) {
				inputs = append(inputs, name)
				inputSeen[name] = struct{}{}
			}
		}
	}

	// Arrays read by interstate conditions/assignments or region metadata
	// that are already device-resident need host shadows later.
	for _, e := range g.AllInterstateEdges() {
		for _, mem := range e.ReadMemlets(g.Descriptors()) {
			if g.Descriptors()[mem.Data].Storage == ir.StorageDeviceGlobal {
				alreadyOnDevice[mem.Data] = ""
			}
		}
	}
	for _, b := range g.AllBlocks(false) {
		for _, mem := range ir.MetaReadMemletsOf(b, g.Descriptors()) {
			if g.Descriptors()[mem.Data].Storage == ir.StorageDeviceGlobal {
				alreadyOnDevice[mem.Data] = ""
			}
		}
	}

	// Redirect every dataflow reference to the cloned names.
	for _, st := range g.States() {
		for _, n := range st.DataNodes() {
			if newName, ok := cloned[n.Data]; ok {
				n.Data = newName
			}
		}
		for _, e := range st.Edges() {
			if e.Data.IsEmpty() {
				continue
			}
			if newName, ok := cloned[e.Data.Data]; ok {
				e.Data.Data = newName
			}
		}
	}

	// Boundary states: one copy-in before the start block, one copy-out
	// fed by every terminal block.
	copyin := g.Root().AddStateBefore(startBlock, g.Name()+"_copyin")
	for _, name := range inputs {
		if _, skip := excludedCopyin[name]; skip {
			continue
		}
		devName, ok := cloned[name]
		if !ok {
			continue
		}
		src := copyin.AddAccess(name)
		dst := copyin.AddAccess(devName)
		copyin.AddNEdge(src, dst, ir.MemletFromData(name, g.Descriptors()[name]))
	}

	copyout := g.Root().AddState(g.Name() + "_copyout")
	for _, b := range endBlocks {
		g.Root().AddEdge(b, copyout, nil)
	}
	for _, name := range outputs {
		if _, skip := excludedCopyout[name]; skip {
			continue
		}
		devName, ok := cloned[name]
		if !ok {
			continue
		}
		src := copyout.AddAccess(devName)
		dst := copyout.AddAccess(name)
		copyout.AddNEdge(src, dst, ir.MemletFromData(name, g.Descriptors()[name]))
	}

	rescheduleScopes(g, cfg, hostData, hostMaps)

	gpuScalars, globalCode, nestedCandidates := collectDeviceWork(g, cfg)

	// Recursively offload nested graphs scheduled for the device but not
	// physically inside a device scope. Exclusion sets travel as explicit
	// parameters so sibling invocations cannot interfere.
	for _, ns := range nestedCandidates {
		nn := ns.n.(*ir.NestedGraph)
		st := ns.st
		sub := DefaultOffloadConfig()
		for _, e := range st.InEdges(nn) {
			root := st.MemletPath(e)[0].Src
			if a, ok := root.(*ir.AccessNode); ok {
				if d := g.Descriptor(a.Data); d != nil && d.Storage.OnDevice() {
					sub.ExcludeCopyIn = append(sub.ExcludeCopyIn, e.DstConn)
					if inner := nn.Graph.Descriptor(e.DstConn); inner != nil {
						inner.Storage = d.Storage
					}
				}
			}
		}
		for _, e := range st.OutEdges(nn) {
			path := st.MemletPath(e)
			leaf := path[len(path)-1].Dst
			if a, ok := leaf.(*ir.AccessNode); ok {
				if d := g.Descriptor(a.Data); d != nil && d.Storage.OnDevice() {
					sub.ExcludeCopyOut = append(sub.ExcludeCopyOut, e.SrcConn)
					if inner := nn.Graph.Descriptor(e.SrcConn); inner != nil {
						inner.Storage = d.Storage
					}
				}
			}
		}
		if _, err := ApplyOnce(nn.Graph, &Offload{Config: sub}, false); err != nil {
			return err
		}
	}

	promoteTransients(g, cfg, hostData, gpuScalars)

	if err := wrapFreeTasklets(g, cfg, globalCode, excludedTasklets); err != nil {
		return err
	}

	if err := repairInterstateReads(g, cloned, gpuScalars, alreadyOnDevice); err != nil {
		return err
	}

	if cfg.Simplify {
		SimplifyGraph(g)
	}
	return nil
}

// classifyData finds the non-transient arrays read ("inputs") and written
// ("outputs") by top-level dataflow, in deterministic scan order. Arrays
// that only feed a dynamic map range stay on the host; arrays under WCR
// count as inputs because the reduction reads the previous value.
func classifyData(g *ir.Graph, hostData, hostMaps map[string]struct{}) (inputs, outputs []string) {
	inSeen := map[string]struct{}{}
	outSeen := map[string]struct{}{}
	for _, st := range g.States() {
		sdict := st.ScopeDict()
		for _, n := range st.Nodes() {
			a, ok := n.(*ir.AccessNode)
			if !ok {
				continue
			}
			desc := g.Descriptors()[a.Data]
			if desc == nil || desc.Transient {
				continue
			}
			if st.OutDegree(a) > 0 {
				if _, seen := inSeen[a.Data]; !seen && !feedsDynamicRange(st, sdict, a, hostMaps) {
					inSeen[a.Data] = struct{}{}
					inputs = append(inputs, a.Data)
				}
			}
			if st.InDegree(a) > 0 {
				_, seen := outSeen[a.Data]
				_, host := hostData[a.Data]
				if !seen && !host {
					outSeen[a.Data] = struct{}{}
					outputs = append(outputs, a.Data)
				}
			}
		}
		for _, e := range st.Edges() {
			if e.Data.IsEmpty() || e.Data.WCR == ir.WCRNone {
				continue
			}
			desc := g.Descriptors()[e.Data.Data]
			if desc == nil || desc.Transient {
				continue
			}
			if _, seen := inSeen[e.Data.Data]; !seen {
				inSeen[e.Data.Data] = struct{}{}
				inputs = append(inputs, e.Data.Data)
			}
		}
	}
	return inputs, outputs
}

// feedsDynamicRange reports whether any read of a ends at a top-level scope
// entry's dynamic-range connector (or at a host-pinned map).
func feedsDynamicRange(st *ir.State, sdict map[ir.Node]ir.EntryNode, a *ir.AccessNode, hostMaps map[string]struct{}) bool {
	for _, e := range st.OutEdges(a) {
		path := st.MemletPath(e)
		last := path[len(path)-1]
		entry, isEntry := last.Dst.(ir.EntryNode)
		if !isEntry {
			continue
		}
		if _, pinned := hostMaps[entry.GUID()]; pinned {
			return true
		}
		if last.DstConn != "" && !strings.HasPrefix(last.DstConn, "IN_") && sdict[last.Dst] == nil {
			return true
		}
	}
	return false
}

// hasFullWriteWitness scans for a write whose destination subset covers the
// whole array, with no dynamic volume anywhere in its fan-out tree. The
// scan order is deterministic (state and node insertion order); the first
// witness wins.
func hasFullWriteWitness(g *ir.Graph, name string) bool {
	desc := g.Descriptors()[name]
	full := ir.FullSubset(desc.Shape)
	for _, st := range g.States() {
		for _, n := range st.Nodes() {
			a, ok := n.(*ir.AccessNode)
			if !ok || a.Data != name {
				continue
			}
			for _, e := range st.InEdges(a) {
				if e.Data.IsEmpty() || !e.Data.Subset.Equals(full) {
					continue
				}
				isFull := true
				for _, pe := range st.MemletTree(e).Edges() {
					if pe.Data.IsEmpty() || pe.Data.Dynamic {
						isFull = false
						break
					}
				}
				if isFull {
					return true
				}
			}
		}
	}
	return false
}

// scopeBoundaryData names the arrays entering and leaving a map scope.
func scopeBoundaryData(st *ir.State, me *ir.MapEntry) []string {
	var out []string
	for _, e := range st.InEdges(me) {
		if root, ok := st.MemletTree(e).Root().Src.(*ir.AccessNode); ok {
			out = append(out, root.Data)
		}
	}
	if mx := st.ExitNode(me); mx != nil {
		for _, e := range st.OutEdges(mx) {
			path := st.MemletPath(e)
			if leaf, ok := path[len(path)-1].Dst.(*ir.AccessNode); ok {
				out = append(out, leaf.Data)
			}
		}
	}
	return out
}

// rescheduleScopes marks top-level library, nested-graph, and map nodes for
// device execution, forces inner scopes sequential when configured, and
// promotes the outputs of newly device-scheduled scopes to device storage.
func rescheduleScopes(g *ir.Graph, cfg OffloadConfig, hostData, hostMaps map[string]struct{}) {
	var gpuNodes []stateNode
	for _, st := range g.States() {
		sdict := st.ScopeDict()
		for _, n := range st.Nodes() {
			if sdict[n] == nil {
				switch t := n.(type) {
				case *ir.LibraryNode:
					t.Schedule = ir.ScheduleDeviceDefault
					gpuNodes = append(gpuNodes, stateNode{st, n})
				case *ir.NestedGraph:
					t.Schedule = ir.ScheduleDeviceDefault
					gpuNodes = append(gpuNodes, stateNode{st, n})
				case *ir.MapEntry:
					if _, pinned := hostMaps[t.GUID()]; pinned {
						continue
					}
					if boundaryMarkedHost(st, t, hostData) {
						continue
					}
					t.Map.Schedule = ir.ScheduleDevice
					gpuNodes = append(gpuNodes, stateNode{st, n})
				}
			} else if cfg.SequentialInnerMaps {
				switch t := n.(type) {
				case *ir.MapEntry:
					t.Map.Schedule = ir.ScheduleSequential
				case *ir.LibraryNode:
					t.Schedule = ir.ScheduleSequential
				case *ir.NestedGraph:
					for _, ns := range t.Graph.AllNodesRecursive() {
						switch inner := ns.Node.(type) {
						case *ir.MapEntry:
							inner.Map.Schedule = ir.ScheduleSequential
						case *ir.LibraryNode:
							inner.Schedule = ir.ScheduleSequential
						}
					}
				}
			}
		}
	}

	// A device scope writes device memory; its result arrays move along.
	for _, sn := range gpuNodes {
		var outEdges []*ir.MultiEdge
		switch t := sn.n.(type) {
		case *ir.MapEntry:
			if mx := sn.st.ExitNode(t); mx != nil {
				outEdges = sn.st.OutEdges(mx)
			}
		default:
			outEdges = sn.st.OutEdges(sn.n)
		}
		for _, e := range outEdges {
			path := sn.st.MemletPath(e)
			if leaf, ok := path[len(path)-1].Dst.(*ir.AccessNode); ok {
				if d := g.Descriptor(leaf.Data); d != nil {
					d.Storage = ir.StorageDeviceGlobal
				}
			}
		}
	}
}

func boundaryMarkedHost(st *ir.State, me *ir.MapEntry, hostData map[string]struct{}) bool {
	if len(hostData) == 0 {
		return false
	}
	for _, name := range scopeBoundaryData(st, me) {
		if _, marked := hostData[name]; marked {
			return true
		}
	}
	return false
}

// collectDeviceWork runs the scalar fixed point: free-floating tasklets
// whose adjacent scalar dependency chains force device placement are added
// to a per-state "move to device" set, marking the scalars they touch,
// until the set stops growing. Nested graphs found at top level are
// returned for recursive offload.
func collectDeviceWork(g *ir.Graph, cfg OffloadConfig) (map[string]string, map[*ir.State][]*ir.Tasklet, []stateNode) {
	gpuScalars := map[string]string{}
	globalCode := map[*ir.State][]*ir.Tasklet{}
	claimed := map[*ir.Tasklet]struct{}{}
	nestedSeen := map[*ir.NestedGraph]struct{}{}
	var nested []stateNode

	parentDeviceScheduled := g.ParentNode() != nil && g.ParentNode().Schedule == ir.ScheduleDeviceDefault

	changed := true
	for changed {
		changed = false
		for _, st := range g.States() {
			for _, n := range st.Nodes() {
				switch t := n.(type) {
				case *ir.NestedGraph:
					if st.EntryNodeOf(t) == nil && !insideDeviceKernel(st, t) {
						if _, seen := nestedSeen[t]; !seen {
							nestedSeen[t] = struct{}{}
							nested = append(nested, stateNode{st, t})
						}
					}
				case *ir.Tasklet:
					if _, done := claimed[t]; done {
						continue
					}
					if st.EntryNodeOf(t) != nil || insideDeviceKernel(st, t) {
						continue
					}
					scalars, scalarOut := scalarChainCheck(st, g, t, gpuScalars, true)
					inScalars, inOut := scalarChainCheck(st, g, t, gpuScalars, false)
					for s := range inScalars {
						scalars[s] = struct{}{}
					}
					scalarOut = scalarOut && inOut
					forceClaim := !cfg.SkipScalarTasklets && len(scalars) > 0
					if !scalarOut || parentDeviceScheduled || forceClaim {
						claimed[t] = struct{}{}
						globalCode[st] = append(globalCode[st], t)
						for s := range scalars {
							if _, ok := gpuScalars[s]; !ok {
								gpuScalars[s] = ""
							}
						}
						changed = true
					}
				}
			}
		}
	}
	return gpuScalars, globalCode, nested
}

// scalarChainCheck inspects a node's adjacent dependency chain in one
// direction (outputs when out is true). It returns the scalar names found
// and whether the chain consists purely of host-resident scalars; any
// device-resident scalar, pseudo-scalar, or array access breaks purity.
func scalarChainCheck(st *ir.State, g *ir.Graph, n ir.Node, gpuScalars map[string]string, out bool) (map[string]struct{}, bool) {
	scalars := map[string]struct{}{}
	pure := true
	var edges []*ir.MultiEdge
	if out {
		edges = st.OutEdges(n)
	} else {
		edges = st.InEdges(n)
	}
	for _, e := range edges {
		path := st.MemletPath(e)
		var endpoint ir.Node
		if out {
			endpoint = path[len(path)-1].Dst
		} else {
			endpoint = path[0].Src
		}
		a, ok := endpoint.(*ir.AccessNode)
		if !ok {
			continue
		}
		desc := g.Descriptor(a.Data)
		if desc == nil {
			continue
		}
		switch {
		case desc.IsScalar():
			if desc.Storage.OnDevice() {
				pure = false
			}
			if _, marked := gpuScalars[a.Data]; marked {
				pure = false
			}
			scalars[a.Data] = struct{}{}
		case desc.IsPseudoScalar():
			pure = false
		case !desc.Storage.OnDevice() && symbolic.IsOne(symbolic.Simplify(e.Data.NumElements())):
			// Size-one transfer; keep following the chain.
		default:
			pure = false
			continue
		}
		sset, spure := scalarChainCheck(st, g, a, gpuScalars, out)
		for s := range sset {
			scalars[s] = struct{}{}
		}
		pure = pure && spure
	}
	return scalars, pure
}

// insideDeviceKernel reports whether n executes within a device-scheduled
// map scope, in this state or through the chain of parent graphs.
func insideDeviceKernel(st *ir.State, n ir.Node) bool {
	sd := st.ScopeDict()
	for cur := sd[n]; cur != nil; cur = sd[cur] {
		if me, ok := cur.(*ir.MapEntry); ok && me.Map.Schedule.OnDevice() {
			return true
		}
	}
	g := st.Graph()
	if g == nil {
		return false
	}
	nn := g.ParentNode()
	if nn == nil {
		return false
	}
	ps := nn.ParentState()
	if ps == nil {
		return false
	}
	return insideDeviceKernel(ps, nn)
}

// promoteTransients moves remaining top-level transients to device storage
// and hoists their lifetime when shapes depend only on constant symbols;
// transients inside scopes become registers when configured.
func promoteTransients(g *ir.Graph, cfg OffloadConfig, hostData map[string]struct{}, gpuScalars map[string]string) {
	constSyms := ConstantSymbols(g)
	for _, st := range g.States() {
		sdict := st.ScopeDict()
		for _, n := range st.Nodes() {
			a, ok := n.(*ir.AccessNode)
			if !ok {
				continue
			}
			desc := g.Descriptors()[a.Data]
			if desc == nil || !desc.Transient {
				continue
			}
			// Dynamic map range feeders stay on host.
			dynamicFeeder := false
			for _, e := range st.OutEdges(a) {
				path := st.MemletPath(e)
				if _, isEntry := path[len(path)-1].Dst.(ir.EntryNode); isEntry {
					dynamicFeeder = true
					break
				}
			}
			if dynamicFeeder {
				continue
			}
			if sdict[a] == nil && !desc.Storage.OnDevice() {
				if desc.IsScalar() {
					if _, marked := gpuScalars[a.Data]; !marked {
						continue
					}
				}
				if _, host := hostData[a.Data]; !host {
					desc.Storage = ir.StorageDeviceGlobal
				}
				if cfg.ToplevelTransients && symbolsSubset(desc.FreeSymbols(), constSyms) {
					desc.Lifetime = ir.LifetimeGraph
				}
			} else if sdict[a] != nil && !desc.Storage.OnDevice() && cfg.RegisterTransients {
				desc.Storage = ir.StorageRegister
			}
		}
	}
}

// wrapFreeTasklets encloses each claimed tasklet, plus any free tasklet now
// adjacent to device-resident data, in a synthetic size-one device map.
func wrapFreeTasklets(g *ir.Graph, cfg OffloadConfig, globalCode map[*ir.State][]*ir.Tasklet, excluded map[string]struct{}) error {
	for _, st := range g.States() {
		already := map[*ir.Tasklet]struct{}{}
		for _, t := range globalCode[st] {
			already[t] = struct{}{}
		}
		for _, n := range st.Nodes() {
			t, ok := n.(*ir.Tasklet)
			if !ok {
				continue
			}
			if _, done := already[t]; done {
				continue
			}
			if st.EntryNodeOf(t) != nil || insideDeviceKernel(st, t) {
				continue
			}
			touchesDevice := false
			for _, e := range st.InEdges(t) {
				if root, isAcc := st.MemletTree(e).Root().Src.(*ir.AccessNode); isAcc {
					if d := g.Descriptor(root.Data); d != nil && d.Storage.OnDevice() {
						touchesDevice = true
					}
				}
			}
			for _, e := range st.OutEdges(t) {
				path := st.MemletPath(e)
				if leaf, isAcc := path[len(path)-1].Dst.(*ir.AccessNode); isAcc {
					if d := g.Descriptor(leaf.Data); d != nil && d.Storage.OnDevice() {
						touchesDevice = true
					}
				}
			}
			if touchesDevice {
				globalCode[st] = append(globalCode[st], t)
			}
		}
	}

	for _, st := range sortedStates(globalCode) {
		for _, code := range globalCode[st] {
			if _, skip := excluded[code.Label()]; skip {
				continue
			}
			if err := wrapInDeviceMap(st, code); err != nil {
				return err
			}
		}
	}
	return nil
}

// wrapInDeviceMap cuts the tasklet's edges and reinserts them through a new
// size-one map scheduled on the device. A tasklet with no inputs gets an
// empty trigger edge from the entry so it still executes.
func wrapInDeviceMap(st *ir.State, code *ir.Tasklet) error {
	param := code.Label() + "__gmapi"
	ranges := &ir.Subset{Dims: []ir.RangeDim{{Start: symbolic.NewInt(0), End: symbolic.NewInt(1)}}}
	me, mx := st.AddMap(code.Label()+"_gmap", []string{param}, ranges, ir.ScheduleDevice)

	inEdges := st.InEdges(code)
	outEdges := st.OutEdges(code)

	connOf := func(conn string, e *ir.MultiEdge) string {
		if conn != "" {
			return conn
		}
		if !e.Data.IsEmpty() {
			return e.Data.Data
		}
		return "x"
	}

	for _, e := range inEdges {
		c := connOf(e.DstConn, e)
		me.AddInConnector("IN_"+c, "")
		me.AddOutConnector("OUT_"+c, "")
		st.RemoveEdge(e)
		st.AddEdge(e.Src, e.SrcConn, me, "IN_"+c, e.Data)
		st.AddEdge(me, "OUT_"+c, e.Dst, e.DstConn, e.Data.Clone())
	}
	for _, e := range outEdges {
		c := connOf(e.SrcConn, e)
		mx.AddInConnector("IN_"+c, "")
		mx.AddOutConnector("OUT_"+c, "")
		st.RemoveEdge(e)
		st.AddEdge(e.Src, e.SrcConn, mx, "IN_"+c, e.Data)
		st.AddEdge(mx, "OUT_"+c, e.Dst, e.DstConn, e.Data.Clone())
	}
	if len(inEdges) == 0 {
		st.AddNEdge(me, code, &ir.Memlet{})
	}
	if len(outEdges) == 0 {
		st.AddNEdge(code, mx, &ir.Memlet{})
	}
	return nil
}

// repairInterstateReads interposes copy-back states wherever a control edge
// or region metadata reads device-resident data, rewiring the reads to new
// host-side shadow names.
func repairInterstateReads(g *ir.Graph, cloned map[string]string, gpuScalars, alreadyOnDevice map[string]string) error {
	// Control edges still read host names (dataflow was redirected, control
	// flow was not), so both sides of every clone pair are stale reads.
	clonedData := map[string]struct{}{}
	for hostName, devName := range cloned {
		clonedData[hostName] = struct{}{}
		clonedData[devName] = struct{}{}
	}
	for name := range gpuScalars {
		clonedData[name] = struct{}{}
	}
	for name := range alreadyOnDevice {
		clonedData[name] = struct{}{}
	}

	deviceToHost := func(name string) (string, error) {
		if host, ok := gpuScalars[name]; ok {
			if host != "" {
				return host, nil
			}
			host, err := addHostShadow(g, name)
			if err != nil {
				return "", err
			}
			gpuScalars[name] = host
			return host, nil
		}
		if host, ok := alreadyOnDevice[name]; ok {
			if host != "" {
				return host, nil
			}
			host, err := addHostShadow(g, name)
			if err != nil {
				return "", err
			}
			alreadyOnDevice[name] = host
			return host, nil
		}
		// A cloned array copies back to its original host name.
		for hostName, devName := range cloned {
			if devName == name {
				return hostName, nil
			}
		}
		return "", fmt.Errorf("xform: internal error: no host counterpart for device data %q", name)
	}

	emitCopies := func(co *ir.State, used []string) (map[string]string, error) {
		mapping := map[string]string{}
		for _, name := range used {
			devName, hostName := name, ""
			if dn, ok := cloned[name]; ok {
				// The read already uses the host name; refresh it in place.
				devName, hostName = dn, name
			} else {
				hn, err := deviceToHost(name)
				if err != nil {
					return nil, err
				}
				hostName = hn
				mapping[name] = hostName
			}
			src := co.AddAccess(devName)
			dst := co.AddAccess(hostName)
			co.AddNEdge(src, dst, ir.MemletFromData(hostName, g.Descriptors()[hostName]))
		}
		return mapping, nil
	}

	// Outgoing control edges first.
	for _, b := range g.AllBlocks(false) {
		r := b.ParentRegion()
		if r == nil {
			continue
		}
		used := map[string]struct{}{}
		for _, e := range r.OutEdges(b) {
			for name := range e.FreeSymbols() {
				if _, isDev := clonedData[name]; isDev {
					used[name] = struct{}{}
				}
			}
		}
		if len(used) == 0 {
			continue
		}
		co := r.AddStateAfter(b, b.Label()+"_icopyout")
		mapping, err := emitCopies(co, sortedNames(used))
		if err != nil {
			return err
		}
		for _, e := range r.OutEdges(co) {
			e.ReplaceDict(mapping, false)
		}
	}

	// Then region metadata (loop bounds, branch conditions).
	for _, b := range g.AllBlocks(false) {
		r := b.ParentRegion()
		if r == nil {
			continue
		}
		used := map[string]struct{}{}
		for name := range ir.MetaFreeSymbolsOf(b) {
			if _, isDev := clonedData[name]; isDev {
				used[name] = struct{}{}
			}
		}
		if len(used) == 0 {
			continue
		}
		co := r.AddStateBefore(b, b.Label()+"_icopyout")
		mapping, err := emitCopies(co, sortedNames(used))
		if err != nil {
			return err
		}
		ir.ReplaceMetaAccessesOf(b, mapping)
	}
	return nil
}

func addHostShadow(g *ir.Graph, name string) (string, error) {
	desc := g.Descriptors()[name].Clone()
	desc.Storage = ir.StorageHostHeap
	desc.Transient = true
	return g.AddDatadesc("host_"+name, desc, true)
}

// ConstantSymbols returns the declared symbols never written by an
// interstate assignment anywhere in the graph.
func ConstantSymbols(g *ir.Graph) map[string]struct{} {
	assigned := g.AssignedSymbols()
	out := map[string]struct{}{}
	for name := range g.Symbols() {
		if _, written := assigned[name]; !written {
			out[name] = struct{}{}
		}
	}
	return out
}

func symbolsSubset(sub, super map[string]struct{}) bool {
	for name := range sub {
		if _, ok := super[name]; !ok {
			return false
		}
	}
	return true
}

func stringSet(names []string) map[string]struct{} {
	out := make(map[string]struct{}, len(names))
	for _, n := range names {
		if n != "" {
			out[n] = struct{}{}
		}
	}
	return out
}

func sortedNames(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// sortedStates orders map keys by label for deterministic iteration.
func sortedStates(m map[*ir.State][]*ir.Tasklet) []*ir.State {
	out := make([]*ir.State, 0, len(m))
	for st := range m {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Label() < out[j].Label() })
	return out
}
