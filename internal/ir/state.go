package ir

import (
	"fmt"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

// MultiEdge is a dataflow edge between two nodes of a state, optionally
// attached to named connectors, carrying a memlet.
type MultiEdge struct {
	Src     Node
	SrcConn string
	Dst     Node
	DstConn string
	Data    *Memlet
}

// State is a dataflow multigraph of nodes connected by memlet-carrying
// edges, executed atomically once entered.
type State struct {
	blockBase
	nodes []Node
	edges []*MultiEdge
}

func newState(label string) *State {
	return &State{blockBase: newBlockBase(label)}
}

// Graph returns the graph owning this state.
func (s *State) Graph() *Graph {
	if s.parent == nil {
		return nil
	}
	return s.parent.Graph()
}

// Nodes returns a snapshot of the state's nodes in insertion order.
func (s *State) Nodes() []Node {
	out := make([]Node, len(s.nodes))
	copy(out, s.nodes)
	return out
}

// Edges returns a snapshot of the state's edges.
func (s *State) Edges() []*MultiEdge {
	out := make([]*MultiEdge, len(s.edges))
	copy(out, s.edges)
	return out
}

// AddNode appends n to the state.
func (s *State) AddNode(n Node) {
	if ng, ok := n.(*NestedGraph); ok {
		ng.parentState = s
	}
	s.nodes = append(s.nodes, n)
}

// RemoveNode detaches n and every edge touching it.
func (s *State) RemoveNode(n Node) {
	for _, e := range s.Edges() {
		if e.Src == n || e.Dst == n {
			s.RemoveEdge(e)
		}
	}
	for i, cur := range s.nodes {
		if cur == n {
			s.nodes = append(s.nodes[:i], s.nodes[i+1:]...)
			return
		}
	}
}

// AddEdge connects src to dst through the given connectors, adding either
// node if it is not yet in the state.
func (s *State) AddEdge(src Node, srcConn string, dst Node, dstConn string, m *Memlet) *MultiEdge {
	s.ensureNode(src)
	s.ensureNode(dst)
	e := &MultiEdge{Src: src, SrcConn: srcConn, Dst: dst, DstConn: dstConn, Data: m}
	s.edges = append(s.edges, e)
	return e
}

// AddNEdge adds a connector-less edge (plain data movement or ordering).
func (s *State) AddNEdge(src, dst Node, m *Memlet) *MultiEdge {
	return s.AddEdge(src, "", dst, "", m)
}

// RemoveEdge detaches e.
func (s *State) RemoveEdge(e *MultiEdge) {
	for i, cur := range s.edges {
		if cur == e {
			s.edges = append(s.edges[:i], s.edges[i+1:]...)
			return
		}
	}
}

func (s *State) ensureNode(n Node) {
	for _, cur := range s.nodes {
		if cur == n {
			return
		}
	}
	s.AddNode(n)
}

// InEdges returns the edges entering n.
func (s *State) InEdges(n Node) []*MultiEdge {
	var out []*MultiEdge
	for _, e := range s.edges {
		if e.Dst == n {
			out = append(out, e)
		}
	}
	return out
}

// OutEdges returns the edges leaving n.
func (s *State) OutEdges(n Node) []*MultiEdge {
	var out []*MultiEdge
	for _, e := range s.edges {
		if e.Src == n {
			out = append(out, e)
		}
	}
	return out
}

// InDegree returns the number of edges entering n.
func (s *State) InDegree(n Node) int { return len(s.InEdges(n)) }

// OutDegree returns the number of edges leaving n.
func (s *State) OutDegree(n Node) int { return len(s.OutEdges(n)) }

// SourceNodes returns the nodes with no incoming edges.
func (s *State) SourceNodes() []Node {
	var out []Node
	for _, n := range s.nodes {
		if s.InDegree(n) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// SinkNodes returns the nodes with no outgoing edges.
func (s *State) SinkNodes() []Node {
	var out []Node
	for _, n := range s.nodes {
		if s.OutDegree(n) == 0 {
			out = append(out, n)
		}
	}
	return out
}

// --- Construction helpers ---

// AddAccess adds an access node for the named descriptor.
func (s *State) AddAccess(data string) *AccessNode {
	n := NewAccessNode(data)
	s.AddNode(n)
	return n
}

// AddTasklet adds a tasklet with the given connectors and native-dialect
// code body.
func (s *State) AddTasklet(label string, ins, outs []string, code string) *Tasklet {
	t := NewTasklet(label, ins, outs, code)
	s.AddNode(t)
	return t
}

// AddMap adds a paired map entry/exit with the given index parameters and
// one range dimension per parameter.
func (s *State) AddMap(label string, params []string, ranges *Subset, schedule ScheduleType) (*MapEntry, *MapExit) {
	me, mx := NewMap(label, params, ranges, schedule)
	s.AddNode(me)
	s.AddNode(mx)
	return me, mx
}

// AddNestedGraph embeds g as a node of this state.
func (s *State) AddNestedGraph(g *Graph, inputs, outputs []string, symMap map[string]symbolic.Expr) *NestedGraph {
	n := NewNestedGraph(g, inputs, outputs, symMap)
	s.AddNode(n)
	return n
}

// AddMemletPath connects a chain of nodes through scope boundaries. Scope
// entry/exit nodes along the path get paired IN_x/OUT_x connectors named
// after the memlet's data; the given source/destination connectors attach
// at the two ends. The memlet is shared along the path (cloned per hop).
func (s *State) AddMemletPath(path []Node, srcConn, dstConn string, m *Memlet) error {
	if len(path) < 2 {
		return fmt.Errorf("ir: memlet path needs at least two nodes")
	}
	conn := m.Data
	for i := 0; i < len(path)-1; i++ {
		u, v := path[i], path[i+1]
		sc, dc := "", ""
		if i == 0 {
			sc = srcConn
		}
		if i == len(path)-2 {
			dc = dstConn
		}
		switch t := u.(type) {
		case *MapEntry:
			sc = "OUT_" + conn
			t.AddOutConnector(sc, "")
		case *MapExit:
			sc = "OUT_" + conn
			t.AddOutConnector(sc, "")
		}
		switch t := v.(type) {
		case *MapEntry:
			dc = "IN_" + conn
			t.AddInConnector(dc, "")
		case *MapExit:
			dc = "IN_" + conn
			t.AddInConnector(dc, "")
		}
		s.AddEdge(u, sc, v, dc, m.Clone())
	}
	return nil
}

// --- Scope traversal ---

// exitNodeOf pairs an exit with its entry through the shared scope value.
func scopesMatch(entry EntryNode, exit ExitNode) bool {
	switch e := entry.(type) {
	case *MapEntry:
		x, ok := exit.(*MapExit)
		return ok && x.Map == e.Map
	case *ConsumeEntry:
		x, ok := exit.(*ConsumeExit)
		return ok && x.Consume == e.Consume
	}
	return false
}

// ExitNode returns the exit paired with the given scope entry.
func (s *State) ExitNode(entry EntryNode) ExitNode {
	for _, n := range s.nodes {
		if x, ok := n.(ExitNode); ok && scopesMatch(entry, x) {
			return x
		}
	}
	return nil
}

// EntryOf returns the entry paired with the given scope exit.
func (s *State) EntryOf(exit ExitNode) EntryNode {
	for _, n := range s.nodes {
		if e, ok := n.(EntryNode); ok && scopesMatch(e, exit) {
			return e
		}
	}
	return nil
}

// ScopeDict maps every node to its immediately enclosing scope entry, or
// nil for top-level nodes. It is recomputed from the live graph on every
// call; results must not be cached across mutations.
func (s *State) ScopeDict() map[Node]EntryNode {
	scope := make(map[Node]EntryNode, len(s.nodes))
	for _, n := range s.nodes {
		scope[n] = nil
	}
	for _, n := range topoOrder(s) {
		for _, e := range s.OutEdges(n) {
			switch t := n.(type) {
			case EntryNode:
				// The paired exit belongs to the scope it closes.
				scope[e.Dst] = t
			case ExitNode:
				// Leaving a scope returns to the scope enclosing it.
				if entry := s.EntryOf(t); entry != nil {
					scope[e.Dst] = scope[entry]
				} else {
					scope[e.Dst] = scope[n]
				}
			default:
				scope[e.Dst] = scope[n]
			}
		}
	}
	return scope
}

// EntryNodeOf returns the immediately enclosing scope entry of n, or nil.
func (s *State) EntryNodeOf(n Node) EntryNode {
	return s.ScopeDict()[n]
}

// topoOrder returns the nodes in topological order (states are DAGs).
func topoOrder(s *State) []Node {
	indeg := make(map[Node]int, len(s.nodes))
	for _, n := range s.nodes {
		indeg[n] = 0
	}
	for _, e := range s.edges {
		indeg[e.Dst]++
	}
	var queue []Node
	for _, n := range s.nodes {
		if indeg[n] == 0 {
			queue = append(queue, n)
		}
	}
	var order []Node
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, e := range s.OutEdges(n) {
			indeg[e.Dst]--
			if indeg[e.Dst] == 0 {
				queue = append(queue, e.Dst)
			}
		}
	}
	return order
}

// --- Memlet paths and trees ---

// MemletPath returns the ordered chain of edges that e belongs to,
// following paired IN_x/OUT_x connectors through scope entries and exits,
// from the root producer to the final consumer.
func (s *State) MemletPath(e *MultiEdge) []*MultiEdge {
	path := []*MultiEdge{e}
	// Walk backward to the root.
	cur := e
	for {
		entry, ok := cur.Src.(EntryNode)
		if !ok || !hasPrefix(cur.SrcConn, "OUT_") {
			if x, isExit := cur.Src.(ExitNode); isExit && hasPrefix(cur.SrcConn, "OUT_") {
				prev := s.inEdgeByConnector(x, "IN_"+cur.SrcConn[4:])
				if prev == nil {
					break
				}
				path = append([]*MultiEdge{prev}, path...)
				cur = prev
				continue
			}
			break
		}
		prev := s.inEdgeByConnector(entry, "IN_"+cur.SrcConn[4:])
		if prev == nil {
			break
		}
		path = append([]*MultiEdge{prev}, path...)
		cur = prev
	}
	// Walk forward to the leaf.
	cur = e
	for {
		var next *MultiEdge
		if hasPrefix(cur.DstConn, "IN_") {
			switch cur.Dst.(type) {
			case EntryNode, ExitNode:
				next = s.outEdgeByConnector(cur.Dst, "OUT_"+cur.DstConn[3:])
			}
		}
		if next == nil {
			break
		}
		path = append(path, next)
		cur = next
	}
	return path
}

func (s *State) inEdgeByConnector(n Node, conn string) *MultiEdge {
	for _, e := range s.InEdges(n) {
		if e.DstConn == conn {
			return e
		}
	}
	return nil
}

func (s *State) outEdgeByConnector(n Node, conn string) *MultiEdge {
	for _, e := range s.OutEdges(n) {
		if e.SrcConn == conn {
			return e
		}
	}
	return nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// MemletTree is the set of edges fanning out of (or into) one root edge
// through shared scope connectors.
type MemletTree struct {
	state *State
	root  *MultiEdge
}

// MemletTree returns the tree containing e.
func (s *State) MemletTree(e *MultiEdge) *MemletTree {
	root := s.MemletPath(e)[0]
	return &MemletTree{state: s, root: root}
}

// Root returns the tree's root edge (the end closest to the data producer
// outside all scopes).
func (t *MemletTree) Root() *MultiEdge { return t.root }

// Edges returns every edge in the tree, root first.
func (t *MemletTree) Edges() []*MultiEdge {
	var out []*MultiEdge
	var walk func(e *MultiEdge)
	walk = func(e *MultiEdge) {
		out = append(out, e)
		if !hasPrefix(e.DstConn, "IN_") {
			return
		}
		switch e.Dst.(type) {
		case EntryNode, ExitNode:
			conn := "OUT_" + e.DstConn[3:]
			for _, next := range t.state.OutEdges(e.Dst) {
				if next.SrcConn == conn {
					walk(next)
				}
			}
		}
	}
	walk(t.root)
	return out
}

// --- Symbol analysis ---

// FreeSymbols returns the symbol names read anywhere in the state: node
// properties, memlets, and embedded code, minus names bound by enclosing
// map parameters and connector names.
func (s *State) FreeSymbols() map[string]struct{} {
	out := map[string]struct{}{}
	bound := map[string]struct{}{}
	for _, n := range s.nodes {
		if me, ok := n.(*MapEntry); ok {
			for _, p := range me.Map.Params {
				bound[p] = struct{}{}
			}
		}
		for _, prop := range n.Properties() {
			collectPropertySymbols(prop, out)
		}
		if t, ok := n.(*Tasklet); ok {
			for name := range codeFreeSymbols(&t.Code) {
				if _, ignored := t.IgnoredSymbols[name]; ignored {
					continue
				}
				if _, isConn := t.InConnectors()[name]; isConn {
					continue
				}
				if _, isConn := t.OutConnectors()[name]; isConn {
					continue
				}
				out[name] = struct{}{}
			}
		}
	}
	for _, e := range s.edges {
		for name := range e.Data.FreeSymbols() {
			out[name] = struct{}{}
		}
	}
	for name := range bound {
		delete(out, name)
	}
	return out
}

func collectPropertySymbols(p Property, out map[string]struct{}) {
	switch p.Kind {
	case SymbolicProperty:
		if e, ok := p.Get().(symbolic.Expr); ok && e != nil {
			for name := range symbolic.FreeSymbols(e) {
				out[name] = struct{}{}
			}
		}
	case RangeProperty:
		switch v := p.Get().(type) {
		case *Subset:
			for name := range v.FreeSymbols() {
				out[name] = struct{}{}
			}
		case []symbolic.Expr:
			for _, e := range v {
				for name := range symbolic.FreeSymbols(e) {
					out[name] = struct{}{}
				}
			}
		}
	case SymbolMappingProperty:
		if m, ok := p.Get().(map[string]symbolic.Expr); ok {
			for _, e := range m {
				for name := range symbolic.FreeSymbols(e) {
					out[name] = struct{}{}
				}
			}
		}
	}
}

// DataNodes returns the state's access nodes.
func (s *State) DataNodes() []*AccessNode {
	var out []*AccessNode
	for _, n := range s.nodes {
		if a, ok := n.(*AccessNode); ok {
			out = append(out, a)
		}
	}
	return out
}
