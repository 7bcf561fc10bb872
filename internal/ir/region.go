package ir

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

// Block is a vertex of a control-flow region: a dataflow state, a loop
// region, a conditional region, or a plain nested region.
type Block interface {
	GUID() string
	Label() string
	// ParentRegion is a weak back-reference; ownership runs downward only.
	ParentRegion() *Region
	setParent(r *Region)
}

type blockBase struct {
	guid   string
	label  string
	parent *Region
}

func newBlockBase(label string) blockBase {
	return blockBase{guid: uuid.NewString(), label: label}
}

func (b *blockBase) GUID() string           { return b.guid }
func (b *blockBase) Label() string          { return b.label }
func (b *blockBase) ParentRegion() *Region  { return b.parent }
func (b *blockBase) setParent(r *Region)    { b.parent = r }

// Assignment binds a symbol to a new-value expression, evaluated when the
// owning control edge is taken. Order is preserved.
type Assignment struct {
	Symbol string
	Value  symbolic.Expr
}

// InterstateEdge is a control edge: a boolean condition (nil means always
// taken) plus an ordered list of symbol assignments.
type InterstateEdge struct {
	Src, Dst    Block
	Condition   symbolic.Expr
	Assignments []Assignment
}

// NewInterstateEdge returns an unconditional edge with no assignments.
func NewInterstateEdge() *InterstateEdge { return &InterstateEdge{} }

// WithCondition parses and sets the edge condition.
func (e *InterstateEdge) WithCondition(src string) *InterstateEdge {
	e.Condition = symbolic.MustParse(src)
	return e
}

// Assign appends (or overwrites) an assignment for sym.
func (e *InterstateEdge) Assign(sym string, value symbolic.Expr) *InterstateEdge {
	for i := range e.Assignments {
		if e.Assignments[i].Symbol == sym {
			e.Assignments[i].Value = value
			return e
		}
	}
	e.Assignments = append(e.Assignments, Assignment{Symbol: sym, Value: value})
	return e
}

// AssignString is Assign with a source-text value.
func (e *InterstateEdge) AssignString(sym, value string) *InterstateEdge {
	return e.Assign(sym, symbolic.ParseOrOpaque(value))
}

// AssignmentValue returns the assigned expression for sym, if present.
func (e *InterstateEdge) AssignmentValue(sym string) (symbolic.Expr, bool) {
	for _, a := range e.Assignments {
		if a.Symbol == sym {
			return a.Value, true
		}
	}
	return nil, false
}

// RemoveAssignment drops the assignment for sym, if present.
func (e *InterstateEdge) RemoveAssignment(sym string) {
	for i, a := range e.Assignments {
		if a.Symbol == sym {
			e.Assignments = append(e.Assignments[:i], e.Assignments[i+1:]...)
			return
		}
	}
}

// FreeSymbols returns the names read by the condition and the assignment
// values. Assignment keys are writes, not reads, and are excluded.
func (e *InterstateEdge) FreeSymbols() map[string]struct{} {
	out := map[string]struct{}{}
	for s := range symbolic.FreeSymbols(e.Condition) {
		out[s] = struct{}{}
	}
	for _, a := range e.Assignments {
		for s := range symbolic.FreeSymbols(a.Value) {
			out[s] = struct{}{}
		}
	}
	return out
}

// ReplaceDict substitutes names in the condition and assignment values;
// when replaceKeys is set, assignment keys are renamed as well.
func (e *InterstateEdge) ReplaceDict(repl map[string]string, replaceKeys bool) {
	repl = dropIdentity(repl)
	if len(repl) == 0 {
		return
	}
	symrepl := exprRepl(repl)
	if e.Condition != nil {
		e.Condition = symbolic.Subs(e.Condition, symrepl)
	}
	for i := range e.Assignments {
		e.Assignments[i].Value = symbolic.Subs(e.Assignments[i].Value, symrepl)
		if replaceKeys {
			if nn, ok := repl[e.Assignments[i].Symbol]; ok {
				e.Assignments[i].Symbol = nn
			}
		}
	}
}

// ReadMemlets returns one memlet per data access the edge performs into a
// descriptor of the given table, from both the condition and assignments.
func (e *InterstateEdge) ReadMemlets(arrays map[string]*Data) []*Memlet {
	var out []*Memlet
	collect := func(expr symbolic.Expr) {
		out = append(out, readMemletsOf(expr, arrays)...)
	}
	collect(e.Condition)
	for _, a := range e.Assignments {
		collect(a.Value)
	}
	return out
}

func readMemletsOf(e symbolic.Expr, arrays map[string]*Data) []*Memlet {
	var out []*Memlet
	symbolic.Walk(e, func(x symbolic.Expr) bool {
		ix, ok := x.(*symbolic.Index)
		if !ok {
			return true
		}
		name, ok := symbolic.DottedName(ix.Base)
		if !ok {
			return true
		}
		if _, present := arrays[name]; !present {
			return true
		}
		out = append(out, &Memlet{Data: name, Subset: subsetFromArgs(ix.Args)})
		return false
	})
	return out
}

// Region is an ordered directed multigraph of control-flow blocks. A plain
// Region may itself appear as a block inside another region.
type Region struct {
	blockBase
	graph  *Graph
	blocks []Block
	edges  []*InterstateEdge
	start  Block
}

func newRegion(label string, g *Graph) *Region {
	return &Region{blockBase: newBlockBase(label), graph: g}
}

// Graph returns the graph this region ultimately belongs to.
func (r *Region) Graph() *Graph {
	cur := r
	for cur.graph == nil && cur.parent != nil {
		cur = cur.parent
	}
	return cur.graph
}

// Blocks returns a snapshot of the region's blocks in insertion order.
func (r *Region) Blocks() []Block {
	out := make([]Block, len(r.blocks))
	copy(out, r.blocks)
	return out
}

// Edges returns a snapshot of the region's control edges.
func (r *Region) Edges() []*InterstateEdge {
	out := make([]*InterstateEdge, len(r.edges))
	copy(out, r.edges)
	return out
}

// AddBlock appends b. The first block added becomes the start block.
func (r *Region) AddBlock(b Block) {
	b.setParent(r)
	if sub, ok := b.(interface{ subRegion() *Region }); ok {
		sub.subRegion().parent = r
	}
	r.blocks = append(r.blocks, b)
	if r.start == nil {
		r.start = b
	}
}

// AddState creates and appends a new dataflow state.
func (r *Region) AddState(label string) *State {
	st := newState(label)
	r.AddBlock(st)
	return st
}

// AddEdge connects src to dst with the given control edge and returns it.
func (r *Region) AddEdge(src, dst Block, e *InterstateEdge) *InterstateEdge {
	if e == nil {
		e = NewInterstateEdge()
	}
	e.Src, e.Dst = src, dst
	r.edges = append(r.edges, e)
	return e
}

// RemoveEdge detaches e from the region.
func (r *Region) RemoveEdge(e *InterstateEdge) {
	for i, cur := range r.edges {
		if cur == e {
			r.edges = append(r.edges[:i], r.edges[i+1:]...)
			return
		}
	}
}

// RemoveBlock detaches b and every control edge touching it.
func (r *Region) RemoveBlock(b Block) {
	for _, e := range r.Edges() {
		if e.Src == b || e.Dst == b {
			r.RemoveEdge(e)
		}
	}
	for i, cur := range r.blocks {
		if cur == b {
			r.blocks = append(r.blocks[:i], r.blocks[i+1:]...)
			break
		}
	}
	if r.start == b {
		r.start = nil
		if len(r.blocks) > 0 {
			r.start = r.blocks[0]
		}
	}
}

// StartBlock returns the designated start block.
func (r *Region) StartBlock() Block { return r.start }

// SetStartBlock designates b as the start block; b must be in the region.
func (r *Region) SetStartBlock(b Block) error {
	for _, cur := range r.blocks {
		if cur == b {
			r.start = b
			return nil
		}
	}
	return fmt.Errorf("ir: block %q is not in region %q", b.Label(), r.label)
}

// OutEdges returns the control edges leaving b.
func (r *Region) OutEdges(b Block) []*InterstateEdge {
	var out []*InterstateEdge
	for _, e := range r.edges {
		if e.Src == b {
			out = append(out, e)
		}
	}
	return out
}

// InEdges returns the control edges entering b.
func (r *Region) InEdges(b Block) []*InterstateEdge {
	var out []*InterstateEdge
	for _, e := range r.edges {
		if e.Dst == b {
			out = append(out, e)
		}
	}
	return out
}

// SinkBlocks returns the blocks with no outgoing control edges.
func (r *Region) SinkBlocks() []Block {
	var out []Block
	for _, b := range r.blocks {
		if len(r.OutEdges(b)) == 0 {
			out = append(out, b)
		}
	}
	return out
}

// AddStateBefore inserts a new state immediately before b: every in-edge of
// b is redirected to the new state, which connects to b unconditionally.
// If b was the start block, the new state becomes the start block.
func (r *Region) AddStateBefore(b Block, label string) *State {
	st := r.AddState(label)
	for _, e := range r.InEdges(b) {
		e.Dst = st
	}
	r.AddEdge(st, b, nil)
	if r.start == b {
		r.start = st
	}
	return st
}

// AddStateAfter inserts a new state immediately after b: every out-edge of
// b is re-sourced from the new state, and b connects to it unconditionally.
func (r *Region) AddStateAfter(b Block, label string) *State {
	st := r.AddState(label)
	for _, e := range r.OutEdges(b) {
		e.Src = st
	}
	r.AddEdge(b, st, nil)
	return st
}

// AllBlocks returns the region's blocks and, transitively, the blocks of
// nested regions (loop bodies, conditional branches, plain sub-regions).
// Nested graphs are not entered; use Graph.AllBlocksRecursive for that.
func (r *Region) AllBlocks() []Block {
	var out []Block
	for _, b := range r.blocks {
		out = append(out, b)
		switch t := b.(type) {
		case *LoopRegion:
			out = append(out, t.Body.AllBlocks()...)
		case *CondRegion:
			for _, br := range t.Branches {
				out = append(out, br.Body.AllBlocks()...)
			}
		case *Region:
			out = append(out, t.AllBlocks()...)
		}
	}
	return out
}

// AllRegions returns the region itself plus every nested control-flow
// region, not crossing nested-graph boundaries.
func (r *Region) AllRegions() []*Region {
	out := []*Region{r}
	for _, b := range r.blocks {
		switch t := b.(type) {
		case *LoopRegion:
			out = append(out, t.Body.AllRegions()...)
		case *CondRegion:
			for _, br := range t.Branches {
				out = append(out, br.Body.AllRegions()...)
			}
		case *Region:
			out = append(out, t.AllRegions()...)
		}
	}
	return out
}

// metaAccessor is implemented by block kinds whose own metadata (not their
// contained dataflow) reads symbols or data.
type metaAccessor interface {
	ReplaceMetaAccesses(repl map[string]string)
	MetaFreeSymbols() map[string]struct{}
	MetaReadMemlets(arrays map[string]*Data) []*Memlet
}

// ReplaceMetaAccesses rewrites name occurrences embedded in the metadata of
// this region's blocks (loop bounds, branch conditions).
func (r *Region) ReplaceMetaAccesses(repl map[string]string) {
	for _, b := range r.blocks {
		if ma, ok := b.(metaAccessor); ok {
			ma.ReplaceMetaAccesses(repl)
		}
	}
}

// MetaFreeSymbolsOf returns the names read by b's own metadata (loop
// bounds, branch conditions); empty for plain states.
func MetaFreeSymbolsOf(b Block) map[string]struct{} {
	if ma, ok := b.(metaAccessor); ok {
		return ma.MetaFreeSymbols()
	}
	return map[string]struct{}{}
}

// MetaReadMemletsOf returns the data accesses b's own metadata performs.
func MetaReadMemletsOf(b Block, arrays map[string]*Data) []*Memlet {
	if ma, ok := b.(metaAccessor); ok {
		return ma.MetaReadMemlets(arrays)
	}
	return nil
}

// ReplaceMetaAccessesOf rewrites name occurrences in b's own metadata.
func ReplaceMetaAccessesOf(b Block, repl map[string]string) {
	if ma, ok := b.(metaAccessor); ok {
		ma.ReplaceMetaAccesses(repl)
	}
}

// LoopRegion is a structured loop: an init assignment, a continue
// condition, an update expression, and a body region.
type LoopRegion struct {
	blockBase
	LoopVar   string
	Init      symbolic.Expr
	Condition symbolic.Expr
	Update    symbolic.Expr
	Body      *Region
}

// NewLoopRegion builds a loop block with an empty body.
func NewLoopRegion(label, loopVar string, init, cond, update symbolic.Expr) *LoopRegion {
	return &LoopRegion{
		blockBase: newBlockBase(label),
		LoopVar:   loopVar,
		Init:      init,
		Condition: cond,
		Update:    update,
		Body:      newRegion(label+"_body", nil),
	}
}

func (l *LoopRegion) subRegion() *Region { return l.Body }

// ReplaceMetaAccesses rewrites the loop's own bound expressions, then
// recurses into the body's nested blocks.
func (l *LoopRegion) ReplaceMetaAccesses(repl map[string]string) {
	repl = dropIdentity(repl)
	if len(repl) == 0 {
		return
	}
	symrepl := exprRepl(repl)
	l.Init = symbolic.Subs(l.Init, symrepl)
	l.Condition = symbolic.Subs(l.Condition, symrepl)
	l.Update = symbolic.Subs(l.Update, symrepl)
	l.Body.ReplaceMetaAccesses(repl)
}

// MetaFreeSymbols returns names read by the loop bounds.
func (l *LoopRegion) MetaFreeSymbols() map[string]struct{} {
	out := map[string]struct{}{}
	for _, e := range []symbolic.Expr{l.Init, l.Condition, l.Update} {
		for s := range symbolic.FreeSymbols(e) {
			out[s] = struct{}{}
		}
	}
	delete(out, l.LoopVar)
	return out
}

// MetaReadMemlets returns data accesses performed by the loop bounds.
func (l *LoopRegion) MetaReadMemlets(arrays map[string]*Data) []*Memlet {
	var out []*Memlet
	for _, e := range []symbolic.Expr{l.Init, l.Condition, l.Update} {
		out = append(out, readMemletsOf(e, arrays)...)
	}
	return out
}

// CondBranch is one arm of a conditional region. A nil condition is the
// else branch.
type CondBranch struct {
	Condition symbolic.Expr
	Body      *Region
}

// CondRegion is a structured conditional with ordered branches.
type CondRegion struct {
	blockBase
	Branches []*CondBranch
}

// NewCondRegion builds an empty conditional block.
func NewCondRegion(label string) *CondRegion {
	return &CondRegion{blockBase: newBlockBase(label)}
}

// AddBranch appends an arm with the given condition (nil for else) and
// returns its body region.
func (c *CondRegion) AddBranch(cond symbolic.Expr) *Region {
	body := newRegion(fmt.Sprintf("%s_branch%d", c.label, len(c.Branches)), nil)
	body.parent = c.parent
	c.Branches = append(c.Branches, &CondBranch{Condition: cond, Body: body})
	return body
}

func (c *CondRegion) setParent(r *Region) {
	c.parent = r
	for _, br := range c.Branches {
		br.Body.parent = r
	}
}

// ReplaceMetaAccesses rewrites branch conditions, then recurses.
func (c *CondRegion) ReplaceMetaAccesses(repl map[string]string) {
	repl = dropIdentity(repl)
	if len(repl) == 0 {
		return
	}
	symrepl := exprRepl(repl)
	for _, br := range c.Branches {
		if br.Condition != nil {
			br.Condition = symbolic.Subs(br.Condition, symrepl)
		}
		br.Body.ReplaceMetaAccesses(repl)
	}
}

// MetaFreeSymbols returns names read by the branch conditions.
func (c *CondRegion) MetaFreeSymbols() map[string]struct{} {
	out := map[string]struct{}{}
	for _, br := range c.Branches {
		for s := range symbolic.FreeSymbols(br.Condition) {
			out[s] = struct{}{}
		}
	}
	return out
}

// MetaReadMemlets returns data accesses performed by branch conditions.
func (c *CondRegion) MetaReadMemlets(arrays map[string]*Data) []*Memlet {
	var out []*Memlet
	for _, br := range c.Branches {
		out = append(out, readMemletsOf(br.Condition, arrays)...)
	}
	return out
}

// dropIdentity removes old == new pairs; substituting a name with itself is
// a guaranteed no-op, not a same-value write.
func dropIdentity(repl map[string]string) map[string]string {
	clean := true
	for k, v := range repl {
		if k == v {
			clean = false
			break
		}
	}
	if clean {
		return repl
	}
	out := make(map[string]string, len(repl))
	for k, v := range repl {
		if k != v {
			out[k] = v
		}
	}
	return out
}

// exprRepl parses replacement values once, as expressions.
func exprRepl(repl map[string]string) map[string]symbolic.Expr {
	out := make(map[string]symbolic.Expr, len(repl))
	for k, v := range repl {
		out[k] = symbolic.ParseOrOpaque(v)
	}
	return out
}
