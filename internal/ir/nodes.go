package ir

import (
	"github.com/google/uuid"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

// Node is a dataflow-graph node. Every node carries a stable GUID (used by
// configuration overrides) and named input/output connectors.
type Node interface {
	Propertied
	GUID() string
	Label() string
	InConnectors() map[string]Typeclass
	OutConnectors() map[string]Typeclass
	AddInConnector(name string, t Typeclass)
	AddOutConnector(name string, t Typeclass)
}

type nodeBase struct {
	guid  string
	label string
	in    map[string]Typeclass
	out   map[string]Typeclass
}

func newNodeBase(label string) nodeBase {
	return nodeBase{
		guid:  uuid.NewString(),
		label: label,
		in:    map[string]Typeclass{},
		out:   map[string]Typeclass{},
	}
}

func (n *nodeBase) GUID() string                       { return n.guid }
func (n *nodeBase) Label() string                      { return n.label }
func (n *nodeBase) InConnectors() map[string]Typeclass { return n.in }
func (n *nodeBase) OutConnectors() map[string]Typeclass {
	return n.out
}
func (n *nodeBase) AddInConnector(name string, t Typeclass)  { n.in[name] = t }
func (n *nodeBase) AddOutConnector(name string, t Typeclass) { n.out[name] = t }

// --- Access nodes ---

// AccessNode references a named data descriptor for reading or writing.
type AccessNode struct {
	nodeBase
	Data string
}

// NewAccessNode builds an access node for the given descriptor name.
func NewAccessNode(data string) *AccessNode {
	return &AccessNode{nodeBase: newNodeBase(data), Data: data}
}

func (a *AccessNode) Label() string { return a.Data }

func (a *AccessNode) Properties() []Property {
	return []Property{
		{
			Name: "data",
			Kind: DataNameProperty,
			Get:  func() any { return a.Data },
			Set:  func(v any) { a.Data = v.(string) },
		},
	}
}

// --- Code nodes ---

// CodeBlock is an opaque scalar computation in an embedded dialect.
type CodeBlock struct {
	Code     string
	Language Language
}

// CodeNode is a node carrying executable code: tasklets and nested graphs.
type CodeNode interface {
	Node
	codeNode()
}

// Tasklet holds a scalar computation. IgnoredSymbols lists identifiers in
// the code that must not be treated as free reads.
type Tasklet struct {
	nodeBase
	Code           CodeBlock
	IgnoredSymbols map[string]struct{}
}

// NewTasklet builds a tasklet with the given connectors and code body in
// the native dialect.
func NewTasklet(label string, ins, outs []string, code string) *Tasklet {
	t := &Tasklet{nodeBase: newNodeBase(label), IgnoredSymbols: map[string]struct{}{}}
	t.Code = CodeBlock{Code: code, Language: LangPython}
	for _, c := range ins {
		t.AddInConnector(c, "")
	}
	for _, c := range outs {
		t.AddOutConnector(c, "")
	}
	return t
}

func (*Tasklet) codeNode() {}

func (t *Tasklet) Properties() []Property {
	return []Property{
		{
			Name: "code",
			Kind: CodeProperty,
			Get:  func() any { return &t.Code },
			Set:  func(v any) { t.Code = *(v.(*CodeBlock)) },
		},
	}
}

// --- Scopes ---

// EntryNode opens a scope; ExitNode closes it. Map scopes are the only kind
// transformations support; consume scopes exist in the model but are
// rejected by passes that cannot handle them.
type EntryNode interface {
	Node
	scopeEntry()
}

// ExitNode closes the scope opened by its paired EntryNode.
type ExitNode interface {
	Node
	scopeExit()
}

// MapScope is the shared descriptor of a parallel iteration scope: named
// index parameters with one range dimension each, and a schedule.
type MapScope struct {
	LabelName string
	Params    []string
	Ranges    *Subset // one dimension per parameter
	Schedule  ScheduleType
}

// MapEntry delimits the start of a parallel map scope.
type MapEntry struct {
	nodeBase
	Map *MapScope
}

// MapExit delimits the end of a parallel map scope.
type MapExit struct {
	nodeBase
	Map *MapScope
}

// NewMap builds a paired map entry and exit sharing one MapScope.
func NewMap(label string, params []string, ranges *Subset, schedule ScheduleType) (*MapEntry, *MapExit) {
	m := &MapScope{LabelName: label, Params: params, Ranges: ranges, Schedule: schedule}
	me := &MapEntry{nodeBase: newNodeBase(label + "_entry"), Map: m}
	mx := &MapExit{nodeBase: newNodeBase(label + "_exit"), Map: m}
	return me, mx
}

func (*MapEntry) scopeEntry() {}
func (*MapExit) scopeExit()   {}

// Properties exposes the shared map range through the entry node only, so a
// substitution pass visiting both entry and exit rewrites it exactly once.
func (e *MapEntry) Properties() []Property {
	return []Property{
		{
			Name: "range",
			Kind: RangeProperty,
			Get:  func() any { return e.Map.Ranges },
			Set:  func(v any) { e.Map.Ranges = v.(*Subset) },
		},
	}
}

func (x *MapExit) Properties() []Property { return nil }

// ConsumeScope is a stream-consumption scope. It exists so graphs carrying
// one are representable; no transformation in this package supports it.
type ConsumeScope struct {
	LabelName string
	NumPEs    symbolic.Expr
}

// ConsumeEntry opens a consume scope.
type ConsumeEntry struct {
	nodeBase
	Consume *ConsumeScope
}

// ConsumeExit closes a consume scope.
type ConsumeExit struct {
	nodeBase
	Consume *ConsumeScope
}

// NewConsume builds a paired consume entry and exit.
func NewConsume(label string, numPEs symbolic.Expr) (*ConsumeEntry, *ConsumeExit) {
	c := &ConsumeScope{LabelName: label, NumPEs: numPEs}
	ce := &ConsumeEntry{nodeBase: newNodeBase(label + "_entry"), Consume: c}
	cx := &ConsumeExit{nodeBase: newNodeBase(label + "_exit"), Consume: c}
	return ce, cx
}

func (*ConsumeEntry) scopeEntry() {}
func (*ConsumeExit) scopeExit()   {}

func (c *ConsumeEntry) Properties() []Property {
	return []Property{
		{
			Name: "num_pes",
			Kind: SymbolicProperty,
			Get:  func() any { return c.Consume.NumPEs },
			Set:  func(v any) { c.Consume.NumPEs = v.(symbolic.Expr) },
		},
	}
}

func (c *ConsumeExit) Properties() []Property { return nil }

// --- Nested graphs and library nodes ---

// NestedGraph embeds an entire sub-graph. SymbolMapping binds outer
// expressions to the inner graph's symbol names; connectors are named after
// inner descriptor names.
type NestedGraph struct {
	nodeBase
	Graph         *Graph
	SymbolMapping map[string]symbolic.Expr // inner name -> outer expression
	Schedule      ScheduleType

	parentState *State // weak back-reference, set on insertion
}

// ParentState returns the state containing this node, or nil.
func (n *NestedGraph) ParentState() *State { return n.parentState }

// NewNestedGraph embeds g with the given input/output connector names.
func NewNestedGraph(g *Graph, inputs, outputs []string, symMap map[string]symbolic.Expr) *NestedGraph {
	if symMap == nil {
		symMap = map[string]symbolic.Expr{}
	}
	n := &NestedGraph{
		nodeBase:      newNodeBase(g.Name()),
		Graph:         g,
		SymbolMapping: symMap,
		Schedule:      ScheduleDefault,
	}
	for _, c := range inputs {
		n.AddInConnector(c, "")
	}
	for _, c := range outputs {
		n.AddOutConnector(c, "")
	}
	g.parent = n
	return n
}

func (*NestedGraph) codeNode() {}

func (n *NestedGraph) Properties() []Property {
	return []Property{
		{
			Name: "symbol_mapping",
			Kind: SymbolMappingProperty,
			Get:  func() any { return n.SymbolMapping },
			Set:  func(v any) { n.SymbolMapping = v.(map[string]symbolic.Expr) },
		},
	}
}

// LibraryNode is an opaque high-level operation (e.g. a matrix product)
// expanded by a backend outside this package.
type LibraryNode struct {
	nodeBase
	Op       string
	Schedule ScheduleType
}

// NewLibraryNode builds a library node for the named operation.
func NewLibraryNode(label, op string) *LibraryNode {
	return &LibraryNode{nodeBase: newNodeBase(label), Op: op, Schedule: ScheduleDefault}
}

func (l *LibraryNode) Properties() []Property { return nil }
