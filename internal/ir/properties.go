package ir

// PropertyKind classifies how a property value must be interpreted by
// generic passes. The set is closed: the substitution engine switches
// exhaustively over it, so a new node type only has to tag its attributes
// with the right kind to be rewritable.
type PropertyKind int

const (
	// PlainProperty values are opaque to substitution.
	PlainProperty PropertyKind = iota
	// SymbolicProperty values are symbolic.Expr (or nil).
	SymbolicProperty
	// DataNameProperty values are descriptor-name strings.
	DataNameProperty
	// RangeProperty values are *Subset or []symbolic.Expr shapes.
	RangeProperty
	// CodeProperty values are *CodeBlock.
	CodeProperty
	// SymbolMappingProperty values are map[string]symbolic.Expr, the
	// outer-to-inner bindings of a nested graph.
	SymbolMappingProperty
)

// Property is one named, typed attribute of a node or edge. Get and Set
// close over the owning value so generic passes can rewrite in place.
type Property struct {
	Name string
	Kind PropertyKind
	Get  func() any
	Set  func(any)
}

// Propertied is the single extension point a node or edge type implements
// to stay compatible with generic passes.
type Propertied interface {
	Properties() []Property
}
