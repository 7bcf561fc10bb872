package ir

import (
	"fmt"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

// Memlet is the payload of a dataflow edge: which descriptor moves, which
// subset of it, how many elements (symbolic), an optional reshaping subset
// for the other side of a copy, and a reduction operator for write-conflict
// resolution. An empty Memlet carries no data (a pure ordering edge).
type Memlet struct {
	Data        string
	Subset      *Subset
	OtherSubset *Subset
	Volume      symbolic.Expr // nil derives from Subset
	Dynamic     bool          // volume depends on runtime values
	WCR         ReductionOp
}

// NewMemlet parses a data-access expression such as "A_row[i]" or "x[0:N]"
// into a memlet. A bare name yields a memlet with no subset. Anything that
// is not a plain data access is an error.
func NewMemlet(src string) (*Memlet, error) {
	e, err := symbolic.Parse(src)
	if err != nil {
		return nil, err
	}
	switch t := e.(type) {
	case *symbolic.Sym:
		return &Memlet{Data: t.Name}, nil
	case *symbolic.Attr:
		name, ok := symbolic.DottedName(t)
		if !ok {
			return nil, fmt.Errorf("ir: %q is not a data access", src)
		}
		return &Memlet{Data: name}, nil
	case *symbolic.Index:
		name, ok := symbolic.DottedName(t.Base)
		if !ok {
			return nil, fmt.Errorf("ir: %q is not a data access", src)
		}
		return &Memlet{Data: name, Subset: subsetFromArgs(t.Args)}, nil
	}
	return nil, fmt.Errorf("ir: %q is not a data access", src)
}

// MustMemlet is NewMemlet for known-good literals; it panics on error.
func MustMemlet(src string) *Memlet {
	m, err := NewMemlet(src)
	if err != nil {
		panic(err)
	}
	return m
}

// MemletFromData covers an entire descriptor.
func MemletFromData(name string, d *Data) *Memlet {
	return &Memlet{Data: name, Subset: FullSubset(d.Shape), Volume: d.TotalSize()}
}

// NumElements returns the declared volume, or the subset's element count
// when no explicit volume is set.
func (m *Memlet) NumElements() symbolic.Expr {
	if m.Volume != nil {
		return m.Volume
	}
	return m.Subset.NumElements()
}

// IsEmpty reports whether the memlet moves no data.
func (m *Memlet) IsEmpty() bool { return m == nil || m.Data == "" }

// Clone returns a deep copy.
func (m *Memlet) Clone() *Memlet {
	if m == nil {
		return nil
	}
	c := *m
	c.Subset = m.Subset.Clone()
	c.OtherSubset = m.OtherSubset.Clone()
	return &c
}

func (m *Memlet) String() string {
	if m.IsEmpty() {
		return "(empty)"
	}
	if m.Subset == nil {
		return m.Data
	}
	return m.Data + "[" + m.Subset.String() + "]"
}

// FreeSymbols returns the symbols the subsets and volume depend on. The data
// name itself is not a symbol.
func (m *Memlet) FreeSymbols() map[string]struct{} {
	out := map[string]struct{}{}
	if m == nil {
		return out
	}
	for name := range m.Subset.FreeSymbols() {
		out[name] = struct{}{}
	}
	for name := range m.OtherSubset.FreeSymbols() {
		out[name] = struct{}{}
	}
	if m.Volume != nil {
		for name := range symbolic.FreeSymbols(m.Volume) {
			out[name] = struct{}{}
		}
	}
	return out
}

// Properties exposes the memlet's rewritable attributes to generic passes.
func (m *Memlet) Properties() []Property {
	return []Property{
		{
			Name: "data",
			Kind: DataNameProperty,
			Get:  func() any { return m.Data },
			Set:  func(v any) { m.Data = v.(string) },
		},
		{
			Name: "subset",
			Kind: RangeProperty,
			Get:  func() any { return m.Subset },
			Set:  func(v any) { m.Subset = v.(*Subset) },
		},
		{
			Name: "other_subset",
			Kind: RangeProperty,
			Get:  func() any { return m.OtherSubset },
			Set:  func(v any) { m.OtherSubset = v.(*Subset) },
		},
		{
			Name: "volume",
			Kind: SymbolicProperty,
			Get:  func() any { return m.Volume },
			Set:  func(v any) { m.Volume = v.(symbolic.Expr) },
		},
	}
}
