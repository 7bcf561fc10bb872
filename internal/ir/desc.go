package ir

import (
	"github.com/dusk-indust/dfir/internal/symbolic"
)

// Data is a descriptor for a named array or scalar: its shape (empty for
// scalars, possibly symbolic otherwise), element type, storage class,
// transient flag, and allocation lifetime.
type Data struct {
	Shape     []symbolic.Expr
	Dtype     Typeclass
	Storage   StorageType
	Transient bool
	Lifetime  AllocationLifetime
}

// NewArray builds an array descriptor with default storage and lifetime.
func NewArray(shape []symbolic.Expr, dtype Typeclass) *Data {
	return &Data{Shape: shape, Dtype: dtype, Storage: StorageDefault, Lifetime: LifetimeScope}
}

// NewScalar builds a scalar descriptor.
func NewScalar(dtype Typeclass) *Data {
	return &Data{Dtype: dtype, Storage: StorageDefault, Lifetime: LifetimeScope}
}

// IsScalar reports whether the descriptor has no dimensions.
func (d *Data) IsScalar() bool { return len(d.Shape) == 0 }

// IsPseudoScalar reports whether the descriptor is a size-one array, which
// device-placement analysis treats like a scalar.
func (d *Data) IsPseudoScalar() bool {
	if len(d.Shape) != 1 {
		return false
	}
	return symbolic.IsOne(symbolic.Simplify(d.Shape[0]))
}

// Clone returns a deep copy of the descriptor. Shape expressions are shared;
// they are immutable.
func (d *Data) Clone() *Data {
	c := *d
	c.Shape = make([]symbolic.Expr, len(d.Shape))
	copy(c.Shape, d.Shape)
	return &c
}

// TotalSize returns the element count as a symbolic expression.
func (d *Data) TotalSize() symbolic.Expr {
	if d.IsScalar() {
		return symbolic.NewInt(1)
	}
	var total symbolic.Expr = symbolic.NewInt(1)
	for _, dim := range d.Shape {
		total = &symbolic.Binary{Op: "*", L: total, R: dim}
	}
	return symbolic.Simplify(total)
}

// FreeSymbols returns the symbols the shape depends on.
func (d *Data) FreeSymbols() map[string]struct{} {
	out := map[string]struct{}{}
	for _, dim := range d.Shape {
		for s := range symbolic.FreeSymbols(dim) {
			out[s] = struct{}{}
		}
	}
	return out
}

// Properties exposes the descriptor's rewritable attributes.
func (d *Data) Properties() []Property {
	return []Property{
		{
			Name: "shape",
			Kind: RangeProperty,
			Get:  func() any { return d.Shape },
			Set:  func(v any) { d.Shape = v.([]symbolic.Expr) },
		},
		{
			Name: "storage",
			Kind: PlainProperty,
			Get:  func() any { return d.Storage },
			Set:  func(v any) { d.Storage = v.(StorageType) },
		},
	}
}
