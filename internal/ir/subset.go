package ir

import (
	"strings"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

// RangeDim is one half-open dimension [Start, End) of an access subset.
// A single-index access i is stored as [i, i+1).
type RangeDim struct {
	Start, End symbolic.Expr
}

// NumElements returns End - Start, simplified.
func (r RangeDim) NumElements() symbolic.Expr {
	return symbolic.Simplify(&symbolic.Binary{Op: "-", L: r.End, R: r.Start})
}

// IsIndex reports whether the dimension selects exactly one element.
func (r RangeDim) IsIndex() bool {
	return symbolic.IsOne(r.NumElements())
}

func (r RangeDim) String() string {
	if r.IsIndex() {
		return r.Start.String()
	}
	return r.Start.String() + ":" + r.End.String()
}

// Subset is a per-dimension set of integer ranges, possibly symbolic.
type Subset struct {
	Dims []RangeDim
}

// NewIndexSubset builds a subset selecting a single element per dimension.
func NewIndexSubset(indices ...symbolic.Expr) *Subset {
	s := &Subset{}
	for _, ix := range indices {
		s.Dims = append(s.Dims, RangeDim{
			Start: ix,
			End:   symbolic.Simplify(&symbolic.Binary{Op: "+", L: ix, R: symbolic.NewInt(1)}),
		})
	}
	return s
}

// FullSubset covers an entire shape: 0:d for every dimension d.
func FullSubset(shape []symbolic.Expr) *Subset {
	s := &Subset{}
	for _, dim := range shape {
		s.Dims = append(s.Dims, RangeDim{Start: symbolic.NewInt(0), End: dim})
	}
	// Scalars get a single degenerate dimension.
	if len(shape) == 0 {
		s.Dims = append(s.Dims, RangeDim{Start: symbolic.NewInt(0), End: symbolic.NewInt(1)})
	}
	return s
}

// SubsetFromString parses "i", "0:N" or "i, 0:N" style subsets.
func SubsetFromString(src string) (*Subset, error) {
	s := &Subset{}
	for _, part := range strings.Split(src, ",") {
		part = strings.TrimSpace(part)
		if lo, hi, ok := strings.Cut(part, ":"); ok {
			start, err := symbolic.Parse(lo)
			if err != nil {
				return nil, err
			}
			end, err := symbolic.Parse(hi)
			if err != nil {
				return nil, err
			}
			s.Dims = append(s.Dims, RangeDim{Start: start, End: end})
			continue
		}
		ix, err := symbolic.Parse(part)
		if err != nil {
			return nil, err
		}
		s.Dims = append(s.Dims, NewIndexSubset(ix).Dims[0])
	}
	return s, nil
}

// subsetFromArgs converts parsed subscript arguments (Slice or index
// expressions) into a subset.
func subsetFromArgs(args []symbolic.Expr) *Subset {
	s := &Subset{}
	for _, a := range args {
		if sl, ok := a.(*symbolic.Slice); ok {
			s.Dims = append(s.Dims, RangeDim{Start: sl.Lo, End: sl.Hi})
			continue
		}
		s.Dims = append(s.Dims, NewIndexSubset(a).Dims[0])
	}
	return s
}

// Clone returns a copy of the subset. Dimension expressions are shared; they
// are immutable.
func (s *Subset) Clone() *Subset {
	if s == nil {
		return nil
	}
	c := &Subset{Dims: make([]RangeDim, len(s.Dims))}
	copy(c.Dims, s.Dims)
	return c
}

// NumElements returns the total element count, simplified.
func (s *Subset) NumElements() symbolic.Expr {
	if s == nil || len(s.Dims) == 0 {
		return symbolic.NewInt(1)
	}
	var total symbolic.Expr = symbolic.NewInt(1)
	for _, d := range s.Dims {
		total = &symbolic.Binary{Op: "*", L: total, R: d.NumElements()}
	}
	return symbolic.Simplify(total)
}

// Equals reports per-dimension symbolic equality.
func (s *Subset) Equals(o *Subset) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.Dims) != len(o.Dims) {
		return false
	}
	for i := range s.Dims {
		if !symbolic.Equal(s.Dims[i].Start, o.Dims[i].Start) ||
			!symbolic.Equal(s.Dims[i].End, o.Dims[i].End) {
			return false
		}
	}
	return true
}

// FreeSymbols returns the symbols the subset depends on.
func (s *Subset) FreeSymbols() map[string]struct{} {
	out := map[string]struct{}{}
	if s == nil {
		return out
	}
	for _, d := range s.Dims {
		for name := range symbolic.FreeSymbols(d.Start) {
			out[name] = struct{}{}
		}
		for name := range symbolic.FreeSymbols(d.End) {
			out[name] = struct{}{}
		}
	}
	return out
}

func (s *Subset) String() string {
	if s == nil {
		return ""
	}
	parts := make([]string, len(s.Dims))
	for i, d := range s.Dims {
		parts[i] = d.String()
	}
	return strings.Join(parts, ", ")
}

// Append extends the subset with the dimensions of another.
func (s *Subset) Append(o *Subset) {
	s.Dims = append(s.Dims, o.Dims...)
}
