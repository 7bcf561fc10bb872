package symbolic

import (
	"math"
)

// FreeSymbols returns the set of variable names that occur free in e.
// Dotted member chains contribute every prefix: a.b.c yields a, a.b, and
// a.b.c, so that a rename of the prefix name is visible to callers.
func FreeSymbols(e Expr) map[string]struct{} {
	out := map[string]struct{}{}
	collectFree(e, out)
	return out
}

func collectFree(e Expr, out map[string]struct{}) {
	switch t := e.(type) {
	case *Num, *Opaque, nil:
	case *Sym:
		out[t.Name] = struct{}{}
	case *Attr:
		if name, ok := DottedName(t); ok {
			out[name] = struct{}{}
		}
		collectFree(t.Base, out)
	case *Index:
		collectFree(t.Base, out)
		for _, a := range t.Args {
			collectFree(a, out)
		}
	case *Slice:
		collectFree(t.Lo, out)
		collectFree(t.Hi, out)
	case *Call:
		for _, a := range t.Args {
			collectFree(a, out)
		}
	case *Unary:
		collectFree(t.X, out)
	case *Binary:
		collectFree(t.L, out)
		collectFree(t.R, out)
	}
}

// Subs substitutes free variables of e according to repl, simultaneously:
// {a: b, b: a} swaps a and b and never chains one replacement into another.
// If no free variable of e appears in repl, e is returned unchanged (the
// identical value, not a copy).
func Subs(e Expr, repl map[string]Expr) Expr {
	if e == nil || len(repl) == 0 {
		return e
	}
	// Cheap relevance filter, mirroring free-symbol pre-checks upstream.
	free := FreeSymbols(e)
	relevant := false
	for name := range repl {
		if _, ok := free[name]; ok {
			relevant = true
			break
		}
	}
	if !relevant {
		return e
	}
	out, _ := subs(e, repl)
	return out
}

// subs rebuilds e in a single pass; replacement subtrees are inserted as-is
// and never re-visited, which is what makes the substitution simultaneous.
func subs(e Expr, repl map[string]Expr) (Expr, bool) {
	switch t := e.(type) {
	case *Num, *Opaque, nil:
		return e, false
	case *Sym:
		if r, ok := repl[t.Name]; ok {
			return r, true
		}
		return e, false
	case *Attr:
		// Whole dotted name first, then the longest replaced prefix with the
		// remaining members re-applied on top.
		if name, ok := DottedName(t); ok {
			if r, found := repl[name]; found {
				return r, true
			}
			if r, suffix, found := replacedPrefix(name, repl); found {
				var out Expr = r
				for _, part := range suffix {
					out = &Attr{Base: out, Name: part}
				}
				return out, true
			}
			return e, false
		}
		base, changed := subs(t.Base, repl)
		if !changed {
			return e, false
		}
		return &Attr{Base: base, Name: t.Name}, true
	case *Index:
		base, bc := subs(t.Base, repl)
		args, ac := subsList(t.Args, repl)
		if !bc && !ac {
			return e, false
		}
		return &Index{Base: base, Args: args}, true
	case *Slice:
		lo, lc := subs(t.Lo, repl)
		hi, hc := subs(t.Hi, repl)
		if !lc && !hc {
			return e, false
		}
		return &Slice{Lo: lo, Hi: hi}, true
	case *Call:
		args, changed := subsList(t.Args, repl)
		if !changed {
			return e, false
		}
		return &Call{Fn: t.Fn, Args: args}, true
	case *Unary:
		x, changed := subs(t.X, repl)
		if !changed {
			return e, false
		}
		return &Unary{Op: t.Op, X: x}, true
	case *Binary:
		l, lc := subs(t.L, repl)
		r, rc := subs(t.R, repl)
		if !lc && !rc {
			return e, false
		}
		return &Binary{Op: t.Op, L: l, R: r}, true
	}
	return e, false
}

func subsList(in []Expr, repl map[string]Expr) ([]Expr, bool) {
	changed := false
	out := make([]Expr, len(in))
	for i, a := range in {
		na, c := subs(a, repl)
		out[i] = na
		changed = changed || c
	}
	if !changed {
		return in, false
	}
	return out, true
}

// replacedPrefix finds the longest dotted prefix of name present in repl and
// returns the replacement plus the remaining member parts.
func replacedPrefix(name string, repl map[string]Expr) (Expr, []string, bool) {
	parts := splitDots(name)
	for cut := len(parts) - 1; cut >= 1; cut-- {
		prefix := joinDots(parts[:cut])
		if r, ok := repl[prefix]; ok {
			return r, parts[cut:], true
		}
	}
	return nil, nil, false
}

func splitDots(s string) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '.' {
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

func joinDots(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "." + p
	}
	return out
}

// SubsNames is Subs with string replacement values, parsing each value as an
// expression (or an opaque literal when unparseable).
func SubsNames(e Expr, repl map[string]string) Expr {
	m := make(map[string]Expr, len(repl))
	for k, v := range repl {
		m[k] = ParseOrOpaque(v)
	}
	return Subs(e, m)
}

// Simplify folds constants and trivial identities. It never changes the
// value of the expression; it is not a full canonicalizer.
func Simplify(e Expr) Expr {
	switch t := e.(type) {
	case *Unary:
		x := Simplify(t.X)
		if n, ok := x.(*Num); ok && t.Op == "-" {
			if n.IsFloat {
				return NewFloat(-n.Float)
			}
			return NewInt(-n.Int)
		}
		if x == t.X {
			return e
		}
		return &Unary{Op: t.Op, X: x}
	case *Binary:
		l := Simplify(t.L)
		r := Simplify(t.R)
		if out, ok := foldBinary(t.Op, l, r); ok {
			return out
		}
		if l == t.L && r == t.R {
			return e
		}
		return &Binary{Op: t.Op, L: l, R: r}
	case *Index:
		base := Simplify(t.Base)
		args, changed := simplifyList(t.Args)
		if base == t.Base && !changed {
			return e
		}
		return &Index{Base: base, Args: args}
	case *Slice:
		lo, hi := Simplify(t.Lo), Simplify(t.Hi)
		if lo == t.Lo && hi == t.Hi {
			return e
		}
		return &Slice{Lo: lo, Hi: hi}
	case *Call:
		args, changed := simplifyList(t.Args)
		if t.Fn == "floor" && len(args) == 1 {
			if n, ok := args[0].(*Num); ok {
				if !n.IsFloat {
					return n
				}
				return NewInt(int64(math.Floor(n.Float)))
			}
		}
		if !changed {
			return e
		}
		return &Call{Fn: t.Fn, Args: args}
	default:
		return e
	}
}

func simplifyList(in []Expr) ([]Expr, bool) {
	changed := false
	out := make([]Expr, len(in))
	for i, a := range in {
		out[i] = Simplify(a)
		changed = changed || out[i] != a
	}
	if !changed {
		return in, false
	}
	return out, true
}

func foldBinary(op string, l, r Expr) (Expr, bool) {
	ln, lok := l.(*Num)
	rn, rok := r.(*Num)
	if lok && rok && !ln.IsFloat && !rn.IsFloat {
		a, b := ln.Int, rn.Int
		switch op {
		case "+":
			return NewInt(a + b), true
		case "-":
			return NewInt(a - b), true
		case "*":
			return NewInt(a * b), true
		case "/":
			if b != 0 && a%b == 0 {
				return NewInt(a / b), true
			}
		case "//":
			if b != 0 {
				return NewInt(floorDiv(a, b)), true
			}
		case "%":
			if b != 0 {
				return NewInt(a - floorDiv(a, b)*b), true
			}
		}
	}
	// Fold chained numeric terms: (x + a) + b, (x - a) + b, and the "-"
	// variants combine into one term.
	if rok && !rn.IsFloat && (op == "+" || op == "-") {
		if lb, isBin := l.(*Binary); isBin && (lb.Op == "+" || lb.Op == "-") {
			if lr, isNum := lb.R.(*Num); isNum && !lr.IsFloat {
				a := lr.Int
				if lb.Op == "-" {
					a = -a
				}
				b := rn.Int
				if op == "-" {
					b = -b
				}
				switch c := a + b; {
				case c == 0:
					return lb.L, true
				case c > 0:
					return &Binary{Op: "+", L: lb.L, R: NewInt(c)}, true
				default:
					return &Binary{Op: "-", L: lb.L, R: NewInt(-c)}, true
				}
			}
		}
	}
	switch op {
	case "+":
		if IsZero(l) {
			return r, true
		}
		if IsZero(r) {
			return l, true
		}
	case "-":
		if IsZero(r) {
			return l, true
		}
		if rendersEqual(l, r) {
			return NewInt(0), true
		}
	case "*":
		if IsZero(l) || IsZero(r) {
			return NewInt(0), true
		}
		if IsOne(l) {
			return r, true
		}
		if IsOne(r) {
			return l, true
		}
	case "/", "//":
		if IsOne(r) {
			return l, true
		}
		if IsZero(l) {
			return NewInt(0), true
		}
	}
	return nil, false
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func rendersEqual(a, b Expr) bool {
	return a.String() == b.String()
}

// Equal reports whether a and b are equal expressions: structurally equal
// after simplification, or with a difference that folds to zero.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == b
	}
	sa, sb := Simplify(a), Simplify(b)
	if rendersEqual(sa, sb) {
		return true
	}
	diff := Simplify(&Binary{Op: "-", L: sa, R: sb})
	return IsZero(diff)
}

// Env binds names for numeric evaluation. Vectors are indexable through
// single-element subscripts.
type Env struct {
	Scalars map[string]float64
	Vectors map[string][]float64
}

// Eval numerically evaluates e under env. Comparisons and boolean operators
// yield 1 or 0. Used by tests, not by rewrites.
func Eval(e Expr, env Env) (float64, error) {
	switch t := e.(type) {
	case *Num:
		if t.IsFloat {
			return t.Float, nil
		}
		return float64(t.Int), nil
	case *Sym:
		if v, ok := env.Scalars[t.Name]; ok {
			return v, nil
		}
		return 0, errorf("unbound symbol %q", t.Name)
	case *Index:
		name, ok := DottedName(t.Base)
		if !ok || len(t.Args) != 1 {
			return 0, errorf("cannot evaluate subscript %q", e.String())
		}
		vec, ok := env.Vectors[name]
		if !ok {
			return 0, errorf("unbound array %q", name)
		}
		idx, err := Eval(t.Args[0], env)
		if err != nil {
			return 0, err
		}
		i := int(idx)
		if i < 0 || i >= len(vec) {
			return 0, errorf("index %d out of range for %q", i, name)
		}
		return vec[i], nil
	case *Call:
		if len(t.Args) == 1 {
			v, err := Eval(t.Args[0], env)
			if err != nil {
				return 0, err
			}
			switch t.Fn {
			case "floor":
				return math.Floor(v), nil
			case "ceil":
				return math.Ceil(v), nil
			case "int":
				return math.Trunc(v), nil
			}
		}
		return 0, errorf("cannot evaluate call %q", e.String())
	case *Unary:
		v, err := Eval(t.X, env)
		if err != nil {
			return 0, err
		}
		switch t.Op {
		case "-":
			return -v, nil
		case "not":
			return boolVal(v == 0), nil
		}
		return 0, errorf("cannot evaluate operator %q", t.Op)
	case *Binary:
		l, err := Eval(t.L, env)
		if err != nil {
			return 0, err
		}
		r, err := Eval(t.R, env)
		if err != nil {
			return 0, err
		}
		switch t.Op {
		case "+":
			return l + r, nil
		case "-":
			return l - r, nil
		case "*":
			return l * r, nil
		case "/":
			return l / r, nil
		case "//":
			return math.Floor(l / r), nil
		case "%":
			return l - math.Floor(l/r)*r, nil
		case "**":
			return math.Pow(l, r), nil
		case "<":
			return boolVal(l < r), nil
		case "<=":
			return boolVal(l <= r), nil
		case ">":
			return boolVal(l > r), nil
		case ">=":
			return boolVal(l >= r), nil
		case "==":
			return boolVal(l == r), nil
		case "!=":
			return boolVal(l != r), nil
		case "and":
			return boolVal(l != 0 && r != 0), nil
		case "or":
			return boolVal(l != 0 || r != 0), nil
		}
		return 0, errorf("cannot evaluate operator %q", t.Op)
	}
	return 0, errorf("cannot evaluate %q", e.String())
}

func boolVal(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
