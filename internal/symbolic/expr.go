// Package symbolic provides the small expression algebra the IR relies on:
// parsing, free-variable extraction, simultaneous substitution, constant
// folding, structural equality, and numeric evaluation. Expressions are
// immutable; every rewrite returns a new tree (or the original, unchanged).
package symbolic

import (
	"fmt"
	"strconv"
	"strings"
)

// Expr is a parsed symbolic expression.
type Expr interface {
	// String renders the expression in source form.
	String() string
	isExpr()
}

// Num is a numeric literal. Integer literals keep exact int64 values so that
// range arithmetic folds without floating-point noise.
type Num struct {
	Int     int64
	Float   float64
	IsFloat bool
}

// Sym is a plain identifier reference.
type Sym struct {
	Name string
}

// Attr is a member access, base.Name. Chains of Attr over a Sym form dotted
// names (struct.field.subfield).
type Attr struct {
	Base Expr
	Name string
}

// Index is a subscript, Base[Args...]. Slice arguments are allowed.
type Index struct {
	Base Expr
	Args []Expr
}

// Slice is a half-open lo:hi range, valid only inside Index arguments.
type Slice struct {
	Lo, Hi Expr
}

// Call is a function application with a fixed callee name.
type Call struct {
	Fn   string
	Args []Expr
}

// Unary is a prefix operator application ("-" or "not").
type Unary struct {
	Op string
	X  Expr
}

// Binary is an infix operator application.
type Binary struct {
	Op   string
	L, R Expr
}

// Opaque wraps text that could not be parsed. All rewrites pass it through
// unchanged; it renders verbatim.
type Opaque struct {
	Text string
}

func (*Num) isExpr()    {}
func (*Sym) isExpr()    {}
func (*Attr) isExpr()   {}
func (*Index) isExpr()  {}
func (*Slice) isExpr()  {}
func (*Call) isExpr()   {}
func (*Unary) isExpr()  {}
func (*Binary) isExpr() {}
func (*Opaque) isExpr() {}

// NewInt returns an integer literal.
func NewInt(v int64) *Num { return &Num{Int: v} }

// NewFloat returns a floating-point literal.
func NewFloat(v float64) *Num { return &Num{Float: v, IsFloat: true} }

// NewSym returns a symbol reference. Dotted names become Attr chains.
func NewSym(name string) Expr {
	parts := strings.Split(name, ".")
	var e Expr = &Sym{Name: parts[0]}
	for _, p := range parts[1:] {
		e = &Attr{Base: e, Name: p}
	}
	return e
}

func (n *Num) String() string {
	if n.IsFloat {
		return strconv.FormatFloat(n.Float, 'g', -1, 64)
	}
	return strconv.FormatInt(n.Int, 10)
}

func (s *Sym) String() string { return s.Name }

func (a *Attr) String() string { return a.Base.String() + "." + a.Name }

func (x *Index) String() string {
	args := make([]string, len(x.Args))
	for i, a := range x.Args {
		args[i] = a.String()
	}
	return wrap(x.Base, precPostfix) + "[" + strings.Join(args, ", ") + "]"
}

func (s *Slice) String() string { return s.Lo.String() + ":" + s.Hi.String() }

func (c *Call) String() string {
	args := make([]string, len(c.Args))
	for i, a := range c.Args {
		args[i] = a.String()
	}
	return c.Fn + "(" + strings.Join(args, ", ") + ")"
}

func (u *Unary) String() string {
	if u.Op == "not" {
		return "not " + wrap(u.X, precUnary)
	}
	return u.Op + wrap(u.X, precUnary)
}

func (b *Binary) String() string {
	p := opPrec(b.Op)
	// Right side binds one level tighter for left-associative operators.
	return wrap(b.L, p) + " " + b.Op + " " + wrapRight(b.R, p)
}

func (o *Opaque) String() string { return o.Text }

// Operator precedence levels, loosest first.
const (
	precOr = iota + 1
	precAnd
	precNot
	precCmp
	precAdd
	precMul
	precUnary
	precPow
	precPostfix
	precAtom
)

func opPrec(op string) int {
	switch op {
	case "or":
		return precOr
	case "and":
		return precAnd
	case "<", "<=", ">", ">=", "==", "!=":
		return precCmp
	case "+", "-":
		return precAdd
	case "*", "/", "//", "%":
		return precMul
	case "**":
		return precPow
	}
	return precAtom
}

func exprPrec(e Expr) int {
	switch t := e.(type) {
	case *Binary:
		return opPrec(t.Op)
	case *Unary:
		if t.Op == "not" {
			return precNot
		}
		return precUnary
	case *Opaque:
		return precOr // always parenthesize opaque text in context
	default:
		return precAtom
	}
}

func wrap(e Expr, outer int) string {
	if exprPrec(e) < outer {
		return "(" + e.String() + ")"
	}
	return e.String()
}

func wrapRight(e Expr, outer int) string {
	if exprPrec(e) <= outer {
		if b, ok := e.(*Binary); ok && opPrec(b.Op) == outer {
			return "(" + e.String() + ")"
		}
	}
	return wrap(e, outer)
}

// DottedName returns the dotted-name form of e ("a.b.c") if e is a symbol or
// a pure attribute chain over one, and reports whether it is.
func DottedName(e Expr) (string, bool) {
	switch t := e.(type) {
	case *Sym:
		return t.Name, true
	case *Attr:
		base, ok := DottedName(t.Base)
		if !ok {
			return "", false
		}
		return base + "." + t.Name, true
	}
	return "", false
}

// AsInt reports the exact integer value of e if it is an integer literal.
func AsInt(e Expr) (int64, bool) {
	if n, ok := e.(*Num); ok && !n.IsFloat {
		return n.Int, true
	}
	return 0, false
}

// IsZero reports whether e is the literal 0.
func IsZero(e Expr) bool {
	v, ok := AsInt(e)
	return ok && v == 0
}

// IsOne reports whether e is the literal 1.
func IsOne(e Expr) bool {
	v, ok := AsInt(e)
	return ok && v == 1
}

func errorf(format string, args ...any) error {
	return fmt.Errorf("symbolic: "+format, args...)
}
