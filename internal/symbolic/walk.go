package symbolic

// Walk calls fn for e and every sub-expression of e, parents first. If fn
// returns false the children of that expression are skipped.
func Walk(e Expr, fn func(Expr) bool) {
	if e == nil || !fn(e) {
		return
	}
	switch t := e.(type) {
	case *Attr:
		Walk(t.Base, fn)
	case *Index:
		Walk(t.Base, fn)
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *Slice:
		Walk(t.Lo, fn)
		Walk(t.Hi, fn)
	case *Call:
		for _, a := range t.Args {
			Walk(a, fn)
		}
	case *Unary:
		Walk(t.X, fn)
	case *Binary:
		Walk(t.L, fn)
		Walk(t.R, fn)
	}
}
