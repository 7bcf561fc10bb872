package xform

import (
	"github.com/dusk-indust/dfir/internal/ir"
)

// ApplyOnce finds the first applicable match of t and applies it. Returns
// whether a rewrite happened. Rewrites run strictly one at a time; the
// graph is mutated in place.
func ApplyOnce(g *ir.Graph, t Transformation, permissive bool) (bool, error) {
	for _, pg := range t.Expressions() {
		for _, m := range FindMatches(g, pg) {
			if !t.CanBeApplied(m, g, permissive) {
				continue
			}
			if err := t.Apply(m, g); err != nil {
				return false, err
			}
			if !t.AnnotatesMemlets() {
				ir.PropagateMemlets(g)
			}
			return true, nil
		}
	}
	return false, nil
}

// ApplyRepeated applies t until no match remains or limit applications
// were made (limit <= 0 means no limit). Returns the application count.
func ApplyRepeated(g *ir.Graph, t Transformation, permissive bool, limit int) (int, error) {
	applied := 0
	for limit <= 0 || applied < limit {
		ok, err := ApplyOnce(g, t, permissive)
		if err != nil {
			return applied, err
		}
		if !ok {
			break
		}
		applied++
	}
	return applied, nil
}
