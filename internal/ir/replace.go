package ir

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/dusk-indust/dfir/internal/symbolic"
)

// replaceDataName applies the data-name substitution rule: exact match, or
// component-wise replacement of the prefix before the first dot.
func replaceDataName(name string, repl map[string]string) (string, bool) {
	if nn, ok := repl[name]; ok {
		return nn, true
	}
	if prefix, suffix, ok := cutDot(name); ok {
		if nn, found := repl[prefix]; found {
			return nn + "." + suffix, true
		}
	}
	return name, false
}

// ReplaceInState rewrites every occurrence of the mapped names inside one
// state: node properties and edge memlets. Refused rewrites (unsupported
// embedded dialects) are reported in the returned error; all other
// properties are still processed.
func ReplaceInState(st *State, repl map[string]string) error {
	repl = dropIdentity(repl)
	if len(repl) == 0 {
		return nil
	}
	symrepl := exprRepl(repl)

	var errs []error
	for _, n := range st.Nodes() {
		if err := replaceNodeProperties(n, repl, symrepl); err != nil {
			errs = append(errs, err)
		}
	}
	for _, e := range st.Edges() {
		replaceInMemlet(e.Data, repl, symrepl)
	}
	return errors.Join(errs...)
}

func replaceInMemlet(m *Memlet, repl map[string]string, symrepl map[string]symbolic.Expr) {
	if m.IsEmpty() {
		return
	}
	if nn, ok := replaceDataName(m.Data, repl); ok {
		m.Data = nn
	}
	m.Subset = replaceInSubset(m.Subset, symrepl)
	m.OtherSubset = replaceInSubset(m.OtherSubset, symrepl)
	if m.Volume != nil {
		m.Volume = symbolic.Subs(m.Volume, symrepl)
	}
}

func replaceInSubset(s *Subset, symrepl map[string]symbolic.Expr) *Subset {
	if s == nil {
		return nil
	}
	for i := range s.Dims {
		s.Dims[i].Start = symbolic.Subs(s.Dims[i].Start, symrepl)
		s.Dims[i].End = symbolic.Subs(s.Dims[i].End, symrepl)
	}
	return s
}

// ReplaceNodeProperties rewrites one node's properties under the mapping.
func ReplaceNodeProperties(n Node, repl map[string]string) error {
	repl = dropIdentity(repl)
	if len(repl) == 0 {
		return nil
	}
	return replaceNodeProperties(n, repl, exprRepl(repl))
}

// replaceNodeProperties dispatches on the property kind. The switch is
// exhaustive over PropertyKind: adding a kind without handling it here is
// a compile-visible omission during review, not a silent skip at runtime.
func replaceNodeProperties(n Node, repl map[string]string, symrepl map[string]symbolic.Expr) error {
	var errs []error
	for _, prop := range n.Properties() {
		switch prop.Kind {
		case PlainProperty:
			// Opaque to substitution.

		case SymbolicProperty:
			val, _ := prop.Get().(symbolic.Expr)
			if val == nil {
				continue
			}
			prop.Set(symbolic.Subs(val, symrepl))

		case DataNameProperty:
			name, _ := prop.Get().(string)
			if nn, ok := replaceDataName(name, repl); ok {
				prop.Set(nn)
			}

		case RangeProperty:
			switch v := prop.Get().(type) {
			case *Subset:
				prop.Set(replaceInSubset(v, symrepl))
			case []symbolic.Expr:
				out := make([]symbolic.Expr, len(v))
				for i, e := range v {
					out[i] = symbolic.Subs(e, symrepl)
				}
				prop.Set(out)
			}

		case CodeProperty:
			cb, _ := prop.Get().(*CodeBlock)
			if cb == nil || cb.Code == "" {
				continue
			}
			// Connector-bound identifiers shadow outer names of the same
			// spelling and must not be rewritten.
			reduced := repl
			if len(n.InConnectors()) > 0 || len(n.OutConnectors()) > 0 {
				reduced = make(map[string]string, len(repl))
				for k, v := range repl {
					if _, ok := n.InConnectors()[k]; ok {
						continue
					}
					if _, ok := n.OutConnectors()[k]; ok {
						continue
					}
					reduced[k] = v
				}
			}
			if len(reduced) == 0 {
				continue
			}
			t, _ := n.(*Tasklet)
			if err := ReplaceInCodeBlock(cb, reduced, t); err != nil {
				errs = append(errs, err)
			}
			prop.Set(cb)

		case SymbolMappingProperty:
			mapping, _ := prop.Get().(map[string]symbolic.Expr)
			for sym, val := range mapping {
				// Values that are not expression-like are tolerated and
				// left unchanged; Subs passes Opaque through.
				mapping[sym] = symbolic.Subs(val, symrepl)
			}
		}
	}
	return errors.Join(errs...)
}

// ReplaceInCodeBlock rewrites name occurrences inside an embedded code
// body. The native dialect is rewritten through an AST identifier visitor.
// Foreign imperative dialects cannot be parsed safely as expressions, so a
// local shadow binding per replaced name is prepended instead, and the name
// is recorded on the tasklet as no longer being a free read. Any other
// dialect is refused with an error.
func ReplaceInCodeBlock(cb *CodeBlock, repl map[string]string, t *Tasklet) error {
	repl = dropIdentity(repl)
	if len(repl) == 0 || cb.Code == "" {
		return nil
	}

	if cb.Language == LangPython {
		return renameInNativeCode(cb, repl)
	}

	if !foreignDialect(cb.Language) {
		err := fmt.Errorf("ir: replacement of %v not made for code in unsupported dialect %q",
			sortedKeys(repl), cb.Language)
		log.Printf("WARNING: %v", err)
		return err
	}

	spans, err := codeIdentifiers(cb)
	if err != nil {
		return err
	}
	present := map[string]struct{}{}
	for _, sp := range spans {
		present[sp.name] = struct{}{}
	}

	prefix := ""
	shadowed := map[string]struct{}{}
	for _, name := range sortedKeys(repl) {
		if _, ok := present[name]; !ok {
			continue
		}
		binding, err := shadowBinding(cb.Language, name, repl[name])
		if err != nil {
			return err
		}
		prefix = binding + prefix
		shadowed[name] = struct{}{}
	}
	if prefix == "" {
		return nil
	}
	cb.Code = prefix + cb.Code
	if t != nil {
		// The shadowed names are locally bound now; they no longer exist
		// as free reads of the tasklet.
		for name := range shadowed {
			t.IgnoredSymbols[name] = struct{}{}
		}
	}
	return nil
}

// ReplaceDatadescNames is the reduced-scope rename: it rewrites only data
// descriptor names, updating the descriptor and constant tables (failing
// before any mutation if a target key is taken), every access node and
// memlet including dotted member accesses, interstate-edge conditions and
// assignments, and loop/conditional meta accesses, across every region of
// the graph.
func ReplaceDatadescNames(g *Graph, repl map[string]string) error {
	repl = dropIdentity(repl)
	if len(repl) == 0 {
		return nil
	}

	// Validate atomically: no partial mutation on collision.
	for old, nn := range repl {
		if _, ok := g.arrays[old]; !ok {
			continue
		}
		if g.nameTaken(nn) {
			return fmt.Errorf("ir: cannot rename %q to %q: name already exists in graph %q", old, nn, g.name)
		}
	}

	// Re-key the descriptor and constant tables, preserving order slots.
	for i, name := range g.arrayOrder {
		nn, ok := repl[name]
		if !ok {
			continue
		}
		g.arrays[nn] = g.arrays[name]
		delete(g.arrays, name)
		g.arrayOrder[i] = nn
		if c, has := g.constants[name]; has {
			g.constants[nn] = c
			delete(g.constants, name)
		}
	}

	for _, region := range g.AllRegions() {
		for _, e := range region.Edges() {
			e.ReplaceDict(repl, false)
		}
		for _, b := range region.Blocks() {
			st, ok := b.(*State)
			if !ok {
				continue
			}
			for _, node := range st.DataNodes() {
				if nn, found := replaceDataName(node.Data, repl); found {
					node.Data = nn
				}
			}
			for _, e := range st.Edges() {
				if e.Data.IsEmpty() {
					continue
				}
				if nn, found := replaceDataName(e.Data.Data, repl); found {
					e.Data.Data = nn
				}
			}
		}
		region.ReplaceMetaAccesses(repl)
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
