package ir

import (
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Validate checks structural invariants of a graph and all nested graphs:
// name tables, control-flow wiring, dataflow wiring, connector declarations
// and scope pairing. States are checked concurrently; the first violation
// found is returned.
func Validate(g *Graph) error {
	if err := validateRegions(g); err != nil {
		return err
	}

	var eg errgroup.Group
	for _, st := range g.States() {
		st := st
		eg.Go(func() error { return validateState(g, st) })
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for _, st := range g.States() {
		for _, n := range st.Nodes() {
			if ng, ok := n.(*NestedGraph); ok {
				if err := Validate(ng.Graph); err != nil {
					return fmt.Errorf("nested graph %q: %w", ng.Graph.Name(), err)
				}
			}
		}
	}
	return nil
}

func validateRegions(g *Graph) error {
	for _, r := range g.AllRegions() {
		if len(r.Blocks()) > 0 && r.StartBlock() == nil {
			return fmt.Errorf("ir: region %q has blocks but no start block", r.Label())
		}
		present := map[Block]struct{}{}
		for _, b := range r.Blocks() {
			present[b] = struct{}{}
		}
		for _, e := range r.Edges() {
			if _, ok := present[e.Src]; !ok {
				return fmt.Errorf("ir: region %q: control edge from block %q not in region", r.Label(), e.Src.Label())
			}
			if _, ok := present[e.Dst]; !ok {
				return fmt.Errorf("ir: region %q: control edge to block %q not in region", r.Label(), e.Dst.Label())
			}
			for _, a := range e.Assignments {
				if _, taken := g.arrays[a.Symbol]; taken {
					return fmt.Errorf("ir: region %q: assignment target %q collides with a data descriptor", r.Label(), a.Symbol)
				}
			}
		}
	}
	return nil
}

func validateState(g *Graph, st *State) error {
	nodes := st.Nodes()
	present := make(map[Node]struct{}, len(nodes))
	for _, n := range nodes {
		present[n] = struct{}{}
	}

	for _, n := range nodes {
		switch t := n.(type) {
		case *AccessNode:
			if g.ResolveDescriptor(t.Data) == nil {
				return fmt.Errorf("ir: state %q: access node references unknown data %q", st.Label(), t.Data)
			}
		case EntryNode:
			if st.ExitNode(t) == nil {
				return fmt.Errorf("ir: state %q: scope entry %q has no paired exit", st.Label(), t.Label())
			}
		case *NestedGraph:
			for conn := range t.InConnectors() {
				if t.Graph.Descriptor(conn) == nil {
					return fmt.Errorf("ir: state %q: nested graph %q input connector %q matches no inner descriptor",
						st.Label(), t.Graph.Name(), conn)
				}
			}
			for conn := range t.OutConnectors() {
				if t.Graph.Descriptor(conn) == nil {
					return fmt.Errorf("ir: state %q: nested graph %q output connector %q matches no inner descriptor",
						st.Label(), t.Graph.Name(), conn)
				}
			}
		}
	}

	for _, e := range st.Edges() {
		if _, ok := present[e.Src]; !ok {
			return fmt.Errorf("ir: state %q: edge from node %q not in state", st.Label(), e.Src.Label())
		}
		if _, ok := present[e.Dst]; !ok {
			return fmt.Errorf("ir: state %q: edge to node %q not in state", st.Label(), e.Dst.Label())
		}
		if e.SrcConn != "" {
			if _, ok := e.Src.OutConnectors()[e.SrcConn]; !ok {
				return fmt.Errorf("ir: state %q: node %q has no output connector %q", st.Label(), e.Src.Label(), e.SrcConn)
			}
		}
		if e.DstConn != "" {
			if _, ok := e.Dst.InConnectors()[e.DstConn]; !ok {
				return fmt.Errorf("ir: state %q: node %q has no input connector %q", st.Label(), e.Dst.Label(), e.DstConn)
			}
		}
		if e.Data.IsEmpty() {
			continue
		}
		d := g.ResolveDescriptor(e.Data.Data)
		if d == nil {
			return fmt.Errorf("ir: state %q: memlet references unknown data %q", st.Label(), e.Data.Data)
		}
		if d.IsScalar() {
			continue // scalars carry a degenerate one-element subset
		}
		if e.Data.Subset != nil && len(e.Data.Subset.Dims) != len(d.Shape) {
			return fmt.Errorf("ir: state %q: memlet on %q has %d subset dimensions, descriptor has %d",
				st.Label(), e.Data.Data, len(e.Data.Subset.Dims), len(d.Shape))
		}
	}

	// States must be acyclic; topoOrder covers every node iff they are.
	if len(topoOrder(st)) != len(nodes) {
		return fmt.Errorf("ir: state %q contains a dataflow cycle", st.Label())
	}
	return nil
}
