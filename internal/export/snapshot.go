package export

import (
	"context"

	"github.com/dusk-indust/dfir/internal/ir"
)

// Snapshot writes the structure of g and every nested graph to the store:
// graphs, control-flow blocks, descriptors, and control edges.
func Snapshot(ctx context.Context, g *ir.Graph, s Store) error {
	parent := ""
	if pg := g.ParentGraph(); pg != nil {
		parent = pg.Name()
	}
	if err := s.AddGraph(ctx, GraphRecord{Name: g.Name(), Parent: parent}); err != nil {
		return err
	}

	for _, name := range g.DataNames() {
		d := g.Descriptors()[name]
		shape := ""
		for i, dim := range d.Shape {
			if i > 0 {
				shape += ", "
			}
			shape += dim.String()
		}
		rec := DataRecord{
			Graph:     g.Name(),
			Name:      name,
			Dtype:     string(d.Dtype),
			Shape:     shape,
			Storage:   string(d.Storage),
			Transient: d.Transient,
			Lifetime:  string(d.Lifetime),
		}
		if err := s.AddData(ctx, rec); err != nil {
			return err
		}
	}

	for _, b := range g.AllBlocks(false) {
		rec := BlockRecord{
			GUID:  b.GUID(),
			Label: b.Label(),
			Kind:  blockKind(b),
			Graph: g.Name(),
		}
		if st, ok := b.(*ir.State); ok {
			rec.Nodes = len(st.Nodes())
		}
		if err := s.AddBlock(ctx, rec); err != nil {
			return err
		}
	}

	for _, e := range g.AllInterstateEdges() {
		cond := ""
		if e.Condition != nil {
			cond = e.Condition.String()
		}
		rec := ControlEdgeRecord{
			SrcGUID:     e.Src.GUID(),
			DstGUID:     e.Dst.GUID(),
			Condition:   cond,
			Assignments: len(e.Assignments),
		}
		if err := s.AddControlEdge(ctx, rec); err != nil {
			return err
		}
	}

	// Recurse into nested graphs.
	for _, st := range g.States() {
		for _, n := range st.Nodes() {
			if ng, ok := n.(*ir.NestedGraph); ok {
				if err := Snapshot(ctx, ng.Graph, s); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func blockKind(b ir.Block) string {
	switch b.(type) {
	case *ir.State:
		return "state"
	case *ir.LoopRegion:
		return "loop"
	case *ir.CondRegion:
		return "conditional"
	default:
		return "region"
	}
}
