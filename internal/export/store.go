// Package export persists snapshots of the IR to a graph database so that
// transformation results can be inspected and diffed across pass runs.
package export

import (
	"context"
	"io"
)

// Store is the interface for the snapshot backend.
// Implementations: KuzuStore (production), MemStore (testing).
type Store interface {
	io.Closer

	// Schema setup, called once before any data is inserted.
	InitSchema(ctx context.Context) error

	// Write operations.
	AddGraph(ctx context.Context, rec GraphRecord) error
	AddBlock(ctx context.Context, rec BlockRecord) error
	AddData(ctx context.Context, rec DataRecord) error
	AddControlEdge(ctx context.Context, rec ControlEdgeRecord) error

	// Stats.
	Stats(ctx context.Context) (*SnapshotStats, error)
}

// GraphRecord describes one graph (top-level or nested).
type GraphRecord struct {
	Name   string
	Parent string // empty for top-level graphs
}

// BlockRecord describes one control-flow block.
type BlockRecord struct {
	GUID  string
	Label string
	Kind  string // state, loop, conditional, region
	Graph string
	Nodes int // dataflow nodes, for states
}

// DataRecord describes one data descriptor.
type DataRecord struct {
	Graph     string
	Name      string
	Dtype     string
	Shape     string
	Storage   string
	Transient bool
	Lifetime  string
}

// ControlEdgeRecord describes one control edge between two blocks.
type ControlEdgeRecord struct {
	SrcGUID     string
	DstGUID     string
	Condition   string
	Assignments int
}

// SnapshotStats summarizes a stored snapshot.
type SnapshotStats struct {
	Graphs       int
	Blocks       int
	Descriptors  int
	ControlEdges int
}
