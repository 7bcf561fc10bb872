package export

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemStore()
	require.NoError(t, s.InitSchema(ctx))

	require.NoError(t, s.AddGraph(ctx, GraphRecord{Name: "g"}))
	require.NoError(t, s.AddGraph(ctx, GraphRecord{Name: "inner", Parent: "g"}))
	require.NoError(t, s.AddBlock(ctx, BlockRecord{GUID: "b1", Label: "body", Kind: "state", Graph: "g", Nodes: 3}))
	require.NoError(t, s.AddData(ctx, DataRecord{Graph: "g", Name: "A", Dtype: "float64", Shape: "N"}))
	require.NoError(t, s.AddControlEdge(ctx, ControlEdgeRecord{SrcGUID: "b1", DstGUID: "b2", Condition: "N > 0"}))

	stats, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, &SnapshotStats{Graphs: 2, Blocks: 1, Descriptors: 1, ControlEdges: 1}, stats)

	b, ok := s.Block("b1")
	require.True(t, ok)
	assert.Equal(t, "body", b.Label)
	assert.Equal(t, 3, b.Nodes)
	_, ok = s.Block("missing")
	assert.False(t, ok)

	d, ok := s.Data("g", "A")
	require.True(t, ok)
	assert.Equal(t, "float64", d.Dtype)
	_, ok = s.Data("g", "B")
	assert.False(t, ok)

	// Re-adding under the same key overwrites instead of duplicating.
	require.NoError(t, s.AddBlock(ctx, BlockRecord{GUID: "b1", Label: "renamed", Kind: "state", Graph: "g"}))
	stats, err = s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Blocks)

	assert.NoError(t, s.Close())
}
