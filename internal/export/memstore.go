package export

import (
	"context"
	"sync"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
type MemStore struct {
	mu     sync.RWMutex
	graphs map[string]GraphRecord
	blocks map[string]BlockRecord
	data   map[string]DataRecord // key: "graph:name"
	edges  []ControlEdgeRecord
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{
		graphs: make(map[string]GraphRecord),
		blocks: make(map[string]BlockRecord),
		data:   make(map[string]DataRecord),
	}
}

func dataKey(graph, name string) string { return graph + ":" + name }

// InitSchema is a no-op for the in-memory store.
func (m *MemStore) InitSchema(_ context.Context) error { return nil }

// AddGraph stores a graph record keyed by name.
func (m *MemStore) AddGraph(_ context.Context, rec GraphRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.graphs[rec.Name] = rec
	return nil
}

// AddBlock stores a block record keyed by GUID.
func (m *MemStore) AddBlock(_ context.Context, rec BlockRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks[rec.GUID] = rec
	return nil
}

// AddData stores a descriptor record keyed by "graph:name".
func (m *MemStore) AddData(_ context.Context, rec DataRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[dataKey(rec.Graph, rec.Name)] = rec
	return nil
}

// AddControlEdge appends a control edge record.
func (m *MemStore) AddControlEdge(_ context.Context, rec ControlEdgeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, rec)
	return nil
}

// Stats reports record counts.
func (m *MemStore) Stats(_ context.Context) (*SnapshotStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return &SnapshotStats{
		Graphs:       len(m.graphs),
		Blocks:       len(m.blocks),
		Descriptors:  len(m.data),
		ControlEdges: len(m.edges),
	}, nil
}

// Block returns a stored block record by GUID.
func (m *MemStore) Block(guid string) (BlockRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.blocks[guid]
	return rec, ok
}

// Data returns a stored descriptor record.
func (m *MemStore) Data(graph, name string) (DataRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.data[dataKey(graph, name)]
	return rec, ok
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error { return nil }
