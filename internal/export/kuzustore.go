//go:build cgo

package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuStore implements the Store interface using KuzuDB as the snapshot
// backend. It requires CGO because the go-kuzu driver wraps KuzuDB's C
// library.
type KuzuStore struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(":memory:", cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// NewKuzuFileStore creates a KuzuStore backed by a file-based KuzuDB at the
// given directory path, so snapshots persist across runs.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(dbPath, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open file database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	return &KuzuStore{db: db, conn: conn}, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ddlStatements defines the Cypher DDL executed by InitSchema.
// Order matters: node tables must precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Graph(
		name STRING,
		parent STRING,
		PRIMARY KEY(name)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Block(
		guid STRING,
		label STRING,
		kind STRING,
		graph_name STRING,
		nodes INT64,
		PRIMARY KEY(guid)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS DataDesc(
		id STRING,
		graph_name STRING,
		name STRING,
		dtype STRING,
		shape STRING,
		storage STRING,
		transient BOOLEAN,
		lifetime STRING,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS CONTAINS(FROM Graph TO Block)`,
	`CREATE REL TABLE IF NOT EXISTS DECLARES(FROM Graph TO DataDesc)`,
	`CREATE REL TABLE IF NOT EXISTS FLOWS_TO(FROM Block TO Block, condition STRING, assignments INT64)`,
}

// InitSchema creates all node and relationship tables if they do not exist.
func (s *KuzuStore) InitSchema(_ context.Context) error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// AddGraph inserts a Graph node.
func (s *KuzuStore) AddGraph(_ context.Context, rec GraphRecord) error {
	return s.exec(
		"CREATE (g:Graph {name: $name, parent: $parent})",
		map[string]any{"name": rec.Name, "parent": rec.Parent},
	)
}

// AddBlock inserts a Block node and links it to its graph.
func (s *KuzuStore) AddBlock(_ context.Context, rec BlockRecord) error {
	if err := s.exec(
		"CREATE (b:Block {guid: $guid, label: $label, kind: $kind, graph_name: $graph, nodes: $nodes})",
		map[string]any{
			"guid":  rec.GUID,
			"label": rec.Label,
			"kind":  rec.Kind,
			"graph": rec.Graph,
			"nodes": int64(rec.Nodes),
		},
	); err != nil {
		return err
	}
	return s.exec(
		`MATCH (g:Graph {name: $graph}), (b:Block {guid: $guid})
		 CREATE (g)-[:CONTAINS]->(b)`,
		map[string]any{"graph": rec.Graph, "guid": rec.GUID},
	)
}

// AddData inserts a DataDesc node and links it to its graph.
func (s *KuzuStore) AddData(_ context.Context, rec DataRecord) error {
	id := rec.Graph + ":" + rec.Name
	if err := s.exec(
		`CREATE (d:DataDesc {
			id: $id,
			graph_name: $graph,
			name: $name,
			dtype: $dtype,
			shape: $shape,
			storage: $storage,
			transient: $transient,
			lifetime: $lifetime
		})`,
		map[string]any{
			"id":        id,
			"graph":     rec.Graph,
			"name":      rec.Name,
			"dtype":     rec.Dtype,
			"shape":     rec.Shape,
			"storage":   rec.Storage,
			"transient": rec.Transient,
			"lifetime":  rec.Lifetime,
		},
	); err != nil {
		return err
	}
	return s.exec(
		`MATCH (g:Graph {name: $graph}), (d:DataDesc {id: $id})
		 CREATE (g)-[:DECLARES]->(d)`,
		map[string]any{"graph": rec.Graph, "id": id},
	)
}

// AddControlEdge inserts a FLOWS_TO relationship between two blocks.
func (s *KuzuStore) AddControlEdge(_ context.Context, rec ControlEdgeRecord) error {
	return s.exec(
		`MATCH (a:Block {guid: $src}), (b:Block {guid: $dst})
		 CREATE (a)-[:FLOWS_TO {condition: $cond, assignments: $assigns}]->(b)`,
		map[string]any{
			"src":     rec.SrcGUID,
			"dst":     rec.DstGUID,
			"cond":    rec.Condition,
			"assigns": int64(rec.Assignments),
		},
	)
}

// Stats counts stored entities.
func (s *KuzuStore) Stats(_ context.Context) (*SnapshotStats, error) {
	stats := &SnapshotStats{}
	counts := []struct {
		cypher string
		dst    *int
	}{
		{"MATCH (g:Graph) RETURN count(g)", &stats.Graphs},
		{"MATCH (b:Block) RETURN count(b)", &stats.Blocks},
		{"MATCH (d:DataDesc) RETURN count(d)", &stats.Descriptors},
		{"MATCH ()-[e:FLOWS_TO]->() RETURN count(e)", &stats.ControlEdges},
	}
	for _, c := range counts {
		res, err := s.conn.Query(c.cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: stats: %w", err)
		}
		if res.HasNext() {
			row, err := res.Next()
			if err != nil {
				res.Close()
				return nil, fmt.Errorf("kuzu: stats row: %w", err)
			}
			vals, err := row.GetAsSlice()
			if err != nil {
				res.Close()
				return nil, fmt.Errorf("kuzu: stats values: %w", err)
			}
			if len(vals) > 0 {
				if n, ok := vals[0].(int64); ok {
					*c.dst = int(n)
				}
			}
		}
		res.Close()
	}
	return stats, nil
}

// exec runs a parameterized Cypher statement, discarding the result.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}
