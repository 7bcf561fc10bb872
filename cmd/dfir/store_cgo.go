//go:build cgo

package main

import (
	"github.com/dusk-indust/dfir/internal/export"
)

// openStore returns a KuzuDB-backed store, file-based when a path is
// configured, otherwise in-memory.
func openStore(path string) (export.Store, error) {
	if path != "" {
		return export.NewKuzuFileStore(path)
	}
	return export.NewKuzuStore()
}
