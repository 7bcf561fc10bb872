//go:build !cgo

package main

import (
	"github.com/dusk-indust/dfir/internal/export"
)

// openStore falls back to the in-memory store when CGO is unavailable.
func openStore(string) (export.Store, error) {
	return export.NewMemStore(), nil
}
