package state

import "path/filepath"

// Paths is the on-disk layout under the data root.
type Paths struct {
	Root   string
	Store  string // pebble directory
	SQLite string // sqlite database file
	Logs   string
}

func PathsFor(root string) Paths {
	return Paths{
		Root:   root,
		Store:  filepath.Join(root, "store"),
		SQLite: filepath.Join(root, "cache.db"),
		Logs:   filepath.Join(root, "logs"),
	}
}

// StorePath returns where the given backend keeps its data.
func (p Paths) StorePath(backend string) string {
	if backend == "sqlite" {
		return p.SQLite
	}
	return p.Store
}
