// Package state owns the data directory layout.
package state

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// EnsureStateDirs creates the layout under root: real directories (not
// symlinks), owner-only permissions, writable.
func EnsureStateDirs(root string) (Paths, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return Paths{}, fmt.Errorf("data root is empty")
	}
	p := PathsFor(filepath.Clean(root))

	for _, dir := range []string{p.Root, p.Store, p.Logs} {
		if fi, err := os.Lstat(dir); err == nil {
			if fi.Mode()&os.ModeSymlink != 0 {
				return Paths{}, fmt.Errorf("path is a symlink: %s", dir)
			}
			if !fi.IsDir() {
				return Paths{}, fmt.Errorf("path exists and is not a directory: %s", dir)
			}
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return Paths{}, fmt.Errorf("cannot create path %s: %w", dir, err)
		}
		tmp, err := os.CreateTemp(dir, ".validate-*")
		if err != nil {
			return Paths{}, fmt.Errorf("path not writable: %s: %w", dir, err)
		}
		tmp.Close()
		_ = os.Remove(tmp.Name())
	}
	return p, nil
}
