// Package store is the durable key/value layer under the cache. Keys are
// plain strings and values are opaque strings; there are no ordering
// guarantees across keys.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrClosed         = errors.New("store: closed")
	ErrUnknownBackend = errors.New("store: unknown backend")
)

// Store is the persistent store contract consumed by the cache.
type Store interface {
	// Get returns the value for key; ok is false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	RemoveAll(ctx context.Context, keys []string) error
	ListKeys(ctx context.Context) ([]string, error)
	Close() error
}

const (
	BackendPebble = "pebble"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Options configures Open.
type Options struct {
	Backend string
	Path    string
	// SyncWrites forces an fsync per write on backends that support it.
	SyncWrites bool
}

// Open constructs the configured backend.
func Open(opts Options) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case "", BackendPebble:
		s, err := OpenPebble(opts.Path, opts.SyncWrites)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendSQLite:
		s, err := OpenSQLite(opts.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, opts.Backend)
	}
}

// KeysWithPrefix filters ListKeys output to keys starting with any prefix.
func KeysWithPrefix(ctx context.Context, s Store, prefixes ...string) ([]string, error) {
	all, err := s.ListKeys(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(all))
	for _, k := range all {
		for _, p := range prefixes {
			if strings.HasPrefix(k, p) {
				out = append(out, k)
				break
			}
		}
	}
	return out, nil
}
