// Package cache keeps the local copy of threads and per-thread message
// histories on top of a persistent key/value store.
//
// Thread list and metadata writes are serialized by one mutex. Message
// history writes are serialized per thread guid, and always take the thread
// lock before the metadata mutex.
package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"threadsync/pkg/logger"
	kv "threadsync/pkg/store"
	"threadsync/pkg/telemetry"
)

type Options struct {
	MaxAge               time.Duration
	MaxMessagesPerThread int
}

// Cache owns the entry store, the metadata record and both specializations.
type Cache struct {
	*EntryStore

	kv     kv.Store
	metaMu sync.Mutex
	locks  *threadLocks

	Threads  *ThreadCache
	Messages *MessageCache
}

// New builds a cache over s. Zero options take the defaults.
func New(s kv.Store, opts Options) *Cache {
	c := &Cache{
		EntryStore: newEntryStore(s, opts.MaxAge),
		kv:         s,
		locks:      newThreadLocks(),
	}
	max := opts.MaxMessagesPerThread
	if max <= 0 {
		max = DefaultMaxMessagesPerThread
	}
	c.Threads = &ThreadCache{c: c}
	c.Messages = &MessageCache{c: c, max: max}
	return c
}

// Stats summarizes what the cache holds.
type Stats struct {
	ThreadsWithCache    int            `json:"threads_with_cache"`
	TotalThreads        int            `json:"total_threads"`
	LastGlobalSync      *time.Time     `json:"last_global_sync"`
	ThreadMessageCounts map[string]int `json:"thread_message_counts"`
}

// Stats counts message histories by key and reports metadata totals.
// A store failure yields zero stats.
func (c *Cache) Stats(ctx context.Context) Stats {
	m := c.Metadata(ctx)
	keys, err := kv.KeysWithPrefix(ctx, c.kv, MessageKeyPrefix)
	if err != nil {
		logger.Warn("cache_stats_failed", "error", err)
		return Stats{ThreadMessageCounts: map[string]int{}}
	}
	return Stats{
		ThreadsWithCache:    len(keys),
		TotalThreads:        len(m.ThreadSyncTimes),
		LastGlobalSync:      m.LastGlobalSync,
		ThreadMessageCounts: m.ThreadMessageCounts,
	}
}

// CachedThreadGUIDs lists threads that have a stored message history.
func (c *Cache) CachedThreadGUIDs(ctx context.Context) []string {
	keys, err := kv.KeysWithPrefix(ctx, c.kv, MessageKeyPrefix)
	if err != nil {
		logger.Warn("cache_list_failed", "error", err)
		return nil
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if guid, ok := threadFromKey(k); ok {
			out = append(out, guid)
		}
	}
	sort.Strings(out)
	return out
}

// ClearAll removes every cache key and the metadata record. Keys that do
// not belong to the cache are left alone.
func (c *Cache) ClearAll(ctx context.Context) {
	unlock := c.locks.exclusive()
	defer unlock()
	c.metaMu.Lock()
	defer c.metaMu.Unlock()

	all, err := c.kv.ListKeys(ctx)
	if err != nil {
		logger.Warn("cache_clear_failed", "error", err)
		return
	}
	var doomed []string
	for _, k := range all {
		if isCacheKey(k) {
			doomed = append(doomed, k)
		}
	}
	if err := c.kv.RemoveAll(ctx, doomed); err != nil {
		logger.Warn("cache_clear_failed", "error", err)
		return
	}
	telemetry.LastGlobalSync.Set(0)
	logger.Info("cache_cleared", "keys", len(doomed))
}

// Sweep purges every expired entry and returns how many were removed.
func (c *Cache) Sweep(ctx context.Context) (int, error) {
	keys, err := kv.KeysWithPrefix(ctx, c.kv, MessageKeyPrefix, ThreadKey)
	if err != nil {
		return 0, fmt.Errorf("list cache keys: %w", err)
	}
	purged := 0
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			return purged, err
		}
		if key == ThreadKey {
			if c.Threads.purgeIfExpired(ctx) {
				purged++
			}
			continue
		}
		if guid, ok := threadFromKey(key); ok && c.Messages.purgeIfExpired(ctx, guid) {
			purged++
		}
	}
	telemetry.JanitorPurged.Add(float64(purged))
	return purged, nil
}
