package cache

import (
	"context"

	"threadsync/pkg/logger"
	"threadsync/pkg/models"
	"threadsync/pkg/timeutil"
)

// ThreadCache stores the latest full thread list snapshot.
type ThreadCache struct {
	c *Cache
}

// GetCachedThreads returns the snapshot, or nil when absent or expired. An
// expired snapshot also resets the global watermark so the next fetch is a
// full one.
func (t *ThreadCache) GetCachedThreads(ctx context.Context) []models.Thread {
	t.c.metaMu.Lock()
	defer t.c.metaMu.Unlock()

	return t.readLocked(ctx)
}

func (t *ThreadCache) readLocked(ctx context.Context) []models.Thread {
	expired, err := t.c.expiredAt(ctx, ThreadKey)
	if err == nil && expired {
		t.clearLocked(ctx)
		return nil
	}
	var threads []models.Thread
	if !t.c.Read(ctx, ThreadKey, &threads) {
		return nil
	}
	return threads
}

// CacheThreads stores threads verbatim and advances last_global_sync to now.
func (t *ThreadCache) CacheThreads(ctx context.Context, threads []models.Thread) {
	t.c.metaMu.Lock()
	defer t.c.metaMu.Unlock()
	t.writeLocked(ctx, threads)
}

// MergeThreads overlays incoming onto the snapshot by thread_guid (incoming
// wins), stores the result like CacheThreads and returns it.
func (t *ThreadCache) MergeThreads(ctx context.Context, incoming []models.Thread) []models.Thread {
	t.c.metaMu.Lock()
	defer t.c.metaMu.Unlock()
	merged := models.MergeThreads(t.readLocked(ctx), incoming)
	t.writeLocked(ctx, merged)
	return merged
}

func (t *ThreadCache) writeLocked(ctx context.Context, threads []models.Thread) {
	if threads == nil {
		threads = []models.Thread{}
	}
	t.c.Write(ctx, ThreadKey, threads)
	m := t.c.loadMetaLocked(ctx)
	advance(&m, timeutil.Now())
	t.c.saveMetaLocked(ctx, m)
}

// Clear removes the snapshot and resets last_global_sync to absent.
func (t *ThreadCache) Clear(ctx context.Context) {
	t.c.metaMu.Lock()
	defer t.c.metaMu.Unlock()
	t.clearLocked(ctx)
}

func (t *ThreadCache) clearLocked(ctx context.Context) {
	t.c.Remove(ctx, ThreadKey)
	m := t.c.loadMetaLocked(ctx)
	m.LastGlobalSync = nil
	t.c.saveMetaLocked(ctx, m)
}

func (t *ThreadCache) purgeIfExpired(ctx context.Context) bool {
	t.c.metaMu.Lock()
	defer t.c.metaMu.Unlock()
	expired, err := t.c.expiredAt(ctx, ThreadKey)
	if err != nil {
		logger.Warn("cache_sweep_read_failed", "key", ThreadKey, "error", err)
		return false
	}
	if !expired {
		return false
	}
	t.clearLocked(ctx)
	return true
}
