package cache

import (
	"context"
	"encoding/json"
	"time"

	"threadsync/pkg/logger"
	"threadsync/pkg/telemetry"
)

// Metadata is the single process-wide sync record.
type Metadata struct {
	LastGlobalSync      *time.Time           `json:"last_global_sync"`
	ThreadSyncTimes     map[string]time.Time `json:"thread_sync_times"`
	ThreadMessageCounts map[string]int       `json:"thread_message_counts"`
}

func emptyMetadata() Metadata {
	return Metadata{
		ThreadSyncTimes:     map[string]time.Time{},
		ThreadMessageCounts: map[string]int{},
	}
}

func (m Metadata) clone() Metadata {
	out := emptyMetadata()
	if m.LastGlobalSync != nil {
		t := *m.LastGlobalSync
		out.LastGlobalSync = &t
	}
	for k, v := range m.ThreadSyncTimes {
		out.ThreadSyncTimes[k] = v
	}
	for k, v := range m.ThreadMessageCounts {
		out.ThreadMessageCounts[k] = v
	}
	return out
}

// loadMetaLocked reads the record, returning defaults when it is absent,
// corrupt or unreadable. Caller holds metaMu.
func (c *Cache) loadMetaLocked(ctx context.Context) Metadata {
	raw, ok, err := c.kv.Get(ctx, MetadataKey)
	if err != nil {
		logger.Warn("cache_metadata_read_failed", "error", err)
		return emptyMetadata()
	}
	if !ok {
		return emptyMetadata()
	}
	m := emptyMetadata()
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		logger.Warn("cache_metadata_corrupt", "error", err)
		return emptyMetadata()
	}
	if m.ThreadSyncTimes == nil {
		m.ThreadSyncTimes = map[string]time.Time{}
	}
	if m.ThreadMessageCounts == nil {
		m.ThreadMessageCounts = map[string]int{}
	}
	return m
}

func (c *Cache) saveMetaLocked(ctx context.Context, m Metadata) {
	raw, err := json.Marshal(m)
	if err != nil {
		logger.Error("cache_metadata_encode_failed", "error", err)
		return
	}
	if err := c.kv.Set(ctx, MetadataKey, string(raw)); err != nil {
		logger.Warn("cache_metadata_write_failed", "error", err)
		return
	}
	if m.LastGlobalSync != nil {
		telemetry.LastGlobalSync.Set(float64(m.LastGlobalSync.Unix()))
	} else {
		telemetry.LastGlobalSync.Set(0)
	}
}

func (c *Cache) updateMeta(ctx context.Context, fn func(*Metadata)) {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	m := c.loadMetaLocked(ctx)
	fn(&m)
	c.saveMetaLocked(ctx, m)
}

// Metadata returns a copy of the sync record.
func (c *Cache) Metadata(ctx context.Context) Metadata {
	c.metaMu.Lock()
	defer c.metaMu.Unlock()
	return c.loadMetaLocked(ctx).clone()
}

// LastGlobalSync returns the global watermark, if any.
func (c *Cache) LastGlobalSync(ctx context.Context) (time.Time, bool) {
	m := c.Metadata(ctx)
	if m.LastGlobalSync == nil {
		return time.Time{}, false
	}
	return *m.LastGlobalSync, true
}

// AdvanceLastGlobalSync moves the watermark to t unless it is already later.
// It returns the watermark in effect afterwards.
func (c *Cache) AdvanceLastGlobalSync(ctx context.Context, t time.Time) time.Time {
	var out time.Time
	c.updateMeta(ctx, func(m *Metadata) {
		advance(m, t)
		out = *m.LastGlobalSync
	})
	return out
}

func advance(m *Metadata, t time.Time) {
	t = t.UTC()
	if m.LastGlobalSync != nil && !t.After(*m.LastGlobalSync) {
		return
	}
	m.LastGlobalSync = &t
}
