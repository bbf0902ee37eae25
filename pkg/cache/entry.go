package cache

import (
	"context"
	"encoding/json"
	"time"

	"threadsync/pkg/logger"
	kv "threadsync/pkg/store"
	"threadsync/pkg/telemetry"
	"threadsync/pkg/timeutil"
)

const (
	DefaultMaxAge               = 24 * time.Hour
	DefaultMaxMessagesPerThread = 500
)

// entry is the on-disk envelope for every cached payload.
type entry struct {
	Payload  json.RawMessage `json:"payload"`
	CachedAt int64           `json:"cached_at"` // unix ms
}

func (e entry) cachedAt() time.Time {
	return time.UnixMilli(e.CachedAt).UTC()
}

// EntryStore reads and writes timestamped payloads over a persistent store.
// Every failure of the underlying store is logged and degraded: reads report
// absent and writes are dropped.
type EntryStore struct {
	kv     kv.Store
	maxAge time.Duration
}

func newEntryStore(s kv.Store, maxAge time.Duration) *EntryStore {
	if maxAge <= 0 {
		maxAge = DefaultMaxAge
	}
	return &EntryStore{kv: s, maxAge: maxAge}
}

// MaxAge is the TTL applied on read.
func (s *EntryStore) MaxAge() time.Duration { return s.maxAge }

// Read decodes the payload at key into dst. It reports false when the key is
// absent, expired (the entry is purged), undecodable or unreadable.
func (s *EntryStore) Read(ctx context.Context, key string, dst any) bool {
	kind := kindOf(key)
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		logger.Warn("cache_read_failed", "key", key, "error", err)
		telemetry.CacheReads.WithLabelValues(kind, telemetry.ReadError).Inc()
		return false
	}
	if !ok {
		telemetry.CacheReads.WithLabelValues(kind, telemetry.ReadMiss).Inc()
		return false
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		logger.Warn("cache_entry_corrupt", "key", key, "error", err)
		telemetry.CacheReads.WithLabelValues(kind, telemetry.ReadError).Inc()
		s.Remove(ctx, key)
		return false
	}
	if s.expired(e) {
		logger.Debug("cache_entry_expired", "key", key, "cached_at", e.cachedAt())
		telemetry.CacheReads.WithLabelValues(kind, telemetry.ReadExpired).Inc()
		s.Remove(ctx, key)
		return false
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		logger.Warn("cache_payload_corrupt", "key", key, "error", err)
		telemetry.CacheReads.WithLabelValues(kind, telemetry.ReadError).Inc()
		s.Remove(ctx, key)
		return false
	}
	telemetry.CacheReads.WithLabelValues(kind, telemetry.ReadHit).Inc()
	return true
}

// Write stores payload at key stamped with the current time.
func (s *EntryStore) Write(ctx context.Context, key string, payload any) {
	kind := kindOf(key)
	body, err := json.Marshal(payload)
	if err != nil {
		logger.Error("cache_encode_failed", "key", key, "error", err)
		telemetry.CacheWrites.WithLabelValues(kind, "failed").Inc()
		return
	}
	raw, err := json.Marshal(entry{Payload: body, CachedAt: timeutil.Now().UnixMilli()})
	if err != nil {
		logger.Error("cache_encode_failed", "key", key, "error", err)
		telemetry.CacheWrites.WithLabelValues(kind, "failed").Inc()
		return
	}
	if err := s.kv.Set(ctx, key, string(raw)); err != nil {
		logger.Warn("cache_write_failed", "key", key, "error", err)
		telemetry.CacheWrites.WithLabelValues(kind, "failed").Inc()
		return
	}
	telemetry.CacheWrites.WithLabelValues(kind, "ok").Inc()
}

// Remove deletes key; failures are logged only.
func (s *EntryStore) Remove(ctx context.Context, key string) {
	if err := s.kv.Remove(ctx, key); err != nil {
		logger.Warn("cache_remove_failed", "key", key, "error", err)
	}
}

// expiredAt reports whether the raw entry at key is past its TTL without
// decoding the payload. Corrupt entries count as expired.
func (s *EntryStore) expiredAt(ctx context.Context, key string) (bool, error) {
	raw, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	var e entry
	if err := json.Unmarshal([]byte(raw), &e); err != nil {
		return true, nil
	}
	return s.expired(e), nil
}

func (s *EntryStore) expired(e entry) bool {
	return timeutil.Now().Sub(e.cachedAt()) > s.maxAge
}

func kindOf(key string) string {
	if key == ThreadKey {
		return "threads"
	}
	return "messages"
}
