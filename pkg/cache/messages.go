package cache

import (
	"context"
	"time"

	"threadsync/pkg/logger"
	"threadsync/pkg/models"
	"threadsync/pkg/telemetry"
	"threadsync/pkg/timeutil"
)

// MessageCache stores one message history per thread. A stored history is
// always sorted ascending by timestamp, unique by guid and at most max long.
type MessageCache struct {
	c   *Cache
	max int
}

// Max is the per-thread capacity.
func (mc *MessageCache) Max() int { return mc.max }

// GetThreadMessages returns the thread's history, or nil when absent or
// expired.
func (mc *MessageCache) GetThreadMessages(ctx context.Context, threadGUID string) []models.Message {
	unlock := mc.c.locks.lock(threadGUID)
	defer unlock()
	return mc.readLocked(ctx, threadGUID)
}

func (mc *MessageCache) readLocked(ctx context.Context, threadGUID string) []models.Message {
	key := messageKey(threadGUID)
	expired, err := mc.c.expiredAt(ctx, key)
	if err == nil && expired {
		mc.clearLocked(ctx, threadGUID)
		return nil
	}
	var msgs []models.Message
	if !mc.c.Read(ctx, key, &msgs) {
		return nil
	}
	return msgs
}

// CacheThreadMessages merges msgs into the thread's history according to
// mode, persists the result, records the sync time and count, and returns
// the stored list.
func (mc *MessageCache) CacheThreadMessages(ctx context.Context, threadGUID string, msgs []models.Message, mode Mode) []models.Message {
	unlock := mc.c.locks.lock(threadGUID)
	defer unlock()

	var existing []models.Message
	if mode == Append {
		existing = mc.readLocked(ctx, threadGUID)
	}
	merged := Merge(existing, msgs, mc.max)

	telemetry.MessagesMerged.Add(float64(len(msgs)))
	if over := uniqueCount(existing, msgs) - len(merged); over > 0 {
		telemetry.MessagesEvicted.Add(float64(over))
	}

	mc.c.Write(ctx, messageKey(threadGUID), merged)
	now := timeutil.Now()
	mc.c.updateMeta(ctx, func(m *Metadata) {
		m.ThreadSyncTimes[threadGUID] = now
		m.ThreadMessageCounts[threadGUID] = len(merged)
	})
	logger.Debug("thread_messages_cached", "thread", threadGUID, "mode", mode.String(), "incoming", len(msgs), "stored", len(merged))
	return merged
}

// LatestTimestamp returns the newest message timestamp for the thread.
func (mc *MessageCache) LatestTimestamp(ctx context.Context, threadGUID string) (time.Time, bool) {
	msgs := mc.GetThreadMessages(ctx, threadGUID)
	if len(msgs) == 0 {
		return time.Time{}, false
	}
	latest := msgs[0].Timestamp
	for _, m := range msgs[1:] {
		if m.Timestamp.After(latest) {
			latest = m.Timestamp
		}
	}
	return latest, true
}

// OldestTimestamp returns the oldest message timestamp for the thread.
func (mc *MessageCache) OldestTimestamp(ctx context.Context, threadGUID string) (time.Time, bool) {
	msgs := mc.GetThreadMessages(ctx, threadGUID)
	if len(msgs) == 0 {
		return time.Time{}, false
	}
	oldest := msgs[0].Timestamp
	for _, m := range msgs[1:] {
		if m.Timestamp.Before(oldest) {
			oldest = m.Timestamp
		}
	}
	return oldest, true
}

// ClearThread removes the thread's history and its metadata entries.
func (mc *MessageCache) ClearThread(ctx context.Context, threadGUID string) {
	unlock := mc.c.locks.lock(threadGUID)
	defer unlock()
	mc.clearLocked(ctx, threadGUID)
}

func (mc *MessageCache) clearLocked(ctx context.Context, threadGUID string) {
	mc.c.Remove(ctx, messageKey(threadGUID))
	mc.c.updateMeta(ctx, func(m *Metadata) {
		delete(m.ThreadSyncTimes, threadGUID)
		delete(m.ThreadMessageCounts, threadGUID)
	})
}

func (mc *MessageCache) purgeIfExpired(ctx context.Context, threadGUID string) bool {
	unlock := mc.c.locks.lock(threadGUID)
	defer unlock()
	key := messageKey(threadGUID)
	expired, err := mc.c.expiredAt(ctx, key)
	if err != nil {
		logger.Warn("cache_sweep_read_failed", "key", key, "error", err)
		return false
	}
	if !expired {
		return false
	}
	mc.clearLocked(ctx, threadGUID)
	return true
}

func uniqueCount(a, b []models.Message) int {
	seen := make(map[string]struct{}, len(a)+len(b))
	for _, m := range a {
		seen[m.GUID] = struct{}{}
	}
	for _, m := range b {
		seen[m.GUID] = struct{}{}
	}
	return len(seen)
}
