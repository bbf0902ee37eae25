package cache

import (
	"context"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"threadsync/pkg/models"
	kv "threadsync/pkg/store"
)

func TestCacheThreadMessagesReplaceSorts(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})

	stored := c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m1", 0), msg("m3", 2), msg("m2", 1)}, Replace)
	if got := guids(stored); !reflect.DeepEqual(got, []string{"m1", "m2", "m3"}) {
		t.Fatalf("stored order = %v", got)
	}
	if got := guids(c.Messages.GetThreadMessages(ctx, "T1")); !reflect.DeepEqual(got, []string{"m1", "m2", "m3"}) {
		t.Fatalf("read back = %v", got)
	}
}

func TestCacheThreadMessagesAppendDedups(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})
	c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m1", 0), msg("m2", 1), msg("m3", 2)}, Replace)

	got := c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m2", 1), msg("m4", 3)}, Append)
	if !reflect.DeepEqual(guids(got), []string{"m1", "m2", "m3", "m4"}) {
		t.Fatalf("append result = %v", guids(got))
	}

	meta := c.Metadata(ctx)
	if meta.ThreadMessageCounts["T1"] != 4 {
		t.Fatalf("message count = %d, want 4", meta.ThreadMessageCounts["T1"])
	}
	if _, ok := meta.ThreadSyncTimes["T1"]; !ok {
		t.Fatalf("thread sync time not recorded")
	}
}

func TestReplaceDiscardsExisting(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})
	c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m1", 0), msg("m2", 1)}, Replace)
	got := c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m9", 9)}, Replace)
	if !reflect.DeepEqual(guids(got), []string{"m9"}) {
		t.Fatalf("replace result = %v", guids(got))
	}
}

func TestCapOneAtATimeThroughStore(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})
	for i := 0; i < 501; i++ {
		c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg(fmt.Sprintf("m%03d", i), i)}, Append)
	}
	got := c.Messages.GetThreadMessages(ctx, "T1")
	if len(got) != 500 {
		t.Fatalf("stored %d messages, want 500", len(got))
	}
	if got[0].GUID != "m001" {
		t.Fatalf("oldest retained = %s, want m001", got[0].GUID)
	}
	if n := c.Metadata(ctx).ThreadMessageCounts["T1"]; n != 500 {
		t.Fatalf("metadata count = %d", n)
	}
}

func TestLatestAndOldestTimestamp(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})

	if _, ok := c.Messages.LatestTimestamp(ctx, "T1"); ok {
		t.Fatalf("expected no latest timestamp on empty thread")
	}
	if _, ok := c.Messages.OldestTimestamp(ctx, "T1"); ok {
		t.Fatalf("expected no oldest timestamp on empty thread")
	}

	c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("a", 5), msg("b", 1), msg("c", 9)}, Replace)
	latest, ok := c.Messages.LatestTimestamp(ctx, "T1")
	if !ok || !latest.Equal(base.Add(9*time.Minute)) {
		t.Fatalf("latest = %v ok=%v", latest, ok)
	}
	oldest, ok := c.Messages.OldestTimestamp(ctx, "T1")
	if !ok || !oldest.Equal(base.Add(time.Minute)) {
		t.Fatalf("oldest = %v ok=%v", oldest, ok)
	}
}

func TestTTLExpiryPurges(t *testing.T) {
	ctx := context.Background()
	clk := useClock(t, base)
	s := kv.NewMemory()
	c := New(s, Options{})

	c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m1", 0)}, Replace)
	c.Threads.CacheThreads(ctx, []models.Thread{{ThreadGUID: "T1"}})

	clk.Advance(24 * time.Hour)
	if len(c.Messages.GetThreadMessages(ctx, "T1")) != 1 {
		t.Fatalf("entry at exactly max age should still be served")
	}

	clk.Advance(time.Second)
	if got := c.Messages.GetThreadMessages(ctx, "T1"); got != nil {
		t.Fatalf("expected expired messages to be absent, got %v", guids(got))
	}
	if _, ok, _ := s.Get(ctx, messageKey("T1")); ok {
		t.Fatalf("expired message entry was not purged")
	}
	if _, ok := c.Metadata(ctx).ThreadMessageCounts["T1"]; ok {
		t.Fatalf("expired thread metadata was not removed")
	}

	if got := c.Threads.GetCachedThreads(ctx); got != nil {
		t.Fatalf("expected expired thread list to be absent")
	}
	if _, ok, _ := s.Get(ctx, ThreadKey); ok {
		t.Fatalf("expired thread entry was not purged")
	}
	if _, ok := c.LastGlobalSync(ctx); ok {
		t.Fatalf("expired thread snapshot should reset the watermark")
	}
}

func TestThreadCacheWatermark(t *testing.T) {
	ctx := context.Background()
	clk := useClock(t, base)
	c := New(kv.NewMemory(), Options{})

	if _, ok := c.LastGlobalSync(ctx); ok {
		t.Fatalf("fresh cache should have no watermark")
	}
	threads := []models.Thread{{ThreadGUID: "b", ThreadName: "B"}, {ThreadGUID: "a", ThreadName: "A"}}
	c.Threads.CacheThreads(ctx, threads)

	got := c.Threads.GetCachedThreads(ctx)
	if len(got) != 2 || got[0].ThreadGUID != "b" {
		t.Fatalf("thread list not stored verbatim: %+v", got)
	}
	wm, ok := c.LastGlobalSync(ctx)
	if !ok || !wm.Equal(base) {
		t.Fatalf("watermark = %v ok=%v, want %v", wm, ok, base)
	}

	clk.Advance(time.Minute)
	c.Threads.Clear(ctx)
	if c.Threads.GetCachedThreads(ctx) != nil {
		t.Fatalf("clear left the snapshot behind")
	}
	if _, ok := c.LastGlobalSync(ctx); ok {
		t.Fatalf("clear should reset the watermark")
	}
}

func TestAdvanceLastGlobalSyncMonotonic(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})

	later := base.Add(time.Hour)
	if got := c.AdvanceLastGlobalSync(ctx, later); !got.Equal(later) {
		t.Fatalf("advance = %v", got)
	}
	if got := c.AdvanceLastGlobalSync(ctx, base); !got.Equal(later) {
		t.Fatalf("watermark moved backwards to %v", got)
	}
	wm, _ := c.LastGlobalSync(ctx)
	if !wm.Equal(later) {
		t.Fatalf("persisted watermark = %v", wm)
	}
}

func TestClearThreadRemovesMetadata(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})
	c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m1", 0)}, Replace)
	c.Messages.CacheThreadMessages(ctx, "T2", []models.Message{msg("m2", 0)}, Replace)

	c.Messages.ClearThread(ctx, "T1")
	if c.Messages.GetThreadMessages(ctx, "T1") != nil {
		t.Fatalf("T1 history survived clear")
	}
	meta := c.Metadata(ctx)
	if _, ok := meta.ThreadSyncTimes["T1"]; ok {
		t.Fatalf("T1 sync time survived clear")
	}
	if meta.ThreadMessageCounts["T2"] != 1 {
		t.Fatalf("T2 metadata was disturbed: %+v", meta)
	}
}

func TestStatsAndClearAll(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemory()
	c := New(s, Options{})
	if err := s.Set(ctx, "settings_theme", "dark"); err != nil {
		t.Fatalf("seed foreign key: %v", err)
	}

	c.Threads.CacheThreads(ctx, []models.Thread{{ThreadGUID: "T1"}, {ThreadGUID: "T2"}})
	c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m1", 0), msg("m2", 1)}, Replace)
	c.Messages.CacheThreadMessages(ctx, "T2", []models.Message{msg("m3", 0)}, Replace)

	st := c.Stats(ctx)
	if st.ThreadsWithCache != 2 || st.TotalThreads != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if st.LastGlobalSync == nil {
		t.Fatalf("stats missing last_global_sync")
	}
	if !reflect.DeepEqual(st.ThreadMessageCounts, map[string]int{"T1": 2, "T2": 1}) {
		t.Fatalf("counts = %v", st.ThreadMessageCounts)
	}
	if got := c.CachedThreadGUIDs(ctx); !reflect.DeepEqual(got, []string{"T1", "T2"}) {
		t.Fatalf("cached guids = %v", got)
	}

	c.ClearAll(ctx)
	keys, err := s.ListKeys(ctx)
	if err != nil {
		t.Fatalf("list keys: %v", err)
	}
	if !reflect.DeepEqual(keys, []string{"settings_theme"}) {
		t.Fatalf("keys after clear all = %v", keys)
	}
	st = c.Stats(ctx)
	if st.ThreadsWithCache != 0 || st.TotalThreads != 0 || st.LastGlobalSync != nil {
		t.Fatalf("stats after clear = %+v", st)
	}
}

func TestStoreFailuresDegrade(t *testing.T) {
	ctx := context.Background()
	s := newFlaky()
	c := New(s, Options{})
	c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m1", 0)}, Replace)

	s.set(true, false, false)
	if got := c.Messages.GetThreadMessages(ctx, "T1"); got != nil {
		t.Fatalf("read failure should look absent, got %v", guids(got))
	}
	if c.Threads.GetCachedThreads(ctx) != nil {
		t.Fatalf("read failure should look absent for threads")
	}

	s.set(false, true, false)
	got := c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m2", 1)}, Append)
	if !reflect.DeepEqual(guids(got), []string{"m1", "m2"}) {
		t.Fatalf("write failure should still return the merged list, got %v", guids(got))
	}
	c.Threads.CacheThreads(ctx, []models.Thread{{ThreadGUID: "T1"}})

	s.set(false, false, true)
	if st := c.Stats(ctx); st.ThreadsWithCache != 0 {
		t.Fatalf("stats on list failure = %+v", st)
	}
	c.ClearAll(ctx)

	s.set(false, false, false)
	if got := c.Messages.GetThreadMessages(ctx, "T1"); !reflect.DeepEqual(guids(got), []string{"m1"}) {
		t.Fatalf("dropped write should leave the previous state, got %v", guids(got))
	}
}

func TestCorruptEntryIsAbsentAndPurged(t *testing.T) {
	ctx := context.Background()
	s := kv.NewMemory()
	c := New(s, Options{})
	if err := s.Set(ctx, messageKey("T1"), "{not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := s.Set(ctx, MetadataKey, "also not json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if c.Messages.GetThreadMessages(ctx, "T1") != nil {
		t.Fatalf("corrupt entry should be absent")
	}
	if _, ok, _ := s.Get(ctx, messageKey("T1")); ok {
		t.Fatalf("corrupt entry should be purged")
	}
	if m := c.Metadata(ctx); m.LastGlobalSync != nil || m.ThreadSyncTimes == nil {
		t.Fatalf("corrupt metadata should read as defaults: %+v", m)
	}
}

func TestSweepPurgesOnlyExpired(t *testing.T) {
	ctx := context.Background()
	clk := useClock(t, base)
	s := kv.NewMemory()
	c := New(s, Options{MaxAge: time.Hour})

	c.Messages.CacheThreadMessages(ctx, "old", []models.Message{msg("m1", 0)}, Replace)
	c.Threads.CacheThreads(ctx, []models.Thread{{ThreadGUID: "old"}})
	clk.Advance(50 * time.Minute)
	c.Messages.CacheThreadMessages(ctx, "fresh", []models.Message{msg("m2", 0)}, Replace)
	clk.Advance(20 * time.Minute)

	n, err := c.Sweep(ctx)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged %d entries, want 2", n)
	}
	if got := c.CachedThreadGUIDs(ctx); !reflect.DeepEqual(got, []string{"fresh"}) {
		t.Fatalf("remaining = %v", got)
	}
}

func TestConcurrentAppendsDoNotLoseUpdates(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})

	const writers = 32
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg(fmt.Sprintf("w%02d", i), i)}, Append)
		}(i)
	}
	wg.Wait()

	if got := c.Messages.GetThreadMessages(ctx, "T1"); len(got) != writers {
		t.Fatalf("stored %d messages, want %d", len(got), writers)
	}
	if n := c.locks.size(); n != 0 {
		t.Fatalf("thread locks leaked: %d", n)
	}
}

func TestMergeThreadsUnderLock(t *testing.T) {
	ctx := context.Background()
	c := New(kv.NewMemory(), Options{})
	c.Threads.CacheThreads(ctx, []models.Thread{{ThreadGUID: "a", ThreadName: "old"}, {ThreadGUID: "b"}})

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Threads.MergeThreads(ctx, []models.Thread{{ThreadGUID: fmt.Sprintf("n%02d", i)}})
		}(i)
	}
	wg.Wait()
	got := c.Threads.MergeThreads(ctx, []models.Thread{{ThreadGUID: "a", ThreadName: "new"}})
	if len(got) != 18 {
		t.Fatalf("merged %d threads, want 18", len(got))
	}
	if got[0].ThreadName != "new" {
		t.Fatalf("incoming thread should win: %+v", got[0])
	}
}

func TestClearAllWaitsForInFlightMerge(t *testing.T) {
	ctx := context.Background()
	gate := newGate(messageKey("T1"))
	c := New(gate, Options{})
	c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m1", 0), msg("m2", 1)}, Replace)

	gate.armed.Store(true)
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Messages.CacheThreadMessages(ctx, "T1", []models.Message{msg("m3", 2)}, Append)
	}()
	<-gate.entered
	go func() {
		defer wg.Done()
		c.ClearAll(ctx)
	}()
	time.Sleep(20 * time.Millisecond)
	close(gate.release)
	wg.Wait()

	if got := c.Messages.GetThreadMessages(ctx, "T1"); len(got) != 0 {
		t.Fatalf("cleared history came back: %v", guids(got))
	}
	stats := c.Stats(ctx)
	if stats.ThreadsWithCache != 0 {
		t.Fatalf("threads with cache = %d, want 0", stats.ThreadsWithCache)
	}
	if _, ok := c.Metadata(ctx).ThreadMessageCounts["T1"]; ok {
		t.Fatalf("metadata still counts T1")
	}
}
