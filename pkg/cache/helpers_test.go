package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"threadsync/pkg/models"
	kv "threadsync/pkg/store"
	"threadsync/pkg/timeutil"
)

var base = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)

func msg(guid string, minute int) models.Message {
	return models.Message{
		GUID:       guid,
		ThreadGUID: "T1",
		Timestamp:  base.Add(time.Duration(minute) * time.Minute),
		SenderName: "alice",
		Direction:  models.DirectionIncoming,
	}
}

func guids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.GUID
	}
	return out
}

// useClock pins timeutil.Now for the duration of the test.
func useClock(t *testing.T, start time.Time) *timeutil.Fixed {
	t.Helper()
	clk := timeutil.NewFixed(start)
	restore := timeutil.SetClock(clk.Now)
	t.Cleanup(restore)
	return clk
}

var errInjected = errors.New("injected store failure")

// flakyStore fails selected operations on demand.
type flakyStore struct {
	*kv.MemoryStore
	mu       sync.Mutex
	failGet  bool
	failSet  bool
	failList bool
}

func newFlaky() *flakyStore { return &flakyStore{MemoryStore: kv.NewMemory()} }

func (f *flakyStore) set(get, set, list bool) {
	f.mu.Lock()
	f.failGet, f.failSet, f.failList = get, set, list
	f.mu.Unlock()
}

func (f *flakyStore) Get(ctx context.Context, key string) (string, bool, error) {
	f.mu.Lock()
	fail := f.failGet
	f.mu.Unlock()
	if fail {
		return "", false, errInjected
	}
	return f.MemoryStore.Get(ctx, key)
}

func (f *flakyStore) Set(ctx context.Context, key, value string) error {
	f.mu.Lock()
	fail := f.failSet
	f.mu.Unlock()
	if fail {
		return errInjected
	}
	return f.MemoryStore.Set(ctx, key, value)
}

func (f *flakyStore) ListKeys(ctx context.Context) ([]string, error) {
	f.mu.Lock()
	fail := f.failList
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("list: %w", errInjected)
	}
	return f.MemoryStore.ListKeys(ctx)
}

// gateStore parks the first Set on key until release is closed.
type gateStore struct {
	*kv.MemoryStore
	key     string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func newGate(key string) *gateStore {
	return &gateStore{
		MemoryStore: kv.NewMemory(),
		key:         key,
		entered:     make(chan struct{}),
		release:     make(chan struct{}),
	}
}

func (g *gateStore) Set(ctx context.Context, key, value string) error {
	if key == g.key && g.armed.CompareAndSwap(true, false) {
		close(g.entered)
		<-g.release
	}
	return g.MemoryStore.Set(ctx, key, value)
}
