package syncer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"threadsync/pkg/cache"
	"threadsync/pkg/models"
	kv "threadsync/pkg/store"
	"threadsync/pkg/timeutil"
)

var (
	base       = time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	errOffline = errors.New("remote offline")
)

func msg(guid, thread string, minute int) models.Message {
	return models.Message{
		GUID:       guid,
		ThreadGUID: thread,
		Timestamp:  base.Add(time.Duration(minute) * time.Minute),
		SenderName: "bob",
		Direction:  models.DirectionIncoming,
	}
}

func thread(guid, name string) models.Thread {
	return models.Thread{ThreadGUID: guid, ThreadName: name, Participants: []string{"bob"}}
}

func guids(msgs []models.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.GUID
	}
	return out
}

type call struct {
	op     string
	thread string
	limit  int
	at     *time.Time
	caller any
}

// callerKey tags a request context so tests can tell whether a remote call
// ran on it.
type callerKey struct{}

// fakeSource is an in-process remote.Source with recorded calls.
type fakeSource struct {
	mu       sync.Mutex
	calls    []call
	threads  []models.Thread
	messages map[string][]models.Message
	older    map[string][]models.Message
	recent   []models.Message
	sent     *models.Message
	err      error
	// block, when set, holds ListRecentMessages until closed
	block   chan struct{}
	entered chan struct{}
}

func newFakeSource() *fakeSource {
	return &fakeSource{messages: map[string][]models.Message{}, older: map[string][]models.Message{}}
}

func (f *fakeSource) record(c call) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
	return f.err
}

func (f *fakeSource) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeSource) callsTo(op string) []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []call
	for _, c := range f.calls {
		if c.op == op {
			out = append(out, c)
		}
	}
	return out
}

func timePtr(t time.Time) *time.Time { return &t }

func (f *fakeSource) ListThreads(ctx context.Context, limit int, since *time.Time) ([]models.Thread, error) {
	if err := f.record(call{op: "threads", limit: limit, at: since, caller: ctx.Value(callerKey{})}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Thread(nil), f.threads...), nil
}

func (f *fakeSource) ListMessages(ctx context.Context, threadGUID string, limit int, before *time.Time) ([]models.Message, error) {
	if err := f.record(call{op: "messages", thread: threadGUID, limit: limit, at: before}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if before != nil {
		return append([]models.Message(nil), f.older[threadGUID]...), nil
	}
	return append([]models.Message(nil), f.messages[threadGUID]...), nil
}

func (f *fakeSource) ListRecentMessages(ctx context.Context, limit int, since time.Time) ([]models.Message, error) {
	err := f.record(call{op: "recent", limit: limit, at: timePtr(since)})
	f.mu.Lock()
	block, entered := f.block, f.entered
	f.mu.Unlock()
	if entered != nil {
		entered <- struct{}{}
	}
	if block != nil {
		<-block
	}
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.recent...), nil
}

func (f *fakeSource) SendMessage(ctx context.Context, threadGUID string, out models.OutgoingMessage) (*models.Message, error) {
	if err := f.record(call{op: "send", thread: threadGUID}); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sent, nil
}

func newTestCache() *cache.Cache {
	return cache.New(kv.NewMemory(), cache.Options{})
}

func useClock(t *testing.T, start time.Time) *timeutil.Fixed {
	t.Helper()
	clk := timeutil.NewFixed(start)
	t.Cleanup(timeutil.SetClock(clk.Now))
	return clk
}
