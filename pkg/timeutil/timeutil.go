package timeutil

import (
	"sync"
	"time"
)

var (
	mu    sync.RWMutex
	clock = time.Now
)

// Now returns the current time in UTC from the active clock.
func Now() time.Time {
	mu.RLock()
	c := clock
	mu.RUnlock()
	return c().UTC()
}

// SetClock swaps the clock and returns a func restoring the previous one.
func SetClock(fn func() time.Time) (restore func()) {
	mu.Lock()
	prev := clock
	clock = fn
	mu.Unlock()
	return func() {
		mu.Lock()
		clock = prev
		mu.Unlock()
	}
}

// Fixed is a settable clock for tests.
type Fixed struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixed(t time.Time) *Fixed { return &Fixed{t: t} }

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.t = t
	f.mu.Unlock()
}
