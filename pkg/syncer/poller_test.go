package syncer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"threadsync/pkg/logger"
	"threadsync/pkg/models"
)

func TestTickWithoutWatermarkSkips(t *testing.T) {
	useClock(t, base)
	ctx := context.Background()
	c := newTestCache()
	src := newFakeSource()
	p := NewPoller(c, src, PollerOptions{})

	err := p.Tick(ctx)
	require.True(t, errors.Is(err, ErrNoWatermark))
	require.Empty(t, src.callsTo("recent"))
	_, ok := c.LastGlobalSync(ctx)
	require.False(t, ok)
}

func TestTickFansOutAndAdvances(t *testing.T) {
	clk := useClock(t, base)
	ctx := context.Background()
	c := newTestCache()
	wm := c.AdvanceLastGlobalSync(ctx, base)

	src := newFakeSource()
	src.recent = []models.Message{
		msg("a1", "A", 1), msg("b1", "B", 1), msg("a2", "A", 2), msg("orphan", "", 2),
	}
	p := NewPoller(c, src, PollerOptions{})

	clk.Advance(10 * time.Second)
	require.NoError(t, p.Tick(ctx))

	calls := src.callsTo("recent")
	require.Len(t, calls, 1)
	require.Equal(t, DefaultPollLimit, calls[0].limit)
	require.True(t, calls[0].at.Equal(wm))

	require.Equal(t, []string{"a1", "a2"}, guids(c.Messages.GetThreadMessages(ctx, "A")))
	require.Equal(t, []string{"b1"}, guids(c.Messages.GetThreadMessages(ctx, "B")))
	require.Empty(t, c.Messages.GetThreadMessages(ctx, ""))

	got, ok := c.LastGlobalSync(ctx)
	require.True(t, ok)
	require.True(t, got.Equal(clk.Now()))
}

func TestTickAdvancesWithNoMessages(t *testing.T) {
	clk := useClock(t, base)
	ctx := context.Background()
	c := newTestCache()
	c.AdvanceLastGlobalSync(ctx, base)
	p := NewPoller(c, newFakeSource(), PollerOptions{})

	clk.Advance(time.Minute)
	require.NoError(t, p.Tick(ctx))
	got, _ := c.LastGlobalSync(ctx)
	require.True(t, got.Equal(base.Add(time.Minute)))
}

func TestTickFailureKeepsWatermark(t *testing.T) {
	clk := useClock(t, base)
	ctx := context.Background()
	c := newTestCache()
	c.AdvanceLastGlobalSync(ctx, base)
	src := newFakeSource()
	src.setErr(errOffline)
	p := NewPoller(c, src, PollerOptions{})

	clk.Advance(time.Minute)
	require.ErrorIs(t, p.Tick(ctx), errOffline)
	got, _ := c.LastGlobalSync(ctx)
	require.True(t, got.Equal(base))
}

func TestWatermarkNeverMovesBackwards(t *testing.T) {
	clk := useClock(t, base)
	ctx := context.Background()
	c := newTestCache()
	c.AdvanceLastGlobalSync(ctx, base.Add(time.Hour))
	p := NewPoller(c, newFakeSource(), PollerOptions{})

	var prev time.Time
	for i := 0; i < 5; i++ {
		require.NoError(t, p.Tick(ctx))
		got, _ := c.LastGlobalSync(ctx)
		if got.Before(prev) {
			t.Fatalf("watermark went backwards: %v -> %v", prev, got)
		}
		prev = got
		clk.Advance(20 * time.Minute)
	}
	require.True(t, prev.Equal(base.Add(80*time.Minute)))
}

func TestStartStopRestart(t *testing.T) {
	useClock(t, base)
	ctx := context.Background()
	c := newTestCache()
	c.AdvanceLastGlobalSync(ctx, base)
	src := newFakeSource()
	p := NewPoller(c, src, PollerOptions{})

	p.Start(ctx, 5*time.Millisecond)
	p.Start(ctx, 5*time.Millisecond)
	require.True(t, p.Running())
	require.Equal(t, 5*time.Millisecond, p.Interval())

	require.Eventually(t, func() bool { return len(src.callsTo("recent")) >= 2 }, time.Second, time.Millisecond)
	p.Stop()
	p.Stop()
	p.Wait()
	require.False(t, p.Running())
	require.Zero(t, p.Interval())

	n := len(src.callsTo("recent"))
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, n, len(src.callsTo("recent")), "no ticks after stop")

	p.Start(ctx, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(src.callsTo("recent")) > n }, time.Second, time.Millisecond)
	p.Stop()
	p.Wait()
}

func TestStopLetsInFlightTickFinish(t *testing.T) {
	clk := useClock(t, base)
	ctx := context.Background()
	c := newTestCache()
	c.AdvanceLastGlobalSync(ctx, base)

	src := newFakeSource()
	src.recent = []models.Message{msg("a1", "A", 1)}
	src.block = make(chan struct{})
	src.entered = make(chan struct{}, 1)
	p := NewPoller(c, src, PollerOptions{})
	clk.Advance(time.Minute)

	p.Start(ctx, 5*time.Millisecond)
	select {
	case <-src.entered:
	case <-time.After(time.Second):
		t.Fatal("tick never started")
	}
	p.Stop()
	close(src.block)
	p.Wait()

	require.Equal(t, []string{"a1"}, guids(c.Messages.GetThreadMessages(ctx, "A")))
	got, _ := c.LastGlobalSync(ctx)
	require.True(t, got.Equal(base.Add(time.Minute)))
}

func TestLoopClearsStateWhenContextEnds(t *testing.T) {
	useClock(t, base)
	c := newTestCache()
	src := newFakeSource()
	p := NewPoller(c, src, PollerOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx, 5*time.Millisecond)
	require.True(t, p.Running())
	cancel()
	p.Wait()
	require.False(t, p.Running())
	require.Zero(t, p.Interval())

	p.Start(context.Background(), time.Hour)
	defer p.Stop()
	require.True(t, p.Running())
	require.Equal(t, time.Hour, p.Interval())
}

func TestReplacedLoopDoesNotClearNewer(t *testing.T) {
	useClock(t, base)
	c := newTestCache()
	src := newFakeSource()
	p := NewPoller(c, src, PollerOptions{})

	first, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(first, 5*time.Millisecond)
	p.Start(context.Background(), time.Hour)
	defer p.Stop()

	// the first loop was cancelled by the restart; give it time to exit
	time.Sleep(20 * time.Millisecond)
	require.True(t, p.Running())
	require.Equal(t, time.Hour, p.Interval())
}

func TestTickWarnsWhenLimitReached(t *testing.T) {
	clk := useClock(t, base)
	ctx := context.Background()
	c := newTestCache()
	c.AdvanceLastGlobalSync(ctx, base)

	var buf bytes.Buffer
	logger.UseWriter(&buf, "warn")
	t.Cleanup(func() { logger.UseWriter(io.Discard, "error") })

	src := newFakeSource()
	src.recent = []models.Message{msg("a1", "A", 1), msg("b1", "B", 2)}
	p := NewPoller(c, src, PollerOptions{Limit: 2})
	clk.Advance(time.Minute)

	require.NoError(t, p.Tick(ctx))
	require.Contains(t, buf.String(), "poll_limit_reached")
	require.Contains(t, buf.String(), "limit=2")
	require.Len(t, c.Messages.GetThreadMessages(ctx, "A"), 1)

	buf.Reset()
	src.recent = []models.Message{msg("a2", "A", 3)}
	require.NoError(t, p.Tick(ctx))
	require.NotContains(t, buf.String(), "poll_limit_reached")
}
