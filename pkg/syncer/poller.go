package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"threadsync/pkg/cache"
	"threadsync/pkg/logger"
	"threadsync/pkg/models"
	"threadsync/pkg/remote"
	"threadsync/pkg/telemetry"
	"threadsync/pkg/timeutil"
)

const (
	DefaultPollInterval = 10 * time.Second
	DefaultPollLimit    = 20
	defaultTickTimeout  = 30 * time.Second
)

// ErrNoWatermark is returned by Tick when there is no last_global_sync to
// bound the recent-messages query by.
var ErrNoWatermark = errors.New("no global sync watermark")

type PollerOptions struct {
	Limit       int
	TickTimeout time.Duration
}

// Poller pulls the recent-messages feed on a fixed interval and fans it out
// into the message cache. Only one loop runs at a time and ticks never
// overlap.
type Poller struct {
	cache *cache.Cache
	src   remote.Source
	opts  PollerOptions

	mu       sync.Mutex
	cancel   context.CancelFunc
	interval time.Duration
	gen      uint64
	loops    sync.WaitGroup

	tickMu sync.Mutex
}

func NewPoller(c *cache.Cache, src remote.Source, opts PollerOptions) *Poller {
	if opts.Limit <= 0 {
		opts.Limit = DefaultPollLimit
	}
	if opts.TickTimeout <= 0 {
		opts.TickTimeout = defaultTickTimeout
	}
	return &Poller{cache: c, src: src, opts: opts}
}

// Start begins polling every interval. A running loop is replaced.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		p.cancel()
	}
	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.interval = interval
	p.gen++
	p.loops.Add(1)
	go p.loop(loopCtx, interval, p.gen)
	logger.Info("polling_started", "interval", interval.String())
}

// Stop cancels the pending timer. A tick already in flight completes.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.interval = 0
	logger.Info("polling_stopped")
}

func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Interval returns the active interval, or zero when stopped.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// Wait blocks until every loop started so far has exited.
func (p *Poller) Wait() {
	p.loops.Wait()
}

func (p *Poller) loop(ctx context.Context, interval time.Duration, gen uint64) {
	defer p.loops.Done()
	defer p.exited(gen)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.opts.TickTimeout)
			if err := p.Tick(tctx); err != nil && !errors.Is(err, ErrNoWatermark) {
				logger.Warn("poll_tick_failed", "error", err)
			}
			cancel()
		}
	}
}

// exited clears the running state when the loop ends on its own context,
// unless a newer loop has replaced it.
func (p *Poller) exited(gen uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.gen != gen || p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil
	p.interval = 0
	logger.Info("polling_stopped", "reason", "context done")
}

// Tick runs a single poll. Without a watermark it makes no remote call. On
// fetch failure the watermark is left unchanged.
func (p *Poller) Tick(ctx context.Context) error {
	p.tickMu.Lock()
	defer p.tickMu.Unlock()

	since, ok := p.cache.LastGlobalSync(ctx)
	if !ok {
		telemetry.PollTicks.WithLabelValues("skipped").Inc()
		return ErrNoWatermark
	}

	started := timeutil.Now()
	recent, err := p.src.ListRecentMessages(ctx, p.opts.Limit, since)
	if err != nil {
		telemetry.PollTicks.WithLabelValues("failed").Inc()
		return err
	}

	if len(recent) >= p.opts.Limit {
		// the feed is capped; anything past the limit is skipped once the
		// watermark moves
		telemetry.PollTicks.WithLabelValues("truncated").Inc()
		logger.Warn("poll_limit_reached", "limit", p.opts.Limit, "since", since)
	}

	groups, order := models.GroupByThread(recent)
	for _, guid := range order {
		if guid == "" {
			continue
		}
		p.cache.Messages.CacheThreadMessages(ctx, guid, groups[guid], cache.Append)
	}
	wm := p.cache.AdvanceLastGlobalSync(ctx, started)
	telemetry.PollTicks.WithLabelValues("ok").Inc()
	logger.Debug("poll_tick_done", "messages", len(recent), "threads", len(order), "watermark", wm)
	return nil
}
