// Package syncer keeps the local cache converging on the remote source:
// stale-while-revalidate reads through the Coordinator and a periodic pull
// of recent messages through the Poller.
package syncer

import (
	"context"
	"sync"
	"time"

	"threadsync/pkg/cache"
	"threadsync/pkg/logger"
	"threadsync/pkg/models"
	"threadsync/pkg/ratelimit"
	"threadsync/pkg/remote"
	"threadsync/pkg/telemetry"
)

const (
	DefaultThreadFetchLimit  = 50
	DefaultMessageFetchLimit = 50
	DefaultOlderPageLimit    = 50
	DefaultRecentLimit       = 20
	DefaultRefreshTimeout    = 10 * time.Second
)

type Options struct {
	ThreadFetchLimit  int
	MessageFetchLimit int
	OlderPageLimit    int
	// RecentLimit bounds the recent-messages feed used by background
	// message refreshes.
	RecentLimit    int
	RefreshTimeout time.Duration
	// RefreshRPS throttles background refreshes per thread; zero disables.
	RefreshRPS   float64
	RefreshBurst int
}

func (o *Options) withDefaults() {
	if o.ThreadFetchLimit <= 0 {
		o.ThreadFetchLimit = DefaultThreadFetchLimit
	}
	if o.MessageFetchLimit <= 0 {
		o.MessageFetchLimit = DefaultMessageFetchLimit
	}
	if o.OlderPageLimit <= 0 {
		o.OlderPageLimit = DefaultOlderPageLimit
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	if o.RefreshTimeout <= 0 {
		o.RefreshTimeout = DefaultRefreshTimeout
	}
}

// Coordinator serves reads from the cache and revalidates in the
// background. Background refreshes run detached from the caller's context
// and report failures only to the log.
type Coordinator struct {
	cache    *cache.Cache
	src      remote.Source
	opts     Options
	throttle *ratelimit.Pool
	bg       sync.WaitGroup
}

func NewCoordinator(c *cache.Cache, src remote.Source, opts Options) *Coordinator {
	opts.withDefaults()
	return &Coordinator{
		cache:    c,
		src:      src,
		opts:     opts,
		throttle: ratelimit.NewPool(opts.RefreshRPS, opts.RefreshBurst),
	}
}

// Throttle exposes the refresh limiter so its eviction loop can be run by
// the owner.
func (co *Coordinator) Throttle() *ratelimit.Pool { return co.throttle }

// GetThreads returns the cached snapshot when one exists (and refreshes it
// in the background), otherwise fetches from the remote.
func (co *Coordinator) GetThreads(ctx context.Context, force bool) ([]models.Thread, error) {
	var since *time.Time
	if !force {
		cached := co.cache.Threads.GetCachedThreads(ctx)
		if wm, ok := co.cache.LastGlobalSync(ctx); ok {
			since = &wm
		}
		if len(cached) > 0 {
			co.spawn("threads", "", func(bctx context.Context) error {
				return co.refreshThreads(bctx, since)
			})
			return cached, nil
		}
	}

	threads, err := co.src.ListThreads(ctx, co.opts.ThreadFetchLimit, since)
	if err != nil {
		if cached := co.cache.Threads.GetCachedThreads(ctx); len(cached) > 0 {
			logger.Warn("threads_fetch_failed_serving_cache", "cached", len(cached), "error", err)
			telemetry.Fallbacks.WithLabelValues("threads").Inc()
			return cached, nil
		}
		return nil, err
	}

	if since == nil {
		co.cache.Threads.CacheThreads(ctx, threads)
	} else {
		co.cache.Threads.MergeThreads(ctx, threads)
	}
	return threads, nil
}

func (co *Coordinator) refreshThreads(ctx context.Context, since *time.Time) error {
	if since == nil {
		return nil
	}
	threads, err := co.src.ListThreads(ctx, co.opts.ThreadFetchLimit, since)
	if err != nil {
		return err
	}
	if len(threads) > 0 {
		co.cache.Threads.MergeThreads(ctx, threads)
	}
	return nil
}

// GetThreadMessages returns the cached history when one exists (and pulls
// newer messages in the background), otherwise fetches the latest page and
// stores it in replace mode.
func (co *Coordinator) GetThreadMessages(ctx context.Context, threadGUID string, force bool) ([]models.Message, error) {
	if !force {
		cached := co.cache.Messages.GetThreadMessages(ctx, threadGUID)
		if len(cached) > 0 {
			latest := cached[len(cached)-1].Timestamp
			co.spawn("messages", threadGUID, func(bctx context.Context) error {
				return co.refreshThreadMessages(bctx, threadGUID, latest)
			})
			return cached, nil
		}
	}

	msgs, err := co.src.ListMessages(ctx, threadGUID, co.opts.MessageFetchLimit, nil)
	if err != nil {
		if cached := co.cache.Messages.GetThreadMessages(ctx, threadGUID); len(cached) > 0 {
			logger.Warn("messages_fetch_failed_serving_cache", "thread", threadGUID, "cached", len(cached), "error", err)
			telemetry.Fallbacks.WithLabelValues("messages").Inc()
			return cached, nil
		}
		return nil, err
	}
	return co.cache.Messages.CacheThreadMessages(ctx, threadGUID, msgs, cache.Replace), nil
}

// refreshThreadMessages pulls the cross-thread recent feed since the
// thread's newest message and appends what belongs to this thread.
func (co *Coordinator) refreshThreadMessages(ctx context.Context, threadGUID string, since time.Time) error {
	recent, err := co.src.ListRecentMessages(ctx, co.opts.RecentLimit, since)
	if err != nil {
		return err
	}
	var mine []models.Message
	for _, m := range recent {
		if m.ThreadGUID == threadGUID {
			mine = append(mine, m)
		}
	}
	if len(mine) > 0 {
		co.cache.Messages.CacheThreadMessages(ctx, threadGUID, mine, cache.Append)
	}
	return nil
}

// LoadOlderMessages fetches the page just before the oldest cached message,
// merges it, and returns only that page. Without any cached history it
// behaves like a forced GetThreadMessages.
func (co *Coordinator) LoadOlderMessages(ctx context.Context, threadGUID string, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = co.opts.OlderPageLimit
	}
	oldest, ok := co.cache.Messages.OldestTimestamp(ctx, threadGUID)
	if !ok {
		return co.GetThreadMessages(ctx, threadGUID, true)
	}
	older, err := co.src.ListMessages(ctx, threadGUID, limit, &oldest)
	if err != nil {
		return nil, err
	}
	if len(older) > 0 {
		co.cache.Messages.CacheThreadMessages(ctx, threadGUID, older, cache.Append)
	}
	return older, nil
}

// AddMessageToCache inserts a just-sent message through the append path and
// returns the stored history.
func (co *Coordinator) AddMessageToCache(ctx context.Context, threadGUID string, msg models.Message) []models.Message {
	if msg.ThreadGUID == "" {
		msg.ThreadGUID = threadGUID
	}
	return co.cache.Messages.CacheThreadMessages(ctx, threadGUID, []models.Message{msg}, cache.Append)
}

// SendMessage sends through the remote and optimistically caches the
// persisted message when the server returns one.
func (co *Coordinator) SendMessage(ctx context.Context, threadGUID string, out models.OutgoingMessage) (*models.Message, error) {
	sent, err := co.src.SendMessage(ctx, threadGUID, out)
	if err != nil {
		return nil, err
	}
	if sent != nil {
		co.AddMessageToCache(ctx, threadGUID, *sent)
	}
	return sent, nil
}

// ClearThread drops one thread's history.
func (co *Coordinator) ClearThread(ctx context.Context, threadGUID string) {
	co.cache.Messages.ClearThread(ctx, threadGUID)
}

// ClearCache removes everything the cache owns.
func (co *Coordinator) ClearCache(ctx context.Context) {
	co.cache.ClearAll(ctx)
}

func (co *Coordinator) GetCacheStats(ctx context.Context) cache.Stats {
	return co.cache.Stats(ctx)
}

// Wait blocks until every background refresh has finished.
func (co *Coordinator) Wait() {
	co.bg.Wait()
}

// spawn runs fn in the background on a context detached from any caller.
func (co *Coordinator) spawn(kind, key string, fn func(context.Context) error) {
	if !co.throttle.Allow(kind + ":" + key) {
		telemetry.BackgroundRefreshes.WithLabelValues(kind, "throttled").Inc()
		logger.Debug("background_refresh_throttled", "kind", kind, "thread", key)
		return
	}
	co.bg.Add(1)
	go func() {
		defer co.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), co.opts.RefreshTimeout)
		defer cancel()
		err := fn(ctx)
		telemetry.BackgroundRefreshes.WithLabelValues(kind, telemetry.Outcome(err)).Inc()
		if err != nil {
			logger.Warn("background_refresh_failed", "kind", kind, "thread", key, "error", err)
		}
	}()
}
