package app

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"

	"threadsync/internal/janitor"
	"threadsync/pkg/api"
	"threadsync/pkg/cache"
	"threadsync/pkg/config"
	"threadsync/pkg/config/banner"
	"threadsync/pkg/logger"
	"threadsync/pkg/remote"
	"threadsync/pkg/state"
	"threadsync/pkg/store"
	"threadsync/pkg/syncer"
)

// App groups service state and components.
type App struct {
	eff       config.EffectiveConfigResult
	version   string
	commit    string
	buildDate string

	paths   state.Paths
	store   store.Store
	cache   *cache.Cache
	remote  *remote.Client
	coord   *syncer.Coordinator
	poller  *syncer.Poller
	janitor *janitor.Janitor
	api     *api.Server

	srvFast       *fasthttp.Server
	listener      net.Listener
	janitorCancel context.CancelFunc
	watcher       *configWatcher
	state         string
}

// New opens the store and builds every component. Nothing is started until
// Run is called.
func New(eff config.EffectiveConfigResult, version, commit, buildDate string) (*App, error) {
	if err := config.ValidateConfig(eff); err != nil {
		return nil, err
	}
	cfg := eff.Config

	a := &App{eff: eff, version: version, commit: commit, buildDate: buildDate, state: "new"}

	backend := cfg.Store.Backend
	var path string
	if backend != store.BackendMemory {
		paths, err := state.EnsureStateDirs(eff.DBPath)
		if err != nil {
			return nil, err
		}
		a.paths = paths
		path = paths.StorePath(backend)
	}
	st, err := store.Open(store.Options{Backend: backend, Path: path, SyncWrites: cfg.SyncWrites()})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store at %s: %w", backend, path, err)
	}
	a.store = st

	a.cache = cache.New(st, cache.Options{
		MaxAge:               cfg.Cache.MaxAge.Duration(),
		MaxMessagesPerThread: cfg.Cache.MaxMessagesPerThread,
	})

	rc, err := remote.NewClient(remote.ClientOptions{
		BaseURL: cfg.Remote.BaseURL,
		Timeout: cfg.Remote.Timeout.Duration(),
	})
	if err != nil {
		_ = st.Close()
		return nil, err
	}
	a.remote = rc

	a.coord = syncer.NewCoordinator(a.cache, rc, syncer.Options{
		ThreadFetchLimit:  cfg.Sync.ThreadFetchLimit,
		MessageFetchLimit: cfg.Sync.MessageFetchLimit,
		OlderPageLimit:    cfg.Sync.OlderPageLimit,
		RefreshTimeout:    cfg.Sync.RefreshTimeout.Duration(),
		RefreshRPS:        cfg.Sync.RefreshRPS,
		RefreshBurst:      cfg.Sync.RefreshBurst,
	})
	a.poller = syncer.NewPoller(a.cache, rc, syncer.PollerOptions{Limit: cfg.Sync.PollLimit})

	if cfg.JanitorEnabled() {
		j, err := janitor.New(a.cache, cfg.Janitor.Cron)
		if err != nil {
			_ = st.Close()
			return nil, err
		}
		a.janitor = j
	}
	return a, nil
}

// Run starts background work and the HTTP server, then blocks until ctx is
// cancelled or the server fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.eff.Config
	a.printBanner()
	logger.LogConfigSummary("config_sync_summary", a.syncSummary())

	a.api = api.New(a.coord, a.poller, api.Options{
		RateLimitRPS:        cfg.Server.RateLimit.RPS,
		RateLimitBurst:      cfg.Server.RateLimit.Burst,
		AllowedOrigins:      cfg.Server.CORS.AllowedOrigins,
		PollContext:         ctx,
		Ready:               a.ready,
		DefaultPollInterval: cfg.Sync.PollInterval.Duration(),
	})
	go a.api.Limiters().Run(ctx)
	go a.coord.Throttle().Run(ctx)

	if a.janitor != nil {
		a.janitorCancel = a.janitor.Start(ctx)
	}
	if cfg.PollOnStart() {
		a.poller.Start(ctx, cfg.Sync.PollInterval.Duration())
	}

	if a.eff.Path != "" {
		w, err := newConfigWatcher(a.eff.Path, func(next *config.Config) { a.applyReload(ctx, next) })
		if err != nil {
			logger.Warn("config_watch_failed", "path", a.eff.Path, "error", err)
		} else {
			a.watcher = w
		}
	}

	a.state = "running"
	errCh := a.startHTTP(ctx)

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// ready backs /readyz: the store must answer a read.
func (a *App) ready() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := a.store.Get(ctx, cache.MetadataKey)
	return err
}

// applyReload picks up settings that can change without a restart.
func (a *App) applyReload(ctx context.Context, next *config.Config) {
	if lvl := next.Logging.Level; lvl != "" && lvl != a.eff.Config.Logging.Level {
		logger.Warn("config_reload_ignored", "field", "logging.level", "reason", "restart required")
	}
	interval := next.Sync.PollInterval.Duration()
	if interval <= 0 || interval == a.eff.Config.Sync.PollInterval.Duration() {
		return
	}
	a.eff.Config.Sync.PollInterval = next.Sync.PollInterval
	logger.Info("config_reloaded", "poll_interval", interval.String())
	if a.poller.Running() {
		a.poller.Start(ctx, interval)
	}
}

func (a *App) printBanner() {
	ver := a.version
	if a.commit != "" && a.commit != "none" {
		ver += " (" + a.commit + ")"
	}
	if a.buildDate != "" && a.buildDate != "unknown" {
		ver += " @ " + a.buildDate
	}
	banner.Fprint(os.Stdout, a.eff, ver)
}

func (a *App) syncSummary() []string {
	cfg := a.eff.Config
	janitorLine := "janitor: disabled"
	if a.janitor != nil {
		janitorLine = "janitor: " + cfg.Janitor.Cron
		if next, err := a.janitor.Next(time.Now()); err == nil {
			janitorLine += " (next " + humanize.Time(next) + ")"
		}
	}
	return []string{
		fmt.Sprintf("poll_interval: %s (on start: %t)", cfg.Sync.PollInterval.Duration(), cfg.PollOnStart()),
		fmt.Sprintf("poll_limit: %s", humanize.Comma(int64(cfg.Sync.PollLimit))),
		fmt.Sprintf("cache_max_age: %s", cfg.Cache.MaxAge.Duration()),
		fmt.Sprintf("max_messages_per_thread: %s", humanize.Comma(int64(cfg.Cache.MaxMessagesPerThread))),
		fmt.Sprintf("refresh_rate: %.2f/s burst %d", cfg.Sync.RefreshRPS, cfg.Sync.RefreshBurst),
		janitorLine,
	}
}

// State is "new", "running", "shutting_down" or "stopped".
func (a *App) State() string { return a.state }
