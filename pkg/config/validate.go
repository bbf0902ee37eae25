package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/adhocore/gronx"
)

// ValidateConfig fails fast on values the service cannot run with.
func ValidateConfig(eff EffectiveConfigResult) error {
	cfg := eff.Config
	if cfg == nil {
		return fmt.Errorf("effective config is nil")
	}

	switch cfg.Store.Backend {
	case "pebble", "sqlite":
		if strings.TrimSpace(eff.DBPath) == "" {
			return fmt.Errorf("store path is empty: set --db, THREADSYNC_DB_PATH or store.path")
		}
	case "memory":
	default:
		return fmt.Errorf("unknown store.backend %q: want pebble, sqlite or memory", cfg.Store.Backend)
	}

	u, err := url.Parse(cfg.Remote.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid remote.base_url %q", cfg.Remote.BaseURL)
	}

	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", cfg.Server.Port)
	}
	if cfg.Sync.PollInterval.Duration() <= 0 {
		return fmt.Errorf("sync.poll_interval must be positive")
	}
	if cfg.Remote.Timeout.Duration() <= 0 {
		return fmt.Errorf("remote.timeout must be positive")
	}
	if cfg.Cache.MaxAge.Duration() <= 0 {
		return fmt.Errorf("cache.max_age must be positive")
	}
	for name, v := range map[string]int{
		"sync.poll_limit":               cfg.Sync.PollLimit,
		"sync.thread_fetch_limit":       cfg.Sync.ThreadFetchLimit,
		"sync.message_fetch_limit":      cfg.Sync.MessageFetchLimit,
		"sync.older_page_limit":         cfg.Sync.OlderPageLimit,
		"cache.max_messages_per_thread": cfg.Cache.MaxMessagesPerThread,
	} {
		if v <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, v)
		}
	}

	if cfg.JanitorEnabled() && !gronx.New().IsValid(cfg.Janitor.Cron) {
		return fmt.Errorf("invalid janitor.cron: %q is not a valid cron expression", cfg.Janitor.Cron)
	}

	sink := cfg.Logging.Sink
	if sink != "stdout" && sink != "stderr" && !strings.HasPrefix(sink, "file:") {
		return fmt.Errorf("invalid logging.sink %q: want stdout, stderr or file:<path>", sink)
	}
	return nil
}
