package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration struct.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Store   StoreConfig   `yaml:"store"`
	Remote  RemoteConfig  `yaml:"remote"`
	Sync    SyncConfig    `yaml:"sync"`
	Cache   CacheConfig   `yaml:"cache"`
	Janitor JanitorConfig `yaml:"janitor"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig holds the local API listener settings.
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	CORS    struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"cors"`
	RateLimit struct {
		RPS   float64 `yaml:"rps"`
		Burst int     `yaml:"burst"`
	} `yaml:"rate_limit"`
}

// StoreConfig selects the persistent backend.
type StoreConfig struct {
	Backend string `yaml:"backend"` // pebble | sqlite | memory
	Path    string `yaml:"path"`
	// SyncWrites fsyncs every pebble write. Defaults to true.
	SyncWrites *bool `yaml:"sync_writes"`
}

// RemoteConfig points at the messaging server.
type RemoteConfig struct {
	BaseURL string   `yaml:"base_url"`
	Timeout Duration `yaml:"timeout"`
}

// SyncConfig tunes polling and fetch sizes.
type SyncConfig struct {
	PollInterval Duration `yaml:"poll_interval"`
	// PollOnStart starts the poller with the service. Defaults to true.
	PollOnStart       *bool    `yaml:"poll_on_start"`
	PollLimit         int      `yaml:"poll_limit"`
	ThreadFetchLimit  int      `yaml:"thread_fetch_limit"`
	MessageFetchLimit int      `yaml:"message_fetch_limit"`
	OlderPageLimit    int      `yaml:"older_page_limit"`
	RefreshTimeout    Duration `yaml:"refresh_timeout"`
	RefreshRPS        float64  `yaml:"refresh_rps"`
	RefreshBurst      int      `yaml:"refresh_burst"`
}

type CacheConfig struct {
	MaxAge               Duration `yaml:"max_age"`
	MaxMessagesPerThread int      `yaml:"max_messages_per_thread"`
}

// JanitorConfig schedules the expired-entry sweep.
type JanitorConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Cron    string `yaml:"cron"`
}

type LoggingConfig struct {
	Level      string    `yaml:"level"`
	Sink       string    `yaml:"sink"` // stdout | stderr | file:<path>
	MaxSize    SizeBytes `yaml:"max_size"`
	MaxBackups int       `yaml:"max_backups"`
	MaxAgeDays int       `yaml:"max_age_days"`
}

// SizeBytes represents a number of bytes, unmarshaled from human-friendly strings like "64MB" or plain integers.
type SizeBytes int64

func (s *SizeBytes) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*s = 0
		return nil
	}
	v, err := ParseSize(node.Value)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s SizeBytes) Int64() int64 { return int64(s) }

// MB rounds up to whole megabytes, the unit lumberjack rotates by.
func (s SizeBytes) MB() int {
	if s <= 0 {
		return 0
	}
	const mb = 1000 * 1000
	return int((int64(s) + mb - 1) / mb)
}

// ParseSize accepts "10MB", "1GiB" or a plain byte count.
func ParseSize(raw string) (SizeBytes, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if v, err := humanize.ParseBytes(raw); err == nil {
		return SizeBytes(v), nil
	}
	if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return SizeBytes(i), nil
	}
	return 0, fmt.Errorf("invalid size value: %q", raw)
}

// Duration is a wrapper around time.Duration that supports YAML parsing from strings like "100ms" or plain numbers (interpreted as seconds).
type Duration time.Duration

func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	if node == nil {
		*d = Duration(0)
		return nil
	}
	v, err := ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// ParseDuration accepts "10s"-style strings or numeric seconds.
func ParseDuration(raw string) (Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	if td, err := time.ParseDuration(raw); err == nil {
		return Duration(td), nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return Duration(time.Duration(f * float64(time.Second))), nil
	}
	return 0, fmt.Errorf("invalid duration value: %q", raw)
}

func boolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// PollOnStart reports whether polling begins with the service.
func (c *Config) PollOnStart() bool { return boolOr(c.Sync.PollOnStart, true) }

// JanitorEnabled reports whether the sweep schedule runs.
func (c *Config) JanitorEnabled() bool { return boolOr(c.Janitor.Enabled, true) }

// SyncWrites reports whether store writes are fsynced.
func (c *Config) SyncWrites() bool { return boolOr(c.Store.SyncWrites, true) }
