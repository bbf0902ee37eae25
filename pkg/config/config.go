package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultAddress           = "127.0.0.1"
	defaultPort              = 7801
	defaultBackend           = "pebble"
	defaultDBPath            = "./.threadsync"
	defaultRemoteURL         = "http://127.0.0.1:5001"
	defaultRemoteTimeout     = 3 * time.Second
	defaultPollInterval      = 10 * time.Second
	defaultPollLimit         = 20
	defaultThreadFetchLimit  = 50
	defaultMessageFetchLimit = 50
	defaultOlderPageLimit    = 50
	defaultRefreshTimeout    = 10 * time.Second
	defaultRefreshRPS        = 1
	defaultRefreshBurst      = 2
	defaultCacheMaxAge       = 24 * time.Hour
	defaultMaxMessages       = 500
	defaultJanitorCron       = "*/15 * * * *"
	defaultRateRPS           = 200
	defaultRateBurst         = 400
	defaultLogLevel          = "info"
	defaultLogSink           = "stdout"
	defaultLogMaxSize        = 10 * 1000 * 1000
	defaultLogMaxBackups     = 3
	defaultLogMaxAgeDays     = 14
)

// Default returns a config with every default applied.
func Default() *Config {
	c := &Config{}
	c.ApplyDefaults()
	return c
}

// Addr returns the HTTP server address as host:port.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = defaultAddress
	}
	port := c.Server.Port
	if port == 0 {
		port = defaultPort
	}
	return net.JoinHostPort(addr, strconv.Itoa(port))
}

// LoadConfigFile reads and parses a config file.
func LoadConfigFile(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// ApplyDefaults fills every unset field.
func (c *Config) ApplyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = defaultAddress
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultPort
	}
	if c.Server.RateLimit.RPS == 0 {
		c.Server.RateLimit.RPS = defaultRateRPS
	}
	if c.Server.RateLimit.Burst == 0 {
		c.Server.RateLimit.Burst = defaultRateBurst
	}

	if c.Store.Backend == "" {
		c.Store.Backend = defaultBackend
	}
	if c.Store.Path == "" && c.Store.Backend != "memory" {
		c.Store.Path = defaultDBPath
	}

	if c.Remote.BaseURL == "" {
		c.Remote.BaseURL = defaultRemoteURL
	}
	if c.Remote.Timeout == 0 {
		c.Remote.Timeout = Duration(defaultRemoteTimeout)
	}

	s := &c.Sync
	if s.PollInterval == 0 {
		s.PollInterval = Duration(defaultPollInterval)
	}
	if s.PollLimit == 0 {
		s.PollLimit = defaultPollLimit
	}
	if s.ThreadFetchLimit == 0 {
		s.ThreadFetchLimit = defaultThreadFetchLimit
	}
	if s.MessageFetchLimit == 0 {
		s.MessageFetchLimit = defaultMessageFetchLimit
	}
	if s.OlderPageLimit == 0 {
		s.OlderPageLimit = defaultOlderPageLimit
	}
	if s.RefreshTimeout == 0 {
		s.RefreshTimeout = Duration(defaultRefreshTimeout)
	}
	if s.RefreshRPS == 0 {
		s.RefreshRPS = defaultRefreshRPS
	}
	if s.RefreshBurst == 0 {
		s.RefreshBurst = defaultRefreshBurst
	}

	if c.Cache.MaxAge == 0 {
		c.Cache.MaxAge = Duration(defaultCacheMaxAge)
	}
	if c.Cache.MaxMessagesPerThread == 0 {
		c.Cache.MaxMessagesPerThread = defaultMaxMessages
	}

	if c.Janitor.Cron == "" {
		c.Janitor.Cron = defaultJanitorCron
	}

	l := &c.Logging
	if l.Level == "" {
		l.Level = defaultLogLevel
	}
	if l.Sink == "" {
		l.Sink = defaultLogSink
	}
	if l.MaxSize == 0 {
		l.MaxSize = SizeBytes(defaultLogMaxSize)
	}
	if l.MaxBackups == 0 {
		l.MaxBackups = defaultLogMaxBackups
	}
	if l.MaxAgeDays == 0 {
		l.MaxAgeDays = defaultLogMaxAgeDays
	}
}

// Overlay copies every field set in src over c. Later layers win.
func (c *Config) Overlay(src *Config) {
	if src == nil {
		return
	}
	setStr(&c.Server.Address, src.Server.Address)
	setInt(&c.Server.Port, src.Server.Port)
	if len(src.Server.CORS.AllowedOrigins) > 0 {
		c.Server.CORS.AllowedOrigins = src.Server.CORS.AllowedOrigins
	}
	setFloat(&c.Server.RateLimit.RPS, src.Server.RateLimit.RPS)
	setInt(&c.Server.RateLimit.Burst, src.Server.RateLimit.Burst)

	setStr(&c.Store.Backend, src.Store.Backend)
	setStr(&c.Store.Path, src.Store.Path)
	setBool(&c.Store.SyncWrites, src.Store.SyncWrites)

	setStr(&c.Remote.BaseURL, src.Remote.BaseURL)
	setDur(&c.Remote.Timeout, src.Remote.Timeout)

	setDur(&c.Sync.PollInterval, src.Sync.PollInterval)
	setBool(&c.Sync.PollOnStart, src.Sync.PollOnStart)
	setInt(&c.Sync.PollLimit, src.Sync.PollLimit)
	setInt(&c.Sync.ThreadFetchLimit, src.Sync.ThreadFetchLimit)
	setInt(&c.Sync.MessageFetchLimit, src.Sync.MessageFetchLimit)
	setInt(&c.Sync.OlderPageLimit, src.Sync.OlderPageLimit)
	setDur(&c.Sync.RefreshTimeout, src.Sync.RefreshTimeout)
	setFloat(&c.Sync.RefreshRPS, src.Sync.RefreshRPS)
	setInt(&c.Sync.RefreshBurst, src.Sync.RefreshBurst)

	setDur(&c.Cache.MaxAge, src.Cache.MaxAge)
	setInt(&c.Cache.MaxMessagesPerThread, src.Cache.MaxMessagesPerThread)

	setBool(&c.Janitor.Enabled, src.Janitor.Enabled)
	setStr(&c.Janitor.Cron, src.Janitor.Cron)

	setStr(&c.Logging.Level, src.Logging.Level)
	setStr(&c.Logging.Sink, src.Logging.Sink)
	if src.Logging.MaxSize != 0 {
		c.Logging.MaxSize = src.Logging.MaxSize
	}
	setInt(&c.Logging.MaxBackups, src.Logging.MaxBackups)
	setInt(&c.Logging.MaxAgeDays, src.Logging.MaxAgeDays)
}

func setStr(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

func setDur(dst *Duration, v Duration) {
	if v != 0 {
		*dst = v
	}
}

func setBool(dst **bool, v *bool) {
	if v != nil {
		b := *v
		*dst = &b
	}
}

// ResolveConfigPath returns the config file path, preferring flag, then env.
func ResolveConfigPath(flagPath string, flagSet bool) string {
	if flagSet {
		return flagPath
	}
	if p := os.Getenv("THREADSYNC_CONFIG"); p != "" {
		return p
	}
	return flagPath
}
