package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestDefaults(t *testing.T) {
	c := Default()
	if c.Addr() != "127.0.0.1:7801" {
		t.Fatalf("addr %s", c.Addr())
	}
	if c.Sync.PollInterval.Duration() != 10*time.Second || c.Sync.PollLimit != 20 {
		t.Fatalf("poll defaults %+v", c.Sync)
	}
	if c.Sync.MessageFetchLimit != 50 || c.Sync.OlderPageLimit != 50 || c.Sync.ThreadFetchLimit != 50 {
		t.Fatalf("fetch defaults %+v", c.Sync)
	}
	if c.Cache.MaxAge.Duration() != 24*time.Hour || c.Cache.MaxMessagesPerThread != 500 {
		t.Fatalf("cache defaults %+v", c.Cache)
	}
	if c.Remote.Timeout.Duration() != 3*time.Second {
		t.Fatalf("remote timeout %v", c.Remote.Timeout.Duration())
	}
	if c.Store.Backend != "pebble" || c.Janitor.Cron != "*/15 * * * *" {
		t.Fatalf("store/janitor defaults %+v %+v", c.Store, c.Janitor)
	}
	if !c.PollOnStart() || !c.JanitorEnabled() || !c.SyncWrites() {
		t.Fatalf("bool defaults should be true")
	}
	if err := ValidateConfig(EffectiveConfigResult{Config: c, DBPath: c.Store.Path}); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
}

func TestYAMLDurationAndSize(t *testing.T) {
	p := writeFile(t, `
sync:
  poll_interval: 5
  refresh_timeout: 1500ms
  poll_on_start: false
cache:
  max_age: 12h
logging:
  max_size: 5MB
store:
  sync_writes: false
`)
	c, err := LoadConfigFile(p)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Sync.PollInterval.Duration() != 5*time.Second {
		t.Fatalf("numeric seconds: %v", c.Sync.PollInterval.Duration())
	}
	if c.Sync.RefreshTimeout.Duration() != 1500*time.Millisecond {
		t.Fatalf("refresh timeout %v", c.Sync.RefreshTimeout.Duration())
	}
	if c.Cache.MaxAge.Duration() != 12*time.Hour {
		t.Fatalf("max age %v", c.Cache.MaxAge.Duration())
	}
	if c.Logging.MaxSize.Int64() != 5*1000*1000 || c.Logging.MaxSize.MB() != 5 {
		t.Fatalf("max size %d", c.Logging.MaxSize)
	}
	if c.PollOnStart() || c.SyncWrites() {
		t.Fatalf("explicit false lost")
	}
}

func TestYAMLInvalidDuration(t *testing.T) {
	p := writeFile(t, "sync:\n  poll_interval: often\n")
	if _, err := LoadConfigFile(p); err == nil {
		t.Fatalf("expected error for invalid duration")
	}
}

func TestLayering(t *testing.T) {
	p := writeFile(t, `
server:
  port: 9000
remote:
  base_url: http://file.example:5001
sync:
  poll_limit: 30
`)
	t.Setenv("THREADSYNC_CONFIG", p)
	t.Setenv("THREADSYNC_REMOTE_URL", "http://env.example:5001")
	t.Setenv("THREADSYNC_POLL_INTERVAL", "2s")

	flags, err := ParseConfigFlags([]string{"--db", "/tmp/flag-db", "--backend", "sqlite"})
	if err != nil {
		t.Fatalf("flags: %v", err)
	}
	fileCfg, path, err := ParseConfigFile(flags)
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	envCfg, envRes := ParseConfigEnvs()
	eff, err := LoadEffectiveConfig(flags, fileCfg, path, envCfg, envRes)
	if err != nil {
		t.Fatalf("effective: %v", err)
	}
	c := eff.Config
	if eff.Source != "defaults+config+env+flags" {
		t.Fatalf("source %q", eff.Source)
	}
	if c.Server.Port != 9000 || eff.Addr != "127.0.0.1:9000" {
		t.Fatalf("file port lost: %s", eff.Addr)
	}
	if c.Remote.BaseURL != "http://env.example:5001" {
		t.Fatalf("env should override file: %s", c.Remote.BaseURL)
	}
	if c.Sync.PollLimit != 30 || c.Sync.PollInterval.Duration() != 2*time.Second {
		t.Fatalf("sync %+v", c.Sync)
	}
	if eff.DBPath != "/tmp/flag-db" || c.Store.Backend != "sqlite" {
		t.Fatalf("flags lost: %s %s", eff.DBPath, c.Store.Backend)
	}
	if err := ValidateConfig(eff); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestMissingFile(t *testing.T) {
	flags, _ := ParseConfigFlags([]string{"--config", filepath.Join(t.TempDir(), "nope.yaml")})
	if _, _, err := ParseConfigFile(flags); err == nil {
		t.Fatalf("explicit missing config should fail")
	}

	flags, _ = ParseConfigFlags(nil)
	flags.Config = filepath.Join(t.TempDir(), "nope.yaml")
	cfg, path, err := ParseConfigFile(flags)
	if err != nil || path != "" || cfg == nil {
		t.Fatalf("implicit missing config: %v %q", err, path)
	}
}

func TestInvalidEnv(t *testing.T) {
	t.Setenv("THREADSYNC_POLL_LIMIT", "lots")
	t.Setenv("THREADSYNC_JANITOR_ENABLED", "maybe")
	envCfg, res := ParseConfigEnvs()
	if len(res.Invalid) != 2 {
		t.Fatalf("invalid %v", res.Invalid)
	}
	if _, err := LoadEffectiveConfig(Flags{Set: map[string]bool{}}, &Config{}, "", envCfg, res); err == nil {
		t.Fatalf("expected error for invalid env")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"backend", func(c *Config) { c.Store.Backend = "redis" }},
		{"remote", func(c *Config) { c.Remote.BaseURL = "ftp://x" }},
		{"cron", func(c *Config) { c.Janitor.Cron = "every day" }},
		{"sink", func(c *Config) { c.Logging.Sink = "syslog" }},
		{"limit", func(c *Config) { c.Sync.PollLimit = -1 }},
		{"port", func(c *Config) { c.Server.Port = 70000 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := Default()
			tc.mutate(c)
			if err := ValidateConfig(EffectiveConfigResult{Config: c, DBPath: c.Store.Path}); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	c := Default()
	off := false
	c.Janitor.Enabled = &off
	c.Janitor.Cron = "not checked"
	c.Store.Backend = "memory"
	if err := ValidateConfig(EffectiveConfigResult{Config: c}); err != nil {
		t.Fatalf("disabled janitor / memory store: %v", err)
	}
}
