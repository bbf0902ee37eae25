package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Flags holds parsed command-line values and which of them were set.
type Flags struct {
	Addr     string
	DB       string
	Backend  string
	Remote   string
	Config   string
	Set      map[string]bool
	Validate bool
}

// EnvResult reports what the environment contributed.
type EnvResult struct {
	EnvUsed bool
	// Invalid lists variables whose values could not be parsed.
	Invalid []string
}

// EffectiveConfigResult is the merged configuration plus where it came from.
type EffectiveConfigResult struct {
	Config *Config
	Addr   string
	DBPath string
	// Path is the config file in use, empty when none was found.
	Path   string
	Source string // "defaults", "config", "env", "flags" joined by "+"
}

// ParseConfigFlags parses args (usually os.Args[1:]).
func ParseConfigFlags(args []string) (Flags, error) {
	fset := flag.NewFlagSet("threadsync", flag.ContinueOnError)
	addr := fset.String("addr", "", "HTTP listen address (host:port)")
	db := fset.String("db", "", "Store path")
	backend := fset.String("backend", "", "Store backend: pebble, sqlite or memory")
	remote := fset.String("remote", "", "Messaging server base URL")
	cfgPath := fset.String("config", "./config.yaml", "Path to config file")
	validate := fset.Bool("validate", false, "Validate configuration and exit")
	if err := fset.Parse(args); err != nil {
		return Flags{}, err
	}

	set := make(map[string]bool)
	fset.Visit(func(f *flag.Flag) { set[f.Name] = true })
	return Flags{
		Addr:     *addr,
		DB:       *db,
		Backend:  *backend,
		Remote:   *remote,
		Config:   *cfgPath,
		Set:      set,
		Validate: *validate,
	}, nil
}

// ParseConfigFile loads the config file. A missing file is not an error
// unless it was named explicitly.
func ParseConfigFile(flags Flags) (*Config, string, error) {
	path := ResolveConfigPath(flags.Config, flags.Set["config"])
	cfg, err := LoadConfigFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) && !flags.Set["config"] && os.Getenv("THREADSYNC_CONFIG") == "" {
			return &Config{}, "", nil
		}
		return nil, "", fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, path, nil
}

type envVar struct {
	name  string
	apply func(c *Config, v string) error
}

func strVar(name string, dst func(*Config) *string) envVar {
	return envVar{name, func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}}
}

func intVar(name string, dst func(*Config) *int) envVar {
	return envVar{name, func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*dst(c) = n
		return nil
	}}
}

func floatVar(name string, dst func(*Config) *float64) envVar {
	return envVar{name, func(c *Config, v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return err
		}
		*dst(c) = f
		return nil
	}}
}

func durVar(name string, dst func(*Config) *Duration) envVar {
	return envVar{name, func(c *Config, v string) error {
		d, err := ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}}
}

func boolVar(name string, dst func(*Config) **bool) envVar {
	return envVar{name, func(c *Config, v string) error {
		var b bool
		switch strings.ToLower(v) {
		case "1", "true", "yes", "on":
			b = true
		case "0", "false", "no", "off":
			b = false
		default:
			return fmt.Errorf("invalid bool %q", v)
		}
		*dst(c) = &b
		return nil
	}}
}

func parseList(v string) []string {
	var parts []string
	for _, p := range strings.Split(v, ",") {
		if s := strings.TrimSpace(p); s != "" {
			parts = append(parts, s)
		}
	}
	return parts
}

var envVars = []envVar{
	{"THREADSYNC_ADDR", func(c *Config, v string) error {
		h, p, err := net.SplitHostPort(v)
		if err != nil {
			return err
		}
		port, err := strconv.Atoi(p)
		if err != nil {
			return err
		}
		c.Server.Address, c.Server.Port = h, port
		return nil
	}},
	strVar("THREADSYNC_SERVER_ADDRESS", func(c *Config) *string { return &c.Server.Address }),
	intVar("THREADSYNC_SERVER_PORT", func(c *Config) *int { return &c.Server.Port }),
	{"THREADSYNC_CORS_ORIGINS", func(c *Config, v string) error {
		c.Server.CORS.AllowedOrigins = parseList(v)
		return nil
	}},
	floatVar("THREADSYNC_RATE_RPS", func(c *Config) *float64 { return &c.Server.RateLimit.RPS }),
	intVar("THREADSYNC_RATE_BURST", func(c *Config) *int { return &c.Server.RateLimit.Burst }),

	strVar("THREADSYNC_STORE_BACKEND", func(c *Config) *string { return &c.Store.Backend }),
	strVar("THREADSYNC_DB_PATH", func(c *Config) *string { return &c.Store.Path }),
	boolVar("THREADSYNC_STORE_SYNC_WRITES", func(c *Config) **bool { return &c.Store.SyncWrites }),

	strVar("THREADSYNC_REMOTE_URL", func(c *Config) *string { return &c.Remote.BaseURL }),
	durVar("THREADSYNC_REMOTE_TIMEOUT", func(c *Config) *Duration { return &c.Remote.Timeout }),

	durVar("THREADSYNC_POLL_INTERVAL", func(c *Config) *Duration { return &c.Sync.PollInterval }),
	boolVar("THREADSYNC_POLL_ON_START", func(c *Config) **bool { return &c.Sync.PollOnStart }),
	intVar("THREADSYNC_POLL_LIMIT", func(c *Config) *int { return &c.Sync.PollLimit }),
	intVar("THREADSYNC_THREAD_FETCH_LIMIT", func(c *Config) *int { return &c.Sync.ThreadFetchLimit }),
	intVar("THREADSYNC_MESSAGE_FETCH_LIMIT", func(c *Config) *int { return &c.Sync.MessageFetchLimit }),
	intVar("THREADSYNC_OLDER_PAGE_LIMIT", func(c *Config) *int { return &c.Sync.OlderPageLimit }),
	durVar("THREADSYNC_REFRESH_TIMEOUT", func(c *Config) *Duration { return &c.Sync.RefreshTimeout }),
	floatVar("THREADSYNC_REFRESH_RPS", func(c *Config) *float64 { return &c.Sync.RefreshRPS }),
	intVar("THREADSYNC_REFRESH_BURST", func(c *Config) *int { return &c.Sync.RefreshBurst }),

	durVar("THREADSYNC_CACHE_MAX_AGE", func(c *Config) *Duration { return &c.Cache.MaxAge }),
	intVar("THREADSYNC_CACHE_MAX_MESSAGES", func(c *Config) *int { return &c.Cache.MaxMessagesPerThread }),

	boolVar("THREADSYNC_JANITOR_ENABLED", func(c *Config) **bool { return &c.Janitor.Enabled }),
	strVar("THREADSYNC_JANITOR_CRON", func(c *Config) *string { return &c.Janitor.Cron }),

	strVar("THREADSYNC_LOG_LEVEL", func(c *Config) *string { return &c.Logging.Level }),
	strVar("THREADSYNC_LOG_SINK", func(c *Config) *string { return &c.Logging.Sink }),
	{"THREADSYNC_LOG_MAX_SIZE", func(c *Config, v string) error {
		s, err := ParseSize(v)
		if err != nil {
			return err
		}
		c.Logging.MaxSize = s
		return nil
	}},
}

// ParseConfigEnvs loads THREADSYNC_* variables into a fresh Config.
// Unparseable values are skipped and reported in EnvResult.Invalid.
func ParseConfigEnvs() (*Config, EnvResult) {
	cfg := &Config{}
	var res EnvResult
	for _, ev := range envVars {
		v := strings.TrimSpace(os.Getenv(ev.name))
		if v == "" {
			continue
		}
		res.EnvUsed = true
		if err := ev.apply(cfg, v); err != nil {
			res.Invalid = append(res.Invalid, ev.name)
		}
	}
	sort.Strings(res.Invalid)
	return cfg, res
}

// EnvNames lists every recognised environment variable.
func EnvNames() []string {
	out := make([]string, 0, len(envVars)+1)
	out = append(out, "THREADSYNC_CONFIG")
	for _, ev := range envVars {
		out = append(out, ev.name)
	}
	return out
}

// LoadEffectiveConfig layers defaults, then the file, then env, then flags.
func LoadEffectiveConfig(flags Flags, fileCfg *Config, filePath string, envCfg *Config, envRes EnvResult) (EffectiveConfigResult, error) {
	var res EffectiveConfigResult
	if len(envRes.Invalid) > 0 {
		return res, fmt.Errorf("invalid environment values: %s", strings.Join(envRes.Invalid, ", "))
	}

	cfg := &Config{}
	sources := []string{"defaults"}
	if filePath != "" {
		cfg.Overlay(fileCfg)
		sources = append(sources, "config")
	}
	if envRes.EnvUsed {
		cfg.Overlay(envCfg)
		sources = append(sources, "env")
	}

	flagCfg := &Config{}
	if flags.Set["addr"] {
		h, p, err := net.SplitHostPort(flags.Addr)
		if err != nil {
			return res, fmt.Errorf("invalid --addr %q: %w", flags.Addr, err)
		}
		flagCfg.Server.Address = h
		flagCfg.Server.Port = parsePort(p)
	}
	if flags.Set["db"] {
		flagCfg.Store.Path = flags.DB
	}
	if flags.Set["backend"] {
		flagCfg.Store.Backend = flags.Backend
	}
	if flags.Set["remote"] {
		flagCfg.Remote.BaseURL = flags.Remote
	}
	if flags.Set["addr"] || flags.Set["db"] || flags.Set["backend"] || flags.Set["remote"] {
		cfg.Overlay(flagCfg)
		sources = append(sources, "flags")
	}

	cfg.ApplyDefaults()
	res.Config = cfg
	res.Addr = cfg.Addr()
	res.DBPath = cfg.Store.Path
	res.Path = filePath
	res.Source = strings.Join(sources, "+")
	return res, nil
}

func parsePort(p string) int {
	n, err := strconv.Atoi(p)
	if err != nil {
		return 0
	}
	return n
}
