// Package cli implements threadsyncctl, the offline maintenance tool for a
// threadsync data directory.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"threadsync/pkg/cache"
	"threadsync/pkg/config"
	"threadsync/pkg/logger"
	"threadsync/pkg/state"
	"threadsync/pkg/store"
)

// options carries persistent flags and the process streams so tests can
// swap them.
type options struct {
	configPath string
	dbPath     string
	backend    string
	remote     string
	verbose    bool

	in     io.Reader
	isTTY  func() bool
	stdout io.Writer
}

// NewRootCmd builds the command tree.
func NewRootCmd(version, commit string) *cobra.Command {
	return newRoot(&options{
		in:    os.Stdin,
		isTTY: func() bool { return term.IsTerminal(int(os.Stdin.Fd())) },
	}, version, commit)
}

func newRoot(o *options, version, commit string) *cobra.Command {
	root := &cobra.Command{
		Use:   "threadsyncctl",
		Short: "Inspect and maintain a threadsync cache",
		Long: `threadsyncctl works directly on the cache store of a threadsync
service. Stop the service first when using the pebble backend: the store
directory is locked while it runs.`,
		Version:       fmt.Sprintf("%s (commit: %s)", version, commit),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			o.stdout = cmd.OutOrStdout()
			if o.verbose {
				logger.UseWriter(cmd.ErrOrStderr(), "debug")
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", "./config.yaml", "config file path")
	pf.StringVar(&o.dbPath, "db", "", "store path (overrides config)")
	pf.StringVar(&o.backend, "backend", "", "store backend: pebble, sqlite or memory")
	pf.StringVar(&o.remote, "remote", "", "messaging server base URL")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "enable verbose output")

	root.AddCommand(
		newStatsCmd(o),
		newInspectCmd(o),
		newClearCmd(o),
		newSweepCmd(o),
		newPingCmd(o),
	)
	return root
}

// Execute runs the CLI and exits non-zero on failure.
func Execute(version, commit string) {
	if err := NewRootCmd(version, commit).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// effective resolves configuration the same way the service does, with
// this command's flags layered last.
func (o *options) effective(cmd *cobra.Command) (config.EffectiveConfigResult, error) {
	pf := cmd.Flags()
	flags := config.Flags{
		Config:  o.configPath,
		DB:      o.dbPath,
		Backend: o.backend,
		Remote:  o.remote,
		Set: map[string]bool{
			"config":  pf.Changed("config"),
			"db":      pf.Changed("db"),
			"backend": pf.Changed("backend"),
			"remote":  pf.Changed("remote"),
		},
	}
	fileCfg, filePath, err := config.ParseConfigFile(flags)
	if err != nil {
		return config.EffectiveConfigResult{}, err
	}
	envCfg, envRes := config.ParseConfigEnvs()
	eff, err := config.LoadEffectiveConfig(flags, fileCfg, filePath, envCfg, envRes)
	if err != nil {
		return eff, err
	}
	return eff, config.ValidateConfig(eff)
}

// session is an opened store plus the cache over it.
type session struct {
	cfg   *config.Config
	store store.Store
	cache *cache.Cache
}

func (s *session) Close() { _ = s.store.Close() }

// open opens the configured store without creating a missing data
// directory.
func (o *options) open(cmd *cobra.Command) (*session, error) {
	eff, err := o.effective(cmd)
	if err != nil {
		return nil, err
	}
	backend := eff.Config.Store.Backend
	var path string
	if backend != store.BackendMemory {
		if _, err := os.Stat(eff.DBPath); err != nil {
			return nil, fmt.Errorf("data directory %s: %w", eff.DBPath, err)
		}
		path = state.PathsFor(eff.DBPath).StorePath(backend)
	}
	st, err := store.Open(store.Options{Backend: backend, Path: path, SyncWrites: eff.Config.SyncWrites()})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", backend, err)
	}
	c := cache.New(st, cache.Options{
		MaxAge:               eff.Config.Cache.MaxAge.Duration(),
		MaxMessagesPerThread: eff.Config.Cache.MaxMessagesPerThread,
	})
	return &session{cfg: eff.Config, store: st, cache: c}, nil
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
