// Package banner prints the startup summary.
package banner

import (
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"

	"threadsync/pkg/config"
)

const banner = `
 _   _                        _
| |_| |__  _ __ ___  __ _  __| |___ _   _ _ __   ___
| __| '_ \| '__/ _ \/ _' |/ _' / __| | | | '_ \ / __|
| |_| | | | | |  __/ (_| | (_| \__ \ |_| | | | | (__
 \__|_| |_|_|  \___|\__,_|\__,_|___/\__, |_| |_|\___|
                                    |___/
`

// Fprint writes the banner and a config summary for eff.
func Fprint(w io.Writer, eff config.EffectiveConfigResult, version string) {
	c := eff.Config
	if c == nil {
		c = config.Default()
	}
	src := eff.Source
	if src == "" {
		src = "defaults"
	}

	fmt.Fprint(w, banner)
	fmt.Fprintln(w, "== Config =====================================================")
	fmt.Fprintf(w, "Listen:   %s\n", eff.Addr)
	fmt.Fprintf(w, "Store:    %s %s\n", c.Store.Backend, eff.DBPath)
	fmt.Fprintf(w, "Remote:   %s (timeout %s)\n", c.Remote.BaseURL, c.Remote.Timeout.Duration())
	if version != "" {
		fmt.Fprintf(w, "Version:  %s\n", version)
	}
	if eff.Path != "" {
		fmt.Fprintf(w, "Config:   %s (%s)\n", eff.Path, src)
	} else {
		fmt.Fprintf(w, "Config:   %s\n", src)
	}

	fmt.Fprintln(w, "\n== Sync =======================================================")
	if c.PollOnStart() {
		fmt.Fprintf(w, "- Polling: every %s, %d messages per tick\n", c.Sync.PollInterval.Duration(), c.Sync.PollLimit)
	} else {
		fmt.Fprintln(w, "- Polling: off until started over the API")
	}
	fmt.Fprintf(w, "- Cache: %s max age, %s messages per thread\n",
		c.Cache.MaxAge.Duration(), humanize.Comma(int64(c.Cache.MaxMessagesPerThread)))
	if c.JanitorEnabled() {
		fmt.Fprintf(w, "- Janitor: %s\n", c.Janitor.Cron)
	} else {
		fmt.Fprintln(w, "- Janitor: disabled")
	}
	if strings.HasPrefix(c.Logging.Sink, "file:") {
		fmt.Fprintf(w, "- Logs: %s (rotate at %s)\n", strings.TrimPrefix(c.Logging.Sink, "file:"),
			humanize.Bytes(uint64(c.Logging.MaxSize.Int64())))
	}
	if c.Store.Backend == "memory" {
		fmt.Fprintln(w, "- WARNING: memory store, nothing survives a restart")
	}
	fmt.Fprintln(w, "===============================================================")
}
