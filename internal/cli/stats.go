package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/goccy/go-yaml"
	"github.com/spf13/cobra"
)

type statsReport struct {
	ThreadsWithCache int              `json:"threads_with_cache" yaml:"threads_with_cache"`
	TotalThreads     int              `json:"total_threads" yaml:"total_threads"`
	TotalMessages    int              `json:"total_messages" yaml:"total_messages"`
	LastGlobalSync   *time.Time       `json:"last_global_sync,omitempty" yaml:"last_global_sync,omitempty"`
	Threads          []threadMsgCount `json:"threads" yaml:"threads"`
}

type threadMsgCount struct {
	ThreadGUID string `json:"thread_guid" yaml:"thread_guid"`
	Messages   int    `json:"messages" yaml:"messages"`
}

func newStatsCmd(o *options) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show what the cache holds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			st := s.cache.Stats(cmdContext(cmd))
			rep := statsReport{
				ThreadsWithCache: st.ThreadsWithCache,
				TotalThreads:     st.TotalThreads,
				LastGlobalSync:   st.LastGlobalSync,
				Threads:          []threadMsgCount{},
			}
			for guid, n := range st.ThreadMessageCounts {
				rep.Threads = append(rep.Threads, threadMsgCount{ThreadGUID: guid, Messages: n})
				rep.TotalMessages += n
			}
			sort.Slice(rep.Threads, func(i, j int) bool {
				if rep.Threads[i].Messages != rep.Threads[j].Messages {
					return rep.Threads[i].Messages > rep.Threads[j].Messages
				}
				return rep.Threads[i].ThreadGUID < rep.Threads[j].ThreadGUID
			})
			return writeStats(o.stdout, rep, output)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format: text, json or yaml")
	return cmd
}

func writeStats(w io.Writer, rep statsReport, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	case "yaml":
		b, err := yaml.Marshal(rep)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	case "text", "":
	default:
		return fmt.Errorf("unknown output format %q", format)
	}

	fmt.Fprintf(w, "Threads cached:   %s of %s\n", humanize.Comma(int64(rep.ThreadsWithCache)), humanize.Comma(int64(rep.TotalThreads)))
	fmt.Fprintf(w, "Messages cached:  %s\n", humanize.Comma(int64(rep.TotalMessages)))
	if rep.LastGlobalSync != nil {
		fmt.Fprintf(w, "Last global sync: %s (%s)\n", rep.LastGlobalSync.Format(time.RFC3339), humanize.Time(*rep.LastGlobalSync))
	} else {
		fmt.Fprintln(w, "Last global sync: never")
	}
	if len(rep.Threads) > 0 {
		fmt.Fprintln(w)
		for _, t := range rep.Threads {
			fmt.Fprintf(w, "  %-40s %s\n", t.ThreadGUID, humanize.Comma(int64(t.Messages)))
		}
	}
	return nil
}
