package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"threadsync/pkg/cache"
)

func newInspectCmd(o *options) *cobra.Command {
	var show int
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Count store keys by kind",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			keys, err := s.store.ListKeys(cmdContext(cmd))
			if err != nil {
				return err
			}
			sort.Strings(keys)

			counts := map[string]int{}
			shown := map[string]int{}
			w := o.stdout
			for _, k := range keys {
				kind := keyKind(k)
				counts[kind]++
				if shown[kind] < show {
					shown[kind]++
					fmt.Fprintf(w, "%-9s %s\n", kind, k)
				}
			}
			if show > 0 && len(keys) > 0 {
				fmt.Fprintln(w)
			}
			fmt.Fprintf(w, "Total keys:    %s\n", humanize.Comma(int64(len(keys))))
			for _, kind := range []string{"threads", "messages", "metadata", "other"} {
				fmt.Fprintf(w, "  %-11s %s\n", kind+":", humanize.Comma(int64(counts[kind])))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&show, "show", 5, "print up to this many keys of each kind")
	return cmd
}

func keyKind(k string) string {
	switch {
	case k == cache.ThreadKey:
		return "threads"
	case k == cache.MetadataKey:
		return "metadata"
	case strings.HasPrefix(k, cache.MessageKeyPrefix):
		return "messages"
	default:
		return "other"
	}
}
