package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

var errNotConfirmed = errors.New("refusing to clear the cache without confirmation: pass --yes")

func newClearCmd(o *options) *cobra.Command {
	var (
		yes    bool
		thread string
	)
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Remove cached threads and messages",
		Long: `Remove every cache entry and the sync metadata, or only one thread's
messages with --thread. Keys the cache does not own are left alone.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				what := "the whole cache"
				if thread != "" {
					what = "cached messages for " + thread
				}
				if !o.isTTY() {
					return errNotConfirmed
				}
				if !confirm(o.in, o.stdout, "Clear "+what+"?") {
					fmt.Fprintln(o.stdout, "Aborted.")
					return nil
				}
			}

			s, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			ctx := cmdContext(cmd)
			if thread != "" {
				s.cache.Messages.ClearThread(ctx, thread)
				fmt.Fprintf(o.stdout, "Cleared thread %s\n", thread)
				return nil
			}
			s.cache.ClearAll(ctx)
			fmt.Fprintln(o.stdout, "Cache cleared")
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	cmd.Flags().StringVar(&thread, "thread", "", "clear only this thread's messages")
	return cmd
}

// confirm prompts for a yes/no answer; anything but y/yes is a no.
func confirm(in io.Reader, out io.Writer, message string) bool {
	reader := bufio.NewReader(in)
	for {
		fmt.Fprintf(out, "%s [y/N]: ", message)
		line, err := reader.ReadString('\n')
		if err != nil && line == "" {
			return false
		}
		switch strings.TrimSpace(strings.ToLower(line)) {
		case "y", "yes":
			return true
		case "n", "no", "":
			return false
		default:
			if err != nil {
				return false
			}
			fmt.Fprintln(out, "Please enter 'y' or 'n'.")
		}
	}
}
