package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"threadsync/internal/janitor"
)

func newSweepCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Purge expired cache entries now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := o.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			j, err := janitor.New(s.cache, s.cfg.Janitor.Cron)
			if err != nil {
				return err
			}
			n, err := j.RunImmediate(cmdContext(cmd))
			if err != nil {
				return fmt.Errorf("sweep: %w", err)
			}
			fmt.Fprintf(o.stdout, "Purged %d expired entries (max age %s)\n", n, s.cache.MaxAge())
			return nil
		},
	}
}
