package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"threadsync/pkg/remote"
)

func newPingCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the messaging server is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			eff, err := o.effective(cmd)
			if err != nil {
				return err
			}
			rc, err := remote.NewClient(remote.ClientOptions{
				BaseURL: eff.Config.Remote.BaseURL,
				Timeout: eff.Config.Remote.Timeout.Duration(),
			})
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmdContext(cmd), eff.Config.Remote.Timeout.Duration()+time.Second)
			defer cancel()

			start := time.Now()
			if err := rc.TestConnection(ctx); err != nil {
				return fmt.Errorf("%s unreachable: %w", rc.BaseURL(), err)
			}
			fmt.Fprintf(o.stdout, "%s ok (%s)\n", rc.BaseURL(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
