// ABOUTME: discover command: lists players advertising a time stream
// ABOUTME: Browses mDNS for the stemdeck service on the local network
package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemdeck/stemdeck-go/internal/discovery"
)

func newDiscoverCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List players streaming their time on the local network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(os.Stderr); err != nil {
				return err
			}
			found, err := discovery.Browse(cmd.Context(), timeout)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(found) == 0 {
				fmt.Fprintln(out, "No players found")
				return nil
			}
			for _, inst := range found {
				fmt.Fprintf(out, "%s\t%s\n", inst.Name, inst.URL())
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "How long to listen for answers")
	return cmd
}
