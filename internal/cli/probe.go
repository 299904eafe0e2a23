// ABOUTME: probe command: fetches and decodes audio files
// ABOUTME: Prints codec, sample rate, channels and duration per input
package cli

import (
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"github.com/stemdeck/stemdeck-go/pkg/audio/decode"
	"go.uber.org/zap"
)

func newProbeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "probe <url|path>...",
		Short: "Decode audio files and print their format",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.setup(os.Stderr); err != nil {
				return err
			}
			fetcher, err := buildFetcher(a.cfg, false, a.logger)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "SOURCE\tCODEC\tRATE\tCHANNELS\tBITS\tDURATION")

			var failed int
			for _, src := range args {
				data, err := fetcher.Fetch(cmd.Context(), src)
				if err != nil {
					a.logger.Warn("fetch failed", zap.String("source", src), zap.Error(err))
					fmt.Fprintf(w, "%s\terror: %v\n", src, err)
					failed++
					continue
				}

				start := time.Now()
				buf, err := decode.Decode(data)
				if err != nil {
					fmt.Fprintf(w, "%s\terror: %v\n", src, err)
					failed++
					continue
				}
				a.logger.Debug("decoded",
					zap.String("source", src),
					zap.Duration("took", time.Since(start)))

				f := buf.Format
				fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%.3fs\n",
					src, f.Codec, f.SampleRate, f.Channels, f.BitDepth, buf.Duration())
			}
			if err := w.Flush(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d inputs failed", failed, len(args))
			}
			return nil
		},
	}
}
