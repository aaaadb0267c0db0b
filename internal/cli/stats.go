package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatsCmd creates the 'stats' command, printing the cached snapshot as JSON.
func NewStatsCmd(configPath *string) *cobra.Command {
	var recompute bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print the latest computed query statistics",
		Long: `Print the snapshot held in the stats cache. Prints null when nothing has
been computed yet or the cached entry expired.

With --recompute the snapshot is rebuilt from the event store first and the
cache refreshed, exactly as the scheduled stats job does.`,
		Example: `  swstarter stats
  swstarter stats --recompute`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, log, err := openApp(*configPath, false)
			if err != nil {
				return err
			}
			defer closeApp(a, log)

			if recompute {
				snap, err := a.Analytics().ComputeNow(cmd.Context())
				if err != nil {
					return fmt.Errorf("recompute stats: %w", err)
				}
				return writeJSON(cmd.OutOrStdout(), snap)
			}
			return writeJSON(cmd.OutOrStdout(), a.Analytics().GetLatestStats(cmd.Context()))
		},
	}
	cmd.Flags().BoolVar(&recompute, "recompute", false, "Recompute from the event store before printing")
	return cmd
}
