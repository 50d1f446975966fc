package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/tombstone"
)

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		hard   bool
		before string
	)

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove tombstones that are safe to delete",
		Long: `Physically remove soft-deleted rows.

By default only tombstones that the remote collaborator has confirmed
and that are older than the retention window are removed. With --hard,
every tombstone older than --before is removed regardless of sync
state; use this only when the remote copy is known to be gone.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			svc := tombstone.New(s, tombstone.Config{
				ChunkSize: cfg.Sync.ChunkSize,
				Retention: time.Duration(cfg.Purge.RetentionDays) * 24 * time.Hour,
			})

			var stats tombstone.PurgeStats
			if hard {
				cutoff, err := time.Parse("2006-01-02", before)
				if err != nil {
					return fmt.Errorf("parsing --before %q: %w", before, err)
				}
				stats, err = svc.HardPurge(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
			} else {
				stats, err = svc.Purge(cmd.Context())
				if err != nil {
					return err
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"purged %d rows (%d items, %d tags, %d links, %d time entries)\n",
				stats.Total(), stats.Items, stats.Tags, stats.ItemTags, stats.TimeEntries)
			return nil
		},
	}

	cmd.Flags().BoolVar(&hard, "hard", false, "remove tombstones regardless of sync state")
	cmd.Flags().StringVar(&before, "before", "", "cutoff date (YYYY-MM-DD) for --hard")

	return cmd
}
