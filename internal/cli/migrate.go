package cli

import (
	"log/slog"

	"github.com/spf13/cobra"
)

// NewMigrateCommand creates the migrate command. Opening the store runs
// any pending migrations, so this command exists to do that explicitly
// (and to fail loudly at deploy time rather than at first use).
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "migrate",
		Short:        "Bring the database schema to the latest version",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			slog.Info("schema up to date", "db", cfg.Database.Path)
			return nil
		},
	}
}
