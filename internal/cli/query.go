package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/zendegi/directgtd/internal/sandbox"
)

// NewQueryCommand creates the query command, a thin front for the
// sandboxed executor.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query <sql>",
		Short: "Run a read-only query under the sandbox limits",
		Long: `Run a single read-only SELECT against the store.

The query is validated (one statement, SELECT only) and executed under
a wall-clock budget; the first column of each result row is printed.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, cfg, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer s.Close()

			exec := sandbox.New(s.DB(), time.Duration(cfg.Query.BudgetMS)*time.Millisecond)
			result := exec.Run(cmd.Context(), args[0])

			switch result.Outcome {
			case sandbox.OutcomeOK:
				for _, row := range result.Rows {
					fmt.Fprintln(cmd.OutOrStdout(), row)
				}
				return nil
			case sandbox.OutcomeInvalid:
				return fmt.Errorf("invalid query: %s", result.Detail)
			case sandbox.OutcomeTimeout:
				return fmt.Errorf("query timed out: %s", result.Detail)
			default:
				return fmt.Errorf("query failed: %s", result.Detail)
			}
		},
	}

	return cmd
}
