package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var backfillDays int

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Backfill historical cost snapshots from Cost Explorer",
	Long: `Queries Cost Explorer for past daily costs and creates one snapshot per
day, giving anomaly detection a baseline immediately after deployment.
Days that already have snapshots are skipped.

Example:
  costguardian backfill --days 14
  costguardian backfill --days 30 --dry-run`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g, shutdown, err := buildGuardian(ctx)
		if err != nil {
			return err
		}
		defer shutdown(ctx)

		result, err := g.Backfill(ctx, backfillDays, runOptions())
		if err != nil {
			return err
		}

		fmt.Printf("Backfill %s to %s: %d created, %d skipped\n",
			result.StartDate, result.EndDate, result.SnapshotsCreated, result.SnapshotsSkipped)
		return nil
	},
}

func init() {
	backfillCmd.Flags().IntVar(&backfillDays, "days", 14, "Number of past days to backfill")
}
