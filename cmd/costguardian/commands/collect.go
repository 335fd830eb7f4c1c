package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	forceAnomaly     bool
	forceBudgetAlert string
)

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Collect cost data, detect anomalies, and send alerts",
	Long: `Runs one collection cycle: queries Cost Explorer for current spend, stores
a snapshot in DynamoDB, compares against the historical baseline, and sends
Slack alerts for any anomalies or crossed budget thresholds.

Example:
  costguardian collect
  costguardian collect --dry-run
  costguardian collect --force-anomaly --skip-storage`,
	RunE: func(cmd *cobra.Command, args []string) error {
		switch forceBudgetAlert {
		case "", "warning", "critical":
		default:
			return fmt.Errorf("--force-budget-alert must be \"warning\" or \"critical\", got %q", forceBudgetAlert)
		}

		ctx := cmd.Context()
		g, shutdown, err := buildGuardian(ctx)
		if err != nil {
			return err
		}
		defer shutdown(ctx)

		opts := runOptions()
		opts.ForceAnomaly = forceAnomaly
		opts.ForceBudgetAlert = forceBudgetAlert

		result, err := g.Collect(ctx, opts)
		if err != nil {
			return err
		}

		fmt.Printf("Collected %s: total $%.2f across %d services\n",
			result.Timestamp, result.TotalCost, result.ServicesCount)
		fmt.Printf("Anomalies: %d detected, %d notifications sent\n",
			result.AnomaliesDetected, result.NotificationsSent)
		if result.BudgetAlert != "" {
			fmt.Printf("Budget alert: %s\n", result.BudgetAlert)
		}
		return nil
	},
}

func init() {
	collectCmd.Flags().BoolVar(&forceAnomaly, "force-anomaly", false, "Inject a synthetic anomaly to test the alert path")
	collectCmd.Flags().StringVar(&forceBudgetAlert, "force-budget-alert", "", "Send a budget alert regardless of thresholds (warning or critical)")
}
