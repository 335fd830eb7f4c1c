package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var reportType string

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build and deliver a daily or weekly cost report",
	Long: `Summarizes stored cost snapshots into a formatted Slack report.

Daily reports cover yesterday's spend with month-to-date totals and a
forecast. Weekly reports cover the trailing seven days with a
week-over-week comparison.

Example:
  costguardian report --type daily
  costguardian report --type weekly --skip-llm`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g, shutdown, err := buildGuardian(ctx)
		if err != nil {
			return err
		}
		defer shutdown(ctx)

		result, err := g.Report(ctx, reportType, runOptions())
		if err != nil {
			return err
		}

		if !result.HasData {
			fmt.Printf("No snapshot data available for the %s report\n", result.ReportType)
			return nil
		}
		switch result.ReportType {
		case "weekly":
			fmt.Printf("Weekly report %s to %s: total $%.2f\n", result.StartDate, result.EndDate, result.TotalCost)
		default:
			fmt.Printf("Daily report for %s: total $%.2f\n", result.Date, result.TotalCost)
		}
		if result.NotificationSent {
			fmt.Println("Delivered to Slack")
		}
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVar(&reportType, "type", "daily", "Report type: daily or weekly")
}
