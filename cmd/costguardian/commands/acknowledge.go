package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/costguardian/pkg/guardian"
)

var (
	ackService     string
	ackDescription string
	ackBy          string
	ackChangeType  string
	ackDuration    string
	ackDays        int
	ackBaseline    float64
	ackNewCost     float64

	resolveChangeID string
	resolveNotes    string
)

var acknowledgeCmd = &cobra.Command{
	Use:   "acknowledge",
	Short: "Acknowledge a known cost change to suppress its anomaly alerts",
	Long: `Records a cost change you already know about. While the change is active,
anomaly alerts for that service are suppressed. Use --resolve-id to close a
change and re-enable alerting.

Example:
  costguardian acknowledge --service "Amazon EC2" --description "Scaled out API fleet" --by jordan
  costguardian acknowledge --service "Amazon EC2" --duration temporary --days 14 --by jordan
  costguardian acknowledge --service "Amazon EC2" --resolve-id 4f2c... --notes "Rollout finished"`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g, shutdown, err := buildGuardian(ctx)
		if err != nil {
			return err
		}
		defer shutdown(ctx)

		if resolveChangeID != "" {
			if err := g.ResolveChange(ctx, ackService, resolveChangeID, resolveNotes, runOptions()); err != nil {
				return err
			}
			fmt.Printf("Resolved change %s for %s\n", resolveChangeID, ackService)
			return nil
		}

		change, err := g.AcknowledgeChange(ctx, guardian.AcknowledgeRequest{
			Service:        ackService,
			Description:    ackDescription,
			AcknowledgedBy: ackBy,
			ChangeType:     ackChangeType,
			DurationType:   ackDuration,
			ExpectedDays:   ackDays,
			BaselineCost:   ackBaseline,
			NewCost:        ackNewCost,
		}, runOptions())
		if err != nil {
			return err
		}
		fmt.Printf("Acknowledged %s (change %s)\n", change.Service, change.ChangeID)
		return nil
	},
}

func init() {
	acknowledgeCmd.Flags().StringVar(&ackService, "service", "", "AWS service name as Cost Explorer reports it")
	acknowledgeCmd.Flags().StringVar(&ackDescription, "description", "", "What changed and why")
	acknowledgeCmd.Flags().StringVar(&ackBy, "by", "", "Who is acknowledging")
	acknowledgeCmd.Flags().StringVar(&ackChangeType, "type", "", "Change type: new_service, cost_increase, cost_decrease, usage_pattern")
	acknowledgeCmd.Flags().StringVar(&ackDuration, "duration", "", "Duration: one_time, ongoing, temporary, unknown")
	acknowledgeCmd.Flags().IntVar(&ackDays, "days", 0, "Expected duration in days (with --duration temporary)")
	acknowledgeCmd.Flags().Float64Var(&ackBaseline, "baseline-cost", 0, "Cost before the change")
	acknowledgeCmd.Flags().Float64Var(&ackNewCost, "new-cost", 0, "Cost after the change")
	acknowledgeCmd.Flags().StringVar(&resolveChangeID, "resolve-id", "", "Resolve this change ID instead of creating one")
	acknowledgeCmd.Flags().StringVar(&resolveNotes, "notes", "", "Resolution notes (with --resolve-id)")
}
