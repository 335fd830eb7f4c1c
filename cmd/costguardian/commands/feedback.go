package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/DrSkyle/costguardian/pkg/guardian"
)

var (
	fbAlertID     string
	fbType        string
	fbUser        string
	fbServices    []string
	fbCostImpact  float64
	fbExplanation string
	fbDuration    string
	fbDays        int
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback",
	Short: "Record feedback on an anomaly alert",
	Long: `Records whether an anomaly alert was expected, unexpected, or under
investigation. "expected" feedback with --service opens an active change for
each named service, suppressing further alerts for it.

Example:
  costguardian feedback --alert-id 4f2c1d8e --type expected --user jordan --service "Amazon EC2"
  costguardian feedback --alert-id 4f2c1d8e --type investigating --user jordan`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		g, shutdown, err := buildGuardian(ctx)
		if err != nil {
			return err
		}
		defer shutdown(ctx)

		fb, err := g.RecordFeedback(ctx, guardian.FeedbackRequest{
			AlertID:          fbAlertID,
			UserName:         fbUser,
			FeedbackType:     fbType,
			AffectedServices: fbServices,
			CostImpact:       fbCostImpact,
			Explanation:      fbExplanation,
			DurationType:     fbDuration,
			ExpectedDays:     fbDays,
		}, runOptions())
		if err != nil {
			return err
		}
		fmt.Printf("Recorded %s feedback for alert %s\n", fb.FeedbackType, fb.AlertID)
		return nil
	},
}

func init() {
	feedbackCmd.Flags().StringVar(&fbAlertID, "alert-id", "", "Alert ID from the Slack message footer")
	feedbackCmd.Flags().StringVar(&fbType, "type", "", "Feedback: expected, unexpected, investigating")
	feedbackCmd.Flags().StringVar(&fbUser, "user", "", "Who is responding")
	feedbackCmd.Flags().StringArrayVar(&fbServices, "service", nil, "Affected service (repeatable)")
	feedbackCmd.Flags().Float64Var(&fbCostImpact, "cost-impact", 0, "Dollar impact of the change")
	feedbackCmd.Flags().StringVar(&fbExplanation, "explanation", "", "Why the cost changed")
	feedbackCmd.Flags().StringVar(&fbDuration, "duration", "", "Duration: one_time, ongoing, temporary, unknown")
	feedbackCmd.Flags().IntVar(&fbDays, "days", 0, "Expected duration in days (with --duration temporary)")
}
