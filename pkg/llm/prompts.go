package llm

import (
	"fmt"
	"strings"

	"github.com/DrSkyle/costguardian/pkg/analysis"
)

const systemPrompt = `You are an AWS Cost Guardian - an AI assistant that helps users understand and manage their AWS spending.

Your role is to:
1. Analyze AWS cost data and identify anomalies or concerning patterns
2. Provide clear, actionable explanations for cost changes
3. Suggest potential causes and remediation steps

When analyzing costs:
- Be concise but thorough
- Prioritize actionable insights over generic observations
- Consider both absolute dollar amounts and percentage changes
- Distinguish between expected variability and genuine anomalies

When explaining anomalies:
- Start with the most likely explanation
- List potential causes in order of probability
- Suggest specific AWS console locations or CLI commands to investigate
- Recommend concrete next steps

Tone:
- Professional but approachable
- Direct and actionable
- Appropriately urgent for critical issues, calm for minor ones

Remember: Users trust you to watch their AWS spending. False alarms erode trust, but missing real issues is worse. When uncertain, err on the side of alerting with appropriate context.`

func anomalyAnalysisPrompt(anomaly analysis.DetectedAnomaly, historicalContext string) string {
	return fmt.Sprintf(`Analyze this AWS cost anomaly and provide insights.

## Anomaly Details
- Service: %s
- Current Cost: $%.2f
- Baseline Cost: $%.2f
- Change: $%+.2f (%+.1f%%)
- Severity: %s

## Historical Context
%s

Provide:
1. Most likely explanation (1-2 sentences)
2. Potential causes to investigate
3. Recommended next steps
4. Risk assessment if left unaddressed

Keep your response concise and actionable.
`,
		anomaly.Service,
		anomaly.CurrentCost,
		anomaly.BaselineCost,
		anomaly.AbsoluteChange,
		anomaly.PercentChange,
		anomaly.Severity,
		historicalContext,
	)
}

func dailyReportPrompt(summary analysis.DailySummary) string {
	return fmt.Sprintf(`Provide a brief insight for this daily AWS cost summary.

## Today's Costs
- Total: $%.2f
- Top Services: %s
- Trend: %s
- Budget Status: %.0f%% of monthly budget

Provide a 1-2 sentence insight that's:
- Relevant to their specific situation
- Actionable if there's something to address
- Reassuring if things look normal

Do not repeat the numbers - focus on the "so what" interpretation.
`,
		summary.TotalCost,
		serviceList(summary.TopServices),
		summary.Trend,
		summary.BudgetPercent,
	)
}

func weeklyReportPrompt(summary analysis.WeeklySummary) string {
	return fmt.Sprintf(`Provide insights for this weekly AWS cost summary.

## This Week
- Total Spend: $%.2f
- vs Last Week: %+.1f%%
- Top Services: %s
- Anomalies: %d

## Month-to-Date
- Spent: $%.2f
- Budget Used: %.0f%%
- Projected End-of-Month: $%.2f

Provide:
1. Key observation about the week (1 sentence)
2. Any concerns or positive trends
3. One actionable recommendation if applicable

Keep it brief - this is a summary, not a detailed report.
`,
		summary.TotalCost,
		summary.WeekOverWeekChange,
		serviceList(summary.TopServices),
		summary.AnomalyCount,
		summary.MTDCost,
		summary.BudgetPercent,
		summary.Forecast,
	)
}

func serviceList(services []analysis.ServiceCost) string {
	if len(services) == 0 {
		return "none"
	}
	parts := make([]string, len(services))
	for i, s := range services {
		parts[i] = fmt.Sprintf("%s: $%.2f", s.Service, s.Cost)
	}
	return strings.Join(parts, ", ")
}
