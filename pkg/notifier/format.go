// Package notifier delivers cost alerts and reports to Slack via incoming
// webhooks.
package notifier

import (
	"fmt"
	"strings"
	"time"

	"github.com/DrSkyle/costguardian/pkg/analysis"
	"github.com/DrSkyle/costguardian/pkg/storage"
)

var severityEmoji = map[analysis.Severity]string{
	analysis.SeverityCritical: ":rotating_light:",
	analysis.SeverityWarning:  ":warning:",
	analysis.SeverityInfo:     ":information_source:",
}

var trendEmoji = map[string]string{
	"increasing": ":chart_with_upwards_trend:",
	"decreasing": ":chart_with_downwards_trend:",
	"stable":     ":left_right_arrow:",
	"unknown":    ":grey_question:",
}

// Formatter builds Slack Block Kit payloads.
// Ref: https://api.slack.com/block-kit/building
type Formatter struct {
	now func() time.Time
}

// NewFormatter returns a Formatter stamping messages with the wall clock.
func NewFormatter() *Formatter {
	return &Formatter{now: time.Now}
}

// AnomalyAlert renders one anomaly with interactive feedback buttons. The
// alert ID rides in the button values so the feedback callback can attach
// the response to this alert.
func (f *Formatter) AnomalyAlert(anomaly analysis.DetectedAnomaly, alertID, aiAnalysis string) map[string]interface{} {
	emoji, ok := severityEmoji[anomaly.Severity]
	if !ok {
		emoji = ":grey_question:"
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  fmt.Sprintf("%s Cost Anomaly Detected", emoji),
				"emoji": true,
			},
		},
		{
			"type": "section",
			"fields": []map[string]interface{}{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Service*\n%s", anomaly.Service)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Change*\n$%+.2f (%+.0f%%)", anomaly.AbsoluteChange, anomaly.PercentChange)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Current Cost*\n$%.2f", anomaly.CurrentCost)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Baseline*\n$%.2f", anomaly.BaselineCost)},
			},
		},
		{"type": "divider"},
	}

	if aiAnalysis != "" {
		blocks = append(blocks,
			map[string]interface{}{
				"type": "section",
				"text": map[string]interface{}{
					"type": "mrkdwn",
					"text": fmt.Sprintf("*AI Analysis*\n%s", aiAnalysis),
				},
			},
			map[string]interface{}{"type": "divider"},
		)
	}

	blocks = append(blocks, map[string]interface{}{
		"type":     "actions",
		"block_id": fmt.Sprintf("anomaly_feedback_%s", alertID),
		"elements": []map[string]interface{}{
			feedbackButton(":white_check_mark: Expected", "primary", "feedback_expected", alertID),
			feedbackButton(":x: Unexpected", "danger", "feedback_unexpected", alertID),
			feedbackButton(":mag: Investigating", "", "feedback_investigating", alertID),
		},
	})

	shortID := alertID
	if len(shortID) > 8 {
		shortID = shortID[:8]
	}
	blocks = append(blocks, contextLine(fmt.Sprintf(
		"Alert ID: `%s` | %s | Severity: %s",
		shortID, f.now().UTC().Format("2006-01-02 15:04 UTC"), anomaly.Severity,
	)))

	return map[string]interface{}{"blocks": blocks}
}

func feedbackButton(label, style, actionID, alertID string) map[string]interface{} {
	button := map[string]interface{}{
		"type":      "button",
		"text":      map[string]interface{}{"type": "plain_text", "text": label, "emoji": true},
		"action_id": actionID,
		"value":     alertID,
	}
	if style != "" {
		button["style"] = style
	}
	return button
}

func contextLine(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "context",
		"elements": []map[string]interface{}{
			{"type": "mrkdwn", "text": text},
		},
	}
}

// DailyReport renders the daily summary. Informational only, no buttons.
func (f *Formatter) DailyReport(summary analysis.DailySummary, aiInsight string) map[string]interface{} {
	dateStr := summary.CostDataDate
	if dt, err := time.Parse("2006-01-02", summary.CostDataDate); err == nil {
		dateStr = dt.Format("January 02, 2006")
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  fmt.Sprintf(":bar_chart: Daily Cost Report - %s", dateStr),
				"emoji": true,
			},
		},
	}

	if summary.UsedFallback {
		blocks = append(blocks, contextLine(
			":information_source: _Using today's data (yesterday's data not yet available)_",
		))
	}

	spendLabel := "Yesterday's Spend"
	if summary.UsedFallback {
		spendLabel = "Today's Spend"
	}
	summaryLines := []string{fmt.Sprintf("*%s*: $%.2f", spendLabel, summary.TotalCost)}
	if summary.BudgetMonthly > 0 {
		summaryLines = append(summaryLines, fmt.Sprintf(
			"*Month-to-Date*: $%.2f (%.0f%% of $%.0f budget)",
			summary.BudgetSpent, summary.BudgetPercent, summary.BudgetMonthly,
		))
	}
	if summary.Forecast > 0 {
		forecastPct := 0.0
		if summary.BudgetMonthly > 0 {
			forecastPct = summary.Forecast / summary.BudgetMonthly * 100
		}
		warning := ""
		if forecastPct > 100 {
			warning = " :warning:"
		}
		summaryLines = append(summaryLines, fmt.Sprintf(
			"*Projected Month-End*: $%.2f (%.0f%% of budget)%s",
			summary.Forecast, forecastPct, warning,
		))
	}
	blocks = append(blocks,
		sectionText(strings.Join(summaryLines, "\n")),
		map[string]interface{}{"type": "divider"},
	)

	if len(summary.TopServices) > 0 {
		blocks = append(blocks, sectionText(topServicesText("Top 5 Services", summary.TopServices)))
	}

	blocks = append(blocks, sectionText(fmt.Sprintf(
		"*Trend*: %s %s", trendEmoji[summary.Trend], titleCase(summary.Trend),
	)))

	if aiInsight != "" {
		blocks = append(blocks,
			map[string]interface{}{"type": "divider"},
			sectionText(fmt.Sprintf(":bulb: *AI Insight*\n%s", aiInsight)),
		)
	}

	blocks = append(blocks, contextLine(fmt.Sprintf("Report date: %s", summary.Date)))

	return map[string]interface{}{"blocks": blocks}
}

// WeeklyReport renders the weekly summary. Informational only, no buttons.
func (f *Formatter) WeeklyReport(summary analysis.WeeklySummary, aiInsight string) map[string]interface{} {
	var changeEmoji, changeText string
	switch {
	case summary.WeekOverWeekChange > 10:
		changeEmoji = ":chart_with_upwards_trend:"
		changeText = fmt.Sprintf("+%.1f%% vs last week", summary.WeekOverWeekChange)
	case summary.WeekOverWeekChange < -10:
		changeEmoji = ":chart_with_downwards_trend:"
		changeText = fmt.Sprintf("%.1f%% vs last week", summary.WeekOverWeekChange)
	default:
		changeEmoji = ":left_right_arrow:"
		changeText = fmt.Sprintf("%+.1f%% vs last week (stable)", summary.WeekOverWeekChange)
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  ":calendar: Weekly Cost Report",
				"emoji": true,
			},
		},
		contextLine(fmt.Sprintf("*Period*: %s to %s", summary.StartDate, summary.EndDate)),
		{
			"type": "section",
			"fields": []map[string]interface{}{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Week Total*\n$%.2f", summary.TotalCost)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Daily Average*\n$%.2f", summary.DailyAverage)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Change*\n%s %s", changeEmoji, changeText)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Anomalies*\n%d detected", summary.AnomalyCount)},
			},
		},
		{"type": "divider"},
	}

	if len(summary.TopServices) > 0 {
		blocks = append(blocks, sectionText(topServicesText("Top 5 Services This Week", summary.TopServices)))
	}

	forecastWarning := ""
	if summary.BudgetPercent > 90 {
		forecastWarning = " :warning:"
	}
	blocks = append(blocks,
		map[string]interface{}{"type": "divider"},
		map[string]interface{}{
			"type": "section",
			"fields": []map[string]interface{}{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Month-to-Date*\n$%.2f (%.0f%% of budget)", summary.MTDCost, summary.BudgetPercent)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Projected Month-End*\n$%.2f%s", summary.Forecast, forecastWarning)},
			},
		},
	)

	if aiInsight != "" {
		blocks = append(blocks,
			map[string]interface{}{"type": "divider"},
			sectionText(fmt.Sprintf(":bulb: *AI Insight*\n%s", aiInsight)),
		)
	}

	return map[string]interface{}{"blocks": blocks}
}

// BudgetAlert renders a budget threshold crossing.
func (f *Formatter) BudgetAlert(status storage.BudgetStatus, thresholdType string, aiRecommendation string) map[string]interface{} {
	emoji := ":rotating_light:"
	thresholdPct := 100
	if thresholdType == "warning" {
		emoji = ":moneybag:"
		thresholdPct = 80
	}

	blocks := []map[string]interface{}{
		{
			"type": "header",
			"text": map[string]interface{}{
				"type":  "plain_text",
				"text":  fmt.Sprintf("%s Budget Alert: %d%% Threshold Reached", emoji, thresholdPct),
				"emoji": true,
			},
		},
		sectionText(fmt.Sprintf(
			"Your monthly AWS budget has reached %.0f%% utilization.", status.MonthlyPercent,
		)),
		{
			"type": "section",
			"fields": []map[string]interface{}{
				{"type": "mrkdwn", "text": fmt.Sprintf("*Budget*\n$%.2f", status.MonthlyBudget)},
				{"type": "mrkdwn", "text": fmt.Sprintf("*Current Spend*\n$%.2f (%.0f%%)", status.MonthlySpent, status.MonthlyPercent)},
			},
		},
	}

	if aiRecommendation != "" {
		blocks = append(blocks,
			map[string]interface{}{"type": "divider"},
			sectionText(fmt.Sprintf(":bulb: *Recommendation*\n%s", aiRecommendation)),
		)
	}

	return map[string]interface{}{"blocks": blocks}
}

// FeedbackConfirmation replaces an alert's buttons once someone responds.
func (f *Formatter) FeedbackConfirmation(feedbackType, userName string) map[string]interface{} {
	emoji := map[string]string{
		storage.FeedbackExpected:      ":white_check_mark:",
		storage.FeedbackUnexpected:    ":x:",
		storage.FeedbackInvestigating: ":mag:",
	}[feedbackType]
	if emoji == "" {
		emoji = ":grey_question:"
	}

	return map[string]interface{}{
		"blocks": []map[string]interface{}{
			contextLine(fmt.Sprintf("%s Marked as *%s* by %s", emoji, feedbackType, userName)),
		},
	}
}

// SimpleMessage renders a one-liner.
func (f *Formatter) SimpleMessage(text, emoji string) map[string]interface{} {
	if emoji == "" {
		emoji = ":robot_face:"
	}
	return map[string]interface{}{
		"blocks": []map[string]interface{}{
			sectionText(fmt.Sprintf("%s %s", emoji, text)),
		},
	}
}

func sectionText(text string) map[string]interface{} {
	return map[string]interface{}{
		"type": "section",
		"text": map[string]interface{}{"type": "mrkdwn", "text": text},
	}
}

func topServicesText(heading string, services []analysis.ServiceCost) string {
	var total float64
	for _, s := range services {
		total += s.Cost
	}
	lines := []string{fmt.Sprintf("*%s*:", heading)}
	for i, s := range services {
		pct := 0.0
		if total > 0 {
			pct = s.Cost / total * 100
		}
		lines = append(lines, fmt.Sprintf("%d. %s: $%.2f (%.0f%%)", i+1, s.Service, s.Cost, pct))
	}
	return strings.Join(lines, "\n")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
