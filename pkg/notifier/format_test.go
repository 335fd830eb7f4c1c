package notifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/costguardian/pkg/analysis"
	"github.com/DrSkyle/costguardian/pkg/storage"
)

func blocksOf(t *testing.T, payload map[string]interface{}) []map[string]interface{} {
	t.Helper()
	blocks, ok := payload["blocks"].([]map[string]interface{})
	require.True(t, ok, "payload has no blocks")
	return blocks
}

func blockTypes(blocks []map[string]interface{}) []string {
	out := make([]string, len(blocks))
	for i, b := range blocks {
		out[i], _ = b["type"].(string)
	}
	return out
}

func TestAnomalyAlertBlocks(t *testing.T) {
	anomaly := analysis.DetectedAnomaly{
		Service:        "AmazonEC2",
		CurrentCost:    250,
		BaselineCost:   100,
		AbsoluteChange: 150,
		PercentChange:  150,
		Severity:       analysis.SeverityCritical,
	}

	payload := NewFormatter().AnomalyAlert(anomaly, "abc12345-6789", "Likely a new instance family.")
	blocks := blocksOf(t, payload)

	// Header, fields, divider, AI section, divider, buttons, footer.
	assert.Equal(t,
		[]string{"header", "section", "divider", "section", "divider", "actions", "context"},
		blockTypes(blocks))

	header := blocks[0]["text"].(map[string]interface{})
	assert.Contains(t, header["text"], ":rotating_light:")

	actions := blocks[5]
	assert.Equal(t, "anomaly_feedback_abc12345-6789", actions["block_id"])
	buttons := actions["elements"].([]map[string]interface{})
	require.Len(t, buttons, 3)
	assert.Equal(t, "feedback_expected", buttons[0]["action_id"])
	assert.Equal(t, "feedback_unexpected", buttons[1]["action_id"])
	assert.Equal(t, "feedback_investigating", buttons[2]["action_id"])
	for _, b := range buttons {
		assert.Equal(t, "abc12345-6789", b["value"])
	}

	footer := blocks[6]["elements"].([]map[string]interface{})[0]
	assert.Contains(t, footer["text"], "`abc12345`")
}

func TestAnomalyAlertWithoutAnalysis(t *testing.T) {
	payload := NewFormatter().AnomalyAlert(analysis.DetectedAnomaly{
		Service:  "AmazonS3",
		Severity: analysis.SeverityInfo,
	}, "id-1", "")
	blocks := blocksOf(t, payload)
	assert.Equal(t,
		[]string{"header", "section", "divider", "actions", "context"},
		blockTypes(blocks))
}

func TestDailyReportBlocks(t *testing.T) {
	summary := analysis.DailySummary{
		Date:         "2026-03-15",
		CostDataDate: "2026-03-14",
		TotalCost:    42.5,
		TopServices: []analysis.ServiceCost{
			{Service: "AmazonEC2", Cost: 30},
			{Service: "AmazonS3", Cost: 12.5},
		},
		Trend:         "increasing",
		BudgetMonthly: 900,
		BudgetSpent:   450,
		BudgetPercent: 50,
		Forecast:      950,
		HasData:       true,
	}

	payload := NewFormatter().DailyReport(summary, "Spend is trending up.")
	blocks := blocksOf(t, payload)

	header := blocks[0]["text"].(map[string]interface{})
	assert.Contains(t, header["text"], "March 14, 2026")

	summaryText := blocks[1]["text"].(map[string]interface{})["text"].(string)
	assert.Contains(t, summaryText, "Yesterday's Spend")
	assert.Contains(t, summaryText, "$42.50")
	assert.Contains(t, summaryText, "Month-to-Date")
	// Forecast exceeds budget.
	assert.Contains(t, summaryText, ":warning:")
}

func TestDailyReportFallbackNote(t *testing.T) {
	payload := NewFormatter().DailyReport(analysis.DailySummary{
		Date:         "2026-03-15",
		CostDataDate: "2026-03-15",
		UsedFallback: true,
		HasData:      true,
	}, "")
	blocks := blocksOf(t, payload)

	note := blocks[1]["elements"].([]map[string]interface{})[0]["text"].(string)
	assert.Contains(t, note, "today's data")

	summaryText := blocks[2]["text"].(map[string]interface{})["text"].(string)
	assert.Contains(t, summaryText, "Today's Spend")
}

func TestWeeklyReportChangeText(t *testing.T) {
	f := NewFormatter()

	up := blocksOf(t, f.WeeklyReport(analysis.WeeklySummary{WeekOverWeekChange: 25.3}, ""))
	fields := up[2]["fields"].([]map[string]interface{})
	assert.Contains(t, fields[2]["text"], "+25.3% vs last week")
	assert.Contains(t, fields[2]["text"], ":chart_with_upwards_trend:")

	flat := blocksOf(t, f.WeeklyReport(analysis.WeeklySummary{WeekOverWeekChange: 2}, ""))
	fields = flat[2]["fields"].([]map[string]interface{})
	assert.Contains(t, fields[2]["text"], "(stable)")
}

func TestBudgetAlertThresholds(t *testing.T) {
	f := NewFormatter()
	status := storage.BudgetStatus{MonthlyBudget: 900, MonthlySpent: 765, MonthlyPercent: 85}

	warning := blocksOf(t, f.BudgetAlert(status, "warning", ""))
	header := warning[0]["text"].(map[string]interface{})
	assert.Contains(t, header["text"], ":moneybag:")
	assert.Contains(t, header["text"], "80%")

	critical := blocksOf(t, f.BudgetAlert(status, "critical", "Review EC2 usage."))
	header = critical[0]["text"].(map[string]interface{})
	assert.Contains(t, header["text"], ":rotating_light:")
	assert.Contains(t, header["text"], "100%")
	last := critical[len(critical)-1]["text"].(map[string]interface{})
	assert.Contains(t, last["text"], "Recommendation")
}

func TestFeedbackConfirmation(t *testing.T) {
	payload := NewFormatter().FeedbackConfirmation(storage.FeedbackExpected, "jordan")
	blocks := blocksOf(t, payload)
	text := blocks[0]["elements"].([]map[string]interface{})[0]["text"].(string)
	assert.Contains(t, text, ":white_check_mark:")
	assert.Contains(t, text, "*expected*")
	assert.Contains(t, text, "jordan")
}
