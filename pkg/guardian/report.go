package guardian

import (
	"context"
	"fmt"

	"github.com/DrSkyle/costguardian/pkg/analysis"
)

// ReportResult summarizes one report run.
type ReportResult struct {
	ReportType       string
	TotalCost        float64
	HasData          bool
	HasAIInsight     bool
	NotificationSent bool

	Date      string // Daily.
	StartDate string // Weekly.
	EndDate   string // Weekly.
}

// Report builds and delivers a daily or weekly cost report. A day with no
// snapshots produces a result with HasData false and sends nothing.
func (g *Guardian) Report(ctx context.Context, reportType string, opts RunOptions) (*ReportResult, error) {
	ctx, span := g.Tracer.Start(ctx, "Guardian.Report")
	defer span.End()

	if g.store == nil {
		return nil, fmt.Errorf("guardian: no store configured")
	}

	switch reportType {
	case "daily":
		return g.dailyReport(ctx, opts)
	case "weekly":
		return g.weeklyReport(ctx, opts)
	default:
		return nil, fmt.Errorf("unknown report type %q", reportType)
	}
}

func (g *Guardian) dailyReport(ctx context.Context, opts RunOptions) (*ReportResult, error) {
	summary, err := analysis.BuildDailySummary(ctx, g.store, g.now().UTC(), "")
	if err != nil {
		return nil, fmt.Errorf("build daily summary: %w", err)
	}

	result := &ReportResult{
		ReportType: "daily",
		TotalCost:  summary.TotalCost,
		HasData:    summary.HasData,
		Date:       summary.Date,
	}
	if !summary.HasData {
		g.Logger.Info("no data for daily report", "date", summary.Date)
		return result, nil
	}
	g.Logger.Info("built daily summary",
		"date", summary.Date,
		"total_cost", summary.TotalCost,
		"used_fallback", summary.UsedFallback)

	aiInsight := ""
	if g.insights != nil && !opts.SkipLLM && g.cfg.Reports.Daily.IncludeAIInsights {
		aiInsight = g.insights.DailyInsight(ctx, summary)
	}
	result.HasAIInsight = aiInsight != ""

	payload := g.formatter.DailyReport(summary, aiInsight)
	result.NotificationSent = g.deliverReport(ctx, "daily", payload, opts)
	return result, nil
}

func (g *Guardian) weeklyReport(ctx context.Context, opts RunOptions) (*ReportResult, error) {
	summary, err := analysis.BuildWeeklySummary(ctx, g.store, g.now().UTC(), "")
	if err != nil {
		return nil, fmt.Errorf("build weekly summary: %w", err)
	}

	result := &ReportResult{
		ReportType: "weekly",
		TotalCost:  summary.TotalCost,
		HasData:    summary.HasData,
		StartDate:  summary.StartDate,
		EndDate:    summary.EndDate,
	}
	if !summary.HasData {
		g.Logger.Info("no data for weekly report",
			"start_date", summary.StartDate, "end_date", summary.EndDate)
		return result, nil
	}
	g.Logger.Info("built weekly summary",
		"start_date", summary.StartDate,
		"end_date", summary.EndDate,
		"total_cost", summary.TotalCost)

	aiInsight := ""
	if g.insights != nil && !opts.SkipLLM && g.cfg.Reports.Weekly.IncludeAIInsights {
		aiInsight = g.insights.WeeklyInsight(ctx, summary)
	}
	result.HasAIInsight = aiInsight != ""

	payload := g.formatter.WeeklyReport(summary, aiInsight)
	result.NotificationSent = g.deliverReport(ctx, "weekly", payload, opts)
	return result, nil
}

func (g *Guardian) deliverReport(ctx context.Context, reportType string, payload map[string]interface{}, opts RunOptions) bool {
	if g.notify == nil || opts.skipSlack() {
		g.Logger.Info("skipping slack, report not sent", "report_type", reportType)
		return false
	}
	channel := g.notify.ReportChannel(reportType)
	if err := g.notify.SendTo(ctx, channel, payload); err != nil {
		g.Logger.Warn("failed to send report", "report_type", reportType, "error", err)
		return false
	}
	g.Logger.Info("sent report", "report_type", reportType, "channel", channel)
	return true
}
