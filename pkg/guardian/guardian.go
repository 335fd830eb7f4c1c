// Package guardian is the runtime core: it wires collection, storage,
// detection, AI analysis, and Slack delivery into the scheduled pipelines.
package guardian

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/DrSkyle/costguardian/pkg/analysis"
	"github.com/DrSkyle/costguardian/pkg/collector"
	"github.com/DrSkyle/costguardian/pkg/config"
	"github.com/DrSkyle/costguardian/pkg/notifier"
	"github.com/DrSkyle/costguardian/pkg/storage"
)

// Store is the persistence surface the guardian needs.
type Store interface {
	PutSnapshot(ctx context.Context, snap storage.CostSnapshot) error
	SnapshotsForDate(ctx context.Context, date string) ([]storage.CostSnapshot, error)
	RecentSnapshots(ctx context.Context, days int, accountID string) ([]storage.CostSnapshot, error)
	ActiveChanges(ctx context.Context) ([]storage.ChangeLog, error)
	PutFeedback(ctx context.Context, fb storage.AnomalyFeedback) error
	PutChange(ctx context.Context, change storage.ChangeLog) error
	ChangesForService(ctx context.Context, service string) ([]storage.ChangeLog, error)
	UpdateChangeStatus(ctx context.Context, change storage.ChangeLog, status, notes string) error
}

// BudgetSource reads budget utilization.
type BudgetSource interface {
	Budgets(ctx context.Context) ([]collector.BudgetInfo, error)
}

// Notifier delivers payloads to logical Slack channels.
type Notifier interface {
	SendTo(ctx context.Context, channel string, payload map[string]interface{}) error
	AnomalyChannel(severity analysis.Severity) string
	BudgetChannel(thresholdType string) string
	ReportChannel(reportType string) string
}

// Insights generates optional AI commentary. Empty strings mean
// "no analysis available".
type Insights interface {
	AnalyzeAnomaly(ctx context.Context, anomaly analysis.DetectedAnomaly, historicalContext string) string
	DailyInsight(ctx context.Context, summary analysis.DailySummary) string
	WeeklyInsight(ctx context.Context, summary analysis.WeeklySummary) string
}

// RunOptions are per-invocation overrides, mostly for testing a deployment
// without touching state or waking anyone up.
type RunOptions struct {
	DryRun           bool // Collect and analyze but don't store or notify.
	SkipStorage      bool
	SkipSlack        bool
	SkipLLM          bool
	ForceAnomaly     bool   // Inject a fake anomaly to exercise alerting end to end.
	ForceBudgetAlert string // "warning" or "critical".
}

func (o RunOptions) skipStorage() bool { return o.SkipStorage || o.DryRun }
func (o RunOptions) skipSlack() bool   { return o.SkipSlack || o.DryRun }

// Guardian is the runtime core.
type Guardian struct {
	Logger *slog.Logger
	Tracer trace.Tracer

	cfg       config.Config
	store     Store
	collector collector.Collector
	budgets   BudgetSource
	backfill  BackfillSource
	notify    Notifier
	insights  Insights
	formatter *notifier.Formatter
	detector  *analysis.AnomalyDetector

	now func() time.Time
}

// Option is a functional configuration override.
type Option func(*Guardian)

// New initializes the Guardian. Collection, storage, and delivery
// dependencies come in through options; anything left nil is simply
// skipped at runtime with a warning.
func New(cfg config.Config, opts ...Option) *Guardian {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: redactSensitiveData,
	})
	g := &Guardian{
		Logger:    slog.New(handler),
		Tracer:    otel.Tracer("costguardian/guardian"),
		cfg:       cfg,
		formatter: notifier.NewFormatter(),
		detector:  analysis.NewAnomalyDetector(cfg.AnomalyDetection),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Guardian) { g.Logger = l }
}

// WithStore sets the snapshot store.
func WithStore(s Store) Option {
	return func(g *Guardian) { g.store = s }
}

// WithCollector sets the cost source.
func WithCollector(c collector.Collector) Option {
	return func(g *Guardian) { g.collector = c }
}

// WithBudgets sets the budget source.
func WithBudgets(b BudgetSource) Option {
	return func(g *Guardian) { g.budgets = b }
}

// WithNotifier sets the Slack delivery layer.
func WithNotifier(n Notifier) Option {
	return func(g *Guardian) { g.notify = n }
}

// WithInsights sets the AI analysis layer.
func WithInsights(i Insights) Option {
	return func(g *Guardian) { g.insights = i }
}

// WithClock overrides the wall clock (for testing).
func WithClock(now func() time.Time) Option {
	return func(g *Guardian) { g.now = now }
}

// CollectResult summarizes one collection run.
type CollectResult struct {
	SnapshotID        string
	TotalCost         float64
	ServicesCount     int
	AnomaliesDetected int
	NotificationsSent int
	BudgetAlert       string // "", "warning", or "critical"
	Timestamp         string
}

// Collect runs the full pipeline: collect costs, snapshot, persist,
// detect anomalies, and send alerts. Storage and collection failures
// propagate; delivery and AI failures are logged and absorbed so a Slack
// outage never loses a snapshot.
func (g *Guardian) Collect(ctx context.Context, opts RunOptions) (*CollectResult, error) {
	ctx, span := g.Tracer.Start(ctx, "Guardian.Collect")
	defer span.End()

	if g.collector == nil {
		return nil, fmt.Errorf("guardian: no collector configured")
	}
	if g.store == nil {
		return nil, fmt.Errorf("guardian: no store configured")
	}

	g.Logger.Info("collecting cost data", "source", g.collector.Name())
	costData, err := g.collector.Collect(ctx, collector.CollectOptions{
		LookbackDays: g.cfg.Collection.Sources.CostExplorer.LookbackDays,
	})
	if err != nil {
		return nil, fmt.Errorf("collect cost data: %w", err)
	}
	g.Logger.Info("collected cost data",
		"total_cost", costData.TotalCost,
		"services", len(costData.CostByService),
		"cost_data_date", costData.CostDataDate)

	budgetStatus := g.collectBudgetStatus(ctx)

	snapshot := g.buildSnapshot(costData, budgetStatus)

	if !opts.skipStorage() {
		if err := g.store.PutSnapshot(ctx, snapshot); err != nil {
			return nil, fmt.Errorf("store snapshot: %w", err)
		}
		g.Logger.Info("stored snapshot", "snapshot_id", snapshot.SnapshotID)
	} else {
		g.Logger.Info("dry run, snapshot not stored", "snapshot_id", snapshot.SnapshotID)
	}

	anomalies := g.detectAnomalies(ctx, snapshot, costData.AccountID, opts)
	span.SetAttributes(attribute.Int("anomalies.count", len(anomalies)))

	if len(anomalies) > 0 && !opts.skipStorage() {
		snapshot.AnomaliesDetected = anomalyInfos(anomalies)
		if err := g.store.PutSnapshot(ctx, snapshot); err != nil {
			g.Logger.Warn("failed to write back anomalies", "error", err)
		}
	}

	sent := 0
	if !opts.skipSlack() {
		sent = g.sendAnomalyAlerts(ctx, anomalies, costData.AccountID, opts)
	} else if len(anomalies) > 0 {
		g.Logger.Info("skipping slack, would send alerts", "count", len(anomalies))
	}

	budgetAlert := ""
	if !opts.skipSlack() {
		budgetAlert = g.checkBudgetThresholds(ctx, budgetStatus, snapshot.SnapshotID, opts)
		if budgetAlert != "" {
			sent++
		}
	}

	return &CollectResult{
		SnapshotID:        snapshot.SnapshotID,
		TotalCost:         costData.TotalCost,
		ServicesCount:     len(costData.CostByService),
		AnomaliesDetected: len(anomalies),
		NotificationsSent: sent,
		BudgetAlert:       budgetAlert,
		Timestamp:         snapshot.Timestamp,
	}, nil
}

func (g *Guardian) collectBudgetStatus(ctx context.Context) *storage.BudgetStatus {
	if g.budgets == nil || !g.cfg.Collection.Sources.Budgets.Enabled {
		return nil
	}
	budgets, err := g.budgets.Budgets(ctx)
	if err != nil {
		g.Logger.Warn("budget collection failed", "error", err)
		return nil
	}
	if len(budgets) == 0 {
		g.Logger.Info("no budgets found")
		return nil
	}
	// First budget only. Multi-budget accounts still get a useful signal
	// from their primary monthly budget.
	b := budgets[0]
	g.Logger.Info("budget status",
		"budget", b.Name,
		"percent_used", b.PercentageUsed,
		"actual_spend", b.ActualSpend)
	return &storage.BudgetStatus{
		MonthlyBudget:  b.Limit,
		MonthlySpent:   b.ActualSpend,
		MonthlyPercent: b.PercentageUsed,
	}
}

func (g *Guardian) buildSnapshot(costData *collector.CostData, budgetStatus *storage.BudgetStatus) storage.CostSnapshot {
	snapshot := storage.NewCostSnapshot(costData.AccountID, g.now())
	snapshot.CostDataDate = costData.CostDataDate
	snapshot.TotalCost = costData.TotalCost
	snapshot.Currency = costData.Currency
	snapshot.CostByService = costData.CostByService
	snapshot.BudgetStatus = budgetStatus

	if costData.Forecast != nil {
		snapshot.Forecast = &storage.CostForecast{
			EndOfMonth: costData.Forecast.ForecastedTotal,
			Confidence: "medium",
		}
	}
	for id, acct := range costData.CostByAccount {
		if snapshot.CostByAccount == nil {
			snapshot.CostByAccount = map[string]storage.AccountCost{}
		}
		snapshot.CostByAccount[id] = storage.AccountCost{Name: acct.AccountName, Cost: acct.TotalCost}
	}

	snapshot.TTL = g.snapshotTTL()
	return snapshot
}

func (g *Guardian) snapshotTTL() int64 {
	ttlDays := 90
	if g.cfg.Environment == "dev" {
		ttlDays = 7
	}
	return g.now().UTC().AddDate(0, 0, ttlDays).Unix()
}

func (g *Guardian) detectAnomalies(ctx context.Context, snapshot storage.CostSnapshot, accountID string, opts RunOptions) []analysis.DetectedAnomaly {
	historical, err := g.store.RecentSnapshots(ctx, g.cfg.AnomalyDetection.BaselineDays, accountID)
	if err != nil {
		g.Logger.Warn("failed to load historical snapshots", "error", err)
		historical = nil
	}

	activeChanges, err := g.store.ActiveChanges(ctx)
	if err != nil {
		g.Logger.Warn("failed to load active changes", "error", err)
		activeChanges = nil
	}

	// One baseline sample per day, not one per collection run.
	history := analysis.LatestPerDay(historical)
	g.Logger.Info("running anomaly detection",
		"historical_days", len(history),
		"active_changes", len(activeChanges))

	anomalies := g.detector.Detect(snapshot, history, activeChanges)

	if opts.ForceAnomaly {
		fake := testAnomaly(snapshot.CostByService)
		anomalies = append(anomalies, fake)
		g.Logger.Info("injected test anomaly", "service", fake.Service)
	}

	if len(anomalies) > 0 {
		g.Logger.Info("anomalies detected", "summary", analysis.Summary(anomalies))
	}
	return anomalies
}

func (g *Guardian) sendAnomalyAlerts(ctx context.Context, anomalies []analysis.DetectedAnomaly, accountID string, opts RunOptions) int {
	if g.notify == nil || len(anomalies) == 0 {
		return 0
	}

	historical, err := g.store.RecentSnapshots(ctx, 7, accountID)
	if err != nil {
		historical = nil
	}

	sent := 0
	for _, anomaly := range anomalies {
		alertID := uuid.NewString()

		aiAnalysis := ""
		if g.insights != nil && !opts.SkipLLM {
			aiAnalysis = g.insights.AnalyzeAnomaly(ctx, anomaly, historicalSummary(historical, anomaly.Service))
		}

		payload := g.formatter.AnomalyAlert(anomaly, alertID, aiAnalysis)
		channel := g.notify.AnomalyChannel(anomaly.Severity)
		if err := g.notify.SendTo(ctx, channel, payload); err != nil {
			g.Logger.Warn("failed to send anomaly alert",
				"service", anomaly.Service, "channel", channel, "error", err)
			continue
		}
		sent++
		g.Logger.Info("sent anomaly alert",
			"service", anomaly.Service,
			"severity", anomaly.Severity,
			"alert_id", alertID)
	}
	return sent
}

// checkBudgetThresholds sends at most one budget alert per threshold per
// day. Earlier snapshots from today that already crossed the threshold
// mean an alert has gone out. The snapshot stored by the current run is
// excluded or it would always suppress its own alert.
func (g *Guardian) checkBudgetThresholds(ctx context.Context, status *storage.BudgetStatus, currentSnapshotID string, opts RunOptions) string {
	if g.notify == nil {
		return ""
	}

	if opts.ForceBudgetAlert == "warning" || opts.ForceBudgetAlert == "critical" {
		forced := storage.BudgetStatus{MonthlyBudget: 1000, MonthlySpent: 850, MonthlyPercent: 85}
		if status != nil {
			forced = *status
		}
		if opts.ForceBudgetAlert == "critical" {
			forced.MonthlyPercent = 105
		}
		g.sendBudgetAlert(ctx, forced, opts.ForceBudgetAlert, opts)
		return opts.ForceBudgetAlert
	}

	if status == nil {
		return ""
	}

	warning := float64(g.cfg.Budgets.Monthly.WarningThreshold)
	critical := float64(g.cfg.Budgets.Monthly.CriticalThreshold)

	var thresholdType string
	switch {
	case status.MonthlyPercent >= critical:
		thresholdType = "critical"
	case status.MonthlyPercent >= warning:
		thresholdType = "warning"
	default:
		return ""
	}

	today := g.now().UTC().Format("2006-01-02")
	todaySnapshots, err := g.store.SnapshotsForDate(ctx, today)
	if err != nil {
		g.Logger.Warn("failed to check for earlier budget alerts", "error", err)
	}
	for _, snap := range todaySnapshots {
		if snap.BudgetStatus == nil || snap.SnapshotID == currentSnapshotID {
			continue
		}
		prev := snap.BudgetStatus.MonthlyPercent
		if thresholdType == "critical" && prev >= critical {
			g.Logger.Info("budget critical alert already sent today")
			return ""
		}
		if thresholdType == "warning" && prev >= warning && prev < critical {
			g.Logger.Info("budget warning alert already sent today")
			return ""
		}
	}

	g.sendBudgetAlert(ctx, *status, thresholdType, opts)
	return thresholdType
}

func (g *Guardian) sendBudgetAlert(ctx context.Context, status storage.BudgetStatus, thresholdType string, opts RunOptions) {
	recommendation := ""
	if g.insights != nil && !opts.SkipLLM {
		recommendation = g.budgetRecommendation(ctx, status)
	}

	payload := g.formatter.BudgetAlert(status, thresholdType, recommendation)
	channel := g.notify.BudgetChannel(thresholdType)
	if err := g.notify.SendTo(ctx, channel, payload); err != nil {
		g.Logger.Warn("failed to send budget alert", "channel", channel, "error", err)
		return
	}
	g.Logger.Info("sent budget alert", "threshold", thresholdType, "percent", status.MonthlyPercent)
}

func (g *Guardian) budgetRecommendation(ctx context.Context, status storage.BudgetStatus) string {
	// Reuse the daily-insight path with budget framing; a dedicated prompt
	// is not worth a provider round trip of its own.
	return g.insights.DailyInsight(ctx, analysis.DailySummary{
		TotalCost:     status.MonthlySpent,
		BudgetMonthly: status.MonthlyBudget,
		BudgetSpent:   status.MonthlySpent,
		BudgetPercent: status.MonthlyPercent,
		Trend:         "unknown",
		HasData:       true,
	})
}

func anomalyInfos(anomalies []analysis.DetectedAnomaly) []storage.AnomalyInfo {
	infos := make([]storage.AnomalyInfo, len(anomalies))
	for i, a := range anomalies {
		infos[i] = storage.AnomalyInfo{
			Service:       a.Service,
			Amount:        a.AbsoluteChange,
			PercentChange: a.PercentChange,
			Severity:      string(a.Severity),
			BaselineCost:  a.BaselineCost,
			Description:   a.Description(),
		}
	}
	return infos
}

// testAnomaly fabricates a 75% increase on the most expensive service so
// the whole alert path can be exercised against a live Slack workspace.
func testAnomaly(costByService map[string]float64) analysis.DetectedAnomaly {
	service := "Amazon EC2"
	currentCost := 100.0
	for name, cost := range costByService {
		if cost > costByService[service] {
			service = name
			currentCost = cost
		}
	}

	baselineCost := currentCost / 1.75
	return analysis.DetectedAnomaly{
		Service:        "[TEST] " + service,
		CurrentCost:    round2(currentCost),
		BaselineCost:   round2(baselineCost),
		AbsoluteChange: round2(currentCost - baselineCost),
		PercentChange:  75,
		StdDeviations:  3,
		Severity:       analysis.SeverityWarning,
		Reason:         "[TEST] Forced anomaly for verifying alert delivery",
	}
}

// historicalSummary renders up to a week of daily costs for one service
// as LLM context.
func historicalSummary(snapshots []storage.CostSnapshot, service string) string {
	if len(snapshots) == 0 {
		return "No historical data available."
	}

	var lines []string
	seen := map[string]bool{}
	for _, s := range snapshots {
		if seen[s.Date] {
			continue
		}
		seen[s.Date] = true
		if cost := s.CostByService[service]; cost > 0 {
			lines = append(lines, fmt.Sprintf("  %s: $%.2f", s.Date, cost))
		}
		if len(lines) >= 7 {
			break
		}
	}
	if len(lines) == 0 {
		return fmt.Sprintf("No recent cost history for %s.", service)
	}
	return fmt.Sprintf("Recent %s daily costs:\n%s", service, strings.Join(lines, "\n"))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// redactSensitiveData scrubs sensitive keys from logs.
func redactSensitiveData(groups []string, a slog.Attr) slog.Attr {
	sensitiveKeys := map[string]bool{
		"password": true, "access_key": true, "token": true,
		"secret": true, "api_key": true, "webhook_url": true,
		"credential": true, "authorization": true,
	}
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "[REDACTED]")
	}
	return a
}
