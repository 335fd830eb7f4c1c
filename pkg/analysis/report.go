package analysis

import (
	"context"
	"sort"
	"time"

	"github.com/DrSkyle/costguardian/pkg/storage"
)

// SnapshotSource is the slice of the store the report builders need.
type SnapshotSource interface {
	SnapshotsForDate(ctx context.Context, date string) ([]storage.CostSnapshot, error)
}

// ServiceCost pairs a service with a dollar amount.
type ServiceCost struct {
	Service string
	Cost    float64
}

// DailySummary condenses one day of cost data for reporting.
type DailySummary struct {
	Date         string
	CostDataDate string
	TotalCost    float64
	TopServices  []ServiceCost
	Trend        string // increasing, decreasing, stable, unknown

	BudgetPercent float64
	BudgetMonthly float64
	BudgetSpent   float64
	Forecast      float64

	HasData      bool
	UsedFallback bool
}

// WeeklySummary condenses seven days of cost data for reporting.
type WeeklySummary struct {
	StartDate string
	EndDate   string

	TotalCost          float64
	DailyAverage       float64
	WeekOverWeekChange float64
	TopServices        []ServiceCost
	AnomalyCount       int

	MTDCost       float64
	BudgetPercent float64
	Forecast      float64

	HasData bool
}

func latestOfDay(snaps []storage.CostSnapshot) *storage.CostSnapshot {
	var latest *storage.CostSnapshot
	for i := range snaps {
		if latest == nil || snaps[i].Hour > latest.Hour {
			latest = &snaps[i]
		}
	}
	return latest
}

func topServices(costs map[string]float64, n int) []ServiceCost {
	out := make([]ServiceCost, 0, len(costs))
	for service, cost := range costs {
		out = append(out, ServiceCost{Service: service, Cost: cost})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cost != out[j].Cost {
			return out[i].Cost > out[j].Cost
		}
		return out[i].Service < out[j].Service
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// BuildDailySummary summarizes the target date (default: yesterday),
// falling back to today's data when yesterday has none yet.
func BuildDailySummary(ctx context.Context, source SnapshotSource, now time.Time, targetDate string) (DailySummary, error) {
	today := now.UTC().Truncate(24 * time.Hour)
	yesterday := today.AddDate(0, 0, -1).Format("2006-01-02")
	if targetDate == "" {
		targetDate = yesterday
	}

	snaps, err := source.SnapshotsForDate(ctx, targetDate)
	if err != nil {
		return DailySummary{}, err
	}

	usedFallback := false
	if len(snaps) == 0 && targetDate == yesterday {
		todayStr := today.Format("2006-01-02")
		snaps, err = source.SnapshotsForDate(ctx, todayStr)
		if err != nil {
			return DailySummary{}, err
		}
		if len(snaps) > 0 {
			targetDate = todayStr
			usedFallback = true
		}
	}

	if len(snaps) == 0 {
		return DailySummary{Date: targetDate, Trend: "unknown"}, nil
	}

	latest := latestOfDay(snaps)

	summary := DailySummary{
		Date:         targetDate,
		CostDataDate: latest.CostDataDate,
		TotalCost:    latest.TotalCost,
		TopServices:  topServices(latest.CostByService, 5),
		HasData:      true,
		UsedFallback: usedFallback,
	}
	if summary.CostDataDate == "" {
		summary.CostDataDate = targetDate
	}
	if latest.BudgetStatus != nil {
		summary.BudgetPercent = latest.BudgetStatus.MonthlyPercent
		summary.BudgetMonthly = latest.BudgetStatus.MonthlyBudget
		summary.BudgetSpent = latest.BudgetStatus.MonthlySpent
	}
	if latest.Forecast != nil {
		summary.Forecast = latest.Forecast.EndOfMonth
	}

	summary.Trend, err = dailyTrend(ctx, source, today, latest.TotalCost)
	if err != nil {
		return DailySummary{}, err
	}
	return summary, nil
}

// dailyTrend compares the latest total against the trailing 7-day average
// with a 10% band.
func dailyTrend(ctx context.Context, source SnapshotSource, today time.Time, current float64) (string, error) {
	var dailyCosts []float64
	for i := 1; i <= 7; i++ {
		date := today.AddDate(0, 0, -i).Format("2006-01-02")
		snaps, err := source.SnapshotsForDate(ctx, date)
		if err != nil {
			return "", err
		}
		if latest := latestOfDay(snaps); latest != nil {
			dailyCosts = append(dailyCosts, latest.TotalCost)
		}
	}
	if len(dailyCosts) < 3 {
		return "unknown", nil
	}

	var sum float64
	for _, c := range dailyCosts {
		sum += c
	}
	avg := sum / float64(len(dailyCosts))

	switch {
	case current > avg*1.10:
		return "increasing", nil
	case current < avg*0.90:
		return "decreasing", nil
	default:
		return "stable", nil
	}
}

// BuildWeeklySummary summarizes the seven days ending at endDate (default:
// yesterday), with a week-over-week comparison against the seven days
// before that.
func BuildWeeklySummary(ctx context.Context, source SnapshotSource, now time.Time, endDate string) (WeeklySummary, error) {
	if endDate == "" {
		endDate = now.UTC().AddDate(0, 0, -1).Format("2006-01-02")
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return WeeklySummary{}, err
	}
	start := end.AddDate(0, 0, -6)

	serviceTotals := make(map[string]float64)
	var weekTotal float64
	var daysWithData, anomalyCount int
	var latestBudget *storage.BudgetStatus
	var latestForecast *storage.CostForecast

	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		snaps, err := source.SnapshotsForDate(ctx, d.Format("2006-01-02"))
		if err != nil {
			return WeeklySummary{}, err
		}
		latest := latestOfDay(snaps)
		if latest == nil {
			continue
		}
		daysWithData++
		weekTotal += latest.TotalCost
		for service, cost := range latest.CostByService {
			serviceTotals[service] += cost
		}
		anomalyCount += len(latest.AnomaliesDetected)
		if latest.BudgetStatus != nil {
			latestBudget = latest.BudgetStatus
		}
		if latest.Forecast != nil {
			latestForecast = latest.Forecast
		}
	}

	summary := WeeklySummary{
		StartDate: start.Format("2006-01-02"),
		EndDate:   endDate,
	}
	if daysWithData == 0 {
		return summary, nil
	}

	// Previous week for comparison.
	prevEnd := start.AddDate(0, 0, -1)
	prevStart := prevEnd.AddDate(0, 0, -6)
	var prevTotal float64
	for d := prevStart; !d.After(prevEnd); d = d.AddDate(0, 0, 1) {
		snaps, err := source.SnapshotsForDate(ctx, d.Format("2006-01-02"))
		if err != nil {
			return WeeklySummary{}, err
		}
		if latest := latestOfDay(snaps); latest != nil {
			prevTotal += latest.TotalCost
		}
	}

	summary.TotalCost = weekTotal
	summary.DailyAverage = weekTotal / float64(daysWithData)
	if prevTotal > 0 {
		summary.WeekOverWeekChange = (weekTotal - prevTotal) / prevTotal * 100
	}
	summary.TopServices = topServices(serviceTotals, 5)
	summary.AnomalyCount = anomalyCount
	summary.HasData = true
	if latestBudget != nil {
		summary.MTDCost = latestBudget.MonthlySpent
		summary.BudgetPercent = latestBudget.MonthlyPercent
	}
	if latestForecast != nil {
		summary.Forecast = latestForecast.EndOfMonth
	}
	return summary, nil
}
