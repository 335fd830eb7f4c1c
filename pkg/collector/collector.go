// Package collector fetches cost data from billing APIs and normalizes it
// into the intermediate CostData shape consumed by the guardian.
package collector

import "context"

// ServiceCost is one service's cost for a period.
type ServiceCost struct {
	Service  string
	Cost     float64
	Currency string
}

// AccountCostData is the cost attributed to one linked account.
type AccountCostData struct {
	AccountID   string
	AccountName string
	TotalCost   float64
}

// DailyCost is the total spend for one calendar day.
type DailyCost struct {
	Date string // YYYY-MM-DD
	Cost float64
}

// BudgetInfo is the utilization of one AWS budget.
type BudgetInfo struct {
	Name            string
	Limit           float64
	ActualSpend     float64
	ForecastedSpend float64
	PercentageUsed  float64
	Currency        string
}

// ForecastInfo projects spend to the end of the current month.
type ForecastInfo struct {
	ForecastedTotal float64 // Current spend plus projected remainder.
	CurrentSpend    float64
	DaysRemaining   int
	Month           string // YYYY-MM
	Currency        string
}

// CostData is the normalized output of one collection run.
type CostData struct {
	StartDate           string // YYYY-MM-DD
	EndDate             string // YYYY-MM-DD
	CollectionTimestamp string // ISO 8601

	AccountID string

	TotalCost float64
	Currency  string

	CostByService map[string]float64
	CostByAccount map[string]AccountCostData
	DailyCosts    []DailyCost

	Forecast *ForecastInfo

	Trend            string // increasing, decreasing, stable, unknown
	AverageDailyCost float64

	// CostDataDate is the day CostByService represents, trailing EndDate
	// by the configured lag.
	CostDataDate string
}

// CollectOptions bounds one collection run. Zero values fall back to the
// collector's configured lookback window ending today.
type CollectOptions struct {
	StartDate    string // YYYY-MM-DD
	EndDate      string // YYYY-MM-DD
	LookbackDays int
}

// Collector is the capability interface for cost sources. Implementations
// are swappable: Cost Explorer today, other billing APIs behind the same
// shape.
type Collector interface {
	Collect(ctx context.Context, opts CollectOptions) (*CostData, error)
	Name() string
}

// trendOf compares the first half of the daily series to the second with a
// 10% band.
func trendOf(dailyCosts []DailyCost) string {
	if len(dailyCosts) < 2 {
		return "unknown"
	}

	mid := len(dailyCosts) / 2
	var firstHalf, secondHalf float64
	for _, dc := range dailyCosts[:mid] {
		firstHalf += dc.Cost
	}
	for _, dc := range dailyCosts[mid:] {
		secondHalf += dc.Cost
	}

	firstAvg := firstHalf / float64(mid)
	secondAvg := secondHalf / float64(len(dailyCosts)-mid)
	if firstAvg == 0 {
		return "unknown"
	}

	changePct := (secondAvg - firstAvg) / firstAvg * 100
	switch {
	case changePct > 10:
		return "increasing"
	case changePct < -10:
		return "decreasing"
	default:
		return "stable"
	}
}
