package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/DrSkyle/costguardian/pkg/config"
)

// CostExplorerAPI is the subset of the Cost Explorer client we use.
// Every call costs $0.01, so the collector batches its queries carefully.
type CostExplorerAPI interface {
	GetCostAndUsage(ctx context.Context, params *costexplorer.GetCostAndUsageInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error)
	GetCostForecast(ctx context.Context, params *costexplorer.GetCostForecastInput, optFns ...func(*costexplorer.Options)) (*costexplorer.GetCostForecastOutput, error)
}

// STSAPI resolves the caller's account identity.
type STSAPI interface {
	GetCallerIdentity(ctx context.Context, params *sts.GetCallerIdentityInput, optFns ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error)
}

// CostExplorerCollector collects total, per-service, per-account, and
// forecast cost data from AWS Cost Explorer.
type CostExplorerCollector struct {
	ce     CostExplorerAPI
	sts    STSAPI
	logger *slog.Logger
	cfg    config.CostExplorerSourceConfig

	accountID string           // cached after first lookup
	now       func() time.Time // injectable for testing
}

// NewCostExplorerCollector builds a collector from AWS SDK config.
func NewCostExplorerCollector(awsCfg aws.Config, cfg config.CostExplorerSourceConfig, logger *slog.Logger) *CostExplorerCollector {
	return NewCostExplorerCollectorWithAPI(costexplorer.NewFromConfig(awsCfg), sts.NewFromConfig(awsCfg), cfg, logger)
}

// NewCostExplorerCollectorWithAPI builds a collector around explicit API
// implementations (for testing).
func NewCostExplorerCollectorWithAPI(ce CostExplorerAPI, stsAPI STSAPI, cfg config.CostExplorerSourceConfig, logger *slog.Logger) *CostExplorerCollector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &CostExplorerCollector{
		ce:     ce,
		sts:    stsAPI,
		logger: logger,
		cfg:    cfg,
		now:    time.Now,
	}
}

// Name implements Collector.
func (c *CostExplorerCollector) Name() string { return "cost_explorer" }

// AccountID returns the caller's AWS account ID, cached after the first
// STS lookup.
func (c *CostExplorerCollector) AccountID(ctx context.Context) (string, error) {
	if c.accountID != "" {
		return c.accountID, nil
	}
	out, err := c.sts.GetCallerIdentity(ctx, &sts.GetCallerIdentityInput{})
	if err != nil {
		return "", fmt.Errorf("get caller identity: %w", err)
	}
	c.accountID = aws.ToString(out.Account)
	return c.accountID, nil
}

// Collect implements Collector. The by-service breakdown covers the single
// day CostDataLagDays behind the end date, so each snapshot represents one
// day of (complete) data; the daily series covers the whole lookback window
// for trend context.
func (c *CostExplorerCollector) Collect(ctx context.Context, opts CollectOptions) (*CostData, error) {
	today := c.now().UTC()
	end := today
	if opts.EndDate != "" {
		var err error
		end, err = time.Parse("2006-01-02", opts.EndDate)
		if err != nil {
			return nil, fmt.Errorf("parse end date: %w", err)
		}
	}
	lookback := opts.LookbackDays
	if lookback <= 0 {
		lookback = c.cfg.LookbackDays
	}
	start := end.AddDate(0, 0, -lookback)
	if opts.StartDate != "" {
		var err error
		start, err = time.Parse("2006-01-02", opts.StartDate)
		if err != nil {
			return nil, fmt.Errorf("parse start date: %w", err)
		}
	}

	accountID, err := c.AccountID(ctx)
	if err != nil {
		return nil, err
	}

	dailyCosts, err := c.dailyCosts(ctx, start, end)
	if err != nil {
		return nil, err
	}

	// Per-service costs for the lagged target day only.
	costDataDate := end.AddDate(0, 0, -c.cfg.CostDataLagDays)
	costByService, err := c.CostByServiceForDate(ctx, costDataDate)
	if err != nil {
		return nil, err
	}

	costByAccount, err := c.costByAccount(ctx, start, end)
	if err != nil {
		c.logger.Warn("linked account breakdown unavailable", "error", err)
		costByAccount = nil
	}

	forecast, err := c.forecast(ctx)
	if err != nil {
		// Forecast is contextual, not load-bearing. Fail open.
		c.logger.Warn("cost forecast unavailable", "error", err)
		forecast = nil
	}

	var totalCost float64
	for _, cost := range costByService {
		totalCost += cost
	}

	var lookbackTotal float64
	for _, dc := range dailyCosts {
		lookbackTotal += dc.Cost
	}
	averageDaily := 0.0
	if len(dailyCosts) > 0 {
		averageDaily = lookbackTotal / float64(len(dailyCosts))
	}

	return &CostData{
		StartDate:           start.Format("2006-01-02"),
		EndDate:             end.Format("2006-01-02"),
		CollectionTimestamp: c.now().UTC().Format(time.RFC3339),
		AccountID:           accountID,
		TotalCost:           round2(totalCost),
		Currency:            "USD",
		CostByService:       costByService,
		CostByAccount:       costByAccount,
		DailyCosts:          dailyCosts,
		Forecast:            forecast,
		Trend:               trendOf(dailyCosts),
		AverageDailyCost:    round2(averageDaily),
		CostDataDate:        costDataDate.Format("2006-01-02"),
	}, nil
}

func (c *CostExplorerCollector) dailyCosts(ctx context.Context, start, end time.Time) ([]DailyCost, error) {
	out, err := c.ce.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
	})
	if err != nil {
		return nil, wrapCEError("daily costs", err)
	}

	dailyCosts := make([]DailyCost, 0, len(out.ResultsByTime))
	for _, result := range out.ResultsByTime {
		cost := 0.0
		if mv, ok := result.Total["UnblendedCost"]; ok {
			cost, _ = strconv.ParseFloat(aws.ToString(mv.Amount), 64)
		}
		dailyCosts = append(dailyCosts, DailyCost{
			Date: aws.ToString(result.TimePeriod.Start),
			Cost: round2(cost),
		})
	}
	sort.Slice(dailyCosts, func(i, j int) bool { return dailyCosts[i].Date < dailyCosts[j].Date })
	return dailyCosts, nil
}

// CostByServiceForDate returns the per-service breakdown for one day.
func (c *CostExplorerCollector) CostByServiceForDate(ctx context.Context, date time.Time) (map[string]float64, error) {
	out, err := c.ce.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(date.Format("2006-01-02")),
			End:   aws.String(date.AddDate(0, 0, 1).Format("2006-01-02")),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []types.GroupDefinition{
			{Type: types.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
	})
	if err != nil {
		return nil, wrapCEError("cost by service", err)
	}

	costByService := make(map[string]float64)
	for _, result := range out.ResultsByTime {
		for _, group := range result.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			cost, _ := strconv.ParseFloat(aws.ToString(group.Metrics["UnblendedCost"].Amount), 64)
			if cost > 0 {
				costByService[group.Keys[0]] = round2(cost)
			}
		}
	}
	return costByService, nil
}

// DailyServiceCosts returns per-service costs for every day in [start, end),
// keyed by date. Near-zero amounts are dropped. One grouped query covers the
// whole range, which keeps backfills at a single Cost Explorer call.
func (c *CostExplorerCollector) DailyServiceCosts(ctx context.Context, start, end time.Time) (map[string]map[string]float64, error) {
	out, err := c.ce.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: types.GranularityDaily,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []types.GroupDefinition{
			{Type: types.GroupDefinitionTypeDimension, Key: aws.String("SERVICE")},
		},
	})
	if err != nil {
		return nil, wrapCEError("daily service costs", err)
	}

	byDate := make(map[string]map[string]float64)
	for _, result := range out.ResultsByTime {
		date := aws.ToString(result.TimePeriod.Start)
		for _, group := range result.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			cost, _ := strconv.ParseFloat(aws.ToString(group.Metrics["UnblendedCost"].Amount), 64)
			if cost <= 0.001 {
				continue
			}
			if byDate[date] == nil {
				byDate[date] = make(map[string]float64)
			}
			byDate[date][group.Keys[0]] = cost
		}
	}
	return byDate, nil
}

func (c *CostExplorerCollector) costByAccount(ctx context.Context, start, end time.Time) (map[string]AccountCostData, error) {
	out, err := c.ce.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(start.Format("2006-01-02")),
			End:   aws.String(end.Format("2006-01-02")),
		},
		Granularity: types.GranularityMonthly,
		Metrics:     []string{"UnblendedCost"},
		GroupBy: []types.GroupDefinition{
			{Type: types.GroupDefinitionTypeDimension, Key: aws.String("LINKED_ACCOUNT")},
		},
	})
	if err != nil {
		return nil, wrapCEError("cost by account", err)
	}

	costByAccount := make(map[string]AccountCostData)
	for _, result := range out.ResultsByTime {
		for _, group := range result.Groups {
			if len(group.Keys) == 0 {
				continue
			}
			id := group.Keys[0]
			cost, _ := strconv.ParseFloat(aws.ToString(group.Metrics["UnblendedCost"].Amount), 64)
			entry := costByAccount[id]
			entry.AccountID = id
			entry.TotalCost += cost
			costByAccount[id] = entry
		}
	}
	return costByAccount, nil
}

func (c *CostExplorerCollector) forecast(ctx context.Context) (*ForecastInfo, error) {
	now := c.now().UTC()
	tomorrow := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	monthEnd := monthStart.AddDate(0, 1, 0)

	// Nothing left to forecast on the last day of the month.
	if !tomorrow.Before(monthEnd) {
		return nil, nil
	}

	forecastOut, err := c.ce.GetCostForecast(ctx, &costexplorer.GetCostForecastInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(tomorrow.Format("2006-01-02")),
			End:   aws.String(monthEnd.Format("2006-01-02")),
		},
		Metric:      types.MetricUnblendedCost,
		Granularity: types.GranularityMonthly,
	})
	if err != nil {
		return nil, wrapCEError("forecast", err)
	}

	var forecastedRemainder float64
	if forecastOut.Total != nil {
		forecastedRemainder, _ = strconv.ParseFloat(aws.ToString(forecastOut.Total.Amount), 64)
	}

	// Month-to-date actuals to anchor the projection.
	mtdOut, err := c.ce.GetCostAndUsage(ctx, &costexplorer.GetCostAndUsageInput{
		TimePeriod: &types.DateInterval{
			Start: aws.String(monthStart.Format("2006-01-02")),
			End:   aws.String(tomorrow.Format("2006-01-02")),
		},
		Granularity: types.GranularityMonthly,
		Metrics:     []string{"UnblendedCost"},
	})
	if err != nil {
		return nil, wrapCEError("month to date", err)
	}
	var currentSpend float64
	for _, result := range mtdOut.ResultsByTime {
		if mv, ok := result.Total["UnblendedCost"]; ok {
			amount, _ := strconv.ParseFloat(aws.ToString(mv.Amount), 64)
			currentSpend += amount
		}
	}

	daysRemaining := int(monthEnd.Sub(tomorrow).Hours() / 24)
	return &ForecastInfo{
		ForecastedTotal: round2(forecastedRemainder + currentSpend),
		CurrentSpend:    round2(currentSpend),
		DaysRemaining:   daysRemaining,
		Month:           now.Format("2006-01"),
		Currency:        "USD",
	}, nil
}

// wrapCEError surfaces the AWS error code when present; Cost Explorer
// throttling and opt-in errors are the common cases.
func wrapCEError(op string, err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("cost explorer %s: %s: %w", op, apiErr.ErrorCode(), err)
	}
	return fmt.Errorf("cost explorer %s: %w", op, err)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
