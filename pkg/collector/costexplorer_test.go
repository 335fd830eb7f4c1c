package collector

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer"
	"github.com/aws/aws-sdk-go-v2/service/costexplorer/types"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/costguardian/pkg/config"
)

type mockCostExplorer struct {
	costAndUsage func(*costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error)
	forecast     func(*costexplorer.GetCostForecastInput) (*costexplorer.GetCostForecastOutput, error)
	calls        []*costexplorer.GetCostAndUsageInput
}

func (m *mockCostExplorer) GetCostAndUsage(_ context.Context, params *costexplorer.GetCostAndUsageInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetCostAndUsageOutput, error) {
	m.calls = append(m.calls, params)
	return m.costAndUsage(params)
}

func (m *mockCostExplorer) GetCostForecast(_ context.Context, params *costexplorer.GetCostForecastInput, _ ...func(*costexplorer.Options)) (*costexplorer.GetCostForecastOutput, error) {
	if m.forecast == nil {
		return nil, errors.New("forecast not stubbed")
	}
	return m.forecast(params)
}

type mockSTS struct {
	account string
	err     error
	calls   int
}

func (m *mockSTS) GetCallerIdentity(_ context.Context, _ *sts.GetCallerIdentityInput, _ ...func(*sts.Options)) (*sts.GetCallerIdentityOutput, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return &sts.GetCallerIdentityOutput{Account: aws.String(m.account)}, nil
}

func groupedResult(start string, groups map[string]string) types.ResultByTime {
	rbt := types.ResultByTime{
		TimePeriod: &types.DateInterval{Start: aws.String(start)},
	}
	for name, amount := range groups {
		rbt.Groups = append(rbt.Groups, types.Group{
			Keys: []string{name},
			Metrics: map[string]types.MetricValue{
				"UnblendedCost": {Amount: aws.String(amount), Unit: aws.String("USD")},
			},
		})
	}
	return rbt
}

func totalResult(start, amount string) types.ResultByTime {
	return types.ResultByTime{
		TimePeriod: &types.DateInterval{Start: aws.String(start), End: aws.String(start)},
		Total: map[string]types.MetricValue{
			"UnblendedCost": {Amount: aws.String(amount), Unit: aws.String("USD")},
		},
	}
}

func testCECollector(ce *mockCostExplorer, stsAPI *mockSTS) *CostExplorerCollector {
	cfg := config.Default().Collection.Sources.CostExplorer
	c := NewCostExplorerCollectorWithAPI(ce, stsAPI, cfg, nil)
	c.now = func() time.Time {
		return time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	}
	return c
}

func TestCollectBuildsNormalizedCostData(t *testing.T) {
	ce := &mockCostExplorer{
		costAndUsage: func(in *costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error) {
			if len(in.GroupBy) > 0 && aws.ToString(in.GroupBy[0].Key) == "SERVICE" {
				return &costexplorer.GetCostAndUsageOutput{
					ResultsByTime: []types.ResultByTime{
						groupedResult("2026-03-14", map[string]string{
							"AmazonEC2": "120.456",
							"AmazonS3":  "30.1",
							"AWSLambda": "0",
						}),
					},
				}, nil
			}
			if len(in.GroupBy) > 0 {
				return &costexplorer.GetCostAndUsageOutput{
					ResultsByTime: []types.ResultByTime{
						groupedResult("2026-03-01", map[string]string{"111122223333": "500.00"}),
					},
				}, nil
			}
			return &costexplorer.GetCostAndUsageOutput{
				ResultsByTime: []types.ResultByTime{
					totalResult("2026-03-13", "140.00"),
					totalResult("2026-03-14", "150.00"),
				},
			}, nil
		},
		forecast: func(*costexplorer.GetCostForecastInput) (*costexplorer.GetCostForecastOutput, error) {
			return &costexplorer.GetCostForecastOutput{
				Total: &types.MetricValue{Amount: aws.String("1200.00")},
			}, nil
		},
	}
	stsAPI := &mockSTS{account: "111122223333"}
	c := testCECollector(ce, stsAPI)

	data, err := c.Collect(context.Background(), CollectOptions{})
	require.NoError(t, err)

	assert.Equal(t, "111122223333", data.AccountID)
	assert.Equal(t, "2026-03-15", data.EndDate)
	assert.Equal(t, "2026-03-01", data.StartDate)
	// One day behind the end date by default.
	assert.Equal(t, "2026-03-14", data.CostDataDate)

	// Zero-cost services are dropped; total is the service sum.
	assert.Len(t, data.CostByService, 2)
	assert.Equal(t, 120.46, data.CostByService["AmazonEC2"])
	assert.InDelta(t, 150.56, data.TotalCost, 0.001)

	assert.Equal(t, "USD", data.Currency)
	assert.Len(t, data.DailyCosts, 2)
	assert.Equal(t, 145.0, data.AverageDailyCost)

	require.NotNil(t, data.Forecast)
	assert.Equal(t, "2026-03", data.Forecast.Month)

	require.Contains(t, data.CostByAccount, "111122223333")
	assert.Equal(t, 500.0, data.CostByAccount["111122223333"].TotalCost)

	// Identity lookup is cached.
	assert.Equal(t, 1, stsAPI.calls)
}

func TestCollectExplicitWindowOverridesLookback(t *testing.T) {
	ce := &mockCostExplorer{
		costAndUsage: func(in *costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error) {
			return &costexplorer.GetCostAndUsageOutput{}, nil
		},
	}
	c := testCECollector(ce, &mockSTS{account: "111122223333"})

	data, err := c.Collect(context.Background(), CollectOptions{
		StartDate: "2026-02-01",
		EndDate:   "2026-02-10",
	})
	require.NoError(t, err)
	assert.Equal(t, "2026-02-01", data.StartDate)
	assert.Equal(t, "2026-02-10", data.EndDate)
	assert.Equal(t, "2026-02-09", data.CostDataDate)

	require.NotEmpty(t, ce.calls)
	assert.Equal(t, "2026-02-01", aws.ToString(ce.calls[0].TimePeriod.Start))
	assert.Equal(t, "2026-02-10", aws.ToString(ce.calls[0].TimePeriod.End))
}

func TestCollectSurvivesForecastFailure(t *testing.T) {
	ce := &mockCostExplorer{
		costAndUsage: func(in *costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error) {
			return &costexplorer.GetCostAndUsageOutput{}, nil
		},
		forecast: func(*costexplorer.GetCostForecastInput) (*costexplorer.GetCostForecastOutput, error) {
			return nil, errors.New("DataUnavailableException")
		},
	}
	c := testCECollector(ce, &mockSTS{account: "111122223333"})

	data, err := c.Collect(context.Background(), CollectOptions{})
	require.NoError(t, err)
	assert.Nil(t, data.Forecast)
}

func TestCollectPropagatesCostExplorerErrors(t *testing.T) {
	ce := &mockCostExplorer{
		costAndUsage: func(*costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error) {
			return nil, errors.New("LimitExceededException")
		},
	}
	c := testCECollector(ce, &mockSTS{account: "111122223333"})

	_, err := c.Collect(context.Background(), CollectOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cost explorer")
}

func TestCollectPropagatesIdentityErrors(t *testing.T) {
	ce := &mockCostExplorer{
		costAndUsage: func(*costexplorer.GetCostAndUsageInput) (*costexplorer.GetCostAndUsageOutput, error) {
			return &costexplorer.GetCostAndUsageOutput{}, nil
		},
	}
	c := testCECollector(ce, &mockSTS{err: errors.New("AccessDenied")})

	_, err := c.Collect(context.Background(), CollectOptions{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "caller identity")
}

func TestTrendOf(t *testing.T) {
	days := func(costs ...float64) []DailyCost {
		out := make([]DailyCost, len(costs))
		for i, c := range costs {
			out[i] = DailyCost{Date: "2026-03-01", Cost: c}
		}
		return out
	}

	assert.Equal(t, "unknown", trendOf(nil))
	assert.Equal(t, "unknown", trendOf(days(10)))
	assert.Equal(t, "unknown", trendOf(days(0, 0, 5, 5)))
	assert.Equal(t, "increasing", trendOf(days(10, 10, 20, 20)))
	assert.Equal(t, "decreasing", trendOf(days(20, 20, 10, 10)))
	assert.Equal(t, "stable", trendOf(days(10, 10, 10.5, 10.5)))
}
