package collector

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/budgets"
	budgetstypes "github.com/aws/aws-sdk-go-v2/service/budgets/types"

	"github.com/DrSkyle/costguardian/pkg/config"
)

// BudgetsAPI is the subset of the AWS Budgets client we use.
type BudgetsAPI interface {
	DescribeBudgets(ctx context.Context, params *budgets.DescribeBudgetsInput, optFns ...func(*budgets.Options)) (*budgets.DescribeBudgetsOutput, error)
}

// BudgetsCollector reads budget utilization for one account.
type BudgetsCollector struct {
	api       BudgetsAPI
	accountID string
	logger    *slog.Logger
	cfg       config.BudgetsSourceConfig
}

// NewBudgetsCollector builds a collector from AWS SDK config.
func NewBudgetsCollector(awsCfg aws.Config, accountID string, cfg config.BudgetsSourceConfig, logger *slog.Logger) *BudgetsCollector {
	return NewBudgetsCollectorWithAPI(budgets.NewFromConfig(awsCfg), accountID, cfg, logger)
}

// NewBudgetsCollectorWithAPI builds a collector around an explicit API
// implementation (for testing).
func NewBudgetsCollectorWithAPI(api BudgetsAPI, accountID string, cfg config.BudgetsSourceConfig, logger *slog.Logger) *BudgetsCollector {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &BudgetsCollector{api: api, accountID: accountID, logger: logger, cfg: cfg}
}

// Name identifies the source in logs and snapshots.
func (c *BudgetsCollector) Name() string { return "budgets" }

// Budgets returns the utilization of every budget in the account,
// following pagination.
func (c *BudgetsCollector) Budgets(ctx context.Context) ([]BudgetInfo, error) {
	var infos []BudgetInfo
	var nextToken *string
	for {
		out, err := c.api.DescribeBudgets(ctx, &budgets.DescribeBudgetsInput{
			AccountId: aws.String(c.accountID),
			NextToken: nextToken,
		})
		if err != nil {
			return nil, fmt.Errorf("describe budgets: %w", err)
		}
		for _, b := range out.Budgets {
			infos = append(infos, budgetInfoOf(b))
		}
		if out.NextToken == nil {
			break
		}
		nextToken = out.NextToken
	}
	return infos, nil
}

func budgetInfoOf(b budgetstypes.Budget) BudgetInfo {
	info := BudgetInfo{
		Name:     aws.ToString(b.BudgetName),
		Currency: "USD",
	}
	if b.BudgetLimit != nil {
		info.Limit = parseSpend(b.BudgetLimit.Amount)
		if b.BudgetLimit.Unit != nil {
			info.Currency = aws.ToString(b.BudgetLimit.Unit)
		}
	}
	if b.CalculatedSpend != nil {
		if b.CalculatedSpend.ActualSpend != nil {
			info.ActualSpend = parseSpend(b.CalculatedSpend.ActualSpend.Amount)
		}
		if b.CalculatedSpend.ForecastedSpend != nil {
			info.ForecastedSpend = parseSpend(b.CalculatedSpend.ForecastedSpend.Amount)
		}
	}
	if info.Limit > 0 {
		info.PercentageUsed = round2(info.ActualSpend / info.Limit * 100)
	}
	return info
}

func parseSpend(amount *string) float64 {
	v, _ := strconv.ParseFloat(aws.ToString(amount), 64)
	return v
}
