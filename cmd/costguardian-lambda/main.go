// Lambda entry point for scheduled collection, reports, and backfill.
// EventBridge rules invoke it with a small JSON event selecting the action.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"

	"github.com/DrSkyle/costguardian/pkg/collector"
	"github.com/DrSkyle/costguardian/pkg/config"
	"github.com/DrSkyle/costguardian/pkg/guardian"
	"github.com/DrSkyle/costguardian/pkg/llm"
	"github.com/DrSkyle/costguardian/pkg/notifier"
	"github.com/DrSkyle/costguardian/pkg/secrets"
	"github.com/DrSkyle/costguardian/pkg/storage"
	"github.com/DrSkyle/costguardian/pkg/telemetry"
	"github.com/DrSkyle/costguardian/pkg/version"
)

// Event is the invocation payload. An empty event runs a normal
// collection cycle.
type Event struct {
	ReportType   string `json:"report_type,omitempty"`   // "daily" or "weekly"
	BackfillDays int    `json:"backfill_days,omitempty"` // > 0 triggers a backfill

	DryRun           bool   `json:"dry_run,omitempty"`
	SkipStorage      bool   `json:"skip_storage,omitempty"`
	SkipSlack        bool   `json:"skip_slack,omitempty"`
	SkipLLM          bool   `json:"skip_llm,omitempty"`
	ForceAnomaly     bool   `json:"force_anomaly,omitempty"`
	ForceBudgetAlert string `json:"force_budget_alert,omitempty"` // "warning" or "critical"
}

type Response struct {
	Action string `json:"action"`
	Detail any    `json:"detail"`
}

type handler struct {
	guardian *guardian.Guardian
	logger   *slog.Logger
}

func (h *handler) handle(ctx context.Context, event Event) (*Response, error) {
	switch event.ForceBudgetAlert {
	case "", "warning", "critical":
	default:
		return nil, fmt.Errorf("force_budget_alert must be \"warning\" or \"critical\", got %q", event.ForceBudgetAlert)
	}

	opts := guardian.RunOptions{
		DryRun:           event.DryRun,
		SkipStorage:      event.SkipStorage,
		SkipSlack:        event.SkipSlack,
		SkipLLM:          event.SkipLLM,
		ForceAnomaly:     event.ForceAnomaly,
		ForceBudgetAlert: event.ForceBudgetAlert,
	}

	switch {
	case event.BackfillDays > 0:
		result, err := h.guardian.Backfill(ctx, event.BackfillDays, opts)
		if err != nil {
			return nil, err
		}
		return &Response{Action: "backfill", Detail: result}, nil
	case event.ReportType != "":
		result, err := h.guardian.Report(ctx, event.ReportType, opts)
		if err != nil {
			return nil, err
		}
		return &Response{Action: "report", Detail: result}, nil
	default:
		result, err := h.guardian.Collect(ctx, opts)
		if err != nil {
			return nil, err
		}
		return &Response{Action: "collect", Detail: result}, nil
	}
}

func build(ctx context.Context) (*handler, error) {
	cfg, err := config.Load(os.Getenv("COSTGUARDIAN_CONFIG"))
	if err != nil {
		return nil, err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	if _, err := telemetry.Init(ctx, version.AppName, version.Current, ""); err != nil {
		logger.Warn("telemetry init failed", "error", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	tableName := cfg.TableName
	if tableName == "" {
		tableName = fmt.Sprintf("costguardian-%s", cfg.Environment)
	}
	secretName := cfg.SecretName
	if secretName == "" {
		secretName = fmt.Sprintf("costguardian/%s/config", cfg.Environment)
	}

	store := storage.NewStoreFromConfig(awsCfg, tableName)
	secretSource := secrets.New(awsCfg, secretName)
	ceCollector := collector.NewCostExplorerCollector(awsCfg, cfg.Collection.Sources.CostExplorer, logger)

	accountID := cfg.AWS.AccountID
	if accountID == "" {
		accountID, err = ceCollector.AccountID(ctx)
		if err != nil {
			return nil, fmt.Errorf("resolve account: %w", err)
		}
	}

	g := guardian.New(cfg,
		guardian.WithLogger(logger),
		guardian.WithStore(store),
		guardian.WithCollector(ceCollector),
		guardian.WithBackfillSource(ceCollector),
		guardian.WithBudgets(collector.NewBudgetsCollector(awsCfg, accountID, cfg.Collection.Sources.Budgets, logger)),
		guardian.WithNotifier(notifier.NewManager(cfg.Slack, cfg.Routing, secretSource, logger)),
		guardian.WithInsights(llm.NewClient(cfg.LLM, secretSource, logger)),
	)
	return &handler{guardian: g, logger: logger}, nil
}

func main() {
	h, err := build(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "init failed: %v\n", err)
		os.Exit(1)
	}
	lambda.Start(h.handle)
}
