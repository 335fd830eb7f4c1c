package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/spf13/cobra"

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

var (
	cfgFile  string
	region   string
	verbose  bool
	jsonLogs bool

	dryRun      bool
	skipStorage bool
	skipSlack   bool
	skipLLM     bool
)

var rootCmd = &cobra.Command{
	Use:   "costguardian",
	Short: "AWS cost monitoring and anomaly alerting",
	Long: `Cost Guardian watches AWS spending: it collects Cost Explorer data on a
schedule, stores snapshots in DynamoDB, detects cost anomalies against an
exponentially weighted baseline, and delivers alerts and reports to Slack.`,
	Version: version.Current,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&region, "region", "", "AWS region override")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&jsonLogs, "json-logs", false, "Emit logs as JSON")

	rootCmd.PersistentFlags().BoolVar(&dryRun, "dry-run", false, "Collect and analyze but don't store or notify")
	rootCmd.PersistentFlags().BoolVar(&skipStorage, "skip-storage", false, "Don't write to DynamoDB")
	rootCmd.PersistentFlags().BoolVar(&skipSlack, "skip-slack", false, "Don't send Slack notifications")
	rootCmd.PersistentFlags().BoolVar(&skipLLM, "skip-llm", false, "Skip AI analysis")

	rootCmd.AddCommand(collectCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(acknowledgeCmd)
	rootCmd.AddCommand(feedbackCmd)
}

func runOptions() guardian.RunOptions {
	return guardian.RunOptions{
		DryRun:      dryRun,
		SkipStorage: skipStorage,
		SkipSlack:   skipSlack,
		SkipLLM:     skipLLM,
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}
	if jsonLogs {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// buildGuardian loads configuration and wires the full runtime.
func buildGuardian(ctx context.Context) (*guardian.Guardian, func(context.Context) error, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	if region != "" {
		cfg.AWS.Region = region
	}

	logger := newLogger()

	shutdown, err := telemetry.Init(ctx, version.AppName, version.Current, "")
	if err != nil {
		logger.Warn("telemetry init failed", "error", err)
		shutdown = func(context.Context) error { return nil }
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, nil, fmt.Errorf("load aws config: %w", err)
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
			return nil, nil, fmt.Errorf("resolve account: %w", err)
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
	return g, shutdown, nil
}
