// Package config defines the guardian configuration tree, defaults, and
// construction-time validation.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// AWSConfig holds account-level AWS settings.
type AWSConfig struct {
	Region    string `mapstructure:"region"`
	AccountID string `mapstructure:"account_id"` // Auto-detected via STS when empty.
}

// CostExplorerSourceConfig configures the Cost Explorer data source.
type CostExplorerSourceConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Granularity  string `mapstructure:"granularity"` // DAILY or HOURLY
	LookbackDays int    `mapstructure:"lookback_days"`
	// CostDataLagDays shifts the by-service query window backwards. Cost
	// Explorer data for the current day is incomplete; 1 means "report on
	// yesterday".
	CostDataLagDays int `mapstructure:"cost_data_lag_days"`
}

// BudgetsSourceConfig configures the AWS Budgets data source.
type BudgetsSourceConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// SourcesConfig groups the cost collection sources.
type SourcesConfig struct {
	CostExplorer CostExplorerSourceConfig `mapstructure:"cost_explorer"`
	Budgets      BudgetsSourceConfig      `mapstructure:"budgets"`
}

// RetentionConfig holds data retention windows in days.
type RetentionConfig struct {
	HourlyDays  int `mapstructure:"hourly_days"`
	DailyDays   int `mapstructure:"daily_days"`
	MonthlyDays int `mapstructure:"monthly_days"`
}

// ScheduleConfig defines when collection runs (UTC).
type ScheduleConfig struct {
	Frequency string `mapstructure:"frequency"` // hourly, 4x_daily, 2x_daily, daily
	Hours     []int  `mapstructure:"hours"`
}

// CollectionConfig groups schedule, sources and retention.
type CollectionConfig struct {
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Retention RetentionConfig `mapstructure:"retention"`
}

// MonthlyBudgetConfig defines the monthly budget and alert thresholds.
type MonthlyBudgetConfig struct {
	Amount            float64 `mapstructure:"amount"`
	Currency          string  `mapstructure:"currency"`
	WarningThreshold  int     `mapstructure:"warning_threshold"`  // Percent.
	CriticalThreshold int     `mapstructure:"critical_threshold"` // Percent.
}

// DailyBudgetConfig defines the daily budget gate.
type DailyBudgetConfig struct {
	Amount           float64 `mapstructure:"amount"`
	WarningThreshold int     `mapstructure:"warning_threshold"` // Percent.
}

// BudgetConfig groups budget settings.
type BudgetConfig struct {
	Monthly MonthlyBudgetConfig `mapstructure:"monthly"`
	Daily   DailyBudgetConfig   `mapstructure:"daily"`
}

// AnomalyThresholdsConfig holds the three independent detection triggers.
type AnomalyThresholdsConfig struct {
	Absolute      float64 `mapstructure:"absolute"`       // Dollars.
	PercentChange float64 `mapstructure:"percent_change"` // Percent.
	StdDeviations float64 `mapstructure:"std_deviations"`
}

// AnomalyFiltersConfig holds the noise filters applied before evaluation.
type AnomalyFiltersConfig struct {
	// MinimumCost gates evaluation entirely: services below this current
	// cost are never checked, however large their percent swing.
	MinimumCost float64 `mapstructure:"minimum_cost"`
	// NewServiceMinimum is the cost a newly observed service must exceed
	// before it is flagged.
	NewServiceMinimum float64 `mapstructure:"new_service_minimum"`
}

// AnomalyDetectionConfig configures the detector. It is treated as immutable
// once validated.
type AnomalyDetectionConfig struct {
	Enabled            bool                    `mapstructure:"enabled"`
	BaselineDays       int                     `mapstructure:"baseline_days"`
	Thresholds         AnomalyThresholdsConfig `mapstructure:"thresholds"`
	Filters            AnomalyFiltersConfig    `mapstructure:"filters"`
	AlertOnNewServices bool                    `mapstructure:"alert_on_new_services"`
}

// AnthropicConfig selects the Anthropic model. The API key is resolved from
// Secrets Manager, never from this file.
type AnthropicConfig struct {
	ModelID string `mapstructure:"model_id"`
}

// OpenAIConfig selects the OpenAI model.
type OpenAIConfig struct {
	ModelID string `mapstructure:"model_id"`
}

// LLMConfig configures the AI-insight layer.
type LLMConfig struct {
	Provider    string          `mapstructure:"provider"` // anthropic or openai
	Anthropic   AnthropicConfig `mapstructure:"anthropic"`
	OpenAI      OpenAIConfig    `mapstructure:"openai"`
	Temperature float64         `mapstructure:"temperature"`
	MaxTokens   int             `mapstructure:"max_tokens"`
}

// SlackChannelConfig maps a logical channel to its webhook secret key.
type SlackChannelConfig struct {
	Name             string `mapstructure:"name"`
	WebhookSecretKey string `mapstructure:"webhook_secret_key"`
}

// SlackConfig configures Slack delivery.
type SlackConfig struct {
	Enabled  bool                          `mapstructure:"enabled"`
	Channels map[string]SlackChannelConfig `mapstructure:"channels"`
}

// ReportScheduleConfig configures one recurring report.
type ReportScheduleConfig struct {
	Enabled           bool   `mapstructure:"enabled"`
	ScheduleHour      int    `mapstructure:"schedule_hour"` // UTC.
	ScheduleDay       string `mapstructure:"schedule_day"`  // Weekly only.
	Channel           string `mapstructure:"channel"`
	IncludeAIInsights bool   `mapstructure:"include_ai_insights"`
}

// ReportConfig groups the recurring reports.
type ReportConfig struct {
	Daily  ReportScheduleConfig `mapstructure:"daily"`
	Weekly ReportScheduleConfig `mapstructure:"weekly"`
}

// RoutingConfig maps alert kinds to logical Slack channels.
type RoutingConfig struct {
	BudgetWarning   string `mapstructure:"budget_warning"`
	BudgetCritical  string `mapstructure:"budget_critical"`
	AnomalyWarning  string `mapstructure:"anomaly_warning"`
	AnomalyCritical string `mapstructure:"anomaly_critical"`
	DailyReport     string `mapstructure:"daily_report"`
	WeeklyReport    string `mapstructure:"weekly_report"`
}

// Config is the root configuration.
type Config struct {
	ProjectName string `mapstructure:"project_name"`
	Environment string `mapstructure:"environment"` // dev, staging, prod

	AWS              AWSConfig              `mapstructure:"aws"`
	Collection       CollectionConfig       `mapstructure:"collection"`
	Budgets          BudgetConfig           `mapstructure:"budgets"`
	AnomalyDetection AnomalyDetectionConfig `mapstructure:"anomaly_detection"`
	LLM              LLMConfig              `mapstructure:"llm"`
	Slack            SlackConfig            `mapstructure:"slack"`
	Reports          ReportConfig           `mapstructure:"reports"`
	Routing          RoutingConfig          `mapstructure:"routing"`

	TableName  string `mapstructure:"table_name"`
	SecretName string `mapstructure:"secret_name"`
}

// Default returns the safe defaults matching a small single-account setup.
func Default() Config {
	return Config{
		ProjectName: "costguardian",
		Environment: "dev",
		AWS:         AWSConfig{Region: "us-east-1"},
		Collection: CollectionConfig{
			Schedule: ScheduleConfig{Frequency: "4x_daily", Hours: []int{6, 12, 18, 0}},
			Sources: SourcesConfig{
				CostExplorer: CostExplorerSourceConfig{
					Enabled:         true,
					Granularity:     "DAILY",
					LookbackDays:    14,
					CostDataLagDays: 1,
				},
				Budgets: BudgetsSourceConfig{Enabled: true},
			},
			Retention: RetentionConfig{HourlyDays: 7, DailyDays: 90, MonthlyDays: 730},
		},
		Budgets: BudgetConfig{
			Monthly: MonthlyBudgetConfig{Amount: 900, Currency: "USD", WarningThreshold: 80, CriticalThreshold: 100},
			Daily:   DailyBudgetConfig{Amount: 30, WarningThreshold: 100},
		},
		AnomalyDetection: AnomalyDetectionConfig{
			Enabled:      true,
			BaselineDays: 14,
			Thresholds: AnomalyThresholdsConfig{
				Absolute:      100,
				PercentChange: 50,
				StdDeviations: 2.5,
			},
			Filters: AnomalyFiltersConfig{
				MinimumCost:       5,
				NewServiceMinimum: 1,
			},
			AlertOnNewServices: true,
		},
		LLM: LLMConfig{
			Provider:    "anthropic",
			Anthropic:   AnthropicConfig{ModelID: "claude-sonnet-4-20250514"},
			OpenAI:      OpenAIConfig{ModelID: "gpt-4o"},
			Temperature: 0.3,
			MaxTokens:   2000,
		},
		Slack: SlackConfig{
			Enabled: true,
			Channels: map[string]SlackChannelConfig{
				"critical":  {Name: "#aws-alerts-critical", WebhookSecretKey: "webhook_url_critical"},
				"heartbeat": {Name: "#aws-alerts-general", WebhookSecretKey: "webhook_url_heartbeat"},
			},
		},
		Reports: ReportConfig{
			Daily:  ReportScheduleConfig{Enabled: true, ScheduleHour: 8, Channel: "heartbeat", IncludeAIInsights: true},
			Weekly: ReportScheduleConfig{Enabled: true, ScheduleDay: "monday", ScheduleHour: 8, Channel: "heartbeat", IncludeAIInsights: true},
		},
		Routing: RoutingConfig{
			BudgetWarning:   "heartbeat",
			BudgetCritical:  "critical",
			AnomalyWarning:  "heartbeat",
			AnomalyCritical: "critical",
			DailyReport:     "heartbeat",
			WeeklyReport:    "heartbeat",
		},
	}
}

// Load reads configuration from the given file (optional) and the
// environment, layered over Default. The result is validated; a Config that
// fails validation is never returned.
func Load(path string) (Config, error) {
	v := viper.New()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix("COSTGUARDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects out-of-range values eagerly so the detector and
// collectors can assume a well-formed configuration.
func (c Config) Validate() error {
	switch c.Environment {
	case "dev", "staging", "prod":
	default:
		return fmt.Errorf("config: unknown environment %q", c.Environment)
	}

	ce := c.Collection.Sources.CostExplorer
	if ce.LookbackDays < 1 || ce.LookbackDays > 90 {
		return fmt.Errorf("config: cost_explorer.lookback_days must be in 1..90, got %d", ce.LookbackDays)
	}
	if ce.CostDataLagDays < 0 {
		return fmt.Errorf("config: cost_explorer.cost_data_lag_days must be >= 0, got %d", ce.CostDataLagDays)
	}
	switch ce.Granularity {
	case "DAILY", "HOURLY":
	default:
		return fmt.Errorf("config: unknown granularity %q", ce.Granularity)
	}

	for _, h := range c.Collection.Schedule.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("config: schedule hour %d out of range", h)
		}
	}

	if err := c.AnomalyDetection.Validate(); err != nil {
		return err
	}

	if c.Budgets.Monthly.Amount < 0 || c.Budgets.Daily.Amount < 0 {
		return fmt.Errorf("config: budget amounts must be >= 0")
	}

	switch c.LLM.Provider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("config: llm.temperature must be in 0..1, got %g", c.LLM.Temperature)
	}
	if c.LLM.MaxTokens < 100 || c.LLM.MaxTokens > 8000 {
		return fmt.Errorf("config: llm.max_tokens must be in 100..8000, got %d", c.LLM.MaxTokens)
	}

	for _, r := range []ReportScheduleConfig{c.Reports.Daily, c.Reports.Weekly} {
		if r.ScheduleHour < 0 || r.ScheduleHour > 23 {
			return fmt.Errorf("config: report schedule_hour %d out of range", r.ScheduleHour)
		}
	}

	return nil
}

// Validate enforces the detector's numeric preconditions. The detector
// itself never re-validates.
func (c AnomalyDetectionConfig) Validate() error {
	if c.BaselineDays < 1 || c.BaselineDays > 90 {
		return fmt.Errorf("config: anomaly_detection.baseline_days must be in 1..90, got %d", c.BaselineDays)
	}
	if c.Thresholds.Absolute < 0 {
		return fmt.Errorf("config: thresholds.absolute must be >= 0, got %g", c.Thresholds.Absolute)
	}
	if c.Thresholds.PercentChange < 0 {
		return fmt.Errorf("config: thresholds.percent_change must be >= 0, got %g", c.Thresholds.PercentChange)
	}
	if c.Thresholds.StdDeviations < 0 {
		return fmt.Errorf("config: thresholds.std_deviations must be >= 0, got %g", c.Thresholds.StdDeviations)
	}
	if c.Filters.MinimumCost < 0 {
		return fmt.Errorf("config: filters.minimum_cost must be >= 0, got %g", c.Filters.MinimumCost)
	}
	if c.Filters.NewServiceMinimum < 0 {
		return fmt.Errorf("config: filters.new_service_minimum must be >= 0, got %g", c.Filters.NewServiceMinimum)
	}
	return nil
}
