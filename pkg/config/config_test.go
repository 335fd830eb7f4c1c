package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "costguardian", cfg.ProjectName)
	assert.Equal(t, "dev", cfg.Environment)
	assert.Equal(t, 14, cfg.AnomalyDetection.BaselineDays)
	assert.Equal(t, 100.0, cfg.AnomalyDetection.Thresholds.Absolute)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := []byte(`
environment: prod
aws:
  region: eu-west-1
anomaly_detection:
  thresholds:
    absolute: 250
budgets:
  monthly:
    amount: 5000
`)
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "prod", cfg.Environment)
	assert.Equal(t, "eu-west-1", cfg.AWS.Region)
	assert.Equal(t, 250.0, cfg.AnomalyDetection.Thresholds.Absolute)
	assert.Equal(t, 5000.0, cfg.Budgets.Monthly.Amount)
	// Untouched values keep their defaults.
	assert.Equal(t, 50.0, cfg.AnomalyDetection.Thresholds.PercentChange)
	assert.Equal(t, "anthropic", cfg.LLM.Provider)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("environment: production\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown environment")
}

func TestValidateRejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad environment", func(c *Config) { c.Environment = "qa" }, "unknown environment"},
		{"lookback too long", func(c *Config) { c.Collection.Sources.CostExplorer.LookbackDays = 120 }, "lookback_days"},
		{"negative lag", func(c *Config) { c.Collection.Sources.CostExplorer.CostDataLagDays = -1 }, "cost_data_lag_days"},
		{"bad granularity", func(c *Config) { c.Collection.Sources.CostExplorer.Granularity = "WEEKLY" }, "granularity"},
		{"schedule hour", func(c *Config) { c.Collection.Schedule.Hours = []int{25} }, "schedule hour"},
		{"baseline days", func(c *Config) { c.AnomalyDetection.BaselineDays = 0 }, "baseline_days"},
		{"negative threshold", func(c *Config) { c.AnomalyDetection.Thresholds.Absolute = -1 }, "thresholds.absolute"},
		{"negative budget", func(c *Config) { c.Budgets.Monthly.Amount = -100 }, "budget amounts"},
		{"bad provider", func(c *Config) { c.LLM.Provider = "bard" }, "llm provider"},
		{"temperature", func(c *Config) { c.LLM.Temperature = 1.5 }, "temperature"},
		{"max tokens", func(c *Config) { c.LLM.MaxTokens = 50 }, "max_tokens"},
		{"report hour", func(c *Config) { c.Reports.Daily.ScheduleHour = 24 }, "schedule_hour"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}
