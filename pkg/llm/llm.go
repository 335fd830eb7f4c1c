// Package llm generates AI analysis for cost anomalies and reports.
// Everything here degrades gracefully: an unreachable or unconfigured
// provider means alerts go out without analysis, never not at all.
package llm

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/DrSkyle/costguardian/pkg/analysis"
	"github.com/DrSkyle/costguardian/pkg/config"
)

// Message is one turn of a model conversation.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// Response is a model's reply plus usage accounting.
type Response struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// Provider is a chat-completion backend.
type Provider interface {
	Chat(ctx context.Context, messages []Message) (*Response, error)
	Name() string
}

// SecretSource resolves API keys by their key in the secret document.
type SecretSource interface {
	Get(ctx context.Context, key string) (string, error)
}

// Client selects and lazily constructs the configured provider. The API
// key is not fetched until the first request so runs with AI disabled
// never touch Secrets Manager.
type Client struct {
	cfg      config.LLMConfig
	secrets  SecretSource
	logger   *slog.Logger
	provider Provider
}

// NewClient builds a client for the configured provider.
func NewClient(cfg config.LLMConfig, secrets SecretSource, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{cfg: cfg, secrets: secrets, logger: logger}
}

// NewClientWithProvider bypasses secret resolution (for testing).
func NewClientWithProvider(cfg config.LLMConfig, provider Provider, logger *slog.Logger) *Client {
	c := NewClient(cfg, nil, logger)
	c.provider = provider
	return c
}

func (c *Client) getProvider(ctx context.Context) (Provider, error) {
	if c.provider != nil {
		return c.provider, nil
	}

	keyName := fmt.Sprintf("%s_api_key", c.cfg.Provider)
	apiKey, err := c.secrets.Get(ctx, keyName)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", keyName, err)
	}

	switch c.cfg.Provider {
	case "anthropic":
		c.provider = NewAnthropicProvider(apiKey, c.cfg)
	case "openai":
		c.provider = NewOpenAIProvider(apiKey, c.cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider: %q", c.cfg.Provider)
	}
	return c.provider, nil
}

// Chat sends a conversation to the configured provider.
func (c *Client) Chat(ctx context.Context, messages []Message) (*Response, error) {
	provider, err := c.getProvider(ctx)
	if err != nil {
		return nil, err
	}
	return provider.Chat(ctx, messages)
}

// AnalyzeAnomaly returns analysis text for one anomaly, or "" when the
// provider is unavailable.
func (c *Client) AnalyzeAnomaly(ctx context.Context, anomaly analysis.DetectedAnomaly, historicalContext string) string {
	return c.complete(ctx, "anomaly analysis", anomalyAnalysisPrompt(anomaly, historicalContext))
}

// DailyInsight returns a short interpretation of the daily summary, or "".
func (c *Client) DailyInsight(ctx context.Context, summary analysis.DailySummary) string {
	return c.complete(ctx, "daily insight", dailyReportPrompt(summary))
}

// WeeklyInsight returns a short interpretation of the weekly summary, or "".
func (c *Client) WeeklyInsight(ctx context.Context, summary analysis.WeeklySummary) string {
	return c.complete(ctx, "weekly insight", weeklyReportPrompt(summary))
}

func (c *Client) complete(ctx context.Context, task, prompt string) string {
	resp, err := c.Chat(ctx, []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: prompt},
	})
	if err != nil {
		c.logger.Warn("llm request failed", "task", task, "error", err)
		return ""
	}
	c.logger.Info("llm request completed",
		"task", task,
		"model", resp.Model,
		"input_tokens", resp.InputTokens,
		"output_tokens", resp.OutputTokens)
	return resp.Content
}
