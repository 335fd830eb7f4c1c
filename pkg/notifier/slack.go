package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/DrSkyle/costguardian/pkg/analysis"
	"github.com/DrSkyle/costguardian/pkg/config"
)

// WebhookClient posts Block Kit payloads to one Slack incoming webhook.
type WebhookClient struct {
	webhookURL string
	httpClient *http.Client
	maxRetries uint64
}

// NewWebhookClient initializes a client for one webhook URL.
func NewWebhookClient(webhookURL string) *WebhookClient {
	return &WebhookClient{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
	}
}

// Send posts the payload. Transient failures (network errors, 429, 5xx)
// are retried with exponential backoff; other non-200 responses fail
// immediately since Slack will keep rejecting the same payload.
func (c *WebhookClient) Send(ctx context.Context, payload map[string]interface{}) error {
	if c.webhookURL == "" {
		return nil
	}

	jsonPayload, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal slack payload: %w", err)
	}

	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(jsonPayload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to send webhook: %w", err)
		}
		defer resp.Body.Close()
		io.Copy(io.Discard, resp.Body)

		switch {
		case resp.StatusCode == http.StatusOK:
			return nil
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			return fmt.Errorf("received retryable status from slack: %d", resp.StatusCode)
		default:
			return backoff.Permanent(fmt.Errorf("received non-200 status from slack: %d", resp.StatusCode))
		}
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.maxRetries), ctx)
	return backoff.Retry(operation, policy)
}

// SecretSource resolves webhook URLs by their key in the secret document.
type SecretSource interface {
	Get(ctx context.Context, key string) (string, error)
}

// Manager routes messages to logical channels. Each logical channel maps to
// a webhook URL stored in Secrets Manager; clients are built lazily and
// reused.
type Manager struct {
	cfg     config.SlackConfig
	routing config.RoutingConfig
	secrets SecretSource
	logger  *slog.Logger

	clients map[string]*WebhookClient
}

// NewManager wires channel routing to webhook delivery.
func NewManager(cfg config.SlackConfig, routing config.RoutingConfig, secrets SecretSource, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		cfg:     cfg,
		routing: routing,
		secrets: secrets,
		logger:  logger,
		clients: make(map[string]*WebhookClient),
	}
}

// SendTo delivers a payload to a logical channel. Unknown channels fall
// back to the first configured one rather than dropping the message.
func (m *Manager) SendTo(ctx context.Context, channel string, payload map[string]interface{}) error {
	if !m.cfg.Enabled {
		return nil
	}

	client, err := m.clientFor(ctx, channel)
	if err != nil {
		return err
	}
	return client.Send(ctx, payload)
}

// AnomalyChannel returns the logical channel for an anomaly severity.
// Critical anomalies get their own route; everything else shares the
// warning route.
func (m *Manager) AnomalyChannel(severity analysis.Severity) string {
	if severity == analysis.SeverityCritical {
		return m.routing.AnomalyCritical
	}
	return m.routing.AnomalyWarning
}

// BudgetChannel returns the logical channel for a budget threshold type.
func (m *Manager) BudgetChannel(thresholdType string) string {
	if thresholdType == "critical" {
		return m.routing.BudgetCritical
	}
	return m.routing.BudgetWarning
}

// ReportChannel returns the logical channel for a report type.
func (m *Manager) ReportChannel(reportType string) string {
	if reportType == "weekly" {
		return m.routing.WeeklyReport
	}
	return m.routing.DailyReport
}

func (m *Manager) clientFor(ctx context.Context, channel string) (*WebhookClient, error) {
	if client, ok := m.clients[channel]; ok {
		return client, nil
	}

	channelCfg, ok := m.cfg.Channels[channel]
	if !ok {
		name, fallback, found := m.fallbackChannel()
		if !found {
			return nil, fmt.Errorf("no slack channel configured for %q", channel)
		}
		m.logger.Warn("unknown slack channel, falling back",
			"channel", channel, "fallback", name)
		channel = name
		channelCfg = fallback
	}

	url, err := m.secrets.Get(ctx, channelCfg.WebhookSecretKey)
	if err != nil {
		return nil, fmt.Errorf("resolve webhook for channel %q: %w", channel, err)
	}

	client := NewWebhookClient(url)
	m.clients[channel] = client
	return client, nil
}

// fallbackChannel picks a deterministic destination for misrouted
// messages: heartbeat when configured, otherwise the alphabetically first
// channel.
func (m *Manager) fallbackChannel() (string, config.SlackChannelConfig, bool) {
	if cfg, ok := m.cfg.Channels["heartbeat"]; ok {
		return "heartbeat", cfg, true
	}
	names := make([]string, 0, len(m.cfg.Channels))
	for name := range m.cfg.Channels {
		names = append(names, name)
	}
	if len(names) == 0 {
		return "", config.SlackChannelConfig{}, false
	}
	sort.Strings(names)
	return names[0], m.cfg.Channels[names[0]], true
}
