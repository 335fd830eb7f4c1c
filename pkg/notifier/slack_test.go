package notifier

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/costguardian/pkg/analysis"
	"github.com/DrSkyle/costguardian/pkg/config"
)

func TestWebhookClientSendsPayload(t *testing.T) {
	var body []byte
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL)
	err := client.Send(context.Background(), map[string]interface{}{"text": "hello"})
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &decoded))
	assert.Equal(t, "hello", decoded["text"])
}

func TestWebhookClientRetriesServerErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL)
	err := client.Send(context.Background(), map[string]interface{}{"text": "retry me"})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWebhookClientDoesNotRetryClientErrors(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewWebhookClient(srv.URL)
	err := client.Send(context.Background(), map[string]interface{}{"text": "bad"})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestWebhookClientEmptyURLIsNoop(t *testing.T) {
	client := NewWebhookClient("")
	assert.NoError(t, client.Send(context.Background(), map[string]interface{}{"text": "nowhere"}))
}

type staticSecrets map[string]string

func (s staticSecrets) Get(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", errors.New("missing key")
	}
	return v, nil
}

func TestManagerRoutesBySeverity(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, "critical", NewManager(cfg.Slack, cfg.Routing, nil, nil).AnomalyChannel(analysis.SeverityCritical))
	assert.Equal(t, "heartbeat", NewManager(cfg.Slack, cfg.Routing, nil, nil).AnomalyChannel(analysis.SeverityWarning))
	assert.Equal(t, "heartbeat", NewManager(cfg.Slack, cfg.Routing, nil, nil).AnomalyChannel(analysis.SeverityInfo))

	m := NewManager(cfg.Slack, cfg.Routing, nil, nil)
	assert.Equal(t, "critical", m.BudgetChannel("critical"))
	assert.Equal(t, "heartbeat", m.BudgetChannel("warning"))
	assert.Equal(t, "heartbeat", m.ReportChannel("daily"))
	assert.Equal(t, "heartbeat", m.ReportChannel("weekly"))
}

func TestManagerResolvesWebhookFromSecrets(t *testing.T) {
	delivered := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	secrets := staticSecrets{"webhook_url_critical": srv.URL}
	m := NewManager(cfg.Slack, cfg.Routing, secrets, nil)

	require.NoError(t, m.SendTo(context.Background(), "critical", map[string]interface{}{"text": "x"}))
	require.NoError(t, m.SendTo(context.Background(), "critical", map[string]interface{}{"text": "y"}))
	assert.Equal(t, 2, delivered)
}

func TestManagerUnknownChannelFallsBackToHeartbeat(t *testing.T) {
	delivered := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		delivered++
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := config.Default()
	secrets := staticSecrets{"webhook_url_heartbeat": srv.URL}
	m := NewManager(cfg.Slack, cfg.Routing, secrets, nil)

	require.NoError(t, m.SendTo(context.Background(), "no-such-channel", map[string]interface{}{"text": "x"}))
	assert.Equal(t, 1, delivered)
}

func TestManagerFallbackIsDeterministicWithoutHeartbeat(t *testing.T) {
	cfg := config.Default()
	cfg.Slack.Channels = map[string]config.SlackChannelConfig{
		"zeta":  {Name: "#z", WebhookSecretKey: "webhook_url_zeta"},
		"alpha": {Name: "#a", WebhookSecretKey: "webhook_url_alpha"},
	}
	m := NewManager(cfg.Slack, cfg.Routing, staticSecrets{}, nil)

	// Always the alphabetically first channel, whatever the map order.
	for i := 0; i < 10; i++ {
		name, channelCfg, ok := m.fallbackChannel()
		require.True(t, ok)
		assert.Equal(t, "alpha", name)
		assert.Equal(t, "webhook_url_alpha", channelCfg.WebhookSecretKey)
	}

	cfg.Slack.Channels = nil
	empty := NewManager(cfg.Slack, cfg.Routing, staticSecrets{}, nil)
	_, _, ok := empty.fallbackChannel()
	assert.False(t, ok)
}

func TestManagerDisabledIsNoop(t *testing.T) {
	cfg := config.Default()
	cfg.Slack.Enabled = false
	m := NewManager(cfg.Slack, cfg.Routing, staticSecrets{}, nil)

	assert.NoError(t, m.SendTo(context.Background(), "critical", map[string]interface{}{"text": "x"}))
}

func TestManagerSecretFailure(t *testing.T) {
	cfg := config.Default()
	m := NewManager(cfg.Slack, cfg.Routing, staticSecrets{}, nil)

	err := m.SendTo(context.Background(), "critical", map[string]interface{}{"text": "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resolve webhook")
}
