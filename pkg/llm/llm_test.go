package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DrSkyle/costguardian/pkg/analysis"
	"github.com/DrSkyle/costguardian/pkg/config"
)

func anthropicStub(t *testing.T, handler http.HandlerFunc) *AnthropicProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	p := NewAnthropicProvider("sk-test", config.Default().LLM)
	p.baseURL = srv.URL
	return p
}

func TestAnthropicChat(t *testing.T) {
	var gotBody map[string]interface{}
	p := anthropicStub(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-test", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"model":       "claude-sonnet-4-20250514",
			"content":     []map[string]interface{}{{"type": "text", "text": "Looks fine."}},
			"stop_reason": "end_turn",
			"usage":       map[string]int{"input_tokens": 120, "output_tokens": 8},
		})
	})

	resp, err := p.Chat(context.Background(), []Message{
		{Role: "system", Content: "watch costs"},
		{Role: "user", Content: "analyze this"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Looks fine.", resp.Content)
	assert.Equal(t, 120, resp.InputTokens)
	assert.Equal(t, "end_turn", resp.FinishReason)

	// System message rides in the dedicated field, not the message list.
	assert.Equal(t, "watch costs", gotBody["system"])
	messages := gotBody["messages"].([]interface{})
	require.Len(t, messages, 1)
	assert.Equal(t, "user", messages[0].(map[string]interface{})["role"])
}

func TestAnthropicRetriesServerErrors(t *testing.T) {
	attempts := 0
	p := anthropicStub(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"content": []map[string]interface{}{{"type": "text", "text": "ok"}},
		})
	})

	resp, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, attempts)
}

func TestAnthropicAuthFailureIsNotRetried(t *testing.T) {
	attempts := 0
	p := anthropicStub(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := p.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

type fakeProvider struct {
	resp *Response
	err  error
	last []Message
}

func (f *fakeProvider) Chat(_ context.Context, messages []Message) (*Response, error) {
	f.last = messages
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func TestAnalyzeAnomalyBuildsPrompt(t *testing.T) {
	fake := &fakeProvider{resp: &Response{Content: "EC2 spike from new instances."}}
	c := NewClientWithProvider(config.Default().LLM, fake, nil)

	got := c.AnalyzeAnomaly(context.Background(), analysis.DetectedAnomaly{
		Service:        "AmazonEC2",
		CurrentCost:    250,
		BaselineCost:   100,
		AbsoluteChange: 150,
		PercentChange:  150,
		Severity:       analysis.SeverityCritical,
	}, "14 days of stable spend around $100/day")

	assert.Equal(t, "EC2 spike from new instances.", got)
	require.Len(t, fake.last, 2)
	assert.Equal(t, "system", fake.last[0].Role)
	assert.Contains(t, fake.last[1].Content, "AmazonEC2")
	assert.Contains(t, fake.last[1].Content, "$250.00")
	assert.Contains(t, fake.last[1].Content, "+150.0%")
	assert.Contains(t, fake.last[1].Content, "stable spend")
}

func TestInsightsDegradeGracefully(t *testing.T) {
	fake := &fakeProvider{err: errors.New("rate limited")}
	c := NewClientWithProvider(config.Default().LLM, fake, nil)

	assert.Empty(t, c.AnalyzeAnomaly(context.Background(), analysis.DetectedAnomaly{}, ""))
	assert.Empty(t, c.DailyInsight(context.Background(), analysis.DailySummary{}))
	assert.Empty(t, c.WeeklyInsight(context.Background(), analysis.WeeklySummary{}))
}

type staticSecrets map[string]string

func (s staticSecrets) Get(_ context.Context, key string) (string, error) {
	v, ok := s[key]
	if !ok {
		return "", errors.New("missing " + key)
	}
	return v, nil
}

func TestClientResolvesProviderAPIKey(t *testing.T) {
	cfg := config.Default().LLM
	c := NewClient(cfg, staticSecrets{}, nil)

	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic_api_key")
}

func TestClientRejectsUnknownProvider(t *testing.T) {
	cfg := config.Default().LLM
	cfg.Provider = "bedrock"
	c := NewClient(cfg, staticSecrets{"bedrock_api_key": "k"}, nil)

	_, err := c.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown llm provider")
}

func TestWeeklyPromptMentionsBudget(t *testing.T) {
	prompt := weeklyReportPrompt(analysis.WeeklySummary{
		TotalCost:          310,
		WeekOverWeekChange: -4.2,
		MTDCost:            610,
		BudgetPercent:      68,
		Forecast:           880,
		TopServices:        []analysis.ServiceCost{{Service: "AmazonRDS", Cost: 120}},
	})
	assert.Contains(t, prompt, "-4.2%")
	assert.Contains(t, prompt, "AmazonRDS: $120.00")
	assert.True(t, strings.Contains(prompt, "Budget Used: 68%"))
}
