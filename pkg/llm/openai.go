package llm

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/DrSkyle/costguardian/pkg/config"
)

// OpenAIProvider wraps the OpenAI chat completion API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
	cfg    config.LLMConfig
}

// NewOpenAIProvider builds a provider using the configured model.
func NewOpenAIProvider(apiKey string, cfg config.LLMConfig) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
		model:  cfg.OpenAI.ModelID,
		cfg:    cfg,
	}
}

// NewOpenAIProviderWithClient accepts a preconfigured client (for testing
// against a local server).
func NewOpenAIProviderWithClient(client *openai.Client, cfg config.LLMConfig) *OpenAIProvider {
	return &OpenAIProvider{client: client, model: cfg.OpenAI.ModelID, cfg: cfg}
}

// Name implements Provider.
func (p *OpenAIProvider) Name() string { return "openai" }

// Chat implements Provider.
func (p *OpenAIProvider) Chat(ctx context.Context, messages []Message) (*Response, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		MaxTokens:   p.cfg.MaxTokens,
		Temperature: float32(p.cfg.Temperature),
	}
	for _, m := range messages {
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	return &Response{
		Content:      resp.Choices[0].Message.Content,
		Model:        resp.Model,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}
