package llm

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

const defaultOpenAIModel = openai.GPT4oMini

// OpenAIProvider implements Provider for the OpenAI Chat Completions API and
// any OpenAI-compatible endpoint (a BaseURL pointing at an Ollama server
// turns this into the local/self-hosted tier).
type OpenAIProvider struct {
	client  *openai.Client
	config  Config
	limiter *rate.Limiter
}

// NewOpenAIProvider creates an OpenAI-compatible provider.
func NewOpenAIProvider(cfg Config) (*OpenAIProvider, error) {
	if cfg.APIKey == "" && cfg.BaseURL == "" {
		return nil, fmt.Errorf("OpenAI API key or base URL is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	return &OpenAIProvider{
		client:  openai.NewClientWithConfig(clientConfig),
		config:  cfg,
		limiter: cfg.limiter(),
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	if p.config.BaseURL != "" {
		return "openai-compatible"
	}
	return "openai"
}

// Generate runs one chat completion.
func (p *OpenAIProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.timeout())
	defer cancel()

	name := req.modelOr(p.config.Model, defaultOpenAIModel)

	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	resp, err := p.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       name,
		Messages:    messages,
		MaxTokens:   req.maxTokensOr(p.config.MaxTokens),
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	return &GenerateResponse{
		Text:       text,
		Model:      name,
		TokensUsed: resp.Usage.TotalTokens,
	}, nil
}
