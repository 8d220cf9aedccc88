package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
)

const defaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements Provider on top of the Gemini API.
type GeminiProvider struct {
	client  *genai.Client
	config  Config
	limiter *rate.Limiter
}

// NewGeminiProvider creates a Gemini-backed provider.
func NewGeminiProvider(cfg Config) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	client, err := genai.NewClient(context.Background(), option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GeminiProvider{
		client:  client,
		config:  cfg,
		limiter: cfg.limiter(),
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Generate runs one chat completion against Gemini.
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.config.timeout())
	defer cancel()

	name := req.modelOr(p.config.Model, defaultGeminiModel)
	model := p.client.GenerativeModel(name)
	model.SetTemperature(req.Temperature)
	if max := req.maxTokensOr(p.config.MaxTokens); max > 0 {
		model.SetMaxOutputTokens(int32(max))
	}
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	resp, err := model.GenerateContent(ctx, genai.Text(req.Prompt))
	if err != nil {
		return nil, fmt.Errorf("gemini generation failed: %w", err)
	}

	text := collectText(resp)
	if text == "" {
		return nil, ErrEmptyResponse
	}

	out := &GenerateResponse{Text: text, Model: name}
	if resp.UsageMetadata != nil {
		out.TokensUsed = int(resp.UsageMetadata.TotalTokenCount)
	}
	return out, nil
}

func collectText(resp *genai.GenerateContentResponse) string {
	var sb strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(sb.String())
}

func (r GenerateRequest) modelOr(configured, fallback string) string {
	if configured != "" {
		return configured
	}
	return fallback
}

func (r GenerateRequest) maxTokensOr(configured int) int {
	if r.MaxTokens > 0 {
		return r.MaxTokens
	}
	return configured
}
