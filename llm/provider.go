package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

var (
	// ErrEmptyResponse indicates the model returned no usable content.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrMalformedOutput indicates the model output could not be parsed
	// into the requested structure.
	ErrMalformedOutput = errors.New("model output is malformed")
)

// GenerateRequest is a single chat-model invocation.
type GenerateRequest struct {
	// System is an optional system instruction.
	System string

	// Prompt is the user content.
	Prompt string

	// MaxTokens limits the response length; 0 uses the provider default.
	MaxTokens int

	// Temperature defaults to 0 for deterministic extraction/verification.
	Temperature float32
}

// GenerateResponse is the model's reply.
type GenerateResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Provider is a chat model used for claim extraction and the reasoning
// verification fallback. Implementations apply their own per-call timeout
// and rate limit; callers treat any error as recoverable.
type Provider interface {
	Name() string
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Config holds provider configuration.
type Config struct {
	// Provider name: "gemini", "openai", "ollama"
	Provider string

	// Model name (provider-specific); empty selects a default.
	Model string

	// APIKey for the provider.
	APIKey string

	// BaseURL for OpenAI-compatible endpoints (e.g. Ollama).
	BaseURL string

	// Timeout for one model call.
	Timeout time.Duration

	// MaxTokens default for responses.
	MaxTokens int

	// RatePerSecond caps outbound model calls.
	RatePerSecond float64
}

func (c Config) limiter() *rate.Limiter {
	rps := c.RatePerSecond
	if rps <= 0 {
		rps = 1
	}
	return rate.NewLimiter(rate.Limit(rps), 1)
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 120 * time.Second
	}
	return c.Timeout
}

// NewProvider builds a Provider from configuration.
func NewProvider(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "gemini":
		return NewGeminiProvider(cfg)
	case "openai", "ollama":
		return NewOpenAIProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q", cfg.Provider)
	}
}
