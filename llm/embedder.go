package llm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"
)

const (
	embeddingAPI = "https://generativelanguage.googleapis.com/v1beta/models/gemini-embedding-001:embedContent"

	// TaskRetrievalDocument is the task type for indexing-time embeddings.
	TaskRetrievalDocument = "RETRIEVAL_DOCUMENT"
	// TaskRetrievalQuery is the task type for query-time embeddings.
	TaskRetrievalQuery = "RETRIEVAL_QUERY"
)

// Embedder produces fixed-length dense vectors. Deterministic for identical
// input, so results are cacheable.
type Embedder interface {
	Embed(ctx context.Context, text, taskType string) ([]float64, error)
	Dimensions() int
}

// EmbeddingRequest represents an embedding API request
type EmbeddingRequest struct {
	Model                string       `json:"model"`
	Content              ContentInput `json:"content"`
	TaskType             string       `json:"task_type,omitempty"`
	OutputDimensionality int          `json:"output_dimensionality,omitempty"`
}

// ContentInput represents content for embedding
type ContentInput struct {
	Parts []PartInput `json:"parts"`
}

// PartInput represents a part of content
type PartInput struct {
	Text string `json:"text"`
}

// EmbeddingResponse represents an embedding API response
type EmbeddingResponse struct {
	Embedding EmbeddingData `json:"embedding"`
}

// EmbeddingData contains the embedding values
type EmbeddingData struct {
	Values []float64 `json:"values"`
}

// GeminiEmbedder calls the Gemini embedding REST endpoint. Calls are rate
// limited, retried with exponential backoff on transient failures, and
// cached by content hash (identical input always embeds identically).
type GeminiEmbedder struct {
	apiKey     string
	dimensions int
	httpClient *http.Client
	limiter    *rate.Limiter
	cache      *gocache.Cache
}

// GeminiEmbedderOption configures a GeminiEmbedder.
type GeminiEmbedderOption func(*GeminiEmbedder)

// WithEmbedderRateLimit caps outbound embedding calls per second.
func WithEmbedderRateLimit(rps float64) GeminiEmbedderOption {
	return func(e *GeminiEmbedder) {
		if rps > 0 {
			e.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}

// WithEmbedderDimensions overrides the output dimensionality.
func WithEmbedderDimensions(dims int) GeminiEmbedderOption {
	return func(e *GeminiEmbedder) {
		if dims > 0 {
			e.dimensions = dims
		}
	}
}

// NewGeminiEmbedder creates an embedding client.
func NewGeminiEmbedder(apiKey string, opts ...GeminiEmbedderOption) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini API key is required")
	}

	e := &GeminiEmbedder{
		apiKey:     apiKey,
		dimensions: 768,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(5), 1),
		cache:      gocache.New(30*time.Minute, 10*time.Minute),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Dimensions returns the vector length this embedder produces.
func (e *GeminiEmbedder) Dimensions() int {
	return e.dimensions
}

// Embed returns the dense vector for text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text, taskType string) ([]float64, error) {
	key := cacheKey(taskType, text)
	if cached, ok := e.cache.Get(key); ok {
		return cached.([]float64), nil
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqBody := EmbeddingRequest{
		Model: "models/gemini-embedding-001",
		Content: ContentInput{
			Parts: []PartInput{{Text: text}},
		},
		TaskType:             taskType,
		OutputDimensionality: e.dimensions,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embedding request: %w", err)
	}

	var values []float64
	operation := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, embeddingAPI, bytes.NewBuffer(jsonData))
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-goog-api-key", e.apiKey)

		resp, err := e.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
			err := fmt.Errorf("embedding API returned %d: %s", resp.StatusCode, string(body))
			if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
				return backoff.Permanent(err)
			}
			return err
		}

		var apiResp EmbeddingResponse
		if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
			return fmt.Errorf("failed to decode embedding response: %w", err)
		}
		if len(apiResp.Embedding.Values) == 0 {
			return backoff.Permanent(ErrEmptyResponse)
		}
		values = apiResp.Embedding.Values
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	e.cache.Set(key, values, gocache.DefaultExpiration)
	return values, nil
}

func cacheKey(taskType, text string) string {
	sum := sha256.Sum256([]byte(taskType + "\x00" + text))
	return hex.EncodeToString(sum[:])
}
