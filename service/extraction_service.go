package service

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"claimverifier-backend/llm"
	"claimverifier-backend/models"
	"claimverifier-backend/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ExtractionService turns an earnings-call transcript into persisted claims:
// pre-filter, batched model extraction, normalization, context enrichment,
// storage.
type ExtractionService struct {
	provider      llm.Provider
	claims        ClaimStore
	prefilter     *Prefilter
	normalizer    *Normalizer
	workers       int
	minConfidence float64
	maxBatchChars int
	logger        zerolog.Logger
}

// ExtractionOption configures the extraction service.
type ExtractionOption func(*ExtractionService)

// WithExtractionWorkers sets how many extraction batches run concurrently.
func WithExtractionWorkers(n int) ExtractionOption {
	return func(s *ExtractionService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithMinConfidence sets the confidence floor below which extracted claims
// are discarded.
func WithMinConfidence(c float64) ExtractionOption {
	return func(s *ExtractionService) {
		if c > 0 {
			s.minConfidence = c
		}
	}
}

// WithExtractionLogger attaches a logger.
func WithExtractionLogger(logger zerolog.Logger) ExtractionOption {
	return func(s *ExtractionService) {
		s.logger = logger
	}
}

// NewExtractionService creates an extraction service.
func NewExtractionService(provider llm.Provider, claims ClaimStore, opts ...ExtractionOption) *ExtractionService {
	s := &ExtractionService{
		provider:      provider,
		claims:        claims,
		prefilter:     NewPrefilter(),
		normalizer:    NewNormalizer(),
		workers:       4,
		minConfidence: 0.5,
		maxBatchChars: 7200, // ~1800 tokens at 4 chars/token
		logger:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExtractionResult summarizes one transcript extraction run.
type ExtractionResult struct {
	Claims           []models.Claim `json:"claims"`
	SentencesKept    int            `json:"sentences_kept"`
	BatchesTotal     int            `json:"batches_total"`
	BatchesFailed    int            `json:"batches_failed"`
	DiscardedLowConf int            `json:"discarded_low_confidence"`
}

// ExtractTranscript runs the full extraction pipeline for one transcript.
// Batch failures are partial: surviving batches still produce claims, and
// the result reports how many batches were lost.
func (s *ExtractionService) ExtractTranscript(ctx context.Context, transcript *models.Transcript) (*ExtractionResult, error) {
	if transcript == nil || len(transcript.Segments) == 0 {
		return &ExtractionResult{}, nil
	}

	kept := s.prefilter.Filter(transcript)
	s.logger.Info().
		Str("ticker", transcript.Ticker).
		Int("year", transcript.Year).
		Int("quarter", transcript.Quarter).
		Int("sentences_kept", len(kept)).
		Msg("transcript pre-filtered")

	if len(kept) == 0 {
		return &ExtractionResult{}, nil
	}

	batches := batchSentences(kept, s.maxBatchChars, 2)

	pool := worker.NewPool(s.workers)
	pool.Start(ctx)

	for _, batch := range batches {
		job := &extractionJob{service: s, transcript: transcript, batch: batch}
		if err := pool.Submit(ctx, job); err != nil {
			pool.Drain()
			return nil, fmt.Errorf("failed to submit extraction batch: %w", err)
		}
	}

	result := &ExtractionResult{
		SentencesKept: len(kept),
		BatchesTotal:  len(batches),
	}

	var raw []models.Claim
	for _, r := range pool.Drain() {
		er := r.(*extractionResult)
		if er.err != nil {
			result.BatchesFailed++
			s.logger.Warn().Err(er.err).Msg("extraction batch failed")
			continue
		}
		raw = append(raw, er.claims...)
	}

	if result.BatchesFailed == result.BatchesTotal && result.BatchesTotal > 0 {
		return nil, fmt.Errorf("all %d extraction batches failed", result.BatchesTotal)
	}

	normalized := s.normalizer.Normalize(raw)

	for i := range normalized {
		if normalized[i].Confidence < s.minConfidence {
			result.DiscardedLowConf++
			continue
		}
		EnrichContext(&normalized[i], transcript)
		if err := s.claims.Create(ctx, &normalized[i]); err != nil {
			return nil, fmt.Errorf("failed to store claim: %w", err)
		}
		result.Claims = append(result.Claims, normalized[i])
	}

	s.logger.Info().
		Str("ticker", transcript.Ticker).
		Int("claims", len(result.Claims)).
		Int("batches_failed", result.BatchesFailed).
		Int("discarded", result.DiscardedLowConf).
		Msg("extraction complete")

	return result, nil
}

// batchSentences packs filtered sentences into batches under the character
// budget, carrying the last `overlap` sentences into the next batch for
// context continuity.
func batchSentences(sentences []FilteredSentence, maxChars, overlap int) [][]FilteredSentence {
	var batches [][]FilteredSentence
	var cur []FilteredSentence
	curChars := 0

	cost := func(s FilteredSentence) int { return len(s.Sentence) + 80 }

	for _, s := range sentences {
		if curChars+cost(s) > maxChars && len(cur) > 0 {
			batches = append(batches, cur)
			if len(cur) > overlap {
				cur = append([]FilteredSentence(nil), cur[len(cur)-overlap:]...)
			} else {
				cur = nil
			}
			curChars = 0
			for _, kept := range cur {
				curChars += cost(kept)
			}
		}
		cur = append(cur, s)
		curChars += cost(s)
	}
	if len(cur) > 0 {
		batches = append(batches, cur)
	}

	return batches
}

type extractionJob struct {
	service    *ExtractionService
	transcript *models.Transcript
	batch      []FilteredSentence
}

type extractionResult struct {
	claims []models.Claim
	err    error
}

func (r *extractionResult) Err() error { return r.err }

func (j *extractionJob) Run(ctx context.Context) worker.Result {
	claims, err := j.service.extractBatch(ctx, j.transcript, j.batch)
	return &extractionResult{claims: claims, err: err}
}

// rawClaim is the JSON shape the extraction prompt asks the model for.
type rawClaim struct {
	Metric           string      `json:"metric"`
	ClaimType        string      `json:"claim_type"`
	StatedValue      interface{} `json:"stated_value"`
	Unit             string      `json:"unit"`
	Period           string      `json:"period"`
	IsGAAP           *bool       `json:"is_gaap"`
	IsForwardLooking bool        `json:"is_forward_looking"`
	HedgingLanguage  bool        `json:"hedging_language"`
	RawText          string      `json:"raw_text"`
	Speaker          string      `json:"speaker"`
}

const extractionSystemPrompt = `You are a financial analyst extracting quantitative claims from an earnings call.`

func (s *ExtractionService) extractBatch(ctx context.Context, transcript *models.Transcript, batch []FilteredSentence) ([]models.Claim, error) {
	var formatted strings.Builder
	for _, sent := range batch {
		fmt.Fprintf(&formatted, "[%s (%s)]: %s\n", sent.Speaker, sent.Role, sent.Sentence)
	}

	prompt := fmt.Sprintf(`TRANSCRIPT SENTENCES (Company: %s, Q%d %d):
---
%s---

For each sentence, determine:
1. SELECTION: Does this sentence contain a verifiable quantitative claim? Skip opinions and qualitative statements.
2. DISAMBIGUATION: If the claim references something ambiguous, resolve it using context.
3. DECOMPOSITION: Break complex sentences into standalone verifiable claims.

For EACH quantitative claim found, return a JSON object:
{
  "metric": "the financial metric (revenue, net_income, eps, operating_margin, etc.)",
  "claim_type": "absolute_value | percentage_growth | comparison | ratio | vague_quantitative",
  "stated_value": "the exact number (e.g. 94.8)",
  "unit": "percent | dollars_millions | dollars_billions | dollars | count | ratio | basis_points",
  "period": "YoY | QoQ | annual | quarterly | unspecified",
  "is_gaap": true/false,
  "is_forward_looking": true/false,
  "hedging_language": true/false,
  "raw_text": "exact sentence from transcript",
  "speaker": "speaker name"
}

Return ONLY a JSON array. If no quantitative claims exist, return [].
Do NOT include qualitative statements without numbers.`,
		transcript.Ticker, transcript.Quarter, transcript.Year, formatted.String())

	resp, err := s.provider.Generate(ctx, llm.GenerateRequest{
		System:      extractionSystemPrompt,
		Prompt:      prompt,
		Temperature: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("extraction call failed: %w", err)
	}

	var raws []rawClaim
	if err := llm.DecodeJSONArray(resp.Text, &raws); err != nil {
		return nil, fmt.Errorf("extraction response unparseable: %w", err)
	}

	var claims []models.Claim
	for _, rc := range raws {
		claim, ok := s.buildClaim(transcript, rc)
		if !ok {
			continue
		}
		claims = append(claims, claim)
	}

	return claims, nil
}

var nonNumericRE = regexp.MustCompile(`[^\d.]`)

// parseStatedValue turns the model's stated_value into a float. Handles
// numbers arriving as JSON numbers, as strings with currency symbols, and
// the occasional multi-dot artifact like "53.893.12".
func parseStatedValue(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case string:
		cleaned := strings.TrimSpace(val)
		if strings.Count(cleaned, ".") > 1 {
			parts := strings.Split(cleaned, ".")
			if len(parts[len(parts)-1]) == 2 {
				// "53.893.12" reads as 53893.12: dots are thousands separators.
				intPart := strings.Join(parts[:len(parts)-1], "")
				cleaned = intPart + "." + parts[len(parts)-1]
			} else {
				cleaned = strings.ReplaceAll(cleaned, ".", "")
			}
		}
		cleaned = nonNumericRE.ReplaceAllString(cleaned, "")
		if cleaned == "" || cleaned == "." {
			return 0, false
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// mapUnit translates the prompt's unit vocabulary to the claim model's unit
// and scale.
func mapUnit(unit string) (string, models.Scale) {
	switch strings.ToLower(strings.TrimSpace(unit)) {
	case "percent", "%":
		return "%", models.ScaleOnes
	case "dollars_millions":
		return "USD", models.ScaleMillions
	case "dollars_billions":
		return "USD", models.ScaleBillions
	case "dollars_thousands":
		return "USD", models.ScaleThousands
	case "dollars":
		return "USD", models.ScaleOnes
	case "basis_points":
		return "bps", models.ScaleOnes
	case "count":
		return "count", models.ScaleOnes
	case "ratio":
		return "ratio", models.ScaleOnes
	}
	return "USD", models.ScaleOnes
}

func (s *ExtractionService) buildClaim(transcript *models.Transcript, rc rawClaim) (models.Claim, bool) {
	value, ok := parseStatedValue(rc.StatedValue)
	if !ok || rc.RawText == "" {
		return models.Claim{}, false
	}

	unit, scale := mapUnit(rc.Unit)

	confidence := 0.9
	if rc.ClaimType == "vague_quantitative" {
		confidence = 0.5
	}

	isGAAP := true
	if rc.IsGAAP != nil {
		isGAAP = *rc.IsGAAP
	}

	speaker := rc.Speaker
	if speaker == "" {
		speaker = "Unknown"
	}

	return models.Claim{
		ID:               uuid.New(),
		Ticker:           transcript.Ticker,
		Year:             transcript.Year,
		Quarter:          transcript.Quarter,
		Speaker:          speaker,
		Metric:           rc.Metric,
		Value:            value,
		Unit:             unit,
		Scale:            scale,
		Period:           models.Period(rc.Period),
		IsGAAP:           isGAAP,
		IsForwardLooking: rc.IsForwardLooking,
		Hedged:           rc.HedgingLanguage,
		RawText:          rc.RawText,
		ExtractionMethod: "llm",
		Confidence:       confidence,
	}, true
}
