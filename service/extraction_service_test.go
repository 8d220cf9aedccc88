package service

import (
	"context"
	"errors"
	"testing"

	"claimverifier-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTranscript() *models.Transcript {
	return &models.Transcript{
		Ticker:  "AAPL",
		Year:    2024,
		Quarter: 4,
		Segments: []models.TranscriptSegment{
			{Speaker: "Tim Cook", Role: "CEO", Text: "Revenue grew 6% year over year to $94.9 billion. We are thrilled with the momentum."},
			{Speaker: "Luca Maestri", Role: "CFO", Text: "EPS was $1.64 for the quarter."},
		},
	}
}

const extractionResponse = `[
	{
		"metric": "revenue",
		"claim_type": "percentage_growth",
		"stated_value": 6,
		"unit": "percent",
		"period": "YoY",
		"is_gaap": true,
		"is_forward_looking": false,
		"hedging_language": false,
		"raw_text": "Revenue grew 6% year over year to $94.9 billion.",
		"speaker": "Tim Cook"
	},
	{
		"metric": "eps",
		"claim_type": "absolute_value",
		"stated_value": "$1.64",
		"unit": "dollars",
		"period": "quarterly",
		"is_gaap": true,
		"is_forward_looking": false,
		"hedging_language": false,
		"raw_text": "EPS was $1.64 for the quarter.",
		"speaker": "Luca Maestri"
	}
]`

func TestExtractTranscript_HappyPath(t *testing.T) {
	store := newFakeClaimStore()
	provider := &fakeProvider{responses: []string{extractionResponse}}

	svc := NewExtractionService(provider, store)
	result, err := svc.ExtractTranscript(context.Background(), sampleTranscript())
	require.NoError(t, err)

	require.Len(t, result.Claims, 2)
	assert.Equal(t, 1, result.BatchesTotal)
	assert.Zero(t, result.BatchesFailed)

	byMetric := map[string]models.Claim{}
	for _, c := range result.Claims {
		byMetric[c.Metric] = c
	}

	rev := byMetric["revenue"]
	assert.Equal(t, "AAPL", rev.Ticker)
	assert.Equal(t, 6.0, rev.Value)
	assert.Equal(t, "%", rev.Unit)
	assert.Equal(t, models.PeriodYoY, rev.Period)
	assert.Equal(t, "Tim Cook", rev.Speaker)

	eps := byMetric["eps"]
	assert.Equal(t, 1.64, eps.Value, "currency string should parse to a float")

	stored, err := store.ListByScope(context.Background(), "AAPL", 2024, 4)
	require.NoError(t, err)
	assert.Len(t, stored, 2)
}

func TestExtractTranscript_EmptyTranscript(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewExtractionService(provider, newFakeClaimStore())

	result, err := svc.ExtractTranscript(context.Background(), &models.Transcript{Ticker: "AAPL"})
	require.NoError(t, err)
	assert.Empty(t, result.Claims)
	assert.Zero(t, provider.callCount())
}

func TestExtractTranscript_NothingSurvivesPrefilter(t *testing.T) {
	provider := &fakeProvider{}
	svc := NewExtractionService(provider, newFakeClaimStore())

	transcript := &models.Transcript{
		Ticker: "AAPL", Year: 2024, Quarter: 4,
		Segments: []models.TranscriptSegment{
			{Speaker: "Tim Cook", Role: "CEO", Text: "We are proud of the team. The culture is strong."},
		},
	}

	result, err := svc.ExtractTranscript(context.Background(), transcript)
	require.NoError(t, err)
	assert.Empty(t, result.Claims)
	assert.Zero(t, provider.callCount(), "nothing to extract means no model call")
}

func TestExtractTranscript_AllBatchesFailedIsError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("model unavailable")}
	svc := NewExtractionService(provider, newFakeClaimStore())

	_, err := svc.ExtractTranscript(context.Background(), sampleTranscript())
	assert.Error(t, err)
}

func TestExtractTranscript_DiscardsLowConfidence(t *testing.T) {
	response := `[
		{
			"metric": "revenue",
			"claim_type": "vague_quantitative",
			"stated_value": 2,
			"unit": "count",
			"period": "unspecified",
			"is_forward_looking": false,
			"hedging_language": false,
			"raw_text": "Revenue grew 6% year over year to $94.9 billion.",
			"speaker": "Tim Cook"
		}
	]`
	provider := &fakeProvider{responses: []string{response}}
	svc := NewExtractionService(provider, newFakeClaimStore(), WithMinConfidence(0.6))

	result, err := svc.ExtractTranscript(context.Background(), sampleTranscript())
	require.NoError(t, err)
	assert.Empty(t, result.Claims)
	assert.Equal(t, 1, result.DiscardedLowConf)
}

func TestExtractTranscript_SkipsClaimsWithoutValues(t *testing.T) {
	response := `[
		{"metric": "revenue", "stated_value": "n/a", "raw_text": "Revenue grew 6% year over year to $94.9 billion.", "speaker": "Tim Cook"},
		{"metric": "eps", "stated_value": 1.64, "unit": "dollars", "period": "quarterly", "raw_text": "EPS was $1.64 for the quarter.", "speaker": "Luca Maestri"}
	]`
	provider := &fakeProvider{responses: []string{response}}
	svc := NewExtractionService(provider, newFakeClaimStore())

	result, err := svc.ExtractTranscript(context.Background(), sampleTranscript())
	require.NoError(t, err)
	require.Len(t, result.Claims, 1)
	assert.Equal(t, "eps", result.Claims[0].Metric)
}

func TestBatchSentences_BudgetAndOverlap(t *testing.T) {
	sentences := make([]FilteredSentence, 10)
	for i := range sentences {
		sentences[i] = FilteredSentence{
			Sentence: "Revenue for the segment grew 8% year over year in the quarter.",
			Speaker:  "CFO",
		}
	}

	// Each sentence costs len+80, so a small budget forces multiple batches.
	batches := batchSentences(sentences, 300, 2)
	require.Greater(t, len(batches), 1)

	// Consecutive batches share the trailing two sentences for context.
	for i := 1; i < len(batches); i++ {
		prev := batches[i-1]
		require.GreaterOrEqual(t, len(batches[i]), 2)
		assert.Equal(t, prev[len(prev)-2:], batches[i][:2])
	}
}

func TestBatchSentences_SingleSmallBatch(t *testing.T) {
	sentences := []FilteredSentence{
		{Sentence: "Revenue grew 8%."},
		{Sentence: "EPS was $1.64."},
	}
	batches := batchSentences(sentences, 7200, 2)
	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 2)
}

func TestParseStatedValue(t *testing.T) {
	cases := []struct {
		name  string
		input interface{}
		want  float64
		ok    bool
	}{
		{"json number", 94.8, 94.8, true},
		{"plain string", "94.8", 94.8, true},
		{"currency string", "$1.64", 1.64, true},
		{"thousands dots with cents", "53.893.12", 53893.12, true},
		{"thousands dots no cents", "1.234.567", 1234567, true},
		{"percent suffix", "8.5%", 8.5, true},
		{"not a number", "n/a", 0, false},
		{"empty", "", 0, false},
		{"nil", nil, 0, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := parseStatedValue(tc.input)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.InDelta(t, tc.want, got, 1e-9)
			}
		})
	}
}

func TestMapUnit(t *testing.T) {
	unit, scale := mapUnit("percent")
	assert.Equal(t, "%", unit)
	assert.Equal(t, models.ScaleOnes, scale)

	unit, scale = mapUnit("dollars_billions")
	assert.Equal(t, "USD", unit)
	assert.Equal(t, models.ScaleBillions, scale)

	unit, scale = mapUnit("something_else")
	assert.Equal(t, "USD", unit)
	assert.Equal(t, models.ScaleOnes, scale)
}
