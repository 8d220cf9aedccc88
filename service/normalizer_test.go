package service

import (
	"testing"

	"claimverifier-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMetric(t *testing.T) {
	cases := map[string]string{
		"Top Line":             "revenue",
		"sales":                "revenue",
		"bottom line":          "net_income",
		"profit":               "net_income",
		"earnings per share":   "eps",
		"Free Cash Flow":       "free_cash_flow",
		"operating margin":     "operating_margin",
		"customer satisfaction": "customer_satisfaction",
	}
	for input, want := range cases {
		assert.Equal(t, want, NormalizeMetric(input), "input %q", input)
	}
}

func TestNormalizePeriod(t *testing.T) {
	assert.Equal(t, models.PeriodYoY, NormalizePeriod("year over year"))
	assert.Equal(t, models.PeriodYoY, NormalizePeriod("YoY"))
	assert.Equal(t, models.PeriodQoQ, NormalizePeriod("sequentially"))
	assert.Equal(t, models.PeriodAnnual, NormalizePeriod("full year 2024"))
	assert.Equal(t, models.PeriodQuarterly, NormalizePeriod("the quarter"))
	assert.Equal(t, models.PeriodUnspecified, NormalizePeriod("whenever"))
}

func TestNormalize_HedgingAndGAAP(t *testing.T) {
	claims := []models.Claim{
		{
			ID:      uuid.New(),
			Metric:  "revenue",
			Value:   94.9,
			RawText: "Revenue was approximately $94.9 billion on an adjusted basis.",
		},
	}

	out := NewNormalizer().Normalize(claims)
	require.Len(t, out, 1)
	assert.True(t, out[0].Hedged)
	assert.False(t, out[0].IsGAAP)
}

func TestNormalize_ForwardLookingDetection(t *testing.T) {
	claims := []models.Claim{
		{ID: uuid.New(), Metric: "revenue", Value: 100, RawText: "We expect revenue of $100 billion next quarter."},
	}
	out := NewNormalizer().Normalize(claims)
	require.Len(t, out, 1)
	assert.True(t, out[0].IsForwardLooking)
}

func TestNormalize_DedupKeepsHigherConfidence(t *testing.T) {
	low := models.Claim{
		ID: uuid.New(), Metric: "revenue", Period: models.PeriodYoY,
		Value: 8.0, Confidence: 0.5, RawText: "up 8% maybe",
	}
	high := models.Claim{
		ID: uuid.New(), Metric: "revenue", Period: models.PeriodYoY,
		Value: 8.0, Confidence: 0.9, RawText: "revenue grew 8% year over year",
	}

	out := NewNormalizer().Normalize([]models.Claim{low, high})
	require.Len(t, out, 1)
	assert.Equal(t, high.ID, out[0].ID)
}

func TestNormalize_DistinctValuesSurvive(t *testing.T) {
	a := models.Claim{ID: uuid.New(), Metric: "revenue", Period: models.PeriodYoY, Value: 8.0, RawText: "grew 8%"}
	b := models.Claim{ID: uuid.New(), Metric: "revenue", Period: models.PeriodQoQ, Value: 8.0, RawText: "grew 8% sequentially"}
	c := models.Claim{ID: uuid.New(), Metric: "eps", Period: models.PeriodQuarterly, Value: 1.64, RawText: "EPS was $1.64"}

	out := NewNormalizer().Normalize([]models.Claim{a, b, c})
	assert.Len(t, out, 3)
}

func TestEnrichContext(t *testing.T) {
	transcript := &models.Transcript{
		Ticker: "AAPL", Year: 2024, Quarter: 4,
		Segments: []models.TranscriptSegment{
			{Speaker: "Tim", Role: "CEO", Text: "Good afternoon. Thanks for joining us today. Revenue grew 8% year over year. That was driven by services. iPhone also performed well."},
		},
	}
	claim := &models.Claim{RawText: "Revenue grew 8% year over year."}

	EnrichContext(claim, transcript)
	assert.Contains(t, claim.Context, "Thanks for joining")
	assert.Contains(t, claim.Context, "driven by services")
}
