package service

import (
	"math"
	"strings"

	"claimverifier-backend/models"
)

// metricAliases maps spoken metric names onto the canonical vocabulary.
// Longest-match wins so "adjusted earnings per share" lands on eps, not
// earnings.
var metricAliases = []struct {
	alias     string
	canonical string
}{
	{"earnings per share", "eps"},
	{"free cash flow", "free_cash_flow"},
	{"operating cash flow", "operating_cash_flow"},
	{"operating income", "operating_income"},
	{"operating margin", "operating_margin"},
	{"gross margin", "gross_margin"},
	{"net margin", "net_margin"},
	{"net income", "net_income"},
	{"bottom line", "net_income"},
	{"top line", "revenue"},
	{"topline", "revenue"},
	{"gross profit", "gross_profit"},
	{"profit", "net_income"},
	{"sales", "revenue"},
	{"revenues", "revenue"},
	{"fcf", "free_cash_flow"},
}

var gaapKeywords = []string{"adjusted", "non-gaap", "excluding", "pro forma", "ex-items", "core"}

var hedgingKeywords = []string{"approximately", "roughly", "about", "around", "nearly", "~"}

var forwardLookingKeywords = []string{
	"expect", "anticipate", "guidance", "outlook", "will be",
	"next quarter", "next year", "going forward", "forecast", "project",
}

// Normalizer brings raw extracted claims onto the canonical vocabulary and
// drops duplicates.
type Normalizer struct{}

// NewNormalizer creates a claim normalizer.
func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// NormalizeMetric maps a spoken metric name to the canonical vocabulary.
// Unknown metrics pass through lowercased with spaces collapsed, so novel
// metrics stay queryable rather than being discarded.
func NormalizeMetric(metric string) string {
	lower := strings.ToLower(strings.TrimSpace(metric))
	for _, m := range metricAliases {
		if strings.Contains(lower, m.alias) {
			return m.canonical
		}
	}
	return strings.ReplaceAll(lower, " ", "_")
}

// NormalizePeriod maps free-text period descriptions to the fixed period set.
func NormalizePeriod(period string) models.Period {
	lower := strings.ToLower(period)
	switch {
	case containsAny(lower, "year over year", "year-over-year", "yoy", "versus last year", "vs last year"):
		return models.PeriodYoY
	case containsAny(lower, "sequentially", "quarter over quarter", "quarter-over-quarter", "qoq"):
		return models.PeriodQoQ
	case containsAny(lower, "full year", "annual", "fiscal year", "for the year"):
		return models.PeriodAnnual
	case containsAny(lower, "quarter", "q1", "q2", "q3", "q4"):
		return models.PeriodQuarterly
	}
	return models.PeriodUnspecified
}

// IsNonGAAP reports whether the claim text signals an adjusted figure.
func IsNonGAAP(text string) bool {
	return containsAny(strings.ToLower(text), gaapKeywords...)
}

// IsHedged reports whether the claim text uses approximation language.
// Hedged claims get wider comparison tolerances.
func IsHedged(text string) bool {
	return containsAny(strings.ToLower(text), hedgingKeywords...)
}

// IsForwardLooking reports whether the claim text describes expectations
// rather than reported results. Forward-looking claims cannot be verified
// against current filings.
func IsForwardLooking(text string) bool {
	return containsAny(strings.ToLower(text), forwardLookingKeywords...)
}

// Normalize canonicalizes metric names and periods, detects GAAP/hedging
// status from the raw text, and deduplicates on
// (metric, period, rounded value). When duplicates collide, the claim with
// higher extraction confidence wins.
func (n *Normalizer) Normalize(claims []models.Claim) []models.Claim {
	type dedupKey struct {
		metric string
		period models.Period
		value  float64
	}

	var out []models.Claim
	index := make(map[dedupKey]int)

	for _, claim := range claims {
		claim.Metric = NormalizeMetric(claim.Metric)
		if claim.Period == "" || !knownPeriod(claim.Period) {
			claim.Period = NormalizePeriod(string(claim.Period))
		}

		lower := strings.ToLower(claim.RawText)
		claim.IsGAAP = !containsAny(lower, gaapKeywords...)
		claim.Hedged = containsAny(lower, hedgingKeywords...)
		if !claim.IsForwardLooking {
			claim.IsForwardLooking = containsAny(lower, forwardLookingKeywords...)
		}

		key := dedupKey{
			metric: claim.Metric,
			period: claim.Period,
			value:  math.Round(claim.Value*1e4) / 1e4,
		}

		if existing, ok := index[key]; ok {
			if claim.Confidence > out[existing].Confidence {
				out[existing] = claim
			}
			continue
		}

		index[key] = len(out)
		out = append(out, claim)
	}

	return out
}

// EnrichContext widens a claim's context to two sentences on each side of
// the sentence carrying the raw text.
func EnrichContext(claim *models.Claim, transcript *models.Transcript) {
	if claim.RawText == "" || transcript == nil {
		return
	}

	var full strings.Builder
	for _, segment := range transcript.Segments {
		full.WriteString(segment.Speaker)
		full.WriteString(": ")
		full.WriteString(segment.Text)
		full.WriteString("\n")
	}

	sentences := SplitSentences(full.String())
	raw := strings.TrimSpace(claim.RawText)

	target := -1
	for i, sent := range sentences {
		trimmed := strings.TrimSpace(sent)
		if strings.Contains(trimmed, raw) || strings.Contains(raw, trimmed) {
			target = i
			break
		}
	}
	if target == -1 {
		return
	}

	start := target - 2
	if start < 0 {
		start = 0
	}
	end := target + 3
	if end > len(sentences) {
		end = len(sentences)
	}
	claim.Context = strings.Join(sentences[start:end], " ")
}

func knownPeriod(p models.Period) bool {
	switch p {
	case models.PeriodYoY, models.PeriodQoQ, models.PeriodQuarterly, models.PeriodAnnual, models.PeriodUnspecified:
		return true
	}
	return false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
