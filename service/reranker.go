package service

import (
	"sort"
	"unicode"

	"claimverifier-backend/models"
)

// Reranker reorders fused candidates by a query-aware cross score. It never
// adds or removes candidates, only changes order; the fused scores stay
// untouched on each candidate.
type Reranker struct {
	// fusedWeight keeps part of the fusion signal in the final order so the
	// rerank score refines rather than replaces retrieval.
	fusedWeight float64
}

// NewReranker creates a reranker.
func NewReranker() *Reranker {
	return &Reranker{fusedWeight: 0.3}
}

// Rerank returns the candidates reordered best-first by rerank score. Ties
// break on chunk ID, matching the retrieval tie-break.
func (r *Reranker) Rerank(query string, candidates []models.EvidenceCandidate) []models.EvidenceCandidate {
	if len(candidates) < 2 {
		return candidates
	}

	queryTokens := tokenSet(query)
	maxFused := 0.0
	for _, c := range candidates {
		if c.FusedScore > maxFused {
			maxFused = c.FusedScore
		}
	}

	out := make([]models.EvidenceCandidate, len(candidates))
	copy(out, candidates)

	for i := range out {
		score := r.crossScore(queryTokens, out[i].Chunk.Text)
		if maxFused > 0 {
			score += r.fusedWeight * out[i].FusedScore / maxFused
		}
		out[i].RerankScore = &score
	}

	sort.SliceStable(out, func(i, j int) bool {
		if *out[i].RerankScore != *out[j].RerankScore {
			return *out[i].RerankScore > *out[j].RerankScore
		}
		return out[i].Chunk.ID.String() < out[j].Chunk.ID.String()
	})

	return out
}

// crossScore measures query/chunk term overlap, weighting numeric tokens
// heavier: for quantitative claims the matching number is the evidence.
func (r *Reranker) crossScore(queryTokens map[string]bool, chunkText string) float64 {
	if len(queryTokens) == 0 {
		return 0
	}

	chunkTokens := tokenSet(chunkText)
	var matched, total float64
	for token := range queryTokens {
		weight := 1.0
		if isNumericToken(token) {
			weight = 3.0
		}
		total += weight
		if chunkTokens[token] {
			matched += weight
		}
	}
	if total == 0 {
		return 0
	}
	return matched / total
}

func tokenSet(text string) map[string]bool {
	set := make(map[string]bool)
	for _, token := range tokenize(text) {
		set[token] = true
	}
	return set
}

func isNumericToken(token string) bool {
	for _, r := range token {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
