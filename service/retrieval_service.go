package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"claimverifier-backend/llm"
	"claimverifier-backend/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// rrfK is the reciprocal-rank-fusion smoothing constant.
const rrfK = 60

// RetrievalService runs hybrid evidence search: dense vector search through
// the database, sparse cosine scoring in memory, reciprocal-rank fusion of
// the two lists, optional reranking.
type RetrievalService struct {
	chunks   ChunkStore
	embedder llm.Embedder
	reranker *Reranker
	topK     int
	searchK  int
	logger   zerolog.Logger
}

// RetrievalOption configures the retrieval service.
type RetrievalOption func(*RetrievalService)

// WithTopK sets how many fused candidates are returned.
func WithTopK(k int) RetrievalOption {
	return func(s *RetrievalService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithSearchK sets how deep each underlying search goes before fusion.
func WithSearchK(k int) RetrievalOption {
	return func(s *RetrievalService) {
		if k > 0 {
			s.searchK = k
		}
	}
}

// WithReranker enables reordering of the fused list. The reranker only
// changes order, never membership.
func WithReranker(r *Reranker) RetrievalOption {
	return func(s *RetrievalService) {
		s.reranker = r
	}
}

// WithRetrievalLogger attaches a logger.
func WithRetrievalLogger(logger zerolog.Logger) RetrievalOption {
	return func(s *RetrievalService) {
		s.logger = logger
	}
}

// NewRetrievalService creates a retrieval service.
func NewRetrievalService(chunks ChunkStore, embedder llm.Embedder, opts ...RetrievalOption) *RetrievalService {
	s := &RetrievalService{
		chunks:   chunks,
		embedder: embedder,
		topK:     10,
		searchK:  30,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search returns the fused evidence candidates for a query within one
// company/quarter. An empty scope (no indexed chunks) returns an empty list
// and no error.
func (s *RetrievalService) Search(ctx context.Context, scope Scope, query string) ([]models.EvidenceCandidate, error) {
	scoped, err := s.chunks.ListByScope(ctx, scope.Ticker, scope.Year, scope.Quarter)
	if err != nil {
		return nil, fmt.Errorf("failed to load scoped chunks: %w", err)
	}
	if len(scoped) == 0 {
		return nil, nil
	}

	sparseList := s.sparseSearch(query, scoped)
	denseList, err := s.denseSearch(ctx, scope, query)
	if err != nil {
		// Dense search degrades, sparse carries the query alone.
		s.logger.Warn().Err(err).Msg("dense search unavailable, using sparse only")
		denseList = nil
	}

	fused := fuseRRF(sparseList, denseList, s.searchK)

	if len(fused) > s.topK {
		fused = fused[:s.topK]
	}

	if s.reranker != nil {
		fused = s.reranker.Rerank(query, fused)
	}

	return fused, nil
}

// RetrieveForClaim builds the evidence query from a claim and searches its
// scope.
func (s *RetrievalService) RetrieveForClaim(ctx context.Context, claim *models.Claim) ([]models.EvidenceCandidate, error) {
	scope := Scope{Ticker: claim.Ticker, Year: claim.Year, Quarter: claim.Quarter}
	return s.Search(ctx, scope, ClaimQuery(claim))
}

// ClaimQuery renders a claim as a retrieval query: metric, period, and the
// spoken sentence.
func ClaimQuery(claim *models.Claim) string {
	metric := strings.ReplaceAll(claim.Metric, "_", " ")
	return fmt.Sprintf("%s %s %s %s", claim.Ticker, metric, claim.Period, claim.RawText)
}

type rankedChunk struct {
	chunk models.FilingChunk
	score float64
}

// sparseSearch scores every scoped chunk against the query's sparse vector
// and returns the top searchK, best first.
func (s *RetrievalService) sparseSearch(query string, scoped []models.FilingChunk) []rankedChunk {
	queryVec := Vectorize(query)
	if len(queryVec) == 0 {
		return nil
	}

	ranked := make([]rankedChunk, 0, len(scoped))
	for _, chunk := range scoped {
		score := CosineSparse(queryVec, chunk.SparseVec)
		if score <= 0 {
			continue
		}
		ranked = append(ranked, rankedChunk{chunk: chunk, score: score})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].chunk.ID.String() < ranked[j].chunk.ID.String()
	})

	if len(ranked) > s.searchK {
		ranked = ranked[:s.searchK]
	}
	return ranked
}

func (s *RetrievalService) denseSearch(ctx context.Context, scope Scope, query string) ([]rankedChunk, error) {
	queryVec, err := s.embedder.Embed(ctx, query, llm.TaskRetrievalQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, scores, err := s.chunks.SearchDense(ctx, scope.Ticker, scope.Year, scope.Quarter, queryVec, s.searchK)
	if err != nil {
		return nil, err
	}

	ranked := make([]rankedChunk, len(chunks))
	for i := range chunks {
		ranked[i] = rankedChunk{chunk: chunks[i], score: scores[i]}
	}
	return ranked, nil
}

// fuseRRF merges the two ranked lists with reciprocal rank fusion. A chunk
// missing from one list contributes 1/(k + searchK + 1) for that list, the
// same as ranking just past the cutoff. Ties break on chunk ID so repeated
// runs return identical order.
func fuseRRF(sparse, dense []rankedChunk, searchK int) []models.EvidenceCandidate {
	byID := make(map[uuid.UUID]*models.EvidenceCandidate)

	for i, r := range sparse {
		byID[r.chunk.ID] = &models.EvidenceCandidate{
			Chunk:       r.chunk,
			SparseRank:  i + 1,
			SparseScore: r.score,
		}
	}
	for i, r := range dense {
		if c, ok := byID[r.chunk.ID]; ok {
			c.DenseRank = i + 1
			c.DenseScore = r.score
			continue
		}
		byID[r.chunk.ID] = &models.EvidenceCandidate{
			Chunk:      r.chunk,
			DenseRank:  i + 1,
			DenseScore: r.score,
		}
	}

	missing := float64(searchK + 1)
	fused := make([]models.EvidenceCandidate, 0, len(byID))
	for _, c := range byID {
		sparseRank := missing
		if c.SparseRank > 0 {
			sparseRank = float64(c.SparseRank)
		}
		denseRank := missing
		if c.DenseRank > 0 {
			denseRank = float64(c.DenseRank)
		}
		c.FusedScore = 1/(rrfK+sparseRank) + 1/(rrfK+denseRank)
		fused = append(fused, *c)
	}

	sort.SliceStable(fused, func(i, j int) bool {
		if fused[i].FusedScore != fused[j].FusedScore {
			return fused[i].FusedScore > fused[j].FusedScore
		}
		return fused[i].Chunk.ID.String() < fused[j].Chunk.ID.String()
	})

	return fused
}
