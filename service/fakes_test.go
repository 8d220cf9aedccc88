package service

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"

	"claimverifier-backend/llm"
	"claimverifier-backend/models"
	"claimverifier-backend/repository"

	"github.com/google/uuid"
)

// In-memory stores backing the service tests.

type fakeClaimStore struct {
	mu     sync.Mutex
	claims map[uuid.UUID]models.Claim
}

func newFakeClaimStore() *fakeClaimStore {
	return &fakeClaimStore{claims: make(map[uuid.UUID]models.Claim)}
}

func (s *fakeClaimStore) Create(ctx context.Context, claim *models.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claims[claim.ID] = *claim
	return nil
}

func (s *fakeClaimStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	claim, ok := s.claims[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &claim, nil
}

func (s *fakeClaimStore) ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.Claim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Claim
	for _, claim := range s.claims {
		if claim.Ticker == ticker && claim.Year == year && claim.Quarter == quarter {
			out = append(out, claim)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

type fakeChunkStore struct {
	mu     sync.Mutex
	chunks []models.FilingChunk
}

func newFakeChunkStore() *fakeChunkStore {
	return &fakeChunkStore{}
}

func (s *fakeChunkStore) Upsert(ctx context.Context, chunk *models.FilingChunk) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.chunks {
		if existing.Ticker == chunk.Ticker && existing.Year == chunk.Year &&
			existing.Quarter == chunk.Quarter && existing.Section == chunk.Section &&
			existing.ContentHash == chunk.ContentHash {
			return false, nil
		}
	}
	s.chunks = append(s.chunks, *chunk)
	return true, nil
}

func (s *fakeChunkStore) SearchDense(ctx context.Context, ticker string, year, quarter int, embedding []float64, limit int) ([]models.FilingChunk, []float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	type scored struct {
		chunk models.FilingChunk
		score float64
	}
	var hits []scored
	for _, chunk := range s.chunks {
		if chunk.Ticker != ticker || chunk.Year != year || chunk.Quarter != quarter || len(chunk.DenseVec) == 0 {
			continue
		}
		hits = append(hits, scored{chunk: chunk, score: dot(embedding, chunk.DenseVec)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	chunks := make([]models.FilingChunk, len(hits))
	scores := make([]float64, len(hits))
	for i, h := range hits {
		chunks[i] = h.chunk
		scores[i] = h.score
	}
	return chunks, scores, nil
}

func (s *fakeChunkStore) ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.FilingChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.FilingChunk
	for _, chunk := range s.chunks {
		if chunk.Ticker == ticker && chunk.Year == year && chunk.Quarter == quarter {
			out = append(out, chunk)
		}
	}
	return out, nil
}

func (s *fakeChunkStore) CountByScope(ctx context.Context, ticker string, year, quarter int) (int, error) {
	chunks, _ := s.ListByScope(ctx, ticker, year, quarter)
	return len(chunks), nil
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

type factKey struct {
	ticker        string
	year, quarter int
	metric        string
}

type fakeFactStore struct {
	mu    sync.Mutex
	facts map[factKey]models.FinancialFact
}

func newFakeFactStore() *fakeFactStore {
	return &fakeFactStore{facts: make(map[factKey]models.FinancialFact)}
}

func (s *fakeFactStore) Upsert(ctx context.Context, fact *models.FinancialFact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.facts[factKey{fact.Ticker, fact.Year, fact.Quarter, fact.Metric}] = *fact
	return nil
}

func (s *fakeFactStore) Lookup(ctx context.Context, ticker string, year, quarter int, metric string) (*models.FinancialFact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fact, ok := s.facts[factKey{ticker, year, quarter, metric}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &fact, nil
}

func (s *fakeFactStore) put(ticker string, year, quarter int, metric string, value float64) {
	_ = s.Upsert(context.Background(), &models.FinancialFact{
		Ticker: ticker, Year: year, Quarter: quarter, Metric: metric, Value: value, Unit: "USD", Source: "10-Q",
	})
}

type fakeVerdictStore struct {
	mu       sync.Mutex
	verdicts map[uuid.UUID]models.Verdict
	upserts  int

	// claims resolves verdict scope for ListByScope when set.
	claims *fakeClaimStore
}

func newFakeVerdictStore() *fakeVerdictStore {
	return &fakeVerdictStore{verdicts: make(map[uuid.UUID]models.Verdict)}
}

func (s *fakeVerdictStore) Upsert(ctx context.Context, verdict *models.Verdict) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !verdict.Label.Valid() {
		return fmt.Errorf("invalid verdict label %q", verdict.Label)
	}
	s.verdicts[verdict.ClaimID] = *verdict
	s.upserts++
	return nil
}

func (s *fakeVerdictStore) GetByClaimID(ctx context.Context, claimID uuid.UUID) (*models.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	verdict, ok := s.verdicts[claimID]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &verdict, nil
}

func (s *fakeVerdictStore) ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.Verdict, error) {
	if s.claims == nil {
		return nil, nil
	}
	claims, err := s.claims.ListByScope(ctx, ticker, year, quarter)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Verdict
	for _, claim := range claims {
		if verdict, ok := s.verdicts[claim.ID]; ok {
			out = append(out, verdict)
		}
	}
	return out, nil
}

func (s *fakeVerdictStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.verdicts)
}

// fakeProvider returns canned responses and records how often it was called.

type fakeProvider struct {
	mu        sync.Mutex
	responses []string
	err       error
	calls     int
}

func (p *fakeProvider) Name() string { return "fake" }

func (p *fakeProvider) Generate(ctx context.Context, req llm.GenerateRequest) (*llm.GenerateResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	text := ""
	if len(p.responses) > 0 {
		text = p.responses[0]
		if len(p.responses) > 1 {
			p.responses = p.responses[1:]
		}
	}
	return &llm.GenerateResponse{Text: text, Model: "fake"}, nil
}

func (p *fakeProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// fakeEmbedder produces a deterministic pseudo-vector from the text hash.

type fakeEmbedder struct {
	err error
}

func (e *fakeEmbedder) Embed(ctx context.Context, text, taskType string) ([]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	sum := sha256.Sum256([]byte(text))
	vec := make([]float64, 8)
	for i := range vec {
		bits := binary.BigEndian.Uint32(sum[i*4 : i*4+4])
		vec[i] = float64(bits%1000)/1000 - 0.5
	}
	return vec, nil
}

func (e *fakeEmbedder) Dimensions() int { return 8 }
