package service

import (
	"context"
	"fmt"
	"testing"

	"claimverifier-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChunk(t *testing.T, store *fakeChunkStore, ticker string, year, quarter int, text string) models.FilingChunk {
	t.Helper()
	emb := &fakeEmbedder{}
	dense, err := emb.Embed(context.Background(), text, "RETRIEVAL_DOCUMENT")
	require.NoError(t, err)

	chunk := models.FilingChunk{
		ID:          uuid.New(),
		Ticker:      ticker,
		Year:        year,
		Quarter:     quarter,
		Section:     "statements",
		ChunkType:   models.ChunkTypeText,
		SourceType:  "10-Q",
		Text:        text,
		ContentHash: models.HashContent(text),
		SparseVec:   Vectorize(text),
		DenseVec:    dense,
	}
	_, err = store.Upsert(context.Background(), &chunk)
	require.NoError(t, err)
	return chunk
}

func TestSearch_EmptyScopeReturnsEmpty(t *testing.T) {
	svc := NewRetrievalService(newFakeChunkStore(), &fakeEmbedder{})

	got, err := svc.Search(context.Background(), Scope{Ticker: "AAPL", Year: 2024, Quarter: 4}, "revenue")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearch_ScopedToCompanyQuarter(t *testing.T) {
	store := newFakeChunkStore()
	seedChunk(t, store, "AAPL", 2024, 4, "Apple revenue was 94.9 billion dollars")
	seedChunk(t, store, "MSFT", 2024, 4, "Microsoft revenue was 62 billion dollars")
	seedChunk(t, store, "AAPL", 2024, 3, "Apple revenue was 85.8 billion dollars")

	svc := NewRetrievalService(store, &fakeEmbedder{})
	got, err := svc.Search(context.Background(), Scope{Ticker: "AAPL", Year: 2024, Quarter: 4}, "revenue")
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, "AAPL", got[0].Chunk.Ticker)
	assert.Equal(t, 4, got[0].Chunk.Quarter)
}

func TestSearch_FusionPrefersDoubleRanked(t *testing.T) {
	store := newFakeChunkStore()
	// Relevant on both channels.
	both := seedChunk(t, store, "AAPL", 2024, 4, "revenue grew 8 percent year over year to 94.9 billion")
	// Sparse-only filler.
	for i := 0; i < 3; i++ {
		seedChunk(t, store, "AAPL", 2024, 4, fmt.Sprintf("operating expenses line item %d for the quarter", i))
	}

	svc := NewRetrievalService(store, &fakeEmbedder{})
	got, err := svc.Search(context.Background(), Scope{Ticker: "AAPL", Year: 2024, Quarter: 4}, "revenue grew 8 percent year over year to 94.9 billion")
	require.NoError(t, err)

	require.NotEmpty(t, got)
	assert.Equal(t, both.ID, got[0].Chunk.ID, "chunk ranked on both channels should fuse to the top")
	assert.Positive(t, got[0].FusedScore)
	assert.Equal(t, 1, got[0].SparseRank)
}

func TestSearch_TopKCap(t *testing.T) {
	store := newFakeChunkStore()
	for i := 0; i < 12; i++ {
		seedChunk(t, store, "AAPL", 2024, 4, fmt.Sprintf("revenue detail number %d for the quarter", i))
	}

	svc := NewRetrievalService(store, &fakeEmbedder{}, WithTopK(5))
	got, err := svc.Search(context.Background(), Scope{Ticker: "AAPL", Year: 2024, Quarter: 4}, "revenue detail")
	require.NoError(t, err)
	assert.Len(t, got, 5)
}

func TestSearch_DeterministicOrder(t *testing.T) {
	store := newFakeChunkStore()
	for i := 0; i < 6; i++ {
		seedChunk(t, store, "AAPL", 2024, 4, fmt.Sprintf("margin commentary %d", i))
	}

	svc := NewRetrievalService(store, &fakeEmbedder{})
	first, err := svc.Search(context.Background(), Scope{Ticker: "AAPL", Year: 2024, Quarter: 4}, "margin commentary")
	require.NoError(t, err)
	second, err := svc.Search(context.Background(), Scope{Ticker: "AAPL", Year: 2024, Quarter: 4}, "margin commentary")
	require.NoError(t, err)

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Chunk.ID, second[i].Chunk.ID)
	}
}

func TestSearch_DenseFailureDegradesToSparse(t *testing.T) {
	store := newFakeChunkStore()
	seedChunk(t, store, "AAPL", 2024, 4, "revenue was strong this quarter")

	svc := NewRetrievalService(store, &fakeEmbedder{err: fmt.Errorf("embedding service down")})
	got, err := svc.Search(context.Background(), Scope{Ticker: "AAPL", Year: 2024, Quarter: 4}, "revenue")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].DenseRank)
	assert.Positive(t, got[0].SparseRank)
}

func TestFuseRRF_MissingListPenalty(t *testing.T) {
	a := models.FilingChunk{ID: uuid.New()}
	b := models.FilingChunk{ID: uuid.New()}

	fused := fuseRRF(
		[]rankedChunk{{chunk: a, score: 0.9}, {chunk: b, score: 0.5}},
		[]rankedChunk{{chunk: a, score: 0.8}},
		30,
	)

	require.Len(t, fused, 2)
	assert.Equal(t, a.ID, fused[0].Chunk.ID)

	wantA := 1.0/(60+1) + 1.0/(60+1)
	wantB := 1.0/(60+2) + 1.0/(60+31)
	assert.InDelta(t, wantA, fused[0].FusedScore, 1e-12)
	assert.InDelta(t, wantB, fused[1].FusedScore, 1e-12)
}
