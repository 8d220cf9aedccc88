package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"claimverifier-backend/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newVerifyFixture(t *testing.T) (*VerificationService, *fakeClaimStore, *fakeFactStore, *fakeChunkStore, *fakeVerdictStore, *fakeProvider) {
	t.Helper()
	claims := newFakeClaimStore()
	facts := newFakeFactStore()
	chunks := newFakeChunkStore()
	verdicts := newFakeVerdictStore()
	verdicts.claims = claims
	provider := &fakeProvider{}

	comparator := NewComparator(facts, chunks, testTolerances())
	retrieval := NewRetrievalService(chunks, &fakeEmbedder{})
	svc := NewVerificationService(provider, comparator, retrieval, claims, verdicts)

	return svc, claims, facts, chunks, verdicts, provider
}

func storeClaim(t *testing.T, store *fakeClaimStore, claim *models.Claim) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), claim))
}

func TestVerifyClaim_DeterministicNeverCallsModel(t *testing.T) {
	svc, claims, facts, _, verdicts, provider := newVerifyFixture(t)
	facts.put("AAPL", 2024, 4, "revenue", 10.02e9)

	claim := revenueClaim(10, models.ScaleBillions)
	storeClaim(t, claims, claim)

	verdict, err := svc.VerifyClaim(context.Background(), claim.ID)
	require.NoError(t, err)

	assert.Equal(t, models.VerdictVerified, verdict.Label)
	assert.Equal(t, models.MethodDeterministic, verdict.Method)
	assert.Zero(t, provider.callCount(), "deterministic path must not touch the model")
	assert.Equal(t, 1, verdicts.count())
}

func TestVerifyClaim_NoEvidenceIsUnverifiable(t *testing.T) {
	svc, claims, _, _, _, provider := newVerifyFixture(t)

	claim := &models.Claim{
		ID: uuid.New(), Ticker: "AAPL", Year: 2024, Quarter: 4,
		Metric: "customer_satisfaction", Value: 98, Unit: "%", Scale: models.ScaleOnes,
		Period: models.PeriodQuarterly, RawText: "Customer satisfaction reached 98%.",
	}
	storeClaim(t, claims, claim)

	verdict, err := svc.VerifyClaim(context.Background(), claim.ID)
	require.NoError(t, err)

	assert.Equal(t, models.VerdictUnverifiable, verdict.Label)
	assert.Zero(t, verdict.Confidence)
	assert.Zero(t, provider.callCount(), "no evidence means no model call")
}

func TestVerifyClaim_ForwardLookingIsUnverifiable(t *testing.T) {
	svc, claims, facts, _, _, provider := newVerifyFixture(t)
	facts.put("AAPL", 2024, 4, "revenue", 10e9)

	claim := revenueClaim(10, models.ScaleBillions)
	claim.IsForwardLooking = true
	claim.RawText = "We expect revenue of ten billion next quarter."
	storeClaim(t, claims, claim)

	verdict, err := svc.VerifyClaim(context.Background(), claim.ID)
	require.NoError(t, err)

	assert.Equal(t, models.VerdictUnverifiable, verdict.Label)
	assert.Zero(t, provider.callCount())
}

func TestVerifyClaim_ReasoningPath(t *testing.T) {
	svc, claims, _, chunks, _, provider := newVerifyFixture(t)

	chunk := seedChunk(t, chunks, "AAPL", 2024, 4, "Gross margin commentary: margin improved on services mix to 46.2 percent")
	provider.responses = []string{fmt.Sprintf(`{
		"verdict": "VERIFIED",
		"actual_value": 46.2,
		"claimed_value": 46.0,
		"difference": 0.2,
		"explanation": "The filing states gross margin of 46.2 percent.",
		"misleading_flags": [],
		"confidence": "high",
		"citations": [{"chunk_id": %q, "quote": "margin improved on services mix to 46.2 percent"}]
	}`, chunk.ID)}

	claim := &models.Claim{
		ID: uuid.New(), Ticker: "AAPL", Year: 2024, Quarter: 4,
		Metric: "services_mix", Value: 46, Unit: "%", Scale: models.ScaleOnes,
		Period: models.PeriodQuarterly, RawText: "Margin improved to about 46 percent.",
	}
	storeClaim(t, claims, claim)

	verdict, err := svc.VerifyClaim(context.Background(), claim.ID)
	require.NoError(t, err)

	assert.Equal(t, models.VerdictVerified, verdict.Label)
	assert.Equal(t, models.MethodReasoning, verdict.Method)
	assert.Equal(t, 1, provider.callCount())
	require.Len(t, verdict.Citations, 1)
	assert.Equal(t, chunk.ID, verdict.Citations[0].ChunkID)
}

func TestVerifyClaim_RejectsForeignCitations(t *testing.T) {
	svc, claims, _, chunks, _, provider := newVerifyFixture(t)

	seedChunk(t, chunks, "AAPL", 2024, 4, "narrative text about segment performance")
	provider.responses = []string{fmt.Sprintf(`{
		"verdict": "FALSE",
		"explanation": "Numbers do not match.",
		"confidence": "high",
		"citations": [{"chunk_id": %q, "quote": "fabricated"}]
	}`, uuid.New())}

	claim := &models.Claim{
		ID: uuid.New(), Ticker: "AAPL", Year: 2024, Quarter: 4,
		Metric: "segment_detail", Value: 5, Unit: "%", Scale: models.ScaleOnes,
		Period: models.PeriodQuarterly, RawText: "Segment grew 5 percent.",
	}
	storeClaim(t, claims, claim)

	verdict, err := svc.VerifyClaim(context.Background(), claim.ID)
	require.NoError(t, err)

	// A decisive label with no surviving citations is downgraded.
	assert.Equal(t, models.VerdictUnverifiable, verdict.Label)
	assert.Empty(t, verdict.Citations)
}

func TestVerifyClaim_ModelFailureFallsBackToUnverifiable(t *testing.T) {
	svc, claims, _, chunks, verdicts, provider := newVerifyFixture(t)

	seedChunk(t, chunks, "AAPL", 2024, 4, "some evidence text about revenue details")
	provider.err = errors.New("model timed out")

	claim := &models.Claim{
		ID: uuid.New(), Ticker: "AAPL", Year: 2024, Quarter: 4,
		Metric: "revenue_detail", Value: 5, Unit: "%", Scale: models.ScaleOnes,
		Period: models.PeriodQuarterly, RawText: "Detail grew 5 percent.",
	}
	storeClaim(t, claims, claim)

	verdict, err := svc.VerifyClaim(context.Background(), claim.ID)
	require.NoError(t, err, "model failure must not surface as an operation error")

	assert.Equal(t, models.VerdictUnverifiable, verdict.Label)
	assert.Equal(t, 1, verdicts.count())
}

func TestVerifyClaim_UnknownLabelFallsBackToUnverifiable(t *testing.T) {
	svc, claims, _, chunks, _, provider := newVerifyFixture(t)

	seedChunk(t, chunks, "AAPL", 2024, 4, "margin evidence text for the quarter")
	provider.responses = []string{`{"verdict": "PROBABLY_TRUE", "explanation": "eh", "confidence": "low"}`}

	claim := &models.Claim{
		ID: uuid.New(), Ticker: "AAPL", Year: 2024, Quarter: 4,
		Metric: "margin_detail", Value: 30, Unit: "%", Scale: models.ScaleOnes,
		Period: models.PeriodQuarterly, RawText: "Margins were about 30 percent.",
	}
	storeClaim(t, claims, claim)

	verdict, err := svc.VerifyClaim(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictUnverifiable, verdict.Label)
}

func TestVerifyClaim_ConcurrentReverificationSingleVerdict(t *testing.T) {
	svc, claims, facts, _, verdicts, _ := newVerifyFixture(t)
	facts.put("AAPL", 2024, 4, "revenue", 10e9)

	claim := revenueClaim(10, models.ScaleBillions)
	storeClaim(t, claims, claim)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyClaim(context.Background(), claim.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, verdicts.count(), "re-verification must never produce a second verdict row")

	stored, err := verdicts.GetByClaimID(context.Background(), claim.ID)
	require.NoError(t, err)
	assert.Equal(t, models.VerdictVerified, stored.Label)
}

func TestVerifyClaim_ReleasesClaimLocks(t *testing.T) {
	svc, claims, facts, _, _, _ := newVerifyFixture(t)
	facts.put("AAPL", 2024, 4, "revenue", 10e9)

	claim := revenueClaim(10, models.ScaleBillions)
	storeClaim(t, claims, claim)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.VerifyClaim(context.Background(), claim.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	svc.mu.Lock()
	remaining := len(svc.claimLocks)
	svc.mu.Unlock()
	assert.Zero(t, remaining, "per-claim locks must be evicted once released")
}

func TestProcessBatch_MixedClaims(t *testing.T) {
	svc, claims, facts, _, verdicts, _ := newVerifyFixture(t)
	facts.put("AAPL", 2024, 4, "revenue", 10e9)
	facts.put("AAPL", 2024, 4, "eps", 1.64)

	good := revenueClaim(10, models.ScaleBillions)
	storeClaim(t, claims, good)

	bad := &models.Claim{
		ID: uuid.New(), Ticker: "AAPL", Year: 2024, Quarter: 4,
		Metric: "eps", Value: 2.00, Unit: "USD/share", Scale: models.ScaleOnes,
		Period: models.PeriodQuarterly, RawText: "EPS was $2.00.",
	}
	storeClaim(t, claims, bad)

	unverifiable := &models.Claim{
		ID: uuid.New(), Ticker: "AAPL", Year: 2024, Quarter: 4,
		Metric: "customer_satisfaction", Value: 98, Unit: "%", Scale: models.ScaleOnes,
		Period: models.PeriodQuarterly, RawText: "Satisfaction hit 98%.",
	}
	storeClaim(t, claims, unverifiable)

	result, err := svc.ProcessBatch(context.Background(), Scope{Ticker: "AAPL", Year: 2024, Quarter: 4})
	require.NoError(t, err)

	assert.Len(t, result.Verdicts, 3)
	assert.Zero(t, result.Failed)
	assert.Equal(t, 3, verdicts.count())

	labels := map[models.VerdictLabel]int{}
	for _, v := range result.Verdicts {
		labels[v.Label]++
	}
	assert.Equal(t, 1, labels[models.VerdictVerified])
	assert.Equal(t, 1, labels[models.VerdictFalse])
	assert.Equal(t, 1, labels[models.VerdictUnverifiable])
}

func TestProcessBatch_EmptyScope(t *testing.T) {
	svc, _, _, _, _, _ := newVerifyFixture(t)

	result, err := svc.ProcessBatch(context.Background(), Scope{Ticker: "NONE", Year: 2024, Quarter: 1})
	require.NoError(t, err)
	assert.Empty(t, result.Verdicts)
}
