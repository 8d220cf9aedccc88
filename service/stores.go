package service

import (
	"context"

	"claimverifier-backend/models"

	"github.com/google/uuid"
)

// Scope identifies one company/quarter. Every retrieval and verification
// operation is bounded to a single scope.
type Scope struct {
	Ticker  string
	Year    int
	Quarter int
}

// ClaimStore is the claim persistence surface the services depend on.
// Satisfied by repository.ClaimRepository.
type ClaimStore interface {
	Create(ctx context.Context, claim *models.Claim) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error)
	ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.Claim, error)
}

// ChunkStore is the filing-chunk persistence surface.
// Satisfied by repository.FilingChunkRepository.
type ChunkStore interface {
	Upsert(ctx context.Context, chunk *models.FilingChunk) (bool, error)
	SearchDense(ctx context.Context, ticker string, year, quarter int, embedding []float64, limit int) ([]models.FilingChunk, []float64, error)
	ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.FilingChunk, error)
	CountByScope(ctx context.Context, ticker string, year, quarter int) (int, error)
}

// FactStore is the financial-fact persistence surface.
// Satisfied by repository.FactRepository.
type FactStore interface {
	Upsert(ctx context.Context, fact *models.FinancialFact) error
	Lookup(ctx context.Context, ticker string, year, quarter int, metric string) (*models.FinancialFact, error)
}

// VerdictStore is the verdict persistence surface.
// Satisfied by repository.VerdictRepository.
type VerdictStore interface {
	Upsert(ctx context.Context, verdict *models.Verdict) error
	GetByClaimID(ctx context.Context, claimID uuid.UUID) (*models.Verdict, error)
	ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.Verdict, error)
}

// JobStore tracks batch verification jobs.
// Satisfied by repository.VerificationJobRepository.
type JobStore interface {
	Create(ctx context.Context, job *models.VerificationJob) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationJob, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.VerificationJobStatus) error
	UpdateProgress(ctx context.Context, id uuid.UUID, steps models.VerificationSteps) error
	Complete(ctx context.Context, id uuid.UUID) error
	Fail(ctx context.Context, id uuid.UUID, errorMessage string) error
}
