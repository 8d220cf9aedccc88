package repository

import (
	"context"
	"errors"
	"fmt"

	"claimverifier-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerdictRepository handles database operations for verdicts
type VerdictRepository struct {
	db *pgxpool.Pool
}

// NewVerdictRepository creates a new verdict repository
func NewVerdictRepository(db *pgxpool.Pool) *VerdictRepository {
	return &VerdictRepository{db: db}
}

// Upsert stores the verdict for a claim. The claim_id unique constraint
// guarantees at most one verdict per claim; concurrent re-verification of
// the same claim resolves to a single row at the database.
func (r *VerdictRepository) Upsert(ctx context.Context, verdict *models.Verdict) error {
	if !verdict.Label.Valid() {
		return fmt.Errorf("invalid verdict label %q", verdict.Label)
	}

	query := `
		INSERT INTO verdicts (
			claim_id, label, explanation, citations, actual_value,
			claimed_value, difference, misleading_flags, confidence, method
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (claim_id) DO UPDATE SET
			label = EXCLUDED.label,
			explanation = EXCLUDED.explanation,
			citations = EXCLUDED.citations,
			actual_value = EXCLUDED.actual_value,
			claimed_value = EXCLUDED.claimed_value,
			difference = EXCLUDED.difference,
			misleading_flags = EXCLUDED.misleading_flags,
			confidence = EXCLUDED.confidence,
			method = EXCLUDED.method,
			created_at = NOW()
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		verdict.ClaimID,
		verdict.Label,
		verdict.Explanation,
		verdict.Citations,
		verdict.ActualValue,
		verdict.ClaimedValue,
		verdict.Difference,
		verdict.MisleadingFlags,
		verdict.Confidence,
		verdict.Method,
	).Scan(&verdict.ID, &verdict.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert verdict: %w", err)
	}
	return nil
}

// GetByClaimID retrieves the verdict for a claim, if one exists.
func (r *VerdictRepository) GetByClaimID(ctx context.Context, claimID uuid.UUID) (*models.Verdict, error) {
	verdict := &models.Verdict{}
	query := `
		SELECT id, claim_id, label, explanation, citations, actual_value,
			claimed_value, difference, misleading_flags, confidence, method, created_at
		FROM verdicts
		WHERE claim_id = $1`

	err := r.db.QueryRow(ctx, query, claimID).Scan(
		&verdict.ID,
		&verdict.ClaimID,
		&verdict.Label,
		&verdict.Explanation,
		&verdict.Citations,
		&verdict.ActualValue,
		&verdict.ClaimedValue,
		&verdict.Difference,
		&verdict.MisleadingFlags,
		&verdict.Confidence,
		&verdict.Method,
		&verdict.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load verdict: %w", err)
	}

	return verdict, nil
}

// ListByScope retrieves every verdict for the claims of a company/quarter.
func (r *VerdictRepository) ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.Verdict, error) {
	query := `
		SELECT v.id, v.claim_id, v.label, v.explanation, v.citations, v.actual_value,
			v.claimed_value, v.difference, v.misleading_flags, v.confidence, v.method, v.created_at
		FROM verdicts v
		JOIN claims c ON c.id = v.claim_id
		WHERE c.ticker = $1 AND c.year = $2 AND c.quarter = $3
		ORDER BY c.created_at, c.id`

	rows, err := r.db.Query(ctx, query, ticker, year, quarter)
	if err != nil {
		return nil, fmt.Errorf("failed to query verdicts: %w", err)
	}
	defer rows.Close()

	var verdicts []models.Verdict
	for rows.Next() {
		var verdict models.Verdict
		err := rows.Scan(
			&verdict.ID,
			&verdict.ClaimID,
			&verdict.Label,
			&verdict.Explanation,
			&verdict.Citations,
			&verdict.ActualValue,
			&verdict.ClaimedValue,
			&verdict.Difference,
			&verdict.MisleadingFlags,
			&verdict.Confidence,
			&verdict.Method,
			&verdict.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan verdict: %w", err)
		}
		verdicts = append(verdicts, verdict)
	}

	return verdicts, rows.Err()
}
