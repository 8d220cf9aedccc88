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

// ErrNotFound is returned when a primary-key lookup matches nothing.
var ErrNotFound = errors.New("record not found")

// ClaimRepository handles database operations for claims
type ClaimRepository struct {
	db *pgxpool.Pool
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *pgxpool.Pool) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// Create inserts a claim. Claims are immutable; there is no update path.
func (r *ClaimRepository) Create(ctx context.Context, claim *models.Claim) error {
	query := `
		INSERT INTO claims (
			id, ticker, year, quarter, speaker, metric, value, unit, scale,
			period, is_gaap, is_forward_looking, hedged, raw_text, context,
			extraction_method, confidence
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17
		) RETURNING created_at`

	err := r.db.QueryRow(
		ctx, query,
		claim.ID,
		claim.Ticker,
		claim.Year,
		claim.Quarter,
		claim.Speaker,
		claim.Metric,
		claim.Value,
		claim.Unit,
		claim.Scale,
		claim.Period,
		claim.IsGAAP,
		claim.IsForwardLooking,
		claim.Hedged,
		claim.RawText,
		claim.Context,
		claim.ExtractionMethod,
		claim.Confidence,
	).Scan(&claim.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to insert claim: %w", err)
	}
	return nil
}

// GetByID retrieves a claim by ID
func (r *ClaimRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Claim, error) {
	claim := &models.Claim{}
	query := `
		SELECT id, ticker, year, quarter, speaker, metric, value, unit, scale,
			period, is_gaap, is_forward_looking, hedged, raw_text, context,
			extraction_method, confidence, created_at
		FROM claims
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&claim.ID,
		&claim.Ticker,
		&claim.Year,
		&claim.Quarter,
		&claim.Speaker,
		&claim.Metric,
		&claim.Value,
		&claim.Unit,
		&claim.Scale,
		&claim.Period,
		&claim.IsGAAP,
		&claim.IsForwardLooking,
		&claim.Hedged,
		&claim.RawText,
		&claim.Context,
		&claim.ExtractionMethod,
		&claim.Confidence,
		&claim.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load claim: %w", err)
	}

	return claim, nil
}

// ListByScope retrieves all claims for a company/quarter in extraction order.
func (r *ClaimRepository) ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.Claim, error) {
	query := `
		SELECT id, ticker, year, quarter, speaker, metric, value, unit, scale,
			period, is_gaap, is_forward_looking, hedged, raw_text, context,
			extraction_method, confidence, created_at
		FROM claims
		WHERE ticker = $1 AND year = $2 AND quarter = $3
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, ticker, year, quarter)
	if err != nil {
		return nil, fmt.Errorf("failed to query claims: %w", err)
	}
	defer rows.Close()

	var claims []models.Claim
	for rows.Next() {
		var claim models.Claim
		err := rows.Scan(
			&claim.ID,
			&claim.Ticker,
			&claim.Year,
			&claim.Quarter,
			&claim.Speaker,
			&claim.Metric,
			&claim.Value,
			&claim.Unit,
			&claim.Scale,
			&claim.Period,
			&claim.IsGAAP,
			&claim.IsForwardLooking,
			&claim.Hedged,
			&claim.RawText,
			&claim.Context,
			&claim.ExtractionMethod,
			&claim.Confidence,
			&claim.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		claims = append(claims, claim)
	}

	return claims, rows.Err()
}
