package repository

import (
	"context"
	"errors"
	"fmt"

	"claimverifier-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FactRepository handles database operations for financial facts
type FactRepository struct {
	db *pgxpool.Pool
}

// NewFactRepository creates a new fact repository
func NewFactRepository(db *pgxpool.Pool) *FactRepository {
	return &FactRepository{db: db}
}

// Upsert stores one authoritative metric value. Re-indexing the same filing
// overwrites the previous value for (ticker, year, quarter, metric), so a
// corrected filing replaces a stale one.
func (r *FactRepository) Upsert(ctx context.Context, fact *models.FinancialFact) error {
	query := `
		INSERT INTO financial_facts (
			ticker, year, quarter, metric, value, unit, source, filing_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (ticker, year, quarter, metric) DO UPDATE SET
			value = EXCLUDED.value,
			unit = EXCLUDED.unit,
			source = EXCLUDED.source,
			filing_date = EXCLUDED.filing_date
		RETURNING id, created_at`

	err := r.db.QueryRow(
		ctx, query,
		fact.Ticker,
		fact.Year,
		fact.Quarter,
		fact.Metric,
		fact.Value,
		fact.Unit,
		fact.Source,
		fact.FilingDate,
	).Scan(&fact.ID, &fact.CreatedAt)

	if err != nil {
		return fmt.Errorf("failed to upsert financial fact: %w", err)
	}
	return nil
}

// Lookup retrieves the value for one metric in one quarter. Returns
// ErrNotFound when the filing never reported that metric.
func (r *FactRepository) Lookup(ctx context.Context, ticker string, year, quarter int, metric string) (*models.FinancialFact, error) {
	fact := &models.FinancialFact{}
	query := `
		SELECT id, ticker, year, quarter, metric, value, unit, source, filing_date, created_at
		FROM financial_facts
		WHERE ticker = $1 AND year = $2 AND quarter = $3 AND metric = $4`

	err := r.db.QueryRow(ctx, query, ticker, year, quarter, metric).Scan(
		&fact.ID,
		&fact.Ticker,
		&fact.Year,
		&fact.Quarter,
		&fact.Metric,
		&fact.Value,
		&fact.Unit,
		&fact.Source,
		&fact.FilingDate,
		&fact.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load financial fact: %w", err)
	}

	return fact, nil
}

// ListByScope retrieves every fact for a company/quarter.
func (r *FactRepository) ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.FinancialFact, error) {
	query := `
		SELECT id, ticker, year, quarter, metric, value, unit, source, filing_date, created_at
		FROM financial_facts
		WHERE ticker = $1 AND year = $2 AND quarter = $3
		ORDER BY metric`

	rows, err := r.db.Query(ctx, query, ticker, year, quarter)
	if err != nil {
		return nil, fmt.Errorf("failed to query financial facts: %w", err)
	}
	defer rows.Close()

	var facts []models.FinancialFact
	for rows.Next() {
		var fact models.FinancialFact
		err := rows.Scan(
			&fact.ID,
			&fact.Ticker,
			&fact.Year,
			&fact.Quarter,
			&fact.Metric,
			&fact.Value,
			&fact.Unit,
			&fact.Source,
			&fact.FilingDate,
			&fact.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan financial fact: %w", err)
		}
		facts = append(facts, fact)
	}

	return facts, rows.Err()
}
