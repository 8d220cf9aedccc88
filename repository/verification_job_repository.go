package repository

import (
	"context"
	"errors"
	"time"

	"claimverifier-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// VerificationJobRepository handles database operations for batch jobs
type VerificationJobRepository struct {
	db *pgxpool.Pool
}

// NewVerificationJobRepository creates a new verification job repository
func NewVerificationJobRepository(db *pgxpool.Pool) *VerificationJobRepository {
	return &VerificationJobRepository{db: db}
}

// Create creates a new verification job
func (r *VerificationJobRepository) Create(ctx context.Context, job *models.VerificationJob) error {
	query := `
		INSERT INTO verification_jobs (
			ticker, year, quarter, status, steps, error_message
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(
		ctx, query,
		job.Ticker,
		job.Year,
		job.Quarter,
		job.Status,
		job.Steps,
		job.ErrorMessage,
	).Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt)

	return err
}

// GetByID retrieves a verification job by ID
func (r *VerificationJobRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.VerificationJob, error) {
	job := &models.VerificationJob{}
	query := `
		SELECT id, ticker, year, quarter, status, steps, error_message,
			created_at, updated_at, completed_at
		FROM verification_jobs
		WHERE id = $1`

	err := r.db.QueryRow(ctx, query, id).Scan(
		&job.ID,
		&job.Ticker,
		&job.Year,
		&job.Quarter,
		&job.Status,
		&job.Steps,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	// Ensure Steps is never nil (safeguard in case Scan didn't handle NULL properly)
	if job.Steps == nil {
		job.Steps = make(models.VerificationSteps, 0)
	}

	return job, nil
}

// GetLatestByScope retrieves the most recent job for a company/quarter
func (r *VerificationJobRepository) GetLatestByScope(ctx context.Context, ticker string, year, quarter int) (*models.VerificationJob, error) {
	job := &models.VerificationJob{}
	query := `
		SELECT id, ticker, year, quarter, status, steps, error_message,
			created_at, updated_at, completed_at
		FROM verification_jobs
		WHERE ticker = $1 AND year = $2 AND quarter = $3
		ORDER BY created_at DESC
		LIMIT 1`

	err := r.db.QueryRow(ctx, query, ticker, year, quarter).Scan(
		&job.ID,
		&job.Ticker,
		&job.Year,
		&job.Quarter,
		&job.Status,
		&job.Steps,
		&job.ErrorMessage,
		&job.CreatedAt,
		&job.UpdatedAt,
		&job.CompletedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	if job.Steps == nil {
		job.Steps = make(models.VerificationSteps, 0)
	}

	return job, nil
}

// UpdateStatus updates the status of a verification job
func (r *VerificationJobRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.VerificationJobStatus) error {
	query := `
		UPDATE verification_jobs SET
			status = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, status)
	return err
}

// UpdateProgress updates the per-claim step list of a verification job
func (r *VerificationJobRepository) UpdateProgress(ctx context.Context, id uuid.UUID, steps models.VerificationSteps) error {
	query := `
		UPDATE verification_jobs SET
			steps = $2,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, steps)
	return err
}

// Complete marks a verification job as completed
func (r *VerificationJobRepository) Complete(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	query := `
		UPDATE verification_jobs SET
			status = $2,
			completed_at = $3,
			updated_at = $3
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusCompleted, now)
	return err
}

// Fail marks a verification job as failed
func (r *VerificationJobRepository) Fail(ctx context.Context, id uuid.UUID, errorMessage string) error {
	query := `
		UPDATE verification_jobs SET
			status = $2,
			error_message = $3,
			updated_at = NOW()
		WHERE id = $1`

	_, err := r.db.Exec(ctx, query, id, models.JobStatusFailed, errorMessage)
	return err
}
