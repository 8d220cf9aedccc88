package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"claimverifier-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// FilingChunkRepository handles database operations for filing chunks
type FilingChunkRepository struct {
	db *pgxpool.Pool
}

// NewFilingChunkRepository creates a new filing chunk repository
func NewFilingChunkRepository(db *pgxpool.Pool) *FilingChunkRepository {
	return &FilingChunkRepository{db: db}
}

// formatVector formats an embedding vector as a string for pgx
func formatVector(embedding []float64) string {
	if len(embedding) == 0 {
		return "[]"
	}
	var parts []string
	for _, v := range embedding {
		parts = append(parts, fmt.Sprintf("%.6f", v))
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Upsert inserts a chunk unless an identical one already exists for the same
// scope and section. Returns true when a new row was inserted, false when the
// chunk was a duplicate. The dedup key is
// (ticker, year, quarter, section, content_hash).
func (r *FilingChunkRepository) Upsert(ctx context.Context, chunk *models.FilingChunk) (bool, error) {
	query := `
		INSERT INTO filing_chunks (
			id, ticker, year, quarter, section, chunk_type, metric_type,
			metric_value, source_type, chunk_text, content_hash, sparse_vec,
			dense_embedding, sequence_index
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13::vector, $14
		)
		ON CONFLICT (ticker, year, quarter, section, content_hash) DO NOTHING
		RETURNING created_at`

	var denseStr interface{}
	if len(chunk.DenseVec) > 0 {
		denseStr = formatVector(chunk.DenseVec)
	}

	err := r.db.QueryRow(
		ctx, query,
		chunk.ID,
		chunk.Ticker,
		chunk.Year,
		chunk.Quarter,
		chunk.Section,
		chunk.ChunkType,
		chunk.MetricType,
		chunk.MetricValue,
		chunk.SourceType,
		chunk.Text,
		chunk.ContentHash,
		chunk.SparseVec,
		denseStr,
		chunk.SequenceIndex,
	).Scan(&chunk.CreatedAt)

	if err != nil {
		// DO NOTHING makes the INSERT return no row for duplicates.
		if errors.Is(err, pgx.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("failed to upsert filing chunk: %w", err)
	}
	return true, nil
}

const chunkColumns = `
	id, ticker, year, quarter, section, chunk_type, metric_type,
	metric_value, source_type, chunk_text, content_hash, sparse_vec,
	sequence_index, created_at`

func scanChunk(row interface{ Scan(...interface{}) error }, chunk *models.FilingChunk) error {
	return row.Scan(
		&chunk.ID,
		&chunk.Ticker,
		&chunk.Year,
		&chunk.Quarter,
		&chunk.Section,
		&chunk.ChunkType,
		&chunk.MetricType,
		&chunk.MetricValue,
		&chunk.SourceType,
		&chunk.Text,
		&chunk.ContentHash,
		&chunk.SparseVec,
		&chunk.SequenceIndex,
		&chunk.CreatedAt,
	)
}

// SearchDense runs a cosine-distance vector search scoped to one
// company/quarter. Results arrive nearest first; score is 1 - distance.
func (r *FilingChunkRepository) SearchDense(
	ctx context.Context,
	ticker string,
	year, quarter int,
	embedding []float64,
	limit int,
) ([]models.FilingChunk, []float64, error) {
	if len(embedding) == 0 {
		return nil, nil, fmt.Errorf("query embedding is empty")
	}

	vectorStr := formatVector(embedding)

	query := fmt.Sprintf(`
		SELECT %s,
			1 - (dense_embedding <=> $4::vector) AS score
		FROM filing_chunks
		WHERE ticker = $1 AND year = $2 AND quarter = $3
			AND dense_embedding IS NOT NULL
		ORDER BY dense_embedding <=> $4::vector
		LIMIT $5`, chunkColumns)

	rows, err := r.db.Query(ctx, query, ticker, year, quarter, vectorStr, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query filing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.FilingChunk
	var scores []float64
	for rows.Next() {
		var chunk models.FilingChunk
		var score float64
		err := rows.Scan(
			&chunk.ID,
			&chunk.Ticker,
			&chunk.Year,
			&chunk.Quarter,
			&chunk.Section,
			&chunk.ChunkType,
			&chunk.MetricType,
			&chunk.MetricValue,
			&chunk.SourceType,
			&chunk.Text,
			&chunk.ContentHash,
			&chunk.SparseVec,
			&chunk.SequenceIndex,
			&chunk.CreatedAt,
			&score,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan filing chunk: %w", err)
		}
		chunks = append(chunks, chunk)
		scores = append(scores, score)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("error iterating filing chunks: %w", err)
	}

	return chunks, scores, nil
}

// ListByScope loads every chunk for a company/quarter, in filing order. The
// sparse scorer iterates these in memory.
func (r *FilingChunkRepository) ListByScope(ctx context.Context, ticker string, year, quarter int) ([]models.FilingChunk, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM filing_chunks
		WHERE ticker = $1 AND year = $2 AND quarter = $3
		ORDER BY section, sequence_index`, chunkColumns)

	rows, err := r.db.Query(ctx, query, ticker, year, quarter)
	if err != nil {
		return nil, fmt.Errorf("failed to query filing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.FilingChunk
	for rows.Next() {
		var chunk models.FilingChunk
		if err := scanChunk(rows, &chunk); err != nil {
			return nil, fmt.Errorf("failed to scan filing chunk: %w", err)
		}
		chunks = append(chunks, chunk)
	}

	return chunks, rows.Err()
}

// CountByScope returns how many chunks exist for a company/quarter.
func (r *FilingChunkRepository) CountByScope(ctx context.Context, ticker string, year, quarter int) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM filing_chunks WHERE ticker = $1 AND year = $2 AND quarter = $3`
	if err := r.db.QueryRow(ctx, query, ticker, year, quarter).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count filing chunks: %w", err)
	}
	return count, nil
}
