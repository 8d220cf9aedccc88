package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"claimverifier-backend/llm"
	"claimverifier-backend/models"
	"claimverifier-backend/storage"
	"claimverifier-backend/worker"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// IndexService turns a filing document into searchable evidence: financial
// facts for the deterministic comparator, financial chunks (one per metric)
// and narrative text chunks for hybrid retrieval, plus an archived copy of
// the raw document.
type IndexService struct {
	chunks   ChunkStore
	facts    FactStore
	embedder llm.Embedder
	archive  storage.Archive
	chunker  *Chunker
	workers  int
	logger   zerolog.Logger
}

// IndexOption configures the index service.
type IndexOption func(*IndexService)

// WithIndexWorkers sets embedding concurrency.
func WithIndexWorkers(n int) IndexOption {
	return func(s *IndexService) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithIndexChunker overrides the default chunker.
func WithIndexChunker(c *Chunker) IndexOption {
	return func(s *IndexService) {
		if c != nil {
			s.chunker = c
		}
	}
}

// WithIndexArchive attaches a raw-document archive. Without one, indexing
// still works but raw documents are not preserved.
func WithIndexArchive(a storage.Archive) IndexOption {
	return func(s *IndexService) {
		s.archive = a
	}
}

// WithIndexLogger attaches a logger.
func WithIndexLogger(logger zerolog.Logger) IndexOption {
	return func(s *IndexService) {
		s.logger = logger
	}
}

// NewIndexService creates an index service.
func NewIndexService(chunks ChunkStore, facts FactStore, embedder llm.Embedder, opts ...IndexOption) *IndexService {
	s := &IndexService{
		chunks:   chunks,
		facts:    facts,
		embedder: embedder,
		chunker:  NewChunker(1800),
		workers:  4,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexStats summarizes one indexing run.
type IndexStats struct {
	FactsStored     int `json:"facts_stored"`
	ChunksInserted  int `json:"chunks_inserted"`
	ChunksDuplicate int `json:"chunks_duplicate"`
	EmbedFailures   int `json:"embed_failures"`
}

// IndexFiling ingests one filing document. The operation is idempotent:
// re-indexing the same document inserts nothing new and reports every chunk
// as a duplicate.
func (s *IndexService) IndexFiling(ctx context.Context, doc *models.FilingDocument) (*IndexStats, error) {
	if doc == nil {
		return nil, fmt.Errorf("filing document is nil")
	}
	if doc.Ticker == "" || doc.Year == 0 || doc.Quarter < 1 || doc.Quarter > 4 {
		return nil, fmt.Errorf("filing document has invalid scope %s %d Q%d", doc.Ticker, doc.Year, doc.Quarter)
	}

	stats := &IndexStats{}

	if err := s.archiveDocument(ctx, doc); err != nil {
		// Archiving is best effort; the index is the system of record.
		s.logger.Warn().Err(err).Msg("failed to archive filing document")
	}

	if err := s.storeFacts(ctx, doc, stats); err != nil {
		return nil, err
	}

	chunks := s.buildChunks(doc)
	if err := s.embedAndUpsert(ctx, chunks, stats); err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("ticker", doc.Ticker).
		Int("year", doc.Year).
		Int("quarter", doc.Quarter).
		Int("facts", stats.FactsStored).
		Int("inserted", stats.ChunksInserted).
		Int("duplicates", stats.ChunksDuplicate).
		Msg("filing indexed")

	return stats, nil
}

func (s *IndexService) archiveDocument(ctx context.Context, doc *models.FilingDocument) error {
	if s.archive == nil {
		return nil
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal filing document: %w", err)
	}
	key := storage.ArchiveKey{
		Ticker:  doc.Ticker,
		Year:    doc.Year,
		Quarter: doc.Quarter,
		Kind:    storage.KindFiling,
		Source:  doc.Source,
	}
	_, err = s.archive.Put(ctx, key, bytes.NewReader(raw))
	return err
}

// storeFacts persists statement rows as authoritative facts, then derives
// the computed metrics the comparator understands (free cash flow and the
// margins) from what the filing reported.
func (s *IndexService) storeFacts(ctx context.Context, doc *models.FilingDocument, stats *IndexStats) error {
	values := make(map[string]float64, len(doc.Statements))

	var filingDate *time.Time
	if !doc.FilingDate.IsZero() {
		fd := doc.FilingDate
		filingDate = &fd
	}

	for _, row := range doc.Statements {
		metric := NormalizeMetric(row.Metric)
		fact := &models.FinancialFact{
			Ticker:     doc.Ticker,
			Year:       doc.Year,
			Quarter:    doc.Quarter,
			Metric:     metric,
			Value:      row.Value,
			Unit:       row.Unit,
			Source:     doc.Source,
			FilingDate: filingDate,
		}
		if err := s.facts.Upsert(ctx, fact); err != nil {
			return fmt.Errorf("failed to store fact %s: %w", metric, err)
		}
		values[metric] = row.Value
		stats.FactsStored++
	}

	for _, derived := range deriveMetrics(values) {
		fact := &models.FinancialFact{
			Ticker:     doc.Ticker,
			Year:       doc.Year,
			Quarter:    doc.Quarter,
			Metric:     derived.metric,
			Value:      derived.value,
			Unit:       derived.unit,
			Source:     doc.Source + " (derived)",
			FilingDate: filingDate,
		}
		if err := s.facts.Upsert(ctx, fact); err != nil {
			return fmt.Errorf("failed to store derived fact %s: %w", derived.metric, err)
		}
		stats.FactsStored++
	}

	return nil
}

type derivedMetric struct {
	metric string
	value  float64
	unit   string
}

// deriveMetrics computes metrics management quotes but filings rarely state
// directly. Skipped when the inputs are missing.
func deriveMetrics(values map[string]float64) []derivedMetric {
	var out []derivedMetric

	has := func(names ...string) bool {
		for _, n := range names {
			if _, ok := values[n]; !ok {
				return false
			}
		}
		return true
	}

	if _, exists := values["free_cash_flow"]; !exists && has("operating_cash_flow", "capex") {
		out = append(out, derivedMetric{"free_cash_flow", values["operating_cash_flow"] - values["capex"], "USD"})
	}
	if _, exists := values["operating_margin"]; !exists && has("operating_income", "revenue") && values["revenue"] != 0 {
		out = append(out, derivedMetric{"operating_margin", 100 * values["operating_income"] / values["revenue"], "%"})
	}
	if _, exists := values["gross_margin"]; !exists && has("gross_profit", "revenue") && values["revenue"] != 0 {
		out = append(out, derivedMetric{"gross_margin", 100 * values["gross_profit"] / values["revenue"], "%"})
	}

	return out
}

// buildChunks renders one financial chunk per statement row plus narrative
// chunks from each filing section.
func (s *IndexService) buildChunks(doc *models.FilingDocument) []models.FilingChunk {
	var chunks []models.FilingChunk
	seq := 0

	for _, row := range doc.Statements {
		metric := NormalizeMetric(row.Metric)
		text := fmt.Sprintf("Company: %s | Period: Q%d %d | Form: %s\n%s: %s",
			doc.Ticker, doc.Quarter, doc.Year, doc.Source, metric, formatMetricValue(row.Value, row.Unit))

		value := row.Value
		chunks = append(chunks, models.FilingChunk{
			ID:            uuid.New(),
			Ticker:        doc.Ticker,
			Year:          doc.Year,
			Quarter:       doc.Quarter,
			Section:       "statements",
			ChunkType:     models.ChunkTypeFinancial,
			MetricType:    &metric,
			MetricValue:   &value,
			SourceType:    doc.Source,
			Text:          text,
			ContentHash:   models.HashContent(text),
			SparseVec:     Vectorize(text),
			SequenceIndex: seq,
		})
		seq++
	}

	for _, section := range doc.Sections {
		header := fmt.Sprintf("Company: %s | Period: Q%d %d | Section: %s\n", doc.Ticker, doc.Quarter, doc.Year, section.Name)
		for _, piece := range s.chunker.Split(section.Text) {
			text := header + piece
			chunks = append(chunks, models.FilingChunk{
				ID:            uuid.New(),
				Ticker:        doc.Ticker,
				Year:          doc.Year,
				Quarter:       doc.Quarter,
				Section:       section.Name,
				ChunkType:     models.ChunkTypeText,
				SourceType:    doc.Source,
				Text:          text,
				ContentHash:   models.HashContent(text),
				SparseVec:     Vectorize(text),
				SequenceIndex: seq,
			})
			seq++
		}
	}

	return chunks
}

func formatMetricValue(value float64, unit string) string {
	switch {
	case unit == "%" || strings.Contains(unit, "ratio"):
		return fmt.Sprintf("%.2f%%", value)
	case math.Abs(value) >= 1e6:
		return fmt.Sprintf("$%.0f", value)
	case math.Abs(value) < 100:
		return fmt.Sprintf("%.2f", value)
	default:
		return fmt.Sprintf("$%.0f", value)
	}
}

type embedJob struct {
	service *IndexService
	chunk   *models.FilingChunk
}

type embedResult struct {
	chunk *models.FilingChunk
	err   error
}

func (r *embedResult) Err() error { return r.err }

func (j *embedJob) Run(ctx context.Context) worker.Result {
	vec, err := j.service.embedder.Embed(ctx, j.chunk.Text, llm.TaskRetrievalDocument)
	if err != nil {
		return &embedResult{chunk: j.chunk, err: fmt.Errorf("embed chunk %s: %w", j.chunk.ID, err)}
	}
	j.chunk.DenseVec = vec
	return &embedResult{chunk: j.chunk}
}

// embedAndUpsert densifies chunks through the worker pool and writes them.
// A chunk whose embedding fails is still indexed: sparse retrieval covers
// it, and the failure is counted.
func (s *IndexService) embedAndUpsert(ctx context.Context, chunks []models.FilingChunk, stats *IndexStats) error {
	if len(chunks) == 0 {
		return nil
	}

	pool := worker.NewPool(s.workers)
	pool.Start(ctx)

	for i := range chunks {
		if err := pool.Submit(ctx, &embedJob{service: s, chunk: &chunks[i]}); err != nil {
			pool.Drain()
			return fmt.Errorf("failed to submit embed job: %w", err)
		}
	}

	for _, r := range pool.Drain() {
		er := r.(*embedResult)
		if er.err != nil {
			stats.EmbedFailures++
			s.logger.Warn().Err(er.err).Msg("chunk embedding failed, indexing sparse-only")
		}
		inserted, err := s.chunks.Upsert(ctx, er.chunk)
		if err != nil {
			return fmt.Errorf("failed to upsert chunk: %w", err)
		}
		if inserted {
			stats.ChunksInserted++
		} else {
			stats.ChunksDuplicate++
		}
	}

	return nil
}
