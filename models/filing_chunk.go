package models

import (
	"crypto/sha256"
	"database/sql/driver"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ChunkType distinguishes structured statement chunks from narrative text.
type ChunkType string

const (
	ChunkTypeFinancial ChunkType = "financial"
	ChunkTypeText      ChunkType = "text"
)

// SparseVector is a term-weighted representation of chunk text, stored as
// JSONB. Weights are L2-normalized log term frequencies.
type SparseVector map[string]float64

// Value implements driver.Valuer for JSONB
func (v SparseVector) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner for JSONB
func (v *SparseVector) Scan(value interface{}) error {
	if value == nil {
		*v = make(SparseVector)
		return nil
	}

	var bytes []byte
	switch raw := value.(type) {
	case []byte:
		bytes = raw
	case string:
		bytes = []byte(raw)
	default:
		*v = make(SparseVector)
		return nil
	}

	if len(bytes) == 0 {
		*v = make(SparseVector)
		return nil
	}

	return json.Unmarshal(bytes, v)
}

// FilingChunk is one indexed unit of filing content: a narrative slice or a
// single statement row rendered as text. Chunks are immutable; re-indexing
// the same filing is deduplicated on
// (ticker, year, quarter, section, content_hash).
type FilingChunk struct {
	ID            uuid.UUID    `json:"id"`
	Ticker        string       `json:"ticker"`
	Year          int          `json:"year"`
	Quarter       int          `json:"quarter"`
	Section       string       `json:"section"`
	ChunkType     ChunkType    `json:"chunk_type"`
	MetricType    *string      `json:"metric_type,omitempty"`  // set for financial chunks
	MetricValue   *float64     `json:"metric_value,omitempty"` // absolute units, financial chunks only
	SourceType    string       `json:"source_type"`            // "10-Q", "10-K"
	Text          string       `json:"text"`
	ContentHash   string       `json:"content_hash"`
	SparseVec     SparseVector `json:"sparse_vec"`
	DenseVec      []float64    `json:"dense_vec,omitempty"`
	SequenceIndex int          `json:"sequence_index"`
	CreatedAt     time.Time    `json:"created_at"`
}

// HashContent computes the dedup hash for chunk text.
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// FinancialFact is one authoritative metric value from a filing, keyed by
// (ticker, year, quarter, metric). The deterministic comparator reads these.
type FinancialFact struct {
	ID         int64      `json:"id"`
	Ticker     string     `json:"ticker"`
	Year       int        `json:"year"`
	Quarter    int        `json:"quarter"`
	Metric     string     `json:"metric"`
	Value      float64    `json:"value"` // absolute units
	Unit       string     `json:"unit"`
	Source     string     `json:"source"`
	FilingDate *time.Time `json:"filing_date,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EvidenceCandidate is one retrieval hit for a claim. Candidates are
// ephemeral: they exist for the duration of a single verification call and
// are never persisted.
type EvidenceCandidate struct {
	Chunk       FilingChunk `json:"chunk"`
	SparseRank  int         `json:"sparse_rank"` // 0 when absent from the sparse list
	DenseRank   int         `json:"dense_rank"`  // 0 when absent from the dense list
	SparseScore float64     `json:"sparse_score"`
	DenseScore  float64     `json:"dense_score"`
	FusedScore  float64     `json:"fused_score"`
	RerankScore *float64    `json:"rerank_score,omitempty"`
}
