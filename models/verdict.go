package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VerdictLabel is the fixed outcome set for claim verification.
type VerdictLabel string

const (
	VerdictVerified     VerdictLabel = "VERIFIED"
	VerdictFalse        VerdictLabel = "FALSE"
	VerdictMisleading   VerdictLabel = "MISLEADING"
	VerdictUnverifiable VerdictLabel = "UNVERIFIABLE"
)

// Valid reports whether the label belongs to the fixed set. Model output
// carrying any other label is rejected, not stored.
func (l VerdictLabel) Valid() bool {
	switch l {
	case VerdictVerified, VerdictFalse, VerdictMisleading, VerdictUnverifiable:
		return true
	}
	return false
}

// VerificationMethod records which engine path produced a verdict.
type VerificationMethod string

const (
	MethodDeterministic VerificationMethod = "deterministic"
	MethodReasoning     VerificationMethod = "reasoning"
)

// Citation points at the filing chunk that grounded part of a verdict.
type Citation struct {
	ChunkID uuid.UUID `json:"chunk_id"`
	Quote   string    `json:"quote"`
}

// Citations is an ordered evidence list stored as JSONB.
type Citations []Citation

// Value implements driver.Valuer for JSONB
func (c Citations) Value() (driver.Value, error) {
	return json.Marshal(c)
}

// Scan implements sql.Scanner for JSONB
func (c *Citations) Scan(value interface{}) error {
	if value == nil {
		*c = make(Citations, 0)
		return nil
	}

	var bytes []byte
	switch raw := value.(type) {
	case []byte:
		bytes = raw
	case string:
		bytes = []byte(raw)
	default:
		*c = make(Citations, 0)
		return nil
	}

	if len(bytes) == 0 {
		*c = make(Citations, 0)
		return nil
	}

	return json.Unmarshal(bytes, c)
}

// StringList is a JSONB-backed list of strings (misleading flags).
type StringList []string

// Value implements driver.Valuer for JSONB
func (s StringList) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner for JSONB
func (s *StringList) Scan(value interface{}) error {
	if value == nil {
		*s = make(StringList, 0)
		return nil
	}

	var bytes []byte
	switch raw := value.(type) {
	case []byte:
		bytes = raw
	case string:
		bytes = []byte(raw)
	default:
		*s = make(StringList, 0)
		return nil
	}

	if len(bytes) == 0 {
		*s = make(StringList, 0)
		return nil
	}

	return json.Unmarshal(bytes, s)
}

// Verdict is the verification outcome for exactly one claim. A claim has at
// most one live verdict; re-verification replaces it atomically.
type Verdict struct {
	ID              int64              `json:"id"`
	ClaimID         uuid.UUID          `json:"claim_id"`
	Label           VerdictLabel       `json:"label"`
	Explanation     string             `json:"explanation"`
	Citations       Citations          `json:"citations"`
	ActualValue     *float64           `json:"actual_value,omitempty"`
	ClaimedValue    float64            `json:"claimed_value"`
	Difference      *float64           `json:"difference,omitempty"`
	MisleadingFlags StringList         `json:"misleading_flags"`
	Confidence      float64            `json:"confidence"`
	Method          VerificationMethod `json:"method"`
	CreatedAt       time.Time          `json:"created_at"`
}
