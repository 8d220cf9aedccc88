package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// VerificationJobStatus represents the status of a batch verification job
type VerificationJobStatus string

const (
	JobStatusPending    VerificationJobStatus = "pending"
	JobStatusInProgress VerificationJobStatus = "in_progress"
	JobStatusCompleted  VerificationJobStatus = "completed"
	JobStatusFailed     VerificationJobStatus = "failed"
)

// VerificationStep tracks the progress of one claim inside a batch job.
type VerificationStep struct {
	ClaimID string `json:"claim_id"`
	Status  string `json:"status"` // "pending", "in_progress", "completed", "failed"
	Label   string `json:"label,omitempty"`
}

// VerificationSteps is a JSONB-backed list of per-claim steps.
type VerificationSteps []VerificationStep

// Value implements driver.Valuer for JSONB
func (v VerificationSteps) Value() (driver.Value, error) {
	return json.Marshal(v)
}

// Scan implements sql.Scanner for JSONB
func (v *VerificationSteps) Scan(value interface{}) error {
	if value == nil {
		*v = make(VerificationSteps, 0)
		return nil
	}

	var bytes []byte
	switch raw := value.(type) {
	case []byte:
		bytes = raw
	case string:
		bytes = []byte(raw)
	default:
		*v = make(VerificationSteps, 0)
		return nil
	}

	if len(bytes) == 0 {
		*v = make(VerificationSteps, 0)
		return nil
	}

	return json.Unmarshal(bytes, v)
}

// VerificationJob is a background batch verification run over all claims of
// one company/quarter.
type VerificationJob struct {
	ID           uuid.UUID             `json:"id"`
	Ticker       string                `json:"ticker"`
	Year         int                   `json:"year"`
	Quarter      int                   `json:"quarter"`
	Status       VerificationJobStatus `json:"status"`
	Steps        VerificationSteps     `json:"steps"`
	ErrorMessage *string               `json:"error_message,omitempty"`
	CreatedAt    time.Time             `json:"created_at"`
	UpdatedAt    time.Time             `json:"updated_at"`
	CompletedAt  *time.Time            `json:"completed_at,omitempty"`
}
