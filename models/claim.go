package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Scale represents the magnitude a spoken figure was stated in.
// "$1.2B" is stored as Value=1.2, Scale=billions.
type Scale string

const (
	ScaleOnes      Scale = "ones"
	ScaleThousands Scale = "thousands"
	ScaleMillions  Scale = "millions"
	ScaleBillions  Scale = "billions"
)

// Multiplier returns the factor that converts a scaled value to absolute units.
func (s Scale) Multiplier() float64 {
	switch s {
	case ScaleThousands:
		return 1e3
	case ScaleMillions:
		return 1e6
	case ScaleBillions:
		return 1e9
	default:
		return 1
	}
}

// Period represents the timeframe a claim refers to.
type Period string

const (
	PeriodYoY         Period = "YoY"
	PeriodQoQ         Period = "QoQ"
	PeriodQuarterly   Period = "quarterly"
	PeriodAnnual      Period = "annual"
	PeriodUnspecified Period = "unspecified"
)

// IsComparison reports whether the period describes a growth comparison
// rather than a point-in-time figure.
func (p Period) IsComparison() bool {
	return p == PeriodYoY || p == PeriodQoQ
}

// Claim is a quantitative assertion extracted from an earnings-call
// transcript. Claims are immutable once persisted; re-running extraction
// produces new claims rather than mutating existing ones.
type Claim struct {
	ID               uuid.UUID `json:"id"`
	Ticker           string    `json:"ticker"`
	Year             int       `json:"year"`
	Quarter          int       `json:"quarter"`
	Speaker          string    `json:"speaker"`
	Metric           string    `json:"metric"` // normalized vocabulary, e.g. "revenue"
	Value            float64   `json:"value"`
	Unit             string    `json:"unit"`  // "USD", "%", "USD/share", "count"
	Scale            Scale     `json:"scale"` // magnitude the value was stated in
	Period           Period    `json:"period"`
	IsGAAP           bool      `json:"is_gaap"`
	IsForwardLooking bool      `json:"is_forward_looking"`
	Hedged           bool      `json:"hedged"` // "approximately", "roughly", ...
	RawText          string    `json:"raw_text"`
	Context          string    `json:"context"` // surrounding transcript sentences
	ExtractionMethod string    `json:"extraction_method"`
	Confidence       float64   `json:"confidence"`
	CreatedAt        time.Time `json:"created_at"`
}

// AbsoluteValue returns the claimed value converted to absolute units
// (e.g. 1.2 billions -> 1.2e9). Percent claims are returned unchanged.
func (c *Claim) AbsoluteValue() float64 {
	if c.Unit == "%" {
		return c.Value
	}
	return c.Value * c.Scale.Multiplier()
}

// PeriodLabel renders the claim's fiscal period as "2024Q4".
func (c *Claim) PeriodLabel() string {
	return fmt.Sprintf("%dQ%d", c.Year, c.Quarter)
}
