package models

import "time"

// TranscriptSegment is one speaker turn in an earnings call.
type TranscriptSegment struct {
	Speaker string `json:"speaker"`
	Role    string `json:"role"` // "CEO", "CFO", "Analyst", ...
	Text    string `json:"text"`
}

// Transcript is a full earnings-call transcript for one company/quarter.
type Transcript struct {
	Ticker   string              `json:"ticker"`
	Year     int                 `json:"year"`
	Quarter  int                 `json:"quarter"`
	Date     time.Time           `json:"date"`
	Segments []TranscriptSegment `json:"segments"`
}

// FilingSection is a contiguous narrative block of a filing
// (e.g. "Management Discussion", "Risk Factors").
type FilingSection struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// StatementRow is one line of a structured financial statement.
type StatementRow struct {
	Metric string  `json:"metric"` // XBRL-style tag or normalized name
	Value  float64 `json:"value"`  // absolute units
	Unit   string  `json:"unit"`   // "USD", "USD/share", "shares"
}

// FilingDocument is an authoritative filing for one company/period:
// narrative sections plus the structured statement rows pulled from it.
type FilingDocument struct {
	Ticker     string          `json:"ticker"`
	Year       int             `json:"year"`
	Quarter    int             `json:"quarter"`
	Source     string          `json:"source"` // "10-Q", "10-K"
	FilingDate time.Time       `json:"filing_date"`
	Sections   []FilingSection `json:"sections"`
	Statements []StatementRow  `json:"statements"`
}
