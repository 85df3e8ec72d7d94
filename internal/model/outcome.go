package model

import (
	"time"

	"github.com/google/uuid"
)

type OutcomeStatus string

const (
	OutcomeStored  OutcomeStatus = "stored"
	OutcomeSkipped OutcomeStatus = "skipped"
	OutcomeError   OutcomeStatus = "error"
)

// Skip reasons recorded on skipped outcomes.
const (
	ReasonSeen          = "already_processed"
	ReasonFetchRejected = "fetch_rejected"
	ReasonNoTitle       = "title_missing"
	ReasonBadTitle      = "title_blocklisted"
	ReasonGenericTitle  = "title_generic"
	ReasonShortBody     = "body_too_short"
	ReasonNoKeywords    = "no_keywords"
	ReasonNoQuotes      = "no_quotes"
)

// Outcome is the result of processing one article URL.
type Outcome struct {
	URL    string        `json:"url"`
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
	Quotes int           `json:"quotes,omitempty"`
	Error  string        `json:"error,omitempty"`
}

// SiteReport collects the outcomes of one site within a run.
type SiteReport struct {
	Site       string    `json:"site"`
	Discovered int       `json:"discovered"`
	Outcomes   []Outcome `json:"outcomes"`
	Error      string    `json:"error,omitempty"`
}

// Count returns how many outcomes have the given status.
func (r SiteReport) Count(status OutcomeStatus) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Status == status {
			n++
		}
	}
	return n
}

// RunReport summarises one ingestion run.
type RunReport struct {
	RunID        uuid.UUID    `json:"run_id"`
	StartedAt    time.Time    `json:"started_at"`
	FinishedAt   time.Time    `json:"finished_at"`
	Sites        []SiteReport `json:"sites"`
	QuotesStored int          `json:"quotes_stored"`
}

// NewRunReport starts a report with a fresh run id.
func NewRunReport() *RunReport {
	return &RunReport{
		RunID:     uuid.New(),
		StartedAt: time.Now(),
	}
}
