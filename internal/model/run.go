package model

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus tracks the lifecycle of one month's scrape.
type RunStatus string

const (
	RunStatusRunning RunStatus = "RUNNING"
	RunStatusSuccess RunStatus = "SUCCESS"
	RunStatusFailed  RunStatus = "FAILED"

	// RunStatusSkipped is reserved; no current flow produces it.
	RunStatusSkipped RunStatus = "SKIPPED"
)

// ScrapeRun is one audit row per month processed in one orchestrator
// invocation. Written exactly once per month attempted, including on
// failure.
type ScrapeRun struct {
	RunID          string     `json:"run_id"`
	TargetMonth    string     `json:"target_month"`
	Region         string     `json:"region"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	Status         RunStatus  `json:"status"`
	RecordsFound   int        `json:"records_found"`
	RecordsWritten int        `json:"records_written"`

	// ErrorMessage is set only when Status is FAILED.
	ErrorMessage *string `json:"error_message"`
}

// NewScrapeRun starts a RUNNING audit entry for the given month.
func NewScrapeRun(month string) *ScrapeRun {
	return &ScrapeRun{
		RunID:       uuid.NewString(),
		TargetMonth: month,
		Region:      Region,
		StartedAt:   time.Now().UTC(),
		Status:      RunStatusRunning,
	}
}

// Complete transitions the run to SUCCESS and stamps completion.
func (r *ScrapeRun) Complete(found, written int) {
	now := time.Now().UTC()
	r.Status = RunStatusSuccess
	r.RecordsFound = found
	r.RecordsWritten = written
	r.CompletedAt = &now
}

// Fail transitions the run to FAILED with the failure's message.
// Completion is stamped on failure too: a failed month still produces
// a terminal audit row, never a missing one.
func (r *ScrapeRun) Fail(msg string) {
	now := time.Now().UTC()
	r.Status = RunStatusFailed
	r.ErrorMessage = &msg
	r.CompletedAt = &now
}
