package jobstore

import (
	"time"

	"sheetfetch/internal/sheet"
)

// Status is the outcome of one batch entry.
type Status string

const (
	StatusPending Status = "pending"
	// StatusCompleted means a score was saved for the entry.
	StatusCompleted Status = "completed"
	// StatusNoResults means the search found no songs.
	StatusNoResults Status = "no_results"
	// StatusNoValidOutput means no candidate produced a score, or the final
	// choice was declined.
	StatusNoValidOutput Status = "no_valid_output"
	// StatusAbandoned means a song-level failure such as a model load error
	// stopped the entry.
	StatusAbandoned Status = "abandoned"
	// StatusCanceled means the operator canceled and the policy skipped the
	// entry or stopped the batch before it ran.
	StatusCanceled Status = "canceled"
	StatusFailed   Status = "failed"
)

var allStatuses = []Status{
	StatusPending,
	StatusCompleted,
	StatusNoResults,
	StatusNoValidOutput,
	StatusAbandoned,
	StatusCanceled,
	StatusFailed,
}

// AllStatuses returns the known statuses in display order.
func AllStatuses() []Status {
	return append([]Status(nil), allStatuses...)
}

// Terminal reports whether s is a final outcome.
func (s Status) Terminal() bool {
	return s != StatusPending && s != ""
}

// Batch status values.
const (
	BatchRunning   = "running"
	BatchCompleted = "completed"
	BatchAborted   = "aborted"
)

// Batch is one recorded run.
type Batch struct {
	ID         string
	Name       string
	Source     string
	RootDir    string
	Status     string
	StartedAt  time.Time
	FinishedAt *time.Time
}

// Record is the persisted state of one batch entry.
type Record struct {
	ID         int64
	BatchID    string
	Position   int
	Entry      sheet.Entry
	Status     Status
	Detail     string
	Candidate  string
	OutputPath string
	UpdatedAt  time.Time
}

// Outcome is what the orchestrator reports for a finished entry.
type Outcome struct {
	Status     Status
	Detail     string
	Candidate  string
	OutputPath string
}
