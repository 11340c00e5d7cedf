package batch

import (
	"time"

	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/notifications"
	"sheetfetch/internal/sheet"
)

// Result is the outcome of one batch entry.
type Result struct {
	// Position is the 0-based index in the input list.
	Position   int
	Entry      sheet.Entry
	Status     jobstore.Status
	Detail     string
	Candidate  string
	OutputPath string
}

func (r Result) outcome() jobstore.Outcome {
	return jobstore.Outcome{
		Status:     r.Status,
		Detail:     r.Detail,
		Candidate:  r.Candidate,
		OutputPath: r.OutputPath,
	}
}

// Summary is returned when a batch run ends.
type Summary struct {
	BatchID string
	Name    string
	RootDir string
	Results []Result
	// Aborted is set when the run stopped before the last entry.
	Aborted  bool
	Started  time.Time
	Duration time.Duration
}

// Counts tallies results by status.
func (s *Summary) Counts() map[jobstore.Status]int {
	counts := make(map[jobstore.Status]int)
	for _, r := range s.Results {
		counts[r.Status]++
	}
	return counts
}

// Completed returns how many entries produced a score.
func (s *Summary) Completed() int {
	return s.Counts()[jobstore.StatusCompleted]
}

// Failures returns every entry that did not produce a score, in input order.
func (s *Summary) Failures() []Result {
	var out []Result
	for _, r := range s.Results {
		if r.Status != jobstore.StatusCompleted {
			out = append(out, r)
		}
	}
	return out
}

func (s *Summary) notification() notifications.BatchResult {
	counts := s.Counts()
	return notifications.BatchResult{
		Name:       s.Name,
		Total:      len(s.Results),
		Completed:  counts[jobstore.StatusCompleted],
		Unresolved: counts[jobstore.StatusNoResults] + counts[jobstore.StatusNoValidOutput] + counts[jobstore.StatusCanceled],
		Failed:     counts[jobstore.StatusAbandoned] + counts[jobstore.StatusFailed],
		Duration:   s.Duration,
	}
}
