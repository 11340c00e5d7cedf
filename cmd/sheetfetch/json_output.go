package main

import (
	"encoding/json"
	"io"
	"time"

	"github.com/spf13/cobra"

	"sheetfetch/internal/batch"
	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/sheet"
)

// entryJSON is one list entry in --json output; positions are 1-based like
// the tables.
type entryJSON struct {
	Position   int    `json:"position"`
	Title      string `json:"title"`
	Instrument string `json:"instrument"`
	Key        string `json:"key"`
	Status     string `json:"status"`
	Detail     string `json:"detail,omitempty"`
	Candidate  string `json:"candidate,omitempty"`
	Output     string `json:"output,omitempty"`
}

type batchJSON struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Status    string         `json:"status"`
	Folder    string         `json:"folder"`
	Started   time.Time      `json:"started"`
	Finished  *time.Time     `json:"finished,omitempty"`
	Completed int            `json:"completed"`
	Total     int            `json:"total"`
	Counts    map[string]int `json:"counts,omitempty"`
	Entries   []entryJSON    `json:"entries,omitempty"`
}

type songJSON struct {
	Title   string   `json:"title"`
	Artist  string   `json:"artist"`
	Key     string   `json:"key"`
	Dir     string   `json:"dir"`
	Scores  []string `json:"scores"`
	Skipped []string `json:"skipped,omitempty"`
}

func newEntryJSON(position int, e sheet.Entry, status jobstore.Status, detail, candidate, output string) entryJSON {
	return entryJSON{
		Position:   position + 1,
		Title:      e.Title,
		Instrument: e.Instrument,
		Key:        e.Key,
		Status:     string(status),
		Detail:     detail,
		Candidate:  candidate,
		Output:     output,
	}
}

func statusCounts(counts map[jobstore.Status]int) (map[string]int, int) {
	out := make(map[string]int, len(counts))
	total := 0
	for status, n := range counts {
		if n > 0 {
			out[string(status)] = n
			total += n
		}
	}
	return out, total
}

func summaryJSON(s *batch.Summary) batchJSON {
	status := jobstore.BatchCompleted
	if s.Aborted {
		status = jobstore.BatchAborted
	}
	finished := s.Started.Add(s.Duration)
	counts, total := statusCounts(s.Counts())
	out := batchJSON{
		ID:        s.BatchID,
		Name:      s.Name,
		Status:    status,
		Folder:    s.RootDir,
		Started:   s.Started,
		Finished:  &finished,
		Completed: s.Completed(),
		Total:     total,
		Counts:    counts,
	}
	for _, r := range s.Results {
		out.Entries = append(out.Entries, newEntryJSON(r.Position, r.Entry, r.Status, r.Detail, r.Candidate, r.OutputPath))
	}
	return out
}

// historyJSON renders a stored batch; records may be nil for list views.
func historyJSON(b *jobstore.Batch, stats map[jobstore.Status]int, records []*jobstore.Record) batchJSON {
	counts, total := statusCounts(stats)
	out := batchJSON{
		ID:        b.ID,
		Name:      b.Name,
		Status:    b.Status,
		Folder:    b.RootDir,
		Started:   b.StartedAt,
		Finished:  b.FinishedAt,
		Completed: stats[jobstore.StatusCompleted],
		Total:     total,
		Counts:    counts,
	}
	for _, r := range records {
		out.Entries = append(out.Entries, newEntryJSON(r.Position, r.Entry, r.Status, r.Detail, r.Candidate, r.OutputPath))
	}
	return out
}

func newSongJSON(result *batch.SongResult) songJSON {
	return songJSON{
		Title:   result.Candidate.Title,
		Artist:  result.Candidate.Artist,
		Key:     result.Key,
		Dir:     result.Dir,
		Scores:  result.Scores,
		Skipped: result.Skipped,
	}
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	return encodeJSON(cmd.OutOrStdout(), v)
}

func encodeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
