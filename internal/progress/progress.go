package progress

import (
	"log/slog"
	"sync"

	"sheetfetch/internal/logging"
)

// Sink receives progress events. Implementations must be safe for use from
// multiple goroutines.
type Sink interface {
	Log(message string)
	Progress(percent int)
	Status(text string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) Log(string)    {}
func (Nop) Progress(int)  {}
func (Nop) Status(string) {}

// OrNop returns s, or Nop when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop{}
	}
	return s
}

// Percent converts done/total into a 0-100 integer.
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	p := done * 100 / total
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	}
	return p
}

// LogSink renders events through slog. Progress lines are throttled with a
// ProgressSampler keyed on the current status.
type LogSink struct {
	logger  *slog.Logger
	mu      sync.Mutex
	status  string
	sampler *logging.ProgressSampler
}

// NewLogSink wraps logger.
func NewLogSink(logger *slog.Logger, bucket int) *LogSink {
	return &LogSink{
		logger:  logging.NewComponentLogger(logger, "progress"),
		sampler: logging.NewProgressSampler(bucket),
	}
}

func (s *LogSink) Log(message string) {
	s.logger.Info(message)
}

func (s *LogSink) Progress(percent int) {
	s.mu.Lock()
	status := s.status
	emit := s.sampler.Sample(percent)
	s.mu.Unlock()
	if emit {
		s.logger.Info("progress",
			logging.String(logging.FieldEventType, "progress"),
			logging.String("status", status),
			logging.Int("percent", percent),
		)
	}
}

func (s *LogSink) Status(text string) {
	s.mu.Lock()
	changed := text != s.status
	s.status = text
	if changed {
		s.sampler.Reset()
	}
	s.mu.Unlock()
	if changed {
		s.logger.Info(text, logging.String(logging.FieldEventType, "status"))
	}
}

// Multi fans events out to every non-nil sink in order.
func Multi(sinks ...Sink) Sink {
	filtered := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			filtered = append(filtered, s)
		}
	}
	return filtered
}

type multi []Sink

func (m multi) Log(message string) {
	for _, s := range m {
		s.Log(message)
	}
}

func (m multi) Progress(percent int) {
	for _, s := range m {
		s.Progress(percent)
	}
}

func (m multi) Status(text string) {
	for _, s := range m {
		s.Status(text)
	}
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu       sync.Mutex
	logs     []string
	percents []int
	statuses []string
}

func (r *Recorder) Log(message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, message)
}

func (r *Recorder) Progress(percent int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.percents = append(r.percents, percent)
}

func (r *Recorder) Status(text string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.statuses = append(r.statuses, text)
}

// Logs returns a copy of the recorded log lines.
func (r *Recorder) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.logs...)
}

// Percents returns a copy of the recorded percentages.
func (r *Recorder) Percents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int(nil), r.percents...)
}

// Statuses returns a copy of the recorded status texts.
func (r *Recorder) Statuses() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statuses...)
}
