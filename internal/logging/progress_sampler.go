package logging

// ProgressSampler thins progress lines for one stage: it passes the first
// report, the first report in each new bucket of step percent, and
// completion exactly once. It is not safe for concurrent use.
type ProgressSampler struct {
	step     int
	last     int
	finished bool
}

// NewProgressSampler returns a sampler with buckets of step percent. Steps
// outside 1..100 fall back to 10.
func NewProgressSampler(step int) *ProgressSampler {
	if step <= 0 || step > 100 {
		step = 10
	}
	return &ProgressSampler{step: step, last: -1}
}

// Sample reports whether percent deserves a log line. A nil sampler passes
// everything.
func (s *ProgressSampler) Sample(percent int) bool {
	if s == nil {
		return true
	}
	if percent >= 100 {
		if s.finished {
			return false
		}
		s.finished = true
		s.last = 100 / s.step
		return true
	}
	bucket := max(percent, 0) / s.step
	if bucket <= s.last {
		return false
	}
	s.last = bucket
	return true
}

// Reset starts a new stage.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.last = -1
	s.finished = false
}
