package batch

import "time"

// SetClock replaces the clock that names batch folders.
func SetClock(o *Orchestrator, now func() time.Time) { o.now = now }
