// Package batch coordinates whole acquisitions: a batch of (title,
// instrument, key) entries, or one interactive song.
//
// The orchestrator stays on one coordinating goroutine and runs every
// controller step, restoration and PDF assembly as a task.Handle it awaits,
// so catalog, model and filesystem work never overlaps. For each batch
// entry it tries up to five candidates, assembles one PDF per candidate
// under the batch folder, asks the selector to keep one, and records the
// outcome in the job store. Operator cancels follow the configured cancel
// policy; model load failures abandon the song; everything else is soft and
// moves on to the next candidate.
package batch
