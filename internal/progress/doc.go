// Package progress carries the three observable signals every pipeline step
// emits: a human-readable log line, a completion percentage that restarts at
// zero for each stage, and a short status text.
package progress
