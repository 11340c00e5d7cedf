// Package logging assembles structured slog loggers and formatting helpers used
// across sheetfetch.
//
// It owns the console and JSON handlers, mirrors every record into a JSON
// journal under the log directory, and exposes context-aware helpers so
// pipeline code tags log lines with the song, candidate, and stage being
// worked on. The package also provides a no-op logger for tests and wiring
// code that cannot fail.
package logging
