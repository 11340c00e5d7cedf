// Package jobstore persists batch runs and their per-entry outcomes in SQLite.
//
// A batch row is created when a run starts, with one pending entry row per
// requested (title, instrument, key). The orchestrator records each entry's
// outcome as it finishes, so an interrupted run still leaves an accurate
// history. The history and report commands read from here.
//
// Schema changes bump schemaVersion in schema.go; users delete the database
// to adopt the new schema.
package jobstore
