// Package batchfile reads batch song lists.
//
// A list is either CSV (title, instrument, key columns, header optional) or
// JSON (an array of entries, or an object with an "entries" array). Both
// forms are checked against the same JSON schema, rows without a title are
// skipped, and a missing instrument falls back to the configured default.
package batchfile
