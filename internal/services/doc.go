// Package services defines shared utilities consumed by the pipeline stages
// and the catalog integration.
//
// Key responsibilities:
//   - Context helpers that stamp song titles, stage names, candidate indexes,
//     and correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and Classify which maps a
//     failure onto how far it propagates (page, song, or batch).
//
// Use these helpers when wiring new stage logic so error handling and
// observability stay uniform across the pipeline.
package services
