// Package catalog defines the contract for the stateful sheet-music catalog
// session and the helpers that sit on top of it.
//
// Client is implemented by the browser-backed client in catalog/browser and
// by fakes in tests. Session wraps any Client so that every call runs under
// the shared session lock with a bounded timeout, and saves a screenshot when
// a call fails. The part-list filter and the loose instrument matching rule
// live here so every caller applies them the same way.
package catalog
