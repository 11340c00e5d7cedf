// Package notifications delivers batch events via ntfy push messages.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. Batch-complete and
// error messages can be switched off individually.
package notifications
