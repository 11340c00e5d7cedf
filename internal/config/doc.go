// Package config loads, normalizes, and validates sheetfetch configuration.
//
// Configuration is read from TOML (default ~/.config/sheetfetch/config.toml,
// falling back to ./sheetfetch.toml). A .env file in the working directory is
// loaded before environment fallbacks are consulted. Paths are expanded to
// absolute form, the staging directory defaults to a hidden folder under the
// download root, and catalog timeouts are exposed as durations.
//
// Use Load for runtime configuration and CreateSample to bootstrap a new file.
package config
