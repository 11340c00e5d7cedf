// Package deps locates the external programs sheetfetch runs, chiefly the
// Chromium-family browser behind the catalog session.
package deps
