// Package main hosts the sheetfetch CLI entrypoint and command graph.
//
// The Cobra command tree turns terminal invocations into catalog sessions:
// single-song and batch acquisitions, the inbox watcher, batch history and
// spreadsheet reports, transposition suggestions, and preflight checks. It
// centralizes configuration resolution and the wiring of the browser session,
// restoration pipeline, and job store so subcommands stay declarative.
package main
