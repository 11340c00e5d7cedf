// Package preflight provides readiness checks for the paths, browser, model
// checkpoints and catalog site that sheetfetch depends on.
//
// These checks run in two contexts:
//   - The song and batch commands call RunAll before opening a browser
//     session so a broken setup fails in seconds instead of mid-batch.
//   - The CLI "sheetfetch check" command prints every result, including the
//     notification status from CheckNotificationsFromConfig.
package preflight
