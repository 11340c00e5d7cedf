// Package files performs every directory and file mutation of the pipeline
// while holding the shared filesystem lock.
//
// It also owns the path sanitization rule used for song, artist, and
// instrument path components, and the stale staging sweep run at startup.
package files
