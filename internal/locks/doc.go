// Package locks provides the mutual-exclusion handles shared by the
// acquisition and batch components.
//
// Two in-process domains exist: the catalog session lock, which serializes
// every operation against the browser session, and the filesystem lock,
// which serializes directory and file mutations. They are independent and
// injected as handles so tests can substitute instrumented versions. A
// flock-backed ProcessLock keeps a second sheetfetch process from driving
// the catalog at the same time.
package locks
