// Package testsupport holds fixtures shared by package tests: a config
// builder over temp directories, PNG writers, an in-memory catalog, and a
// job store opener.
package testsupport
