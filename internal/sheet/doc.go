// Package sheet defines the records that flow between acquisition,
// restoration, and assembly: search candidates, downloaded and restored
// pages, and batch entries, plus the page-naming rules shared by those
// stages.
package sheet
