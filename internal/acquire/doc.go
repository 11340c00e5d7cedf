// Package acquire walks one catalog session from search to downloaded pages.
//
// A Controller owns the acquisition state machine (Idle, Searching,
// SongSelected, KeyNegotiated, PartsEnumerated, Downloading, then Done or
// Failed) and drives a catalog.Client step by step: search, candidate
// selection, key negotiation with transposition suggestions, part
// enumeration, and paginated page download into a staging directory. Soft
// failures move the machine to Failed with a Reason so the caller can try the
// next candidate; operator cancels surface as services.ErrCanceled.
package acquire
