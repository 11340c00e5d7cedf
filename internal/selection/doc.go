// Package selection is the operator-choice contract used when a search,
// key, instrument, or final score is ambiguous.
//
// A Selector receives a Request with labeled options and returns the index of
// the chosen option or ErrCanceled. Prompt asks on a terminal; First and
// Scripted decide without a human.
package selection
