package transpose

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

var keyToSemitone = map[string]int{
	"C": 0, "C#": 1, "Db": 1,
	"D": 2, "D#": 3, "Eb": 3,
	"E": 4, "F": 5, "F#": 6, "Gb": 6,
	"G": 7, "G#": 8, "Ab": 8,
	"A": 9, "A#": 10, "Bb": 10,
	"B": 11,
}

var semitoneNames = [12]string{
	"C", "C#/Db", "D", "D#/Eb", "E", "F", "F#/Gb", "G", "G#/Ab", "A", "A#/Bb", "B",
}

var intervalNames = [12]string{
	"Perfect Unison",
	"Minor Second",
	"Major Second",
	"Minor Third",
	"Major Third",
	"Perfect Fourth",
	"Tritone",
	"Perfect Fifth",
	"Minor Sixth",
	"Major Sixth",
	"Minor Seventh",
	"Major Seventh",
}

// NormalizeKey canonicalizes a catalog or user key label: surrounding space
// and anything after the first token are dropped, the note letter is
// uppercased, and an uppercase flat marker becomes "b" ("ab " -> "Ab",
// "BB" -> "Bb"). NormalizeKey is idempotent.
func NormalizeKey(key string) string {
	fields := strings.Fields(key)
	if len(fields) == 0 {
		return ""
	}
	token := fields[0]
	r, size := utf8.DecodeRuneInString(token)
	note := token[:size]
	if r != utf8.RuneError {
		note = string(unicode.ToUpper(r))
	}
	accidental := strings.ReplaceAll(token[size:], "B", "b")
	return note + accidental
}

// Semitone returns the pitch class of a key label after normalization.
func Semitone(key string) (int, bool) {
	semitone, ok := keyToSemitone[NormalizeKey(key)]
	return semitone, ok
}

// ValidKey reports whether key names a recognized pitch.
func ValidKey(key string) bool {
	_, ok := Semitone(key)
	return ok
}

// ValidKeys returns the recognized key spellings in pitch order.
func ValidKeys() []string {
	return []string{"C", "C#", "Db", "D", "D#", "Eb", "E", "F", "F#", "Gb", "G", "G#", "Ab", "A", "A#", "Bb", "B"}
}

// SemitoneName returns the display name for a pitch class, e.g. "A#/Bb".
func SemitoneName(semitone int) string {
	return semitoneNames[mod12(semitone)]
}

// IntervalName returns the interval name for a semitone distance, reduced
// modulo twelve.
func IntervalName(semitones int) string {
	return intervalNames[mod12(semitones)]
}

func mod12(v int) int {
	v %= 12
	if v < 0 {
		v += 12
	}
	return v
}

// circularDistance returns the shortest distance from a to b and its
// direction. Ties (unison and tritone) report DirectionNone.
func circularDistance(a, b int) (int, Direction) {
	up := mod12(b - a)
	down := mod12(a - b)
	switch {
	case up < down:
		return up, DirectionAbove
	case down < up:
		return down, DirectionBelow
	default:
		return up, DirectionNone
	}
}
