// Package transpose suggests alternative instrument/key pairs when the
// catalog does not offer the key a player asked for.
//
// Every instrument in the table carries its concert-pitch offset. For a target
// concert key the written key each other instrument would need is computed;
// available keys that match it exactly become direct suggestions, and the
// nearest available key (circular distance over twelve semitones) becomes a
// closest suggestion. Inputs that cannot be parsed yield empty results rather
// than errors.
package transpose
