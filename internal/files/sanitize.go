package files

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// pathReplacer maps every character unsafe in a path component to "_".
var pathReplacer = strings.NewReplacer(
	"<", "_",
	">", "_",
	":", "_",
	"\"", "_",
	"\\", "_",
	"|", "_",
	"?", "_",
	"*", "_",
	" ", "_",
	"/", "_",
)

// Sanitize turns a title, artist, or key label into a single path component.
// Input is NFC-normalized and trimmed; an empty result becomes "untitled".
func Sanitize(name string) string {
	name = strings.TrimSpace(norm.NFC.String(name))
	if name == "" {
		return "untitled"
	}
	out := pathReplacer.Replace(name)
	if out == "." || out == ".." {
		return "untitled"
	}
	return out
}
