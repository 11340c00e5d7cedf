package sheet

import (
	"fmt"
	"image"
	"path"
	"path/filepath"
	"regexp"
	"strings"
)

// MaxCandidates caps the number of search results considered per song.
const MaxCandidates = 5

// Candidate is one song search result in catalog order.
type Candidate struct {
	// Index is the 1-based position among song results.
	Index int
	// Position is the 1-based slot in the catalog result list, which also
	// counts collections and books.
	Position int
	Title    string
	Artist   string
	Preview  string
	ImageURL string
}

// Label renders the candidate for selection prompts and logs.
func (c Candidate) Label() string {
	parts := []string{strings.TrimSpace(c.Title)}
	if artist := strings.TrimSpace(c.Artist); artist != "" {
		parts = append(parts, artist)
	}
	if preview := strings.TrimSpace(c.Preview); preview != "" {
		parts = append(parts, preview)
	}
	return fmt.Sprintf("%d. %s", c.Index, strings.Join(parts, " | "))
}

// Page is one downloaded page image on disk.
type Page struct {
	Instrument string
	// Sequence is the 0-based download order within the instrument.
	Sequence int
	// Name is the basename of the source image URL.
	Name string
	Path string
	URL  string
}

// RestoredPage is the restoration output for one Page, in the same order.
type RestoredPage struct {
	Instrument string
	Sequence   int
	Name       string
	Image      *image.Gray
}

// Entry is one requested (title, instrument, key) line of a batch.
type Entry struct {
	Title      string `json:"title"`
	Instrument string `json:"instrument"`
	Key        string `json:"key"`
}

func (e Entry) String() string {
	return fmt.Sprintf("%s [%s in %s]", e.Title, e.Instrument, e.Key)
}

var (
	pageNumberPattern = regexp.MustCompile(`_(\d{3})\.png$`)
	pageSuffixPattern = regexp.MustCompile(`_\d{3}\.png$`)
)

// PageNumber extracts the three-digit page number from an image URL or file
// name ending in _NNN.png.
func PageNumber(name string) (string, bool) {
	match := pageNumberPattern.FindStringSubmatch(name)
	if match == nil {
		return "", false
	}
	return match[1], true
}

// FirstPageNumber is the page number that marks the start of a part.
const FirstPageNumber = "001"

// URLBase returns the file name component of an image URL, ignoring any query
// string.
func URLBase(raw string) string {
	if i := strings.IndexAny(raw, "?#"); i >= 0 {
		raw = raw[:i]
	}
	return path.Base(raw)
}

// ScoreBaseName derives the PDF base name from the first page's file name:
// the _NNN.png suffix is removed, then any remaining extension.
func ScoreBaseName(firstPageName string) string {
	base := pageSuffixPattern.ReplaceAllString(filepath.Base(firstPageName), "")
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// ScoreFileName is ScoreBaseName with the .pdf extension.
func ScoreFileName(firstPageName string) string {
	return ScoreBaseName(firstPageName) + ".pdf"
}
