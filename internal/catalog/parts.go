package catalog

import (
	"strings"

	"sheetfetch/internal/sheet"
)

// excludedParts are case-insensitive substrings of parts that are never
// downloadable as instrument scores.
var excludedParts = []string{"conductor's score", "cover", "lead sheet"}

// FilterParts trims labels, drops empty and excluded parts, and removes exact
// duplicates while keeping menu order.
func FilterParts(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, part := range raw {
		part = strings.TrimSpace(part)
		if part == "" || isExcludedPart(part) {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}
	return out
}

func isExcludedPart(part string) bool {
	lower := strings.ToLower(part)
	for _, ex := range excludedParts {
		if strings.Contains(lower, ex) {
			return true
		}
	}
	return false
}

// NormalizeInstrument is the loose comparison form for part labels:
// lowercased, commas removed, hyphens turned into spaces, trimmed.
func NormalizeInstrument(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, ",", "")
	name = strings.ReplaceAll(name, "-", " ")
	return strings.TrimSpace(name)
}

// MatchInstrument returns the part whose loose form equals requested.
func MatchInstrument(parts []string, requested string) (string, bool) {
	want := NormalizeInstrument(requested)
	if want == "" {
		return "", false
	}
	for _, part := range parts {
		if NormalizeInstrument(part) == want {
			return part, true
		}
	}
	return "", false
}

// HornPart returns the first part mentioning "french horn".
func HornPart(parts []string) (string, bool) {
	for _, part := range parts {
		if strings.Contains(strings.ToLower(part), "french horn") {
			return part, true
		}
	}
	return "", false
}

// IsSongResult reports whether a search result's subtitle describes a single
// song rather than a collection or book. Results without a subtitle are not
// songs.
func IsSongResult(subtitle string) bool {
	lower := strings.ToLower(strings.TrimSpace(subtitle))
	if lower == "" {
		return false
	}
	return !strings.Contains(lower, "collection") && !strings.Contains(lower, "book")
}

// CapCandidates truncates to sheet.MaxCandidates and renumbers from 1.
func CapCandidates(in []sheet.Candidate) []sheet.Candidate {
	if len(in) > sheet.MaxCandidates {
		in = in[:sheet.MaxCandidates]
	}
	out := make([]sheet.Candidate, len(in))
	for i, c := range in {
		c.Index = i + 1
		out[i] = c
	}
	return out
}
