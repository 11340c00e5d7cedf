package transpose

import (
	"fmt"
	"sort"
)

// Direction describes where the suggested key sits relative to the key the
// instrument would need.
type Direction string

const (
	DirectionNone  Direction = "none"
	DirectionAbove Direction = "above"
	DirectionBelow Direction = "below"
)

// Suggestion is one alternative instrument/key pair.
type Suggestion struct {
	Instrument string
	// Key is the catalog label of the available key, as offered by the catalog.
	Key        string
	Difference int
	Direction  Direction
	Interval   string
}

// Label renders the suggestion the way the selection prompt lists it.
func (s Suggestion) Label() string {
	label := fmt.Sprintf("%s in %s", s.Instrument, s.Key)
	switch {
	case s.Interval != "" && s.Direction != DirectionNone:
		label += fmt.Sprintf(" (%s %s)", s.Interval, s.Direction)
	case s.Interval != "":
		label += fmt.Sprintf(" (%s)", s.Interval)
	}
	return label
}

// Suggestions groups direct matches ahead of closest matches.
type Suggestions struct {
	Direct  []Suggestion
	Closest []Suggestion
}

// Empty reports whether no suggestion of either kind exists.
func (s Suggestions) Empty() bool {
	return len(s.Direct) == 0 && len(s.Closest) == 0
}

// All returns direct suggestions followed by closest suggestions.
func (s Suggestions) All() []Suggestion {
	out := make([]Suggestion, 0, len(s.Direct)+len(s.Closest))
	out = append(out, s.Direct...)
	return append(out, s.Closest...)
}

type availableKey struct {
	label    string
	semitone int
}

// ComputeSuggestions lists, for every table instrument other than
// selectedInstrument, either the available key that is exactly the written
// key it needs for targetKey (direct) or the nearest available key (closest).
// Closest suggestions are ordered by distance, ties keeping table order. An
// unparseable target, an unknown instrument, or no parseable available keys
// yield empty results.
func ComputeSuggestions(availableKeys []string, selectedInstrument, targetKey string) Suggestions {
	target, ok := Semitone(targetKey)
	if !ok {
		return Suggestions{}
	}
	if _, ok := Offset(selectedInstrument); !ok {
		return Suggestions{}
	}

	available := make([]availableKey, 0, len(availableKeys))
	for _, label := range availableKeys {
		if semitone, ok := Semitone(label); ok {
			available = append(available, availableKey{label: label, semitone: semitone})
		}
	}
	if len(available) == 0 {
		return Suggestions{}
	}

	var result Suggestions
	for _, inst := range instrumentTable {
		if inst.Name == selectedInstrument {
			continue
		}
		required := mod12(target - inst.Offset)

		if key, ok := exactKey(available, required); ok {
			result.Direct = append(result.Direct, Suggestion{
				Instrument: inst.Name,
				Key:        key,
				Difference: 0,
				Direction:  DirectionNone,
				Interval:   IntervalName(0),
			})
			continue
		}

		best := -1
		var bestDir Direction
		var bestKey string
		for _, key := range available {
			diff, dir := circularDistance(required, key.semitone)
			if best < 0 || diff < best {
				best, bestDir, bestKey = diff, dir, key.label
			}
		}
		result.Closest = append(result.Closest, Suggestion{
			Instrument: inst.Name,
			Key:        bestKey,
			Difference: best,
			Direction:  bestDir,
			Interval:   IntervalName(best),
		})
	}

	sort.SliceStable(result.Closest, func(i, j int) bool {
		return result.Closest[i].Difference < result.Closest[j].Difference
	})
	return result
}

func exactKey(available []availableKey, semitone int) (string, bool) {
	for _, key := range available {
		if key.semitone == semitone {
			return key.label, true
		}
	}
	return "", false
}
