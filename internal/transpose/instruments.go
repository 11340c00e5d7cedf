package transpose

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Instrument pairs a catalog part name with the semitone offset between its
// written and concert pitch.
type Instrument struct {
	Name   string
	Offset int
}

// instrumentTable is ordered; suggestion output follows this order.
var instrumentTable = []Instrument{
	{Name: "Rhythm Chart", Offset: 0},
	{Name: "Acoustic Guitar", Offset: 0},
	{Name: "Flute 1/2", Offset: 0},
	{Name: "Flute/Oboe 1/2/3", Offset: 0},
	{Name: "Oboe", Offset: 0},
	{Name: "Clarinet 1/2", Offset: -2},
	{Name: "Bass Clarinet", Offset: -2},
	{Name: "Bassoon", Offset: 0},
	{Name: "French Horn 1/2", Offset: -7},
	{Name: "Trumpet 1,2", Offset: -2},
	{Name: "Trumpet 3", Offset: -2},
	{Name: "Trombone 1/2", Offset: 0},
	{Name: "Trombone 3/Tuba", Offset: 0},
	{Name: "Alto Sax", Offset: -9},
	{Name: "Tenor Sax 1/2", Offset: -2},
	{Name: "Bari Sax", Offset: -9},
	{Name: "Timpani", Offset: 0},
	{Name: "Percussion", Offset: 0},
	{Name: "Violin 1/2", Offset: 0},
	{Name: "Viola", Offset: 0},
	{Name: "Cello", Offset: 0},
	{Name: "Double Bass", Offset: 0},
	{Name: "String Reduction", Offset: 0},
	{Name: "String Bass", Offset: 0},
	{Name: "Lead Sheet (SAT)", Offset: 0},
}

// Instruments returns a copy of the instrument table in order.
func Instruments() []Instrument {
	return append([]Instrument(nil), instrumentTable...)
}

// Offset returns the transposition offset for an instrument name. Names must
// match the table exactly.
func Offset(name string) (int, bool) {
	for _, inst := range instrumentTable {
		if inst.Name == name {
			return inst.Offset, true
		}
	}
	return 0, false
}

// CanonicalInstrument maps a user-typed instrument to its table spelling when
// it matches case-insensitively. An unknown all-lowercase name is title-cased;
// any other name is returned trimmed but otherwise as typed.
func CanonicalInstrument(name string) string {
	name = strings.TrimSpace(name)
	for _, inst := range instrumentTable {
		if strings.EqualFold(inst.Name, name) {
			return inst.Name
		}
	}
	if name != strings.ToLower(name) {
		return name
	}
	return cases.Title(language.English).String(name)
}
