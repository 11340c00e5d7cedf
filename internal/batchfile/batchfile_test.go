package batchfile_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sheetfetch/internal/batchfile"
	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
)

func TestParseCSVWithoutHeader(t *testing.T) {
	input := "Holy Forever, Viola, D\nGoodness of God,,bb\n"
	list, err := batchfile.Parse(strings.NewReader(input), batchfile.FormatCSV, "French Horn 1/2")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	want := []sheet.Entry{
		{Title: "Holy Forever", Instrument: "Viola", Key: "D"},
		{Title: "Goodness of God", Instrument: "French Horn 1/2", Key: "Bb"},
	}
	assertEntries(t, list.Entries, want)
}

func TestParseCSVHeaderReordersColumns(t *testing.T) {
	input := "key,title,instrument\nEb,Way Maker,Cello\n"
	list, err := batchfile.Parse(strings.NewReader(input), batchfile.FormatCSV, "")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	assertEntries(t, list.Entries, []sheet.Entry{{Title: "Way Maker", Instrument: "Cello", Key: "Eb"}})
}

func TestParseCanonicalizesInstrumentCase(t *testing.T) {
	input := "Holy Forever,french horn 1/2,D\nWay Maker,,Eb\nGrace,english horn,G\n"
	list, err := batchfile.Parse(strings.NewReader(input), batchfile.FormatCSV, "VIOLA")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	assertEntries(t, list.Entries, []sheet.Entry{
		{Title: "Holy Forever", Instrument: "French Horn 1/2", Key: "D"},
		{Title: "Way Maker", Instrument: "Viola", Key: "Eb"},
		{Title: "Grace", Instrument: "English Horn", Key: "G"},
	})
}

func TestParseSkipsUntitledRows(t *testing.T) {
	input := "Holy Forever,Viola,D\n,,\n  ,Cello,\n"
	list, err := batchfile.Parse(strings.NewReader(input), batchfile.FormatCSV, "")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	if len(list.Entries) != 1 {
		t.Fatalf("expected untitled rows to be skipped, got %v", list.Entries)
	}
}

func TestParseJSONForms(t *testing.T) {
	array := `[{"title": "Holy Forever", "instrument": "Viola", "key": "D"}]`
	object := `{"name": "Sunday", "entries": [{"title": "Holy Forever", "key": "d"}]}`

	list, err := batchfile.Parse(strings.NewReader(array), batchfile.FormatJSON, "")
	if err != nil {
		t.Fatalf("array form: %v", err)
	}
	assertEntries(t, list.Entries, []sheet.Entry{{Title: "Holy Forever", Instrument: "Viola", Key: "D"}})

	list, err = batchfile.Parse(strings.NewReader(object), batchfile.FormatJSON, "Viola")
	if err != nil {
		t.Fatalf("object form: %v", err)
	}
	if list.Name != "Sunday" {
		t.Fatalf("expected list name Sunday, got %q", list.Name)
	}
	assertEntries(t, list.Entries, []sheet.Entry{{Title: "Holy Forever", Instrument: "Viola", Key: "D"}})
}

func TestParseRejectsInvalidInput(t *testing.T) {
	cases := map[string]struct {
		format batchfile.Format
		input  string
	}{
		"unknown field":  {batchfile.FormatJSON, `[{"title": "A", "key": "C", "tempo": 90}]`},
		"missing key":    {batchfile.FormatJSON, `[{"title": "A"}]`},
		"bad key":        {batchfile.FormatCSV, "A,Viola,H\n"},
		"unknown sharp":  {batchfile.FormatCSV, "A,Viola,E#\n"},
		"no instrument":  {batchfile.FormatCSV, "A,,C\n"},
		"too many cells": {batchfile.FormatCSV, "A,Viola,C,extra\n"},
		"empty list":     {batchfile.FormatJSON, `[]`},
		"malformed json": {batchfile.FormatJSON, `[{`},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := batchfile.Parse(strings.NewReader(tc.input), tc.format, "")
			if err == nil {
				t.Fatal("expected error")
			}
			if !errors.Is(err, services.ErrValidation) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestLoadUsesFileNameAsListName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "easter.csv")
	if err := os.WriteFile(path, []byte("Christ Is Risen,Viola,C\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	list, err := batchfile.Load(path, "")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if list.Name != "easter" {
		t.Fatalf("expected name from file, got %q", list.Name)
	}
}

func TestLoadMissingFileIsFilesystemError(t *testing.T) {
	_, err := batchfile.Load(filepath.Join(t.TempDir(), "absent.json"), "")
	if !errors.Is(err, services.ErrFilesystem) {
		t.Fatalf("expected filesystem error, got %v", err)
	}
}

func TestFormatFor(t *testing.T) {
	if batchfile.FormatFor("list.JSON") != batchfile.FormatJSON {
		t.Fatal("expected json for .JSON")
	}
	if batchfile.FormatFor("list.txt") != batchfile.FormatCSV {
		t.Fatal("expected csv fallback")
	}
}

func assertEntries(t *testing.T, got, want []sheet.Entry) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d (%v)", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("entry %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
