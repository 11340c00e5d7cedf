package batchfile

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"sheetfetch/internal/services"
	"sheetfetch/internal/sheet"
	"sheetfetch/internal/transpose"
)

//go:embed schema.json
var schemaJSON []byte

// Format is a batch list encoding.
type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

// ErrEmpty reports a list without any titled entry.
var ErrEmpty = errors.New("batch list has no entries")

// List is a parsed batch list.
type List struct {
	// Name is the optional list name from JSON input.
	Name    string
	Entries []sheet.Entry
}

var (
	compileOnce sync.Once
	compiled    *jsonschema.Schema
	compileErr  error
)

func schema() (*jsonschema.Schema, error) {
	compileOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource("batch.json", bytes.NewReader(schemaJSON)); err != nil {
			compileErr = fmt.Errorf("add schema: %w", err)
			return
		}
		compiled, compileErr = compiler.Compile("batch.json")
	})
	return compiled, compileErr
}

// FormatFor picks the format from a file extension. Anything other than
// .json is read as CSV.
func FormatFor(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return FormatJSON
	}
	return FormatCSV
}

// Load reads and validates the list at path.
func Load(path, defaultInstrument string) (List, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return List{}, services.Wrap(services.ErrFilesystem, "batchfile", "read", path, err)
	}
	list, err := Parse(bytes.NewReader(data), FormatFor(path), defaultInstrument)
	if err != nil {
		return List{}, err
	}
	if list.Name == "" {
		list.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return list, nil
}

// Parse reads a list in format from r.
func Parse(r io.Reader, format Format, defaultInstrument string) (List, error) {
	var (
		doc any
		err error
	)
	switch format {
	case FormatJSON:
		doc, err = decodeJSON(r)
	case FormatCSV:
		doc, err = decodeCSV(r)
	default:
		return List{}, services.Wrap(services.ErrValidation, "batchfile", "parse", fmt.Sprintf("unknown format %q", format), nil)
	}
	if err != nil {
		return List{}, services.Wrap(services.ErrValidation, "batchfile", "parse", string(format), err)
	}

	doc = dropUntitled(doc)
	s, err := schema()
	if err != nil {
		return List{}, services.Wrap(services.ErrConfiguration, "batchfile", "compile schema", "", err)
	}
	if err := s.Validate(doc); err != nil {
		return List{}, services.Wrap(services.ErrValidation, "batchfile", "validate", "list does not match schema", err)
	}
	return toList(doc, defaultInstrument)
}

func decodeJSON(r io.Reader) (any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	return doc, nil
}

var csvColumns = []string{"title", "instrument", "key"}

// decodeCSV turns rows into the JSON array form so both encodings share one
// schema. A first row naming the columns is treated as a header and may
// reorder them; other rows are title, instrument, key.
func decodeCSV(r io.Reader) (any, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}

	columns := csvColumns
	if len(rows) > 0 && isHeader(rows[0]) {
		columns = make([]string, len(rows[0]))
		for i, name := range rows[0] {
			columns[i] = strings.ToLower(strings.TrimSpace(name))
		}
		rows = rows[1:]
	}

	out := make([]any, 0, len(rows))
	for line, row := range rows {
		if len(row) > len(columns) {
			return nil, fmt.Errorf("row %d has %d fields, want at most %d", line+1, len(row), len(columns))
		}
		entry := make(map[string]any, len(columns))
		for i, value := range row {
			entry[columns[i]] = strings.TrimSpace(value)
		}
		if _, ok := entry["key"]; !ok {
			entry["key"] = ""
		}
		out = append(out, entry)
	}
	return out, nil
}

func isHeader(row []string) bool {
	for _, cell := range row {
		if strings.EqualFold(strings.TrimSpace(cell), "title") {
			return true
		}
	}
	return false
}

// dropUntitled removes entries whose title is blank so placeholder rows left
// in a spreadsheet do not fail validation.
func dropUntitled(doc any) any {
	filter := func(items []any) []any {
		kept := items[:0:0]
		for _, item := range items {
			if fields, ok := item.(map[string]any); ok {
				if title, ok := fields["title"].(string); ok && strings.TrimSpace(title) == "" {
					continue
				}
			}
			kept = append(kept, item)
		}
		return kept
	}
	switch v := doc.(type) {
	case []any:
		return filter(v)
	case map[string]any:
		if items, ok := v["entries"].([]any); ok {
			v["entries"] = filter(items)
		}
	}
	return doc
}

func toList(doc any, defaultInstrument string) (List, error) {
	var list List
	items, ok := doc.([]any)
	if !ok {
		obj := doc.(map[string]any)
		if name, ok := obj["name"].(string); ok {
			list.Name = strings.TrimSpace(name)
		}
		items, _ = obj["entries"].([]any)
	}

	for _, item := range items {
		fields := item.(map[string]any)
		title := strings.TrimSpace(stringField(fields, "title"))
		if title == "" {
			continue
		}
		instrument := transpose.CanonicalInstrument(stringField(fields, "instrument"))
		if instrument == "" {
			instrument = transpose.CanonicalInstrument(defaultInstrument)
		}
		if instrument == "" {
			return List{}, services.Wrap(services.ErrValidation, "batchfile", "validate",
				fmt.Sprintf("%q has no instrument and no default is configured", title), nil)
		}
		key := transpose.NormalizeKey(stringField(fields, "key"))
		if !transpose.ValidKey(key) {
			return List{}, services.Wrap(services.ErrValidation, "batchfile", "validate",
				fmt.Sprintf("%q has unrecognized key %q", title, key), nil)
		}
		list.Entries = append(list.Entries, sheet.Entry{
			Title:      title,
			Instrument: instrument,
			Key:        key,
		})
	}
	if len(list.Entries) == 0 {
		return List{}, services.Wrap(services.ErrValidation, "batchfile", "validate", "", ErrEmpty)
	}
	return list, nil
}

func stringField(fields map[string]any, name string) string {
	value, _ := fields[name].(string)
	return value
}
