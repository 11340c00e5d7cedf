package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/sheet"
)

// grid is a rounded go-pretty table. Short rows are padded; extra cells are
// dropped.
type grid struct {
	headers []string
	right   map[int]bool
	rows    []table.Row
}

func newGrid(headers ...string) *grid {
	return &grid{headers: headers, right: map[int]bool{}}
}

// alignRight right-aligns the 0-based columns, typically counts.
func (g *grid) alignRight(cols ...int) *grid {
	for _, c := range cols {
		g.right[c] = true
	}
	return g
}

func (g *grid) add(cells ...string) {
	row := make(table.Row, len(g.headers))
	for i := range row {
		row[i] = ""
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	g.rows = append(g.rows, row)
}

func (g *grid) render() string {
	if len(g.headers) == 0 {
		return ""
	}
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	header := make(table.Row, len(g.headers))
	configs := make([]table.ColumnConfig, len(g.headers))
	for i, h := range g.headers {
		header[i] = h
		align := text.AlignLeft
		if g.right[i] {
			align = text.AlignRight
		}
		configs[i] = table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft}
	}
	tw.AppendHeader(header)
	tw.AppendRows(g.rows)
	tw.SetColumnConfigs(configs)
	return tw.Render()
}

// entryGrid lists batch entries with their outcome; batch summaries and
// history share its columns.
type entryGrid struct {
	*grid
}

func newEntryGrid(detailHeader string) entryGrid {
	return entryGrid{newGrid("#", "Title", "Instrument", "Key", "Status", detailHeader).alignRight(0)}
}

func (g entryGrid) addEntry(position int, e sheet.Entry, status jobstore.Status, detail string) {
	g.add(strconv.Itoa(position+1), e.Title, e.Instrument, e.Key, string(status), detail)
}
