// Package report exports recorded batches as XLSX workbooks.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xuri/excelize/v2"

	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/services"
)

const (
	entriesSheet = "Entries"
	summarySheet = "Summary"
	dateLayout   = "2006-01-02 15:04:05"
)

var entryHeaders = []string{
	"#",
	"Title",
	"Instrument",
	"Key",
	"Status",
	"Candidate",
	"Output",
	"Detail",
	"Updated",
}

// Build lays out one batch as a workbook with an entry sheet and a summary
// sheet.
func Build(batch *jobstore.Batch, records []*jobstore.Record) (*excelize.File, error) {
	if batch == nil {
		return nil, services.Wrap(services.ErrValidation, "report", "build", "batch is required", nil)
	}
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", entriesSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(summarySheet); err != nil {
		return nil, fmt.Errorf("add summary sheet: %w", err)
	}
	index, _ := f.GetSheetIndex(entriesSheet)
	f.SetActiveSheet(index)

	for i, h := range entryHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(entriesSheet, cell, h)
	}

	counts := make(map[jobstore.Status]int)
	for i, rec := range records {
		row := i + 2
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(entriesSheet, cell, v)
		}
		write(1, rec.Position+1)
		write(2, rec.Entry.Title)
		write(3, rec.Entry.Instrument)
		write(4, rec.Entry.Key)
		write(5, string(rec.Status))
		write(6, rec.Candidate)
		write(7, rec.OutputPath)
		write(8, rec.Detail)
		write(9, formatTime(rec.UpdatedAt))
		counts[rec.Status]++
	}

	_ = f.SetColWidth(entriesSheet, "A", "A", 5)
	_ = f.SetColWidth(entriesSheet, "B", "B", 32)
	_ = f.SetColWidth(entriesSheet, "C", "C", 20)
	_ = f.SetColWidth(entriesSheet, "D", "E", 14)
	_ = f.SetColWidth(entriesSheet, "F", "F", 40)
	_ = f.SetColWidth(entriesSheet, "G", "G", 60)
	_ = f.SetColWidth(entriesSheet, "H", "H", 48)
	_ = f.SetColWidth(entriesSheet, "I", "I", 20)

	if err := f.AutoFilter(entriesSheet, fmt.Sprintf("A1:I%d", len(records)+1), nil); err != nil {
		return nil, fmt.Errorf("auto filter: %w", err)
	}

	summary := [][2]any{
		{"Batch", batch.Name},
		{"ID", batch.ID},
		{"Status", batch.Status},
		{"Folder", batch.RootDir},
		{"Source", batch.Source},
		{"Started", formatTime(batch.StartedAt)},
	}
	if batch.FinishedAt != nil {
		summary = append(summary, [2]any{"Finished", formatTime(*batch.FinishedAt)})
	}
	summary = append(summary, [2]any{"Entries", len(records)})
	for _, status := range jobstore.AllStatuses() {
		if n := counts[status]; n > 0 {
			summary = append(summary, [2]any{string(status), n})
		}
	}
	for i, pair := range summary {
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("A%d", i+1), pair[0])
		_ = f.SetCellValue(summarySheet, fmt.Sprintf("B%d", i+1), pair[1])
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 60)
	return f, nil
}

// Export writes the workbook for the batch matching ref to path and returns
// the path written. An empty path places the report inside the batch folder.
func Export(ctx context.Context, store *jobstore.Store, ref, path string, logger *slog.Logger) (string, error) {
	logger = logging.NewComponentLogger(logger, "report")
	start := time.Now()

	batch, err := store.FindBatch(ctx, ref)
	if err != nil {
		return "", err
	}
	records, err := store.Records(ctx, batch.ID)
	if err != nil {
		return "", err
	}
	f, err := Build(batch, records)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if path == "" {
		path = filepath.Join(batch.RootDir, "report.xlsx")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", services.Wrap(services.ErrFilesystem, "report", "create directory", filepath.Dir(path), err)
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		return "", services.Wrap(services.ErrFilesystem, "report", "render", "xlsx write", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", services.Wrap(services.ErrFilesystem, "report", "write", path, err)
	}

	logger.Info("report written",
		logging.String("batch_id", batch.ID),
		logging.Path(path),
		logging.Int("rows", len(records)),
		logging.Duration("elapsed", time.Since(start)),
	)
	return path, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Local().Format(dateLayout)
}
