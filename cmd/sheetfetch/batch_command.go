package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sheetfetch/internal/batch"
	"sheetfetch/internal/batchfile"
	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/report"
)

func newBatchCommand(ctx *commandContext) *cobra.Command {
	var name string
	var instrument string
	var writeReport bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "batch <list.csv|list.json>",
		Short: "Acquire every entry of a song list",
		Long: "Read a CSV (title,instrument,key) or JSON list and acquire each entry in\n" +
			"order under <download_dir>/Batch_<timestamp>/. Failed entries are\n" +
			"recorded and the batch continues.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			defaultInstrument := strings.TrimSpace(instrument)
			if defaultInstrument == "" {
				defaultInstrument = cfg.Batch.DefaultInstrument
			}
			list, err := batchfile.Load(args[0], defaultInstrument)
			if err != nil {
				return err
			}
			if strings.TrimSpace(name) != "" {
				list.Name = strings.TrimSpace(name)
			}

			rt, err := openRuntime(cmd.Context(), ctx, runtimeOptions{in: os.Stdin, out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer rt.close()

			summary, err := runBatchList(cmd.Context(), rt, list, args[0], cmd.OutOrStdout(), jsonOutput)
			if summary != nil && writeReport {
				path, rerr := report.Export(context.WithoutCancel(cmd.Context()), rt.store, summary.BatchID, "", rt.logger)
				if rerr != nil {
					return rerr
				}
				if !jsonOutput {
					fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
				}
			}
			return err
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Batch name (defaults to the list file name)")
	cmd.Flags().StringVarP(&instrument, "instrument", "i", "", "Instrument for entries that leave it blank")
	cmd.Flags().BoolVar(&writeReport, "report", false, "Write report.xlsx into the batch folder when done")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the summary as JSON")
	return cmd
}

// runBatchList runs one parsed list and prints its summary, as a table or
// as JSON. A returned summary is printed even when err is set.
func runBatchList(ctx context.Context, rt *runtime, list batchfile.List, source string, out io.Writer, asJSON bool) (*batch.Summary, error) {
	if abs, err := filepath.Abs(source); err == nil {
		source = abs
	}
	summary, err := rt.orch.Run(ctx, batch.Request{
		Name:    list.Name,
		Source:  source,
		Entries: list.Entries,
	}, rt.sink)
	switch {
	case summary == nil:
	case asJSON:
		if jerr := encodeJSON(out, summaryJSON(summary)); jerr != nil && err == nil {
			err = jerr
		}
	default:
		fmt.Fprint(out, renderSummary(summary))
	}
	if err != nil {
		rt.notifyFailure(ctx, err, "batch "+list.Name)
	}
	return summary, err
}

func renderSummary(summary *batch.Summary) string {
	tbl := newEntryGrid("Output / Detail")
	for _, result := range summary.Results {
		output := result.OutputPath
		if rel, err := filepath.Rel(summary.RootDir, output); err == nil && output != "" {
			output = rel
		}
		tbl.addEntry(result.Position, result.Entry, result.Status, firstNonEmpty(output, result.Detail))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s (%s)\n", summary.Name, summary.BatchID)
	b.WriteString(tbl.render())
	b.WriteString("\n")
	counts := summary.Counts()
	parts := make([]string, 0, len(counts))
	for _, status := range jobstore.AllStatuses() {
		if n := counts[status]; n > 0 {
			parts = append(parts, fmt.Sprintf("%s=%d", status, n))
		}
	}
	fmt.Fprintf(&b, "%d/%d completed in %s", summary.Completed(), len(summary.Results), summary.Duration.Round(time.Second))
	if len(parts) > 0 {
		fmt.Fprintf(&b, " [%s]", strings.Join(parts, " "))
	}
	if summary.Aborted {
		b.WriteString(" (stopped early)")
	}
	fmt.Fprintf(&b, "\nOutput: %s\n", summary.RootDir)
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
