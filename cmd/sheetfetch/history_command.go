package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sheetfetch/internal/jobstore"
)

const historyTimeLayout = "2006-01-02 15:04"

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "history [batch-id|latest]",
		Short: "List past batches, or the entries of one batch",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			if len(args) == 0 {
				batches, err := store.Batches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if len(batches) == 0 && !jsonOutput {
					fmt.Fprintln(out, "No batches recorded")
					return nil
				}
				views := make([]batchJSON, 0, len(batches))
				tbl := newGrid("ID", "Name", "Status", "Started", "Completed").alignRight(4)
				for _, b := range batches {
					stats, err := store.Stats(cmd.Context(), b.ID)
					if err != nil {
						return err
					}
					view := historyJSON(b, stats, nil)
					views = append(views, view)
					tbl.add(shortID(b.ID), b.Name, b.Status, b.StartedAt.Local().Format(historyTimeLayout),
						fmt.Sprintf("%d/%d", view.Completed, view.Total))
				}
				if jsonOutput {
					return writeJSON(cmd, views)
				}
				fmt.Fprintln(out, tbl.render())
				return nil
			}

			b, err := store.FindBatch(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			records, err := store.Records(cmd.Context(), b.ID)
			if err != nil {
				return err
			}
			if jsonOutput {
				stats, err := store.Stats(cmd.Context(), b.ID)
				if err != nil {
					return err
				}
				return writeJSON(cmd, historyJSON(b, stats, records))
			}
			fmt.Fprintf(out, "Batch %s (%s), %s\n", b.Name, b.ID, b.Status)
			fmt.Fprintf(out, "Folder: %s\n", b.RootDir)
			tbl := newEntryGrid("Detail")
			for _, r := range records {
				tbl.addEntry(r.Position, r.Entry, r.Status, firstNonEmpty(r.Detail, r.Candidate))
			}
			fmt.Fprintln(out, tbl.render())
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of batches to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print as JSON")
	cmd.AddCommand(newHistoryPruneCommand(ctx))
	return cmd
}

func newHistoryPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete batch history older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := jobstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d batch(es)\n", removed)
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Age beyond which batches are removed")
	return cmd
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
