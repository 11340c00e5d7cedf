package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"sheetfetch/internal/jobstore"
	"sheetfetch/internal/report"
)

func newReportCommand(ctx *commandContext) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "report [batch-id|latest]",
		Short: "Export a batch's outcomes to an XLSX spreadsheet",
		Long: "Write an Entries sheet (one row per entry) and a Summary sheet for a\n" +
			"recorded batch. The default destination is report.xlsx in the batch folder.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			store, err := jobstore.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			ref := "latest"
			if len(args) == 1 {
				ref = args[0]
			}
			path, err := report.Export(cmd.Context(), store, ref, output, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Destination .xlsx path")
	return cmd
}
