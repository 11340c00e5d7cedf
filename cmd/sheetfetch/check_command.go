package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sheetfetch/internal/preflight"
)

func newCheckCommand(ctx *commandContext) *cobra.Command {
	var offline bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "check",
		Short: "Verify directories, browser, model checkpoints, and catalog access",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			results := preflight.RunAll(cmd.Context(), cfg, preflight.Options{SkipNetwork: offline})
			results = append(results, preflight.CheckNotificationsFromConfig(cmd.Context(), cfg, false))

			if jsonOutput {
				if err := writeJSON(cmd, results); err != nil {
					return err
				}
			} else {
				tbl := newGrid("Check", "Status", "Detail")
				for _, r := range results {
					tbl.add(r.Name, passLabel(r), r.Detail)
				}
				fmt.Fprintln(cmd.OutOrStdout(), tbl.render())
			}
			if failed := preflight.Failed(results); len(failed) > 0 {
				return errors.New(pluralChecks(len(failed)) + " failed")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the catalog reachability check")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	return cmd
}

func passLabel(r preflight.Result) string {
	switch {
	case r.Passed:
		return "ok"
	case r.Optional:
		return "warn"
	default:
		return "FAIL"
	}
}

func pluralChecks(n int) string {
	if n == 1 {
		return "1 check"
	}
	return fmt.Sprintf("%d checks", n)
}
