package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"sheetfetch/internal/preflight"
)

func newTestNotifyCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "test-notify",
		Short: "Send a test notification",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			result := preflight.CheckNotificationsFromConfig(cmd.Context(), cfg, true)
			fmt.Fprintln(cmd.OutOrStdout(), result.Detail)
			if !result.Passed {
				return errors.New("notification not sent")
			}
			return nil
		},
	}
}
