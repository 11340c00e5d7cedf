package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sheetfetch/internal/batchfile"
	"sheetfetch/internal/logging"
	"sheetfetch/internal/watch"
)

func newWatchCommand(ctx *commandContext) *cobra.Command {
	var dir string
	var debounce time.Duration
	var skipExisting bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run batches for list files dropped into the inbox",
		Long: "Watch the inbox directory and run each CSV or JSON list that lands in it\n" +
			"as a batch. Handled lists move to processed/ or failed/.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			inbox := strings.TrimSpace(dir)
			if inbox == "" {
				inbox = cfg.Paths.InboxDir
			}

			rt, err := openRuntime(cmd.Context(), ctx, runtimeOptions{in: os.Stdin, out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer rt.close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Watching %s (Ctrl+C to stop)\n", inbox)
			return watch.Run(cmd.Context(), watch.Options{
				Dir:         inbox,
				Debounce:    debounce,
				InitialScan: !skipExisting,
			}, func(runCtx context.Context, path string) error {
				list, err := batchfile.Load(path, cfg.Batch.DefaultInstrument)
				if err != nil {
					logging.WarnWithContext(rt.logger, "inbox list rejected", "inbox_list_invalid",
						logging.String("file", path),
						logging.Error(err),
					)
					rt.notifyFailure(runCtx, err, "inbox "+path)
					return err
				}
				_, err = runBatchList(runCtx, rt, list, path, out, false)
				return err
			}, rt.logger)
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Inbox directory (defaults to paths.inbox_dir)")
	cmd.Flags().DurationVar(&debounce, "debounce", 2*time.Second, "Quiet period before a new file is read")
	cmd.Flags().BoolVar(&skipExisting, "skip-existing", false, "Ignore lists already in the inbox at start")
	return cmd
}
