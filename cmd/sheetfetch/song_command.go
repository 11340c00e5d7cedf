package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sheetfetch/internal/batch"
)

func newSongCommand(ctx *commandContext) *cobra.Command {
	var key string
	var instruments []string
	var hornOnly bool
	var open bool
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "song <title>",
		Short: "Download one song's parts as restored PDFs",
		Long: "Search the catalog for a title, pick a candidate and key, and write one\n" +
			"PDF per requested part under <download_dir>/<title>/<artist>/<key>/.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := openRuntime(cmd.Context(), ctx, runtimeOptions{in: os.Stdin, out: cmd.OutOrStdout()})
			if err != nil {
				return err
			}
			defer rt.close()

			result, err := rt.orch.RunSong(cmd.Context(), batch.SongRequest{
				Title:       strings.Join(args, " "),
				Key:         key,
				Instruments: instruments,
				HornOnly:    hornOnly,
				Open:        open,
			}, rt.sink)
			if err != nil {
				rt.notifyFailure(cmd.Context(), err, "song "+strings.Join(args, " "))
				return err
			}

			if jsonOutput {
				return writeJSON(cmd, newSongJSON(result))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s in %s\n", result.Candidate.Label(), result.Key)
			tbl := newGrid("Result", "Score")
			for _, path := range result.Scores {
				tbl.add("saved", path)
			}
			for _, part := range result.Skipped {
				tbl.add("skipped", part)
			}
			fmt.Fprintln(out, tbl.render())
			return nil
		},
	}

	cmd.Flags().StringVarP(&key, "key", "k", "", "Preferred key (defaults to the catalog's first key)")
	cmd.Flags().StringSliceVarP(&instruments, "instrument", "i", nil, "Part to download; repeat for several (default: every part)")
	cmd.Flags().BoolVar(&hornOnly, "horn-only", false, "Download only the first French horn part")
	cmd.Flags().BoolVar(&open, "open", false, "Open the output folder when done")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Print the result as JSON")
	return cmd
}
