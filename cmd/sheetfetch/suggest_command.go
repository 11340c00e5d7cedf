package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"sheetfetch/internal/transpose"
)

func newSuggestCommand() *cobra.Command {
	var instrument string
	var key string
	var listInstruments bool

	cmd := &cobra.Command{
		Use:   "suggest [available keys...]",
		Short: "Suggest instrument/key pairs when the wanted key is missing",
		Long: "Given the keys a song is offered in, list the instruments that can read\n" +
			"one of them and sound in the target key, then the closest alternatives.",
		Example:     "  sheetfetch suggest --instrument \"French Horn 1/2\" --key D C Eb G",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if listInstruments {
				tbl := newGrid("Instrument", "Offset").alignRight(1)
				for _, inst := range transpose.Instruments() {
					tbl.add(inst.Name, strconv.Itoa(inst.Offset))
				}
				fmt.Fprintln(out, tbl.render())
				return nil
			}
			if strings.TrimSpace(instrument) == "" || strings.TrimSpace(key) == "" {
				return errors.New("--instrument and --key are required")
			}
			if _, ok := transpose.Offset(instrument); !ok {
				return fmt.Errorf("unknown instrument %q (see --list)", instrument)
			}
			if !transpose.ValidKey(key) {
				return fmt.Errorf("unknown key %q; valid keys: %s", key, strings.Join(transpose.ValidKeys(), " "))
			}
			if len(args) == 0 {
				return errors.New("at least one available key is required")
			}

			suggestions := transpose.ComputeSuggestions(args, instrument, key)
			if suggestions.Empty() {
				fmt.Fprintln(out, "No suggestions")
				return nil
			}
			tbl := newGrid("Match", "Instrument", "Key", "Interval", "Direction")
			for _, s := range suggestions.Direct {
				tbl.add("direct", s.Instrument, s.Key)
			}
			for _, s := range suggestions.Closest {
				tbl.add("closest", s.Instrument, s.Key, s.Interval, string(s.Direction))
			}
			fmt.Fprintln(out, tbl.render())
			return nil
		},
	}

	cmd.Flags().StringVarP(&instrument, "instrument", "i", "", "Instrument the player reads for")
	cmd.Flags().StringVarP(&key, "key", "k", "", "Key the song should sound in")
	cmd.Flags().BoolVar(&listInstruments, "list", false, "List known instruments and their offsets")
	return cmd
}
