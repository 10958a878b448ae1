package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/voice"
)

func newVoicesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "voices [query]",
		Short: "List voices in the configured voice archive",
		Long:  "List voices in the configured voice archive. A query ranks voices by fuzzy match.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			store, err := voice.Load(cfg.Paths.VoicesPath, voice.LoadOptions{})
			if err != nil {
				return err
			}

			names := store.Names()
			if len(args) == 1 {
				names = filterVoices(names, args[0])
				if len(names) == 0 {
					return fmt.Errorf("no voice matches %q", args[0])
				}
			}

			return writeVoiceTable(cmd.OutOrStdout(), store, names)
		},
	}

	return cmd
}

// filterVoices returns the names matching query, best match first.
func filterVoices(names []string, query string) []string {
	matches := fuzzy.Find(query, names)

	out := make([]string, len(matches))
	for i, m := range matches {
		out[i] = m.Str
	}

	return out
}

func writeVoiceTable(w io.Writer, store *voice.Store, names []string) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLANGUAGE\tSHAPE\tSIZE")

	for _, name := range names {
		emb, err := store.Resolve(name)
		if err != nil {
			return err
		}

		lang := "-"
		if l, err := phonemize.LanguageForVoice(name); err == nil {
			lang = string(l)
		}

		fmt.Fprintf(tw, "%s\t%s\t%dx%d\t%s\n",
			name, lang, emb.Rows, emb.Width, humanize.Bytes(uint64(len(emb.Data)*4)))
	}

	return tw.Flush()
}
