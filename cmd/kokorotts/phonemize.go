package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/tts"
)

func newPhonemizeCmd() *cobra.Command {
	var text string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "phonemize",
		Short: "Print the phonemes and token ids for text without loading the model",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			p, err := newPhonemizer(cfg)
			if err != nil {
				return err
			}

			lang, err := tts.ResolveLanguage(phonemize.Language(cfg.TTS.Language), cfg.TTS.Voice)
			if err != nil {
				return err
			}

			res, err := p.Phonemize(inputText, lang)
			if err != nil {
				return mapSynthError(err)
			}

			return writePhonemes(cmd.OutOrStdout(), lang, res, asJSON)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to phonemize (if empty, read from stdin)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of plain text")

	return cmd
}

// newPhonemizer builds the text front end from configuration with the
// built-in vocabulary.
func newPhonemizer(cfg config.Config) (*phonemize.Phonemizer, error) {
	unknown, err := phonemize.ParseUnknownPolicy(cfg.TTS.UnknownChars)
	if err != nil {
		return nil, err
	}

	opts := phonemize.Options{MaxTokens: cfg.TTS.MaxTokens, Unknown: unknown}

	if cfg.Paths.LexiconPath != "" {
		base, err := phonemize.DefaultLexicon()
		if err != nil {
			return nil, err
		}

		extra, err := phonemize.LoadLexicon(cfg.Paths.LexiconPath)
		if err != nil {
			return nil, err
		}

		opts.Lexicon = base.Merge(extra)
	}

	return phonemize.New(opts)
}

func writePhonemes(w io.Writer, lang phonemize.Language, res *phonemize.Result, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(map[string]any{
			"language": lang,
			"text":     res.Text,
			"phonemes": res.Phonemes,
			"tokens":   res.IDs,
			"skipped":  string(res.Skipped),
		})
	}

	if _, err := fmt.Fprintf(w, "language: %s\nphonemes: %s\ntokens: %v\n", lang, res.Phonemes, res.IDs); err != nil {
		return err
	}

	if len(res.Skipped) > 0 {
		_, err := fmt.Fprintf(w, "skipped: %q\n", string(res.Skipped))
		return err
	}

	return nil
}
