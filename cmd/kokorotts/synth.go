package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/bench"
	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/tts"
)

func newSynthCmd() *cobra.Command {
	var text string
	var out string
	var sampleRate int

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			inputText, err := readSynthText(text, cmd.InOrStdin())
			if err != nil {
				return err
			}

			if sampleRate != 0 {
				if err := audio.CheckSampleRate(sampleRate); err != nil {
					return fmt.Errorf("--sample-rate: %w", err)
				}
			}

			start := time.Now()

			res, err := synthesize(cmd.Context(), cfg, inputText)
			if err != nil {
				return mapSynthError(err)
			}

			elapsed := time.Since(start)

			samples, rate := res.Samples, res.SampleRate
			if sampleRate > 0 && sampleRate != rate {
				samples, err = audio.Resample(samples, rate, sampleRate)
				if err != nil {
					return err
				}

				rate = sampleRate
			}

			wav, err := audio.EncodeWAV(samples, rate)
			if err != nil {
				return err
			}

			if err := writeSynthOutput(out, wav, cmd.OutOrStdout()); err != nil {
				return err
			}

			slog.Info("synthesis complete",
				"out", out,
				"voice", cfg.TTS.Voice,
				"language", string(res.Language),
				"audio", res.Duration().Round(time.Millisecond).String(),
				"size", humanize.Bytes(uint64(len(wav))),
				"rtf", fmt.Sprintf("%.3f", bench.CalcRTF(elapsed, res.Duration())),
			)

			return nil
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize (if empty, read from stdin)")
	cmd.Flags().StringVar(&out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().IntVar(&sampleRate, "sample-rate", 0, "Resample output to this rate (0 = model rate)")

	return cmd
}

// synthesize builds an engine from cfg, renders text and closes the engine.
func synthesize(ctx context.Context, cfg config.Config, text string) (*tts.Result, error) {
	engine, err := tts.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	svc := tts.NewService(engine, cfg.TTS, cfg.Runtime.Workers)

	return svc.Synthesize(ctx, tts.Request{Text: text})
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(wavData)
		return err
	}
	return os.WriteFile(outPath, wavData, 0o644)
}

func readSynthText(text string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		return text, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("either provide --text or pipe text on stdin")
	}
	return input, nil
}

// mapSynthError adds a hint for errors a user can fix from the command line.
func mapSynthError(err error) error {
	switch {
	case errors.Is(err, tts.ErrConstruction):
		return fmt.Errorf("synth failed: check --model and --voices or run 'kokorotts doctor': %w", err)
	case errors.Is(err, tts.ErrVoiceNotFound):
		return fmt.Errorf("synth failed: list voices with 'kokorotts voices': %w", err)
	case errors.Is(err, tts.ErrTokenization):
		return fmt.Errorf("synth failed: use --unknown-chars skip to drop unsupported characters: %w", err)
	}

	return err
}
