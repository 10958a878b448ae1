package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/audio/playback"
)

func newSayCmd() *cobra.Command {
	var text string
	var wavPath string

	cmd := &cobra.Command{
		Use:   "say",
		Short: "Synthesize text and play it on the default audio device",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var samples []float32
			var sampleRate int

			if wavPath != "" {
				var err error
				samples, sampleRate, err = loadWAV(wavPath)
				if err != nil {
					return err
				}
			} else {
				cfg, err := requireConfig()
				if err != nil {
					return err
				}

				inputText, err := readSynthText(text, cmd.InOrStdin())
				if err != nil {
					return err
				}

				res, err := synthesize(ctx, cfg, inputText)
				if err != nil {
					return mapSynthError(err)
				}
				samples, sampleRate = res.Samples, res.SampleRate
			}

			player, err := playback.Open(sampleRate)
			if err != nil {
				return err
			}

			err = player.Play(ctx, samples, sampleRate)
			if ctx.Err() != nil {
				return nil
			}

			return err
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to speak (if empty, read from stdin)")
	cmd.Flags().StringVar(&wavPath, "wav", "", "Play an existing mono 16-bit WAV file instead of synthesizing")
	cmd.MarkFlagsMutuallyExclusive("text", "wav")

	return cmd
}


func loadWAV(path string) ([]float32, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}

	samples, rate, err := audio.DecodeWAV(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	return samples, rate, nil
}
