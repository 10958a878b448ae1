package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/cache"
	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime, model and voice checks",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()

			dcfg := doctor.Config{
				GoVersion:   func() (string, error) { return runtime.Version(), nil },
				ModelPath:   cfg.Paths.ModelPath,
				VoicesPath:  cfg.Paths.VoicesPath,
				LexiconPath: cfg.Paths.LexiconPath,
			}

			if cfg.TTS.Cache == config.CacheDisk {
				dcfg.CacheDir = cfg.Paths.CacheDir
				if dcfg.CacheDir == "" {
					dcfg.CacheDir, err = cache.DefaultDir()
					if err != nil {
						return err
					}
				}
			}

			result := doctor.Run(dcfg, out)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	return cmd
}
