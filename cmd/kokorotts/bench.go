package main

import (
	"fmt"
	"os"
	"runtime/pprof"
	"strings"

	"github.com/spf13/cobra"

	"github.com/example/go-kokoro-tts/internal/bench"
	"github.com/example/go-kokoro-tts/internal/bench/stageprof"
	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/tts"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		runs         int
		format       string
		rtfThreshold float64
		stages       bool
		warmup       int
		cpuprofile   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			// Cached results would make every run after the first free.
			cfg.TTS.Cache = config.CacheOff

			engine, err := tts.NewFromConfig(cfg)
			if err != nil {
				return mapSynthError(err)
			}
			defer engine.Close()

			if cpuprofile != "" {
				f, err := os.Create(cpuprofile)
				if err != nil {
					return fmt.Errorf("create cpuprofile: %w", err)
				}
				defer f.Close()

				if err := pprof.StartCPUProfile(f); err != nil {
					return fmt.Errorf("start cpuprofile: %w", err)
				}
				defer pprof.StopCPUProfile()
			}

			req := tts.Request{
				Text:     text,
				Voice:    cfg.TTS.Voice,
				Language: phonemize.Language(cfg.TTS.Language),
				Speed:    cfg.TTS.Speed,
			}

			out := cmd.OutOrStdout()

			if stages {
				timings, err := stageprof.Profile(cmd.Context(), engine, req, warmup, runs)
				if err != nil {
					return err
				}

				timings.Write(out)

				return bench.CheckRTFThreshold(timings.RTF(), rtfThreshold)
			}

			svc := tts.NewService(engine, cfg.TTS, cfg.Runtime.Workers)

			results, err := bench.Run(cmd.Context(), svc, req, runs)
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(results))

			switch format {
			case "json":
				bench.FormatJSON(results, stats, out)
			default:
				bench.FormatTable(results, stats, out)
			}

			return bench.CheckRTFThreshold(bench.MeanRTF(results), rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize for each run (required)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().BoolVar(&stages, "stages", false, "Report per-stage timings instead of per-run results")
	cmd.Flags().IntVar(&warmup, "warmup", 1, "Unmeasured warmup runs for --stages")
	cmd.Flags().StringVar(&cpuprofile, "cpuprofile", "", "Write a CPU profile (stages carry pprof labels)")

	return cmd
}
