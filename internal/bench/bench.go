// Package bench provides benchmarking primitives for the kokorotts bench command.
package bench

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/tts"
)

// Synthesizer is the call being measured. *tts.Engine and *tts.Service
// implement it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// Run synthesizes req runs times. Each timed run covers synthesis and WAV
// encoding; the audio length is read back from the encoded file.
func Run(ctx context.Context, synth Synthesizer, req tts.Request, runs int) ([]RunResult, error) {
	if runs < 1 {
		return nil, fmt.Errorf("runs must be at least 1, got %d", runs)
	}

	results := make([]RunResult, 0, runs)

	for i := range runs {
		start := time.Now()

		res, err := synth.Synthesize(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}

		wav, err := audio.EncodeWAV(res.Samples, res.SampleRate)
		if err != nil {
			return nil, fmt.Errorf("run %d: encode wav: %w", i+1, err)
		}

		dur := time.Since(start)

		audioDur, err := WAVDuration(wav)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i+1, err)
		}

		results = append(results, RunResult{
			Index:       i,
			Cold:        i == 0,
			Duration:    dur,
			WAVDuration: audioDur,
			WAVBytes:    len(wav),
			RTF:         CalcRTF(dur, audioDur),
		})
	}

	return results, nil
}

// ---------------------------------------------------------------------------
// Run result and stats
// ---------------------------------------------------------------------------

// RunResult holds the timing and audio metadata for a single synthesis run.
type RunResult struct {
	Index       int
	Cold        bool // true for the first run (cold-start)
	Duration    time.Duration
	WAVDuration time.Duration
	WAVBytes    int
	RTF         float64
}

// Stats holds aggregate timing statistics across all runs.
type Stats struct {
	Min  time.Duration
	Max  time.Duration
	Mean time.Duration
}

// MeanRTF averages RTF over runs; 0 for no runs.
func MeanRTF(runs []RunResult) float64 {
	if len(runs) == 0 {
		return 0
	}

	var total float64
	for _, r := range runs {
		total += r.RTF
	}

	return total / float64(len(runs))
}

// Durations extracts the wall time of each run.
func Durations(runs []RunResult) []time.Duration {
	out := make([]time.Duration, len(runs))
	for i, r := range runs {
		out[i] = r.Duration
	}

	return out
}

// ComputeStats summarizes durations; the zero Stats for an empty slice.
func ComputeStats(durations []time.Duration) Stats {
	if len(durations) == 0 {
		return Stats{}
	}

	var sum time.Duration
	for _, d := range durations {
		sum += d
	}

	return Stats{
		Min:  slices.Min(durations),
		Max:  slices.Max(durations),
		Mean: sum / time.Duration(len(durations)),
	}
}

// ---------------------------------------------------------------------------
// RTF helpers
// ---------------------------------------------------------------------------

// CalcRTF is synthDur / audioDur, or 0 when there is no audio.
func CalcRTF(synthDur, audioDur time.Duration) float64 {
	if audioDur <= 0 {
		return 0
	}

	return synthDur.Seconds() / audioDur.Seconds()
}

// WAVDuration reads the playback length of an encoded PCM WAV from its fmt
// and data chunks.
func WAVDuration(wav []byte) (time.Duration, error) {
	if len(wav) < 44 {
		return 0, fmt.Errorf("wav too short (%d bytes)", len(wav))
	}

	if string(wav[:4]) != "RIFF" || string(wav[8:12]) != "WAVE" {
		return 0, errors.New("not a RIFF/WAVE file")
	}

	var (
		format  []byte
		pcmSize int64 = -1
	)

	for rest := wav[12:]; len(rest) >= 8; {
		id, size := string(rest[:4]), int64(binary.LittleEndian.Uint32(rest[4:8]))
		body := rest[8:]

		switch id {
		case "fmt ":
			format = body[:min(size, int64(len(body)))]
		case "data":
			pcmSize = size
		}

		next := size + size%2
		if next >= int64(len(body)) {
			break
		}

		rest = body[next:]
	}

	switch {
	case format == nil:
		return 0, errors.New("fmt chunk not found")
	case len(format) < 16:
		return 0, errors.New("fmt chunk too short")
	case pcmSize < 0:
		return 0, errors.New("data chunk not found")
	}

	rate := int64(binary.LittleEndian.Uint32(format[4:8]))
	align := int64(binary.LittleEndian.Uint16(format[12:14]))
	if rate == 0 || align == 0 {
		return 0, fmt.Errorf("invalid fmt chunk: sampleRate=%d blockAlign=%d", rate, align)
	}

	return time.Duration(pcmSize / align * int64(time.Second) / rate), nil
}

// ---------------------------------------------------------------------------
// RTF threshold gate
// ---------------------------------------------------------------------------

// CheckRTFThreshold returns an error if meanRTF > threshold.
// A threshold of 0 disables the gate.
func CheckRTFThreshold(meanRTF, threshold float64) error {
	if threshold > 0 && meanRTF > threshold {
		return fmt.Errorf("mean RTF %.3f exceeds threshold %.3f", meanRTF, threshold)
	}

	return nil
}

// ---------------------------------------------------------------------------
// Output formatters
// ---------------------------------------------------------------------------

// FormatTable writes a human-readable ASCII table of bench results to w.
func FormatTable(runs []RunResult, stats Stats, w io.Writer) {
	sb := &strings.Builder{}

	fmt.Fprintf(sb, "%-5s  %-5s  %10s  %12s  %8s\n", "Run", "Cold", "MS", "Audio(ms)", "RTF")
	fmt.Fprintln(sb, strings.Repeat("-", 48))

	for _, r := range runs {
		cold := ""
		if r.Cold {
			cold = "yes"
		}
		fmt.Fprintf(sb, "%-5d  %-5s  %10.1f  %12.1f  %8.3f\n",
			r.Index+1,
			cold,
			float64(r.Duration.Milliseconds()),
			float64(r.WAVDuration.Milliseconds()),
			r.RTF,
		)
	}

	fmt.Fprintln(sb, strings.Repeat("-", 48))
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (min)\n", "", "", float64(stats.Min.Milliseconds()), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (mean)\n", "", "", float64(stats.Mean.Milliseconds()), "", "")
	fmt.Fprintf(sb, "%-5s  %-5s  %10.1f  %12s  %8s  (max)\n", "", "", float64(stats.Max.Milliseconds()), "", "")

	if len(runs) > 0 {
		fmt.Fprintf(sb, "mean RTF %.3f, %s WAV per run\n", MeanRTF(runs), humanize.Bytes(uint64(runs[0].WAVBytes)))
	}

	fmt.Fprint(w, sb.String())
}

// jsonReport is the top-level JSON structure emitted by FormatJSON.
type jsonReport struct {
	Runs  []jsonRun `json:"runs"`
	Stats jsonStats `json:"stats"`
}

type jsonRun struct {
	Index      int     `json:"index"`
	Cold       bool    `json:"cold"`
	DurationMS float64 `json:"duration_ms"`
	AudioMS    float64 `json:"audio_ms"`
	RTF        float64 `json:"rtf"`
}

type jsonStats struct {
	MinMS   float64 `json:"min_ms"`
	MeanMS  float64 `json:"mean_ms"`
	MaxMS   float64 `json:"max_ms"`
	MeanRTF float64 `json:"mean_rtf"`
}

// FormatJSON writes a JSON report of bench results to w.
func FormatJSON(runs []RunResult, stats Stats, w io.Writer) {
	jr := jsonReport{
		Runs: make([]jsonRun, len(runs)),
		Stats: jsonStats{
			MinMS:   float64(stats.Min.Milliseconds()),
			MeanMS:  float64(stats.Mean.Milliseconds()),
			MaxMS:   float64(stats.Max.Milliseconds()),
			MeanRTF: MeanRTF(runs),
		},
	}
	for i, r := range runs {
		jr.Runs[i] = jsonRun{
			Index:      r.Index,
			Cold:       r.Cold,
			DurationMS: float64(r.Duration.Milliseconds()),
			AudioMS:    float64(r.WAVDuration.Milliseconds()),
			RTF:        r.RTF,
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(jr)
}
