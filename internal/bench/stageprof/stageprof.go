// Package stageprof times the pipeline stages of one synthesis request and
// tags them with pprof labels so a CPU profile can be split by stage.
package stageprof

import (
	"context"
	"fmt"
	"io"
	"runtime/pprof"
	"time"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/tts"
)

// Engine is the subset of *tts.Engine that is profiled.
type Engine interface {
	Phonemize(text string, lang phonemize.Language, voice string) (*phonemize.Result, phonemize.Language, error)
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// Timings are per-stage averages over the profiled runs. Synthesize covers
// the whole engine call, including its own phonemization.
type Timings struct {
	Runs       int
	Tokens     int
	Samples    int
	SampleRate int
	Phonemize  time.Duration
	Synthesize time.Duration
	Encode     time.Duration
	Total      time.Duration
}

// AudioDuration is the length of one rendered result.
func (t Timings) AudioDuration() time.Duration {
	if t.SampleRate <= 0 {
		return 0
	}

	return time.Duration(t.Samples) * time.Second / time.Duration(t.SampleRate)
}

// RTF is mean total time over audio length.
func (t Timings) RTF() float64 {
	audioDur := t.AudioDuration()
	if audioDur <= 0 {
		return 0
	}

	return float64(t.Total) / float64(audioDur)
}

// Profile runs warmup unmeasured requests, then runs measured ones.
func Profile(ctx context.Context, e Engine, req tts.Request, warmup, runs int) (Timings, error) {
	if runs < 1 {
		return Timings{}, fmt.Errorf("runs must be >= 1")
	}

	for i := range warmup {
		if _, err := runOnce(ctx, e, req); err != nil {
			return Timings{}, fmt.Errorf("warmup run %d failed: %w", i+1, err)
		}
	}

	var agg Timings

	for i := range runs {
		t, err := runOnce(ctx, e, req)
		if err != nil {
			return Timings{}, fmt.Errorf("profiled run %d failed: %w", i+1, err)
		}

		agg.Phonemize += t.Phonemize
		agg.Synthesize += t.Synthesize
		agg.Encode += t.Encode
		agg.Total += t.Total
		agg.Tokens = t.Tokens
		agg.Samples = t.Samples
		agg.SampleRate = t.SampleRate
	}

	div := time.Duration(runs)
	agg.Runs = runs
	agg.Phonemize /= div
	agg.Synthesize /= div
	agg.Encode /= div
	agg.Total /= div

	return agg, nil
}

func runOnce(ctx context.Context, e Engine, req tts.Request) (Timings, error) {
	var (
		out    Timings
		stgErr error
		res    *tts.Result
	)

	startTotal := time.Now()

	pprof.Do(ctx, pprof.Labels("stage", "phonemize"), func(context.Context) {
		start := time.Now()

		var ph *phonemize.Result
		ph, _, stgErr = e.Phonemize(req.Text, req.Language, req.Voice)
		if stgErr == nil {
			out.Tokens = len(ph.IDs)
		}

		out.Phonemize = time.Since(start)
	})

	if stgErr != nil {
		return out, fmt.Errorf("phonemize: %w", stgErr)
	}

	pprof.Do(ctx, pprof.Labels("stage", "synthesize"), func(ctx context.Context) {
		start := time.Now()
		res, stgErr = e.Synthesize(ctx, req)
		out.Synthesize = time.Since(start)
	})

	if stgErr != nil {
		return out, fmt.Errorf("synthesize: %w", stgErr)
	}

	pprof.Do(ctx, pprof.Labels("stage", "encode"), func(context.Context) {
		start := time.Now()
		_, stgErr = audio.EncodeWAV(res.Samples, res.SampleRate)
		out.Encode = time.Since(start)
	})

	if stgErr != nil {
		return out, fmt.Errorf("encode wav: %w", stgErr)
	}

	out.Total = time.Since(startTotal)
	out.Samples = len(res.Samples)
	out.SampleRate = res.SampleRate

	return out, nil
}

// Write prints the timings as key: value lines.
func (t Timings) Write(w io.Writer) {
	ms := func(d time.Duration) float64 { return d.Seconds() * 1000 }

	fmt.Fprintf(w, "runs: %d\n", t.Runs)
	fmt.Fprintf(w, "tokens: %d\n", t.Tokens)
	fmt.Fprintf(w, "audio_ms: %.2f\n", ms(t.AudioDuration()))
	fmt.Fprintf(w, "avg_phonemize_ms: %.2f\n", ms(t.Phonemize))
	fmt.Fprintf(w, "avg_synthesize_ms: %.2f\n", ms(t.Synthesize))
	fmt.Fprintf(w, "avg_encode_ms: %.2f\n", ms(t.Encode))
	fmt.Fprintf(w, "avg_total_ms: %.2f\n", ms(t.Total))
	fmt.Fprintf(w, "rtf: %.3f\n", t.RTF())

	if t.Total > 0 {
		total := float64(t.Total)
		fmt.Fprintf(w, "share_phonemize_pct: %.2f\n", 100*float64(t.Phonemize)/total)
		fmt.Fprintf(w, "share_synthesize_pct: %.2f\n", 100*float64(t.Synthesize)/total)
		fmt.Fprintf(w, "share_encode_pct: %.2f\n", 100*float64(t.Encode)/total)
	}
}
