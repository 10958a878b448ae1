package tts

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/text"
)

const (
	// Output peak after normalization.
	normalizePeak = 0.95
	// Edge fade applied to every chunk when normalizing.
	edgeFadeMS = 5
)

// PCMChunk is one piece of a streamed synthesis.
type PCMChunk struct {
	Samples    []float32
	ChunkIndex int
	Final      bool
}

// Service synthesizes texts of any length by splitting them into chunks
// the Engine accepts and joining the audio with a short pause.
type Service struct {
	engine   *Engine
	ttsCfg   config.TTSConfig
	parallel int
}

// NewService wraps engine. parallel bounds the chunks synthesized at once.
func NewService(engine *Engine, ttsCfg config.TTSConfig, parallel int) *Service {
	return &Service{engine: engine, ttsCfg: ttsCfg, parallel: max(parallel, 1)}
}

// Engine returns the wrapped engine.
func (s *Service) Engine() *Engine { return s.engine }

// withDefaults fills voice, language and speed from configuration.
func (s *Service) withDefaults(req Request) Request {
	if req.Voice == "" {
		req.Voice = s.ttsCfg.Voice
	}

	if req.Language == "" && s.ttsCfg.Language != "" {
		req.Language = phonemize.Language(s.ttsCfg.Language)
	}

	if req.Speed == 0 {
		req.Speed = s.ttsCfg.Speed
	}

	return req
}

// Plan splits req.Text into the chunks Synthesize would render. Text that
// fits the character and token budgets is returned unchanged as one chunk.
func (s *Service) Plan(req Request) ([]string, error) {
	req = s.withDefaults(req)

	if _, err := s.engine.voices.Resolve(req.Voice); err != nil {
		return nil, stageError(StageVoice, err)
	}

	input := strings.TrimSpace(req.Text)
	if input == "" {
		return nil, stageError(StagePhonemize, &phonemize.TokenizationError{Reason: "empty text"})
	}

	lang, err := ResolveLanguage(req.Language, req.Voice)
	if err != nil {
		return nil, stageError(StagePhonemize, err)
	}

	tok := s.engine.Phonemizer().Tokenizer(lang)
	maxTokens := s.engine.MaxTokens()

	if s.ttsCfg.ChunkChars <= 0 || utf8.RuneCountInString(input) <= s.ttsCfg.ChunkChars {
		ids, err := tok.Encode(input)
		if err != nil {
			return nil, stageError(StagePhonemize, err)
		}

		if len(ids) <= maxTokens {
			return []string{input}, nil
		}
	}

	var chunks []string

	for _, group := range text.ChunkBySentence(input, s.ttsCfg.ChunkChars) {
		prepared, err := text.PrepareChunks(group, tok, maxTokens)
		if err != nil {
			return nil, stageError(StagePhonemize, err)
		}

		for _, c := range prepared {
			chunks = append(chunks, c.Text)
		}
	}

	return chunks, nil
}

// Synthesize renders req.Text chunk by chunk, up to the configured number
// of chunks in parallel, and joins them in order. Phonemes are joined with
// a space and Tokens and Durations concatenated; Cached is set only when
// every chunk came from the cache.
func (s *Service) Synthesize(ctx context.Context, req Request) (*Result, error) {
	req = s.withDefaults(req)

	chunks, err := s.Plan(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	results := make([]*Result, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallel)

	for i, chunk := range chunks {
		g.Go(func() error {
			r := req
			r.Text = chunk

			res, err := s.engine.Synthesize(gctx, r)
			if err != nil {
				return err
			}

			results[i] = res

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := s.join(results)

	slog.Debug("service synthesis complete",
		"chunks", len(chunks),
		"samples", len(out.Samples),
		"ms", time.Since(start).Milliseconds(),
	)

	return out, nil
}

func (s *Service) join(results []*Result) *Result {
	gap := audio.Silence(SampleRate, s.ttsCfg.ChunkGapMS)

	total := len(gap) * (len(results) - 1)
	for _, r := range results {
		total += len(r.Samples)
	}

	out := &Result{
		Samples:    make([]float32, 0, total),
		SampleRate: SampleRate,
		Language:   results[0].Language,
		Cached:     true,
	}

	phonemes := make([]string, 0, len(results))

	for i, r := range results {
		if i > 0 {
			out.Samples = append(out.Samples, gap...)
		}

		out.Samples = append(out.Samples, s.finishChunk(r.Samples)...)
		out.Tokens = append(out.Tokens, r.Tokens...)
		out.Durations = append(out.Durations, r.Durations...)
		out.Skipped = append(out.Skipped, r.Skipped...)
		out.Cached = out.Cached && r.Cached
		phonemes = append(phonemes, r.Phonemes)
	}

	out.Phonemes = strings.Join(phonemes, " ")

	if s.ttsCfg.Normalize {
		audio.PeakNormalizeTo(out.Samples, normalizePeak)
	}

	return out
}

// finishChunk removes DC and fades chunk edges in place when normalization
// is on, so joins do not click.
func (s *Service) finishChunk(samples []float32) []float32 {
	if !s.ttsCfg.Normalize {
		return samples
	}

	return audio.ApplyHooks(samples,
		func(x []float32) []float32 { return audio.DCBlock(x, SampleRate) },
		func(x []float32) []float32 { return audio.FadeIn(x, SampleRate, edgeFadeMS) },
		func(x []float32) []float32 { return audio.FadeOut(x, SampleRate, edgeFadeMS) },
	)
}

// SynthesizeStream renders chunks in order and sends each one as soon as it
// is ready; every chunk but the last carries the trailing gap. ch is closed
// when SynthesizeStream returns, including on error.
func (s *Service) SynthesizeStream(ctx context.Context, req Request, ch chan<- PCMChunk) error {
	defer close(ch)

	req = s.withDefaults(req)

	chunks, err := s.Plan(req)
	if err != nil {
		return err
	}

	gap := audio.Silence(SampleRate, s.ttsCfg.ChunkGapMS)

	for i, chunk := range chunks {
		r := req
		r.Text = chunk

		res, err := s.engine.Synthesize(ctx, r)
		if err != nil {
			return err
		}

		samples := s.finishChunk(res.Samples)

		final := i == len(chunks)-1
		if !final {
			samples = append(samples, gap...)
		}

		select {
		case ch <- PCMChunk{Samples: samples, ChunkIndex: i, Final: final}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}
