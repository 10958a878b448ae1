// Package tts composes voice lookup, phonemization, the duration-based
// sequence encoder and the vocoder into a single synthesis call.
//
// An Engine owns its model weights and is safe for concurrent use. Every
// failure is returned as a *StageError naming the pipeline stage; the
// sentinels in this package classify the cause.
package tts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/example/go-kokoro-tts/internal/cache"
	"github.com/example/go-kokoro-tts/internal/native"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// SampleRate is the rate of every buffer the Engine returns.
const SampleRate = native.SampleRate

const (
	DefaultSpeed = 1.0
	MaxSpeed     = 4.0
)

// VoiceSource resolves voice embeddings. *voice.Store and *voice.Watcher
// implement it.
type VoiceSource interface {
	Resolve(name string) (voice.Embedding, error)
	Names() []string
}

// Options configures New. Runtime and Voices, when set, take precedence
// over ModelPath and VoicesPath.
type Options struct {
	ModelPath   string
	VoicesPath  string
	LexiconPath string

	Runtime Runtime
	Voices  VoiceSource

	// MaxTokens lowers the model's token limit; 0 keeps it.
	MaxTokens int
	Unknown   phonemize.UnknownPolicy
	// Serialize runs one inference at a time.
	Serialize bool
	Cache     cache.Cache
}

// Request is one synthesis call. An empty Language is derived from the
// voice name; a zero Speed means DefaultSpeed.
type Request struct {
	Text     string
	Voice    string
	Language phonemize.Language
	Speed    float64
}

// Result is a mono float32 waveform plus the intermediate sequences that
// produced it. The caller owns Samples.
type Result struct {
	Samples    []float32
	SampleRate int
	Language   phonemize.Language
	Phonemes   string
	// Tokens is the padded id sequence fed to the encoder and Durations the
	// predicted frame count of each token.
	Tokens    []int64
	Durations []int64
	Skipped   []rune
	Cached    bool
}

// Duration is the playback length of Samples.
func (r *Result) Duration() time.Duration {
	if r.SampleRate <= 0 {
		return 0
	}

	return time.Duration(len(r.Samples)) * time.Second / time.Duration(r.SampleRate)
}

// Engine is the synthesis orchestrator.
type Engine struct {
	runtime    Runtime
	spec       ModelSpec
	voices     VoiceSource
	phonemizer *phonemize.Phonemizer
	cache      cache.Cache
	serial     *sync.Mutex
	// fingerprint scopes cache keys to these weights and phonemizer settings.
	fingerprint string
}

// New loads the model, voices and lexicon named by opts. Every failure
// wraps ErrConstruction.
func New(opts Options) (*Engine, error) {
	rt := opts.Runtime
	if rt == nil {
		if opts.ModelPath == "" {
			return nil, constructionError("no model path")
		}

		model, err := native.LoadModel(opts.ModelPath)
		if err != nil {
			return nil, constructionError("load model %s: %w", opts.ModelPath, err)
		}

		rt, err = NewNativeRuntime(model)
		if err != nil {
			model.Close()
			return nil, constructionError("%w", err)
		}
	}

	e, err := newEngine(rt, opts)
	if err != nil {
		if opts.Runtime == nil {
			rt.Close()
		}

		return nil, err
	}

	return e, nil
}

func newEngine(rt Runtime, opts Options) (*Engine, error) {
	spec := rt.Spec()

	vocab := phonemize.DefaultVocab()
	if spec.Vocab != nil {
		v, err := phonemize.NewVocab(spec.Vocab)
		if err != nil {
			return nil, constructionError("model vocabulary: %w", err)
		}

		vocab = v
	}

	if vocab.MaxID() >= spec.VocabSize {
		return nil, constructionError("vocabulary id %d does not fit %d embedding rows", vocab.MaxID(), spec.VocabSize)
	}

	maxTokens := spec.MaxTokens
	if opts.MaxTokens > 0 {
		if opts.MaxTokens > spec.MaxTokens {
			return nil, constructionError("max tokens %d above the model limit %d", opts.MaxTokens, spec.MaxTokens)
		}

		maxTokens = opts.MaxTokens
	}

	lex, err := phonemize.DefaultLexicon()
	if err != nil {
		return nil, constructionError("%w", err)
	}

	if opts.LexiconPath != "" {
		extra, err := phonemize.LoadLexicon(opts.LexiconPath)
		if err != nil {
			return nil, constructionError("%w", err)
		}

		lex = lex.Merge(extra)
	}

	ph, err := phonemize.New(phonemize.Options{
		MaxTokens: maxTokens,
		Unknown:   opts.Unknown,
		Vocab:     vocab,
		Lexicon:   lex,
	})
	if err != nil {
		return nil, constructionError("%w", err)
	}

	voices := opts.Voices
	if voices == nil {
		if opts.VoicesPath == "" {
			return nil, constructionError("no voices path")
		}

		store, err := voice.Load(opts.VoicesPath, voice.LoadOptions{Width: spec.StyleDim})
		if err != nil {
			return nil, constructionError("load voices %s: %w", opts.VoicesPath, err)
		}

		voices = store
	}

	e := &Engine{
		runtime:    rt,
		spec:       spec,
		voices:     voices,
		phonemizer: ph,
		cache:      opts.Cache,
	}

	if e.cache != nil {
		e.fingerprint = engineFingerprint(spec, ph)
	}

	if opts.Serialize {
		e.serial = &sync.Mutex{}
	}

	return e, nil
}

func engineFingerprint(spec ModelSpec, ph *phonemize.Phonemizer) string {
	h := sha256.New()
	fmt.Fprintf(h, "model=%s\nvocab_rows=%d\nstyle=%d\nhop=%d\nphonemizer=%s\n",
		spec.Fingerprint, spec.VocabSize, spec.StyleDim, spec.Hop, ph.Fingerprint())

	return hex.EncodeToString(h.Sum(nil))
}

// Close releases the model and a closable cache.
func (e *Engine) Close() {
	e.runtime.Close()

	if c, ok := e.cache.(io.Closer); ok {
		if err := c.Close(); err != nil {
			slog.Warn("closing synthesis cache", "error", err)
		}
	}
}

// CacheStats reports cache counters; ok is false when caching is off.
func (e *Engine) CacheStats() (cache.Stats, bool) {
	if e.cache == nil {
		return cache.Stats{}, false
	}

	return e.cache.Stats(), true
}

// Voices lists the available voice names in lexicographic order.
func (e *Engine) Voices() []string { return e.voices.Names() }

// Hop is the number of samples rendered per acoustic frame.
func (e *Engine) Hop() int { return e.spec.Hop }

// MaxTokens is the effective phoneme id limit per call.
func (e *Engine) MaxTokens() int { return e.phonemizer.MaxTokens() }

// Phonemizer exposes the engine's text front end.
func (e *Engine) Phonemizer() *phonemize.Phonemizer { return e.phonemizer }

// ResolveLanguage returns lang, or the language implied by the voice name
// when lang is empty.
func ResolveLanguage(lang phonemize.Language, voiceName string) (phonemize.Language, error) {
	if lang != "" {
		return phonemize.ParseLanguage(string(lang))
	}

	return phonemize.LanguageForVoice(voiceName)
}

// Phonemize runs only the text front end.
func (e *Engine) Phonemize(text string, lang phonemize.Language, voiceName string) (*phonemize.Result, phonemize.Language, error) {
	lang, err := ResolveLanguage(lang, voiceName)
	if err != nil {
		return nil, "", stageError(StagePhonemize, err)
	}

	res, err := e.phonemizer.Phonemize(text, lang)
	if err != nil {
		return nil, "", stageError(StagePhonemize, err)
	}

	return res, lang, nil
}

// Synthesize converts req.Text to audio. The context is checked between
// stages; a running encode or vocode pass is not interrupted.
func (e *Engine) Synthesize(ctx context.Context, req Request) (*Result, error) {
	speed := req.Speed
	if speed == 0 {
		speed = DefaultSpeed
	}

	if !(speed > 0 && speed <= MaxSpeed) {
		return nil, fmt.Errorf("%w: speed %v outside (0, %v]", ErrInvalidRequest, req.Speed, MaxSpeed)
	}

	if err := ctx.Err(); err != nil {
		return nil, stageError(StageVoice, err)
	}

	emb, err := e.voices.Resolve(req.Voice)
	if err != nil {
		return nil, stageError(StageVoice, err)
	}

	if emb.Width != e.spec.StyleDim {
		return nil, stageError(StageVoice, fmt.Errorf("%w: voice %q has style width %d, model expects %d",
			voice.ErrFormat, req.Voice, emb.Width, e.spec.StyleDim))
	}

	lang, err := ResolveLanguage(req.Language, req.Voice)
	if err != nil {
		return nil, stageError(StagePhonemize, err)
	}

	var key cache.Key
	if e.cache != nil {
		key = cache.Key{
			Text:      req.Text,
			Voice:     req.Voice,
			Language:  string(lang),
			Speed:     speed,
			Engine:    e.fingerprint,
			Embedding: emb.Digest(),
		}
		if entry, ok := e.cache.Get(key); ok {
			slog.Debug("synthesis cache hit", "voice", req.Voice, "samples", len(entry.Samples))
			return resultFromEntry(entry, lang), nil
		}
	}

	res, err := e.run(ctx, req.Text, lang, emb, speed)
	if err != nil {
		return nil, err
	}

	if e.cache != nil {
		entry := &cache.Entry{
			SampleRate: res.SampleRate,
			Samples:    slices.Clone(res.Samples),
			Phonemes:   res.Phonemes,
			Tokens:     slices.Clone(res.Tokens),
			Durations:  slices.Clone(res.Durations),
			Skipped:    slices.Clone(res.Skipped),
		}
		if err := e.cache.Put(key, entry); err != nil {
			slog.Warn("synthesis cache write failed", "error", err)
		}
	}

	return res, nil
}

func (e *Engine) run(ctx context.Context, text string, lang phonemize.Language, emb voice.Embedding, speed float64) (*Result, error) {
	overallStart := time.Now()

	if err := ctx.Err(); err != nil {
		return nil, stageError(StagePhonemize, err)
	}

	ph, err := e.phonemizer.Phonemize(text, lang)
	if err != nil {
		return nil, stageError(StagePhonemize, err)
	}

	slog.Debug("phonemize complete", "ms", time.Since(overallStart).Milliseconds(), "ids", len(ph.IDs), "language", lang)

	tokens := make([]int64, 0, len(ph.IDs)+2)
	tokens = append(tokens, phonemize.PadID)
	tokens = append(tokens, ph.IDs...)
	tokens = append(tokens, phonemize.PadID)

	style := emb.Style(len(ph.IDs))

	if err := ctx.Err(); err != nil {
		return nil, stageError(StageEncode, err)
	}

	if e.serial != nil {
		e.serial.Lock()
		defer e.serial.Unlock()
	}

	stageStart := time.Now()

	enc, err := e.runtime.Encode(tokens, style, speed)
	if err != nil {
		return nil, inferenceError(StageEncode, err)
	}

	var frames int64
	for _, d := range enc.Durations {
		frames += d
	}

	slog.Debug("encode complete", "ms", time.Since(stageStart).Milliseconds(), "tokens", len(tokens), "frames", frames)

	if err := ctx.Err(); err != nil {
		return nil, stageError(StageVocode, err)
	}

	stageStart = time.Now()

	samples, err := e.runtime.Render(enc.Frames)
	if err != nil {
		return nil, inferenceError(StageVocode, err)
	}

	if want := frames * int64(e.spec.Hop); int64(len(samples)) != want {
		return nil, inferenceError(StageVocode, fmt.Errorf("rendered %d samples for %d frames, want %d", len(samples), frames, want))
	}

	slog.Debug("vocode complete",
		"ms", time.Since(stageStart).Milliseconds(),
		"samples", len(samples),
		"total_ms", time.Since(overallStart).Milliseconds(),
	)

	return &Result{
		Samples:    samples,
		SampleRate: SampleRate,
		Language:   lang,
		Phonemes:   ph.Phonemes,
		Tokens:     tokens,
		Durations:  enc.Durations,
		Skipped:    ph.Skipped,
	}, nil
}

func resultFromEntry(e *cache.Entry, lang phonemize.Language) *Result {
	return &Result{
		Samples:    slices.Clone(e.Samples),
		SampleRate: e.SampleRate,
		Language:   lang,
		Phonemes:   e.Phonemes,
		Tokens:     slices.Clone(e.Tokens),
		Durations:  slices.Clone(e.Durations),
		Skipped:    slices.Clone(e.Skipped),
		Cached:     true,
	}
}
