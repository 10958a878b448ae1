package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/tts"
)

// Synthesizer renders a request to a waveform. *tts.Service implements it.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.Request) (*tts.Result, error)
}

// StreamingSynthesizer renders a request chunk by chunk and closes out when
// done. *tts.Service implements it.
type StreamingSynthesizer interface {
	SynthesizeStream(ctx context.Context, req tts.Request, out chan<- tts.PCMChunk) error
}

// VoiceLister returns the available voice names. *tts.Engine implements it.
type VoiceLister interface {
	Voices() []string
}

// Phonemizer runs only the text front end. *tts.Engine implements it.
type Phonemizer interface {
	Phonemize(text string, lang phonemize.Language, voice string) (*phonemize.Result, phonemize.Language, error)
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	streamer       StreamingSynthesizer
	phonemizer     Phonemizer
	limiter        *rate.Limiter
}

func defaultOptions() options {
	return options{
		maxTextBytes:   4096,
		workers:        2,
		requestTimeout: 60 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed text length in bytes.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithWorkers sets the maximum number of concurrent synthesis calls. n <= 0
// removes the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request synthesis deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithStreamer enables POST /tts/stream.
func WithStreamer(s StreamingSynthesizer) Option {
	return func(o *options) { o.streamer = s }
}

// WithPhonemizer enables POST /phonemize.
func WithPhonemizer(p Phonemizer) Option {
	return func(o *options) { o.phonemizer = p }
}

// WithRateLimit caps accepted synthesis requests per second. perSecond <= 0
// disables limiting.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *options) {
		if perSecond <= 0 {
			o.limiter = nil
			return
		}

		o.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
	}
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	synth  Synthesizer
	voices VoiceLister
	opts   options
	sem    chan struct{}
	log    *slog.Logger
}

// NewHandler returns an http.Handler serving GET /health, GET /voices,
// POST /tts, and, when configured, POST /tts/stream and POST /phonemize.
func NewHandler(synth Synthesizer, voices VoiceLister, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		synth:  synth,
		voices: voices,
		opts:   opts,
		log:    opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/voices", h.handleVoices)
	mux.HandleFunc("/tts", h.limited(h.handleTTS))
	mux.HandleFunc("/tts/stream", h.limited(h.handleTTSStream))
	mux.HandleFunc("/phonemize", h.limited(h.handlePhonemize))

	return withRequestID(mux)
}

type requestIDKey struct{}

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

// withRequestID tags every request with the caller's X-Request-ID or a new
// UUID and echoes it in the response.
func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}

		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// RequestID returns the id assigned to the request carrying ctx.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (h *handler) limited(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.opts.limiter != nil && !h.opts.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")

			return
		}

		next(w, r)
	}
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}

	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type voiceInfo struct {
	Name     string `json:"name"`
	Language string `json:"language,omitempty"`
}

func (h *handler) handleVoices(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	names := h.voices.Voices()

	out := make([]voiceInfo, 0, len(names))
	for _, name := range names {
		info := voiceInfo{Name: name}
		if lang, err := phonemize.LanguageForVoice(name); err == nil {
			info.Language = string(lang)
		}

		out = append(out, info)
	}

	writeJSON(w, http.StatusOK, out)
}

type ttsRequest struct {
	Text     string  `json:"text"`
	Voice    string  `json:"voice"`
	Language string  `json:"language"`
	Speed    float64 `json:"speed"`
	// SampleRate, when set, resamples the output.
	SampleRate int `json:"sample_rate"`
}

func (r ttsRequest) toTTS() tts.Request {
	return tts.Request{
		Text:     r.Text,
		Voice:    r.Voice,
		Language: phonemize.Language(r.Language),
		Speed:    r.Speed,
	}
}

// decodeRequest parses and validates a JSON body. It writes the error
// response itself and reports whether the handler should continue.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request) (ttsRequest, bool) {
	var req ttsRequest

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return req, false
	}

	if r.Body == nil {
		writeError(w, http.StatusBadRequest, "request body is required")
		return req, false
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return req, false
	}

	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text field is required")
		return req, false
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))

		return req, false
	}

	if req.SampleRate != 0 {
		if err := audio.CheckSampleRate(req.SampleRate); err != nil {
			writeError(w, http.StatusBadRequest, "sample_rate: "+err.Error())
			return req, false
		}
	}

	return req, true
}

// acquire takes a worker slot, honouring cancellation while waiting. The
// returned release is nil when no slot was taken.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if h.sem == nil {
		return func() {}, true
	}

	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

func (h *handler) handleTTS(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	res, err := h.synth.Synthesize(ctx, req.toTTS())
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		h.fail(w, r, req, durationMS, err)
		return
	}

	samples, sampleRate := res.Samples, res.SampleRate
	if req.SampleRate > 0 && req.SampleRate != sampleRate {
		samples, err = audio.Resample(samples, sampleRate, req.SampleRate)
		if err != nil {
			h.fail(w, r, req, durationMS, err)
			return
		}

		sampleRate = req.SampleRate
	}

	wav, err := audio.EncodeWAV(samples, sampleRate)
	if err != nil {
		h.fail(w, r, req, durationMS, err)
		return
	}

	h.log.InfoContext(r.Context(), "synthesis complete",
		slog.String("request_id", RequestID(r.Context())),
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int64("audio_ms", res.Duration().Milliseconds()),
		slog.Bool("cached", res.Cached),
		slog.Int("wav_bytes", len(wav)),
	)

	w.Header().Set("Content-Type", "audio/wav")
	w.Header().Set("X-Audio-Duration-Ms", strconv.FormatInt(res.Duration().Milliseconds(), 10))
	w.Header().Set("X-Cache", cacheHeader(res.Cached))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(wav)
}

type phonemizeResponse struct {
	Language string  `json:"language"`
	Phonemes string  `json:"phonemes"`
	Tokens   []int64 `json:"tokens"`
	Skipped  string  `json:"skipped,omitempty"`
}

func (h *handler) handlePhonemize(w http.ResponseWriter, r *http.Request) {
	if h.opts.phonemizer == nil {
		writeError(w, http.StatusNotImplemented, "phonemization not available")
		return
	}

	req, ok := h.decodeRequest(w, r)
	if !ok {
		return
	}

	res, lang, err := h.opts.phonemizer.Phonemize(req.Text, phonemize.Language(req.Language), req.Voice)
	if err != nil {
		h.fail(w, r, req, 0, err)
		return
	}

	writeJSON(w, http.StatusOK, phonemizeResponse{
		Language: string(lang),
		Phonemes: res.Phonemes,
		Tokens:   res.IDs,
		Skipped:  string(res.Skipped),
	})
}

// fail logs err and writes the matching status.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, req ttsRequest, durationMS int64, err error) {
	status := StatusFor(err)

	level := slog.LevelWarn
	if status >= http.StatusInternalServerError && status != http.StatusGatewayTimeout {
		level = slog.LevelError
	}

	attrs := []any{
		slog.String("request_id", RequestID(r.Context())),
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	}
	if stage, ok := tts.FailedStage(err); ok {
		attrs = append(attrs, slog.String("stage", string(stage)))
	}

	h.log.Log(r.Context(), level, "synthesis failed", attrs...)

	msg := err.Error()
	if status == http.StatusGatewayTimeout {
		msg = "synthesis timed out"
	}

	writeError(w, status, msg)
}

// StatusFor maps a synthesis error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return http.StatusGatewayTimeout
	case errors.Is(err, tts.ErrVoiceNotFound):
		return http.StatusNotFound
	case errors.Is(err, tts.ErrInvalidRequest), errors.Is(err, phonemize.ErrUnsupportedLanguage):
		return http.StatusBadRequest
	case errors.Is(err, tts.ErrTokenization), errors.Is(err, tts.ErrLengthExceeded):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func cacheHeader(hit bool) string {
	if hit {
		return "HIT"
	}

	return "MISS"
}
