package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/example/go-kokoro-tts/internal/audio"
	"github.com/example/go-kokoro-tts/internal/tts"
)

// handleTTSStream writes a WAV header with open-ended sizes, then each
// chunk's PCM as soon as it is rendered. Errors before the first chunk get
// a JSON response; later errors truncate the stream.
func (h *handler) handleTTSStream(w http.ResponseWriter, r *http.Request) {
	if h.opts.streamer == nil {
		writeError(w, http.StatusNotImplemented, "streaming not available")
		return
	}

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
	chunks := make(chan tts.PCMChunk, 1)
	errCh := make(chan error, 1)

	go func() {
		errCh <- h.opts.streamer.SynthesizeStream(ctx, req.toTTS(), chunks)
	}()

	flusher, _ := w.(http.Flusher)
	rate := tts.SampleRate
	if req.SampleRate > 0 {
		rate = req.SampleRate
	}

	var (
		started  bool
		written  int
		writeErr error
	)

	for chunk := range chunks {
		if writeErr != nil {
			continue
		}

		samples := chunk.Samples
		if rate != tts.SampleRate {
			samples, writeErr = audio.Resample(samples, tts.SampleRate, rate)
			if writeErr != nil {
				cancel()
				continue
			}
		}

		if !started {
			w.Header().Set("Content-Type", "audio/wav")
			w.WriteHeader(http.StatusOK)

			if _, writeErr = audio.WriteWAVHeaderStreaming(w, rate); writeErr != nil {
				cancel()
				continue
			}

			started = true
		}

		if _, writeErr = audio.WritePCM16Samples(w, samples); writeErr != nil {
			cancel()
			continue
		}

		written += len(samples)

		if flusher != nil {
			flusher.Flush()
		}
	}

	err := <-errCh
	if err == nil {
		err = writeErr
	}

	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if !started {
			h.fail(w, r, req, durationMS, err)
			return
		}

		h.log.WarnContext(r.Context(), "stream aborted",
			slog.String("request_id", RequestID(r.Context())),
			slog.String("voice", req.Voice),
			slog.Int("samples_written", written),
			slog.String("error", err.Error()),
		)

		return
	}

	h.log.InfoContext(r.Context(), "stream complete",
		slog.String("request_id", RequestID(r.Context())),
		slog.String("voice", req.Voice),
		slog.Int("text_len", len(req.Text)),
		slog.Int64("duration_ms", durationMS),
		slog.Int("samples", written),
	)
}
