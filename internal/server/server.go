package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/tts"
	"github.com/example/go-kokoro-tts/internal/voice"
)

// ParseLogLevel converts a string log level to slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

type Server struct {
	cfg             config.Config
	tts             *tts.Service
	shutdownTimeout time.Duration
	logger          *slog.Logger
}

// New returns a server for cfg. A nil svc makes Start build the engine
// from cfg and close it on return.
func New(cfg config.Config, svc *tts.Service) *Server {
	shutdown := 30 * time.Second
	if cfg.Server.ShutdownTimeout > 0 {
		shutdown = time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	}

	return &Server{
		cfg:             cfg,
		tts:             svc,
		shutdownTimeout: shutdown,
		logger:          slog.Default(),
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger sets the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	svc := s.tts
	if svc == nil {
		engine, watcher, err := s.openEngine()
		if err != nil {
			return err
		}
		defer engine.Close()

		if watcher != nil {
			watchCtx, cancel := context.WithCancel(ctx)
			defer cancel()

			go func() {
				if err := watcher.Run(watchCtx); err != nil && !errors.Is(err, context.Canceled) {
					s.logger.Error("voice watcher stopped", "error", err)
				}
			}()
		}

		svc = tts.NewService(engine, s.cfg.TTS, s.cfg.Server.Workers)
	}

	engine := svc.Engine()

	h := NewHandler(svc, engine,
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout)*time.Second),
		WithRateLimit(s.cfg.Server.RateLimit, s.cfg.Server.RateBurst),
		WithStreamer(svc),
		WithPhonemizer(engine),
		WithLogger(s.logger),
	)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.Info("listening", "addr", s.cfg.Server.ListenAddr, "voices", len(engine.Voices()))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		if stats, ok := engine.CacheStats(); ok {
			s.logger.Info("cache stats", "hits", stats.Hits, "misses", stats.Misses,
				"entries", stats.Entries, "hit_rate", stats.HitRate())
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// openEngine builds the engine from configuration. With server.watch_voices
// the voice archive is served through a reloading watcher.
func (s *Server) openEngine() (*tts.Engine, *voice.Watcher, error) {
	if !s.cfg.Server.WatchVoices {
		engine, err := tts.NewFromConfig(s.cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("initialize engine: %w", err)
		}

		return engine, nil, nil
	}

	watcher, err := voice.NewWatcher(s.cfg.Paths.VoicesPath, voice.LoadOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", tts.ErrConstruction, err)
	}

	opts, err := tts.OptionsFromConfig(s.cfg)
	if err != nil {
		_ = watcher.Close()
		return nil, nil, err
	}

	opts.Voices = watcher

	engine, err := tts.New(opts)
	if err != nil {
		_ = watcher.Close()
		return nil, nil, fmt.Errorf("initialize engine: %w", err)
	}

	return engine, watcher, nil
}

// ProbeHTTP checks GET /health on addr.
func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
