package tts

import (
	"fmt"

	"github.com/example/go-kokoro-tts/internal/cache"
	"github.com/example/go-kokoro-tts/internal/config"
	"github.com/example/go-kokoro-tts/internal/phonemize"
	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

// OptionsFromConfig maps loaded configuration onto engine options. The
// cache is opened here; the Engine closes it.
func OptionsFromConfig(cfg config.Config) (Options, error) {
	unknown, err := phonemize.ParseUnknownPolicy(cfg.TTS.UnknownChars)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrConstruction, err)
	}

	c, err := OpenCache(cfg)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %w", ErrConstruction, err)
	}

	return Options{
		ModelPath:   cfg.Paths.ModelPath,
		VoicesPath:  cfg.Paths.VoicesPath,
		LexiconPath: cfg.Paths.LexiconPath,
		MaxTokens:   cfg.TTS.MaxTokens,
		Unknown:     unknown,
		Serialize:   cfg.Runtime.Serialize,
		Cache:       c,
	}, nil
}

// OpenCache builds the result cache selected by tts.cache, or nil when
// caching is off.
func OpenCache(cfg config.Config) (cache.Cache, error) {
	mode, err := config.NormalizeCacheMode(cfg.TTS.Cache)
	if err != nil {
		return nil, err
	}

	switch mode {
	case config.CacheMemory:
		return cache.NewMemory(cfg.TTS.CacheEntries), nil
	case config.CacheDisk:
		dir := cfg.Paths.CacheDir
		if dir == "" {
			dir, err = cache.DefaultDir()
			if err != nil {
				return nil, err
			}
		}

		return cache.NewDisk(dir, int64(cfg.TTS.CacheMaxMB)<<20)
	default:
		return nil, nil
	}
}

// NewFromConfig sets the kernel worker count and builds an Engine from
// configuration.
func NewFromConfig(cfg config.Config) (*Engine, error) {
	tensor.SetWorkers(cfg.Runtime.Workers)

	opts, err := OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	e, err := New(opts)
	if err != nil {
		if c, ok := opts.Cache.(*cache.Disk); ok {
			_ = c.Close()
		}

		return nil, err
	}

	return e, nil
}
