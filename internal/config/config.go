package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Paths     PathsConfig   `mapstructure:"paths"`
	Runtime   RuntimeConfig `mapstructure:"runtime"`
	Server    ServerConfig  `mapstructure:"server"`
	TTS       TTSConfig     `mapstructure:"tts"`
	LogLevel  string        `mapstructure:"log_level"`
	LogFormat string        `mapstructure:"log_format"`
}

type PathsConfig struct {
	ModelPath   string `mapstructure:"model_path"`
	VoicesPath  string `mapstructure:"voices_path"`
	LexiconPath string `mapstructure:"lexicon_path"`
	CacheDir    string `mapstructure:"cache_dir"`
}

type RuntimeConfig struct {
	Workers   int  `mapstructure:"workers"`
	Serialize bool `mapstructure:"serialize"`
}

type ServerConfig struct {
	ListenAddr      string  `mapstructure:"listen_addr"`
	Workers         int     `mapstructure:"workers"`
	MaxTextBytes    int     `mapstructure:"max_text_bytes"`
	RequestTimeout  int     `mapstructure:"request_timeout"`
	ShutdownTimeout int     `mapstructure:"shutdown_timeout"`
	RateLimit       float64 `mapstructure:"rate_limit"`
	RateBurst       int     `mapstructure:"rate_burst"`
	WatchVoices     bool    `mapstructure:"watch_voices"`
}

type TTSConfig struct {
	Voice        string  `mapstructure:"voice"`
	Language     string  `mapstructure:"language"`
	Speed        float64 `mapstructure:"speed"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	UnknownChars string  `mapstructure:"unknown_chars"`
	ChunkChars   int     `mapstructure:"chunk_chars"`
	ChunkGapMS   int     `mapstructure:"chunk_gap_ms"`
	Normalize    bool    `mapstructure:"normalize"`
	Cache        string  `mapstructure:"cache"`
	CacheEntries int     `mapstructure:"cache_entries"`
	CacheMaxMB   int     `mapstructure:"cache_max_mb"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		Paths: PathsConfig{
			ModelPath:  "models/kokoro-v1_0.safetensors",
			VoicesPath: "models/voices-v1.0.bin",
		},
		Runtime: RuntimeConfig{
			Workers: 1,
		},
		Server: ServerConfig{
			ListenAddr:      ":8080",
			Workers:         2,
			MaxTextBytes:    4096,
			RequestTimeout:  60,
			ShutdownTimeout: 30,
			RateBurst:       4,
		},
		TTS: TTSConfig{
			Voice:        "af_heart",
			Speed:        1.0,
			UnknownChars: "reject",
			ChunkChars:   400,
			ChunkGapMS:   80,
			Normalize:    true,
			Cache:        CacheMemory,
			CacheEntries: 64,
			CacheMaxMB:   256,
		},
		LogLevel:  "info",
		LogFormat: LogFormatJSON,
	}
}

// flagKeys maps each command line flag to its configuration key.
var flagKeys = map[string]string{
	"model":            "paths.model_path",
	"voices":           "paths.voices_path",
	"lexicon":          "paths.lexicon_path",
	"cache-dir":        "paths.cache_dir",
	"threads":          "runtime.workers",
	"serialize":        "runtime.serialize",
	"listen":           "server.listen_addr",
	"workers":          "server.workers",
	"max-text-bytes":   "server.max_text_bytes",
	"request-timeout":  "server.request_timeout",
	"shutdown-timeout": "server.shutdown_timeout",
	"rate-limit":       "server.rate_limit",
	"rate-burst":       "server.rate_burst",
	"watch-voices":     "server.watch_voices",
	"voice":            "tts.voice",
	"language":         "tts.language",
	"speed":            "tts.speed",
	"max-tokens":       "tts.max_tokens",
	"unknown-chars":    "tts.unknown_chars",
	"chunk-chars":      "tts.chunk_chars",
	"chunk-gap-ms":     "tts.chunk_gap_ms",
	"normalize":        "tts.normalize",
	"cache":            "tts.cache",
	"cache-entries":    "tts.cache_entries",
	"cache-max-mb":     "tts.cache_max_mb",
	"log-level":        "log_level",
	"log-format":       "log_format",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("model", defaults.Paths.ModelPath, "Path to the Kokoro safetensors weights")
	fs.String("voices", defaults.Paths.VoicesPath, "Voice archive (.npz/.bin, safetensors, or directory of .npy)")
	fs.String("lexicon", defaults.Paths.LexiconPath, "Extra pronunciation lexicon (TSV) merged over the built-in one")
	fs.String("cache-dir", defaults.Paths.CacheDir, "Disk cache directory (default: user cache dir)")
	fs.Int("threads", defaults.Runtime.Workers, "Goroutines used by tensor and convolution kernels")
	fs.Bool("serialize", defaults.Runtime.Serialize, "Run one inference at a time")
	fs.String("listen", defaults.Server.ListenAddr, "HTTP listen address")
	fs.Int("workers", defaults.Server.Workers, "Concurrent synthesis requests served")
	fs.Int("max-text-bytes", defaults.Server.MaxTextBytes, "Maximum request text size in bytes")
	fs.Int("request-timeout", defaults.Server.RequestTimeout, "Per-request timeout in seconds")
	fs.Int("shutdown-timeout", defaults.Server.ShutdownTimeout, "Graceful shutdown timeout in seconds")
	fs.Float64("rate-limit", defaults.Server.RateLimit, "Requests per second accepted by the server (0 disables)")
	fs.Int("rate-burst", defaults.Server.RateBurst, "Burst size for the request rate limit")
	fs.Bool("watch-voices", defaults.Server.WatchVoices, "Reload the voice archive when it changes")
	fs.String("voice", defaults.TTS.Voice, "Voice name")
	fs.String("language", defaults.TTS.Language, "Language (en-us|en-gb); empty derives it from the voice name")
	fs.Float64("speed", defaults.TTS.Speed, "Speaking rate; durations are divided by it")
	fs.Int("max-tokens", defaults.TTS.MaxTokens, "Lower the model's phoneme token limit (0 keeps it)")
	fs.String("unknown-chars", defaults.TTS.UnknownChars, "Unsupported characters: reject|skip")
	fs.Int("chunk-chars", defaults.TTS.ChunkChars, "Sentence chunk size in characters for long texts (0 disables)")
	fs.Int("chunk-gap-ms", defaults.TTS.ChunkGapMS, "Silence between chunks in milliseconds")
	fs.Bool("normalize", defaults.TTS.Normalize, "DC-block and peak-normalize output audio")
	fs.String("cache", defaults.TTS.Cache, "Result cache: off|memory|disk")
	fs.Int("cache-entries", defaults.TTS.CacheEntries, "Memory cache capacity in results")
	fs.Int("cache-max-mb", defaults.TTS.CacheMaxMB, "Disk cache size limit in MiB")
	fs.String("log-level", defaults.LogLevel, "Log level: debug|info|warn|error")
	fs.String("log-format", defaults.LogFormat, "Log format: json|text")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)

	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("KOKOROTTS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)

		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("kokorotts")
		v.AddConfigPath(".")

		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// bindFlags binds every registered flag to its key. An unchanged flag only
// supplies a default, so config files and the environment still apply.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}

		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("paths.model_path", c.Paths.ModelPath)
	v.SetDefault("paths.voices_path", c.Paths.VoicesPath)
	v.SetDefault("paths.lexicon_path", c.Paths.LexiconPath)
	v.SetDefault("paths.cache_dir", c.Paths.CacheDir)
	v.SetDefault("runtime.workers", c.Runtime.Workers)
	v.SetDefault("runtime.serialize", c.Runtime.Serialize)
	v.SetDefault("server.listen_addr", c.Server.ListenAddr)
	v.SetDefault("server.workers", c.Server.Workers)
	v.SetDefault("server.max_text_bytes", c.Server.MaxTextBytes)
	v.SetDefault("server.request_timeout", c.Server.RequestTimeout)
	v.SetDefault("server.shutdown_timeout", c.Server.ShutdownTimeout)
	v.SetDefault("server.rate_limit", c.Server.RateLimit)
	v.SetDefault("server.rate_burst", c.Server.RateBurst)
	v.SetDefault("server.watch_voices", c.Server.WatchVoices)
	v.SetDefault("tts.voice", c.TTS.Voice)
	v.SetDefault("tts.language", c.TTS.Language)
	v.SetDefault("tts.speed", c.TTS.Speed)
	v.SetDefault("tts.max_tokens", c.TTS.MaxTokens)
	v.SetDefault("tts.unknown_chars", c.TTS.UnknownChars)
	v.SetDefault("tts.chunk_chars", c.TTS.ChunkChars)
	v.SetDefault("tts.chunk_gap_ms", c.TTS.ChunkGapMS)
	v.SetDefault("tts.normalize", c.TTS.Normalize)
	v.SetDefault("tts.cache", c.TTS.Cache)
	v.SetDefault("tts.cache_entries", c.TTS.CacheEntries)
	v.SetDefault("tts.cache_max_mb", c.TTS.CacheMaxMB)
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("log_format", c.LogFormat)
}

// Validate normalizes enumerated fields in place and rejects values that
// can never work.
func (c *Config) Validate() error {
	mode, err := NormalizeCacheMode(c.TTS.Cache)
	if err != nil {
		return err
	}

	c.TTS.Cache = mode

	format, err := NormalizeLogFormat(c.LogFormat)
	if err != nil {
		return err
	}

	c.LogFormat = format

	switch {
	case c.Runtime.Workers < 1:
		return fmt.Errorf("runtime.workers must be >= 1, got %d", c.Runtime.Workers)
	case c.Server.Workers < 1:
		return fmt.Errorf("server.workers must be >= 1, got %d", c.Server.Workers)
	case c.TTS.Speed <= 0:
		return fmt.Errorf("tts.speed must be > 0, got %v", c.TTS.Speed)
	case c.TTS.MaxTokens < 0:
		return fmt.Errorf("tts.max_tokens must be >= 0, got %d", c.TTS.MaxTokens)
	case c.TTS.ChunkChars < 0 || c.TTS.ChunkGapMS < 0:
		return errors.New("tts.chunk_chars and tts.chunk_gap_ms must be >= 0")
	case c.Server.RateLimit < 0:
		return fmt.Errorf("server.rate_limit must be >= 0, got %v", c.Server.RateLimit)
	}

	return nil
}
