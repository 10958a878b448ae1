package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

// fakeBinder wraps a pflag.FlagSet to satisfy the flagBinder interface.
type fakeBinder struct {
	fs *pflag.FlagSet
}

func (f *fakeBinder) Flags() *pflag.FlagSet { return f.fs }

// newFlagBinder creates a FlagSet with all config flags registered at their defaults.
func newFlagBinder(t *testing.T, defaults Config, args ...string) *fakeBinder {
	t.Helper()

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, defaults)

	if err := fs.Parse(args); err != nil {
		t.Fatalf("Parse(%v) error = %v", args, err)
	}

	return &fakeBinder{fs: fs}
}

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	return path
}

// --- DefaultConfig ---

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Paths.ModelPath != "models/kokoro-v1_0.safetensors" {
		t.Errorf("ModelPath = %q", cfg.Paths.ModelPath)
	}

	if cfg.Paths.VoicesPath != "models/voices-v1.0.bin" {
		t.Errorf("VoicesPath = %q", cfg.Paths.VoicesPath)
	}

	if cfg.TTS.Voice != "af_heart" {
		t.Errorf("TTS.Voice = %q; want af_heart", cfg.TTS.Voice)
	}

	if cfg.TTS.Speed != 1.0 {
		t.Errorf("TTS.Speed = %v; want 1", cfg.TTS.Speed)
	}

	if cfg.TTS.UnknownChars != "reject" {
		t.Errorf("TTS.UnknownChars = %q; want reject", cfg.TTS.UnknownChars)
	}

	if cfg.TTS.Cache != CacheMemory {
		t.Errorf("TTS.Cache = %q; want %q", cfg.TTS.Cache, CacheMemory)
	}

	if cfg.Server.Workers != 2 || cfg.Server.RequestTimeout != 60 || cfg.Server.MaxTextBytes != 4096 {
		t.Errorf("Server = %+v", cfg.Server)
	}

	if cfg.LogLevel != "info" || cfg.LogFormat != LogFormatJSON {
		t.Errorf("log = %q/%q; want info/json", cfg.LogLevel, cfg.LogFormat)
	}

	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() = %v", err)
	}
}

// --- Modes ---

func TestNormalizeCacheMode(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", CacheMemory, false},
		{"memory", CacheMemory, false},
		{"  DISK ", CacheDisk, false},
		{"off", CacheOff, false},
		{"none", CacheOff, false},
		{"redis", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeCacheMode(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeCacheMode(%q) = %q, nil; want error", tt.input, got)
			}

			continue
		}

		if err != nil || got != tt.want {
			t.Errorf("NormalizeCacheMode(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
		}
	}
}

func TestNormalizeLogFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    string
		wantErr bool
	}{
		{"", LogFormatJSON, false},
		{"JSON", LogFormatJSON, false},
		{"text", LogFormatText, false},
		{"console", LogFormatText, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		got, err := NormalizeLogFormat(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("NormalizeLogFormat(%q) = %q, nil; want error", tt.input, got)
			}

			continue
		}

		if err != nil || got != tt.want {
			t.Errorf("NormalizeLogFormat(%q) = %q, %v; want %q", tt.input, got, err, tt.want)
		}
	}
}

// --- RegisterFlags ---

func TestRegisterFlags(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs, DefaultConfig())

	checks := []struct {
		flag string
		want string
	}{
		{"model", "models/kokoro-v1_0.safetensors"},
		{"voices", "models/voices-v1.0.bin"},
		{"voice", "af_heart"},
		{"unknown-chars", "reject"},
		{"cache", "memory"},
		{"listen", ":8080"},
		{"log-level", "info"},
		{"log-format", "json"},
	}

	for _, c := range checks {
		f := fs.Lookup(c.flag)
		if f == nil {
			t.Errorf("flag %q not registered", c.flag)
			continue
		}

		if f.DefValue != c.want {
			t.Errorf("flag %q default = %q; want %q", c.flag, f.DefValue, c.want)
		}
	}

	for name := range flagKeys {
		if fs.Lookup(name) == nil {
			t.Errorf("flag %q has a key but is not registered", name)
		}
	}
}

// --- Load ---

func TestLoad_Defaults(t *testing.T) {
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:      newFlagBinder(t, defaults),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg != defaults {
		t.Errorf("Load() = %+v; want defaults %+v", cfg, defaults)
	}
}

func TestLoad_FlagOverride(t *testing.T) {
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd: newFlagBinder(t, defaults,
			"--voice=bf_emma",
			"--speed=1.25",
			"--workers=8",
			"--unknown-chars=skip",
			"--cache=DISK",
			"--log-level=debug",
		),
		Defaults: defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TTS.Voice != "bf_emma" || cfg.TTS.Speed != 1.25 || cfg.TTS.UnknownChars != "skip" {
		t.Errorf("TTS = %+v", cfg.TTS)
	}

	if cfg.TTS.Cache != CacheDisk {
		t.Errorf("TTS.Cache = %q; want normalized %q", cfg.TTS.Cache, CacheDisk)
	}

	if cfg.Server.Workers != 8 {
		t.Errorf("Server.Workers = %d; want 8", cfg.Server.Workers)
	}

	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q; want debug", cfg.LogLevel)
	}
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Setenv("KOKOROTTS_LOG_LEVEL", "warn")
	t.Setenv("KOKOROTTS_SERVER_LISTEN_ADDR", ":9999")
	t.Setenv("KOKOROTTS_TTS_VOICE", "am_adam")

	cfg, err := Load(LoadOptions{Defaults: DefaultConfig()})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q; want warn", cfg.LogLevel)
	}

	if cfg.Server.ListenAddr != ":9999" {
		t.Errorf("Server.ListenAddr = %q; want :9999", cfg.Server.ListenAddr)
	}

	if cfg.TTS.Voice != "am_adam" {
		t.Errorf("TTS.Voice = %q; want am_adam", cfg.TTS.Voice)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	cfgFile := writeConfig(t, "kokorotts.yaml", `
log_level: error
server:
  workers: 16
  listen_addr: ":7777"
tts:
  voice: bm_george
  chunk_gap_ms: 0
`)

	defaults := DefaultConfig()

	// Unchanged flags must not shadow config file values.
	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.LogLevel != "error" {
		t.Errorf("LogLevel = %q; want error", cfg.LogLevel)
	}

	if cfg.Server.Workers != 16 || cfg.Server.ListenAddr != ":7777" {
		t.Errorf("Server = %+v", cfg.Server)
	}

	if cfg.TTS.Voice != "bm_george" || cfg.TTS.ChunkGapMS != 0 {
		t.Errorf("TTS = %+v", cfg.TTS)
	}

	if cfg.TTS.ChunkChars != defaults.TTS.ChunkChars {
		t.Errorf("TTS.ChunkChars = %d; want default %d", cfg.TTS.ChunkChars, defaults.TTS.ChunkChars)
	}
}

func TestLoad_FlagBeatsConfigFile(t *testing.T) {
	cfgFile := writeConfig(t, "kokorotts.yaml", "tts:\n  voice: bm_george\n")
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{
		Cmd:        newFlagBinder(t, defaults, "--voice=af_bella"),
		ConfigFile: cfgFile,
		Defaults:   defaults,
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TTS.Voice != "af_bella" {
		t.Errorf("TTS.Voice = %q; want af_bella", cfg.TTS.Voice)
	}
}

func TestLoad_InvalidConfigFile(t *testing.T) {
	cfgFile := writeConfig(t, "bad.yaml", ":\t:bad yaml:::")

	_, err := Load(LoadOptions{
		ConfigFile: cfgFile,
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for invalid config file")
	}
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := Load(LoadOptions{
		ConfigFile: "/nonexistent/path/kokorotts.yaml",
		Defaults:   DefaultConfig(),
	})
	if err == nil {
		t.Error("Load() = nil; want error for missing explicit config file")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"cache mode", []string{"--cache=redis"}},
		{"log format", []string{"--log-format=xml"}},
		{"zero speed", []string{"--speed=0"}},
		{"zero workers", []string{"--workers=0"}},
		{"zero threads", []string{"--threads=0"}},
		{"negative max tokens", []string{"--max-tokens=-1"}},
		{"negative chunk gap", []string{"--chunk-gap-ms=-5"}},
		{"negative rate limit", []string{"--rate-limit=-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defaults := DefaultConfig()

			_, err := Load(LoadOptions{
				Cmd:      newFlagBinder(t, defaults, tt.args...),
				Defaults: defaults,
			})
			if err == nil {
				t.Fatalf("Load(%v) = nil; want error", tt.args)
			}
		})
	}
}

func TestLoad_NilCmd(t *testing.T) {
	defaults := DefaultConfig()

	cfg, err := Load(LoadOptions{Defaults: defaults})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.TTS.Voice != defaults.TTS.Voice {
		t.Errorf("TTS.Voice = %q; want %q", cfg.TTS.Voice, defaults.TTS.Voice)
	}
}
