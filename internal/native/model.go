package native

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/example/go-kokoro-tts/internal/safetensors"
)

// SampleRate is the output rate of every model this package loads.
const SampleRate = 24000

const (
	DefaultMaxTokens      = 510
	DefaultMinDuration    = 1
	DefaultAttentionHeads = 2
)

// Metadata keys read from the safetensors "__metadata__" block.
const (
	MetaSampleRate        = "sample_rate"
	MetaMaxTokens         = "max_tokens"
	MetaMinDuration       = "min_duration"
	MetaUpsampleRates     = "upsample_rates"
	MetaResblockDilations = "resblock_dilations"
	MetaAttentionHeads    = "attention_heads"
	MetaVocab             = "vocab"
)

// Config is the model configuration discovered from archive metadata.
type Config struct {
	MaxTokens         int
	MinDuration       int
	AttentionHeads    int
	UpsampleRates     []int
	ResblockDilations []int
	// Vocab maps phoneme symbols to embedding rows. Nil when the archive does
	// not carry one and the built-in vocabulary applies.
	Vocab map[string]int64
}

// ConfigFromStore reads the model configuration from store metadata, filling
// defaults for absent keys.
func ConfigFromStore(store *safetensors.Store) (Config, error) {
	if raw, ok := store.MetadataString(MetaSampleRate); ok {
		rate, err := store.MetadataInt(MetaSampleRate, SampleRate)
		if err != nil {
			return Config{}, err
		}

		if rate != SampleRate {
			return Config{}, fmt.Errorf("native: model sample rate %q, want %d", raw, SampleRate)
		}
	}

	cfg := Config{ResblockDilations: []int{1, 3, 5}}

	var err error

	if cfg.MaxTokens, err = store.MetadataInt(MetaMaxTokens, DefaultMaxTokens); err != nil {
		return Config{}, err
	}

	if cfg.MinDuration, err = store.MetadataInt(MetaMinDuration, DefaultMinDuration); err != nil {
		return Config{}, err
	}

	if cfg.AttentionHeads, err = store.MetadataInt(MetaAttentionHeads, DefaultAttentionHeads); err != nil {
		return Config{}, err
	}

	if cfg.UpsampleRates, err = store.MetadataInts(MetaUpsampleRates); err != nil {
		return Config{}, err
	}

	dilations, err := store.MetadataInts(MetaResblockDilations)
	if err != nil {
		return Config{}, err
	}

	if dilations != nil {
		cfg.ResblockDilations = dilations
	}

	switch {
	case cfg.MaxTokens < 1:
		return Config{}, fmt.Errorf("native: max_tokens must be >= 1, got %d", cfg.MaxTokens)
	case cfg.MinDuration < 1:
		return Config{}, fmt.Errorf("native: min_duration must be >= 1, got %d", cfg.MinDuration)
	case cfg.AttentionHeads < 1:
		return Config{}, fmt.Errorf("native: attention_heads must be >= 1, got %d", cfg.AttentionHeads)
	}

	for _, r := range cfg.UpsampleRates {
		if r < 1 {
			return Config{}, fmt.Errorf("native: upsample rate %d must be >= 1", r)
		}
	}

	for _, d := range cfg.ResblockDilations {
		if d < 1 {
			return Config{}, fmt.Errorf("native: resblock dilation %d must be >= 1", d)
		}
	}

	if raw, ok := store.MetadataString(MetaVocab); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Vocab); err != nil {
			return Config{}, fmt.Errorf("native: metadata vocab: %w", err)
		}

		for sym := range cfg.Vocab {
			if utf8.RuneCountInString(sym) != 1 {
				return Config{}, fmt.Errorf("native: vocab symbol %q must be a single character", sym)
			}
		}
	}

	return cfg, nil
}

// Model owns the loaded weights. It is read-only after construction and safe
// for concurrent use.
type Model struct {
	store       *safetensors.Store
	cfg         Config
	encoder     *Encoder
	vocoder     *Vocoder
	fingerprint string
}

// LoadModel opens a safetensors archive and builds the encoder and vocoder.
// Tensor names with a "module." prefix are accepted.
func LoadModel(path string) (*Model, error) {
	store, err := safetensors.OpenStore(path, safetensors.StoreOptions{
		KeyMapper: safetensors.StripPrefix("module."),
		RemapMode: safetensors.RemapStrict,
	})
	if err != nil {
		return nil, err
	}

	m, err := LoadModelFromStore(store)
	if err != nil {
		store.Close()
		return nil, err
	}

	return m, nil
}

func LoadModelFromStore(store *safetensors.Store) (*Model, error) {
	cfg, err := ConfigFromStore(store)
	if err != nil {
		return nil, err
	}

	vb := NewVarBuilder(store)

	enc, err := LoadEncoder(vb, EncoderConfig{
		NumHeads:     int64(cfg.AttentionHeads),
		MinDuration:  int64(cfg.MinDuration),
		MaxPositions: int64(cfg.MaxTokens) + 2,
	})
	if err != nil {
		return nil, err
	}

	voc, err := LoadVocoder(vb.Path("vocoder"), enc.Channels(), VocoderConfig{
		UpsampleRates:     cfg.UpsampleRates,
		ResblockDilations: cfg.ResblockDilations,
	})
	if err != nil {
		return nil, err
	}

	for sym, id := range cfg.Vocab {
		if id < 0 || id >= enc.VocabSize() {
			return nil, fmt.Errorf("native: vocab symbol %q id %d outside embedding rows [0,%d)", sym, id, enc.VocabSize())
		}
	}

	return &Model{store: store, cfg: cfg, encoder: enc, vocoder: voc, fingerprint: store.Digest()}, nil
}

func (m *Model) Close() {
	if m != nil && m.store != nil {
		m.store.Close()
	}
}

func (m *Model) Config() Config { return m.cfg }
func (m *Model) Encoder() *Encoder { return m.encoder }
func (m *Model) Vocoder() *Vocoder { return m.vocoder }

// Fingerprint identifies the weight archive the model was loaded from.
func (m *Model) Fingerprint() string { return m.fingerprint }
