package tts

import (
	"errors"

	"github.com/example/go-kokoro-tts/internal/native"
	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

type nativeRuntime struct {
	model *native.Model
}

// NewNativeRuntime wraps a loaded pure-Go model.
func NewNativeRuntime(model *native.Model) (Runtime, error) {
	if model == nil {
		return nil, errors.New("tts: native runtime requires a model")
	}

	return &nativeRuntime{model: model}, nil
}

func (r *nativeRuntime) Spec() ModelSpec {
	cfg := r.model.Config()

	return ModelSpec{
		VocabSize:   r.model.Encoder().VocabSize(),
		StyleDim:    int(r.model.Encoder().StyleDim()),
		Hop:         int(r.model.Vocoder().Hop()),
		MaxTokens:   cfg.MaxTokens,
		Vocab:       cfg.Vocab,
		Fingerprint: r.model.Fingerprint(),
	}
}

func (r *nativeRuntime) Encode(tokens []int64, style []float32, speed float64) (*native.Encoding, error) {
	return r.model.Encoder().Encode(tokens, style, speed)
}

func (r *nativeRuntime) Render(frames *tensor.Tensor) ([]float32, error) {
	return r.model.Vocoder().Render(frames)
}

func (r *nativeRuntime) Close() {
	r.model.Close()
}
