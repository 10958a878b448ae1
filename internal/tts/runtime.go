package tts

import (
	"github.com/example/go-kokoro-tts/internal/native"
	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

// ModelSpec describes the constants a Runtime's weights were built with.
type ModelSpec struct {
	VocabSize int64
	StyleDim  int
	Hop       int
	MaxTokens int
	// Fingerprint identifies the weights; results cached under one
	// fingerprint are never served for another.
	Fingerprint string
	// Vocab is the symbol table stored with the weights; nil selects the
	// built-in Kokoro vocabulary.
	Vocab map[string]int64
}

// Runtime abstracts acoustic model execution so the Engine pipeline
// (voices, phonemization, stage errors, caching) does not depend on how the
// encoder and vocoder are evaluated. Implementations must be safe for
// concurrent calls unless the Engine is built with Serialize.
type Runtime interface {
	Spec() ModelSpec
	Encode(tokens []int64, style []float32, speed float64) (*native.Encoding, error)
	Render(frames *tensor.Tensor) ([]float32, error)
	Close()
}
