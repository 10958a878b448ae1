package testutil

import (
	"path/filepath"
	"strconv"
	"testing"

	"github.com/example/go-kokoro-tts/internal/safetensors"
)

// Dimensions of the tiny synthetic model.
const (
	TinyVocabSize = 178
	TinyHidden    = 8
	TinyStyleDim  = 8 // decoder half + predictor half
	TinyChannels  = 6
	TinyHop       = 6 // upsample rates 2*3
	TinyMaxTokens = 64
)

const (
	tinyStyleHalf = TinyStyleDim / 2
	tinyBins      = 4
	tinyFF        = 16
)

// ModelOptions tweaks the tiny model archive.
type ModelOptions struct {
	MaxTokens   int // 0 means TinyMaxTokens
	MinDuration int // 0 leaves the key out
	// Prefix is prepended to every tensor name, e.g. "module.".
	Prefix string
	// NoContext omits the attention layers.
	NoContext bool
	// Metadata entries override or extend the defaults.
	Metadata map[string]string
	// Drop removes tensors by unprefixed name.
	Drop []string
}

// TinyModelTensors returns the tensors and metadata of a small but complete
// model: one CNN block, one attention layer, and a two stage vocoder.
func TinyModelTensors(opts ModelOptions) ([]safetensors.Tensor, map[string]string) {
	g := &weightGen{state: 0x2545f491}

	var out []safetensors.Tensor

	add := func(name string, shape []int64, data []float32) {
		for _, d := range opts.Drop {
			if d == name {
				return
			}
		}

		out = append(out, safetensors.Tensor{Name: opts.Prefix + name, Shape: shape, Data: data})
	}

	rnd := func(name string, scale float32, shape ...int64) {
		add(name, shape, g.fill(numel(shape), scale))
	}

	norm := func(name string, width int64) {
		add(name+".weight", []int64{width}, constant(width, 1))
		add(name+".bias", []int64{width}, constant(width, 0))
	}

	const h, s, c = TinyHidden, tinyStyleHalf, TinyChannels

	rnd("encoder.embedding.weight", 0.5, TinyVocabSize, h)
	rnd("encoder.cnn.0.conv.weight", 0.3, h, h, 3)
	rnd("encoder.cnn.0.conv.bias", 0.1, h)
	norm("encoder.cnn.0.norm", h)

	if !opts.NoContext {
		norm("encoder.context.0.norm1", h)
		rnd("encoder.context.0.attn.in_proj.weight", 0.3, 3*h, h)
		rnd("encoder.context.0.attn.in_proj.bias", 0.05, 3*h)
		rnd("encoder.context.0.attn.out_proj.weight", 0.3, h, h)
		rnd("encoder.context.0.attn.out_proj.bias", 0.05, h)
		norm("encoder.context.0.norm2", h)
		rnd("encoder.context.0.mlp.fc1.weight", 0.3, tinyFF, h)
		rnd("encoder.context.0.mlp.fc1.bias", 0.05, tinyFF)
		rnd("encoder.context.0.mlp.fc2.weight", 0.3, h, tinyFF)
		rnd("encoder.context.0.mlp.fc2.bias", 0.05, h)
	}

	rnd("predictor.proj.weight", 0.3, h, h+s)
	rnd("predictor.proj.bias", 0.1, h)
	rnd("predictor.duration.weight", 0.5, tinyBins, h)
	rnd("predictor.duration.bias", 0.2, tinyBins)
	rnd("decoder.proj.weight", 0.3, c, h+s)
	rnd("decoder.proj.bias", 0.1, c)

	rnd("vocoder.conv_pre.weight", 0.3, 8, c, 3)
	rnd("vocoder.conv_pre.bias", 0.05, 8)

	stages := []struct{ in, out, k int64 }{{8, 4, 4}, {4, 4, 5}}
	for i, st := range stages {
		p := "vocoder.ups." + strconv.Itoa(i)
		rnd(p+".weight", 0.3, st.in, st.out, st.k)
		rnd(p+".bias", 0.05, st.out)

		for j := range 2 {
			r := "vocoder.resblocks." + strconv.Itoa(i) + "." + strconv.Itoa(j)
			rnd(r+".conv1.weight", 0.2, st.out, st.out, 3)
			rnd(r+".conv1.bias", 0.05, st.out)
			rnd(r+".conv2.weight", 0.2, st.out, st.out, 3)
			rnd(r+".conv2.bias", 0.05, st.out)
		}
	}

	rnd("vocoder.conv_post.weight", 0.5, 1, 4, 3)
	rnd("vocoder.conv_post.bias", 0.01, 1)

	maxTokens := opts.MaxTokens
	if maxTokens == 0 {
		maxTokens = TinyMaxTokens
	}

	meta := map[string]string{
		"sample_rate":        "24000",
		"max_tokens":         strconv.Itoa(maxTokens),
		"upsample_rates":     "2,3",
		"resblock_dilations": "1,3",
		"attention_heads":    "2",
	}

	if opts.MinDuration > 0 {
		meta["min_duration"] = strconv.Itoa(opts.MinDuration)
	}

	for k, v := range opts.Metadata {
		meta[k] = v
	}

	return out, meta
}

// TinyModelBytes encodes the tiny model as a safetensors payload.
func TinyModelBytes(tb testing.TB, opts ModelOptions) []byte {
	tb.Helper()

	tensors, meta := TinyModelTensors(opts)

	data, err := safetensors.Encode(tensors, meta)
	if err != nil {
		tb.Fatalf("encode tiny model: %v", err)
	}

	return data
}

// WriteTinyModel writes the tiny model to dir and returns its path.
func WriteTinyModel(tb testing.TB, dir string, opts ModelOptions) string {
	tb.Helper()

	tensors, meta := TinyModelTensors(opts)
	path := filepath.Join(dir, "tiny-model.safetensors")

	if err := safetensors.WriteFile(path, tensors, meta); err != nil {
		tb.Fatalf("write tiny model: %v", err)
	}

	return path
}

// weightGen is a fixed LCG so fixtures are identical on every run.
type weightGen struct {
	state uint32
}

func (g *weightGen) next() float32 {
	g.state = g.state*1664525 + 1013904223
	return float32(g.state>>8)/float32(1<<24)*2 - 1
}

func (g *weightGen) fill(n int, scale float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = g.next() * scale
	}

	return out
}

func constant(n int64, v float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = v
	}

	return out
}

func numel(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}

	return n
}
