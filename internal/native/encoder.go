package native

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-kokoro-tts/internal/runtime/ops"
	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

const (
	encoderLeakySlope = 0.2
	layerNormEps      = 1e-5
	defaultRoPEBase   = 10000.0
)

// EncoderConfig carries the values that come from model metadata rather than
// from tensor shapes.
type EncoderConfig struct {
	NumHeads    int64
	MinDuration int64
	// MaxPositions bounds the token sequence (pads included) the context
	// layers can see; it sizes the rotary tables.
	MaxPositions int64
	RoPEBase     float64
}

type cnnBlock struct {
	conv *conv1dLayer
	norm *LayerNorm
}

type contextLayer struct {
	norm1   *LayerNorm
	norm2   *LayerNorm
	inProj  *Linear
	outProj *Linear
	fc1     *Linear
	fc2     *Linear
	nHeads  int64
	headDim int64
}

// Encoder is the duration-based sequence encoder: token ids and a voice
// style vector in, acoustic frames out. It holds no per-call state.
type Encoder struct {
	embedding *tensor.Tensor // [V, H]
	cnn       []cnnBlock
	context   []*contextLayer
	rotary    *ops.Rotary

	predictorProj *Linear // [H, H+S]
	duration      *Linear // [bins, H]
	decoderProj   *Linear // [C, H+S]

	vocabSize    int64
	hidden       int64
	styleHalf    int64
	channels     int64
	minDuration  int64
	maxPositions int64
}

// Encoding is the output of Encoder.Encode.
type Encoding struct {
	Frames    *tensor.Tensor // [1, C, F]
	Durations []int64        // frames per input token, F = sum
}

func LoadEncoder(vb *VarBuilder, cfg EncoderConfig) (*Encoder, error) {
	if cfg.MinDuration < 1 {
		return nil, fmt.Errorf("native: min duration must be >= 1, got %d", cfg.MinDuration)
	}

	if cfg.RoPEBase == 0 {
		cfg.RoPEBase = defaultRoPEBase
	}

	emb, err := vb.Tensor("encoder.embedding.weight")
	if err != nil {
		return nil, err
	}

	if len(emb.Shape()) != 2 {
		return nil, fmt.Errorf("native: encoder embedding must be rank-2, got %v", emb.Shape())
	}

	e := &Encoder{
		embedding:    emb,
		vocabSize:    emb.Shape()[0],
		hidden:       emb.Shape()[1],
		minDuration:  cfg.MinDuration,
		maxPositions: cfg.MaxPositions,
	}

	if err := e.loadCNN(vb.Path("encoder", "cnn")); err != nil {
		return nil, err
	}

	if err := e.loadContext(vb.Path("encoder", "context"), cfg); err != nil {
		return nil, err
	}

	if err := e.loadHeads(vb); err != nil {
		return nil, err
	}

	return e, nil
}

func (e *Encoder) loadCNN(vb *VarBuilder) error {
	n := vb.Count("conv.weight")
	if n == 0 {
		return errors.New("native: encoder has no cnn blocks")
	}

	e.cnn = make([]cnnBlock, 0, n)

	for i := range n {
		bvb := vb.Index(i)

		conv, err := loadConv1D(bvb.Path("conv"), e.hidden, 1)
		if err != nil {
			return err
		}

		if conv.outChannels() != e.hidden {
			return fmt.Errorf("native: encoder cnn %d outputs %d channels, want %d", i, conv.outChannels(), e.hidden)
		}

		norm, err := loadLayerNorm(bvb, "norm", e.hidden, layerNormEps)
		if err != nil {
			return err
		}

		e.cnn = append(e.cnn, cnnBlock{conv: conv, norm: norm})
	}

	return nil
}

func (e *Encoder) loadContext(vb *VarBuilder, cfg EncoderConfig) error {
	n := vb.Count("norm1.weight")
	if n == 0 {
		return nil
	}

	if cfg.NumHeads <= 0 || e.hidden%cfg.NumHeads != 0 {
		return fmt.Errorf("native: hidden size %d not divisible by %d attention heads", e.hidden, cfg.NumHeads)
	}

	headDim := e.hidden / cfg.NumHeads
	if headDim%2 != 0 {
		return fmt.Errorf("native: attention head dim %d must be even for rotary embedding", headDim)
	}

	if cfg.MaxPositions <= 0 {
		return fmt.Errorf("native: context layers need a positive max positions, got %d", cfg.MaxPositions)
	}

	for i := range n {
		layer, err := loadContextLayer(vb.Index(i), e.hidden, cfg.NumHeads)
		if err != nil {
			return fmt.Errorf("native: encoder context %d: %w", i, err)
		}

		e.context = append(e.context, layer)
	}

	rotary, err := ops.NewRotary(cfg.MaxPositions, headDim, cfg.RoPEBase)
	if err != nil {
		return err
	}

	e.rotary = rotary

	return nil
}

func loadContextLayer(vb *VarBuilder, hidden, nHeads int64) (*contextLayer, error) {
	norm1, err := loadLayerNorm(vb, "norm1", hidden, layerNormEps)
	if err != nil {
		return nil, err
	}

	norm2, err := loadLayerNorm(vb, "norm2", hidden, layerNormEps)
	if err != nil {
		return nil, err
	}

	inProj, err := loadLinear(vb, "attn.in_proj", true)
	if err != nil {
		return nil, err
	}

	outProj, err := loadLinear(vb, "attn.out_proj", true)
	if err != nil {
		return nil, err
	}

	fc1, err := loadLinear(vb, "mlp.fc1", true)
	if err != nil {
		return nil, err
	}

	fc2, err := loadLinear(vb, "mlp.fc2", true)
	if err != nil {
		return nil, err
	}

	switch {
	case inProj.In() != hidden || inProj.Out() != 3*hidden:
		return nil, fmt.Errorf("attn.in_proj shape %v, want [%d %d]", inProj.Weight.Shape(), 3*hidden, hidden)
	case outProj.In() != hidden || outProj.Out() != hidden:
		return nil, fmt.Errorf("attn.out_proj shape %v, want [%d %d]", outProj.Weight.Shape(), hidden, hidden)
	case fc1.In() != hidden || fc2.Out() != hidden || fc2.In() != fc1.Out():
		return nil, fmt.Errorf("mlp shapes %v/%v do not chain through hidden %d", fc1.Weight.Shape(), fc2.Weight.Shape(), hidden)
	}

	return &contextLayer{
		norm1:   norm1,
		norm2:   norm2,
		inProj:  inProj,
		outProj: outProj,
		fc1:     fc1,
		fc2:     fc2,
		nHeads:  nHeads,
		headDim: hidden / nHeads,
	}, nil
}

func (e *Encoder) loadHeads(vb *VarBuilder) error {
	var err error

	e.predictorProj, err = loadLinear(vb, "predictor.proj", true)
	if err != nil {
		return err
	}

	if e.predictorProj.In() <= e.hidden || e.predictorProj.Out() != e.hidden {
		return fmt.Errorf("native: predictor.proj shape %v, want [%d, %d+style]", e.predictorProj.Weight.Shape(), e.hidden, e.hidden)
	}

	e.styleHalf = e.predictorProj.In() - e.hidden

	e.duration, err = loadLinear(vb, "predictor.duration", true)
	if err != nil {
		return err
	}

	if e.duration.In() != e.hidden {
		return fmt.Errorf("native: predictor.duration shape %v, want [bins, %d]", e.duration.Weight.Shape(), e.hidden)
	}

	e.decoderProj, err = loadLinear(vb, "decoder.proj", true)
	if err != nil {
		return err
	}

	if e.decoderProj.In() != e.hidden+e.styleHalf {
		return fmt.Errorf("native: decoder.proj shape %v, want [channels, %d]", e.decoderProj.Weight.Shape(), e.hidden+e.styleHalf)
	}

	e.channels = e.decoderProj.Out()

	return nil
}

// VocabSize is the number of embedding rows; valid token ids are [0, VocabSize).
func (e *Encoder) VocabSize() int64 { return e.vocabSize }

// StyleDim is the full voice style width: decoder half plus predictor half.
func (e *Encoder) StyleDim() int64 { return 2 * e.styleHalf }

// Channels is the acoustic frame width handed to the vocoder.
func (e *Encoder) Channels() int64 { return e.channels }

// Encode maps a padded token sequence and a style vector to acoustic frames.
// style[:S] conditions the decoder and style[S:] the duration predictor.
// Predicted durations are divided by speed and rounded half away from zero,
// with a floor of the model's minimum duration.
func (e *Encoder) Encode(tokens []int64, style []float32, speed float64) (*Encoding, error) {
	if len(tokens) == 0 {
		return nil, errors.New("native: encode requires at least one token")
	}

	if e.maxPositions > 0 && int64(len(tokens)) > e.maxPositions {
		return nil, fmt.Errorf("native: %d tokens exceed the encoder limit %d", len(tokens), e.maxPositions)
	}

	if int64(len(style)) != e.StyleDim() {
		return nil, fmt.Errorf("native: style width %d, want %d", len(style), e.StyleDim())
	}

	if !(speed > 0) || math.IsInf(speed, 0) {
		return nil, fmt.Errorf("native: speed must be positive and finite, got %v", speed)
	}

	for i, id := range tokens {
		if id < 0 || id >= e.vocabSize {
			return nil, fmt.Errorf("native: token %d (%d) out of range [0,%d)", i, id, e.vocabSize)
		}
	}

	h, err := e.hiddenStates(tokens)
	if err != nil {
		return nil, err
	}

	durations, err := e.predictDurations(h, style[e.styleHalf:], speed)
	if err != nil {
		return nil, err
	}

	frames, err := e.decode(h, durations, style[:e.styleHalf])
	if err != nil {
		return nil, err
	}

	return &Encoding{Frames: frames, Durations: durations}, nil
}

// hiddenStates returns the [T, H] contextual token representation.
func (e *Encoder) hiddenStates(tokens []int64) (*tensor.Tensor, error) {
	t := int64(len(tokens))

	x, err := e.embedding.Gather(0, tokens)
	if err != nil {
		return nil, err
	}

	x, err = x.Reshape([]int64{1, t, e.hidden})
	if err != nil {
		return nil, err
	}

	x, err = x.Transpose(1, 2) // [1, H, T]
	if err != nil {
		return nil, err
	}

	leaky := ops.LeakyReLU(encoderLeakySlope)

	for i, block := range e.cnn {
		x, err = block.conv.forward(x)
		if err != nil {
			return nil, fmt.Errorf("native: encoder cnn %d: %w", i, err)
		}

		x, err = block.norm.ForwardChannels(x)
		if err != nil {
			return nil, fmt.Errorf("native: encoder cnn %d norm: %w", i, err)
		}

		leaky(x.RawData())
	}

	x, err = x.Transpose(1, 2) // [1, T, H]
	if err != nil {
		return nil, err
	}

	for i, layer := range e.context {
		x, err = layer.forward(x, e.rotary)
		if err != nil {
			return nil, fmt.Errorf("native: encoder context %d: %w", i, err)
		}
	}

	return x.Reshape([]int64{t, e.hidden})
}

func (e *Encoder) predictDurations(h *tensor.Tensor, prosody []float32, speed float64) ([]int64, error) {
	x, err := appendStyle(h, prosody)
	if err != nil {
		return nil, err
	}

	x, err = e.predictorProj.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("native: predictor proj: %w", err)
	}

	ops.LeakyReLU(encoderLeakySlope)(x.RawData())

	logits, err := e.duration.Forward(x)
	if err != nil {
		return nil, fmt.Errorf("native: predictor duration: %w", err)
	}

	ops.Sigmoid(logits.RawData())

	bins := int(e.duration.Out())
	data := logits.RawData()
	out := make([]int64, len(data)/bins)

	for i := range out {
		var sum float64
		for _, v := range data[i*bins : (i+1)*bins] {
			sum += float64(v)
		}

		out[i] = max(int64(math.Round(sum/speed)), e.minDuration)
	}

	return out, nil
}

func (e *Encoder) decode(h *tensor.Tensor, durations []int64, acoustic []float32) (*tensor.Tensor, error) {
	expanded, err := h.RepeatInterleave(0, durations) // [F, H]
	if err != nil {
		return nil, fmt.Errorf("native: expand durations: %w", err)
	}

	x, err := appendStyle(expanded, acoustic)
	if err != nil {
		return nil, err
	}

	x, err = e.decoderProj.Forward(x) // [F, C]
	if err != nil {
		return nil, fmt.Errorf("native: decoder proj: %w", err)
	}

	x, err = x.Transpose(0, 1)
	if err != nil {
		return nil, err
	}

	return x.Reshape([]int64{1, e.channels, x.Shape()[1]})
}

func (l *contextLayer) forward(x *tensor.Tensor, rotary *ops.Rotary) (*tensor.Tensor, error) {
	n1, err := l.norm1.Forward(x)
	if err != nil {
		return nil, err
	}

	attn, err := l.selfAttention(n1, rotary)
	if err != nil {
		return nil, err
	}

	x, err = residual(x, attn)
	if err != nil {
		return nil, err
	}

	n2, err := l.norm2.Forward(x)
	if err != nil {
		return nil, err
	}

	ff, err := ops.MLP(n2, l.fc1.Weight, l.fc1.Bias, l.fc2.Weight, l.fc2.Bias, ops.GELU)
	if err != nil {
		return nil, err
	}

	return residual(x, ff)
}

func (l *contextLayer) selfAttention(x *tensor.Tensor, rotary *ops.Rotary) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("native: selfAttention expects [B,T,D], got %v", shape)
	}

	b, t, d := shape[0], shape[1], shape[2]

	qkv, err := l.inProj.Forward(x)
	if err != nil {
		return nil, err
	}

	qkvParts, err := splitLast(qkv, 3)
	if err != nil {
		return nil, err
	}

	heads := make([]*tensor.Tensor, 3)

	for i, part := range qkvParts {
		r, err := part.Reshape([]int64{b, t, l.nHeads, l.headDim})
		if err != nil {
			return nil, err
		}

		heads[i], err = r.Transpose(1, 2) // [B, heads, T, headDim]
		if err != nil {
			return nil, err
		}
	}

	q, err := rotary.Apply(heads[0])
	if err != nil {
		return nil, err
	}

	k, err := rotary.Apply(heads[1])
	if err != nil {
		return nil, err
	}

	a, err := ops.Attention(q, k, heads[2])
	if err != nil {
		return nil, err
	}

	a, err = a.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	a, err = a.Reshape([]int64{b, t, d})
	if err != nil {
		return nil, err
	}

	return l.outProj.Forward(a)
}
