package native

import (
	"errors"
	"fmt"

	"github.com/example/go-kokoro-tts/internal/runtime/ops"
	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

const (
	vocoderLeakySlope = 0.1
	postLeakySlope    = 0.01
)

// VocoderConfig holds the metadata-driven parts of the vocoder layout.
type VocoderConfig struct {
	// UpsampleRates are the per-stage strides. Empty means kernel/2 for
	// every stage.
	UpsampleRates []int
	// ResblockDilations are the dilations of the first conv in each residual
	// unit, indexed by unit.
	ResblockDilations []int
}

type resUnit struct {
	conv1 *conv1dLayer
	conv2 *conv1dLayer
}

type upsampleStage struct {
	up    *convTr1dLayer
	units []resUnit
}

// Vocoder turns [1, C, F] acoustic frames into F*Hop waveform samples.
type Vocoder struct {
	convPre  *conv1dLayer
	stages   []upsampleStage
	convPost *conv1dLayer

	inChannels int64
	hop        int64
}

func LoadVocoder(vb *VarBuilder, inChannels int64, cfg VocoderConfig) (*Vocoder, error) {
	convPre, err := loadConv1D(vb.Path("conv_pre"), inChannels, 1)
	if err != nil {
		return nil, err
	}

	v := &Vocoder{convPre: convPre, inChannels: inChannels, hop: 1}

	ups := vb.Path("ups")

	n := ups.Count("weight")
	if n == 0 {
		return nil, errors.New("native: vocoder has no upsample stages")
	}

	if len(cfg.UpsampleRates) > 0 && len(cfg.UpsampleRates) != n {
		return nil, fmt.Errorf("native: %d upsample rates for %d vocoder stages", len(cfg.UpsampleRates), n)
	}

	channels := convPre.outChannels()

	for i := range n {
		stride := int64(0)
		if len(cfg.UpsampleRates) > 0 {
			stride = int64(cfg.UpsampleRates[i])
		} else if shape, ok := ups.Index(i).Shape("weight"); ok && len(shape) == 3 {
			stride = shape[2] / 2
		}

		up, err := loadConvTr1D(ups.Index(i), channels, stride)
		if err != nil {
			return nil, err
		}

		channels = up.outChannels()

		units, err := loadResUnits(vb.Path("resblocks").Index(i), channels, cfg.ResblockDilations)
		if err != nil {
			return nil, fmt.Errorf("native: vocoder stage %d: %w", i, err)
		}

		v.stages = append(v.stages, upsampleStage{up: up, units: units})
		v.hop *= stride
	}

	v.convPost, err = loadConv1D(vb.Path("conv_post"), channels, 1)
	if err != nil {
		return nil, err
	}

	if v.convPost.outChannels() != 1 {
		return nil, fmt.Errorf("native: vocoder conv_post must output 1 channel, got %d", v.convPost.outChannels())
	}

	return v, nil
}

func loadResUnits(vb *VarBuilder, channels int64, dilations []int) ([]resUnit, error) {
	n := vb.Count("conv1.weight")
	if n > 0 && n > len(dilations) {
		return nil, fmt.Errorf("%d residual units but only %d dilations", n, len(dilations))
	}

	units := make([]resUnit, 0, n)

	for j := range n {
		uvb := vb.Index(j)

		conv1, err := loadConv1D(uvb.Path("conv1"), channels, int64(dilations[j]))
		if err != nil {
			return nil, err
		}

		conv2, err := loadConv1D(uvb.Path("conv2"), channels, 1)
		if err != nil {
			return nil, err
		}

		if conv1.outChannels() != channels || conv2.outChannels() != channels {
			return nil, fmt.Errorf("residual unit %d must keep %d channels", j, channels)
		}

		units = append(units, resUnit{conv1: conv1, conv2: conv2})
	}

	return units, nil
}

// Hop is the number of output samples per acoustic frame.
func (v *Vocoder) Hop() int64 { return v.hop }

// InChannels is the acoustic frame width the vocoder expects.
func (v *Vocoder) InChannels() int64 { return v.inChannels }

// Render converts [1, C, F] frames into exactly F*Hop samples in [-1, 1].
func (v *Vocoder) Render(frames *tensor.Tensor) ([]float32, error) {
	if frames == nil {
		return nil, errors.New("native: vocoder input is nil")
	}

	shape := frames.Shape()
	if len(shape) != 3 || shape[0] != 1 || shape[1] != v.inChannels || shape[2] < 1 {
		return nil, fmt.Errorf("native: vocoder expects [1,%d,F>=1], got %v", v.inChannels, shape)
	}

	x, err := v.convPre.forward(frames)
	if err != nil {
		return nil, fmt.Errorf("native: vocoder conv_pre: %w", err)
	}

	for i, stage := range v.stages {
		x, err = stage.forward(x)
		if err != nil {
			return nil, fmt.Errorf("native: vocoder stage %d: %w", i, err)
		}
	}

	ops.LeakyReLU(postLeakySlope)(x.RawData())

	x, err = v.convPost.forward(x)
	if err != nil {
		return nil, fmt.Errorf("native: vocoder conv_post: %w", err)
	}

	samples := x.Data()
	ops.Tanh(samples)

	if want := shape[2] * v.hop; int64(len(samples)) != want {
		return nil, fmt.Errorf("native: vocoder produced %d samples, want %d", len(samples), want)
	}

	return samples, nil
}

func (s upsampleStage) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	h := ops.Apply(x, ops.LeakyReLU(vocoderLeakySlope))

	h, err := s.up.forward(h)
	if err != nil {
		return nil, err
	}

	for _, u := range s.units {
		h, err = u.forward(h)
		if err != nil {
			return nil, err
		}
	}

	return h, nil
}

func (u resUnit) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	leaky := ops.LeakyReLU(vocoderLeakySlope)

	h, err := u.conv1.forward(ops.Apply(x, leaky))
	if err != nil {
		return nil, err
	}

	leaky(h.RawData())

	h, err = u.conv2.forward(h)
	if err != nil {
		return nil, err
	}

	return residual(x, h)
}
