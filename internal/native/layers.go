package native

import (
	"errors"
	"fmt"

	"github.com/example/go-kokoro-tts/internal/runtime/ops"
	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

type Linear struct {
	Weight *tensor.Tensor // [out, in]
	Bias   *tensor.Tensor // optional [out]
}

func loadLinear(vb *VarBuilder, name string, withBias bool) (*Linear, error) {
	w, err := vb.Tensor(name + ".weight")
	if err != nil {
		return nil, err
	}

	if len(w.Shape()) != 2 {
		return nil, fmt.Errorf("native: linear %q weight must be rank-2, got %v", name, w.Shape())
	}

	var b *tensor.Tensor

	if withBias {
		t, ok, err := vb.TensorMaybe(name + ".bias")
		if err != nil {
			return nil, err
		}

		if ok {
			if len(t.Shape()) != 1 || t.Shape()[0] != w.Shape()[0] {
				return nil, fmt.Errorf("native: linear %q bias shape %v incompatible with weight %v", name, t.Shape(), w.Shape())
			}

			b = t
		}
	}

	return &Linear{Weight: w, Bias: b}, nil
}

// In and Out report the input and output feature widths.
func (l *Linear) In() int64 { return l.Weight.Shape()[1] }
func (l *Linear) Out() int64 { return l.Weight.Shape()[0] }

func (l *Linear) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if l == nil || l.Weight == nil {
		return nil, errors.New("native: linear is not initialized")
	}

	return tensor.Linear(x, l.Weight, l.Bias)
}

type LayerNorm struct {
	Weight *tensor.Tensor
	Bias   *tensor.Tensor
	Eps    float32
}

func loadLayerNorm(vb *VarBuilder, name string, width int64, eps float32) (*LayerNorm, error) {
	w, err := vb.Tensor(name+".weight", width)
	if err != nil {
		return nil, err
	}

	b, err := vb.Tensor(name+".bias", width)
	if err != nil {
		return nil, err
	}

	return &LayerNorm{Weight: w, Bias: b, Eps: eps}, nil
}

// Forward normalizes over the last dimension.
func (ln *LayerNorm) Forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	if ln == nil || ln.Weight == nil || ln.Bias == nil {
		return nil, errors.New("native: layernorm is not initialized")
	}

	return tensor.LayerNorm(x, ln.Weight, ln.Bias, ln.Eps)
}

// ForwardChannels normalizes a [B, C, T] tensor over C.
func (ln *LayerNorm) ForwardChannels(x *tensor.Tensor) (*tensor.Tensor, error) {
	xt, err := x.Transpose(1, 2)
	if err != nil {
		return nil, err
	}

	y, err := ln.Forward(xt)
	if err != nil {
		return nil, err
	}

	return y.Transpose(1, 2)
}

// conv1dLayer is a stride-1 convolution with symmetric "same" padding.
type conv1dLayer struct {
	weight   *tensor.Tensor // [out, in, k]
	bias     *tensor.Tensor
	padding  int64
	dilation int64
}

func loadConv1D(vb *VarBuilder, inChannels, dilation int64) (*conv1dLayer, error) {
	w, err := vb.Tensor("weight")
	if err != nil {
		return nil, err
	}

	shape := w.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("native: conv1d %q weight must be rank-3, got %v", vb.resolve("weight"), shape)
	}

	if inChannels > 0 && shape[1] != inChannels {
		return nil, fmt.Errorf("native: conv1d %q expects %d input channels, weight has %d", vb.resolve("weight"), inChannels, shape[1])
	}

	padding, err := ops.SamePadding(shape[2], dilation)
	if err != nil {
		return nil, fmt.Errorf("native: conv1d %q: %w", vb.resolve("weight"), err)
	}

	b, _, err := vb.TensorMaybe("bias", shape[0])
	if err != nil {
		return nil, err
	}

	return &conv1dLayer{weight: w, bias: b, padding: padding, dilation: dilation}, nil
}

func (c *conv1dLayer) outChannels() int64 { return c.weight.Shape()[0] }

func (c *conv1dLayer) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.Conv1D(x, c.weight, c.bias, 1, c.padding, c.dilation)
}

// convTr1dLayer upsamples by exactly stride: with padding (k-stride)/2 an
// input of T frames yields T*stride frames.
type convTr1dLayer struct {
	kernel  *ops.TransposedKernel
	bias    *tensor.Tensor
	stride  int64
	padding int64
}

func loadConvTr1D(vb *VarBuilder, inChannels, stride int64) (*convTr1dLayer, error) {
	w, err := vb.Tensor("weight")
	if err != nil {
		return nil, err
	}

	shape := w.Shape()
	if len(shape) != 3 {
		return nil, fmt.Errorf("native: convtranspose1d %q weight must be rank-3, got %v", vb.resolve("weight"), shape)
	}

	if shape[0] != inChannels {
		return nil, fmt.Errorf("native: convtranspose1d %q expects %d input channels, weight has %d", vb.resolve("weight"), inChannels, shape[0])
	}

	if stride <= 0 {
		return nil, fmt.Errorf("native: convtranspose1d %q stride must be > 0, got %d", vb.resolve("weight"), stride)
	}

	trim := shape[2] - stride
	if trim < 0 || trim%2 != 0 {
		return nil, fmt.Errorf("native: convtranspose1d %q kernel %d and stride %d do not upsample exactly", vb.resolve("weight"), shape[2], stride)
	}

	b, _, err := vb.TensorMaybe("bias", shape[1])
	if err != nil {
		return nil, err
	}

	k, err := ops.PackTransposed(w)
	if err != nil {
		return nil, fmt.Errorf("native: convtranspose1d %q: %w", vb.resolve("weight"), err)
	}

	return &convTr1dLayer{kernel: k, bias: b, stride: stride, padding: trim / 2}, nil
}

func (c *convTr1dLayer) outChannels() int64 { return c.kernel.OutChannels() }

func (c *convTr1dLayer) forward(x *tensor.Tensor) (*tensor.Tensor, error) {
	return ops.ConvTranspose1D(x, c.kernel, c.bias, c.stride, c.padding)
}
