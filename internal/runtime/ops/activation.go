package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

// Activation is an element-wise nonlinearity applied in place.
type Activation func(x []float32)

// LeakyReLU returns an Activation with the given negative slope.
func LeakyReLU(slope float32) Activation {
	return func(x []float32) {
		for i, v := range x {
			if v < 0 {
				x[i] = v * slope
			}
		}
	}
}

// Tanh squashes values into (-1, 1).
func Tanh(x []float32) {
	for i, v := range x {
		x[i] = float32(math.Tanh(float64(v)))
	}
}

// Sigmoid maps values into (0, 1).
func Sigmoid(x []float32) {
	for i, v := range x {
		x[i] = sigmoid(v)
	}
}

func sigmoid(v float32) float32 {
	if v >= 0 {
		return float32(1 / (1 + math.Exp(-float64(v))))
	}

	e := math.Exp(float64(v))

	return float32(e / (1 + e))
}

// GELU is the exact erf form.
func GELU(x []float32) {
	for i, v := range x {
		fv := float64(v)
		x[i] = float32(0.5 * fv * (1 + math.Erf(fv/math.Sqrt2)))
	}
}

// Apply returns a copy of x with act applied.
func Apply(x *tensor.Tensor, act Activation) *tensor.Tensor {
	out := x.Clone()
	act(out.RawData())

	return out
}

// MLP computes fc2(act(fc1(x))). b1 and b2 may be nil.
func MLP(x, w1, b1, w2, b2 *tensor.Tensor, act Activation) (*tensor.Tensor, error) {
	if x == nil || w1 == nil || w2 == nil {
		return nil, errors.New("ops: mlp requires non-nil x/w1/w2")
	}

	if act == nil {
		return nil, errors.New("ops: mlp requires an activation")
	}

	h, err := tensor.Linear(x, w1, b1)
	if err != nil {
		return nil, fmt.Errorf("ops: mlp fc1: %w", err)
	}

	act(h.RawData())

	out, err := tensor.Linear(h, w2, b2)
	if err != nil {
		return nil, fmt.Errorf("ops: mlp fc2: %w", err)
	}

	return out, nil
}
