package tensor

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// LayerNorm normalizes the last dim to zero mean and unit variance, then
// applies the optional per-channel weight and bias.
func LayerNorm(x, weight, bias *Tensor, eps float32) (*Tensor, error) {
	if x == nil {
		return nil, errors.New("tensor: layernorm input is nil")
	}

	if x.Rank() < 1 || x.shape[x.Rank()-1] <= 0 {
		return nil, fmt.Errorf("tensor: layernorm needs a non-empty last dim, got shape %v", x.shape)
	}

	if eps <= 0 {
		return nil, errors.New("tensor: layernorm eps must be > 0")
	}

	width := x.shape[x.Rank()-1]

	for name, p := range map[string]*Tensor{"weight": weight, "bias": bias} {
		if p != nil && (p.Rank() != 1 || p.shape[0] != width) {
			return nil, fmt.Errorf("tensor: layernorm %s shape %v does not match last dimension %d", name, p.shape, width)
		}
	}

	out := x.Clone()
	w := int(width)

	for row := range slices.Chunk(out.data, w) {
		var mean float64
		for _, v := range row {
			mean += float64(v)
		}

		mean /= float64(w)

		var variance float64
		for _, v := range row {
			delta := float64(v) - mean
			variance += delta * delta
		}

		scale := float32(1 / math.Sqrt(variance/float64(w)+float64(eps)))
		m := float32(mean)

		for i, v := range row {
			y := (v - m) * scale
			if weight != nil {
				y *= weight.data[i]
			}

			if bias != nil {
				y += bias.data[i]
			}

			row[i] = y
		}
	}

	return out, nil
}

// Linear computes x * W^T + b for a [out, in] weight. Rows of x are split
// across the configured workers.
func Linear(x, weight, bias *Tensor) (*Tensor, error) {
	if x == nil || weight == nil {
		return nil, errors.New("tensor: linear requires non-nil x and weight")
	}

	if x.Rank() < 1 {
		return nil, errors.New("tensor: linear requires x rank >= 1")
	}

	if weight.Rank() != 2 {
		return nil, fmt.Errorf("tensor: linear weight must be rank 2, got %d", weight.Rank())
	}

	in := int(x.shape[x.Rank()-1])
	outDim := int(weight.shape[0])

	if int(weight.shape[1]) != in {
		return nil, fmt.Errorf("tensor: linear mismatch: x last dim %d, weight in dim %d", in, weight.shape[1])
	}

	if bias != nil && (bias.Rank() != 1 || int(bias.shape[0]) != outDim) {
		return nil, fmt.Errorf("tensor: linear bias shape %v does not match out dim %d", bias.shape, outDim)
	}

	rows := 0
	if in > 0 {
		rows = len(x.data) / in
	}

	out := make([]float32, rows*outDim)

	Parallel(rows, func(lo, hi int) {
		for r := lo; r < hi; r++ {
			xr := x.data[r*in : (r+1)*in]
			yr := out[r*outDim : (r+1)*outDim]

			for o := range yr {
				y := dotF32(xr, weight.data[o*in:(o+1)*in])
				if bias != nil {
					y += bias.data[o]
				}

				yr[o] = y
			}
		}
	})

	shape := slices.Clone(x.shape)
	shape[len(shape)-1] = int64(outDim)

	return newOwned(out, shape), nil
}
