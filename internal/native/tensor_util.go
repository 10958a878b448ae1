package native

import (
	"fmt"
	"slices"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

// residual returns x + delta. Both must have the same shape.
func residual(x, delta *tensor.Tensor) (*tensor.Tensor, error) {
	if !slices.Equal(x.Shape(), delta.Shape()) {
		return nil, fmt.Errorf("native: residual shape mismatch %v vs %v", x.Shape(), delta.Shape())
	}

	out := x.Clone()
	for i, d := range delta.RawData() {
		out.RawData()[i] += d
	}

	return out, nil
}

// splitLast cuts the last dim of x into n equal parts, e.g. a fused
// [B, T, 3D] projection into q, k and v.
func splitLast(x *tensor.Tensor, n int64) ([]*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) == 0 || shape[len(shape)-1]%n != 0 {
		return nil, fmt.Errorf("native: cannot split shape %v into %d parts", shape, n)
	}

	width := shape[len(shape)-1] / n
	parts := make([]*tensor.Tensor, n)

	for i := range parts {
		p, err := x.Narrow(-1, int64(i)*width, width)
		if err != nil {
			return nil, err
		}

		parts[i] = p
	}

	return parts, nil
}

// appendStyle appends the same style vector to every row of a [T, H] tensor,
// giving [T, H+len(style)].
func appendStyle(x *tensor.Tensor, style []float32) (*tensor.Tensor, error) {
	shape := x.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("native: appendStyle expects [T,H], got %v", shape)
	}

	rows, h, s := shape[0], shape[1], int64(len(style))
	data := make([]float32, 0, rows*(h+s))
	src := x.RawData()

	for r := range rows {
		data = append(data, src[r*h:(r+1)*h]...)
		data = append(data, style...)
	}

	return tensor.New(data, []int64{rows, h + s})
}
