package tensor

import (
	"errors"
	"fmt"
)

// Tensor is a dense, row-major float32 tensor. Model weights are loaded into
// Tensors once and then only read, so a Tensor may be shared between
// goroutines as long as nobody writes through RawData.
type Tensor struct {
	shape []int64
	data  []float32
}

// New copies data into a tensor of the given shape.
func New(data []float32, shape []int64) (*Tensor, error) {
	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	if len(data) != n {
		return nil, fmt.Errorf("tensor: data length %d does not match shape %v (%d elements)", len(data), shape, n)
	}

	return newOwned(append([]float32(nil), data...), append([]int64(nil), shape...)), nil
}

// newOwned wraps data and shape without copying or validating them.
func newOwned(data []float32, shape []int64) *Tensor {
	return &Tensor{shape: shape, data: data}
}

// Zeros returns a zero-filled tensor.
func Zeros(shape []int64) (*Tensor, error) {
	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	return newOwned(make([]float32, n), append([]int64(nil), shape...)), nil
}

// Shape returns a copy of the dims.
func (t *Tensor) Shape() []int64 {
	if t == nil {
		return nil
	}

	return append([]int64(nil), t.shape...)
}

// Data returns a copy of the values.
func (t *Tensor) Data() []float32 {
	if t == nil {
		return nil
	}

	return append([]float32(nil), t.data...)
}

// RawData returns the backing slice. Kernels write through it on tensors they
// own; shared weights must be treated as read-only.
func (t *Tensor) RawData() []float32 {
	if t == nil {
		return nil
	}

	return t.data
}

func (t *Tensor) Rank() int {
	if t == nil {
		return 0
	}

	return len(t.shape)
}

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	if t == nil {
		return nil
	}

	return newOwned(append([]float32(nil), t.data...), append([]int64(nil), t.shape...))
}

// Reshape returns a copy with a new shape holding the same element count.
func (t *Tensor) Reshape(shape []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: reshape on nil tensor")
	}

	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	if n != len(t.data) {
		return nil, fmt.Errorf("tensor: cannot reshape %v (%d elements) to %v (%d elements)", t.shape, len(t.data), shape, n)
	}

	return newOwned(append([]float32(nil), t.data...), append([]int64(nil), shape...)), nil
}
