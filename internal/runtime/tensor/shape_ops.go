package tensor

import (
	"errors"
	"fmt"
)

// Narrow returns the slice [start, start+length) of dim.
func (t *Tensor) Narrow(dim int, start, length int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: narrow on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: narrow: %w", err)
	}

	if start < 0 || length < 0 || start+length > t.shape[dim] {
		return nil, fmt.Errorf("tensor: narrow: range [%d:%d] out of bounds for dim %d size %d", start, start+length, dim, t.shape[dim])
	}

	outer, size, inner := around(t.shape, dim)
	data := make([]float32, 0, outer*length*inner)

	for o := range outer {
		lo := (o*size + start) * inner
		data = append(data, t.data[lo:lo+length*inner]...)
	}

	shape := append([]int64(nil), t.shape...)
	shape[dim] = length

	return newOwned(data, shape), nil
}

// Gather selects the entries of dim named by indices, in order. Indices may
// repeat.
func (t *Tensor) Gather(dim int, indices []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: gather on nil tensor")
	}

	if len(indices) == 0 {
		return nil, errors.New("tensor: gather requires at least one index")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: gather: %w", err)
	}

	outer, size, inner := around(t.shape, dim)

	for i, idx := range indices {
		if idx < 0 || idx >= size {
			return nil, fmt.Errorf("tensor: gather index %d (%d) out of range for dim %d size %d", i, idx, dim, size)
		}
	}

	data := make([]float32, 0, outer*int64(len(indices))*inner)

	for o := range outer {
		for _, idx := range indices {
			lo := (o*size + idx) * inner
			data = append(data, t.data[lo:lo+inner]...)
		}
	}

	shape := append([]int64(nil), t.shape...)
	shape[dim] = int64(len(indices))

	return newOwned(data, shape), nil
}

// Transpose swaps dim1 and dim2.
func (t *Tensor) Transpose(dim1, dim2 int) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: transpose on nil tensor")
	}

	rank := len(t.shape)

	d1, err := normalizeDim(dim1, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim1: %w", err)
	}

	d2, err := normalizeDim(dim2, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: transpose dim2: %w", err)
	}

	if d1 == d2 {
		return t.Clone(), nil
	}

	if d1 > d2 {
		d1, d2 = d2, d1
	}

	// View the input as [outer, n1, mid, n2, inner].
	outer := product(t.shape[:d1])
	n1 := t.shape[d1]
	mid := product(t.shape[d1+1 : d2])
	n2 := t.shape[d2]
	inner := product(t.shape[d2+1:])

	data := make([]float32, len(t.data))
	dst := data

	for o := range outer {
		for j := range n2 {
			for m := range mid {
				for i := range n1 {
					lo := (((o*n1+i)*mid+m)*n2 + j) * inner
					copy(dst, t.data[lo:lo+inner])
					dst = dst[inner:]
				}
			}
		}
	}

	shape := append([]int64(nil), t.shape...)
	shape[d1], shape[d2] = shape[d2], shape[d1]

	return newOwned(data, shape), nil
}

// Concat joins tensors along dim. All other dims must match.
func Concat(tensors []*Tensor, dim int) (*Tensor, error) {
	if len(tensors) == 0 {
		return nil, errors.New("tensor: concat requires at least one tensor")
	}

	first := tensors[0]
	if first == nil {
		return nil, errors.New("tensor: concat tensor 0 is nil")
	}

	rank := len(first.shape)

	dim, err := normalizeDim(dim, rank)
	if err != nil {
		return nil, fmt.Errorf("tensor: concat: %w", err)
	}

	shape := append([]int64(nil), first.shape...)
	shape[dim] = 0

	for i, t := range tensors {
		if t == nil {
			return nil, fmt.Errorf("tensor: concat tensor %d is nil", i)
		}

		if len(t.shape) != rank {
			return nil, fmt.Errorf("tensor: concat tensor %d rank %d does not match rank %d", i, len(t.shape), rank)
		}

		for d := range rank {
			if d != dim && t.shape[d] != first.shape[d] {
				return nil, fmt.Errorf("tensor: concat tensor %d shape %v does not match base shape %v on dim %d", i, t.shape, first.shape, d)
			}
		}

		shape[dim] += t.shape[dim]
	}

	outer, _, inner := around(shape, dim)
	data := make([]float32, 0, product(shape))

	for o := range outer {
		for _, t := range tensors {
			span := t.shape[dim] * inner
			data = append(data, t.data[o*span:(o+1)*span]...)
		}
	}

	return newOwned(data, shape), nil
}

// RepeatInterleave repeats every slice along dim counts[i] times, in order.
// A count of zero drops the slice. The length of counts must equal the size
// of dim.
func (t *Tensor) RepeatInterleave(dim int, counts []int64) (*Tensor, error) {
	if t == nil {
		return nil, errors.New("tensor: repeat on nil tensor")
	}

	dim, err := normalizeDim(dim, len(t.shape))
	if err != nil {
		return nil, fmt.Errorf("tensor: repeat: %w", err)
	}

	outer, size, inner := around(t.shape, dim)
	if int64(len(counts)) != size {
		return nil, fmt.Errorf("tensor: repeat: %d counts for dim %d of size %d", len(counts), dim, size)
	}

	var total int64

	for i, c := range counts {
		if c < 0 {
			return nil, fmt.Errorf("tensor: repeat: negative count %d at %d", c, i)
		}

		total += c
	}

	shape := append([]int64(nil), t.shape...)
	shape[dim] = total

	n, err := elemCount(shape)
	if err != nil {
		return nil, err
	}

	data := make([]float32, 0, n)

	for o := range outer {
		for i, c := range counts {
			lo := (o*size + int64(i)) * inner
			for range c {
				data = append(data, t.data[lo:lo+inner]...)
			}
		}
	}

	return newOwned(data, shape), nil
}
