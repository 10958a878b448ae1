package tensor

import (
	"fmt"
	"math"
)

// elemCount returns the number of elements a shape holds. A scalar shape
// holds one element.
func elemCount(shape []int64) (int, error) {
	n := int64(1)

	for i, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("tensor: shape %v has negative dimension at %d", shape, i)
		}

		if d != 0 && n > math.MaxInt/d {
			return 0, fmt.Errorf("tensor: shape %v too large", shape)
		}

		n *= d
	}

	return int(n), nil
}

// normalizeDim resolves a possibly negative dim against rank.
func normalizeDim(dim, rank int) (int, error) {
	if dim < 0 {
		dim += rank
	}

	if dim < 0 || dim >= rank {
		return 0, fmt.Errorf("dim %d out of range for rank %d", dim, rank)
	}

	return dim, nil
}

// product multiplies the dims of shape. The caller has validated the shape.
func product(shape []int64) int64 {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}

	return n
}

// around views shape as [outer, shape[dim], inner] in row-major order.
func around(shape []int64, dim int) (outer, size, inner int64) {
	return product(shape[:dim]), shape[dim], product(shape[dim+1:])
}
