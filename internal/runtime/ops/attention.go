package ops

import (
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

// Attention computes softmax(q k^T / sqrt(d)) v for q [..., tq, d],
// k [..., tk, d] and v [..., tk, dv]. Leading dims must match. Every query
// attends to every key.
func Attention(q, k, v *tensor.Tensor) (*tensor.Tensor, error) {
	if q == nil || k == nil || v == nil {
		return nil, errors.New("ops: attention requires non-nil q/k/v")
	}

	qs, ks, vs := q.Shape(), k.Shape(), v.Shape()

	r := len(qs)
	if r < 2 || len(ks) != r || len(vs) != r {
		return nil, fmt.Errorf("ops: attention requires equal rank >= 2 inputs, got %v %v %v", qs, ks, vs)
	}

	if !slices.Equal(qs[:r-2], ks[:r-2]) || !slices.Equal(qs[:r-2], vs[:r-2]) {
		return nil, fmt.Errorf("ops: attention batch dims differ: %v %v %v", qs, ks, vs)
	}

	tq, d := qs[r-2], qs[r-1]
	tk, dv := ks[r-2], vs[r-1]

	if ks[r-1] != d {
		return nil, fmt.Errorf("ops: attention q/k depth mismatch %d vs %d", d, ks[r-1])
	}

	if vs[r-2] != tk {
		return nil, fmt.Errorf("ops: attention key/value sequence mismatch %d vs %d", tk, vs[r-2])
	}

	if tk == 0 {
		return nil, errors.New("ops: attention over zero keys")
	}

	outShape := append(slices.Clone(qs[:r-1]), dv)

	out, err := tensor.Zeros(outShape)
	if err != nil {
		return nil, err
	}

	qd, kd, vd, od := q.RawData(), k.RawData(), v.RawData(), out.RawData()
	scale := float32(1 / math.Sqrt(float64(d)))

	heads := 1
	for _, n := range qs[:r-2] {
		heads *= int(n)
	}

	tensor.Parallel(heads, func(lo, hi int) {
		scores := make([]float32, tk)

		for h := int64(lo); h < int64(hi); h++ {
			keys := kd[h*tk*d : (h+1)*tk*d]
			vals := vd[h*tk*dv : (h+1)*tk*dv]

			for i := range tq {
				query := qd[(h*tq+i)*d : (h*tq+i+1)*d]
				for j := range tk {
					scores[j] = tensor.DotProduct(query, keys[j*d:(j+1)*d]) * scale
				}

				softmaxInPlace(scores)

				row := od[(h*tq+i)*dv : (h*tq+i+1)*dv]
				for j, p := range scores {
					for c, x := range vals[int64(j)*dv : int64(j+1)*dv] {
						row[c] += p * x
					}
				}
			}
		}
	})

	return out, nil
}

func softmaxInPlace(x []float32) {
	peak := slices.Max(x)

	var sum float64

	for i, v := range x {
		e := math.Exp(float64(v - peak))
		x[i] = float32(e)
		sum += e
	}

	inv := float32(1 / sum)
	for i := range x {
		x[i] *= inv
	}
}
