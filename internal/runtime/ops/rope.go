package ops

import (
	"errors"
	"fmt"
	"math"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

// Rotary holds the angle tables of a rotary position embedding for up to
// maxSeq positions and an even head dimension.
type Rotary struct {
	maxSeq, half int64
	cos, sin     []float32 // [maxSeq, half]
}

// NewRotary precomputes the rotation for pair j at position t as
// t * base^(-2j/dim).
func NewRotary(maxSeq, dim int64, base float64) (*Rotary, error) {
	switch {
	case maxSeq <= 0:
		return nil, fmt.Errorf("ops: rope table length must be > 0, got %d", maxSeq)
	case dim <= 0 || dim%2 != 0:
		return nil, fmt.Errorf("ops: rope dimension must be even and > 0, got %d", dim)
	case base <= 0:
		return nil, fmt.Errorf("ops: rope base must be > 0, got %g", base)
	}

	r := &Rotary{maxSeq: maxSeq, half: dim / 2}
	r.cos = make([]float32, maxSeq*r.half)
	r.sin = make([]float32, maxSeq*r.half)

	for j := range r.half {
		freq := math.Pow(base, -2*float64(j)/float64(dim))
		for t := range maxSeq {
			s, c := math.Sincos(float64(t) * freq)
			r.cos[t*r.half+j] = float32(c)
			r.sin[t*r.half+j] = float32(s)
		}
	}

	return r, nil
}

// MaxSeq is the longest sequence Apply accepts.
func (r *Rotary) MaxSeq() int64 { return r.maxSeq }

// Apply rotates adjacent pairs (x[2j], x[2j+1]) of the last dim of
// x [..., seq, dim] by the angle of their sequence position, starting at 0.
func (r *Rotary) Apply(x *tensor.Tensor) (*tensor.Tensor, error) {
	if x == nil {
		return nil, errors.New("ops: rope input is nil")
	}

	s := x.Shape()
	if len(s) < 2 {
		return nil, fmt.Errorf("ops: rope requires rank >= 2 input, got %d", len(s))
	}

	seq, dim := s[len(s)-2], s[len(s)-1]
	if dim != 2*r.half {
		return nil, fmt.Errorf("ops: rope last dimension %d, tables built for %d", dim, 2*r.half)
	}

	if seq > r.maxSeq {
		return nil, fmt.Errorf("ops: rope sequence %d exceeds table length %d", seq, r.maxSeq)
	}

	out := x.Clone()
	d := out.RawData()

	for base := 0; base < len(d); base += int(seq * dim) {
		for t := range seq {
			row := d[base+int(t*dim) : base+int((t+1)*dim)]
			cos := r.cos[t*r.half : (t+1)*r.half]
			sin := r.sin[t*r.half : (t+1)*r.half]

			for j := range cos {
				a, b := row[2*j], row[2*j+1]
				row[2*j] = a*cos[j] - b*sin[j]
				row[2*j+1] = a*sin[j] + b*cos[j]
			}
		}
	}

	return out, nil
}
