package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

// TransposedKernel is a ConvTranspose1D weight [in, out, k] repacked as
// [k, out, in], so the input taps feeding one output channel at one kernel
// offset are contiguous.
type TransposedKernel struct {
	in, out, size int64
	packed        []float32
}

// PackTransposed repacks a [in, out, k] ConvTranspose1D weight.
func PackTransposed(kernel *tensor.Tensor) (*TransposedKernel, error) {
	if kernel == nil {
		return nil, errors.New("ops: convtranspose1d kernel is nil")
	}

	s := kernel.Shape()
	if len(s) != 3 {
		return nil, fmt.Errorf("ops: convtranspose1d kernel must be rank 3, got %v", s)
	}

	k := &TransposedKernel{in: s[0], out: s[1], size: s[2]}
	k.packed = make([]float32, k.in*k.out*k.size)
	w := kernel.RawData()

	for ic := range k.in {
		for oc := range k.out {
			for kx := range k.size {
				k.packed[(kx*k.out+oc)*k.in+ic] = w[(ic*k.out+oc)*k.size+kx]
			}
		}
	}

	return k, nil
}

// OutChannels is the channel count ConvTranspose1D produces.
func (k *TransposedKernel) OutChannels() int64 { return k.out }

// ConvTranspose1D upsamples input [batch, in, length] to
// [batch, out, (length-1)*stride - 2*padding + k] and adds the optional bias
// [out]. Output channels are split across tensor.Workers.
func ConvTranspose1D(input *tensor.Tensor, kernel *TransposedKernel, bias *tensor.Tensor, stride, padding int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: convtranspose1d requires non-nil input/kernel")
	}

	if stride <= 0 || padding < 0 {
		return nil, fmt.Errorf("ops: convtranspose1d stride %d, padding %d out of range", stride, padding)
	}

	is := input.Shape()
	if len(is) != 3 {
		return nil, fmt.Errorf("ops: convtranspose1d expects rank 3 input, got %v", is)
	}

	batch, inCh, length := is[0], is[1], is[2]
	if inCh != kernel.in {
		return nil, fmt.Errorf("ops: convtranspose1d kernel in_channels mismatch %d vs %d", kernel.in, inCh)
	}

	biasData, err := checkBias(bias, kernel.out)
	if err != nil {
		return nil, fmt.Errorf("ops: convtranspose1d: %w", err)
	}

	outLen := (length-1)*stride - 2*padding + kernel.size
	if outLen <= 0 {
		return nil, fmt.Errorf("ops: convtranspose1d produced non-positive output length %d", outLen)
	}

	out, err := tensor.Zeros([]int64{batch, kernel.out, outLen})
	if err != nil {
		return nil, err
	}

	// frames holds the input time-major: [length, in].
	frames := scratch(int(length * inCh))
	defer release(frames)

	src, dst := input.RawData(), out.RawData()

	for b := range batch {
		ft := *frames
		for ic := range inCh {
			for ix, v := range src[(b*inCh+ic)*length : (b*inCh+ic+1)*length] {
				ft[int64(ix)*inCh+ic] = v
			}
		}

		plane := dst[b*kernel.out*outLen : (b+1)*kernel.out*outLen]

		tensor.Parallel(int(kernel.out), func(lo, hi int) {
			for oc := int64(lo); oc < int64(hi); oc++ {
				orow := plane[oc*outLen : (oc+1)*outLen]

				for kx := range kernel.size {
					taps := kernel.packed[(kx*kernel.out+oc)*inCh : (kx*kernel.out+oc+1)*inCh]
					for ix := range length {
						if pos := ix*stride - padding + kx; pos >= 0 && pos < outLen {
							orow[pos] += tensor.DotProduct(taps, ft[ix*inCh:(ix+1)*inCh])
						}
					}
				}

				if biasData != nil {
					for i := range orow {
						orow[i] += biasData[oc]
					}
				}
			}
		})
	}

	return out, nil
}
