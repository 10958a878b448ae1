package ops

import (
	"errors"
	"fmt"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

// Conv1D convolves input [batch, in, length] with kernel [out, in, k] and
// adds the optional bias [out]. Positions outside the input read as zero.
// Output channels are split across tensor.Workers; the result does not
// depend on the worker count.
func Conv1D(input, kernel, bias *tensor.Tensor, stride, padding, dilation int64) (*tensor.Tensor, error) {
	if input == nil || kernel == nil {
		return nil, errors.New("ops: conv1d requires non-nil input/kernel")
	}

	if stride <= 0 || dilation <= 0 || padding < 0 {
		return nil, fmt.Errorf("ops: conv1d stride %d, padding %d, dilation %d out of range", stride, padding, dilation)
	}

	is, ks := input.Shape(), kernel.Shape()
	if len(is) != 3 || len(ks) != 3 {
		return nil, fmt.Errorf("ops: conv1d expects input/kernel rank 3, got %v and %v", is, ks)
	}

	batch, inCh, length := is[0], is[1], is[2]
	outCh, size := ks[0], ks[2]

	if ks[1] != inCh {
		return nil, fmt.Errorf("ops: conv1d kernel has %d input channels, input has %d", ks[1], inCh)
	}

	biasData, err := checkBias(bias, outCh)
	if err != nil {
		return nil, fmt.Errorf("ops: conv1d: %w", err)
	}

	outLen := (length+2*padding-dilation*(size-1)-1)/stride + 1
	if outLen <= 0 {
		return nil, fmt.Errorf("ops: conv1d produced non-positive output length %d", outLen)
	}

	out, err := tensor.Zeros([]int64{batch, outCh, outLen})
	if err != nil {
		return nil, err
	}

	// cols holds one [inCh*size] input patch per output position.
	patch := int(inCh * size)
	cols := scratch(int(outLen) * patch)
	defer release(cols)

	src, w, dst := input.RawData(), kernel.RawData(), out.RawData()

	for b := range batch {
		im := *cols
		if b > 0 {
			clear(im)
		}

		for ic := range inCh {
			row := src[(b*inCh+ic)*length : (b*inCh+ic+1)*length]
			for kx := range size {
				col := int(ic*size + kx)
				for ox := range outLen {
					if pos := ox*stride - padding + kx*dilation; pos >= 0 && pos < length {
						im[int(ox)*patch+col] = row[pos]
					}
				}
			}
		}

		plane := dst[b*outCh*outLen : (b+1)*outCh*outLen]

		tensor.Parallel(int(outCh), func(lo, hi int) {
			for oc := lo; oc < hi; oc++ {
				taps := w[oc*patch : (oc+1)*patch]
				orow := plane[int64(oc)*outLen : int64(oc+1)*outLen]

				for ox := range orow {
					orow[ox] = tensor.DotProduct(taps, im[ox*patch:(ox+1)*patch])
					if biasData != nil {
						orow[ox] += biasData[oc]
					}
				}
			}
		})
	}

	return out, nil
}

// SamePadding returns the symmetric padding that keeps the output length of a
// stride-1 convolution equal to its input length. kernelSize must be odd.
func SamePadding(kernelSize, dilation int64) (int64, error) {
	if kernelSize <= 0 || kernelSize%2 == 0 {
		return 0, fmt.Errorf("ops: same padding needs an odd kernel size, got %d", kernelSize)
	}

	if dilation <= 0 {
		return 0, fmt.Errorf("ops: dilation must be > 0, got %d", dilation)
	}

	return dilation * (kernelSize - 1) / 2, nil
}

func checkBias(bias *tensor.Tensor, channels int64) ([]float32, error) {
	if bias == nil {
		return nil, nil
	}

	if s := bias.Shape(); len(s) != 1 || s[0] != channels {
		return nil, fmt.Errorf("bias shape %v does not match %d output channels", s, channels)
	}

	return bias.RawData(), nil
}
