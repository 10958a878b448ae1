package ops

import (
	"math"
	"testing"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
)

func mustTensor(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	x, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New(%v): %v", shape, err)
	}

	return x
}

func assertClose(t *testing.T, got, want []float32, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("length mismatch: got %d want %d (%v vs %v)", len(got), len(want), got, want)
	}

	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("index %d: got %v want %v (full %v)", i, got[i], want[i], got)
		}
	}
}

// pseudoRandom fills n values from a fixed LCG so tests stay deterministic.
func pseudoRandom(n int, seed uint32) []float32 {
	out := make([]float32, n)
	state := seed

	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = float32(state>>8)/float32(1<<24)*2 - 1
	}

	return out
}

// ---------------------------------------------------------------------------
// Conv1D
// ---------------------------------------------------------------------------

func TestConv1D_SamePaddingWithBias(t *testing.T) {
	in := mustTensor(t, []float32{1, 2, 3, 4}, []int64{1, 1, 4})
	k := mustTensor(t, []float32{1, 0, -1}, []int64{1, 1, 3})
	b := mustTensor(t, []float32{0.5}, []int64{1})

	out, err := Conv1D(in, k, b, 1, 1, 1)
	if err != nil {
		t.Fatalf("Conv1D: %v", err)
	}

	if got := out.Shape(); got[2] != 4 {
		t.Fatalf("output shape = %v, want length 4", got)
	}

	assertClose(t, out.RawData(), []float32{-1.5, -1.5, -1.5, 3.5}, 1e-6)
}

// conv1DReference is the direct sum over channels and taps.
func conv1DReference(in, k []float32, batch, inCh, length, outCh, size, stride, padding, dilation int64) []float32 {
	outLen := (length+2*padding-dilation*(size-1)-1)/stride + 1
	out := make([]float32, batch*outCh*outLen)

	for b := range batch {
		for oc := range outCh {
			for ox := range outLen {
				var sum float32

				for ic := range inCh {
					for kx := range size {
						pos := ox*stride - padding + kx*dilation
						if pos >= 0 && pos < length {
							sum += in[(b*inCh+ic)*length+pos] * k[(oc*inCh+ic)*size+kx]
						}
					}
				}

				out[(b*outCh+oc)*outLen+ox] = sum
			}
		}
	}

	return out
}

func TestConv1D_MatchesDirectSum(t *testing.T) {
	tests := []struct {
		name                      string
		batch, inCh, length       int64
		outCh, size               int64
		stride, padding, dilation int64
	}{
		{"dilated same", 2, 3, 17, 4, 3, 1, 3, 3},
		{"strided", 1, 2, 20, 3, 5, 2, 2, 1},
		{"no padding", 3, 1, 8, 2, 4, 1, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inData := pseudoRandom(int(tt.batch*tt.inCh*tt.length), 11)
			kData := pseudoRandom(int(tt.outCh*tt.inCh*tt.size), 12)

			out, err := Conv1D(
				mustTensor(t, inData, []int64{tt.batch, tt.inCh, tt.length}),
				mustTensor(t, kData, []int64{tt.outCh, tt.inCh, tt.size}),
				nil, tt.stride, tt.padding, tt.dilation)
			if err != nil {
				t.Fatalf("Conv1D: %v", err)
			}

			want := conv1DReference(inData, kData, tt.batch, tt.inCh, tt.length, tt.outCh, tt.size, tt.stride, tt.padding, tt.dilation)
			assertClose(t, out.RawData(), want, 1e-5)
		})
	}
}

func TestConv1D_WorkersDeterministic(t *testing.T) {
	in := mustTensor(t, pseudoRandom(2*6*32, 1), []int64{2, 6, 32})
	k := mustTensor(t, pseudoRandom(8*6*5, 2), []int64{8, 6, 5})
	b := mustTensor(t, pseudoRandom(8, 3), []int64{8})

	defer tensor.SetWorkers(1)

	tensor.SetWorkers(1)

	seq, err := Conv1D(in, k, b, 1, 4, 2)
	if err != nil {
		t.Fatalf("Conv1D sequential: %v", err)
	}

	tensor.SetWorkers(4)

	par, err := Conv1D(in, k, b, 1, 4, 2)
	if err != nil {
		t.Fatalf("Conv1D parallel: %v", err)
	}

	assertClose(t, par.RawData(), seq.RawData(), 0)
}

func TestConv1D_RejectsBadInput(t *testing.T) {
	in := mustTensor(t, []float32{1, 2, 3}, []int64{1, 1, 3})

	tests := []struct {
		name    string
		kernel  *tensor.Tensor
		bias    *tensor.Tensor
		stride  int64
		padding int64
	}{
		{name: "channel mismatch", kernel: mustTensor(t, []float32{1, 1}, []int64{1, 2, 1}), stride: 1},
		{name: "kernel longer than input", kernel: mustTensor(t, []float32{1, 1, 1, 1, 1}, []int64{1, 1, 5}), stride: 1},
		{name: "zero stride", kernel: mustTensor(t, []float32{1}, []int64{1, 1, 1}), stride: 0},
		{name: "negative padding", kernel: mustTensor(t, []float32{1}, []int64{1, 1, 1}), stride: 1, padding: -1},
		{name: "bias width", kernel: mustTensor(t, []float32{1}, []int64{1, 1, 1}), bias: mustTensor(t, []float32{1, 2}, []int64{2}), stride: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Conv1D(in, tc.kernel, tc.bias, tc.stride, tc.padding, 1); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestSamePadding(t *testing.T) {
	tests := []struct {
		k, d, want int64
		wantErr    bool
	}{
		{k: 3, d: 1, want: 1},
		{k: 7, d: 3, want: 9},
		{k: 1, d: 5, want: 0},
		{k: 4, d: 1, wantErr: true},
		{k: 3, d: 0, wantErr: true},
	}

	for _, tc := range tests {
		got, err := SamePadding(tc.k, tc.d)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("SamePadding(%d,%d): expected error", tc.k, tc.d)
			}

			continue
		}

		if err != nil {
			t.Fatalf("SamePadding(%d,%d): %v", tc.k, tc.d, err)
		}

		if got != tc.want {
			t.Fatalf("SamePadding(%d,%d) = %d, want %d", tc.k, tc.d, got, tc.want)
		}
	}
}

// ---------------------------------------------------------------------------
// ConvTranspose1D
// ---------------------------------------------------------------------------

func mustPack(t *testing.T, k *tensor.Tensor) *TransposedKernel {
	t.Helper()

	p, err := PackTransposed(k)
	if err != nil {
		t.Fatalf("PackTransposed: %v", err)
	}

	return p
}

func TestConvTranspose1D_UpsamplesExactly(t *testing.T) {
	in := mustTensor(t, []float32{1, 2, 3}, []int64{1, 1, 3})
	k := mustPack(t, mustTensor(t, []float32{1, 1, 1, 1}, []int64{1, 1, 4}))

	out, err := ConvTranspose1D(in, k, nil, 2, 1)
	if err != nil {
		t.Fatalf("ConvTranspose1D: %v", err)
	}

	if got := out.Shape(); got[2] != 6 {
		t.Fatalf("output shape = %v, want length 6", got)
	}

	assertClose(t, out.RawData(), []float32{1, 3, 3, 5, 5, 3}, 1e-6)
}

func TestConvTranspose1D_MatchesScatter(t *testing.T) {
	const (
		batch, inCh, length = 2, 4, 10
		outCh, size         = 3, 7
		stride, padding     = 3, 2
	)

	inData := pseudoRandom(batch*inCh*length, 7)
	kData := pseudoRandom(inCh*outCh*size, 8)
	bData := pseudoRandom(outCh, 9)

	out, err := ConvTranspose1D(
		mustTensor(t, inData, []int64{batch, inCh, length}),
		mustPack(t, mustTensor(t, kData, []int64{inCh, outCh, size})),
		mustTensor(t, bData, []int64{outCh}), stride, padding)
	if err != nil {
		t.Fatalf("ConvTranspose1D: %v", err)
	}

	outLen := (length-1)*stride - 2*padding + size
	if got := out.Shape(); got[2] != int64(outLen) || outLen != 30 {
		t.Fatalf("output shape = %v, want length 30", got)
	}

	want := make([]float32, batch*outCh*outLen)
	for b := range batch {
		for oc := range outCh {
			for i := range outLen {
				want[(b*outCh+oc)*outLen+i] = bData[oc]
			}
		}

		for ic := range inCh {
			for ix := range length {
				for oc := range outCh {
					for kx := range size {
						pos := ix*stride - padding + kx
						if pos >= 0 && pos < outLen {
							want[(b*outCh+oc)*outLen+pos] += inData[(b*inCh+ic)*length+ix] * kData[(ic*outCh+oc)*size+kx]
						}
					}
				}
			}
		}
	}

	assertClose(t, out.RawData(), want, 1e-5)
}

func TestConvTranspose1D_RejectsBadInput(t *testing.T) {
	in := mustTensor(t, []float32{1, 2}, []int64{1, 2, 1})
	k := mustPack(t, mustTensor(t, []float32{1, 1}, []int64{1, 1, 2}))

	if _, err := ConvTranspose1D(in, k, nil, 2, 0); err == nil {
		t.Fatal("expected channel mismatch error")
	}

	one := mustTensor(t, []float32{1}, []int64{1, 1, 1})
	if _, err := ConvTranspose1D(one, k, nil, 0, 0); err == nil {
		t.Fatal("expected error for zero stride")
	}

	if _, err := PackTransposed(mustTensor(t, []float32{1, 1}, []int64{2})); err == nil {
		t.Fatal("expected rank error from PackTransposed")
	}
}

// ---------------------------------------------------------------------------
// Attention / RoPE
// ---------------------------------------------------------------------------

func TestAttention_UniformQueryAveragesValues(t *testing.T) {
	q := mustTensor(t, []float32{0, 0, 0, 0}, []int64{1, 2, 2})
	k := mustTensor(t, pseudoRandom(6, 11), []int64{1, 3, 2})
	v := mustTensor(t, []float32{1, 2, 3, 4, 5, 6}, []int64{1, 3, 2})

	out, err := Attention(q, k, v)
	if err != nil {
		t.Fatalf("Attention: %v", err)
	}

	assertClose(t, out.RawData(), []float32{3, 4, 3, 4}, 1e-5)
}

func TestAttention_MatchesReference(t *testing.T) {
	const (
		heads, tq, tk, d, dv = 3, 4, 5, 6, 2
	)

	qd := pseudoRandom(heads*tq*d, 21)
	kd := pseudoRandom(heads*tk*d, 22)
	vd := pseudoRandom(heads*tk*dv, 23)

	out, err := Attention(
		mustTensor(t, qd, []int64{1, heads, tq, d}),
		mustTensor(t, kd, []int64{1, heads, tk, d}),
		mustTensor(t, vd, []int64{1, heads, tk, dv}))
	if err != nil {
		t.Fatalf("Attention: %v", err)
	}

	want := make([]float32, 0, heads*tq*dv)

	for h := range heads {
		for i := range tq {
			scores := make([]float64, tk)

			var sum float64

			for j := range tk {
				var dot float64
				for c := range d {
					dot += float64(qd[(h*tq+i)*d+c]) * float64(kd[(h*tk+j)*d+c])
				}

				scores[j] = math.Exp(dot / math.Sqrt(d))
				sum += scores[j]
			}

			for c := range dv {
				var acc float64
				for j := range tk {
					acc += scores[j] / sum * float64(vd[(h*tk+j)*dv+c])
				}

				want = append(want, float32(acc))
			}
		}
	}

	if got := out.Shape(); len(got) != 4 || got[3] != dv {
		t.Fatalf("shape = %v", got)
	}

	assertClose(t, out.RawData(), want, 1e-5)
}

func TestAttention_ShapeMismatch(t *testing.T) {
	q := mustTensor(t, []float32{0, 0}, []int64{1, 2})
	k := mustTensor(t, []float32{0, 0, 0}, []int64{1, 3})

	if _, err := Attention(q, k, k); err == nil {
		t.Fatal("expected depth mismatch error")
	}

	batched := mustTensor(t, make([]float32, 8), []int64{2, 2, 2})
	single := mustTensor(t, make([]float32, 4), []int64{1, 2, 2})

	if _, err := Attention(batched, single, single); err == nil {
		t.Fatal("expected batch mismatch error")
	}
}

func TestRotary_RotatesByPosition(t *testing.T) {
	r, err := NewRotary(2, 2, 10000)
	if err != nil {
		t.Fatalf("NewRotary: %v", err)
	}

	x := mustTensor(t, []float32{1, 0, 1, 0}, []int64{2, 2})

	out, err := r.Apply(x)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	assertClose(t, out.RawData(), []float32{1, 0, float32(math.Cos(1)), float32(math.Sin(1))}, 1e-6)

	long := mustTensor(t, make([]float32, 6), []int64{3, 2})
	if _, err := r.Apply(long); err == nil {
		t.Fatal("expected error when positions exceed the table")
	}
}

func TestRotary_PreservesPairNorm(t *testing.T) {
	r, err := NewRotary(8, 4, 10000)
	if err != nil {
		t.Fatalf("NewRotary: %v", err)
	}

	x := mustTensor(t, pseudoRandom(2*8*4, 5), []int64{2, 8, 4})

	out, err := r.Apply(x)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}

	in, got := x.RawData(), out.RawData()
	for i := 0; i < len(in); i += 2 {
		want := in[i]*in[i] + in[i+1]*in[i+1]
		if n := got[i]*got[i] + got[i+1]*got[i+1]; math.Abs(float64(n-want)) > 1e-5 {
			t.Fatalf("pair %d norm = %v; want %v", i/2, n, want)
		}
	}
}

func TestNewRotary_RejectsBadTables(t *testing.T) {
	tests := []struct {
		name        string
		maxSeq, dim int64
		base        float64
	}{
		{"odd dim", 4, 3, 10000},
		{"zero length", 0, 4, 10000},
		{"zero base", 4, 4, 0},
	}

	for _, tt := range tests {
		if _, err := NewRotary(tt.maxSeq, tt.dim, tt.base); err == nil {
			t.Fatalf("NewRotary %s: expected error", tt.name)
		}
	}
}

// ---------------------------------------------------------------------------
// Activations / MLP
// ---------------------------------------------------------------------------

func TestActivations(t *testing.T) {
	x := []float32{-1, 0, 2}

	leaky := append([]float32(nil), x...)
	LeakyReLU(0.2)(leaky)
	assertClose(t, leaky, []float32{-0.2, 0, 2}, 1e-7)

	sig := append([]float32(nil), x...)
	Sigmoid(sig)
	assertClose(t, sig, []float32{0.26894142, 0.5, 0.880797}, 1e-6)

	th := append([]float32(nil), x...)
	Tanh(th)
	assertClose(t, th, []float32{-0.7615942, 0, 0.9640276}, 1e-6)

	gelu := append([]float32(nil), x...)
	GELU(gelu)
	assertClose(t, gelu, []float32{-0.15865526, 0, 1.9544997}, 1e-6)
}

func TestSigmoid_ExtremeInputsStayFinite(t *testing.T) {
	x := []float32{-1000, 1000}
	Sigmoid(x)
	assertClose(t, x, []float32{0, 1}, 1e-7)
}

func TestApply_LeavesInputUntouched(t *testing.T) {
	x := mustTensor(t, []float32{-2, 2}, []int64{2})
	y := Apply(x, LeakyReLU(0.5))

	assertClose(t, x.RawData(), []float32{-2, 2}, 0)
	assertClose(t, y.RawData(), []float32{-1, 2}, 0)
}

func TestMLP(t *testing.T) {
	x := mustTensor(t, []float32{1, -1}, []int64{1, 2})
	w1 := mustTensor(t, []float32{1, 0, 0, 1}, []int64{2, 2})
	w2 := mustTensor(t, []float32{2, 3}, []int64{1, 2})
	b2 := mustTensor(t, []float32{1}, []int64{1})

	out, err := MLP(x, w1, nil, w2, b2, LeakyReLU(0))
	if err != nil {
		t.Fatalf("MLP: %v", err)
	}

	assertClose(t, out.RawData(), []float32{3}, 1e-6)

	if _, err := MLP(x, w1, nil, w2, b2, nil); err == nil {
		t.Fatal("expected error for nil activation")
	}
}
