package native

import (
	"slices"
	"testing"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
	"github.com/example/go-kokoro-tts/internal/safetensors"
	"github.com/example/go-kokoro-tts/internal/testutil"
)

func mustTensor(t *testing.T, data []float32, shape []int64) *tensor.Tensor {
	t.Helper()

	x, err := tensor.New(data, shape)
	if err != nil {
		t.Fatalf("tensor.New(%v): %v", shape, err)
	}

	return x
}

// ---------------------------------------------------------------------------
// Tensor helpers
// ---------------------------------------------------------------------------

func TestResidual(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4}, []int64{2, 2})
	d := mustTensor(t, []float32{0.5, 0.5, -1, -1}, []int64{2, 2})

	got, err := residual(x, d)
	if err != nil {
		t.Fatalf("residual: %v", err)
	}

	if want := []float32{1.5, 2.5, 2, 3}; !slices.Equal(got.RawData(), want) {
		t.Fatalf("residual = %v; want %v", got.RawData(), want)
	}

	if x.RawData()[0] != 1 {
		t.Fatal("residual modified its input")
	}

	if _, err := residual(x, mustTensor(t, []float32{1, 2, 3, 4}, []int64{4})); err == nil {
		t.Fatal("expected shape mismatch error")
	}
}

func TestSplitLast(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, []int64{2, 6})

	parts, err := splitLast(x, 3)
	if err != nil {
		t.Fatalf("splitLast: %v", err)
	}

	want := [][]float32{{1, 2, 7, 8}, {3, 4, 9, 10}, {5, 6, 11, 12}}
	for i, p := range parts {
		if !slices.Equal(p.Shape(), []int64{2, 2}) || !slices.Equal(p.RawData(), want[i]) {
			t.Fatalf("part %d = %v %v; want [2 2] %v", i, p.Shape(), p.RawData(), want[i])
		}
	}

	if _, err := splitLast(x, 4); err == nil {
		t.Fatal("expected error for uneven split")
	}
}

func TestAppendStyle(t *testing.T) {
	x := mustTensor(t, []float32{1, 2, 3, 4}, []int64{2, 2})

	got, err := appendStyle(x, []float32{9, 8})
	if err != nil {
		t.Fatalf("appendStyle: %v", err)
	}

	if want := []float32{1, 2, 9, 8, 3, 4, 9, 8}; !slices.Equal(got.RawData(), want) || !slices.Equal(got.Shape(), []int64{2, 4}) {
		t.Fatalf("appendStyle = %v %v; want [2 4] %v", got.Shape(), got.RawData(), want)
	}

	if _, err := appendStyle(mustTensor(t, []float32{1}, []int64{1}), nil); err == nil {
		t.Fatal("expected rank error")
	}
}

// ---------------------------------------------------------------------------
// VarBuilder
// ---------------------------------------------------------------------------

func TestVarBuilder_ResolvesNames(t *testing.T) {
	store, err := safetensors.OpenStoreFromBytes(testutil.TinyModelBytes(t, testutil.ModelOptions{}), safetensors.StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}

	vb := NewVarBuilder(store)

	if got := vb.Path("vocoder", " ", "ups").Index(1).resolve("weight"); got != "vocoder.ups.1.weight" {
		t.Fatalf("resolve = %q", got)
	}

	if n := vb.Path("vocoder", "ups").Count("weight"); n != 2 {
		t.Fatalf("Count(ups) = %d; want 2", n)
	}

	if _, err := vb.Path("encoder", "cnn", "0", "conv").Tensor("bias", testutil.TinyHidden+1); err == nil {
		t.Fatal("expected shape mismatch error")
	}

	b, ok, err := vb.Path("encoder").TensorMaybe("missing.bias")
	if b != nil || ok || err != nil {
		t.Fatalf("TensorMaybe(missing) = %v, %v, %v", b, ok, err)
	}

	if shape, ok := vb.Path("vocoder.conv_pre").Shape("weight"); !ok || len(shape) != 3 {
		t.Fatalf("Shape(conv_pre.weight) = %v, %v", shape, ok)
	}
}
