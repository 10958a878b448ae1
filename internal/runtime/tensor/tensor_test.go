package tensor

import (
	"math"
	"testing"
)

func equalI64(a, b []int64) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}

func assertData(t *testing.T, got, want []float32, tol float64) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("len = %d; want %d (got %v)", len(got), len(want), got)
	}

	for i := range got {
		if math.Abs(float64(got[i]-want[i])) > tol {
			t.Fatalf("data[%d] = %v; want %v (got %v)", i, got[i], want[i], got)
		}
	}
}

func mustNew(t *testing.T, data []float32, shape []int64) *Tensor {
	t.Helper()

	x, err := New(data, shape)
	if err != nil {
		t.Fatalf("New(%v): %v", shape, err)
	}

	return x
}

func TestNew_ValidatesAndCopies(t *testing.T) {
	src := []float32{1, 2, 3, 4}

	x := mustNew(t, src, []int64{2, 2})
	src[0] = 99

	if x.RawData()[0] != 1 {
		t.Fatal("New must copy its input")
	}

	if _, err := New([]float32{1, 2, 3}, []int64{2, 2}); err == nil {
		t.Fatal("expected length mismatch error")
	}

	if _, err := New(nil, []int64{-1}); err == nil {
		t.Fatal("expected negative dimension error")
	}
}

func TestReshape(t *testing.T) {
	x := mustNew(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	y, err := x.Reshape([]int64{3, 2})
	if err != nil {
		t.Fatalf("Reshape: %v", err)
	}

	if !equalI64(y.Shape(), []int64{3, 2}) || y.Rank() != 2 || len(y.RawData()) != 6 {
		t.Fatalf("reshape shape = %v", y.Shape())
	}

	if _, err := x.Reshape([]int64{4}); err == nil {
		t.Fatal("expected element count mismatch")
	}
}

func TestShapeOps(t *testing.T) {
	// [2,3]: rows {1,2,3} {4,5,6}
	x := mustNew(t, []float32{1, 2, 3, 4, 5, 6}, []int64{2, 3})

	t.Run("narrow", func(t *testing.T) {
		got, err := x.Narrow(1, 1, 2)
		if err != nil {
			t.Fatalf("Narrow: %v", err)
		}

		assertData(t, got.RawData(), []float32{2, 3, 5, 6}, 0)

		if _, err := x.Narrow(1, 2, 2); err == nil {
			t.Fatal("expected out-of-range error")
		}
	})

	t.Run("gather", func(t *testing.T) {
		got, err := x.Gather(0, []int64{1, 1, 0})
		if err != nil {
			t.Fatalf("Gather: %v", err)
		}

		if !equalI64(got.Shape(), []int64{3, 3}) {
			t.Fatalf("gather shape = %v", got.Shape())
		}

		assertData(t, got.RawData(), []float32{4, 5, 6, 4, 5, 6, 1, 2, 3}, 0)

		if _, err := x.Gather(0, []int64{2}); err == nil {
			t.Fatal("expected index out of range error")
		}
	})

	t.Run("transpose", func(t *testing.T) {
		got, err := x.Transpose(0, 1)
		if err != nil {
			t.Fatalf("Transpose: %v", err)
		}

		assertData(t, got.RawData(), []float32{1, 4, 2, 5, 3, 6}, 0)
	})

	t.Run("concat", func(t *testing.T) {
		y := mustNew(t, []float32{7, 8}, []int64{2, 1})

		got, err := Concat([]*Tensor{x, y}, -1)
		if err != nil {
			t.Fatalf("Concat: %v", err)
		}

		assertData(t, got.RawData(), []float32{1, 2, 3, 7, 4, 5, 6, 8}, 0)

		if _, err := Concat([]*Tensor{x, mustNew(t, []float32{1, 2, 3}, []int64{3, 1})}, 1); err == nil {
			t.Fatal("expected shape mismatch error")
		}
	})

	t.Run("repeat interleave", func(t *testing.T) {
		got, err := x.RepeatInterleave(0, []int64{2, 1})
		if err != nil {
			t.Fatalf("RepeatInterleave: %v", err)
		}

		if !equalI64(got.Shape(), []int64{3, 3}) {
			t.Fatalf("shape = %v", got.Shape())
		}

		assertData(t, got.RawData(), []float32{1, 2, 3, 1, 2, 3, 4, 5, 6}, 0)

		cols, err := x.RepeatInterleave(1, []int64{0, 3, 1})
		if err != nil {
			t.Fatalf("RepeatInterleave dim 1: %v", err)
		}

		assertData(t, cols.RawData(), []float32{2, 2, 2, 3, 5, 5, 5, 6}, 0)

		if _, err := x.RepeatInterleave(0, []int64{1}); err == nil {
			t.Fatal("expected count length error")
		}

		if _, err := x.RepeatInterleave(0, []int64{1, -1}); err == nil {
			t.Fatal("expected negative count error")
		}
	})
}


func TestTranspose_HigherRank(t *testing.T) {
	shape := []int64{2, 3, 4, 5}
	data := make([]float32, 2*3*4*5)

	for i := range data {
		data[i] = float32(i)
	}

	x := mustNew(t, data, shape)
	at := func(c [4]int64) float32 {
		return data[((c[0]*3+c[1])*4+c[2])*5+c[3]]
	}

	tests := []struct {
		d1, d2 int
	}{
		{1, 2},
		{1, 3},
		{-1, 0},
		{2, 2},
	}

	for _, tt := range tests {
		got, err := x.Transpose(tt.d1, tt.d2)
		if err != nil {
			t.Fatalf("Transpose(%d, %d): %v", tt.d1, tt.d2, err)
		}

		a, b := (tt.d1+4)%4, (tt.d2+4)%4
		gs := got.Shape()

		if gs[a] != shape[b] || gs[b] != shape[a] {
			t.Fatalf("Transpose(%d, %d) shape = %v", tt.d1, tt.d2, gs)
		}

		i := 0

		for c0 := range gs[0] {
			for c1 := range gs[1] {
				for c2 := range gs[2] {
					for c3 := range gs[3] {
						src := [4]int64{c0, c1, c2, c3}
						src[a], src[b] = src[b], src[a]

						if got.RawData()[i] != at(src) {
							t.Fatalf("Transpose(%d, %d)[%d] = %v; want %v", tt.d1, tt.d2, i, got.RawData()[i], at(src))
						}

						i++
					}
				}
			}
		}
	}
}

func TestShapeOps_MiddleDim(t *testing.T) {
	// [2,3,2]
	x := mustNew(t, []float32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}, []int64{2, 3, 2})

	narrow, err := x.Narrow(1, 1, 2)
	if err != nil {
		t.Fatalf("Narrow: %v", err)
	}

	assertData(t, narrow.RawData(), []float32{3, 4, 5, 6, 9, 10, 11, 12}, 0)

	gather, err := x.Gather(1, []int64{2, 0})
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}

	assertData(t, gather.RawData(), []float32{5, 6, 1, 2, 11, 12, 7, 8}, 0)

	empty, err := x.Narrow(1, 3, 0)
	if err != nil || !equalI64(empty.Shape(), []int64{2, 0, 2}) || len(empty.RawData()) != 0 {
		t.Fatalf("Narrow to zero length = %v, %v", empty, err)
	}
}

func TestNew_RejectsOverflowingShape(t *testing.T) {
	if _, err := Zeros([]int64{1 << 40, 1 << 40}); err == nil {
		t.Fatal("Zeros with an overflowing shape succeeded")
	}

	if _, err := Zeros([]int64{0, 1 << 62}); err != nil {
		t.Fatalf("Zeros with a zero dim: %v", err)
	}
}
