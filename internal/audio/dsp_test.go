package audio

import (
	"math"
	"testing"
)

func TestPeakNormalize(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		wantPeak float32
	}{
		{
			name:     "scales half-amplitude signal to 1.0",
			input:    []float32{0.0, 0.5, -0.25, 0.5},
			wantPeak: 1.0,
		},
		{
			name:     "scales quiet signal",
			input:    []float32{0.1, -0.1, 0.05},
			wantPeak: 1.0,
		},
		{
			name:     "already normalized signal unchanged",
			input:    []float32{0.0, 1.0, -0.5},
			wantPeak: 1.0,
		},
		{
			name:     "silence remains silence",
			input:    []float32{0.0, 0.0, 0.0},
			wantPeak: 0.0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Copy input to avoid mutation affecting test data.
			in := make([]float32, len(tt.input))
			copy(in, tt.input)

			got := PeakNormalize(in)
			peak := peakOf(got)

			if tt.wantPeak == 0.0 {
				if peak != 0.0 {
					t.Errorf("expected silence, got peak %f", peak)
				}

				return
			}

			if math.Abs(float64(peak-tt.wantPeak)) > 1e-6 {
				t.Errorf("peak = %f, want %f", peak, tt.wantPeak)
			}
		})
	}
}

func TestPeakNormalize_preservesRelativeAmplitudes(t *testing.T) {
	input := []float32{0.0, 0.25, 0.5}
	got := PeakNormalize(input)
	// After normalization: 0.5→1.0, 0.25→0.5, 0.0→0.0
	if math.Abs(float64(got[1]/got[2])-0.5) > 1e-6 {
		t.Errorf("relative amplitude not preserved: got[1]/got[2] = %f, want 0.5", got[1]/got[2])
	}
}

func TestDCBlock(t *testing.T) {
	const sr = 24000
	const n = sr // 1 second of audio

	t.Run("removes DC offset", func(t *testing.T) {
		// Create signal with DC offset of 0.5.
		input := make([]float32, n)
		for i := range input {
			input[i] = 0.5
		}

		got := DCBlock(input, sr)

		// After DC blocking, the mean should be near zero.
		mean := meanOf(got)
		if math.Abs(float64(mean)) > 0.01 {
			t.Errorf("mean after DC block = %f, want near 0", mean)
		}
	})

	t.Run("preserves AC content", func(t *testing.T) {
		// 1 kHz sine wave (well above DC block cutoff).
		input := make([]float32, n)
		for i := range input {
			input[i] = float32(math.Sin(2 * math.Pi * 1000 * float64(i) / float64(sr)))
		}

		inputRMS := rmsOf(input)

		got := DCBlock(input, sr)
		gotRMS := rmsOf(got)

		// RMS should be preserved within 1%.
		ratio := float64(gotRMS / inputRMS)
		if math.Abs(ratio-1.0) > 0.01 {
			t.Errorf("RMS ratio = %f, want ~1.0", ratio)
		}
	})
}

func TestFadeIn(t *testing.T) {
	const sr = 24000

	t.Run("first sample is zero", func(t *testing.T) {
		input := make([]float32, sr)
		for i := range input {
			input[i] = 1.0
		}

		got := FadeIn(input, sr, 10) // 10ms fade
		if got[0] != 0.0 {
			t.Errorf("first sample = %f, want 0.0", got[0])
		}
	})

	t.Run("sample after fade is unmodified", func(t *testing.T) {
		input := make([]float32, sr)
		for i := range input {
			input[i] = 1.0
		}

		got := FadeIn(input, sr, 10)

		fadeSamples := int(10.0 / 1000.0 * float64(sr)) // 240 samples
		if got[fadeSamples] != 1.0 {
			t.Errorf("sample at fade end = %f, want 1.0", got[fadeSamples])
		}
	})

	t.Run("ramp is monotonically increasing", func(t *testing.T) {
		input := make([]float32, sr)
		for i := range input {
			input[i] = 1.0
		}

		got := FadeIn(input, sr, 50) // 50ms

		fadeSamples := int(50.0 / 1000.0 * float64(sr))
		for i := 1; i < fadeSamples; i++ {
			if got[i] < got[i-1] {
				t.Fatalf("not monotonic at sample %d: %f < %f", i, got[i], got[i-1])
			}
		}
	})
}

func TestFadeOut(t *testing.T) {
	const sr = 24000

	t.Run("last sample is zero", func(t *testing.T) {
		input := make([]float32, sr)
		for i := range input {
			input[i] = 1.0
		}

		got := FadeOut(input, sr, 10)
		if got[len(got)-1] != 0.0 {
			t.Errorf("last sample = %f, want 0.0", got[len(got)-1])
		}
	})

	t.Run("sample before fade is unmodified", func(t *testing.T) {
		input := make([]float32, sr)
		for i := range input {
			input[i] = 1.0
		}

		got := FadeOut(input, sr, 10)
		fadeSamples := int(10.0 / 1000.0 * float64(sr))

		idx := len(got) - fadeSamples - 1
		if got[idx] != 1.0 {
			t.Errorf("sample before fade = %f, want 1.0", got[idx])
		}
	})

	t.Run("ramp is monotonically decreasing", func(t *testing.T) {
		input := make([]float32, sr)
		for i := range input {
			input[i] = 1.0
		}

		got := FadeOut(input, sr, 50)
		fadeSamples := int(50.0 / 1000.0 * float64(sr))

		start := len(got) - fadeSamples
		for i := start + 1; i < len(got); i++ {
			if got[i] > got[i-1] {
				t.Fatalf("not monotonic at sample %d: %f > %f", i, got[i], got[i-1])
			}
		}
	})
}

func TestFade_RaisedCosineShape(t *testing.T) {
	const (
		sr = 1000
		ms = 10.0
		n  = 10
	)

	ones := func() []float32 {
		s := make([]float32, 40)
		for i := range s {
			s[i] = 1
		}

		return s
	}

	in := FadeIn(ones(), sr, ms)
	out := FadeOut(ones(), sr, ms)

	for i := range n {
		want := 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(2*n-1))
		if math.Abs(float64(in[i])-want) > 1e-6 {
			t.Fatalf("FadeIn[%d] = %f; want %f", i, in[i], want)
		}

		wantOut := 0.5 - 0.5*math.Cos(2*math.Pi*float64(n+i)/float64(2*n-1))
		if got := out[len(out)-n+i]; math.Abs(float64(got)-wantOut) > 1e-6 {
			t.Fatalf("FadeOut[%d] = %f; want %f", i, got, wantOut)
		}
	}
}

func TestDCBlock_Edges(t *testing.T) {
	tests := []struct {
		name  string
		input []float32
		rate  int
		want  []float32
	}{
		{name: "empty", input: []float32{}, rate: 24000, want: []float32{}},
		{name: "zero rate untouched", input: []float32{0.5, 0.5}, rate: 0, want: []float32{0.5, 0.5}},
		{name: "rate below cutoff only centers", input: []float32{1, 3}, rate: 30, want: []float32{-1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DCBlock(tt.input, tt.rate)
			if len(got) != len(tt.want) {
				t.Fatalf("len = %d; want %d", len(got), len(tt.want))
			}

			for i := range got {
				if math.Abs(float64(got[i]-tt.want[i])) > 1e-6 {
					t.Fatalf("DCBlock = %v; want %v", got, tt.want)
				}
			}
		})
	}
}

func TestPeakNormalizeTo_InPlace(t *testing.T) {
	buf := []float32{0.25, -0.5}

	got := PeakNormalizeTo(buf, 1)
	if &got[0] != &buf[0] {
		t.Fatal("PeakNormalizeTo returned a new buffer")
	}

	if buf[0] != 0.5 || buf[1] != -1 {
		t.Fatalf("buf = %v; want [0.5 -1]", buf)
	}
}

func TestPeakNormalizeTo_Headroom(t *testing.T) {
	got := PeakNormalizeTo([]float32{0.2, -0.4, 0.1}, 0.9)
	if math.Abs(float64(peakOf(got))-0.9) > 1e-6 {
		t.Fatalf("peak = %f, want 0.9", peakOf(got))
	}

	if got[1] >= 0 {
		t.Fatalf("sign flipped: %v", got)
	}
}

func TestFade_LongerThanBuffer(t *testing.T) {
	in := []float32{1, 1, 1}

	got := FadeOut(FadeIn(in, 24000, 1000), 24000, 1000)
	if len(got) != 3 || got[0] != 0 || got[2] != 0 {
		t.Fatalf("fades over short buffer = %v", got)
	}
}

func TestSilence(t *testing.T) {
	if got := len(Silence(24000, 80)); got != 1920 {
		t.Fatalf("len(Silence(24000, 80)) = %d; want 1920", got)
	}

	if got := Silence(24000, 0); got != nil {
		t.Fatalf("Silence(24000, 0) = %v; want nil", got)
	}
}

// --- ApplyHooks ---

func TestApplyHooks_NoHooks(t *testing.T) {
	samples := []float32{0.1, 0.2, 0.3}

	got := ApplyHooks(samples)
	for i, v := range samples {
		if got[i] != v {
			t.Errorf("ApplyHooks()[%d] = %v; want %v", i, got[i], v)
		}
	}
}

func TestApplyHooks_AppliedInOrder(t *testing.T) {
	double := func(s []float32) []float32 {
		for i := range s {
			s[i] *= 2
		}

		return s
	}
	offset := func(s []float32) []float32 {
		for i := range s {
			s[i] += 1
		}

		return s
	}

	got := ApplyHooks([]float32{1, 2}, double, offset)
	if got[0] != 3 || got[1] != 5 {
		t.Fatalf("ApplyHooks(double, offset) = %v; want [3 5]", got)
	}
}

// Test helpers

func peakOf(s []float32) float32 {
	var peak float32
	for _, v := range s {
		if a := float32(math.Abs(float64(v))); a > peak {
			peak = a
		}
	}

	return peak
}

func meanOf(s []float32) float32 {
	var sum float64
	for _, v := range s {
		sum += float64(v)
	}

	return float32(sum / float64(len(s)))
}

func rmsOf(s []float32) float32 {
	var sum float64
	for _, v := range s {
		sum += float64(v) * float64(v)
	}

	return float32(math.Sqrt(sum / float64(len(s))))
}
