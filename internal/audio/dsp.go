package audio

import (
	"math"

	"github.com/cwbudde/algo-dsp/dsp/filter/biquad"
	"github.com/cwbudde/algo-dsp/dsp/filter/design"
	"github.com/cwbudde/algo-dsp/dsp/signal"
	"github.com/cwbudde/algo-dsp/dsp/window"
)

// Hook transforms a buffer, possibly in place.
type Hook func(samples []float32) []float32

// ApplyHooks runs hooks in order.
func ApplyHooks(samples []float32, hooks ...Hook) []float32 {
	out := samples
	for _, hook := range hooks {
		out = hook(out)
	}

	return out
}

// PeakNormalize scales samples in place so the peak amplitude reaches 1.0.
func PeakNormalize(samples []float32) []float32 {
	return PeakNormalizeTo(samples, 1.0)
}

// PeakNormalizeTo scales samples in place so the peak amplitude equals
// target. Silence is left untouched.
func PeakNormalizeTo(samples []float32, target float32) []float32 {
	if len(samples) == 0 || target < 0 {
		return samples
	}

	scaled, err := signal.Normalize(toFloat64(samples), float64(target))
	if err != nil {
		return samples
	}

	fromFloat64(samples, scaled)

	return samples
}

// DCBlockCutoffHz is the corner of the DC blocking high-pass.
const DCBlockCutoffHz = 20.0

// DCBlock removes DC offset in place: the buffer mean is subtracted, then a
// second-order Butterworth high-pass at DCBlockCutoffHz removes residual
// drift.
func DCBlock(samples []float32, sampleRate int) []float32 {
	if sampleRate <= 0 || len(samples) == 0 {
		return samples
	}

	centered, err := signal.RemoveDC(toFloat64(samples))
	if err != nil {
		return samples
	}

	if float64(sampleRate) > 2*DCBlockCutoffHz {
		hp := biquad.NewSection(design.Highpass(DCBlockCutoffHz, 1/math.Sqrt2, float64(sampleRate)))
		hp.ProcessBlock(centered)
	}

	fromFloat64(samples, centered)

	return samples
}

// FadeIn applies the rising half of a Hann window over the first ms
// milliseconds in place. The first sample is zero.
func FadeIn(samples []float32, sampleRate int, ms float64) []float32 {
	n := min(fadeLen(sampleRate, ms), len(samples))
	if n == 0 {
		return samples
	}

	w := window.Generate(window.TypeHann, 2*n)
	for i := range n {
		samples[i] *= float32(w[i])
	}

	return samples
}

// FadeOut applies the falling half of a Hann window over the last ms
// milliseconds in place. The final sample is zero.
func FadeOut(samples []float32, sampleRate int, ms float64) []float32 {
	n := min(fadeLen(sampleRate, ms), len(samples))
	if n == 0 {
		return samples
	}

	w := window.Generate(window.TypeHann, 2*n)
	start := len(samples) - n

	for i := range n {
		samples[start+i] *= float32(w[n+i])
	}

	return samples
}

func fadeLen(sampleRate int, ms float64) int {
	if sampleRate <= 0 || ms <= 0 {
		return 0
	}

	return int(ms / 1000.0 * float64(sampleRate))
}

// Silence returns ms milliseconds of zero samples.
func Silence(sampleRate, ms int) []float32 {
	if sampleRate <= 0 || ms <= 0 {
		return nil
	}

	return make([]float32, sampleRate*ms/1000)
}

func toFloat64(samples []float32) []float64 {
	out := make([]float64, len(samples))
	for i, v := range samples {
		out[i] = float64(v)
	}

	return out
}

func fromFloat64(dst []float32, src []float64) {
	for i, v := range src {
		dst[i] = float32(v)
	}
}
