package audio

import (
	"fmt"
	"slices"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Resample converts mono samples from one rate to another. The result holds
// exactly len(samples)*to/from samples, rounded to nearest.
func Resample(samples []float32, from, to int) ([]float32, error) {
	if from <= 0 {
		return nil, fmt.Errorf("invalid resample rates %d -> %d", from, to)
	}

	if err := CheckSampleRate(to); err != nil {
		return nil, err
	}

	if from == to || len(samples) == 0 {
		return slices.Clone(samples), nil
	}

	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   Channels,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("create resampler: %w", err)
	}

	// Trailing silence pushes the filter tail through.
	input := make([]float64, len(samples)+from/10)
	for i, s := range samples {
		input[i] = float64(s)
	}

	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample: %w", err)
	}

	want := int((int64(len(samples))*int64(to) + int64(from)/2) / int64(from))

	out := make([]float32, want)
	for i := range min(want, len(output)) {
		out[i] = float32(output[i])
	}

	return out, nil
}
