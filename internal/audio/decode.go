// Package audio encodes, decodes, filters, resamples and plays the mono
// float32 waveforms produced by the synthesis engine.
package audio

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cwbudde/wav"
)

// Engine output format.
const (
	DefaultSampleRate = 24000
	Channels          = 1
	BitDepth          = 16
)

// Output rates accepted for resampling.
const (
	MinSampleRate = 8000
	MaxSampleRate = 192000
)

// CheckSampleRate reports whether rate is within [MinSampleRate, MaxSampleRate].
func CheckSampleRate(rate int) error {
	if rate < MinSampleRate || rate > MaxSampleRate {
		return fmt.Errorf("sample rate %d outside [%d, %d]", rate, MinSampleRate, MaxSampleRate)
	}

	return nil
}

// ErrFormatMismatch is returned when a decoded WAV is not mono 16-bit PCM.
var ErrFormatMismatch = errors.New("WAV format mismatch")

// DecodeWAV decodes a mono 16-bit PCM WAV and returns its samples and
// sample rate.
func DecodeWAV(data []byte) ([]float32, int, error) {
	if len(data) == 0 {
		return nil, 0, errors.New("empty WAV input")
	}

	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, 0, errors.New("invalid WAV file")
	}

	if dec.NumChans != Channels {
		return nil, 0, fmt.Errorf("%w: channels %d, want %d", ErrFormatMismatch, dec.NumChans, Channels)
	}

	if dec.BitDepth != BitDepth {
		return nil, 0, fmt.Errorf("%w: bit depth %d, want %d", ErrFormatMismatch, dec.BitDepth, BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("reading PCM data: %w", err)
	}

	return buf.Data, int(dec.SampleRate), nil
}
