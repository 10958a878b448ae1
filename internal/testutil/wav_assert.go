package testutil

import (
	"encoding/binary"
	"fmt"
	"testing"
)

// wavChunks indexes the sub-chunks of a RIFF/WAVE body by id. A chunk size
// that runs past the end of data (streamed output) is truncated to fit.
func wavChunks(data []byte) (map[string][]byte, error) {
	if len(data) < 12 || string(data[:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		return nil, fmt.Errorf("not a RIFF/WAVE body (%d bytes)", len(data))
	}

	chunks := make(map[string][]byte)
	for rest := data[12:]; len(rest) >= 8; {
		id, size := string(rest[:4]), uint64(binary.LittleEndian.Uint32(rest[4:8]))
		body := rest[8:]
		size = min(size, uint64(len(body)))
		chunks[id] = body[:size]

		skip := size + size%2
		if skip >= uint64(len(body)) {
			break
		}

		rest = body[skip:]
	}

	return chunks, nil
}

// AssertValidWAV fails tb unless data is a mono 16-bit PCM WAV at 24 kHz
// carrying at least one sample.
func AssertValidWAV(tb testing.TB, data []byte) {
	tb.Helper()

	chunks, err := wavChunks(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}

	format, ok := chunks["fmt "]
	if !ok || len(format) < 16 {
		tb.Fatalf("WAV: missing or short fmt chunk (%d bytes)", len(format))
	}

	fields := []struct {
		name      string
		got, want uint32
	}{
		{"format tag", uint32(binary.LittleEndian.Uint16(format[0:2])), 1},
		{"channels", uint32(binary.LittleEndian.Uint16(format[2:4])), 1},
		{"sample rate", binary.LittleEndian.Uint32(format[4:8]), 24000},
		{"bits per sample", uint32(binary.LittleEndian.Uint16(format[14:16])), 16},
	}
	for _, f := range fields {
		if f.got != f.want {
			tb.Fatalf("WAV %s = %d, want %d", f.name, f.got, f.want)
		}
	}

	if len(chunks["data"]) < 2 {
		tb.Fatal("WAV: data chunk holds no samples")
	}
}

// AssertWAVSamples fails tb unless the data chunk holds exactly want 16-bit
// samples.
func AssertWAVSamples(tb testing.TB, data []byte, want int) {
	tb.Helper()

	chunks, err := wavChunks(data)
	if err != nil {
		tb.Fatalf("WAV: %v", err)
	}

	pcm, ok := chunks["data"]
	if !ok {
		tb.Fatal("WAV: no data chunk")
	}

	if got := len(pcm) / 2; got != want {
		tb.Fatalf("WAV holds %d samples, want %d", got, want)
	}
}
