package audio

import (
	"encoding/binary"
	"io"
	"math"
)

const unknownLength = math.MaxUint32

// WriteWAVHeaderStreaming writes a 44-byte mono 16-bit PCM header whose RIFF
// and data sizes are 0xFFFFFFFF, the conventional marker for a stream of
// unknown length.
func WriteWAVHeaderStreaming(w io.Writer, sampleRate int) (int, error) {
	const blockAlign = Channels * BitDepth / 8

	hdr := make([]byte, 0, 44)
	hdr = append(hdr, "RIFF"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, unknownLength)
	hdr = append(hdr, "WAVEfmt "...)
	hdr = binary.LittleEndian.AppendUint32(hdr, 16)
	hdr = binary.LittleEndian.AppendUint16(hdr, 1) // PCM
	hdr = binary.LittleEndian.AppendUint16(hdr, Channels)
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(sampleRate))
	hdr = binary.LittleEndian.AppendUint32(hdr, uint32(sampleRate*blockAlign))
	hdr = binary.LittleEndian.AppendUint16(hdr, blockAlign)
	hdr = binary.LittleEndian.AppendUint16(hdr, BitDepth)
	hdr = append(hdr, "data"...)
	hdr = binary.LittleEndian.AppendUint32(hdr, unknownLength)

	return w.Write(hdr)
}

// WritePCM16Samples writes samples as little-endian int16, clamped to
// [-1, 1]. NaN is written as silence.
func WritePCM16Samples(w io.Writer, samples []float32) (int, error) {
	return w.Write(PCM16Bytes(samples))
}

// PCM16Bytes converts samples to little-endian int16 bytes.
func PCM16Bytes(samples []float32) []byte {
	buf := make([]byte, 0, len(samples)*2)
	for _, s := range samples {
		buf = binary.LittleEndian.AppendUint16(buf, uint16(toPCM16(s)))
	}

	return buf
}

func toPCM16(s float32) int16 {
	v := float64(s)
	if math.IsNaN(v) {
		return 0
	}

	return int16(math.Max(-1.0, math.Min(1.0, v)) * 32767)
}
