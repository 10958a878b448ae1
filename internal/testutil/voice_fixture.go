package testutil

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"maps"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/example/go-kokoro-tts/internal/safetensors"
)

// VoiceRows is the number of per-length style rows in fixture voices.
const VoiceRows = 16

// VoiceShape is the [rows, 1, style] layout used by the released voice packs.
var VoiceShape = []int{VoiceRows, 1, TinyStyleDim}

// VoiceData returns a deterministic embedding for name with VoiceShape.
func VoiceData(name string) []float32 {
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))

	g := &weightGen{state: h.Sum32() | 1}

	return g.fill(VoiceRows*TinyStyleDim, 0.8)
}

// EncodeNPY serializes float32 data as a little-endian, C-ordered .npy file.
func EncodeNPY(data []float32, shape []int) []byte {
	var buf bytes.Buffer

	writeNPYHeader(&buf, "<f4", shape)

	raw := make([]byte, 4*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}

	buf.Write(raw)

	return buf.Bytes()
}

// EncodeNPYFloat64 is EncodeNPY for "<f8" arrays.
func EncodeNPYFloat64(data []float64, shape []int) []byte {
	var buf bytes.Buffer

	writeNPYHeader(&buf, "<f8", shape)

	raw := make([]byte, 8*len(data))
	for i, v := range data {
		binary.LittleEndian.PutUint64(raw[8*i:], math.Float64bits(v))
	}

	buf.Write(raw)

	return buf.Bytes()
}

// EncodeNPYHeader builds a v1.0 header with an arbitrary descr and order,
// for tests of unsupported layouts.
func EncodeNPYHeader(descr string, fortran bool, shape []int) []byte {
	var buf bytes.Buffer

	writeNPYHeaderOrder(&buf, descr, fortran, shape)

	return buf.Bytes()
}

func writeNPYHeader(buf *bytes.Buffer, descr string, shape []int) {
	writeNPYHeaderOrder(buf, descr, false, shape)
}

func writeNPYHeaderOrder(buf *bytes.Buffer, descr string, fortran bool, shape []int) {
	dims := make([]string, len(shape))
	for i, d := range shape {
		dims[i] = fmt.Sprint(d)
	}

	tuple := strings.Join(dims, ", ")
	if len(shape) == 1 {
		tuple += ","
	}

	order := "False"
	if fortran {
		order = "True"
	}

	header := fmt.Sprintf("{'descr': '%s', 'fortran_order': %s, 'shape': (%s), }", descr, order, tuple)

	// magic(6) + version(2) + len(2) + header + '\n' is padded to 64 bytes.
	total := 10 + len(header) + 1
	if rem := total % 64; rem != 0 {
		header += strings.Repeat(" ", 64-rem)
	}

	header += "\n"

	buf.WriteString("\x93NUMPY")
	buf.Write([]byte{1, 0})
	_ = binary.Write(buf, binary.LittleEndian, uint16(len(header)))
	buf.WriteString(header)
}

// WriteZip writes a zip archive with the given raw entries, in name order.
func WriteZip(tb testing.TB, path string, entries map[string][]byte) {
	tb.Helper()

	f, err := os.Create(path)
	if err != nil {
		tb.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)

	for _, name := range slices.Sorted(maps.Keys(entries)) {
		w, err := zw.Create(name)
		if err != nil {
			tb.Fatalf("zip create %s: %v", name, err)
		}

		if _, err := w.Write(entries[name]); err != nil {
			tb.Fatalf("zip write %s: %v", name, err)
		}
	}

	if err := zw.Close(); err != nil {
		tb.Fatalf("zip close: %v", err)
	}
}

// WriteVoicesNPZ writes a voices-*.bin style zip of <name>.npy entries.
func WriteVoicesNPZ(tb testing.TB, dir string, names ...string) string {
	tb.Helper()

	entries := make(map[string][]byte, len(names))
	for _, name := range names {
		entries[name+".npy"] = EncodeNPY(VoiceData(name), VoiceShape)
	}

	path := filepath.Join(dir, "voices-test.bin")
	WriteZip(tb, path, entries)

	return path
}

// WriteVoicesSafetensors writes a safetensors voice pack, one tensor per voice.
func WriteVoicesSafetensors(tb testing.TB, dir string, names ...string) string {
	tb.Helper()

	shape := []int64{VoiceRows, 1, TinyStyleDim}
	tensors := make([]safetensors.Tensor, 0, len(names))

	for _, name := range names {
		tensors = append(tensors, safetensors.Tensor{Name: name, Shape: shape, Data: VoiceData(name)})
	}

	path := filepath.Join(dir, "voices-test.safetensors")
	if err := safetensors.WriteFile(path, tensors, nil); err != nil {
		tb.Fatalf("write voice pack: %v", err)
	}

	return path
}

// WriteVoicesDir writes one <name>.npy per voice into a fresh directory.
func WriteVoicesDir(tb testing.TB, dir string, names ...string) string {
	tb.Helper()

	vdir := filepath.Join(dir, "voices")
	if err := os.MkdirAll(vdir, 0o755); err != nil {
		tb.Fatalf("mkdir %s: %v", vdir, err)
	}

	for _, name := range names {
		p := filepath.Join(vdir, name+".npy")
		if err := os.WriteFile(p, EncodeNPY(VoiceData(name), VoiceShape), 0o644); err != nil {
			tb.Fatalf("write %s: %v", p, err)
		}
	}

	return vdir
}
