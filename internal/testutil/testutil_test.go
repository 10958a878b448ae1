package testutil_test

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"path/filepath"
	"testing"

	"github.com/example/go-kokoro-tts/internal/safetensors"
	"github.com/example/go-kokoro-tts/internal/testutil"
)

func TestTinyModel_RoundTripsThroughStore(t *testing.T) {
	data := testutil.TinyModelBytes(t, testutil.ModelOptions{MaxTokens: 12})

	store, err := safetensors.OpenStoreFromBytes(data, safetensors.StoreOptions{})
	if err != nil {
		t.Fatalf("OpenStoreFromBytes: %v", err)
	}

	if !store.Has("encoder.embedding.weight") {
		t.Fatal("embedding missing")
	}

	if v, _ := store.MetadataString("max_tokens"); v != "12" {
		t.Fatalf("max_tokens metadata = %q, want 12", v)
	}
}

func TestTinyModel_PrefixAndDrop(t *testing.T) {
	tensors, _ := testutil.TinyModelTensors(testutil.ModelOptions{
		Prefix: "module.",
		Drop:   []string{"decoder.proj.weight"},
	})

	for _, tn := range tensors {
		if tn.Name[:7] != "module." {
			t.Fatalf("tensor %q lacks prefix", tn.Name)
		}

		if tn.Name == "module.decoder.proj.weight" {
			t.Fatal("dropped tensor still present")
		}
	}
}

func TestEncodeNPY_HeaderAlignment(t *testing.T) {
	raw := testutil.EncodeNPY([]float32{1, 2, 3}, []int{3})

	if string(raw[1:6]) != "NUMPY" {
		t.Fatalf("bad magic %q", raw[:6])
	}

	hlen := int(binary.LittleEndian.Uint16(raw[8:10]))
	if (10+hlen)%64 != 0 {
		t.Fatalf("header end %d not 64-byte aligned", 10+hlen)
	}

	if raw[10+hlen-1] != '\n' {
		t.Fatal("header must end with newline")
	}

	if len(raw) != 10+hlen+12 {
		t.Fatalf("payload length %d, want %d", len(raw), 10+hlen+12)
	}
}

func TestWriteVoicesNPZ_Entries(t *testing.T) {
	path := testutil.WriteVoicesNPZ(t, t.TempDir(), "b", "a")

	zr, err := zip.OpenReader(path)
	if err != nil {
		t.Fatalf("zip.OpenReader: %v", err)
	}
	defer zr.Close()

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}

	if len(names) != 2 || names[0] != "a.npy" || names[1] != "b.npy" {
		t.Fatalf("entries = %v, want [a.npy b.npy]", names)
	}
}

func TestVoiceData_DeterministicPerName(t *testing.T) {
	a1 := testutil.VoiceData("af_test")
	a2 := testutil.VoiceData("af_test")
	b := testutil.VoiceData("bf_test")

	if len(a1) != testutil.VoiceRows*testutil.TinyStyleDim {
		t.Fatalf("len = %d", len(a1))
	}

	for i := range a1 {
		if a1[i] != a2[i] {
			t.Fatalf("index %d differs between calls", i)
		}
	}

	same := true

	for i := range a1 {
		if a1[i] != b[i] {
			same = false
			break
		}
	}

	if same {
		t.Fatal("different names produced identical voices")
	}
}

func TestRequireFile_SkipsWhenAbsent(t *testing.T) {
	skipped := false
	fakeT := &skipTracker{TB: t, onSkip: func() { skipped = true }}
	testutil.RequireFile(fakeT, filepath.Join(t.TempDir(), "missing.safetensors"))

	if !skipped {
		t.Error("expected RequireFile to skip when the file is absent")
	}
}

func TestAssertValidWAV_AcceptsMinimalFile(t *testing.T) {
	var buf bytes.Buffer

	samples := []int16{0, 100, -100}
	dataLen := uint32(2 * len(samples))

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36)+dataLen)
	buf.WriteString("WAVEfmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(24000))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(48000))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))
	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, dataLen)
	_ = binary.Write(&buf, binary.LittleEndian, samples)

	testutil.AssertValidWAV(t, buf.Bytes())
	testutil.AssertWAVSamples(t, buf.Bytes(), 3)
}

// skipTracker is a minimal testing.TB implementation that intercepts Skip calls.
type skipTracker struct {
	testing.TB
	onSkip func()
}

func (s *skipTracker) Helper() {}

func (s *skipTracker) Skipf(_ string, _ ...any) {
	s.onSkip()
}
