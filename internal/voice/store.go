// Package voice loads named style embeddings from Kokoro-style voice
// archives: zip/npz bundles of .npy files, safetensors voice packs, or a
// directory of .npy files.
package voice

import (
	"archive/zip"
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/example/go-kokoro-tts/internal/safetensors"
)

const npyExt = ".npy"

// Embedding is one voice: Rows style vectors of Width floats. Row i is meant
// for phoneme sequences of length i+1.
type Embedding struct {
	Name  string
	Shape []int
	Rows  int
	Width int
	Data  []float32
}

// Digest is a hex SHA-256 of the shape and the raw float bits.
func (e Embedding) Digest() string {
	h := sha256.New()
	for _, d := range e.Shape {
		_ = binary.Write(h, binary.LittleEndian, int64(d))
	}
	_ = binary.Write(h, binary.LittleEndian, e.Data)

	return hex.EncodeToString(h.Sum(nil))
}

// Style returns the style row for a sequence of numIDs phoneme ids:
// row min(numIDs-1, Rows-1). The slice aliases the store and must not be
// modified.
func (e Embedding) Style(numIDs int) []float32 {
	row := min(max(numIDs-1, 0), e.Rows-1)
	return e.Data[row*e.Width : (row+1)*e.Width]
}

// LoadOptions constrains what Load accepts.
type LoadOptions struct {
	// Width, when > 0, is the required style width (the model's StyleDim).
	Width int
}

// Store is an immutable name -> Embedding mapping.
type Store struct {
	source string
	voices map[string]Embedding
	names  []string
}

// Load reads a voice archive. path may be a directory of .npy files, a single
// .npy file, a zip/npz archive, or a safetensors voice pack. Either every
// entry parses into a well-formed embedding or Load fails with ErrFormat.
func Load(path string, opts LoadOptions) (*Store, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}

	if info.IsDir() {
		return loadDir(path, opts)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("voice: read %s: %w", path, err)
	}

	s, err := Parse(raw, filepath.Base(path), opts)
	if err != nil {
		return nil, err
	}

	s.source = path

	return s, nil
}

// Parse detects the archive type from its content. name is only used for a
// bare .npy file, whose voice name is name without the extension.
func Parse(raw []byte, name string, opts LoadOptions) (*Store, error) {
	switch {
	case bytes.HasPrefix(raw, []byte("PK")):
		return parseZip(raw, opts)
	case bytes.HasPrefix(raw, []byte(npyMagic)):
		arr, err := ParseNPY(raw)
		if err != nil {
			return nil, err
		}

		return build(map[string]Array{strings.TrimSuffix(name, npyExt): arr}, opts)
	default:
		return parseSafetensors(raw, opts)
	}
}

func parseZip(raw []byte, opts LoadOptions) (*Store, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, formatErrorf("zip: %v", err)
	}

	arrays := make(map[string]Array, len(zr.File))

	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}

		name, ok := strings.CutSuffix(f.Name, npyExt)
		if !ok || name == "" {
			return nil, formatErrorf("archive entry %q is not a .npy array", f.Name)
		}

		data, err := readZipEntry(f)
		if err != nil {
			return nil, formatErrorf("entry %q: %v", f.Name, err)
		}

		arr, err := ParseNPY(data)
		if err != nil {
			return nil, fmt.Errorf("entry %q: %w", f.Name, err)
		}

		if _, dup := arrays[name]; dup {
			return nil, formatErrorf("duplicate voice %q", name)
		}

		arrays[name] = arr
	}

	return build(arrays, opts)
}

func readZipEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func parseSafetensors(raw []byte, opts LoadOptions) (*Store, error) {
	st, err := safetensors.OpenStoreFromBytes(raw, safetensors.StoreOptions{
		KeyMapper: func(name string) (string, bool) {
			return strings.TrimSuffix(name, npyExt), true
		},
		RemapMode: safetensors.RemapStrict,
	})
	if err != nil {
		return nil, formatErrorf("%v", err)
	}
	defer st.Close()

	arrays := make(map[string]Array, len(st.Names()))

	for _, name := range st.Names() {
		t, err := st.Tensor(name)
		if err != nil {
			return nil, formatErrorf("%v", err)
		}

		shape := make([]int, len(t.Shape))
		for i, d := range t.Shape {
			shape[i] = int(d)
		}

		arrays[name] = Array{Shape: shape, Data: t.Data}
	}

	return build(arrays, opts)
}

func loadDir(dir string, opts LoadOptions) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("voice: %w", err)
	}

	arrays := make(map[string]Array)

	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), npyExt)
		if e.IsDir() || !ok {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("voice: %w", err)
		}

		arr, err := ParseNPY(raw)
		if err != nil {
			return nil, fmt.Errorf("file %q: %w", e.Name(), err)
		}

		arrays[name] = arr
	}

	s, err := build(arrays, opts)
	if err != nil {
		return nil, err
	}

	s.source = dir

	return s, nil
}

// New builds a store from in-memory arrays with the same validation as Load.
func New(arrays map[string]Array, opts LoadOptions) (*Store, error) {
	return build(arrays, opts)
}

func build(arrays map[string]Array, opts LoadOptions) (*Store, error) {
	if len(arrays) == 0 {
		return nil, formatErrorf("archive contains no voices")
	}

	s := &Store{voices: make(map[string]Embedding, len(arrays))}

	var common []int

	for name, arr := range arrays {
		emb, err := toEmbedding(name, arr)
		if err != nil {
			return nil, err
		}

		if common == nil {
			common = emb.Shape
		} else if !slices.Equal(common, emb.Shape) {
			return nil, formatErrorf("voice %q shape %v differs from %v", name, emb.Shape, common)
		}

		if opts.Width > 0 && emb.Width != opts.Width {
			return nil, formatErrorf("voice %q style width %d, model expects %d", name, emb.Width, opts.Width)
		}

		s.voices[name] = emb
		s.names = append(s.names, name)
	}

	slices.Sort(s.names)

	return s, nil
}

func toEmbedding(name string, arr Array) (Embedding, error) {
	var rows, width int

	switch {
	case len(arr.Shape) == 1:
		rows, width = 1, arr.Shape[0]
	case len(arr.Shape) == 2:
		rows, width = arr.Shape[0], arr.Shape[1]
	case len(arr.Shape) == 3 && arr.Shape[1] == 1:
		rows, width = arr.Shape[0], arr.Shape[2]
	default:
		return Embedding{}, formatErrorf("voice %q has unsupported shape %v", name, arr.Shape)
	}

	if rows < 1 || width < 2 || width%2 != 0 {
		return Embedding{}, formatErrorf("voice %q has unusable shape %v", name, arr.Shape)
	}

	if rows > len(arr.Data)/width || len(arr.Data) != rows*width {
		return Embedding{}, formatErrorf("voice %q has %d values for shape %v", name, len(arr.Data), arr.Shape)
	}

	for _, v := range arr.Data {
		if math.IsNaN(float64(v)) || math.IsInf(float64(v), 0) {
			return Embedding{}, formatErrorf("voice %q contains non-finite values", name)
		}
	}

	return Embedding{
		Name:  name,
		Shape: slices.Clone(arr.Shape),
		Rows:  rows,
		Width: width,
		Data:  arr.Data,
	}, nil
}

// Names lists voice names in lexicographic order.
func (s *Store) Names() []string { return slices.Clone(s.names) }

func (s *Store) Len() int { return len(s.names) }

// Source is the path the store was loaded from, if any.
func (s *Store) Source() string { return s.source }

// Resolve returns the named voice or a *NotFoundError matching ErrNotFound.
func (s *Store) Resolve(name string) (Embedding, error) {
	emb, ok := s.voices[name]
	if !ok {
		return Embedding{}, newNotFound(name, s.names)
	}

	return emb, nil
}

// Has reports whether name is present.
func (s *Store) Has(name string) bool {
	_, ok := s.voices[name]
	return ok
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
