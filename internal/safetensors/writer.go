package safetensors

import (
	"cmp"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"slices"
	"strings"
)

// Tensor is a decoded float32 tensor.
type Tensor struct {
	Name  string
	Shape []int64
	Data  []float32
}

// EncodeTensors serializes float32 tensors into safetensors format.
func EncodeTensors(tensors []Tensor) ([]byte, error) {
	return Encode(tensors, nil)
}

// Encode serializes float32 tensors plus an optional "__metadata__" string map.
// Tensors are laid out in name order so the output is reproducible.
func Encode(tensors []Tensor, metadata map[string]string) ([]byte, error) {
	if len(tensors) == 0 {
		return nil, errors.New("safetensors: no tensors to encode")
	}

	ordered := slices.SortedFunc(slices.Values(tensors), func(a, b Tensor) int {
		return cmp.Compare(a.Name, b.Name)
	})

	size := 0
	for _, t := range ordered {
		size += 4 * len(t.Data)
	}

	header := make(map[string]any, len(ordered)+1)
	raw := make([]byte, 0, size)

	for _, t := range ordered {
		name := strings.TrimSpace(t.Name)

		switch _, dup := header[name]; {
		case name == "":
			return nil, errors.New("safetensors: tensor name must not be empty")
		case name == metadataKey:
			return nil, fmt.Errorf("safetensors: tensor name %q is reserved", name)
		case dup:
			return nil, fmt.Errorf("safetensors: duplicate tensor name %q", name)
		}

		want, err := shapeElementCount(t.Shape)
		if err != nil {
			return nil, fmt.Errorf("safetensors: tensor %q: %w", name, err)
		}

		if int64(len(t.Data)) != want {
			return nil, fmt.Errorf("safetensors: tensor %q shape %v expects %d elements, got %d", name, t.Shape, want, len(t.Data))
		}

		begin := len(raw)
		for _, v := range t.Data {
			raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
		}

		header[name] = storeHeaderEntry{DType: dtypeF32, Shape: slices.Clone(t.Shape), Offsets: [2]int{begin, len(raw)}}
	}

	if len(metadata) > 0 {
		header[metadataKey] = metadata
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("safetensors: encode header: %w", err)
	}

	out := binary.LittleEndian.AppendUint64(make([]byte, 0, 8+len(headerJSON)+len(raw)), uint64(len(headerJSON)))
	out = append(out, headerJSON...)

	return append(out, raw...), nil
}

// WriteFile writes float32 tensors and metadata into a .safetensors file.
func WriteFile(path string, tensors []Tensor, metadata map[string]string) error {
	data, err := Encode(tensors, metadata)
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("safetensors: write %s: %w", path, err)
	}

	return nil
}
