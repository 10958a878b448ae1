package native

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/example/go-kokoro-tts/internal/runtime/tensor"
	"github.com/example/go-kokoro-tts/internal/safetensors"
)

// VarBuilder resolves dotted tensor names relative to a prefix, so each layer
// loader only knows its local names ("conv.weight", "norm.bias").
type VarBuilder struct {
	store  *safetensors.Store
	prefix string
}

func NewVarBuilder(store *safetensors.Store) *VarBuilder {
	return &VarBuilder{store: store}
}

// Path descends into the named children. Empty parts are skipped.
func (vb *VarBuilder) Path(parts ...string) *VarBuilder {
	names := []string{}
	if vb.prefix != "" {
		names = append(names, vb.prefix)
	}

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			names = append(names, p)
		}
	}

	return &VarBuilder{store: vb.store, prefix: strings.Join(names, ".")}
}

// Index is shorthand for Path(strconv.Itoa(i)).
func (vb *VarBuilder) Index(i int) *VarBuilder {
	return vb.Path(strconv.Itoa(i))
}

// Count returns how many consecutive indexed children 0..n-1 hold name, e.g.
// Count("weight") under "vocoder.ups" counts upsample stages.
func (vb *VarBuilder) Count(name string) int {
	n := 0
	for vb.Index(n).Has(name) {
		n++
	}

	return n
}

func (vb *VarBuilder) Has(name string) bool {
	return vb.store != nil && vb.store.Has(vb.resolve(name))
}

// Shape returns the stored shape of name without decoding its data.
func (vb *VarBuilder) Shape(name string) ([]int64, bool) {
	if vb.store == nil {
		return nil, false
	}

	return vb.store.Shape(vb.resolve(name))
}

// Tensor decodes name. When wantShape is given the stored shape must match.
func (vb *VarBuilder) Tensor(name string, wantShape ...int64) (*tensor.Tensor, error) {
	if vb.store == nil {
		return nil, errors.New("native: varbuilder has no store")
	}

	full := vb.resolve(name)

	st, err := vb.store.Tensor(full)
	if err != nil {
		return nil, err
	}

	if len(wantShape) > 0 && !slices.Equal(st.Shape, wantShape) {
		return nil, fmt.Errorf("native: tensor %q has shape %v, want %v", full, st.Shape, wantShape)
	}

	t, err := tensor.New(st.Data, st.Shape)
	if err != nil {
		return nil, fmt.Errorf("native: tensor %q: %w", full, err)
	}

	return t, nil
}

// TensorMaybe is Tensor for optional weights such as biases. A missing name
// yields a nil tensor and ok false.
func (vb *VarBuilder) TensorMaybe(name string, wantShape ...int64) (t *tensor.Tensor, ok bool, err error) {
	if !vb.Has(name) {
		return nil, false, nil
	}

	t, err = vb.Tensor(name, wantShape...)

	return t, true, err
}

func (vb *VarBuilder) resolve(name string) string {
	return vb.Path(name).prefix
}
