package voice

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
)

const npyMagic = "\x93NUMPY"

// Array is a decoded .npy array.
type Array struct {
	Shape []int
	Data  []float32
}

// ParseNPY decodes a little-endian float32 or float64 array in C order.
// Anything else is a format error.
func ParseNPY(raw []byte) (Array, error) {
	if len(raw) < 10 || string(raw[:6]) != npyMagic {
		return Array{}, formatErrorf("not an npy file")
	}

	major := raw[6]

	var (
		headerLen int
		offset    int
	)

	switch major {
	case 1:
		headerLen = int(binary.LittleEndian.Uint16(raw[8:10]))
		offset = 10
	case 2, 3:
		if len(raw) < 12 {
			return Array{}, formatErrorf("truncated npy header")
		}

		headerLen = int(binary.LittleEndian.Uint32(raw[8:12]))
		offset = 12
	default:
		return Array{}, formatErrorf("unsupported npy version %d", major)
	}

	if offset+headerLen > len(raw) {
		return Array{}, formatErrorf("npy header length %d exceeds file size %d", headerLen, len(raw))
	}

	descr, fortran, shape, err := parseNPYHeader(string(raw[offset : offset+headerLen]))
	if err != nil {
		return Array{}, err
	}

	if fortran {
		return Array{}, formatErrorf("fortran-ordered arrays are not supported")
	}

	var itemSize int

	switch descr {
	case "<f4":
		itemSize = 4
	case "<f8":
		itemSize = 8
	default:
		return Array{}, formatErrorf("unsupported npy dtype %q", descr)
	}

	body := raw[offset+headerLen:]

	count, ok := elementCount(shape, len(body)/itemSize)
	if !ok || len(body) != itemSize*count {
		return Array{}, formatErrorf("npy payload %d bytes does not match %s shape %v", len(body), descr, shape)
	}

	data := make([]float32, count)
	if itemSize == 4 {
		for i := range data {
			data[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[4*i:]))
		}
	} else {
		for i := range data {
			data[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(body[8*i:])))
		}
	}

	return Array{Shape: shape, Data: data}, nil
}

// elementCount multiplies the dimensions of shape, reporting false when the
// product exceeds limit. Each step is bounded before multiplying, so the
// product never overflows.
func elementCount(shape []int, limit int) (int, bool) {
	count := 1
	for _, d := range shape {
		if d < 0 {
			return 0, false
		}
		if d == 0 {
			return 0, true
		}
		if count > limit/d {
			return 0, false
		}
		count *= d
	}

	return count, true
}

// parseNPYHeader reads the Python dict literal numpy writes, e.g.
// {'descr': '<f4', 'fortran_order': False, 'shape': (510, 1, 256), }
func parseNPYHeader(h string) (descr string, fortran bool, shape []int, err error) {
	h = strings.TrimSpace(h)
	if !strings.HasPrefix(h, "{") || !strings.HasSuffix(h, "}") {
		return "", false, nil, formatErrorf("malformed npy header %q", h)
	}

	descr, ok := npyField(h, "descr")
	if !ok {
		return "", false, nil, formatErrorf("npy header missing descr")
	}

	descr = strings.Trim(descr, `'"`)

	order, ok := npyField(h, "fortran_order")
	if !ok {
		return "", false, nil, formatErrorf("npy header missing fortran_order")
	}

	fortran = order == "True"

	rawShape, ok := npyField(h, "shape")
	if !ok || !strings.HasPrefix(rawShape, "(") || !strings.HasSuffix(rawShape, ")") {
		return "", false, nil, formatErrorf("npy header missing shape")
	}

	for _, part := range strings.Split(strings.Trim(rawShape, "()"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		d, err := strconv.Atoi(part)
		if err != nil || d < 0 {
			return "", false, nil, formatErrorf("bad npy shape %s", rawShape)
		}

		shape = append(shape, d)
	}

	return descr, fortran, shape, nil
}

// npyField returns the raw value text of key in the header dict.
func npyField(h, key string) (string, bool) {
	for _, q := range []string{"'", `"`} {
		idx := strings.Index(h, q+key+q)
		if idx < 0 {
			continue
		}

		rest := strings.TrimSpace(h[idx+len(key)+2:])

		rest, ok := strings.CutPrefix(rest, ":")
		if !ok {
			return "", false
		}

		rest = strings.TrimSpace(rest)

		if strings.HasPrefix(rest, "(") {
			end := strings.Index(rest, ")")
			if end < 0 {
				return "", false
			}

			return rest[:end+1], true
		}

		end := strings.IndexAny(rest, ",}")
		if end < 0 {
			return "", false
		}

		return strings.TrimSpace(rest[:end]), true
	}

	return "", false
}
