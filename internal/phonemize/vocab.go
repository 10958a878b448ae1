package phonemize

import (
	"fmt"
	"maps"
	"slices"
	"sync"
	"unicode/utf8"
)

// PadID is the id placed before and after every token sequence. It is never
// produced by the vocabulary itself.
const PadID int64 = 0

// defaultSymbols is the phoneme vocabulary the published Kokoro weights were
// trained with.
var defaultSymbols = map[rune]int64{
	';': 1, ':': 2, ',': 3, '.': 4, '!': 5, '?': 6, '—': 9, '…': 10,
	'"': 11, '(': 12, ')': 13, '“': 14, '”': 15, ' ': 16, '\u0303': 17,
	'ʣ': 18, 'ʥ': 19, 'ʦ': 20, 'ʨ': 21, 'ᵝ': 22, '\uab67': 23,
	'A': 24, 'I': 25, 'O': 31, 'Q': 33, 'S': 35, 'T': 36, 'W': 39, 'Y': 41, 'ᵊ': 42,
	'a': 43, 'b': 44, 'c': 45, 'd': 46, 'e': 47, 'f': 48, 'h': 50, 'i': 51,
	'j': 52, 'k': 53, 'l': 54, 'm': 55, 'n': 56, 'o': 57, 'p': 58, 'q': 59,
	'r': 60, 's': 61, 't': 62, 'u': 63, 'v': 64, 'w': 65, 'x': 66, 'y': 67, 'z': 68,
	'ɑ': 69, 'ɐ': 70, 'ɒ': 71, 'æ': 72, 'β': 75, 'ɔ': 76, 'ɕ': 77, 'ç': 78,
	'ɖ': 80, 'ð': 81, 'ʤ': 82, 'ə': 83, 'ɚ': 85, 'ɛ': 86, 'ɜ': 87, 'ɟ': 90,
	'ɡ': 92, 'ɥ': 99, 'ɨ': 101, 'ɪ': 102, 'ʝ': 103, 'ɯ': 110, 'ɰ': 111,
	'ŋ': 112, 'ɳ': 113, 'ɲ': 114, 'ɴ': 115, 'ø': 116, 'ɸ': 118, 'θ': 119,
	'œ': 120, 'ɹ': 123, 'ɾ': 125, 'ɻ': 126, 'ʁ': 128, 'ɽ': 129, 'ʂ': 130,
	'ʃ': 131, 'ʈ': 132, 'ʧ': 133, 'ʊ': 135, 'ʋ': 136, 'ʌ': 138, 'ɣ': 139,
	'ɤ': 140, 'χ': 142, 'ʎ': 143, 'ʒ': 147, 'ʔ': 148,
	'ˈ': 156, 'ˌ': 157, 'ː': 158, 'ʰ': 162, 'ʲ': 164,
	'↓': 169, '→': 171, '↗': 172, '↘': 173, 'ᵻ': 177,
}

// Vocab maps phoneme symbols to embedding row ids.
type Vocab struct {
	ids   map[rune]int64
	maxID int64
}

var defaultVocab = sync.OnceValue(func() *Vocab {
	return newVocab(maps.Clone(defaultSymbols))
})

// DefaultVocab returns the built-in Kokoro phoneme vocabulary.
func DefaultVocab() *Vocab { return defaultVocab() }

// NewVocab builds a vocabulary from symbol strings, as stored in model
// metadata. Every symbol must be a single rune with an id > 0.
func NewVocab(symbols map[string]int64) (*Vocab, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("phonemize: empty vocabulary")
	}

	ids := make(map[rune]int64, len(symbols))

	for s, id := range symbols {
		r, size := utf8.DecodeRuneInString(s)
		if r == utf8.RuneError || size != len(s) {
			return nil, fmt.Errorf("phonemize: vocabulary symbol %q is not a single character", s)
		}

		if id <= PadID {
			return nil, fmt.Errorf("phonemize: vocabulary symbol %q has reserved id %d", s, id)
		}

		ids[r] = id
	}

	return newVocab(ids), nil
}

func newVocab(ids map[rune]int64) *Vocab {
	v := &Vocab{ids: ids}
	for _, id := range ids {
		v.maxID = max(v.maxID, id)
	}

	return v
}

// ID returns the id of a phoneme symbol.
func (v *Vocab) ID(r rune) (int64, bool) {
	id, ok := v.ids[r]
	return id, ok
}

// Has reports whether r is a vocabulary symbol.
func (v *Vocab) Has(r rune) bool {
	_, ok := v.ids[r]
	return ok
}

// Len is the number of symbols.
func (v *Vocab) Len() int { return len(v.ids) }

// MaxID is the largest id; an embedding table needs MaxID+1 rows.
func (v *Vocab) MaxID() int64 { return v.maxID }

// Symbols returns all symbols ordered by id.
func (v *Vocab) Symbols() []rune {
	syms := slices.Collect(maps.Keys(v.ids))
	slices.SortFunc(syms, func(a, b rune) int {
		return int(v.ids[a] - v.ids[b])
	})

	return syms
}
