package phonemize

import (
	"bufio"
	"crypto/sha256"
	_ "embed"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
)

//go:embed data/en_lexicon.tsv
var builtinLexicon string

// Lexicon maps lowercase words to phoneme strings per language.
type Lexicon struct {
	us map[string]string
	gb map[string]string
}

var defaultLexicon = sync.OnceValues(func() (*Lexicon, error) {
	return ParseLexicon(strings.NewReader(builtinLexicon))
})

// DefaultLexicon returns the built-in English lexicon. The result is shared
// and must not be modified; use Merge to extend it.
func DefaultLexicon() (*Lexicon, error) {
	lex, err := defaultLexicon()
	if err != nil {
		return nil, fmt.Errorf("phonemize: built-in lexicon: %w", err)
	}

	return lex, nil
}

// LoadLexicon reads a lexicon file. See ParseLexicon for the format.
func LoadLexicon(path string) (*Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("phonemize: open lexicon: %w", err)
	}
	defer f.Close()

	lex, err := ParseLexicon(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return lex, nil
}

// ParseLexicon reads tab-separated lines of the form
//
//	word <TAB> en-us phonemes [<TAB> en-gb phonemes]
//
// Blank lines and lines starting with '#' are ignored. A missing en-gb column
// is derived from the en-us pronunciation by dropping non-prevocalic r and
// using the British vowel qualities.
func ParseLexicon(r io.Reader) (*Lexicon, error) {
	lex := &Lexicon{us: map[string]string{}, gb: map[string]string{}}

	sc := bufio.NewScanner(r)
	line := 0

	for sc.Scan() {
		line++

		raw := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(raw) == "" || strings.HasPrefix(raw, "#") {
			continue
		}

		cols := strings.Split(raw, "\t")
		if len(cols) < 2 || len(cols) > 3 {
			return nil, fmt.Errorf("phonemize: lexicon line %d: want 2 or 3 tab-separated columns, got %d", line, len(cols))
		}

		word := strings.ToLower(strings.TrimSpace(cols[0]))
		us := strings.TrimSpace(cols[1])

		if word == "" || us == "" {
			return nil, fmt.Errorf("phonemize: lexicon line %d: empty word or pronunciation", line)
		}

		gb := toBritish(us)
		if len(cols) == 3 && strings.TrimSpace(cols[2]) != "" {
			gb = strings.TrimSpace(cols[2])
		}

		lex.us[word] = us
		lex.gb[word] = gb
	}

	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("phonemize: read lexicon: %w", err)
	}

	return lex, nil
}

// Merge returns a new lexicon with other's entries taking precedence.
func (l *Lexicon) Merge(other *Lexicon) *Lexicon {
	out := &Lexicon{us: maps.Clone(l.us), gb: maps.Clone(l.gb)}
	if other != nil {
		maps.Copy(out.us, other.us)
		maps.Copy(out.gb, other.gb)
	}

	return out
}

// Lookup returns the pronunciation of a lowercase word.
func (l *Lexicon) Lookup(word string, lang Language) (string, bool) {
	if lang == EnGB {
		p, ok := l.gb[word]
		return p, ok
	}

	p, ok := l.us[word]

	return p, ok
}

// Digest is a hex SHA-256 over every entry in word order.
func (l *Lexicon) Digest() string {
	h := sha256.New()
	for _, table := range []map[string]string{l.us, l.gb} {
		for _, word := range slices.Sorted(maps.Keys(table)) {
			fmt.Fprintf(h, "%s\t%s\n", word, table[word])
		}
		h.Write([]byte{0})
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// Len is the number of words.
func (l *Lexicon) Len() int { return len(l.us) }

// validate checks that every pronunciation is spelled in vocab.
func (l *Lexicon) validate(vocab *Vocab) error {
	for _, m := range []map[string]string{l.us, l.gb} {
		for word, p := range m {
			for _, r := range p {
				if !vocab.Has(r) {
					return fmt.Errorf("phonemize: lexicon entry %q uses symbol %q outside the vocabulary", word, r)
				}
			}
		}
	}

	return nil
}
