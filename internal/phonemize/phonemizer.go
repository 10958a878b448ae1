// Package phonemize turns English text into the phoneme token ids consumed
// by the Kokoro sequence encoder.
//
// Text is normalized, numbers and abbreviations are spelled out, every word
// is looked up in a lexicon and words without an entry fall back to letter to
// sound rules. The resulting phoneme string is mapped onto a fixed
// vocabulary. A Phonemizer holds only immutable tables and is safe for
// concurrent use.
package phonemize

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/example/go-kokoro-tts/internal/text"
)

// DefaultMaxTokens is the Kokoro context length minus the two pad positions.
const DefaultMaxTokens = 510

// UnknownPolicy decides what happens to characters that have no
// pronunciation and no vocabulary symbol.
type UnknownPolicy string

const (
	// UnknownReject fails with a TokenizationError listing the characters.
	UnknownReject UnknownPolicy = "reject"
	// UnknownSkip drops the characters and reports them in Result.Skipped.
	UnknownSkip UnknownPolicy = "skip"
)

// ParseUnknownPolicy parses "reject" or "skip". Empty means reject.
func ParseUnknownPolicy(s string) (UnknownPolicy, error) {
	switch UnknownPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", UnknownReject:
		return UnknownReject, nil
	case UnknownSkip:
		return UnknownSkip, nil
	}

	return "", fmt.Errorf("phonemize: unknown character policy %q (want reject or skip)", s)
}

// Options configures a Phonemizer. Zero values select the defaults.
type Options struct {
	MaxTokens int
	Unknown   UnknownPolicy
	Vocab     *Vocab
	Lexicon   *Lexicon
}

// Result is the output of one Phonemize call.
type Result struct {
	// Text is the normalized input after number and abbreviation expansion.
	Text     string
	Phonemes string
	IDs      []int64
	// Skipped holds characters dropped under UnknownSkip, in order of
	// first appearance.
	Skipped []rune
}

// Phonemizer converts text to token ids.
type Phonemizer struct {
	maxTokens int
	unknown   UnknownPolicy
	vocab     *Vocab
	lexicon   *Lexicon
}

// New validates opts and builds a Phonemizer.
func New(opts Options) (*Phonemizer, error) {
	p := &Phonemizer{
		maxTokens: opts.MaxTokens,
		unknown:   opts.Unknown,
		vocab:     opts.Vocab,
		lexicon:   opts.Lexicon,
	}

	if p.maxTokens == 0 {
		p.maxTokens = DefaultMaxTokens
	}

	if p.maxTokens < 1 {
		return nil, fmt.Errorf("phonemize: max tokens must be >= 1, got %d", opts.MaxTokens)
	}

	if p.unknown == "" {
		p.unknown = UnknownReject
	}

	if p.unknown != UnknownReject && p.unknown != UnknownSkip {
		return nil, fmt.Errorf("phonemize: unknown character policy %q", p.unknown)
	}

	if p.vocab == nil {
		p.vocab = DefaultVocab()
	}

	if p.lexicon == nil {
		lex, err := DefaultLexicon()
		if err != nil {
			return nil, err
		}

		p.lexicon = lex
	}

	if err := p.lexicon.validate(p.vocab); err != nil {
		return nil, err
	}

	return p, nil
}

// MaxTokens is the largest accepted id count, pads excluded.
func (p *Phonemizer) MaxTokens() int { return p.maxTokens }

// Fingerprint identifies everything that shapes the output of Phonemize:
// the unknown character policy, the token limit, the vocabulary and the
// lexicon.
func (p *Phonemizer) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "unknown=%s\nmax=%d\nlexicon=%s\n", p.unknown, p.maxTokens, p.lexicon.Digest())
	for _, r := range p.vocab.Symbols() {
		id, _ := p.vocab.ID(r)
		fmt.Fprintf(h, "%c=%d\n", r, id)
	}

	return fmt.Sprintf("%x", h.Sum(nil))
}

// Vocab returns the symbol table in use.
func (p *Phonemizer) Vocab() *Vocab { return p.vocab }

// Phonemize converts text in the given language to token ids. It fails with
// a TokenizationError for empty text or rejected characters and with a
// LengthError when the ids exceed MaxTokens.
func (p *Phonemizer) Phonemize(input string, lang Language) (*Result, error) {
	res, err := p.convert(input, lang)
	if err != nil {
		return nil, err
	}

	if len(res.IDs) > p.maxTokens {
		return nil, &LengthError{Count: len(res.IDs), Limit: p.maxTokens}
	}

	return res, nil
}

// Tokenizer adapts the phonemizer for text.PrepareChunks. It reports the
// unbounded id count so callers can split text before the length check.
func (p *Phonemizer) Tokenizer(lang Language) text.Tokenizer {
	return text.TokenizerFunc(func(s string) ([]int64, error) {
		res, err := p.convert(s, lang)
		if err != nil {
			return nil, err
		}

		return res.IDs, nil
	})
}

func (p *Phonemizer) convert(input string, lang Language) (*Result, error) {
	if !lang.valid() {
		return nil, fmt.Errorf("%w %q", ErrUnsupportedLanguage, string(lang))
	}

	normalized, err := text.Normalize(input)
	if errors.Is(err, text.ErrEmptyText) {
		return nil, &TokenizationError{Reason: "empty text"}
	} else if err != nil {
		return nil, &TokenizationError{Reason: err.Error()}
	}

	normalized = text.ExpandNumbers(text.ExpandAbbreviations(normalized))

	c := converter{p: p, lang: lang}
	for _, seg := range splitSegments(normalized, p.vocab) {
		c.add(seg)
	}

	if len(c.unsupported) > 0 && p.unknown == UnknownReject {
		return nil, &TokenizationError{Reason: "unsupported characters", Unsupported: c.unsupported}
	}

	phonemes := c.b.String()

	ids := make([]int64, 0, len(phonemes))
	for _, r := range phonemes {
		id, ok := p.vocab.ID(r)
		if !ok {
			// Only custom lexicons or vocabularies can get here.
			return nil, &TokenizationError{Reason: "phoneme outside vocabulary", Unsupported: []rune{r}}
		}

		ids = append(ids, id)
	}

	if len(ids) == 0 {
		return nil, &TokenizationError{Reason: "no pronounceable text", Unsupported: c.unsupported}
	}

	return &Result{
		Text:     normalized,
		Phonemes: phonemes,
		IDs:      ids,
		Skipped:  c.unsupported,
	}, nil
}

// ---------------------------------------------------------------------------
// Segmentation
// ---------------------------------------------------------------------------

type segmentKind int

const (
	segWord segmentKind = iota
	segPunct
	segUnknown
)

type segment struct {
	kind        segmentKind
	text        string
	spaceBefore bool
}

// splitSegments splits normalized text into words, vocabulary punctuation and
// unknown characters. Hyphens and whitespace separate words.
func splitSegments(s string, vocab *Vocab) []segment {
	var (
		out   []segment
		word  strings.Builder
		space bool
	)

	flush := func() {
		if word.Len() > 0 {
			out = append(out, segment{kind: segWord, text: word.String(), spaceBefore: space})
			word.Reset()
			space = false
		}
	}

	for _, r := range s {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.Is(unicode.Mn, r) || r == '\'':
			word.WriteRune(r)
		case unicode.IsSpace(r) || r == '-':
			flush()

			space = true
		case vocab.Has(r):
			flush()
			out = append(out, segment{kind: segPunct, text: string(r), spaceBefore: space})
			space = false
		default:
			flush()
			out = append(out, segment{kind: segUnknown, text: string(r), spaceBefore: space})
		}
	}

	flush()

	return out
}

// ---------------------------------------------------------------------------
// Conversion
// ---------------------------------------------------------------------------

type converter struct {
	p           *Phonemizer
	lang        Language
	b           strings.Builder
	unsupported []rune
}

func (c *converter) reject(r rune) {
	if !slices.Contains(c.unsupported, r) {
		c.unsupported = append(c.unsupported, r)
	}
}

func (c *converter) emit(s string, spaceBefore bool) {
	if s == "" {
		return
	}

	if spaceBefore && c.b.Len() > 0 {
		c.b.WriteByte(' ')
	}

	c.b.WriteString(s)
}

func (c *converter) add(seg segment) {
	switch seg.kind {
	case segPunct:
		c.emit(seg.text, seg.spaceBefore)
	case segUnknown:
		for _, r := range seg.text {
			c.reject(r)
		}
	case segWord:
		for i, w := range c.splitDigits(seg.text) {
			c.emit(c.word(w), seg.spaceBefore || i > 0)
		}
	}
}

// splitDigits separates digit runs glued to letters ("mp3") and spells them.
func (c *converter) splitDigits(w string) []string {
	if !strings.ContainsFunc(w, unicode.IsDigit) {
		return []string{w}
	}

	var (
		parts []string
		cur   strings.Builder
	)

	rs := []rune(w)
	for i, r := range rs {
		if i > 0 && unicode.IsDigit(r) != unicode.IsDigit(rs[i-1]) {
			parts = append(parts, cur.String())
			cur.Reset()
		}

		cur.WriteRune(r)
	}

	parts = append(parts, cur.String())

	var out []string

	for _, part := range parts {
		if n, err := strconv.ParseInt(part, 10, 64); err == nil && unicode.IsDigit(rune(part[0])) {
			out = append(out, strings.Fields(text.NumberToWords(n))...)
			continue
		}

		out = append(out, part)
	}

	return out
}

// word returns the phonemes of one word, recording unsupported letters.
func (c *converter) word(w string) string {
	lower := strings.Trim(text.Lower(w, c.lang.Tag()), "'")
	if lower == "" {
		return ""
	}

	if p, ok := c.lookup(lower); ok {
		return p
	}

	folded := text.FoldDiacritics(lower)
	if p, ok := c.lookup(folded); ok {
		return p
	}

	var ascii strings.Builder

	for _, r := range folded {
		switch {
		case r >= 'a' && r <= 'z':
			ascii.WriteRune(r)
		case r == '\'':
		default:
			c.reject(r)
		}
	}

	letters := ascii.String()
	if letters == "" {
		return ""
	}

	if isAcronym(w) {
		return c.spellLetters(letters)
	}

	us := spellOut(letters)
	if c.lang == EnGB {
		return toBritish(us)
	}

	return us
}

// lookup tries the lexicon, then a possessive or plural of a known word.
func (c *converter) lookup(w string) (string, bool) {
	lex := c.p.lexicon
	if p, ok := lex.Lookup(w, c.lang); ok {
		return p, true
	}

	for _, suffix := range []string{"'s", "s"} {
		base, ok := strings.CutSuffix(w, suffix)
		if !ok || len(base) < 2 {
			continue
		}

		if p, ok := lex.Lookup(base, c.lang); ok {
			return p + pluralSound(p), true
		}
	}

	return "", false
}

func pluralSound(p string) string {
	rs := []rune(p)
	switch rs[len(rs)-1] {
	case 's', 'z', 'ʃ', 'ʒ', 'ʧ', 'ʤ':
		return "ᵻz"
	case 'p', 't', 'k', 'f', 'θ':
		return "s"
	}

	return "z"
}

// isAcronym reports whether w is an all-capitals word of two to five letters.
func isAcronym(w string) bool {
	n := 0

	for _, r := range w {
		if !unicode.IsUpper(r) {
			return false
		}

		n++
	}

	return n >= 2 && n <= 5
}

var letterNames = map[byte]string{
	'a': "ˈA", 'b': "bˈi", 'c': "sˈi", 'd': "dˈi", 'e': "ˈi", 'f': "ˈɛf", 'g': "ʤˈi",
	'h': "ˈAʧ", 'i': "ˈI", 'j': "ʤˈA", 'k': "kˈA", 'l': "ˈɛl", 'm': "ˈɛm", 'n': "ˈɛn",
	'o': "ˈO", 'p': "pˈi", 'q': "kjˈu", 'r': "ˈɑɹ", 's': "ˈɛs", 't': "tˈi", 'u': "jˈu",
	'v': "vˈi", 'w': "dˈʌbəljˌu", 'x': "ˈɛks", 'y': "wˈI", 'z': "zˈi",
}

// spellLetters reads an acronym letter by letter; only the last letter keeps
// primary stress.
func (c *converter) spellLetters(letters string) string {
	var b strings.Builder

	for i := range len(letters) {
		name := letterNames[letters[i]]
		if c.lang == EnGB {
			name = toBritish(name)
			if letters[i] == 'z' {
				name = "zˈɛd"
			}
		}

		if i < len(letters)-1 {
			name = strings.ReplaceAll(name, "ˈ", "ˌ")
		}

		b.WriteString(name)
	}

	return b.String()
}
