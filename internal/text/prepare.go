package text

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Tokenizer is the minimal interface required by PrepareChunks. The
// phonemizer satisfies it through TokenizerFunc.
type Tokenizer interface {
	Encode(text string) ([]int64, error)
}

// TokenizerFunc adapts a function to Tokenizer.
type TokenizerFunc func(text string) ([]int64, error)

func (f TokenizerFunc) Encode(text string) ([]int64, error) { return f(text) }

// ChunkMetadata holds a prepared text chunk and its token ids.
type ChunkMetadata struct {
	Text      string
	TokenIDs  []int64
	NumTokens int
	NumWords  int
}

// PrepareText collapses whitespace and adds a trailing period when the text
// ends in a letter or digit, so every chunk closes with a cadence mark.
func PrepareText(input string) string {
	s := CollapseSpace(input)

	if s != "" {
		last, _ := utf8.DecodeLastRuneInString(s)
		if unicode.IsLetter(last) || unicode.IsDigit(last) {
			s += "."
		}
	}

	return s
}

// PrepareChunks splits input into chunks of at most maxTokens token ids.
// Sentences are grouped greedily; a sentence that alone exceeds the budget is
// split at clause punctuation and then between words. A single word that
// still exceeds the budget is returned as an error from tok.
func PrepareChunks(input string, tok Tokenizer, maxTokens int) ([]ChunkMetadata, error) {
	if strings.TrimSpace(input) == "" {
		return nil, ErrEmptyText
	}

	if maxTokens <= 0 {
		return nil, fmt.Errorf("text: maxTokens must be > 0, got %d", maxTokens)
	}

	c := chunker{tok: tok, maxTokens: maxTokens}

	for _, sent := range splitSentences(input) {
		if err := c.addSentence(sent); err != nil {
			return nil, err
		}
	}

	if err := c.flush(); err != nil {
		return nil, err
	}

	return c.chunks, nil
}

type chunker struct {
	tok       Tokenizer
	maxTokens int
	pending   []string
	chunks    []ChunkMetadata
}

func (c *chunker) count(s string) (int, error) {
	ids, err := c.tok.Encode(PrepareText(s))
	if err != nil {
		return 0, err
	}

	return len(ids), nil
}

func (c *chunker) fits(parts []string) (bool, error) {
	n, err := c.count(strings.Join(parts, " "))
	if err != nil {
		return false, err
	}

	return n <= c.maxTokens, nil
}

func (c *chunker) addSentence(sent string) error {
	ok, err := c.fits(append(append([]string(nil), c.pending...), sent))
	if err != nil {
		return fmt.Errorf("encode %q: %w", sent, err)
	}

	if ok {
		c.pending = append(c.pending, sent)
		return nil
	}

	if err := c.flush(); err != nil {
		return err
	}

	ok, err = c.fits([]string{sent})
	if err != nil {
		return fmt.Errorf("encode %q: %w", sent, err)
	}

	if ok {
		c.pending = append(c.pending, sent)
		return nil
	}

	return c.addPieces(splitClauses(sent))
}

// addPieces packs clause or word pieces of an oversized sentence.
func (c *chunker) addPieces(pieces []string) error {
	for _, p := range pieces {
		ok, err := c.fits(append(append([]string(nil), c.pending...), p))
		if err != nil {
			return fmt.Errorf("encode %q: %w", p, err)
		}

		if ok {
			c.pending = append(c.pending, p)
			continue
		}

		if err := c.flush(); err != nil {
			return err
		}

		ok, err = c.fits([]string{p})
		if err != nil {
			return fmt.Errorf("encode %q: %w", p, err)
		}

		if ok {
			c.pending = append(c.pending, p)
			continue
		}

		words := strings.Fields(p)
		if len(words) <= 1 {
			return fmt.Errorf("text: %q does not fit in %d tokens: %w", p, c.maxTokens, errPieceTooLong)
		}

		if err := c.addPieces(words); err != nil {
			return err
		}
	}

	return nil
}

var errPieceTooLong = errors.New("piece exceeds token budget")

func (c *chunker) flush() error {
	if len(c.pending) == 0 {
		return nil
	}

	joined := strings.Join(c.pending, " ")
	prepared := PrepareText(joined)

	ids, err := c.tok.Encode(prepared)
	if err != nil {
		return fmt.Errorf("encode %q: %w", prepared, err)
	}

	c.chunks = append(c.chunks, ChunkMetadata{
		Text:      prepared,
		TokenIDs:  ids,
		NumTokens: len(ids),
		NumWords:  len(splitWords(joined)),
	})
	c.pending = c.pending[:0]

	return nil
}

// splitClauses splits after , ; : and dashes, keeping the mark.
func splitClauses(s string) []string {
	var (
		out   []string
		start int
	)

	for i, r := range s {
		if r == ',' || r == ';' || r == ':' || r == '—' {
			end := i + utf8.RuneLen(r)
			if p := strings.TrimSpace(s[start:end]); p != "" {
				out = append(out, p)
			}

			start = end
		}
	}

	if p := strings.TrimSpace(s[start:]); p != "" {
		out = append(out, p)
	}

	return out
}

// splitWords splits text into non-empty word tokens on whitespace boundaries.
func splitWords(s string) []string {
	return strings.FieldsFunc(s, unicode.IsSpace)
}
