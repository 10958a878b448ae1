package phonemize

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTokenization marks text that cannot be turned into a token sequence.
	ErrTokenization = errors.New("phonemize: tokenization failed")
	// ErrLengthExceeded marks token sequences longer than the model accepts.
	ErrLengthExceeded = errors.New("phonemize: token limit exceeded")
	// ErrUnsupportedLanguage is returned for language tags without rules.
	ErrUnsupportedLanguage = fmt.Errorf("%w: unsupported language", ErrTokenization)
)

// TokenizationError describes why text could not be tokenized. Unsupported
// lists the offending runes in order of first appearance.
type TokenizationError struct {
	Reason      string
	Unsupported []rune
}

func (e *TokenizationError) Error() string {
	if len(e.Unsupported) == 0 {
		return "phonemize: " + e.Reason
	}

	quoted := make([]string, len(e.Unsupported))
	for i, r := range e.Unsupported {
		quoted[i] = fmt.Sprintf("%q", r)
	}

	return fmt.Sprintf("phonemize: %s: %s", e.Reason, strings.Join(quoted, ", "))
}

func (e *TokenizationError) Unwrap() error { return ErrTokenization }

// LengthError reports a token count above the configured limit.
type LengthError struct {
	Count int
	Limit int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("phonemize: %d tokens exceeds limit of %d", e.Count, e.Limit)
}

func (e *LengthError) Unwrap() error { return ErrLengthExceeded }
