package voice

import (
	"errors"
	"fmt"
	"strings"

	"github.com/sahilm/fuzzy"
)

var (
	// ErrNotFound reports a voice name absent from the store.
	ErrNotFound = errors.New("voice not found")
	// ErrFormat reports a malformed voice archive. Loading never returns a
	// partial store alongside it.
	ErrFormat = errors.New("voice archive format error")
)

// NotFoundError names the missing voice and, when the store has similar
// names, up to three suggestions. Suggestions are never substituted.
type NotFoundError struct {
	Name        string
	Suggestions []string
}

func (e *NotFoundError) Error() string {
	msg := fmt.Sprintf("voice: %q not found", e.Name)
	if len(e.Suggestions) > 0 {
		msg += " (did you mean " + strings.Join(e.Suggestions, ", ") + "?)"
	}

	return msg
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

const maxSuggestions = 3

func newNotFound(name string, names []string) *NotFoundError {
	var suggestions []string

	if name != "" {
		for _, m := range fuzzy.Find(name, names) {
			suggestions = append(suggestions, m.Str)
			if len(suggestions) == maxSuggestions {
				break
			}
		}
	}

	return &NotFoundError{Name: name, Suggestions: suggestions}
}

func formatErrorf(format string, args ...any) error {
	return fmt.Errorf("voice: %w: %s", ErrFormat, fmt.Sprintf(format, args...))
}
