package text

import (
	"errors"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ErrEmptyText is returned when the input text is empty or whitespace-only.
var ErrEmptyText = errors.New("text is empty")

// typographic maps punctuation variants onto the forms the phoneme
// vocabulary carries.
var typographic = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"´", "'",
	"`", "'",
	"–", "-",
	"‑", "-",
	"‒", "-",
	"―", "—",
	"«", "“",
	"»", "”",
	"„", "“",
	"…", "...",
)

// Normalize prepares raw input text for phonemization: NFKC composition,
// typographic punctuation unified, line endings and runs of whitespace
// collapsed to single spaces. Empty or whitespace-only input is rejected.
func Normalize(s string) (string, error) {
	s = typographic.Replace(s)
	s = norm.NFKC.String(s)
	s = CollapseSpace(s)

	if s == "" {
		return "", ErrEmptyText
	}

	return s, nil
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// FoldDiacritics strips combining marks: "café" becomes "cafe".
func FoldDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}

	return out
}

// Lower lowercases s with the casing rules of tag.
func Lower(s string, tag language.Tag) string {
	return cases.Lower(tag).String(s)
}
