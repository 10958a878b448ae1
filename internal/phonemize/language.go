package phonemize

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// Language selects the lexicon column and rule variant used for
// grapheme-to-phoneme conversion.
type Language string

const (
	EnUS Language = "en-us"
	EnGB Language = "en-gb"
)

// Languages returns every supported language in a fixed order.
func Languages() []Language {
	return []Language{EnUS, EnGB}
}

// ParseLanguage accepts BCP 47 style tags ("en-US", "en_gb"), the
// single-letter voice codes ("a", "b") and plain names ("american").
func ParseLanguage(s string) (Language, error) {
	switch strings.ReplaceAll(strings.ToLower(strings.TrimSpace(s)), "_", "-") {
	case "en-us", "en", "us", "a", "american":
		return EnUS, nil
	case "en-gb", "gb", "uk", "en-uk", "b", "british":
		return EnGB, nil
	}

	return "", fmt.Errorf("%w %q", ErrUnsupportedLanguage, s)
}

// LanguageForVoice derives the language from the first character of a voice
// name, as in "af_heart" (en-US) or "bm_george" (en-GB).
func LanguageForVoice(voice string) (Language, error) {
	if voice == "" {
		return "", fmt.Errorf("%w: empty voice name", ErrUnsupportedLanguage)
	}

	switch voice[0] {
	case 'a':
		return EnUS, nil
	case 'b':
		return EnGB, nil
	}

	return "", fmt.Errorf("%w: no language for voice %q", ErrUnsupportedLanguage, voice)
}

// Code is the single-letter voice prefix for the language.
func (l Language) Code() byte {
	if l == EnGB {
		return 'b'
	}

	return 'a'
}

// Tag returns the BCP 47 tag used for case mapping.
func (l Language) Tag() language.Tag {
	if l == EnGB {
		return language.BritishEnglish
	}

	return language.AmericanEnglish
}

func (l Language) valid() bool {
	return l == EnUS || l == EnGB
}
