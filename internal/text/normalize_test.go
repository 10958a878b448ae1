package text

import (
	"errors"
	"testing"

	"golang.org/x/text/language"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{
			name:  "passthrough clean text",
			input: "Hello world",
			want:  "Hello world",
		},
		{
			name:  "trims leading and trailing whitespace",
			input: "  Hello world  ",
			want:  "Hello world",
		},
		{
			name:  "collapses newlines and tabs",
			input: "line one\r\nline\ttwo\n\nthree",
			want:  "line one line two three",
		},
		{
			name:  "curly apostrophe becomes ascii",
			input: "don’t",
			want:  "don't",
		},
		{
			name:  "ellipsis expands to dots",
			input: "wait…",
			want:  "wait...",
		},
		{
			name:  "guillemets become curly quotes",
			input: "«oui»",
			want:  "“oui”",
		},
		{
			name:  "en dash becomes hyphen",
			input: "1–2",
			want:  "1-2",
		},
		{
			name:  "em dash is kept",
			input: "yes—no",
			want:  "yes—no",
		},
		{
			name:  "fullwidth letters fold",
			input: "ＡＢＣ",
			want:  "ABC",
		},
		{
			name:  "ligature folds",
			input: "ﬁne",
			want:  "fine",
		},
		{
			name:    "empty",
			input:   "",
			wantErr: ErrEmptyText,
		},
		{
			name:    "whitespace only",
			input:   " \t\n ",
			wantErr: ErrEmptyText,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Normalize(%q) error = %v, want %v", tt.input, err, tt.wantErr)
				}

				return
			}

			if err != nil {
				t.Fatalf("Normalize(%q) unexpected error: %v", tt.input, err)
			}

			if got != tt.want {
				t.Fatalf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFoldDiacritics(t *testing.T) {
	for in, want := range map[string]string{
		"café":     "cafe",
		"naïve":    "naive",
		"Ångström": "Angstrom",
		"plain":    "plain",
	} {
		if got := FoldDiacritics(in); got != want {
			t.Errorf("FoldDiacritics(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestLower(t *testing.T) {
	if got := Lower("HELLO World", language.AmericanEnglish); got != "hello world" {
		t.Fatalf("Lower = %q", got)
	}
}
