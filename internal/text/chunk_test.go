package text

import (
	"slices"
	"strings"
	"testing"
)

func TestChunkBySentence(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		maxChars int
		want     []string
	}{
		{"fits in one chunk", "The kettle hissed. Tea was ready.", 80, []string{"The kettle hissed. Tea was ready."}},
		{"one sentence per chunk", "Stop. Look! Listen?", 7, []string{"Stop.", "Look!", "Listen?"}},
		{"packs neighbours", "A. B. C. D. E.", 6, []string{"A. B.", "C. D.", "E."}},
		{"collapses gaps between sentences", "Left.   Right.", 6, []string{"Left.", "Right."}},
		{"terminator runs stay together", "Really?! Yes... Fine.", 9, []string{"Really?!", "Yes...", "Fine."}},
		{"unicode ellipsis", "Wait… Go.", 6, []string{"Wait…", "Go."}},
		{"closing quote stays with sentence", `He said "no." Then left.`, 14, []string{`He said "no."`, "Then left."}},
		{"curly quote and bracket", "(Quietly.) “Now!” Done.", 10, []string{"(Quietly.)", "“Now!”", "Done."}},
		{"unterminated tail kept", "First part. and the rest", 12, []string{"First part.", "and the rest"}},
		{"no terminator", "just words here", 4, []string{"just words here"}},
		{"long sentence kept whole", "This sentence is far too long.", 5, []string{"This sentence is far too long."}},
		{"zero limit disables splitting", "One. Two.", 0, []string{"One. Two."}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChunkBySentence(tt.text, tt.maxChars)
			if !slices.Equal(got, tt.want) {
				t.Fatalf("ChunkBySentence(%q, %d) = %q, want %q", tt.text, tt.maxChars, got, tt.want)
			}
		})
	}
}

// ----------------------------------------------------------------------------

func TestChunkBySentenceRespectsLimit(t *testing.T) {
	input := strings.Repeat("Short one. Next up! ", 20)

	for _, limit := range []int{12, 30, 64} {
		for i, c := range ChunkBySentence(input, limit) {
			if strings.TrimSpace(c) == "" {
				t.Fatalf("limit %d: chunk %d is blank", limit, i)
			}
			if len(c) > limit {
				t.Fatalf("limit %d: chunk %d has %d bytes: %q", limit, i, len(c), c)
			}
		}
	}
}
