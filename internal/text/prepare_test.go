package text

import (
	"errors"
	"strings"
	"testing"
)

// wordTokenizer counts one token per whitespace-delimited word.
func wordTokenizer() Tokenizer {
	return TokenizerFunc(func(text string) ([]int64, error) {
		words := splitWords(text)

		ids := make([]int64, len(words))
		for i := range ids {
			ids[i] = int64(i + 1)
		}

		return ids, nil
	})
}

// ---------------------------------------------------------------------------
// PrepareText
// ---------------------------------------------------------------------------

func TestPrepareText(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"hello world", "hello world."},
		{"hello world.", "hello world."},
		{"really?", "really?"},
		{"count 3", "count 3."},
		{"  spaced   out\n text ", "spaced out text."},
		{"quoted “end”", "quoted “end”"},
		{"", ""},
	}

	for _, tt := range tests {
		if got := PrepareText(tt.in); got != tt.want {
			t.Errorf("PrepareText(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

// ---------------------------------------------------------------------------
// PrepareChunks
// ---------------------------------------------------------------------------

func TestPrepareChunks_SingleChunkShortText(t *testing.T) {
	chunks, err := PrepareChunks("hello world.", wordTokenizer(), 50)
	if err != nil {
		t.Fatalf("PrepareChunks error: %v", err)
	}

	if len(chunks) != 1 {
		t.Fatalf("PrepareChunks returned %d chunks, want 1", len(chunks))
	}

	c := chunks[0]
	if c.Text != "hello world." || c.NumTokens != 2 || c.NumWords != 2 || len(c.TokenIDs) != 2 {
		t.Fatalf("chunk = %+v", c)
	}
}

func TestPrepareChunks_GroupsSentences(t *testing.T) {
	chunks, err := PrepareChunks("One two. Three four. Five six.", wordTokenizer(), 4)
	if err != nil {
		t.Fatalf("PrepareChunks error: %v", err)
	}

	want := []string{"One two. Three four.", "Five six."}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks, want %d", len(chunks), len(want))
	}

	for i := range want {
		if chunks[i].Text != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i].Text, want[i])
		}
	}
}

func TestPrepareChunks_SplitsLongSentenceAtClauses(t *testing.T) {
	chunks, err := PrepareChunks("one two three, four five six", wordTokenizer(), 3)
	if err != nil {
		t.Fatalf("PrepareChunks error: %v", err)
	}

	want := []string{"one two three,", "four five six."}
	if len(chunks) != len(want) {
		t.Fatalf("got %d chunks %+v, want %d", len(chunks), chunks, len(want))
	}

	for i := range want {
		if chunks[i].Text != want[i] {
			t.Errorf("chunk[%d] = %q, want %q", i, chunks[i].Text, want[i])
		}
	}
}

func TestPrepareChunks_SplitsLongSentenceAtWords(t *testing.T) {
	chunks, err := PrepareChunks("a b c d e", wordTokenizer(), 2)
	if err != nil {
		t.Fatalf("PrepareChunks error: %v", err)
	}

	var got []string
	for _, c := range chunks {
		if c.NumTokens > 2 {
			t.Errorf("chunk %q has %d tokens, budget 2", c.Text, c.NumTokens)
		}

		got = append(got, c.Text)
	}

	if strings.Join(got, "|") != "a b.|c d.|e." {
		t.Fatalf("chunks = %q", got)
	}
}

func TestPrepareChunks_WordLongerThanBudget(t *testing.T) {
	tok := TokenizerFunc(func(text string) ([]int64, error) {
		return make([]int64, len(text)), nil
	})

	_, err := PrepareChunks("supercalifragilistic", tok, 5)
	if !errors.Is(err, errPieceTooLong) {
		t.Fatalf("err = %v, want errPieceTooLong", err)
	}
}

func TestPrepareChunks_TokenizerError(t *testing.T) {
	boom := errors.New("boom")
	tok := TokenizerFunc(func(string) ([]int64, error) { return nil, boom })

	_, err := PrepareChunks("hello.", tok, 5)
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestPrepareChunks_InvalidInput(t *testing.T) {
	if _, err := PrepareChunks("", wordTokenizer(), 50); !errors.Is(err, ErrEmptyText) {
		t.Errorf("empty: err = %v", err)
	}

	if _, err := PrepareChunks("   \n\t  ", wordTokenizer(), 50); !errors.Is(err, ErrEmptyText) {
		t.Errorf("whitespace: err = %v", err)
	}

	if _, err := PrepareChunks("hi.", wordTokenizer(), 0); err == nil {
		t.Error("maxTokens 0 should fail")
	}
}
