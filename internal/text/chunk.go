package text

import (
	"strings"
	"unicode/utf8"
)

// ChunkBySentence packs whole sentences into chunks of at most maxChars
// bytes. A sentence longer than maxChars becomes its own chunk; maxChars <= 0
// returns the text unchanged.
func ChunkBySentence(text string, maxChars int) []string {
	if maxChars <= 0 {
		return []string{text}
	}

	sentences := splitSentences(text)
	if len(sentences) <= 1 {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
	)

	for _, s := range sentences {
		if current.Len() == 0 {
			current.WriteString(s)
			continue
		}

		if current.Len()+1+len(s) > maxChars {
			chunks = append(chunks, current.String())
			current.Reset()
			current.WriteString(s)
		} else {
			current.WriteByte(' ')
			current.WriteString(s)
		}
	}

	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}

	return chunks
}

// splitSentences splits text after sentence-ending punctuation. A run of
// terminators ("?!", "...") and any closing quotes or brackets that follow it
// stay with the sentence they end.
func splitSentences(text string) []string {
	var sentences []string

	runes := []rune(text)
	start, pos := 0, 0

	for i := 0; i < len(runes); i++ {
		pos += utf8.RuneLen(runes[i])
		if !isTerminator(runes[i]) {
			continue
		}

		for i+1 < len(runes) && (isTerminator(runes[i+1]) || isCloser(runes[i+1])) {
			i++
			pos += utf8.RuneLen(runes[i])
		}

		if s := strings.TrimSpace(text[start:pos]); s != "" {
			sentences = append(sentences, s)
		}
		start = pos
	}

	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}

	return sentences
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '…':
		return true
	}
	return false
}

func isCloser(r rune) bool {
	switch r {
	case '"', '\'', '”', '’', ')', ']', '»':
		return true
	}
	return false
}
