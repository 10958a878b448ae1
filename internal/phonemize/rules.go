package phonemize

import "strings"

// vowelSymbols are phoneme symbols that can carry stress.
const vowelSymbols = "AIOQWYaeiouæɐɑɒɔəɛɜɪʊʌᵊ"

func isVowelSymbol(r rune) bool { return strings.ContainsRune(vowelSymbols, r) }

func isVowelLetter(c byte) bool {
	switch c {
	case 'a', 'e', 'i', 'o', 'u':
		return true
	}

	return false
}

// digraph is a letter sequence with a fixed pronunciation.
type digraph struct {
	letters string
	sound   string
}

// digraphs are tried longest first at every position.
var digraphs = []digraph{
	{"tion", "ʃən"}, {"sion", "ʒən"}, {"ture", "ʧəɹ"},
	{"tch", "ʧ"}, {"sch", "sk"}, {"igh", "I"}, {"air", "ɛɹ"}, {"ear", "ɪɹ"}, {"eer", "ɪɹ"},
	{"ch", "ʧ"}, {"sh", "ʃ"}, {"th", "θ"}, {"ph", "f"}, {"wh", "w"}, {"ck", "k"},
	{"ng", "ŋ"}, {"qu", "kw"},
	{"ee", "i"}, {"ea", "i"}, {"oo", "u"}, {"ou", "W"}, {"oi", "Y"}, {"oy", "Y"},
	{"ai", "A"}, {"ay", "A"}, {"au", "ɔ"}, {"aw", "ɔ"}, {"ei", "A"}, {"oa", "O"},
	{"ue", "u"}, {"ew", "u"},
	{"ar", "ɑɹ"}, {"or", "ɔɹ"}, {"er", "ɜɹ"}, {"ir", "ɜɹ"}, {"ur", "ɜɹ"},
}

// spellOut converts a lowercase ASCII word to en-US phonemes with letter to
// sound rules and marks primary stress on the first vowel.
func spellOut(word string) string {
	var b strings.Builder

	n := len(word)
	// vowel-consonant-e: "make", "bike", "note", "cute"
	magic := n >= 3 && word[n-1] == 'e' && !isVowelLetter(word[n-2]) && isVowelLetter(word[n-3]) &&
		(n == 3 || !isVowelLetter(word[n-4]))

	for i := 0; i < n; {
		if s, size, ok := matchEdge(word, i); ok {
			b.WriteString(s)
			i += size

			continue
		}

		if s, size, ok := matchDigraph(word, i); ok {
			b.WriteString(s)
			i += size

			continue
		}

		c := word[i]
		if i > 0 && c == word[i-1] && !isVowelLetter(c) {
			i++
			continue
		}

		b.WriteString(letterSound(word, i, magic && i == n-3))
		i++
	}

	return addStress(b.String())
}

// matchEdge handles patterns tied to the start or end of a word.
func matchEdge(word string, i int) (string, int, bool) {
	rest := word[i:]

	switch {
	case i == 0 && strings.HasPrefix(rest, "kn"):
		return "n", 2, true
	case i == 0 && strings.HasPrefix(rest, "wr"):
		return "ɹ", 2, true
	case rest == "le" && i > 0 && !isVowelLetter(word[i-1]):
		return "əl", 2, true
	case rest == "er" && i > 0:
		return "əɹ", 2, true
	case rest == "ous":
		return "əs", 3, true
	case rest == "ow" || rest == "owe":
		return "O", len(rest), true
	case rest == "ows" || rest == "owes":
		return "Oz", len(rest), true
	case rest == "owed":
		return "Od", 4, true
	case rest == "ie":
		return "I", 2, true
	case rest == "ey":
		return "i", 2, true
	case strings.HasPrefix(rest, "gh"):
		if i == 0 {
			return "ɡ", 2, true
		}

		return "", 2, true
	case strings.HasPrefix(rest, "ow"):
		return "W", 2, true
	case strings.HasPrefix(rest, "ie"):
		return "i", 2, true
	}

	return "", 0, false
}

func matchDigraph(word string, i int) (string, int, bool) {
	rest := word[i:]
	for _, d := range digraphs {
		if strings.HasPrefix(rest, d.letters) {
			return d.sound, len(d.letters), true
		}
	}

	return "", 0, false
}

// letterSound returns the sound of the single letter word[i]. long is set
// for the vowel of a vowel-consonant-e ending.
func letterSound(word string, i int, long bool) string {
	n := len(word)
	c := word[i]

	next := byte(0)
	if i+1 < n {
		next = word[i+1]
	}

	soft := next == 'e' || next == 'i' || next == 'y'

	switch c {
	case 'a':
		if long {
			return "A"
		}

		return "æ"
	case 'e':
		if i == n-1 && n > 2 && strings.ContainsAny(word[:i], "aeiouy") {
			return ""
		}

		if long {
			return "i"
		}

		return "ɛ"
	case 'i':
		if long {
			return "I"
		}

		return "ɪ"
	case 'o':
		if long || i == n-1 {
			return "O"
		}

		return "ɑ"
	case 'u':
		if long {
			return "ju"
		}

		return "ʌ"
	case 'y':
		switch {
		case i == 0:
			return "j"
		case i == n-1 && strings.ContainsAny(word[:i], "aeiou"):
			return "i"
		case i == n-1:
			return "I"
		}

		return "ɪ"
	case 'c':
		if soft {
			return "s"
		}

		return "k"
	case 'g':
		if soft && i > 0 {
			return "ʤ"
		}

		return "ɡ"
	case 'x':
		if i == 0 {
			return "z"
		}

		return "ks"
	case 'j':
		return "ʤ"
	case 'q':
		return "k"
	case 'r':
		return "ɹ"
	}

	return string(c)
}

// addStress inserts a primary stress mark before the first vowel symbol.
func addStress(p string) string {
	for i, r := range p {
		if isVowelSymbol(r) {
			return p[:i] + "ˈ" + p[i:]
		}
	}

	return p
}

// rhoticBritish maps an r-coloured vowel to its non-rhotic form when the r is
// not followed by a vowel.
var rhoticBritish = map[rune]string{
	'ɑ': "ɑː",
	'ɔ': "ɔː",
	'ɜ': "ɜː",
	'ə': "ə",
	'ɛ': "ɛː",
	'ɪ': "ɪə",
}

// toBritish derives an en-GB pronunciation from an en-US one.
func toBritish(us string) string {
	rs := []rune(us)
	out := make([]rune, 0, len(rs)+2)

	for i := 0; i < len(rs); i++ {
		r := rs[i]

		if i+1 < len(rs) && rs[i+1] == 'ɹ' && (i+2 == len(rs) || !isVowelSymbol(rs[i+2])) {
			if repl, ok := rhoticBritish[r]; ok {
				out = append(out, []rune(repl)...)
				i++

				continue
			}
		}

		switch {
		case r == 'O':
			r = 'Q'
		case r == 'ɑ' && (i+1 == len(rs) || rs[i+1] != 'ː'):
			r = 'ɒ'
		case r == 'ɾ':
			r = 't'
		}

		out = append(out, r)
	}

	return string(out)
}
