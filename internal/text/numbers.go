package text

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	onesWords = [...]string{
		"zero", "one", "two", "three", "four", "five", "six", "seven", "eight", "nine",
		"ten", "eleven", "twelve", "thirteen", "fourteen", "fifteen", "sixteen",
		"seventeen", "eighteen", "nineteen",
	}
	tensWords = [...]string{
		"", "", "twenty", "thirty", "forty", "fifty", "sixty", "seventy", "eighty", "ninety",
	}
	scaleWords = [...]struct {
		value int64
		name  string
	}{
		{1_000_000_000_000, "trillion"},
		{1_000_000_000, "billion"},
		{1_000_000, "million"},
		{1_000, "thousand"},
	}
	ordinalIrregular = map[string]string{
		"one": "first", "two": "second", "three": "third", "five": "fifth",
		"eight": "eighth", "nine": "ninth", "twelve": "twelfth",
	}
)

// NumberToWords spells out n in English words.
func NumberToWords(n int64) string {
	if n < 0 {
		return "minus " + NumberToWords(-n)
	}

	if n < 20 {
		return onesWords[n]
	}

	if n < 100 {
		w := tensWords[n/10]
		if n%10 != 0 {
			w += " " + onesWords[n%10]
		}

		return w
	}

	if n < 1000 {
		w := onesWords[n/100] + " hundred"
		if n%100 != 0 {
			w += " " + NumberToWords(n%100)
		}

		return w
	}

	for _, s := range scaleWords {
		if n >= s.value {
			w := NumberToWords(n/s.value) + " " + s.name
			if n%s.value != 0 {
				w += " " + NumberToWords(n%s.value)
			}

			return w
		}
	}

	return strconv.FormatInt(n, 10)
}

// OrdinalToWords spells out n as an ordinal: 21 becomes "twenty first".
func OrdinalToWords(n int64) string {
	w := NumberToWords(n)

	i := strings.LastIndexByte(w, ' ')
	head, last := w[:i+1], w[i+1:]

	switch {
	case ordinalIrregular[last] != "":
		last = ordinalIrregular[last]
	case strings.HasSuffix(last, "y"):
		last = strings.TrimSuffix(last, "y") + "ieth"
	default:
		last += "th"
	}

	return head + last
}

// YearToWords reads a four-digit year the way it is spoken: 1984 becomes
// "nineteen eighty four", 2005 "two thousand five".
func YearToWords(n int64) string {
	if n < 1000 || n > 9999 || (n >= 2000 && n < 2010) {
		return NumberToWords(n)
	}

	hi, lo := n/100, n%100

	switch {
	case lo == 0 && hi%10 == 0:
		return NumberToWords(n)
	case lo == 0:
		return NumberToWords(hi) + " hundred"
	case lo < 10:
		return NumberToWords(hi) + " oh " + onesWords[lo]
	default:
		return NumberToWords(hi) + " " + NumberToWords(lo)
	}
}

var (
	reCurrency = regexp.MustCompile(`([$£€])(\d[\d,]*)(?:\.(\d{1,2}))?\b`)
	rePercent  = regexp.MustCompile(`(\d[\d,]*(?:\.\d+)?)%`)
	reOrdinal  = regexp.MustCompile(`\b(\d+)(st|nd|rd|th)\b`)
	reDecimal  = regexp.MustCompile(`\b(\d[\d,]*)\.(\d+)\b`)
	reYear     = regexp.MustCompile(`\b(1[1-9]\d\d|20\d\d)\b`)
	reNegative = regexp.MustCompile(`(^|\s)-(\d)`)
	reInteger  = regexp.MustCompile(`\b(\d{1,3}(?:,\d{3})+|\d+)\b`)

	currencyNames = map[string][2]string{
		"$": {"dollar", "cent"},
		"£": {"pound", "penny"},
		"€": {"euro", "cent"},
	}
)

// ExpandNumbers rewrites digits as words: currency, percentages, ordinals,
// decimals, years and plain integers with optional thousands separators and
// sign.
func ExpandNumbers(s string) string {
	s = reNegative.ReplaceAllString(s, "${1}minus ${2}")

	s = reCurrency.ReplaceAllStringFunc(s, func(m string) string {
		sub := reCurrency.FindStringSubmatch(m)
		names := currencyNames[sub[1]]

		whole, ok := parseGrouped(sub[2])
		if !ok {
			return spellDigits(sub[2]) + " " + plural(names[0], 0)
		}

		out := NumberToWords(whole) + " " + plural(names[0], whole)
		if sub[3] != "" {
			frac, _ := strconv.ParseInt((sub[3] + "0")[:2], 10, 64)
			if frac > 0 {
				out += " and " + NumberToWords(frac) + " " + plural(names[1], frac)
			}
		}

		return out
	})

	s = rePercent.ReplaceAllStringFunc(s, func(m string) string {
		return spellDecimal(strings.TrimSuffix(m, "%")) + " percent"
	})

	s = reOrdinal.ReplaceAllStringFunc(s, func(m string) string {
		sub := reOrdinal.FindStringSubmatch(m)
		n, ok := parseGrouped(sub[1])
		if !ok {
			return spellDigits(sub[1])
		}

		return OrdinalToWords(n)
	})

	s = reDecimal.ReplaceAllStringFunc(s, spellDecimal)

	s = reYear.ReplaceAllStringFunc(s, func(m string) string {
		n, _ := strconv.ParseInt(m, 10, 64)
		return YearToWords(n)
	})

	return reInteger.ReplaceAllStringFunc(s, readNumber)
}

// readNumber spells a digit run as a number, or digit by digit when it is
// too large to be read as one.
func readNumber(m string) string {
	n, ok := parseGrouped(m)
	if !ok {
		return spellDigits(m)
	}

	return NumberToWords(n)
}

// spellDigits reads every digit on its own: "4096" becomes
// "four zero nine six". Separators are dropped.
func spellDigits(m string) string {
	digits := make([]string, 0, len(m))
	for _, d := range m {
		if d >= '0' && d <= '9' {
			digits = append(digits, onesWords[d-'0'])
		}
	}

	return strings.Join(digits, " ")
}

// spellDecimal reads "3.14" as "three point one four".
func spellDecimal(m string) string {
	whole, frac, ok := strings.Cut(m, ".")

	out := readNumber(whole)
	if !ok {
		return out
	}

	digits := make([]string, 0, len(frac))
	for _, d := range frac {
		digits = append(digits, onesWords[d-'0'])
	}

	return out + " point " + strings.Join(digits, " ")
}

// maxSpoken is the largest value read as a number; longer runs are read
// digit by digit.
const maxSpoken = 999_999_999_999_999

// parseGrouped parses digits with optional thousands separators. ok is
// false when the value is above maxSpoken or does not parse.
func parseGrouped(s string) (int64, bool) {
	n, err := strconv.ParseInt(strings.ReplaceAll(s, ",", ""), 10, 64)
	if err != nil || n < 0 || n > maxSpoken {
		return 0, false
	}

	return n, true
}

func plural(word string, n int64) string {
	if n == 1 {
		return word
	}

	if word == "penny" {
		return "pence"
	}

	return word + "s"
}

var (
	reAbbreviation = regexp.MustCompile(`\b(Mrs|Mr|Ms|Dr|Prof|St|Jr|Sr|vs|etc|e\.g|i\.e)\.`)

	abbreviations = map[string]string{
		"Mr":   "Mister",
		"Mrs":  "Missus",
		"Ms":   "Miz",
		"Dr":   "Doctor",
		"Prof": "Professor",
		"St":   "Saint",
		"Jr":   "Junior",
		"Sr":   "Senior",
		"vs":   "versus",
		"etc":  "et cetera.",
		"e.g":  "for example",
		"i.e":  "that is",
	}
)

// ExpandAbbreviations replaces common English abbreviations with their
// spoken forms and a lone "&" with "and". Matching is case sensitive.
func ExpandAbbreviations(s string) string {
	s = reAbbreviation.ReplaceAllStringFunc(s, func(m string) string {
		return abbreviations[strings.TrimSuffix(m, ".")]
	})

	return strings.ReplaceAll(s, " & ", " and ")
}
