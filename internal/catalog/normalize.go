package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize lowercases s, strips diacritics and collapses whitespace so that
// "Tornillos  URGENTES" and "tornillos urgentes" compare equal.
func Normalize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// ContainsWord reports whether kw occurs in text starting on a word boundary.
// Both arguments are expected to be normalized. A prefix match is enough, so
// "tornillo" is found in "tornillos".
func ContainsWord(text, kw string) bool {
	if kw == "" {
		return false
	}
	from := 0
	for {
		i := strings.Index(text[from:], kw)
		if i < 0 {
			return false
		}
		pos := from + i
		if pos == 0 || !isWordByte(text[pos-1]) {
			return true
		}
		from = pos + 1
		if from >= len(text) {
			return false
		}
	}
}

func isWordByte(b byte) bool {
	return b == '_' || b >= 0x80 || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z') || ('0' <= b && b <= '9')
}

func normalizeAll(words []string) []string {
	if len(words) == 0 {
		return words
	}
	out := make([]string, 0, len(words))
	for _, w := range words {
		if n := Normalize(w); n != "" {
			out = append(out, n)
		}
	}
	return out
}
