package bm25

import (
	"strings"
	"unicode"
)

// minTokenLen filters short function words ("le", "de", "et"...) that carry
// no ranking signal in the corpus languages.
const minTokenLen = 3

// Tokenize lowercases, strips punctuation and drops tokens shorter than
// minTokenLen runes. The same normalization is applied to documents and
// queries so term statistics line up.
func Tokenize(s string) []string {
	if s == "" {
		return nil
	}
	out := make([]string, 0, 24)
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		token := b.String()
		b.Reset()
		if len([]rune(token)) >= minTokenLen {
			out = append(out, token)
		}
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		flush()
	}
	flush()
	return out
}
