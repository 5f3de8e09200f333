package capture

import (
	"strings"
	"unicode"
)

// Normalize strips the punctuation that speech recognizers tend to
// mis-tokenize out of a finalized fragment and collapses runs of whitespace.
// Letters (including Turkish diacritics), digits and apostrophes survive —
// apostrophes carry Turkish proper-noun suffixes ("İstanbul'da").
func Normalize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsSpace(r), r == '\'':
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
