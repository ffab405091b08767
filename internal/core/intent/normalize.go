package intent

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// normalizeText lowercases, strips diacritics, keeps only letters, digits,
// spaces, '?' and '!', and collapses runs of whitespace. The rule tables
// match against this canonical form only.
func normalizeText(s string) string {
	s = strings.ToLower(s)

	// NFD-decompose so combining marks can be dropped.
	decomposed := norm.NFD.String(s)

	var b strings.Builder
	b.Grow(len(decomposed))
	lastSpace := true
	for _, r := range decomposed {
		switch {
		case unicode.Is(unicode.Mn, r):
			// combining mark: skip
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '?' || r == '!':
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// drop everything else
		}
	}
	return strings.TrimSpace(b.String())
}

func words(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Fields(s)
}
