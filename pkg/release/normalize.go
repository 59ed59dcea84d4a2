package release

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// dashVariants are folded to an ASCII hyphen-minus.
var dashVariants = map[rune]struct{}{
	'\u2010': {}, // hyphen
	'\u2011': {}, // non-breaking hyphen
	'\u2012': {}, // figure dash
	'\u2013': {}, // en dash
	'\u2014': {}, // em dash
	'\u2015': {}, // horizontal bar
	'\u2212': {}, // minus sign
	'\uFE58': {}, // small em dash
	'\uFE63': {}, // small hyphen-minus
	'\uFF0D': {}, // fullwidth hyphen-minus
}

// droppedRunes are removed outright. Ordinary whitespace is handled by
// unicode.IsSpace.
var droppedRunes = map[rune]struct{}{
	'\u00A0': {}, // no-break space
	'\u2007': {}, // figure space
	'\u202F': {}, // narrow no-break space
	'\u200B': {}, // zero width space
	'\u200C': {}, // zero width non-joiner
	'\u200D': {}, // zero width joiner
	'\u2060': {}, // word joiner
	'\uFEFF': {}, // zero width no-break space
}

var bracketPairs = map[rune]rune{
	'[': ']',
	'(': ')',
	'{': '}',
	'<': '>',
}

// NormalizeSegment canonicalizes one raw title segment: dash variants are
// folded, spaces and invisible characters removed, diacritics stripped,
// matching surrounding brackets removed and the result upper-cased.
func NormalizeSegment(s string) string {
	if s == "" {
		return ""
	}

	var b strings.Builder

	b.Grow(len(s))

	for _, r := range s {
		if _, ok := dashVariants[r]; ok {
			b.WriteRune('-')

			continue
		}

		if _, ok := droppedRunes[r]; ok || unicode.IsSpace(r) {
			continue
		}

		b.WriteRune(r)
	}

	out := stripDiacritics(b.String())
	out = stripBrackets(out)

	return strings.ToUpper(out)
}

func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}

	return out
}

// stripBrackets removes matching bracket pairs wrapping the whole string,
// repeatedly, so "[[PT]]" becomes "PT".
func stripBrackets(s string) string {
	for len(s) >= 2 {
		r := []rune(s)

		closing, ok := bracketPairs[r[0]]
		if !ok || r[len(r)-1] != closing {
			return s
		}

		s = string(r[1 : len(r)-1])
	}

	return s
}
