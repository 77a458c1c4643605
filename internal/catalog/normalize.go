package catalog

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize cleans a search term before it reaches the database: control
// characters are dropped, the text is NFC composed and inner whitespace is
// collapsed.
func Normalize(q string) string {
	t := transform.Chain(runes.Remove(runes.Predicate(unicode.IsControl)), norm.NFC)
	out, _, err := transform.String(t, q)
	if err != nil {
		out = q
	}
	return strings.Join(strings.Fields(out), " ")
}

func cacheKey(parts ...string) string {
	return strings.Join(parts, "|")
}

// fold is used for keys of case-insensitive searches. A Caser is stateful, so
// each call gets its own.
func fold(q string) string {
	return cases.Fold().String(q)
}
