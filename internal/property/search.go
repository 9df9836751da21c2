package property

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics and collapses whitespace, so that
// "Oberá" and "OBERA" compare equal.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	lower := strings.ToLower(s)
	folded, _, err := transform.String(t, lower)
	if err != nil {
		folded = lower
	}
	return strings.Join(strings.Fields(folded), " ")
}

// searchText is the folded text that free-text queries match against.
func searchText(p *Property) string {
	return Fold(strings.Join([]string{p.Title, p.Description, p.City, p.Address, p.Province}, " "))
}

// queryTerms splits a free-text query into folded terms. Every term must
// match for a listing to be returned.
func queryTerms(q string) []string {
	return strings.Fields(Fold(q))
}

// escapeLike escapes LIKE wildcards; queries use ESCAPE '\'.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
