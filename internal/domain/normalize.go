package domain

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// FoldLabel lowercases s and strips diacritics, so "Numéro à recharger" becomes
// "numero a recharger". It is used to match loosely named order fields.
func FoldLabel(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.Join(strings.Fields(out), " "))
}

// ContainsAnyFolded reports whether the folded form of s contains any folded keyword.
func ContainsAnyFolded(s string, keywords []string) bool {
	f := FoldLabel(s)
	if f == "" {
		return false
	}
	for _, k := range keywords {
		if k = FoldLabel(k); k != "" && strings.Contains(f, k) {
			return true
		}
	}
	return false
}
