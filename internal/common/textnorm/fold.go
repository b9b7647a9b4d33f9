// Package textnorm folds free text for keyword and zone matching.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Fold lower-cases s, strips diacritics, turns apostrophes, hyphens and
// punctuation into spaces and collapses whitespace.
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}

	out = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			return unicode.ToLower(r)
		default:
			return ' '
		}
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// Words pads the folded text so phrases can be matched on word boundaries with
// ContainsPhrase.
func Words(s string) string {
	return " " + Fold(s) + " "
}

// ContainsPhrase reports whether padded (from Words) contains the folded phrase as whole words.
func ContainsPhrase(padded, phrase string) bool {
	p := Fold(phrase)
	if p == "" {
		return false
	}
	return strings.Contains(padded, " "+p+" ")
}
