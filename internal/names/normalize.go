// Package names normalizes and scores park names for candidate matching.
package names

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	apostropheRe = regexp.MustCompile("['’‘`]")
	noiseRe      = regexp.MustCompile(`[^\p{L}\p{N}\s]+`)
	multiSpaceRe = regexp.MustCompile(`\s+`)
)

// genericWords carry no identifying signal when comparing park names.
var genericWords = map[string]bool{
	"park": true, "parks": true,
	"garden": true, "gardens": true,
	"green": true, "common": true,
	"recreation": true, "ground": true, "rec": true,
	"open": true, "space": true,
	"playing": true, "field": true, "fields": true,
	"nature": true, "reserve": true,
	"square": true, "and": true, "of": true, "the": true,
}

// fold strips combining marks so "Parc de la Tête d'Or" and "Parc de la Tete d'Or" compare equal.
func fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

// Normalize standardizes a site name for comparison by:
//  1. Folding accents and lowercasing
//  2. Removing apostrophes ("St James's" -> "st jamess")
//  3. Replacing "&" with "and" and other punctuation with spaces
//  4. Collapsing whitespace
//  5. Dropping a leading "the"
func Normalize(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToLower(fold(name))
	name = apostropheRe.ReplaceAllString(name, "")
	name = strings.ReplaceAll(name, "&", " and ")
	name = noiseRe.ReplaceAllString(name, " ")
	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)
	name = strings.TrimPrefix(name, "the ")

	return name
}

// Tokens returns the whitespace-separated words of the normalized name.
func Tokens(name string) []string {
	n := Normalize(name)
	if n == "" {
		return nil
	}
	return strings.Fields(n)
}

// SignificantTokens returns the normalized words with generic park vocabulary removed.
func SignificantTokens(name string) []string {
	var out []string
	for _, t := range Tokens(name) {
		if !genericWords[t] {
			out = append(out, t)
		}
	}
	return out
}
