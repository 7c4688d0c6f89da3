package names

import "strings"

// Score tiers shared by both scorers.
const (
	ScoreIdentical = 1.0
	ScoreContains  = 0.8
)

// Score compares two site names. Identical normalized names score 1.0, one
// containing the other 0.8, and anything else falls back to the Jaccard
// overlap of their unique characters. The result is in [0, 1] and the
// fallback tier is symmetric.
func Score(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if tier, ok := tierScore(na, nb); ok {
		return tier
	}
	return jaccard(charSet(na), charSet(nb))
}

// TokenScore is the import-time variant of Score: the fallback is the Jaccard
// overlap of whitespace-separated words instead of characters, which behaves
// better for multi-word names.
func TokenScore(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	if tier, ok := tierScore(na, nb); ok {
		return tier
	}
	return jaccard(wordSet(na), wordSet(nb))
}

// SharedSignificantWords counts distinct words the two names share once
// generic vocabulary such as "park" or "garden" is removed.
func SharedSignificantWords(a, b string) int {
	sa := make(map[string]bool)
	for _, t := range SignificantTokens(a) {
		sa[t] = true
	}
	shared := make(map[string]bool)
	for _, t := range SignificantTokens(b) {
		if sa[t] {
			shared[t] = true
		}
	}
	return len(shared)
}

// SameFeature reports whether two names should be treated as the same site
// during import: a token score of at least threshold, or at least two shared
// significant words.
func SameFeature(a, b string, threshold float64) bool {
	if TokenScore(a, b) >= threshold {
		return true
	}
	return SharedSignificantWords(a, b) >= 2
}

// tierScore checks identity before emptiness, so two names that both
// normalize to "" are identical.
func tierScore(na, nb string) (float64, bool) {
	if na == nb {
		return ScoreIdentical, true
	}
	if na == "" || nb == "" {
		return 0, true
	}
	if strings.Contains(na, nb) || strings.Contains(nb, na) {
		return ScoreContains, true
	}
	return 0, false
}

func charSet(s string) map[rune]bool {
	set := make(map[rune]bool, len(s))
	for _, r := range s {
		if r != ' ' {
			set[r] = true
		}
	}
	return set
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func jaccard[K comparable](a, b map[K]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	inter := 0
	for k := range a {
		if b[k] {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}
