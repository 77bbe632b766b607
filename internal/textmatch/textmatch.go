// Package textmatch holds the title normalization and fuzzy scoring shared by
// episode resolution and feed aggregation.
package textmatch

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/adrg/strutil/metrics"
)

var (
	nonWordRe = regexp.MustCompile(`[^\w\s]`)
	spaceRe   = regexp.MustCompile(`\s+`)

	dice = &metrics.SorensenDice{CaseSensitive: true, NgramSize: 2}
)

// Normalize lower-cases, drops everything outside ASCII word characters and
// whitespace, and collapses runs of whitespace. Symbols such as ½ are removed
// rather than folded, so they never turn into digits that could pass the
// episode gate. Normalize(Normalize(s)) == Normalize(s).
func Normalize(s string) string {
	s = strings.ToLower(s)
	s = nonWordRe.ReplaceAllString(s, "")
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}

// Similarity is the Sørensen–Dice coefficient over character bigrams,
// ignoring whitespace. Identical inputs score 1.
func Similarity(a, b string) float64 {
	a, b = stripSpace(a), stripSpace(b)
	if a == b {
		return 1
	}
	return dice.Compare(a, b)
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}

// CleanReleaseName cuts a release title right after the first quality token
// that appears in it, so trailing group tags and hashes do not dilute the
// similarity score. Tokens are tried in order.
func CleanReleaseName(name string, tokens []string) string {
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if i := strings.Index(name, tok); i >= 0 {
			return name[:i] + tok
		}
	}
	return name
}

// ContainsAny reports whether s contains at least one of tokens.
func ContainsAny(s string, tokens []string) bool {
	for _, tok := range tokens {
		if tok != "" && strings.Contains(s, tok) {
			return true
		}
	}
	return false
}

// Pad2 renders n with at least two digits.
func Pad2(n int) string {
	if n >= 0 && n < 10 {
		return "0" + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// Best returns the highest-scoring pair between variants and keys after
// normalization. Ties keep the earliest key. ok is false when nothing scored.
func Best(variants, keys []string) (key string, score float64, ok bool) {
	normVariants := make([]string, 0, len(variants))
	for _, v := range variants {
		if v != "" {
			normVariants = append(normVariants, Normalize(v))
		}
	}
	for _, k := range keys {
		nk := Normalize(k)
		for _, v := range normVariants {
			s := Similarity(v, nk)
			if s > score {
				key, score, ok = k, s, true
			}
			if s == 1 {
				break
			}
		}
	}
	return key, score, ok
}
