// Package species turns raw classifier output into canonical scientific-name
// queries shared by every enrichment provider.
package species

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Guess is the raw output of the image classifier.
type Guess struct {
	RawLabel   string  `json:"raw_label"`
	Confidence float64 `json:"confidence"`
}

// CanonicalQuery is the normalized query derived from a Guess. SearchTerms
// holds fallback variants, most specific first, so resolvers can retry with
// a looser query when the exact name yields no match.
type CanonicalQuery struct {
	ScientificName string   `json:"scientific_name"`
	SearchTerms    []string `json:"search_terms"`
}

var (
	// parenthetical annotations like "(98%)" or "(score 0.98)"
	parentheticalRe = regexp.MustCompile(`\([^)]*\)`)
	// bare confidence tokens like "98%" or "0.98"
	confidenceTokenRe = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?%?$`)
	whitespaceRe      = regexp.MustCompile(`\s+`)
)

// Normalize derives a CanonicalQuery from a classifier guess. It is a pure
// function and never fails: in the worst case the raw label is returned as
// the only search term.
func Normalize(guess Guess) CanonicalQuery {
	cleaned := parentheticalRe.ReplaceAllString(guess.RawLabel, " ")
	cleaned = strings.ReplaceAll(cleaned, "_", " ")
	cleaned = whitespaceRe.ReplaceAllString(strings.TrimSpace(cleaned), " ")

	var tokens []string
	for _, tok := range strings.Fields(cleaned) {
		if confidenceTokenRe.MatchString(tok) {
			continue
		}
		tokens = append(tokens, tok)
	}

	if len(tokens) == 0 {
		raw := strings.TrimSpace(guess.RawLabel)
		if raw == "" {
			return CanonicalQuery{}
		}
		return CanonicalQuery{ScientificName: raw, SearchTerms: []string{raw}}
	}

	// Binomial casing: capitalized genus, lowercase epithets
	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		if i == 0 {
			tokens[i] = capitalizeFirstRune(lower)
		} else {
			tokens[i] = lower
		}
	}

	scientificName := strings.Join(tokens, " ")

	terms := []string{scientificName}
	if len(tokens) > 1 {
		// Genus-only fallback lets resolvers retry with a looser query
		terms = append(terms, tokens[0])
	}

	return CanonicalQuery{ScientificName: scientificName, SearchTerms: terms}
}

// capitalizeFirstRune uppercases the first rune without splitting
// multi-byte characters, so accented vernacular labels stay valid UTF-8.
func capitalizeFirstRune(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError && size <= 1 {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}
