package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	minTermLength = 4
	maxTerms      = 5
)

// ExtractTerms derives lexical search terms from a query: lowercased,
// stripped of non-alphanumeric characters, split on whitespace, corrected
// via corrections, deduplicated in first-seen order, at least four
// characters long and capped at five terms.
func ExtractTerms(query string, corrections map[string]string) []string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, strings.ToLower(query))

	seen := make(map[string]struct{})
	var terms []string
	for _, word := range strings.Fields(cleaned) {
		if fixed, ok := corrections[word]; ok {
			word = fixed
		}
		if utf8.RuneCountInString(word) < minTermLength {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		terms = append(terms, word)
		if len(terms) == maxTerms {
			break
		}
	}
	return terms
}
