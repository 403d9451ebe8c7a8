package search

import (
	"strings"
	"unicode"
)

// Query represents a parsed user input
type Query struct {
	Raw       string   // Original input, trimmed and lowercased
	Fragments []string // Free-text words
	Tags      []string // Inline "#tag" filters, without the hash
}

// Empty reports whether the query neither ranks nor filters.
func (q Query) Empty() bool {
	return len(q.Fragments) == 0 && len(q.Tags) == 0
}

// ParseQuery parses user input into a structured query
// Examples:
//   - "login bug" -> fragments ["login", "bug"]
//   - "wallet #go #rust" -> fragments ["wallet"], tags ["go", "rust"]
//   - "login-page" -> fragments ["login", "page"]
//   - "#" -> empty query
//
// Fragments are split with the same rule as the searched text, so a
// hyphenated query matches a hyphenated title word by word.
func ParseQuery(input string) Query {
	input = strings.TrimSpace(strings.ToLower(input))
	if input == "" {
		return Query{}
	}

	q := Query{Raw: input}
	for _, part := range strings.Fields(input) {
		if tag, ok := strings.CutPrefix(part, "#"); ok {
			if tag = strings.TrimSpace(tag); tag != "" {
				q.Tags = append(q.Tags, tag)
			}
			continue
		}
		q.Fragments = append(q.Fragments, words(part)...)
	}
	return q
}

// words splits free text into normalized, matchable words.
// Example: "Fix the Login-page (v2)" -> ["fix", "the", "login", "page", "v2"]
func words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
