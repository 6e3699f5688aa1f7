package resolver

import (
	"strings"
	"unicode"
)

// NormalizeName computes the canonical form of an entity name used for the
// dedup key: case-folded, trimmed, inner whitespace collapsed, punctuation
// noise stripped from token edges. "Jane Doe" and " jane doe " normalize to
// the same key.
func NormalizeName(name string) string {
	var tokens []string
	for _, field := range strings.Fields(name) {
		token := strings.TrimFunc(field, func(r rune) bool {
			return unicode.IsPunct(r) && r != '&'
		})
		if token != "" {
			tokens = append(tokens, token)
		}
	}
	return strings.ToLower(strings.Join(tokens, " "))
}
