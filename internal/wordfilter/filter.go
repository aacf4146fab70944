// Package wordfilter masks configured forbidden words in outgoing message
// bodies. Matching is case-sensitive and literal; every occurrence is
// replaced by an equal-length run of the mask character.
package wordfilter

import (
	"strings"
	"unicode/utf8"
)

const maskRune = "*"

// Parse splits a comma-delimited banned-word configuration into the list of
// literal substrings to mask. Blank entries are dropped; surrounding
// whitespace on each entry is ignored.
func Parse(config string) []string {
	if strings.TrimSpace(config) == "" {
		return nil
	}
	parts := strings.Split(config, ",")
	words := make([]string, 0, len(parts))
	for _, part := range parts {
		word := strings.TrimSpace(part)
		if word == "" {
			continue
		}
		words = append(words, word)
	}
	return words
}

// Mask replaces every occurrence of each configured word with a run of mask
// characters of the same rune length. Words are applied in configured order;
// the replacement text contains no maskable words, so Mask is idempotent.
func Mask(body string, words []string) string {
	for _, word := range words {
		if word == "" {
			continue
		}
		body = strings.ReplaceAll(body, word, strings.Repeat(maskRune, utf8.RuneCountInString(word)))
	}
	return body
}
