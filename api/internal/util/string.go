package util

import (
	"strings"
	"unicode"
)

func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// MaskSecret keeps only the last 6 characters of a key for log lines.
func MaskSecret(s string) string {
	if s == "" {
		return "<empty>"
	}
	if len(s) <= 6 {
		return "***"
	}
	return "..." + s[len(s)-6:]
}

// TitleWords replaces dashes and underscores with spaces and upper-cases the
// first letter of every word: "hand-held computer" -> "Hand Held Computer".
func TitleWords(s string) string {
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	words := strings.Fields(s)
	for i, w := range words {
		r := []rune(strings.ToLower(w))
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}
