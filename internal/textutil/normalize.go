package textutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText converts s to Unicode NFC, collapses runs of whitespace into a
// single space, and trims the result.
func NormalizeText(s string) string {
	if s == "" {
		return ""
	}
	return CollapseWhitespace(norm.NFC.String(s))
}

// CollapseWhitespace replaces every run of Unicode whitespace with one ASCII
// space and trims both ends.
func CollapseWhitespace(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	pendingSpace := false
	for _, r := range s {
		if unicode.IsSpace(r) {
			pendingSpace = b.Len() > 0
			continue
		}
		if pendingSpace {
			b.WriteByte(' ')
			pendingSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}

// WordCount returns the number of whitespace-separated words in s.
func WordCount(s string) int {
	return len(strings.Fields(s))
}
