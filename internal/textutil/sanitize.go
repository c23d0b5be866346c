package textutil

import (
	"strings"
	"unicode"
)

// SanitizeFileName makes an uploaded deck name usable as the last segment of
// a storage key. Separators and wildcard characters become '-', quoting and
// redirection characters and control runes are dropped.
func SanitizeFileName(name string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch {
		case strings.ContainsRune(`/\:*`, r):
			return '-'
		case strings.ContainsRune(`?"<>|`, r), unicode.IsControl(r):
			return -1
		default:
			return r
		}
	}, strings.TrimSpace(name)))
}

// SanitizeToken lowercases value into [a-z0-9_-] with every other rune mapped
// to '_'. Leading and trailing separators are trimmed; an empty result becomes
// "unknown".
func SanitizeToken(value string) string {
	token := strings.Map(func(r rune) rune {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			return unicode.ToLower(r)
		case r == '-' || r == '_':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(value))
	if token = strings.Trim(token, "_-"); token == "" {
		return "unknown"
	}
	return token
}
