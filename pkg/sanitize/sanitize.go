// Package sanitize normalizes untrusted names before they are stored.
package sanitize

import (
	"path"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	maxFilenameLen    = 255
	maxDisplayNameLen = 128
)

// Filename reduces name to a safe base name. Returns fallback when
// nothing usable remains.
func Filename(name, fallback string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = StripControlCharacters(path.Base(strings.TrimSpace(name)))
	name = strings.TrimSpace(name)
	if name == "" || name == "." || name == ".." || name == "/" {
		return fallback
	}
	return truncate(name, maxFilenameLen)
}

// DisplayName collapses whitespace and drops control characters
func DisplayName(name string) string {
	return truncate(strings.Join(strings.Fields(StripControlCharacters(name)), " "), maxDisplayNameLen)
}

// StripControlCharacters removes control characters from string
func StripControlCharacters(input string) string {
	var result strings.Builder
	for _, r := range input {
		if !unicode.IsControl(r) {
			result.WriteRune(r)
		}
	}
	return result.String()
}

// truncate cuts s to at most n bytes without splitting a rune
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
