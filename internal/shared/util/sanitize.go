package util

import (
	"errors"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ErrInvalidFileName is returned for names that are empty or try to escape the namespace.
var ErrInvalidFileName = errors.New("invalid file name")

const maxFileNameBytes = 200

// SanitizeFileName flattens path separators to underscores, drops control
// characters and truncates to a bounded length on a rune boundary.
func SanitizeFileName(name string) (string, error) {
	if strings.Contains(name, "..") {
		return "", ErrInvalidFileName
	}
	var b strings.Builder
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r == '/' || r == '\\':
			b.WriteByte('_')
		case r == utf8.RuneError || unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	s := b.String()
	if len(s) > maxFileNameBytes {
		cut := maxFileNameBytes
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		s = s[:cut]
	}
	if strings.Trim(s, "_ ") == "" {
		return "", ErrInvalidFileName
	}
	return s, nil
}

// DigitsOnly strips everything but ASCII digits, e.g. "12.345.678/0001-90" -> "12345678000190".
func DigitsOnly(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
