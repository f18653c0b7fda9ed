package transcript

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// NormalizeSentence shapes a raw final hypothesis into canonical form:
// trimmed, first letter capitalized, terminal punctuation ensured, one
// trailing space so sentences concatenate cleanly.
func NormalizeSentence(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	s = capitalizeFirst(s)
	if !endsTerminal(s) {
		s += "."
	}
	return s + " "
}

func capitalizeFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError || unicode.IsUpper(r) {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func endsTerminal(s string) bool {
	s = strings.TrimRight(s, " ")
	if s == "" {
		return false
	}
	switch s[len(s)-1] {
	case '.', '?', '!':
		return true
	}
	return false
}
