package utils

import "strings"

// NormalizePlate uppercases the input and drops every character that is not
// an ASCII letter or digit, so "abc-123" and "ABC 123" compare equal.
func NormalizePlate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToUpper(s) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}
