package presence

import (
	"strings"
	"unicode/utf16"
)

// Ellipsis marks a truncated field.
const Ellipsis = "…"

// Len returns the length of s in UTF-16 code units, which is how Discord
// measures presence fields.
func Len(s string) int {
	n := 0
	for _, r := range s {
		n += utf16.RuneLen(r)
	}
	return n
}

// Truncate shortens s to at most limit UTF-16 code units. A shortened string
// ends with [Ellipsis] and never splits a rune.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if Len(s) <= limit {
		return s
	}

	var b strings.Builder
	used := 0
	budget := limit - Len(Ellipsis)
	for _, r := range s {
		w := utf16.RuneLen(r)
		if used+w > budget {
			break
		}
		b.WriteRune(r)
		used += w
	}
	return strings.TrimRight(b.String(), " ") + Ellipsis
}
