// Package prune cuts user-facing text down to platform limits without
// splitting a UTF-8 sequence.
package prune

import (
	"unicode/utf8"
)

const (
	DefaultMarker = "..."
	Ellipsis      = "…"
)

// Bytes returns s cut so that the result, marker included, is at most
// maxBytes long. Text already within the limit is returned unchanged.
func Bytes(s string, maxBytes int, marker string) string {
	if maxBytes <= 0 {
		return ""
	}
	if len(s) <= maxBytes {
		return s
	}
	if len(marker) >= maxBytes {
		return safeUTF8Prefix(s, maxBytes)
	}
	return safeUTF8Prefix(s, maxBytes-len(marker)) + marker
}

// Runes returns s cut so that the result, marker included, holds at most
// maxRunes runes.
func Runes(s string, maxRunes int, marker string) string {
	if maxRunes <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxRunes {
		return s
	}
	keep := maxRunes - utf8.RuneCountInString(marker)
	if keep <= 0 {
		return string([]rune(s)[:maxRunes])
	}
	return string([]rune(s)[:keep]) + marker
}

func safeUTF8Prefix(s string, maxBytes int) string {
	if maxBytes <= 0 || len(s) == 0 {
		return ""
	}
	if maxBytes >= len(s) {
		return s
	}
	cut := maxBytes
	for cut > 0 && cut < len(s) && !utf8.RuneStart(s[cut]) {
		cut--
	}
	if cut <= 0 {
		return ""
	}
	return s[:cut]
}
