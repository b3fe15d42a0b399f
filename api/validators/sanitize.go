package validators

import (
	"strings"
	"unicode"
)

// SanitizeString trims input and caps it at maxLen runes.
func SanitizeString(input string, maxLen int) string {
	trimmed := strings.TrimSpace(input)
	if maxLen <= 0 {
		return trimmed
	}
	runes := []rune(trimmed)
	if len(runes) > maxLen {
		return strings.TrimSpace(string(runes[:maxLen]))
	}
	return trimmed
}

// SanitizeReceiptText prepares free text that ends up on a printed receipt:
// control characters are dropped and runs of whitespace collapse to a single
// space, except that newlines survive when multiline is set.
func SanitizeReceiptText(input string, maxLen int, multiline bool) string {
	var b strings.Builder
	b.Grow(len(input))
	pendingSpace, pendingBreak := false, false
	for _, r := range input {
		switch {
		case r == '\n' && multiline:
			pendingBreak = true
			pendingSpace = false
			continue
		case unicode.IsSpace(r):
			if !pendingBreak {
				pendingSpace = true
			}
			continue
		case unicode.IsControl(r):
			continue
		}
		if b.Len() > 0 {
			if pendingBreak {
				b.WriteByte('\n')
			} else if pendingSpace {
				b.WriteByte(' ')
			}
		}
		pendingSpace, pendingBreak = false, false
		b.WriteRune(r)
	}
	return SanitizeString(b.String(), maxLen)
}
