package logging

import (
	"strings"
	"unicode"
)

// Sanitize sanitizes a string for safe logging by escaping or replacing
// control characters that could cause log injection attacks. cmd/psyche-serve
// applies it to the remote peer's identity before logging a closed
// connection.
func Sanitize(s string) string {
	if s == "" {
		return ""
	}

	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch {
		// Replace newlines and carriage returns with escaped versions.
		case r == '\n':
			result.WriteString("\\n")
		case r == '\r':
			result.WriteString("\\r")
		case r == '\t':
			result.WriteString("\\t")
		// Replace other control characters (including 0x00-0x1F, 0x7F).
		case unicode.IsControl(r):
			result.WriteString("?")
		// Escape backslashes to prevent escape sequence injection.
		case r == '\\':
			result.WriteString("\\\\")
		// Keep printable characters.
		case unicode.IsPrint(r):
			result.WriteRune(r)
		default:
			// Replace non-printable characters with placeholder.
			result.WriteString("?")
		}
	}

	const maxLength = 100
	if result.Len() > maxLength {
		return result.String()[:maxLength] + "...[truncated]"
	}

	return result.String()
}
