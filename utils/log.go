package utils

import (
	"strings"
	"unicode"
)

// SanitizeLogMessage strips control characters from user-controlled strings
// before they reach the log, keeping tabs and newlines.
func SanitizeLogMessage(msg string) string {
	var sb strings.Builder
	for _, r := range msg {
		if r == 10 || r == 9 {
			sb.WriteRune(r)
		} else if unicode.IsPrint(r) || unicode.IsGraphic(r) {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
