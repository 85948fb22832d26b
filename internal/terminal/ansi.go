package terminal

import (
	"regexp"
	"strings"
)

var ansiEscape = regexp.MustCompile(`\x1B\[[0-?]*[ -/]*[@-~]`)

// CleanANSI strips ANSI escape sequences and a leading carriage return.
func CleanANSI(text string) string {
	clean := ansiEscape.ReplaceAllString(text, "")
	return strings.TrimPrefix(clean, "\r")
}
