package output

import (
	"strings"
)

// RecognizedPrefix marks a result line. Consumers tell results from status
// lines by this prefix alone, so it must never change.
const RecognizedPrefix = "RECOGNIZED:"

var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// Sanitize makes text safe for a single output line
func Sanitize(text string) string {
	return strings.TrimSpace(lineBreaks.Replace(text))
}

// FormatLine renders a result line, without the trailing newline.
// It returns false when nothing is left to emit after sanitising.
func FormatLine(text string) (string, bool) {
	text = Sanitize(text)
	if text == "" {
		return "", false
	}
	return RecognizedPrefix + text, true
}

// ParseLine extracts the utterance from a result line.
// Status lines report false.
func ParseLine(line string) (string, bool) {
	line = strings.TrimRight(line, "\r\n")
	if !strings.HasPrefix(line, RecognizedPrefix) {
		return "", false
	}
	return strings.TrimPrefix(line, RecognizedPrefix), true
}
