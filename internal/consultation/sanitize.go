// internal/consultation/sanitize.go
package consultation

import (
	"regexp"
	"strings"
)

// DefaultMaxSymptomLength caps free-text symptom input.
const DefaultMaxSymptomLength = 1000

const truncationMarker = "..."

var (
	scriptBlockPattern  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	htmlTagPattern      = regexp.MustCompile(`<[^>]*>`)
	scriptSchemePattern = regexp.MustCompile(`(?i)(?:javascript|vbscript|data)\s*:`)
	eventHandlerPattern = regexp.MustCompile(`(?i)\bon\w+\s*=`)
	whitespacePattern   = regexp.MustCompile(`\s+`)
)

// SanitizeSymptoms strips markup and script-like fragments from free-text
// symptom input, normalizes whitespace, and caps the result at maxLength
// (appending a truncation marker inside the cap). It never fails and is
// idempotent: sanitizing already-sanitized text is a no-op.
func SanitizeSymptoms(raw string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxSymptomLength
	}

	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}

	s = scriptBlockPattern.ReplaceAllString(s, " ")
	s = htmlTagPattern.ReplaceAllString(s, " ")
	s = scriptSchemePattern.ReplaceAllString(s, " ")
	s = eventHandlerPattern.ReplaceAllString(s, " ")

	s = whitespacePattern.ReplaceAllString(s, " ")
	s = strings.TrimSpace(s)

	runes := []rune(s)
	if len(runes) > maxLength {
		cut := maxLength - len(truncationMarker)
		s = strings.TrimSpace(string(runes[:cut])) + truncationMarker
	}

	return s
}
