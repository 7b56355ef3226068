// internal/consultation/symptoms.go
package consultation

import (
	"regexp"
	"strings"
)

// SymptomFeatures carries the coarse signals both the prompt builder and the
// fallback generator work from.
type SymptomFeatures struct {
	Keywords []string
	Severity string // "severe", "mild", or "unspecified"
	Duration string // e.g. "2 weeks", empty when not stated
}

// symptomVocabulary maps lowercase stems found in free text to the display
// keyword used in consultation text.
var symptomVocabulary = []struct {
	stem    string
	display string
}{
	{"itch", "itching"},
	{"burn", "burning"},
	{"pain", "pain"},
	{"sore", "soreness"},
	{"rash", "rash"},
	{"swell", "swelling"},
	{"red", "redness"},
	{"bleed", "bleeding"},
	{"dry", "dryness"},
	{"flak", "flaking"},
	{"scal", "scaling"},
	{"peel", "peeling"},
	{"crack", "cracking"},
	{"blister", "blistering"},
	{"bump", "bumps"},
	{"crust", "crusting"},
	{"discharg", "discharge"},
	{"tender", "tenderness"},
	{"numb", "numbness"},
}

var durationPattern = regexp.MustCompile(`(?i)(\d+)\s*(day|week|month|year)s?`)

// ExtractSymptomFeatures derives keyword, severity, and duration signals
// from sanitized symptom text. Empty input yields empty features.
func ExtractSymptomFeatures(symptoms string) SymptomFeatures {
	features := SymptomFeatures{Severity: "unspecified"}
	text := strings.ToLower(strings.TrimSpace(symptoms))
	if text == "" {
		return features
	}

	seen := map[string]bool{}
	for _, entry := range symptomVocabulary {
		if strings.Contains(text, entry.stem) && !seen[entry.display] {
			seen[entry.display] = true
			features.Keywords = append(features.Keywords, entry.display)
		}
	}

	switch {
	case strings.Contains(text, "severe") ||
		strings.Contains(text, "intense") ||
		strings.Contains(text, "unbearable") ||
		strings.Contains(text, "extreme"):
		features.Severity = "severe"
	case strings.Contains(text, "mild") || strings.Contains(text, "slight"):
		features.Severity = "mild"
	}

	if m := durationPattern.FindStringSubmatch(text); m != nil {
		unit := strings.ToLower(m[2])
		if m[1] != "1" {
			unit += "s"
		}
		features.Duration = m[1] + " " + unit
	}

	return features
}
