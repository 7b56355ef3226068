// internal/consultation/parser.go
package consultation

import (
	"regexp"
	"strings"

	"biolens-workers/internal/models"
)

// disclaimerMarker must appear (case-insensitively) in every consultation
// for it to pass safety validation.
const disclaimerMarker = "not a substitute for professional medical"

// prohibitedPhrases are claims a consultation must never make.
var prohibitedPhrases = []string{
	"definitely cancer",
	"definitely malignant",
	"you have cancer",
	"certainly malignant",
	"100% certain",
	"guaranteed diagnosis",
	"no need to see a doctor",
	"do not see a doctor",
	"avoid medical care",
	"stop taking your medication",
	"stop your medication",
}

// sectionPatterns map consultation fields to the heading keywords the AI
// service uses in its structured text responses.
var sectionPatterns = map[string]*regexp.Regexp{
	"assessment":      regexp.MustCompile(`(?im)^\s*(?:#+\s*|\*\*)?\s*(?:\d+[.)]\s*)?condition\s+assessment\b.*$`),
	"correlation":     regexp.MustCompile(`(?im)^\s*(?:#+\s*|\*\*)?\s*(?:\d+[.)]\s*)?symptom\s+(?:correlation|analysis)\b.*$`),
	"recommendations": regexp.MustCompile(`(?im)^\s*(?:#+\s*|\*\*)?\s*(?:\d+[.)]\s*)?(?:care\s+)?recommendations?\b.*$`),
	"urgency":         regexp.MustCompile(`(?im)^\s*(?:#+\s*|\*\*)?\s*(?:\d+[.)]\s*)?(?:urgency|timeline|when\s+to\s+seek\s+care)\b.*$`),
	"educational":     regexp.MustCompile(`(?im)^\s*(?:#+\s*|\*\*)?\s*(?:\d+[.)]\s*)?(?:educational\s+info(?:rmation)?|about\s+(?:this|the)\s+condition|background)\b.*$`),
	"disclaimer":      regexp.MustCompile(`(?im)^\s*(?:#+\s*|\*\*)?\s*(?:\d+[.)]\s*)?(?:medical\s+)?disclaimer\b.*$`),
}

var (
	anyHeadingPattern = regexp.MustCompile(`(?im)^\s*(?:#+\s*|\*\*)\s*\S.*$|^\s*\d+[.)]\s+[A-Z].*$`)
	bulletPattern     = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+(.+)$`)
	markupPattern     = regexp.MustCompile(`[*_#]{1,3}`)
)

// ResponseParser turns free-form AI consultation text into the structured
// consultation body, filling any missing section from the fallback
// generator so the result is always complete.
type ResponseParser struct {
	fallback *FallbackGenerator
}

func NewResponseParser(fallback *FallbackGenerator) *ResponseParser {
	return &ResponseParser{fallback: fallback}
}

// Parse extracts the consultation sections from raw text. Sections the text
// does not contain are filled from locally generated content for the same
// input, so a partially structured response still yields a full body.
func (p *ResponseParser) Parse(raw string, input *models.ConsultationInput, symptoms string, assessment models.RiskAssessment) models.ConsultationBody {
	sections := splitSections(raw)

	body := models.ConsultationBody{
		ConditionAssessment: cleanSectionText(sections["assessment"]),
		SymptomCorrelation:  cleanSectionText(sections["correlation"]),
		Recommendations:     parseRecommendationList(sections["recommendations"]),
		UrgencyLevel:        parseUrgency(sections["urgency"], raw),
		EducationalInfo:     cleanSectionText(sections["educational"]),
		Disclaimer:          cleanSectionText(sections["disclaimer"]),
	}

	// Unstructured but non-empty responses carry the whole text as the
	// assessment rather than dropping it.
	if body.ConditionAssessment == "" && len(sections) == 0 && strings.TrimSpace(raw) != "" {
		body.ConditionAssessment = cleanSectionText(raw)
	}

	p.fillMissing(&body, input, symptoms, assessment)
	return body
}

func (p *ResponseParser) fillMissing(body *models.ConsultationBody, input *models.ConsultationInput, symptoms string, assessment models.RiskAssessment) {
	if body.ConditionAssessment == "" {
		body.ConditionAssessment = p.fallback.ConditionAssessment(input, "")
	}
	if body.SymptomCorrelation == "" {
		body.SymptomCorrelation = p.fallback.SymptomCorrelation(input, symptoms)
	}
	if len(body.Recommendations) == 0 {
		body.Recommendations = p.fallback.Recommendations(input, assessment, "")
	}
	if body.UrgencyLevel == "" {
		body.UrgencyLevel = p.fallback.Urgency(input, assessment)
	}
	if body.EducationalInfo == "" {
		body.EducationalInfo = p.fallback.EducationalInfo(input)
	}
	if !strings.Contains(strings.ToLower(body.Disclaimer), disclaimerMarker) {
		body.Disclaimer = disclaimerText
	}
	if len(body.Recommendations) > MaxRecommendations {
		body.Recommendations = body.Recommendations[:MaxRecommendations]
	}
}

// SafetyViolations returns the safety problems in a consultation body:
// prohibited phrases found in any text field, and a missing disclaimer.
func (p *ResponseParser) SafetyViolations(body *models.ConsultationBody) []string {
	var violations []string

	text := strings.ToLower(strings.Join(append([]string{
		body.ConditionAssessment,
		body.SymptomCorrelation,
		body.EducationalInfo,
	}, body.Recommendations...), "\n"))

	for _, phrase := range prohibitedPhrases {
		if strings.Contains(text, phrase) {
			violations = append(violations, "prohibited phrase: "+phrase)
		}
	}

	if !strings.Contains(strings.ToLower(body.Disclaimer), disclaimerMarker) {
		violations = append(violations, "missing medical disclaimer")
	}

	return violations
}

// splitSections locates known headings and slices the text between them.
func splitSections(raw string) map[string]string {
	type mark struct {
		name       string
		start, end int
	}

	var marks []mark
	for name, pattern := range sectionPatterns {
		if loc := pattern.FindStringIndex(raw); loc != nil {
			marks = append(marks, mark{name: name, start: loc[0], end: loc[1]})
		}
	}
	if len(marks) == 0 {
		return nil
	}

	// Sort by position (insertion sort; at most six marks).
	for i := 1; i < len(marks); i++ {
		for j := i; j > 0 && marks[j].start < marks[j-1].start; j-- {
			marks[j], marks[j-1] = marks[j-1], marks[j]
		}
	}

	sections := make(map[string]string, len(marks))
	for i, m := range marks {
		bodyEnd := len(raw)
		if i+1 < len(marks) {
			bodyEnd = marks[i+1].start
		}
		content := raw[m.end:bodyEnd]
		// A stray heading of another kind inside the slice ends the section.
		if loc := anyHeadingPattern.FindStringIndex(content); loc != nil && strings.TrimSpace(content[:loc[0]]) != "" {
			content = content[:loc[0]]
		}
		sections[m.name] = strings.TrimSpace(content)
	}
	return sections
}

func parseRecommendationList(section string) []string {
	if section == "" {
		return nil
	}

	var recs []string
	if matches := bulletPattern.FindAllStringSubmatch(section, -1); len(matches) > 0 {
		for _, m := range matches {
			if item := cleanSectionText(m[1]); item != "" {
				recs = append(recs, item)
			}
		}
		return recs
	}

	// No bullets; treat each non-empty line as an item.
	for _, line := range strings.Split(section, "\n") {
		if line = cleanSectionText(line); line != "" {
			recs = append(recs, line)
		}
	}
	return recs
}

// parseUrgency maps keywords in the urgency section (or, failing that, the
// whole response) to an urgency level.
func parseUrgency(section, raw string) models.UrgencyLevel {
	for _, text := range []string{section, raw} {
		lower := strings.ToLower(text)
		switch {
		case lower == "":
			continue
		case strings.Contains(lower, "immediate") || strings.Contains(lower, "emergency") || strings.Contains(lower, "urgent care today") || strings.Contains(lower, "as soon as possible"):
			return models.UrgencyImmediate
		case strings.Contains(lower, "within a week") || strings.Contains(lower, "within the week") || strings.Contains(lower, "within 7 days") || strings.Contains(lower, "within one week"):
			return models.UrgencyWithinWeek
		case strings.Contains(lower, "monitor"):
			return models.UrgencyMonitor
		case strings.Contains(lower, "routine"):
			return models.UrgencyRoutine
		}
	}
	return ""
}

func cleanSectionText(text string) string {
	text = markupPattern.ReplaceAllString(text, "")
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, " ")
}
