// internal/consultation/prompt.go
package consultation

import (
	"fmt"
	"strings"

	"biolens-workers/internal/models"
)

// consultationSystemInstruction constrains the AI service to the section
// layout the parser expects and to safety-compliant language.
const consultationSystemInstruction = `You are a medical information assistant helping users understand skin image analysis results. You are not a doctor and must never give a definitive diagnosis.

Structure your response with exactly these sections, each with its heading on its own line:

Condition Assessment
Symptom Correlation
Recommendations
Urgency
Educational Information
Disclaimer

Rules:
- Recommendations must be a bulleted list of specific, actionable items.
- Urgency must state one of: immediate, within a week, routine, monitor.
- Never claim certainty about any diagnosis and never discourage professional care.
- The Disclaimer section must state that this is not a substitute for professional medical advice.`

// buildConsultationPrompt renders the analysis results, symptoms, and risk
// assessment into the user prompt for the AI service.
func buildConsultationPrompt(input *models.ConsultationInput, symptoms string, assessment models.RiskAssessment) string {
	var parts []string

	parts = append(parts, "A skin image analysis produced the following predictions:")
	for i, pred := range input.Predictions {
		line := fmt.Sprintf("%d. %s - %.0f%% confidence", i+1, pred.Condition, pred.Confidence*100)
		if pred.Severity != "" {
			line += fmt.Sprintf(", %s severity", strings.ToLower(pred.Severity))
		}
		if pred.Category != "" {
			line += fmt.Sprintf(" (%s)", pred.Category)
		}
		if pred.RequiresAttention {
			line += " [flagged for attention]"
		}
		parts = append(parts, line)
	}

	if strings.TrimSpace(symptoms) != "" {
		parts = append(parts, "", "The user reports the following symptoms:", symptoms)

		features := ExtractSymptomFeatures(symptoms)
		if len(features.Keywords) > 0 {
			detail := "Recognized symptom keywords: " + strings.Join(features.Keywords, ", ")
			if features.Severity != "" {
				detail += "; severity: " + features.Severity
			}
			if features.Duration != "" {
				detail += "; duration: " + features.Duration
			}
			parts = append(parts, detail)
		}
	} else {
		parts = append(parts, "", "The user did not provide a symptom description.")
	}

	parts = append(parts, "", fmt.Sprintf("Risk assessment: %s risk.", assessment.Level))
	if len(assessment.Factors) > 0 {
		parts = append(parts, "Risk factors: "+strings.Join(assessment.Factors, "; "))
	}
	if assessment.RequiresUrgentCare {
		parts = append(parts, "This case is flagged as potentially requiring urgent care; reflect that in the urgency section.")
	}

	parts = append(parts, "", "Generate the consultation now.")
	return strings.Join(parts, "\n")
}
