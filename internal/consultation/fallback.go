// internal/consultation/fallback.go
package consultation

import (
	"fmt"
	"strings"

	"biolens-workers/internal/common/errors"
	"biolens-workers/internal/models"
)

// MaxRecommendations caps the fallback recommendation list.
const MaxRecommendations = 8

// disclaimerText is attached to every consultation. The safety validator
// requires the "not a substitute for professional medical" marker.
const disclaimerText = "This analysis is provided for informational purposes only and is " +
	"not a substitute for professional medical advice, diagnosis, or treatment. " +
	"Always consult a qualified healthcare provider with any questions about a medical condition."

// fallbackModelName marks consultations synthesized without the AI service.
const fallbackModelName = "local-fallback"

// conditionCareGuidance maps condition-name keywords to care instructions.
var conditionCareGuidance = map[string][]string{
	"eczema": {
		"Keep the affected skin moisturized with a fragrance-free emollient several times a day",
		"Avoid known triggers such as harsh soaps, wool fabrics, and very hot water",
		"Apply a cool compress to relieve itching instead of scratching",
	},
	"dermatitis": {
		"Identify and avoid contact with possible irritants such as new detergents, cosmetics, or jewelry",
		"Keep the affected skin moisturized with a fragrance-free emollient",
		"Apply a cool compress to relieve itching instead of scratching",
	},
	"psoriasis": {
		"Keep the affected skin moisturized to reduce scaling and cracking",
		"Avoid picking at plaques, which can worsen lesions",
		"Note whether stress, illness, or skin injury preceded this flare",
	},
	"acne": {
		"Wash the affected area twice daily with a gentle, non-comedogenic cleanser",
		"Avoid squeezing or picking at lesions to prevent scarring",
		"Use oil-free, non-comedogenic skin care and cosmetic products",
	},
	"fungal": {
		"Keep the affected area clean and thoroughly dry, especially skin folds",
		"Avoid sharing towels, clothing, or footwear while symptoms persist",
		"Wash bedding and clothing that contact the area in hot water",
	},
	"ringworm": {
		"Keep the affected area clean and thoroughly dry",
		"Avoid sharing towels, clothing, or footwear while symptoms persist",
		"Check household members and pets for similar lesions",
	},
	"hives": {
		"Note any new foods, medications, or exposures from the hours before the outbreak",
		"Apply cool compresses to relieve itching",
		"Seek immediate care if swelling involves the lips, tongue, or throat, or breathing becomes difficult",
	},
	"urticaria": {
		"Note any new foods, medications, or exposures from the hours before the outbreak",
		"Apply cool compresses to relieve itching",
		"Seek immediate care if swelling involves the lips, tongue, or throat, or breathing becomes difficult",
	},
	"rosacea": {
		"Track triggers such as sun, heat, alcohol, and spicy food in a symptom diary",
		"Use gentle skin care products and broad-spectrum sunscreen daily",
		"Avoid harsh scrubs and astringents on the affected area",
	},
	"melanoma": {
		"Book a dermatology appointment as soon as possible and mention the suspicious lesion explicitly",
		"Photograph the lesion now to document its current size, shape, and color",
		"Protect the lesion from sun exposure and do not attempt any home removal",
	},
	"carcinoma": {
		"Book a dermatology appointment as soon as possible and mention the suspicious lesion explicitly",
		"Photograph the lesion now to document its current size, shape, and color",
		"Protect the lesion from sun exposure and do not attempt any home removal",
	},
	"malignant": {
		"Book a dermatology appointment as soon as possible and mention the suspicious lesion explicitly",
		"Photograph the lesion now to document its current size, shape, and color",
		"Protect the lesion from sun exposure and do not attempt any home removal",
	},
}

// symptomConditionAffinity links extracted symptom keywords to the condition
// keywords they are commonly associated with.
var symptomConditionAffinity = map[string][]string{
	"itching":    {"eczema", "dermatitis", "fungal", "ringworm", "hives", "urticaria"},
	"burning":    {"dermatitis", "rosacea", "hives"},
	"redness":    {"eczema", "dermatitis", "rosacea", "hives"},
	"rash":       {"eczema", "dermatitis", "fungal", "hives", "urticaria"},
	"dryness":    {"eczema", "psoriasis", "dermatitis"},
	"flaking":    {"psoriasis", "eczema", "fungal"},
	"scaling":    {"psoriasis", "fungal", "ringworm"},
	"cracking":   {"eczema", "psoriasis"},
	"bumps":      {"acne", "hives", "urticaria"},
	"blistering": {"dermatitis", "fungal"},
	"swelling":   {"hives", "urticaria", "dermatitis"},
	"bleeding":   {"melanoma", "carcinoma", "psoriasis"},
	"crusting":   {"eczema", "dermatitis", "carcinoma"},
}

var generalSkinGuidance = []string{
	"Keep the affected area clean and avoid scratching or picking at the skin",
	"Use gentle, fragrance-free skin care products and protect the area from sun exposure",
}

// FallbackGenerator synthesizes a complete, safety-compliant consultation
// from local data alone. It never fails; unrecognized conditions fall
// through to the generic guidance branches.
type FallbackGenerator struct{}

func NewFallbackGenerator() *FallbackGenerator {
	return &FallbackGenerator{}
}

// Generate produces the full fallback consultation for the given input and
// failure category. Output is structurally identical to the primary path.
func (g *FallbackGenerator) Generate(input *models.ConsultationInput, symptoms string, assessment models.RiskAssessment, category errors.Category) *models.ConsultationResponse {
	confidence := 0.0
	if top := input.TopPrediction(); top != nil {
		confidence = top.Confidence
	}

	return &models.ConsultationResponse{
		Consultation: models.ConsultationBody{
			ConditionAssessment: g.ConditionAssessment(input, category),
			SymptomCorrelation:  g.SymptomCorrelation(input, symptoms),
			Recommendations:     g.Recommendations(input, assessment, category),
			UrgencyLevel:        g.Urgency(input, assessment),
			EducationalInfo:     g.EducationalInfo(input),
			Disclaimer:          disclaimerText,
		},
		Metadata: models.ResponseMetadata{
			ModelUsed:       fallbackModelName,
			ConfidenceScore: confidence,
			FallbackUsed:    true,
			// Safety-compliant by construction; the validator is not re-run.
			SafetyValidated: true,
			ErrorCategory:   string(category),
		},
		EmergencyContacts: g.Contacts(assessment),
	}
}

// ConditionAssessment describes the top prediction, alternatives, and an
// informational footnote naming why the AI consultation was unavailable.
func (g *FallbackGenerator) ConditionAssessment(input *models.ConsultationInput, category errors.Category) string {
	top := input.TopPrediction()
	if top == nil {
		return strings.TrimSpace("The image analysis did not return a usable condition prediction. " + unavailabilityFootnote(category))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "The image analysis identified %s as the most likely finding (%.0f%% confidence, %s severity).",
		top.Condition, top.Confidence*100, severityOrDefault(top.Severity))

	var alternatives []string
	for i := range input.Predictions {
		pred := &input.Predictions[i]
		if pred == top {
			continue
		}
		alternatives = append(alternatives, fmt.Sprintf("%s (%.0f%%)", pred.Condition, pred.Confidence*100))
	}
	if len(alternatives) > 0 {
		fmt.Fprintf(&b, " Other possibilities considered: %s.", strings.Join(alternatives, ", "))
	}

	if footnote := unavailabilityFootnote(category); footnote != "" {
		b.WriteString(" " + footnote)
	}
	return b.String()
}

// SymptomCorrelation relates extracted symptom keywords to the top
// prediction. When no symptom text was given it says so explicitly.
func (g *FallbackGenerator) SymptomCorrelation(input *models.ConsultationInput, symptoms string) string {
	if strings.TrimSpace(symptoms) == "" {
		return "No symptom description was provided; this assessment is based on the image analysis alone."
	}

	features := ExtractSymptomFeatures(symptoms)
	top := input.TopPrediction()

	if len(features.Keywords) == 0 {
		if top != nil {
			return fmt.Sprintf("The reported symptoms did not contain recognizable skin-symptom keywords, so they could not be correlated with %s.", top.Condition)
		}
		return "The reported symptoms did not contain recognizable skin-symptom keywords."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Reported symptoms include %s", strings.Join(features.Keywords, ", "))
	if features.Duration != "" {
		fmt.Fprintf(&b, " over %s", features.Duration)
	}
	b.WriteString(".")

	if top != nil {
		matched := correlatedKeywords(features.Keywords, top.Condition)
		if len(matched) > 0 {
			fmt.Fprintf(&b, " %s is commonly associated with %s, which is consistent with the top finding.",
				strings.Join(matched, " and "), top.Condition)
		} else {
			fmt.Fprintf(&b, " These symptoms are not specific to %s; mention them to your provider.", top.Condition)
		}
	}

	if features.Severity == "severe" {
		b.WriteString(" The described severity warrants prompt professional evaluation.")
	}

	return b.String()
}

// correlatedKeywords returns the symptom keywords whose affinity list
// matches the condition name.
func correlatedKeywords(keywords []string, conditionName string) []string {
	name := strings.ToLower(conditionName)
	var matched []string
	for _, kw := range keywords {
		for _, cond := range symptomConditionAffinity[kw] {
			if strings.Contains(name, cond) {
				matched = append(matched, kw)
				break
			}
		}
	}
	return matched
}

// Recommendations assembles the ordered list: risk-driven entries first,
// then condition-specific care, then general guidance, then retry guidance,
// capped at MaxRecommendations.
func (g *FallbackGenerator) Recommendations(input *models.ConsultationInput, assessment models.RiskAssessment, category errors.Category) []string {
	var recs []string

	switch assessment.Level {
	case models.RiskHigh:
		recs = append(recs, "URGENT: Seek medical attention promptly - contact a healthcare provider today")
		if assessment.RequiresUrgentCare {
			recs = append(recs, "If symptoms worsen rapidly, go to the nearest emergency department")
		}
	case models.RiskModerate:
		recs = append(recs,
			"Schedule an appointment with a dermatologist within the next week",
			"Monitor the affected area daily for changes in size, color, or texture")
	default:
		recs = append(recs, "Monitor the affected area for changes over the coming weeks")
	}

	if top := input.TopPrediction(); top != nil {
		recs = append(recs, conditionGuidance(top.Condition)...)
	}

	recs = append(recs, generalSkinGuidance...)
	if category != "" {
		recs = append(recs, retryGuidance(category))
	}

	if len(recs) > MaxRecommendations {
		recs = recs[:MaxRecommendations]
	}
	return recs
}

func conditionGuidance(conditionName string) []string {
	name := strings.ToLower(conditionName)
	for keyword, guidance := range conditionCareGuidance {
		if strings.Contains(name, keyword) {
			return guidance
		}
	}
	// Unknown condition names fall through to a default set.
	return []string{
		"Avoid applying new creams or home remedies to the area before a professional has seen it",
		"Keep a daily note of any changes in appearance or sensation",
	}
}

// Urgency selects the recommendation timeline deterministically from the
// risk level and attention flags.
func (g *FallbackGenerator) Urgency(input *models.ConsultationInput, assessment models.RiskAssessment) models.UrgencyLevel {
	for _, pred := range input.Predictions {
		if matchesHighRiskTerm(pred.Condition) {
			return models.UrgencyImmediate
		}
	}
	if assessment.Level == models.RiskHigh {
		return models.UrgencyImmediate
	}

	attention := false
	for _, pred := range input.Predictions {
		if pred.RequiresAttention {
			attention = true
			break
		}
	}

	switch {
	case attention || assessment.Level == models.RiskModerate:
		return models.UrgencyWithinWeek
	case assessment.Level == models.RiskLow:
		return models.UrgencyMonitor
	default:
		return models.UrgencyRoutine
	}
}

// EducationalInfo produces background text about the top prediction.
func (g *FallbackGenerator) EducationalInfo(input *models.ConsultationInput) string {
	top := input.TopPrediction()
	if top == nil {
		return "Skin conditions can share similar appearances, and photographs alone are often not enough to distinguish them. A professional examination is the reliable way to reach a diagnosis."
	}

	var b strings.Builder
	if top.Description != "" {
		fmt.Fprintf(&b, "About %s: %s", top.Condition, strings.TrimSpace(top.Description))
		if !strings.HasSuffix(b.String(), ".") {
			b.WriteString(".")
		}
		b.WriteString(" ")
	} else {
		fmt.Fprintf(&b, "%s is a skin condition that a dermatologist can evaluate through examination and, where needed, testing. ", top.Condition)
	}
	b.WriteString("Skin conditions can share similar appearances; an in-person examination remains the reliable way to confirm a diagnosis.")
	return b.String()
}

// Contacts returns care resources: a dermatologist always, urgent care for
// anything above low risk, and emergency services only for high risk.
func (g *FallbackGenerator) Contacts(assessment models.RiskAssessment) []models.EmergencyContact {
	contacts := []models.EmergencyContact{
		{
			Type:      "dermatologist",
			Name:      "Board-certified dermatologist",
			Contact:   "Use your health plan's find-a-doctor directory",
			Available: "By appointment",
		},
	}

	if assessment.Level == models.RiskHigh {
		contacts = append(contacts, models.EmergencyContact{
			Type:      "emergency",
			Name:      "Emergency services",
			Contact:   "911",
			Available: "24/7",
		})
	}
	if assessment.Level != models.RiskLow {
		contacts = append(contacts, models.EmergencyContact{
			Type:      "urgent_care",
			Name:      "Local urgent care clinic",
			Contact:   "Search for walk-in clinics in your area",
			Available: "Extended hours",
		})
	}

	return contacts
}

// unavailabilityFootnote names why the AI consultation was unavailable. An
// empty category means the section is filling a gap in an otherwise
// successful response, which gets no footnote.
func unavailabilityFootnote(category errors.Category) string {
	switch category {
	case "":
		return ""
	case errors.CategoryRateLimit:
		return "Note: the AI consultation service is experiencing high demand, so this summary was generated locally."
	case errors.CategoryNetwork:
		return "Note: the AI consultation service is temporarily unavailable due to a connectivity issue, so this summary was generated locally."
	case errors.CategoryServiceUnavailable:
		return "Note: the AI consultation service is temporarily unavailable, so this summary was generated locally."
	case errors.CategoryAuthentication:
		return "Note: the AI consultation service could not be reached, so this summary was generated locally."
	default:
		return "Note: the full AI consultation could not be completed, so this summary was generated locally."
	}
}

func retryGuidance(category errors.Category) string {
	switch category {
	case errors.CategoryRateLimit:
		return "The consultation service is under high demand; try again shortly for a more detailed AI analysis"
	case errors.CategoryNetwork, errors.CategoryServiceUnavailable:
		return "The consultation service is temporarily unavailable; try again in a few minutes for a more detailed AI analysis"
	default:
		return "Try the analysis again later for a more detailed AI consultation"
	}
}

func severityOrDefault(severity string) string {
	if strings.TrimSpace(severity) == "" {
		return "unspecified"
	}
	return strings.ToLower(severity)
}
