// internal/consultation/fallback_test.go
package consultation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"biolens-workers/internal/common/errors"
	"biolens-workers/internal/models"
)

func eczemaInput() *models.ConsultationInput {
	return &models.ConsultationInput{
		Predictions: []models.Prediction{
			{Condition: "Eczema", Confidence: 0.78, Severity: "moderate", Category: "inflammatory"},
			{Condition: "Contact Dermatitis", Confidence: 0.15, Severity: "mild"},
		},
		Symptoms:  "severe itching and redness for 2 weeks",
		SessionID: "sess-eczema",
		RiskLevel: "moderate",
	}
}

func melanomaInput() *models.ConsultationInput {
	return &models.ConsultationInput{
		Predictions: []models.Prediction{
			{Condition: "Melanoma", Confidence: 0.65, Severity: "high", RequiresAttention: true},
		},
		SessionID: "sess-melanoma",
		RiskLevel: "high",
	}
}

func TestFallback_ModerateEczemaNetworkFailure(t *testing.T) {
	g := NewFallbackGenerator()
	input := eczemaInput()
	assessment := AssessRisk(input)

	resp := g.Generate(input, input.Symptoms, assessment, errors.CategoryNetwork)
	require.NotNil(t, resp)

	// Metadata marks the degraded path.
	assert.True(t, resp.Metadata.FallbackUsed)
	assert.True(t, resp.Metadata.SafetyValidated)
	assert.Equal(t, "local-fallback", resp.Metadata.ModelUsed)
	assert.Equal(t, string(errors.CategoryNetwork), resp.Metadata.ErrorCategory)
	assert.InDelta(t, 0.78, resp.Metadata.ConfidenceScore, 0.001)

	// Assessment names the condition and the connectivity footnote.
	assert.Contains(t, resp.Consultation.ConditionAssessment, "Eczema")
	assert.Contains(t, resp.Consultation.ConditionAssessment, "78%")
	assert.Contains(t, resp.Consultation.ConditionAssessment, "connectivity")

	// Correlation links the itching to eczema.
	assert.Contains(t, resp.Consultation.SymptomCorrelation, "itching")
	assert.Contains(t, strings.ToLower(resp.Consultation.SymptomCorrelation), "eczema")

	// Moderate risk yields a substantial, capped recommendation list.
	assert.GreaterOrEqual(t, len(resp.Consultation.Recommendations), 6)
	assert.LessOrEqual(t, len(resp.Consultation.Recommendations), MaxRecommendations)
	assert.Equal(t, models.UrgencyWithinWeek, resp.Consultation.UrgencyLevel)

	// No emergency contact for non-high risk.
	for _, contact := range resp.EmergencyContacts {
		assert.NotEqual(t, "emergency", contact.Type)
	}

	assert.Contains(t, strings.ToLower(resp.Consultation.Disclaimer), disclaimerMarker)
}

func TestFallback_HighRiskMelanoma(t *testing.T) {
	g := NewFallbackGenerator()
	input := melanomaInput()
	assessment := AssessRisk(input)

	resp := g.Generate(input, "", assessment, errors.CategoryServiceUnavailable)
	require.NotNil(t, resp)

	assert.Equal(t, models.UrgencyImmediate, resp.Consultation.UrgencyLevel)

	// The first recommendation is the urgent-care instruction.
	require.NotEmpty(t, resp.Consultation.Recommendations)
	assert.Contains(t, resp.Consultation.Recommendations[0], "URGENT")

	// Emergency services are listed for high risk.
	var hasEmergency, hasDermatologist bool
	for _, contact := range resp.EmergencyContacts {
		switch contact.Type {
		case "emergency":
			hasEmergency = true
		case "dermatologist":
			hasDermatologist = true
		}
	}
	assert.True(t, hasEmergency)
	assert.True(t, hasDermatologist)

	// No symptoms were provided and the correlation says so.
	assert.Contains(t, resp.Consultation.SymptomCorrelation, "No symptom description was provided")
}

func TestFallback_RateLimitFootnote(t *testing.T) {
	g := NewFallbackGenerator()
	input := eczemaInput()

	resp := g.Generate(input, input.Symptoms, AssessRisk(input), errors.CategoryRateLimit)

	assert.Contains(t, resp.Consultation.ConditionAssessment, "high demand")
	joined := strings.Join(resp.Consultation.Recommendations, "\n")
	assert.Contains(t, joined, "try again")
}

func TestFallback_UnknownConditionStillComplete(t *testing.T) {
	g := NewFallbackGenerator()
	input := &models.ConsultationInput{
		Predictions: []models.Prediction{
			{Condition: "Unrecognized Finding", Confidence: 0.4},
		},
		RiskLevel: "low",
	}

	resp := g.Generate(input, "", AssessRisk(input), errors.CategoryUnknown)

	assert.NotEmpty(t, resp.Consultation.ConditionAssessment)
	assert.NotEmpty(t, resp.Consultation.Recommendations)
	assert.NotEmpty(t, resp.Consultation.EducationalInfo)
	assert.Equal(t, models.UrgencyMonitor, resp.Consultation.UrgencyLevel)
	assert.Contains(t, strings.ToLower(resp.Consultation.Disclaimer), disclaimerMarker)
}

func TestFallback_ContactsPolicy(t *testing.T) {
	g := NewFallbackGenerator()

	low := g.Contacts(models.RiskAssessment{Level: models.RiskLow})
	assert.Len(t, low, 1)
	assert.Equal(t, "dermatologist", low[0].Type)

	moderate := g.Contacts(models.RiskAssessment{Level: models.RiskModerate})
	assert.Len(t, moderate, 2)

	high := g.Contacts(models.RiskAssessment{Level: models.RiskHigh})
	assert.Len(t, high, 3)
}

func TestFallback_AlternativesListedInAssessment(t *testing.T) {
	g := NewFallbackGenerator()
	input := eczemaInput()

	text := g.ConditionAssessment(input, errors.CategoryNetwork)

	assert.Contains(t, text, "Contact Dermatitis")
	assert.Contains(t, text, "15%")
}
