// internal/consultation/risk.go
package consultation

import (
	"fmt"
	"strings"

	"biolens-workers/internal/models"
)

// highRiskConditionTerms force the risk level to high on a name match,
// regardless of the classifier's own label. This override is a deliberate
// safety floor and must take precedence over the classifier.
var highRiskConditionTerms = []string{
	"melanoma",
	"carcinoma",
	"malignant",
	"cancer",
	"lymphoma",
	"sarcoma",
}

func matchesHighRiskTerm(conditionName string) bool {
	name := strings.ToLower(conditionName)
	for _, term := range highRiskConditionTerms {
		if strings.Contains(name, term) {
			return true
		}
	}
	return false
}

// AssessRisk derives a RiskAssessment from the prediction list and the
// classifier-supplied risk label. Deterministic, no side effects.
func AssessRisk(input *models.ConsultationInput) models.RiskAssessment {
	assessment := models.RiskAssessment{
		Level: normalizeRiskLevel(input.RiskLevel),
	}

	for _, pred := range input.Predictions {
		if matchesHighRiskTerm(pred.Condition) {
			assessment.Level = models.RiskHigh
			assessment.RequiresUrgentCare = true
			assessment.Factors = append(assessment.Factors,
				fmt.Sprintf("%s requires prompt clinical evaluation", pred.Condition))
		}
		if pred.Confidence > 0.8 {
			assessment.Factors = append(assessment.Factors,
				fmt.Sprintf("high classifier confidence (%.0f%%) in %s", pred.Confidence*100, pred.Condition))
		}
		if pred.RequiresAttention {
			assessment.Factors = append(assessment.Factors,
				fmt.Sprintf("%s flagged as requiring attention", pred.Condition))
		}
	}

	if assessment.Level == models.RiskHigh {
		assessment.RequiresUrgentCare = true
	}

	return assessment
}

func normalizeRiskLevel(label string) models.RiskLevel {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low":
		return models.RiskLow
	case "high":
		return models.RiskHigh
	default:
		return models.RiskModerate
	}
}
