// internal/models/consultation.go
package models

import "time"

// RiskLevel summarizes how urgently a set of predictions should be acted on.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskModerate RiskLevel = "moderate"
	RiskHigh     RiskLevel = "high"
)

// UrgencyLevel is the caller-facing recommendation timeline.
type UrgencyLevel string

const (
	UrgencyImmediate  UrgencyLevel = "immediate"
	UrgencyWithinWeek UrgencyLevel = "within_week"
	UrgencyRoutine    UrgencyLevel = "routine"
	UrgencyMonitor    UrgencyLevel = "monitor"
)

// Prediction is one condition hypothesis produced by the upstream classifier.
type Prediction struct {
	Condition         string  `json:"condition"`
	Confidence        float64 `json:"confidence"`
	Severity          string  `json:"severity"`
	Category          string  `json:"category"`
	RequiresAttention bool    `json:"requiresAttention"`
	Description       string  `json:"description,omitempty"`
}

// ConsultationInput is the immutable per-request value the orchestrator
// works from. RiskLevel carries the classifier's own risk label.
type ConsultationInput struct {
	Predictions []Prediction `json:"predictions"`
	Symptoms    string       `json:"symptoms"`
	SessionID   string       `json:"sessionId"`
	RiskLevel   string       `json:"riskLevel"`
	CreatedAt   time.Time    `json:"createdAt"`
}

// TopPrediction returns the highest-confidence prediction, or nil when the
// prediction list is empty.
func (in *ConsultationInput) TopPrediction() *Prediction {
	if len(in.Predictions) == 0 {
		return nil
	}
	top := &in.Predictions[0]
	for i := 1; i < len(in.Predictions); i++ {
		if in.Predictions[i].Confidence > top.Confidence {
			top = &in.Predictions[i]
		}
	}
	return top
}

// RiskAssessment is derived fresh per request and never stored.
type RiskAssessment struct {
	Level              RiskLevel `json:"level"`
	Factors            []string  `json:"factors"`
	RequiresUrgentCare bool      `json:"requiresUrgentCare"`
}

// EmergencyContact points the user at a care resource.
type EmergencyContact struct {
	Type      string `json:"type"` // "dermatologist", "urgent_care", "emergency"
	Name      string `json:"name"`
	Contact   string `json:"contact"`
	Available string `json:"available"`
}

// ConsultationBody is the human-readable consultation content. Every field
// is always populated, regardless of which path produced it.
type ConsultationBody struct {
	ConditionAssessment string       `json:"conditionAssessment"`
	SymptomCorrelation  string       `json:"symptomCorrelation"`
	Recommendations     []string     `json:"recommendations"`
	UrgencyLevel        UrgencyLevel `json:"urgencyLevel"`
	EducationalInfo     string       `json:"educationalInfo"`
	Disclaimer          string       `json:"disclaimer"`
}

// ResponseMetadata describes how the consultation was produced.
type ResponseMetadata struct {
	ModelUsed        string  `json:"modelUsed"`
	ProcessingTimeMs int64   `json:"processingTimeMs"`
	ConfidenceScore  float64 `json:"confidenceScore"`
	FallbackUsed     bool    `json:"fallbackUsed"`
	SafetyValidated  bool    `json:"safetyValidated"`
	ErrorCategory    string  `json:"errorCategory,omitempty"`
}

// ConsultationResponse is the sole externally observable artifact of the
// orchestrator. Constructed once per request, never mutated after return.
type ConsultationResponse struct {
	Consultation      ConsultationBody   `json:"consultation"`
	Metadata          ResponseMetadata   `json:"metadata"`
	EmergencyContacts []EmergencyContact `json:"emergencyContacts,omitempty"`
}

// ErrorRecord is one categorized failure kept in the orchestrator's bounded
// history. Read-only once written.
type ErrorRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
	Category  string    `json:"category"`
}
