// internal/workers/consultation/generate-consultation/models.go
package generateconsultation

import "biolens-workers/internal/models"

type Input struct {
	Predictions []models.Prediction `json:"predictions"`
	Symptoms    string              `json:"symptoms,omitempty"`
	SessionID   string              `json:"sessionId"`
	RiskLevel   string              `json:"riskLevel,omitempty"`
	CreatedAt   string              `json:"createdAt,omitempty"`
}

type Output struct {
	Consultation   *models.ConsultationResponse `json:"consultation"`
	ConsultationID string                       `json:"consultationId,omitempty"`
	SessionID      string                       `json:"sessionId"`
}
