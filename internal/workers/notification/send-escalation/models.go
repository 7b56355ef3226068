// internal/workers/notification/send-escalation/models.go
package sendescalation

const (
	StatusSent    = "sent"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

type Input struct {
	SessionID    string   `json:"sessionId"`
	RiskLevel    string   `json:"riskLevel"`
	UrgencyLevel string   `json:"urgencyLevel"`
	Condition    string   `json:"condition,omitempty"`
	Email        string   `json:"email,omitempty"`
	Phone        string   `json:"phone,omitempty"`
	Factors      []string `json:"factors,omitempty"`
}

type Output struct {
	EscalationID string `json:"escalationId"`
	Status       string `json:"status"`
	EmailSent    bool   `json:"emailSent"`
	SMSSent      bool   `json:"smsSent"`
	SentAt       string `json:"sentAt"`
}
