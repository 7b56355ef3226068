// internal/workers/consultation/consultation-history/models.go
package consultationhistory

import "biolens-workers/internal/consultation/store"

type Input struct {
	SessionID string `json:"sessionId"`
	Limit     int    `json:"limit,omitempty"`
}

type Output struct {
	SessionID string         `json:"sessionId"`
	History   []store.Record `json:"history"`
	Count     int            `json:"count"`
}
