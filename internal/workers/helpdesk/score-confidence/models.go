// internal/workers/helpdesk/score-confidence/models.go
package scoreconfidence

import "helpdesk-workers/internal/models"

type Input struct {
	TicketText    string `json:"ticketText"`
	ReplyText     string `json:"replyText"`
	ReplyFallback bool   `json:"replyFallback"`
}

type Output struct {
	Confidence        float64               `json:"confidence"`
	ConfidenceBand    models.ConfidenceBand `json:"confidenceBand"`
	Escalate          bool                  `json:"escalate"`
	EscalationMessage string                `json:"escalationMessage"`
}
