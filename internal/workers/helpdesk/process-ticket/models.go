// internal/workers/helpdesk/process-ticket/models.go
package processticket

import (
	"time"

	"helpdesk-workers/internal/models"
)

type Input struct {
	TicketText string `json:"ticketText"`
}

// Output is written back to the process instance. The flat fields drive
// gateways in the BPMN model; Result carries the full record.
type Output struct {
	TicketID             string                      `json:"ticketId"`
	Category             models.Category             `json:"category"`
	ClassificationSource models.ClassificationSource `json:"classificationSource"`
	ContextFound         bool                        `json:"contextFound"`
	ReplyText            string                      `json:"replyText"`
	ReplyFallback        bool                        `json:"replyFallback"`
	Confidence           float64                     `json:"confidence"`
	Escalate             bool                        `json:"escalate"`
	EscalationMessage    string                      `json:"escalationMessage"`
	Result               *models.PipelineResult      `json:"result"`
}

func toOutput(r *models.PipelineResult) *Output {
	return &Output{
		TicketID:             r.TicketID.String(),
		Category:             r.Classification.Category,
		ClassificationSource: r.Classification.Source,
		ContextFound:         r.Context.Found,
		ReplyText:            r.Reply.Text,
		ReplyFallback:        r.Reply.Fallback,
		Confidence:           r.Confidence.Score,
		Escalate:             r.Escalate,
		EscalationMessage:    r.EscalationMessage,
		Result:               r,
	}
}

// StageEvent reports one finished stage to an Observer.
type StageEvent struct {
	TicketID  string
	Stage     string
	Output    interface{}
	Duration  time.Duration
	Recovered bool
}

// Observer receives stage events in pipeline order.
type Observer func(StageEvent)
