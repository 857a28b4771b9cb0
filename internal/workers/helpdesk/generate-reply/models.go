// internal/workers/helpdesk/generate-reply/models.go
package generatereply

type Input struct {
	TicketText   string `json:"ticketText"`
	DocumentText string `json:"documentText"`
}

type Output struct {
	ReplyText     string `json:"replyText"`
	ReplyFallback bool   `json:"replyFallback"`
}
