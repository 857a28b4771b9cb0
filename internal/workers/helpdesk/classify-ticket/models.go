// internal/workers/helpdesk/classify-ticket/models.go
package classifyticket

import "helpdesk-workers/internal/models"

type Input struct {
	TicketText string `json:"ticketText"`
}

type Output struct {
	Category             models.Category             `json:"category"`
	ClassificationSource models.ClassificationSource `json:"classificationSource"`
}
