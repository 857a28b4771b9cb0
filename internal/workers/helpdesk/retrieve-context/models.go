// internal/workers/helpdesk/retrieve-context/models.go
package retrievecontext

import "helpdesk-workers/internal/models"

type Input struct {
	Category models.Category `json:"category"`
}

type Output struct {
	DocumentID   string `json:"documentId"`
	DocumentText string `json:"documentText"`
	ContextFound bool   `json:"contextFound"`
}

func toOutput(c models.RetrievedContext) *Output {
	return &Output{
		DocumentID:   c.DocumentID,
		DocumentText: c.DocumentText,
		ContextFound: c.Found,
	}
}
