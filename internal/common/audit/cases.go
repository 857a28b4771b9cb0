package audit

import (
	"context"
	"fmt"
	"strings"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/common/zoho"
	"helpdesk-workers/internal/models"
)

// CaseCreator is satisfied by *zoho.CRMClient.
type CaseCreator interface {
	CreateCase(ctx context.Context, c *zoho.Case) (string, error)
}

// CaseSink opens a CRM case for every escalated ticket so a person picks it up.
type CaseSink struct {
	crm    CaseCreator
	logger logger.Logger
}

func NewCaseSink(crm CaseCreator, log logger.Logger) *CaseSink {
	return &CaseSink{
		crm:    crm,
		logger: log.WithFields(map[string]interface{}{"component": "audit", "sink": "zoho"}),
	}
}

func (s *CaseSink) Record(ctx context.Context, r models.PipelineResult) {
	if !r.Escalate {
		return
	}

	id, err := s.crm.CreateCase(ctx, ticketCase(r))
	if err != nil {
		metrics.SinkFailures.WithLabelValues("escalation_zoho").Inc()
		sendErr := apperrors.NewNotificationSendFailedError("zoho", err)
		s.logger.Error("failed to open crm case", map[string]interface{}{
			"code":     string(sendErr.Code),
			"ticketId": r.TicketID.String(),
			"error":    sendErr.Details,
		})
		return
	}
	s.logger.Info("crm case opened", map[string]interface{}{
		"ticketId": r.TicketID.String(),
		"caseId":   id,
	})
}

func ticketCase(r models.PipelineResult) *zoho.Case {
	var b strings.Builder
	fmt.Fprintf(&b, "Helpdesk ticket %s\n", r.TicketID)
	fmt.Fprintf(&b, "Confidence: %.2f\n", r.Confidence.Score)
	if r.Context.Found {
		fmt.Fprintf(&b, "Policy: %s\n", r.Context.DocumentID)
	}
	fmt.Fprintf(&b, "\nTicket:\n%s\n\nDraft reply:\n%s\n", truncate(r.Ticket, maxTicketChars), truncate(r.Reply.Text, maxReplyChars))

	return &zoho.Case{
		Subject:     subject(r),
		Description: b.String(),
		Status:      "New",
		Priority:    "High",
		Origin:      "Web",
		Type:        "Problem",
		Reason:      string(r.Classification.Category),
	}
}
