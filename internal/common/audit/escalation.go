package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type EscalationConfig struct {
	TopicARN  string
	FromEmail string
	To        []string
}

// EscalationNotifier tells the support team about tickets that need a
// human. Results that do not escalate are ignored.
type EscalationNotifier struct {
	config EscalationConfig
	sns    SNSService
	ses    SESService
	logger logger.Logger
}

// NewEscalationNotifier accepts nil for either client to disable that channel.
func NewEscalationNotifier(cfg EscalationConfig, snsClient SNSService, sesClient SESService, log logger.Logger) *EscalationNotifier {
	return &EscalationNotifier{
		config: cfg,
		sns:    snsClient,
		ses:    sesClient,
		logger: log.WithFields(map[string]interface{}{"component": "audit", "sink": "escalation"}),
	}
}

type escalationEvent struct {
	TicketID   string  `json:"ticketId"`
	Ticket     string  `json:"ticket"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reply      string  `json:"reply"`
	Message    string  `json:"message"`
	Timestamp  string  `json:"timestamp"`
}

func (n *EscalationNotifier) Record(ctx context.Context, r models.PipelineResult) {
	if !r.Escalate {
		return
	}

	if n.sns != nil && n.config.TopicARN != "" {
		if err := n.publish(ctx, r); err != nil {
			n.fail("sns", r, err)
		}
	}
	if n.ses != nil && n.config.FromEmail != "" && len(n.config.To) > 0 {
		if err := n.email(ctx, r); err != nil {
			n.fail("ses", r, err)
		}
	}
}

func (n *EscalationNotifier) publish(ctx context.Context, r models.PipelineResult) error {
	body, err := json.Marshal(escalationEvent{
		TicketID:   r.TicketID.String(),
		Ticket:     truncate(r.Ticket, maxTicketChars),
		Category:   string(r.Classification.Category),
		Confidence: r.Confidence.Score,
		Reply:      truncate(r.Reply.Text, maxReplyChars),
		Message:    r.EscalationMessage,
		Timestamp:  r.Timestamp.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.config.TopicARN),
		Subject:  aws.String(subject(r)),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"category": {DataType: aws.String("String"), StringValue: aws.String(string(r.Classification.Category))},
		},
	})
	return err
}

func (n *EscalationNotifier) email(ctx context.Context, r models.PipelineResult) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Ticket %s needs human review.\n\n", r.TicketID)
	fmt.Fprintf(&b, "Category: %s (%s)\n", r.Classification.Category, r.Classification.Source)
	fmt.Fprintf(&b, "Confidence: %.2f\n\n", r.Confidence.Score)
	fmt.Fprintf(&b, "Ticket:\n%s\n\n", truncate(r.Ticket, maxTicketChars))
	fmt.Fprintf(&b, "Draft reply:\n%s\n", truncate(r.Reply.Text, maxReplyChars))

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{ToAddresses: n.config.To},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject(r))},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(b.String())},
			},
		},
		Source: aws.String(n.config.FromEmail),
	})
	return err
}

func (n *EscalationNotifier) fail(channel string, r models.PipelineResult, err error) {
	metrics.SinkFailures.WithLabelValues("escalation_" + channel).Inc()
	sendErr := apperrors.NewNotificationSendFailedError(channel, err)
	n.logger.Error("escalation notification failed", map[string]interface{}{
		"code":     string(sendErr.Code),
		"ticketId": r.TicketID.String(),
		"error":    sendErr.Details,
	})
}

func subject(r models.PipelineResult) string {
	return fmt.Sprintf("[Helpdesk] %s ticket escalated (confidence %.2f)", r.Classification.Category, r.Confidence.Score)
}
