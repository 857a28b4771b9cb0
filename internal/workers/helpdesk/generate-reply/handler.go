package generatereply

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/llm"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "helpdesk-generate-reply"
	Stage    = "respond"
)

// DefaultReply is returned whenever the generator cannot produce a reply.
const DefaultReply = "Thank you for your inquiry. I'm currently experiencing technical difficulties. " +
	"Please contact our support team directly for immediate assistance."

const promptTemplate = `You are a company helpdesk assistant. Answer employees in a professional, empathetic and friendly voice.

Employee ticket: %s

Company policy: %s

Write a concise, helpful response in 2-3 sentences. Be direct and skip formal greetings. Focus on the solution and use the policy when it applies.`

// FallbackReply is the reply used when generation fails.
func FallbackReply() models.GeneratedReply {
	return models.GeneratedReply{Text: DefaultReply, Fallback: true}
}

type Handler struct {
	config    *Config
	generator llm.Generator
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

func NewHandler(config *Config, generator llm.Generator, log logger.Logger) *Handler {
	if generator == nil {
		generator = llm.Disabled{}
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:    config,
		generator: generator,
		errors:    apperrors.NewErrorHandler(l),
		logger:    l,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.errors.HandleJobError(ctx, client, job, apperrors.NewSchemaValidationFailedError(fmt.Sprintf("parse input: %v", err)))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.errors.HandleJobError(ctx, client, job, err)
		return
	}

	cmd, err := client.NewCompleteJobCommand().JobKey(job.Key).VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{"error": err})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{"error": err})
	}
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.TicketText) == "" {
		return nil, apperrors.NewTicketInvalidError("ticketText is empty")
	}

	docText := input.DocumentText
	if strings.TrimSpace(docText) == "" {
		docText = models.NoPolicyFound
	}
	reply := h.Respond(ctx, input.TicketText, models.RetrievedContext{DocumentText: docText})
	return &Output{ReplyText: reply.Text, ReplyFallback: reply.Fallback}, nil
}

// Respond makes one bounded, greedy generation call. Failures, timeouts and
// empty output yield DefaultReply with Fallback set; the text is never empty.
func (h *Handler) Respond(ctx context.Context, ticket string, rc models.RetrievedContext) models.GeneratedReply {
	ctx, cancel := context.WithTimeout(ctx, h.config.GenerationTimeout)
	defer cancel()

	prompt := fmt.Sprintf(promptTemplate, ticket, rc.DocumentText)
	text, err := h.generator.Generate(ctx, prompt, llm.GreedyParams(h.config.MaxTokens))
	if err == nil {
		text = llm.CleanResponse(text)
	}
	if err != nil || text == "" {
		if err == nil {
			err = fmt.Errorf("%w: empty reply", llm.ErrUnavailable)
		}
		metrics.StageFallbacks.WithLabelValues(Stage).Inc()
		h.logger.Warn("reply generation failed, using default reply", map[string]interface{}{
			"error": err.Error(),
		})
		return FallbackReply()
	}

	return models.GeneratedReply{Text: text}
}
