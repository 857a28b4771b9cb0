package scoreconfidence

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/llm"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	generatereply "helpdesk-workers/internal/workers/helpdesk/generate-reply"
	"helpdesk-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "helpdesk-score-confidence"
	Stage    = "score"
)

const promptTemplate = `You are evaluating how confident the AI helpdesk is in the reply below.

Ticket: %s
Reply: %s

Respond with a number between 0.0 and 1.0 representing confidence.
Only return the number.`

var scorePattern = regexp.MustCompile(`0\.\d+|1\.0|0|1`)

type Handler struct {
	config    *Config
	generator llm.Generator
	errors    *apperrors.ErrorHandler
	logger    logger.Logger
}

// NewHandler accepts a nil generator when model-assisted scoring is off.
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

	reply := models.GeneratedReply{Text: input.ReplyText, Fallback: input.ReplyFallback}
	if strings.TrimSpace(reply.Text) == "" {
		reply = generatereply.FallbackReply()
	}

	score := h.Score(ctx, input.TicketText, reply)
	out := &Output{
		Confidence:     score.Score,
		ConfidenceBand: score.Band(),
		Escalate:       score.Escalate,
	}
	if score.Escalate {
		out.EscalationMessage = models.EscalationMessage
	}
	return out, nil
}

// Score rates reply against ticket. Fallback replies always score
// FallbackScore, which is below the escalation threshold.
func (h *Handler) Score(ctx context.Context, ticket string, reply models.GeneratedReply) models.ConfidenceScore {
	var score models.ConfidenceScore
	method := "heuristic"

	switch {
	case reply.Fallback || reply.Text == generatereply.DefaultReply:
		score = models.NewConfidenceScore(FallbackScore)
		method = "fallback"
	case h.config.ModelAssisted:
		if v, err := h.scoreWithModel(ctx, ticket, reply.Text); err == nil {
			score = models.NewConfidenceScore(v)
			method = "model"
		} else {
			metrics.StageFallbacks.WithLabelValues(Stage).Inc()
			h.logger.Warn("model scoring unusable, using heuristic", map[string]interface{}{"error": err.Error()})
			score = models.NewConfidenceScore(Heuristic(ticket, reply.Text))
		}
	default:
		score = models.NewConfidenceScore(Heuristic(ticket, reply.Text))
	}

	metrics.ConfidenceScores.Observe(score.Score)
	h.logger.Debug("reply scored", map[string]interface{}{
		"score":    score.Score,
		"escalate": score.Escalate,
		"method":   method,
	})
	return score
}

func (h *Handler) scoreWithModel(ctx context.Context, ticket, reply string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.GenerationTimeout)
	defer cancel()

	raw, err := h.generator.Generate(ctx, fmt.Sprintf(promptTemplate, ticket, reply), llm.GreedyParams(h.config.MaxTokens))
	if err != nil {
		return 0, err
	}
	return ParseScore(raw)
}

// ParseScore extracts the first number between 0 and 1 from a model answer.
func ParseScore(raw string) (float64, error) {
	match := scorePattern.FindString(raw)
	if match == "" {
		return 0, fmt.Errorf("%w: no score in %q", llm.ErrUnavailable, raw)
	}
	return strconv.ParseFloat(match, 64)
}
