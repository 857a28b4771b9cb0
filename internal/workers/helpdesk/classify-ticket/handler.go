package classifyticket

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/llm"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "helpdesk-classify-ticket"
	Stage    = "classify"
)

const promptTemplate = `You are a ticket classifier for an employee helpdesk. Read the following message and classify it into one of the categories:
- IT
- HR
- Finance
- Admin
- Other

Only return the category name.

Message:
"%s"`

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

	h.completeJob(ctx, client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	if strings.TrimSpace(input.TicketText) == "" {
		return nil, apperrors.NewTicketInvalidError("ticketText is empty")
	}
	result := h.Classify(ctx, input.TicketText)
	return &Output{Category: result.Category, ClassificationSource: result.Source}, nil
}

// Classify asks the generator for a category and falls back to keyword
// matching when the call fails or the answer is not a known category. It
// always returns one of models.Categories.
func (h *Handler) Classify(ctx context.Context, text string) models.ClassificationResult {
	category, err := h.classifyWithModel(ctx, text)
	if err == nil {
		metrics.ClassificationSource.WithLabelValues(string(models.SourceModel)).Inc()
		h.logger.Debug("ticket classified by model", map[string]interface{}{"category": string(category)})
		return models.ClassificationResult{Category: category, Source: models.SourceModel}
	}

	category = MatchKeywords(text)
	metrics.ClassificationSource.WithLabelValues(string(models.SourceFallback)).Inc()
	metrics.StageFallbacks.WithLabelValues(Stage).Inc()
	h.logger.Warn("model classification unusable, matched keywords", map[string]interface{}{
		"category": string(category),
		"error":    err.Error(),
	})
	return models.ClassificationResult{Category: category, Source: models.SourceFallback}
}

func (h *Handler) classifyWithModel(ctx context.Context, text string) (models.Category, error) {
	ctx, cancel := context.WithTimeout(ctx, h.config.GenerationTimeout)
	defer cancel()

	raw, err := h.generator.Generate(ctx, fmt.Sprintf(promptTemplate, text), llm.GreedyParams(h.config.MaxTokens))
	if err != nil {
		return "", err
	}
	return ParseCategory(raw)
}

// ParseCategory reads the first non-empty line of a model answer, strips
// surrounding quotes and punctuation and matches it against the category
// names ignoring case.
func ParseCategory(raw string) (models.Category, error) {
	var line string
	for _, l := range strings.Split(raw, "\n") {
		if strings.TrimSpace(l) != "" {
			line = l
			break
		}
	}

	token := strings.TrimFunc(line, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	if c, ok := models.ParseCategory(token); ok {
		return c, nil
	}
	return "", apperrors.NewUnknownCategoryError(raw)
}

func (h *Handler) completeJob(ctx context.Context, client worker.JobClient, job entities.Job, output *Output) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		h.logger.Error("failed to create complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}
	if _, err := cmd.Send(ctx); err != nil {
		h.logger.Error("failed to send complete job command", map[string]interface{}{
			"error": err,
		})
		return
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":   job.Key,
		"category": string(output.Category),
		"source":   string(output.ClassificationSource),
	})
}
