package retrievecontext

import (
	"context"
	"encoding/json"
	"fmt"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/knowledge"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "helpdesk-retrieve-context"
	Stage    = "retrieve"
)

type Handler struct {
	config *Config
	store  knowledge.Store
	errors *apperrors.ErrorHandler
	logger logger.Logger
}

func NewHandler(config *Config, store knowledge.Store, log logger.Logger) *Handler {
	if store == nil {
		store = knowledge.NewMemoryStore()
	}
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config: config,
		store:  store,
		errors: apperrors.NewErrorHandler(l),
		logger: l,
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
	category, ok := models.ParseCategory(string(input.Category))
	if !ok {
		return nil, apperrors.NewSchemaValidationFailedError(fmt.Sprintf("unknown category %q", input.Category))
	}
	return toOutput(h.Retrieve(ctx, category)), nil
}

// Retrieve returns the first registered document with text for category, or
// the "No policy found" sentinel. Store failures are logged and treated as an
// empty category.
func (h *Handler) Retrieve(ctx context.Context, category models.Category) models.RetrievedContext {
	docs, err := h.store.Documents(ctx, category)
	if err != nil {
		metrics.StageFallbacks.WithLabelValues(Stage).Inc()
		lookupErr := apperrors.NewKnowledgeLookupFailedError(string(category), err)
		h.logger.Warn("knowledge lookup failed", map[string]interface{}{
			"code":  string(lookupErr.Code),
			"error": lookupErr.Details,
		})
		return models.NotFoundContext()
	}

	doc, ok := knowledge.First(docs)
	if !ok {
		h.logger.Debug("no policy registered", map[string]interface{}{"category": string(category)})
		return models.NotFoundContext()
	}

	h.logger.Debug("policy retrieved", map[string]interface{}{
		"category":   string(category),
		"documentId": doc.ID,
		"length":     len(doc.Text),
	})
	return models.RetrievedContext{
		DocumentID:   doc.ID,
		DocumentText: doc.Text,
		Found:        true,
	}
}
