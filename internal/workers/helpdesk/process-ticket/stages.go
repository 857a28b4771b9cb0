package processticket

import (
	"context"

	"helpdesk-workers/internal/common/config"
	"helpdesk-workers/internal/common/knowledge"
	"helpdesk-workers/internal/common/llm"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/models"
	classifyticket "helpdesk-workers/internal/workers/helpdesk/classify-ticket"
	generatereply "helpdesk-workers/internal/workers/helpdesk/generate-reply"
	retrievecontext "helpdesk-workers/internal/workers/helpdesk/retrieve-context"
	scoreconfidence "helpdesk-workers/internal/workers/helpdesk/score-confidence"
)

type Classifier interface {
	Classify(ctx context.Context, text string) models.ClassificationResult
}

type Retriever interface {
	Retrieve(ctx context.Context, category models.Category) models.RetrievedContext
}

type Responder interface {
	Respond(ctx context.Context, ticket string, rc models.RetrievedContext) models.GeneratedReply
}

type Scorer interface {
	Score(ctx context.Context, ticket string, reply models.GeneratedReply) models.ConfidenceScore
}

// Stages holds the four pipeline stages in execution order.
type Stages struct {
	Classifier Classifier
	Retriever  Retriever
	Responder  Responder
	Scorer     Scorer
}

// StageHandlers are the concrete stage workers. They also serve as
// standalone Camunda job handlers.
type StageHandlers struct {
	Classify *classifyticket.Handler
	Retrieve *retrievecontext.Handler
	Respond  *generatereply.Handler
	Score    *scoreconfidence.Handler
}

// NewStageHandlers wires the stage workers to one generator and store.
func NewStageHandlers(cfg *config.Config, gen llm.Generator, store knowledge.Store, log logger.Logger) *StageHandlers {
	return &StageHandlers{
		Classify: classifyticket.NewHandler(classifyticket.LoadConfig(cfg), gen, log),
		Retrieve: retrievecontext.NewHandler(retrievecontext.LoadConfig(cfg), store, log),
		Respond:  generatereply.NewHandler(generatereply.LoadConfig(cfg), gen, log),
		Score:    scoreconfidence.NewHandler(scoreconfidence.LoadConfig(cfg), gen, log),
	}
}

func (s *StageHandlers) Stages() Stages {
	return Stages{
		Classifier: s.Classify,
		Retriever:  s.Retrieve,
		Responder:  s.Respond,
		Scorer:     s.Score,
	}
}
