package processticket

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"helpdesk-workers/internal/common/audit"
	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/common/observability"
	"helpdesk-workers/internal/common/validation"
	"helpdesk-workers/internal/models"
	classifyticket "helpdesk-workers/internal/workers/helpdesk/classify-ticket"
	generatereply "helpdesk-workers/internal/workers/helpdesk/generate-reply"
	retrievecontext "helpdesk-workers/internal/workers/helpdesk/retrieve-context"
	scoreconfidence "helpdesk-workers/internal/workers/helpdesk/score-confidence"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	TaskType = "helpdesk-process-ticket"
)

// ErrInvalidTicket is returned before any stage runs when the ticket text is
// empty, whitespace only or longer than the configured maximum.
var ErrInvalidTicket = errors.New("TICKET_INVALID")

type Handler struct {
	config   *Config
	stages   Stages
	sink     audit.Sink
	obs      *observability.Observability
	tracer   trace.Tracer
	observer Observer
	now      func() time.Time
	newID    func() uuid.UUID
	schema   validation.JSONSchema
	errors   *apperrors.ErrorHandler
	logger   logger.Logger
}

type Option func(*Handler)

// WithSink sets where finished results are recorded.
func WithSink(s audit.Sink) Option {
	return func(h *Handler) { h.sink = s }
}

// WithObserver registers a callback for partial progress.
func WithObserver(o Observer) Option {
	return func(h *Handler) { h.observer = o }
}

func WithObservability(obs *observability.Observability) Option {
	return func(h *Handler) { h.obs = obs }
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(h *Handler) { h.tracer = tp.Tracer(observability.TracerName) }
}

func WithClock(now func() time.Time) Option {
	return func(h *Handler) { h.now = now }
}

func WithIDGenerator(newID func() uuid.UUID) Option {
	return func(h *Handler) { h.newID = newID }
}

func NewHandler(config *Config, stages Stages, log logger.Logger, opts ...Option) *Handler {
	l := log.WithFields(map[string]interface{}{"taskType": TaskType})
	h := &Handler{
		config: config,
		stages: stages,
		sink:   audit.Discard,
		tracer: otel.Tracer(observability.TracerName),
		now:    time.Now,
		newID:  uuid.New,
		schema: GetInputSchema(),
		errors: apperrors.NewErrorHandler(l),
		logger: l,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if result := validation.ValidateJSON([]byte(job.Variables), h.schema); !result.Valid {
		metrics.TicketsRejected.Inc()
		h.errors.HandleJobError(ctx, client, job, apperrors.NewSchemaValidationFailedError(validationMessage(result)))
		return
	}

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
		return
	}

	h.logger.Info("job completed", map[string]interface{}{
		"jobKey":   job.Key,
		"ticketId": output.TicketID,
		"escalate": output.Escalate,
	})
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	result, err := h.Process(ctx, input.TicketText)
	if err != nil {
		if errors.Is(err, ErrInvalidTicket) {
			return nil, apperrors.NewTicketInvalidError(err.Error())
		}
		return nil, err
	}
	return toOutput(result), nil
}

// Validate reports whether text may enter the pipeline.
func (h *Handler) Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("%w: ticket text is empty", ErrInvalidTicket)
	}
	return CheckLength(text, h.config.MaxTicketLength)
}

// Process runs classify, retrieve, respond and score in order. Every stage
// runs even when an earlier one degraded, and a panicking stage is replaced
// by its fallback output. Only invalid input returns an error.
func (h *Handler) Process(ctx context.Context, text string) (*models.PipelineResult, error) {
	if err := h.Validate(text); err != nil {
		metrics.TicketsRejected.Inc()
		h.logger.Warn("ticket rejected", map[string]interface{}{"error": err.Error()})
		return nil, err
	}

	start := h.now()
	id := h.newID()
	ctx, span := h.tracer.Start(ctx, "helpdesk.process_ticket", trace.WithAttributes(
		attribute.String("ticket.id", id.String()),
		attribute.Int("ticket.length", utf8.RuneCountInString(text)),
	))
	defer span.End()

	p := &run{h: h, ticketID: id.String()}

	classification := stage(ctx, p, classifyticket.Stage,
		func(ctx context.Context) models.ClassificationResult { return h.stages.Classifier.Classify(ctx, text) },
		func() models.ClassificationResult {
			return models.ClassificationResult{Category: classifyticket.MatchKeywords(text), Source: models.SourceFallback}
		})

	rc := stage(ctx, p, retrievecontext.Stage,
		func(ctx context.Context) models.RetrievedContext {
			return h.stages.Retriever.Retrieve(ctx, classification.Category)
		},
		models.NotFoundContext)
	if !rc.Found || rc.DocumentText == "" {
		rc = models.NotFoundContext()
	}

	reply := stage(ctx, p, generatereply.Stage,
		func(ctx context.Context) models.GeneratedReply { return h.stages.Responder.Respond(ctx, text, rc) },
		generatereply.FallbackReply)
	if strings.TrimSpace(reply.Text) == "" {
		reply = generatereply.FallbackReply()
	}

	score := stage(ctx, p, scoreconfidence.Stage,
		func(ctx context.Context) models.ConfidenceScore { return h.stages.Scorer.Score(ctx, text, reply) },
		func() models.ConfidenceScore { return models.NewConfidenceScore(0) })
	score = models.NewConfidenceScore(score.Score)

	result := &models.PipelineResult{
		TicketID:       id,
		Ticket:         text,
		Classification: classification,
		Context:        rc,
		Reply:          reply,
		Confidence:     score,
		Escalate:       score.Escalate,
		Timestamp:      h.now().UTC(),
	}
	if result.Escalate {
		result.EscalationMessage = models.EscalationMessage
	}

	elapsed := h.now().Sub(start)
	span.SetAttributes(
		attribute.String("ticket.category", string(classification.Category)),
		attribute.String("ticket.classification_source", string(classification.Source)),
		attribute.Bool("ticket.context_found", rc.Found),
		attribute.Float64("ticket.confidence", score.Score),
		attribute.Bool("ticket.escalate", result.Escalate),
	)
	metrics.TicketsProcessed.WithLabelValues(string(classification.Category), strconv.FormatBool(result.Escalate)).Inc()
	h.obs.RecordTicket(ctx, string(classification.Category), result.Escalate, elapsed)

	h.logger.Info("ticket processed", map[string]interface{}{
		"ticketId":   result.TicketID.String(),
		"category":   string(classification.Category),
		"source":     string(classification.Source),
		"found":      rc.Found,
		"fallback":   reply.Fallback,
		"confidence": score.Score,
		"escalate":   result.Escalate,
		"durationMs": elapsed.Milliseconds(),
	})

	h.record(ctx, *result)
	return result, nil
}

// record hands the result to the sink under its own deadline. The caller's
// cancellation does not cut the write short.
func (h *Handler) record(ctx context.Context, result models.PipelineResult) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), h.config.SinkTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			metrics.SinkFailures.WithLabelValues("pipeline").Inc()
			h.logger.Error("result sink panicked", map[string]interface{}{
				"ticketId": result.TicketID.String(),
				"panic":    fmt.Sprint(r),
			})
		}
	}()
	h.sink.Record(ctx, result)
}

type run struct {
	h        *Handler
	ticketID string
}

// stage runs fn inside a span, substituting fallback() if fn panics, and
// reports the output to metrics and the observer.
func stage[T any](ctx context.Context, p *run, name string, fn func(context.Context) T, fallback func() T) T {
	h := p.h
	ctx, span := h.tracer.Start(ctx, "helpdesk.stage."+name)
	defer span.End()

	start := h.now()
	out, recovered := invoke(ctx, fn, fallback, func(r interface{}) {
		metrics.StageFallbacks.WithLabelValues(name).Inc()
		span.SetStatus(codes.Error, "stage panicked")
		span.SetAttributes(attribute.String("panic", fmt.Sprint(r)))
		h.logger.Error("stage panicked, using fallback", map[string]interface{}{
			"ticketId": p.ticketID,
			"stage":    name,
			"panic":    fmt.Sprint(r),
		})
	})
	elapsed := h.now().Sub(start)

	metrics.StageDuration.WithLabelValues(name).Observe(elapsed.Seconds())
	h.obs.RecordStage(ctx, name, recovered, elapsed)
	span.SetAttributes(attribute.Bool("stage.recovered", recovered))

	if h.observer != nil {
		h.notify(StageEvent{
			TicketID:  p.ticketID,
			Stage:     name,
			Output:    out,
			Duration:  elapsed,
			Recovered: recovered,
		})
	}
	return out
}

func invoke[T any](ctx context.Context, fn func(context.Context) T, fallback func() T, onPanic func(interface{})) (out T, recovered bool) {
	defer func() {
		if r := recover(); r != nil {
			onPanic(r)
			out, recovered = fallback(), true
		}
	}()
	return fn(ctx), false
}

// notify keeps a misbehaving observer from breaking the pipeline.
func (h *Handler) notify(ev StageEvent) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Warn("stage observer panicked", map[string]interface{}{
				"stage": ev.Stage,
				"panic": fmt.Sprint(r),
			})
		}
	}()
	h.observer(ev)
}
