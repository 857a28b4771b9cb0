// Package api serves the helpdesk pipeline over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"helpdesk-workers/internal/common/audit"
	"helpdesk-workers/internal/common/camunda"
	"helpdesk-workers/internal/common/llm"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/validation"
	"helpdesk-workers/internal/models"
	processticket "helpdesk-workers/internal/workers/helpdesk/process-ticket"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	maxBodyBytes = 64 << 10
	checkTimeout = 5 * time.Second
)

// Processor runs a ticket through the pipeline.
type Processor interface {
	Process(ctx context.Context, text string) (*models.PipelineResult, error)
}

// ProcessStarter starts a workflow instance for a ticket.
type ProcessStarter interface {
	StartProcess(ctx context.Context, processID string, variables interface{}) (*camunda.ProcessInstance, error)
}

// Check is a named readiness probe.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

type Options struct {
	Processor Processor
	Stats     audit.Stats
	Starter   ProcessStarter
	ProcessID string
	// MaxTicketLength bounds ticketText in request bodies.
	MaxTicketLength int
	Checks          []Check
	Generator       llm.Info
	Service         string
	Version         string
	Logger          logger.Logger
}

type Router struct {
	*mux.Router
	opts   Options
	schema validation.JSONSchema
	logger logger.Logger
}

func NewRouter(opts Options) *Router {
	if opts.MaxTicketLength <= 0 {
		opts.MaxTicketLength = 2000
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewNoOpLogger()
	}

	r := &Router{
		Router: mux.NewRouter(),
		opts:   opts,
		schema: processticket.GetInputSchema(),
		logger: opts.Logger.WithFields(map[string]interface{}{"component": "api"}),
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.Use(r.logRequests)

	r.HandleFunc("/health", r.healthCheck).Methods("GET")
	r.HandleFunc("/ready", r.readyCheck).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	// API routes stay on the root router so a method mismatch yields 405.
	r.HandleFunc("/api/info", r.info).Methods("GET")
	r.HandleFunc("/api/tickets", r.processTicket).Methods("POST")
	r.HandleFunc("/api/tickets/workflow", r.startWorkflow).Methods("POST")
	r.HandleFunc("/api/tickets/stats", r.ticketStats).Methods("GET")
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// readyCheck runs every probe and reports 503 if any fails.
func (r *Router) readyCheck(w http.ResponseWriter, req *http.Request) {
	checks := make(map[string]string, len(r.opts.Checks))
	ready := true
	for _, c := range r.opts.Checks {
		ctx, cancel := context.WithTimeout(req.Context(), checkTimeout)
		err := c.Check(ctx)
		cancel()
		if err != nil {
			ready = false
			checks[c.Name] = err.Error()
			continue
		}
		checks[c.Name] = "ok"
	}

	if !ready {
		respondJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"status": "not_ready", "checks": checks})
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"status": "ready", "checks": checks})
}

func (r *Router) info(w http.ResponseWriter, req *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"service":    r.opts.Service,
		"version":    r.opts.Version,
		"generator":  r.opts.Generator,
		"categories": models.Categories,
		"workflow":   r.opts.Starter != nil,
	})
}

type ticketRequest struct {
	TicketText string `json:"ticketText"`
}

func (r *Router) processTicket(w http.ResponseWriter, req *http.Request) {
	ticket, ok := r.decodeTicket(w, req)
	if !ok {
		return
	}

	result, err := r.opts.Processor.Process(req.Context(), ticket.TicketText)
	if err != nil {
		if errors.Is(err, processticket.ErrInvalidTicket) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		r.logger.Error("ticket processing failed", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "ticket processing failed")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (r *Router) startWorkflow(w http.ResponseWriter, req *http.Request) {
	if r.opts.Starter == nil {
		respondError(w, http.StatusServiceUnavailable, "workflow engine is not enabled")
		return
	}
	ticket, ok := r.decodeTicket(w, req)
	if !ok {
		return
	}

	instance, err := r.opts.Starter.StartProcess(req.Context(), r.opts.ProcessID, map[string]interface{}{
		"ticketText": ticket.TicketText,
	})
	if err != nil {
		r.logger.Error("failed to start workflow", map[string]interface{}{
			"processId": r.opts.ProcessID,
			"error":     err.Error(),
		})
		respondError(w, http.StatusBadGateway, "failed to start workflow")
		return
	}
	respondJSON(w, http.StatusAccepted, instance)
}

func (r *Router) ticketStats(w http.ResponseWriter, req *http.Request) {
	if r.opts.Stats == nil {
		respondError(w, http.StatusServiceUnavailable, "statistics are not available")
		return
	}
	stats, err := r.opts.Stats.Statistics(req.Context())
	if err != nil {
		r.logger.Error("failed to load statistics", map[string]interface{}{"error": err.Error()})
		respondError(w, http.StatusInternalServerError, "failed to load statistics")
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// decodeTicket reads and validates the request body, writing a 400 on failure.
func (r *Router) decodeTicket(w http.ResponseWriter, req *http.Request) (*ticketRequest, bool) {
	body, err := io.ReadAll(http.MaxBytesReader(w, req.Body, maxBodyBytes))
	if err != nil {
		respondError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return nil, false
	}

	result := validation.ValidateJSON(body, r.schema)
	if !result.Valid {
		respondJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error":   "invalid ticket",
			"details": result.Errors,
		})
		return nil, false
	}

	var ticket ticketRequest
	if err := json.Unmarshal(body, &ticket); err != nil {
		respondError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if err := processticket.CheckLength(ticket.TicketText, r.opts.MaxTicketLength); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}
	return &ticket, true
}

func (r *Router) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, req)
		r.logger.Debug("http request", map[string]interface{}{
			"method":     req.Method,
			"path":       req.URL.Path,
			"status":     sw.status,
			"durationMs": time.Since(start).Milliseconds(),
		})
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
