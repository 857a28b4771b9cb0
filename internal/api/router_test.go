package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"helpdesk-workers/internal/common/audit"
	"helpdesk-workers/internal/common/camunda"
	"helpdesk-workers/internal/common/knowledge"
	"helpdesk-workers/internal/common/llm"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/models"
	processticket "helpdesk-workers/internal/workers/helpdesk/process-ticket"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type processorFunc func(ctx context.Context, text string) (*models.PipelineResult, error)

func (f processorFunc) Process(ctx context.Context, text string) (*models.PipelineResult, error) {
	return f(ctx, text)
}

type fakeStarter struct {
	processID string
	vars      interface{}
	err       error
}

func (s *fakeStarter) StartProcess(_ context.Context, processID string, variables interface{}) (*camunda.ProcessInstance, error) {
	s.processID = processID
	s.vars = variables
	if s.err != nil {
		return nil, s.err
	}
	return &camunda.ProcessInstance{ProcessInstanceKey: 42, BpmnProcessID: processID, Version: 1}, nil
}

// newPipeline wires the real stage handlers with generation disabled.
func newPipeline(t *testing.T, sink audit.Sink) *processticket.Handler {
	log := logger.NewTestLogger(t)
	store := knowledge.NewMemoryStore(models.PolicyDocument{
		ID:       "vpn_policy",
		Category: models.CategoryIT,
		Text:     "Connect to the VPN with the company client and your SSO credentials.",
		Priority: 1,
	})
	stages := processticket.NewStageHandlers(nil, llm.Disabled{}, store, log).Stages()
	return processticket.NewHandler(processticket.LoadConfig(nil), stages, log, processticket.WithSink(sink))
}

func do(t *testing.T, r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v))
}

func TestHealth(t *testing.T) {
	r := NewRouter(Options{Logger: logger.NewTestLogger(t)})

	rec := do(t, r, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	decode(t, rec, &body)
	assert.Equal(t, "healthy", body["status"])
}

func TestReady(t *testing.T) {
	ok := Check{Name: "postgres", Check: func(context.Context) error { return nil }}
	down := Check{Name: "genai", Check: func(context.Context) error { return llm.ErrUnavailable }}

	t.Run("all checks pass", func(t *testing.T) {
		r := NewRouter(Options{Checks: []Check{ok}})
		rec := do(t, r, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusOK, rec.Code)

		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		decode(t, rec, &body)
		assert.Equal(t, "ready", body.Status)
		assert.Equal(t, "ok", body.Checks["postgres"])
	})

	t.Run("one check fails", func(t *testing.T) {
		r := NewRouter(Options{Checks: []Check{ok, down}})
		rec := do(t, r, http.MethodGet, "/ready", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body struct {
			Status string            `json:"status"`
			Checks map[string]string `json:"checks"`
		}
		decode(t, rec, &body)
		assert.Equal(t, "not_ready", body.Status)
		assert.Equal(t, "ok", body.Checks["postgres"])
		assert.Equal(t, "GENERATION_UNAVAILABLE", body.Checks["genai"])
	})
}

func TestMetrics(t *testing.T) {
	r := NewRouter(Options{})
	rec := do(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestInfo(t *testing.T) {
	r := NewRouter(Options{
		Service:   "helpdesk-workers",
		Version:   "1.0.0",
		Generator: llm.Info{Provider: "openai", Model: "gpt-4o-mini", MaxTokens: 300, Decoding: llm.DecodingGreedy},
	})
	rec := do(t, r, http.MethodGet, "/api/info", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Service    string   `json:"service"`
		Generator  llm.Info `json:"generator"`
		Categories []string `json:"categories"`
		Workflow   bool     `json:"workflow"`
	}
	decode(t, rec, &body)
	assert.Equal(t, "helpdesk-workers", body.Service)
	assert.Equal(t, "openai", body.Generator.Provider)
	assert.Equal(t, []string{"IT", "HR", "Finance", "Admin", "Other"}, body.Categories)
	assert.False(t, body.Workflow)
}

func TestProcessTicket_EndToEnd(t *testing.T) {
	mem := audit.NewMemorySink(10)
	r := NewRouter(Options{Processor: newPipeline(t, mem), Stats: mem})

	rec := do(t, r, http.MethodPost, "/api/tickets", `{"ticketText": "My VPN is not working"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var result models.PipelineResult
	decode(t, rec, &result)
	assert.Equal(t, models.CategoryIT, result.Classification.Category)
	assert.Equal(t, models.SourceFallback, result.Classification.Source)
	assert.Equal(t, "vpn_policy", result.Context.DocumentID)
	assert.True(t, result.Reply.Fallback)
	assert.Equal(t, 0.2, result.Confidence.Score)
	assert.True(t, result.Escalate)
	assert.Equal(t, models.EscalationMessage, result.EscalationMessage)

	rec = do(t, r, http.MethodGet, "/api/tickets/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var stats models.TicketStatistics
	decode(t, rec, &stats)
	assert.Equal(t, 1, stats.TotalTickets)
	assert.Equal(t, 1, stats.CategoryBreakdown[models.CategoryIT])
	assert.Equal(t, 100.0, stats.EscalationRate)
	require.Len(t, stats.Recent, 1)
	assert.Equal(t, result.TicketID.String(), stats.Recent[0].TicketID)
}

func TestProcessTicket_RejectsInvalidBodies(t *testing.T) {
	called := false
	r := NewRouter(Options{
		MaxTicketLength: 10,
		Processor: processorFunc(func(context.Context, string) (*models.PipelineResult, error) {
			called = true
			return &models.PipelineResult{}, nil
		}),
	})

	tests := []struct {
		name string
		body string
	}{
		{"not json", `ticket please`},
		{"missing field", `{}`},
		{"empty text", `{"ticketText": ""}`},
		{"wrong type", `{"ticketText": 12}`},
		{"too long", `{"ticketText": "` + strings.Repeat("a", 11) + `"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, r, http.MethodPost, "/api/tickets", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var body map[string]interface{}
			decode(t, rec, &body)
			assert.NotEmpty(t, body["error"])
		})
	}
	assert.False(t, called)
}

func TestProcessTicket_LengthIgnoresSurroundingWhitespace(t *testing.T) {
	var got string
	r := NewRouter(Options{
		MaxTicketLength: 10,
		Processor: processorFunc(func(_ context.Context, text string) (*models.PipelineResult, error) {
			got = text
			return &models.PipelineResult{}, nil
		}),
	})

	body := `{"ticketText": "   ` + strings.Repeat("a", 10) + `   "}`
	rec := do(t, r, http.MethodPost, "/api/tickets", body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "   "+strings.Repeat("a", 10)+"   ", got)
}

func TestProcessTicket_WhitespaceRejectedByPipeline(t *testing.T) {
	mem := audit.NewMemorySink(10)
	r := NewRouter(Options{Processor: newPipeline(t, mem)})

	rec := do(t, r, http.MethodPost, "/api/tickets", `{"ticketText": "   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, mem.Results())
}

func TestProcessTicket_InternalError(t *testing.T) {
	r := NewRouter(Options{
		Processor: processorFunc(func(context.Context, string) (*models.PipelineResult, error) {
			return nil, errors.New("boom")
		}),
	})
	rec := do(t, r, http.MethodPost, "/api/tickets", `{"ticketText": "hello"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "boom")
}

func TestStartWorkflow(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		r := NewRouter(Options{})
		rec := do(t, r, http.MethodPost, "/api/tickets/workflow", `{"ticketText": "hello"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("started", func(t *testing.T) {
		starter := &fakeStarter{}
		r := NewRouter(Options{Starter: starter, ProcessID: "helpdesk-ticket"})
		rec := do(t, r, http.MethodPost, "/api/tickets/workflow", `{"ticketText": "Need a new laptop"}`)
		require.Equal(t, http.StatusAccepted, rec.Code)

		var instance camunda.ProcessInstance
		decode(t, rec, &instance)
		assert.Equal(t, int64(42), instance.ProcessInstanceKey)
		assert.Equal(t, "helpdesk-ticket", starter.processID)
		assert.Equal(t, map[string]interface{}{"ticketText": "Need a new laptop"}, starter.vars)
	})

	t.Run("engine error", func(t *testing.T) {
		r := NewRouter(Options{Starter: &fakeStarter{err: errors.New("unavailable")}, ProcessID: "helpdesk-ticket"})
		rec := do(t, r, http.MethodPost, "/api/tickets/workflow", `{"ticketText": "hello"}`)
		assert.Equal(t, http.StatusBadGateway, rec.Code)
	})

	t.Run("invalid body", func(t *testing.T) {
		starter := &fakeStarter{}
		r := NewRouter(Options{Starter: starter})
		rec := do(t, r, http.MethodPost, "/api/tickets/workflow", `{}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Empty(t, starter.processID)
	})
}

type statsFunc func(ctx context.Context) (*models.TicketStatistics, error)

func (f statsFunc) Statistics(ctx context.Context) (*models.TicketStatistics, error) { return f(ctx) }

func TestTicketStats(t *testing.T) {
	t.Run("unavailable", func(t *testing.T) {
		rec := do(t, NewRouter(Options{}), http.MethodGet, "/api/tickets/stats", "")
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("error", func(t *testing.T) {
		r := NewRouter(Options{Stats: statsFunc(func(context.Context) (*models.TicketStatistics, error) {
			return nil, errors.New("db down")
		})})
		rec := do(t, r, http.MethodGet, "/api/tickets/stats", "")
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("empty", func(t *testing.T) {
		r := NewRouter(Options{Stats: audit.NewMemorySink(10)})
		rec := do(t, r, http.MethodGet, "/api/tickets/stats", "")
		require.Equal(t, http.StatusOK, rec.Code)

		var stats models.TicketStatistics
		decode(t, rec, &stats)
		assert.Zero(t, stats.TotalTickets)
		assert.NotNil(t, stats.Recent)
	})
}

func TestMethodNotAllowed(t *testing.T) {
	r := NewRouter(Options{})

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/tickets"},
		{http.MethodPost, "/api/tickets/stats"},
		{http.MethodGet, "/api/tickets/workflow"},
		{http.MethodPost, "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := do(t, r, tt.method, tt.path, "")
			assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
		})
	}

	rec := do(t, r, http.MethodGet, "/api/unknown", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
