// Package audit records processed tickets. Sinks never return errors to the
// pipeline; they log and count their own failures.
package audit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/models"
)

// Sink receives one record per processed ticket.
type Sink interface {
	Record(ctx context.Context, result models.PipelineResult)
}

// Stats is implemented by sinks that can summarize what they recorded.
type Stats interface {
	Statistics(ctx context.Context) (*models.TicketStatistics, error)
}

const (
	maxTicketChars = 500
	maxReplyChars  = 1000
	recentTickets  = 5
)

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, result models.PipelineResult)

func (f SinkFunc) Record(ctx context.Context, result models.PipelineResult) { f(ctx, result) }

// Discard drops every record.
var Discard Sink = SinkFunc(func(context.Context, models.PipelineResult) {})

// LogSink writes the record as a structured log line.
type LogSink struct {
	logger logger.Logger
}

func NewLogSink(log logger.Logger) *LogSink {
	return &LogSink{logger: log.WithFields(map[string]interface{}{"component": "audit"})}
}

func (s *LogSink) Record(_ context.Context, r models.PipelineResult) {
	s.logger.Info("ticket processed", map[string]interface{}{
		"ticketId":             r.TicketID.String(),
		"ticket":               truncate(r.Ticket, maxTicketChars),
		"category":             string(r.Classification.Category),
		"classificationSource": string(r.Classification.Source),
		"contextFound":         r.Context.Found,
		"replyFallback":        r.Reply.Fallback,
		"confidence":           r.Confidence.Score,
		"escalate":             r.Escalate,
		"timestamp":            r.Timestamp,
	})
}

// MultiSink fans a record out to every sink concurrently and waits for all of
// them. A panicking sink is counted as a failure and does not stop the others.
type MultiSink struct {
	sinks   []namedSink
	timeout time.Duration
	logger  logger.Logger
}

type namedSink struct {
	name string
	sink Sink
}

func NewMultiSink(log logger.Logger) *MultiSink {
	return &MultiSink{logger: log.WithFields(map[string]interface{}{"component": "audit"})}
}

// Add registers sink under name, which is used as the metrics label.
func (m *MultiSink) Add(name string, sink Sink) *MultiSink {
	m.sinks = append(m.sinks, namedSink{name: name, sink: sink})
	return m
}

// WithTimeout bounds each sink separately. Zero leaves only the caller's
// deadline.
func (m *MultiSink) WithTimeout(d time.Duration) *MultiSink {
	m.timeout = d
	return m
}

func (m *MultiSink) Len() int { return len(m.sinks) }

func (m *MultiSink) Record(ctx context.Context, result models.PipelineResult) {
	var wg sync.WaitGroup
	for _, s := range m.sinks {
		wg.Add(1)
		go func(s namedSink) {
			defer wg.Done()
			m.record(ctx, s, result)
		}(s)
	}
	wg.Wait()
}

func (m *MultiSink) record(ctx context.Context, s namedSink, result models.PipelineResult) {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			metrics.SinkFailures.WithLabelValues(s.name).Inc()
			m.logger.Error("audit sink panicked", map[string]interface{}{
				"sink":  s.name,
				"panic": fmt.Sprint(r),
			})
		}
	}()
	s.sink.Record(ctx, result)
}

// MemorySink keeps the most recent results in memory. It backs the
// statistics endpoint when no database is configured.
type MemorySink struct {
	mu      sync.Mutex
	limit   int
	results []models.PipelineResult
}

func NewMemorySink(limit int) *MemorySink {
	if limit <= 0 {
		limit = 1000
	}
	return &MemorySink{limit: limit}
}

func (s *MemorySink) Record(_ context.Context, r models.PipelineResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	if len(s.results) > s.limit {
		s.results = s.results[len(s.results)-s.limit:]
	}
}

func (s *MemorySink) Results() []models.PipelineResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.PipelineResult, len(s.results))
	copy(out, s.results)
	return out
}

func (s *MemorySink) Statistics(_ context.Context) (*models.TicketStatistics, error) {
	results := s.Results()

	stats := emptyStatistics()
	stats.TotalTickets = len(results)
	if len(results) == 0 {
		return stats, nil
	}

	var sum float64
	var escalated int
	for _, r := range results {
		stats.CategoryBreakdown[r.Classification.Category]++
		sum += r.Confidence.Score
		if r.Escalate {
			escalated++
		}
	}
	stats.AverageConfidence = round(sum/float64(len(results)), 2)
	stats.EscalationRate = round(float64(escalated)/float64(len(results))*100, 1)

	for i := len(results) - 1; i >= 0 && len(stats.Recent) < recentTickets; i-- {
		stats.Recent = append(stats.Recent, summarize(results[i]))
	}
	return stats, nil
}

func emptyStatistics() *models.TicketStatistics {
	return &models.TicketStatistics{
		CategoryBreakdown: make(map[models.Category]int),
		Recent:            []models.TicketSummary{},
	}
}

func summarize(r models.PipelineResult) models.TicketSummary {
	return models.TicketSummary{
		TicketID:   r.TicketID.String(),
		Ticket:     truncate(r.Ticket, maxTicketChars),
		Category:   r.Classification.Category,
		Confidence: r.Confidence.Score,
		Escalate:   r.Escalate,
		Timestamp:  r.Timestamp,
	}
}
