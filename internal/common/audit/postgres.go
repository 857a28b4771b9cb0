package audit

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"time"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/metrics"
	"helpdesk-workers/internal/models"
)

const DefaultTable = "helpdesk_ticket_log"

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// PostgresSink appends one row per ticket to an audit table.
type PostgresSink struct {
	db     *sql.DB
	table  string
	logger logger.Logger
}

func NewPostgresSink(db *sql.DB, table string, log logger.Logger) (*PostgresSink, error) {
	if table == "" {
		table = DefaultTable
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid audit table name %q", table)
	}
	return &PostgresSink{
		db:     db,
		table:  table,
		logger: log.WithFields(map[string]interface{}{"component": "audit", "sink": "postgres"}),
	}, nil
}

// EnsureSchema creates the audit table and its timestamp index when missing.
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id UUID PRIMARY KEY,
	ticket TEXT NOT NULL,
	category VARCHAR(16) NOT NULL,
	classification_source VARCHAR(16) NOT NULL,
	document_id TEXT,
	context_found BOOLEAN NOT NULL,
	reply TEXT NOT NULL,
	reply_fallback BOOLEAN NOT NULL,
	confidence NUMERIC(3,2) NOT NULL,
	escalate BOOLEAN NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
)`, s.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_created_at_idx ON %s (created_at DESC)`, s.table, s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return apperrors.NewQueryExecutionFailedError("ensure_schema", err)
		}
	}
	return nil
}

func (s *PostgresSink) Record(ctx context.Context, r models.PipelineResult) {
	if err := s.Insert(ctx, r); err != nil {
		metrics.SinkFailures.WithLabelValues("postgres").Inc()
		s.logger.Error("failed to write audit record", map[string]interface{}{
			"ticketId": r.TicketID.String(),
			"error":    err,
		})
	}
}

// Insert writes r, truncating the ticket and reply text.
func (s *PostgresSink) Insert(ctx context.Context, r models.PipelineResult) error {
	query := fmt.Sprintf(`INSERT INTO %s
	(id, ticket, category, classification_source, document_id, context_found, reply, reply_fallback, confidence, escalate, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, s.table)

	var documentID sql.NullString
	if r.Context.DocumentID != "" {
		documentID = sql.NullString{String: r.Context.DocumentID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		r.TicketID.String(),
		truncate(r.Ticket, maxTicketChars),
		string(r.Classification.Category),
		string(r.Classification.Source),
		documentID,
		r.Context.Found,
		truncate(r.Reply.Text, maxReplyChars),
		r.Reply.Fallback,
		r.Confidence.Score,
		r.Escalate,
		r.Timestamp.UTC(),
	)
	if err != nil {
		return apperrors.NewAuditRecordFailedError("postgres", err)
	}
	return nil
}

// Statistics summarizes every recorded ticket.
func (s *PostgresSink) Statistics(ctx context.Context) (*models.TicketStatistics, error) {
	stats := emptyStatistics()

	var avg float64
	var escalated int
	totalsQuery := fmt.Sprintf(`SELECT COUNT(*), COALESCE(AVG(confidence), 0), COUNT(*) FILTER (WHERE escalate) FROM %s`, s.table)
	if err := s.db.QueryRowContext(ctx, totalsQuery).Scan(&stats.TotalTickets, &avg, &escalated); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("ticket_totals", err)
	}
	if stats.TotalTickets == 0 {
		return stats, nil
	}
	stats.AverageConfidence = round(avg, 2)
	stats.EscalationRate = round(float64(escalated)/float64(stats.TotalTickets)*100, 1)

	if err := s.categoryBreakdown(ctx, stats.CategoryBreakdown); err != nil {
		return nil, err
	}

	recent, err := s.db.QueryContext(ctx, fmt.Sprintf(
		`SELECT id, ticket, category, confidence, escalate, created_at FROM %s ORDER BY created_at DESC LIMIT $1`, s.table),
		recentTickets)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("recent_tickets", err)
	}
	defer recent.Close()

	for recent.Next() {
		var sum models.TicketSummary
		var category string
		var createdAt time.Time
		if err := recent.Scan(&sum.TicketID, &sum.Ticket, &category, &sum.Confidence, &sum.Escalate, &createdAt); err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("recent_tickets", err)
		}
		sum.Category = models.Category(category)
		sum.Timestamp = createdAt
		stats.Recent = append(stats.Recent, sum)
	}
	if err := recent.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("recent_tickets", err)
	}
	return stats, nil
}

func (s *PostgresSink) categoryBreakdown(ctx context.Context, into map[models.Category]int) error {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT category, COUNT(*) FROM %s GROUP BY category`, s.table))
	if err != nil {
		return apperrors.NewQueryExecutionFailedError("category_breakdown", err)
	}
	defer rows.Close()

	for rows.Next() {
		var category string
		var count int
		if err := rows.Scan(&category, &count); err != nil {
			return apperrors.NewQueryExecutionFailedError("category_breakdown", err)
		}
		into[models.Category(category)] = count
	}
	if err := rows.Err(); err != nil {
		return apperrors.NewQueryExecutionFailedError("category_breakdown", err)
	}
	return nil
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
