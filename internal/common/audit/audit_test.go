package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "helpdesk-workers/internal/common/errors"
	"helpdesk-workers/internal/common/logger"
	"helpdesk-workers/internal/common/zoho"
	"helpdesk-workers/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mocks
// ==========================

type MockSESService struct {
	SendEmailFunc func(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
	calls         int
}

func (m *MockSESService) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	m.calls++
	if m.SendEmailFunc != nil {
		return m.SendEmailFunc(ctx, params, optFns...)
	}
	return &ses.SendEmailOutput{}, nil
}

type MockSNSService struct {
	PublishFunc func(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
	calls       int
}

func (m *MockSNSService) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	m.calls++
	if m.PublishFunc != nil {
		return m.PublishFunc(ctx, params, optFns...)
	}
	return &sns.PublishOutput{}, nil
}

func sampleResult(category models.Category, score float64) models.PipelineResult {
	conf := models.NewConfidenceScore(score)
	r := models.PipelineResult{
		TicketID:       uuid.New(),
		Ticket:         "I can't access the VPN from home",
		Classification: models.ClassificationResult{Category: category, Source: models.SourceFallback},
		Context:        models.RetrievedContext{DocumentID: "vpn", DocumentText: "VPN policy", Found: true},
		Reply:          models.GeneratedReply{Text: "Please reinstall the VPN client from the IT portal."},
		Confidence:     conf,
		Escalate:       conf.Escalate,
		Timestamp:      time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
	}
	if r.Escalate {
		r.EscalationMessage = models.EscalationMessage
	}
	return r
}

// ==========================
// Postgres sink
// ==========================

func TestNewPostgresSink_TableName(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sink, err := NewPostgresSink(db, "", logger.NewTestLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultTable, sink.table)

	_, err = NewPostgresSink(db, "tickets; DROP TABLE users", logger.NewTestLogger(t))
	assert.Error(t, err)
}

func TestPostgresSink_EnsureSchema(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS helpdesk_ticket_log`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`CREATE INDEX IF NOT EXISTS helpdesk_ticket_log_created_at_idx`).WillReturnResult(sqlmock.NewResult(0, 0))

	sink, err := NewPostgresSink(db, DefaultTable, logger.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, sink.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Insert(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	r := sampleResult(models.CategoryIT, 0.75)
	r.Ticket = strings.Repeat("a", 600)
	r.Reply.Text = strings.Repeat("b", 1200)

	mock.ExpectExec(`INSERT INTO helpdesk_ticket_log`).
		WithArgs(r.TicketID.String(), strings.Repeat("a", 500), "IT", "fallback", "vpn", true,
			strings.Repeat("b", 1000), false, 0.75, false, r.Timestamp).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sink, err := NewPostgresSink(db, DefaultTable, logger.NewTestLogger(t))
	require.NoError(t, err)
	require.NoError(t, sink.Insert(context.Background(), r))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_RecordSwallowsErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO helpdesk_ticket_log`).WillReturnError(errors.New("connection refused"))

	sink, err := NewPostgresSink(db, DefaultTable, logger.NewTestLogger(t))
	require.NoError(t, err)

	assert.NotPanics(t, func() { sink.Record(context.Background(), sampleResult(models.CategoryHR, 0.4)) })
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_Statistics(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT COUNT\(\*\), COALESCE\(AVG\(confidence\), 0\)`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "escalated"}).AddRow(4, 0.6, 1))
	mock.ExpectQuery(`SELECT category, COUNT\(\*\) FROM helpdesk_ticket_log GROUP BY category`).
		WillReturnRows(sqlmock.NewRows([]string{"category", "count"}).AddRow("IT", 3).AddRow("HR", 1))
	mock.ExpectQuery(`SELECT id, ticket, category, confidence, escalate, created_at FROM helpdesk_ticket_log`).
		WithArgs(5).
		WillReturnRows(sqlmock.NewRows([]string{"id", "ticket", "category", "confidence", "escalate", "created_at"}).
			AddRow("11111111-1111-1111-1111-111111111111", "vpn down", "IT", 0.4, true, now))

	sink, err := NewPostgresSink(db, DefaultTable, logger.NewTestLogger(t))
	require.NoError(t, err)

	stats, err := sink.Statistics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, stats.TotalTickets)
	assert.Equal(t, 0.6, stats.AverageConfidence)
	assert.Equal(t, 25.0, stats.EscalationRate)
	assert.Equal(t, 3, stats.CategoryBreakdown[models.CategoryIT])
	require.Len(t, stats.Recent, 1)
	assert.Equal(t, models.CategoryIT, stats.Recent[0].Category)
	assert.True(t, stats.Recent[0].Escalate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_StatisticsEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "escalated"}).AddRow(0, 0.0, 0))

	sink, err := NewPostgresSink(db, DefaultTable, logger.NewTestLogger(t))
	require.NoError(t, err)

	stats, err := sink.Statistics(context.Background())
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTickets)
	assert.NotNil(t, stats.CategoryBreakdown)
	assert.Empty(t, stats.Recent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresSink_StatisticsQueryError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).WillReturnError(errors.New("relation does not exist"))

	sink, err := NewPostgresSink(db, DefaultTable, logger.NewTestLogger(t))
	require.NoError(t, err)

	_, err = sink.Statistics(context.Background())
	assert.Error(t, err)
}

func TestPostgresSink_StatisticsBreakdownRowError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT`).
		WillReturnRows(sqlmock.NewRows([]string{"count", "avg", "escalated"}).AddRow(4, 0.6, 1))
	mock.ExpectQuery(`SELECT category, COUNT\(\*\)`).
		WillReturnRows(sqlmock.NewRows([]string{"category", "count"}).
			AddRow("IT", 3).
			AddRow("HR", 1).
			RowError(1, errors.New("connection reset")))

	sink, err := NewPostgresSink(db, DefaultTable, logger.NewTestLogger(t))
	require.NoError(t, err)

	stats, err := sink.Statistics(context.Background())
	require.Error(t, err)
	assert.Nil(t, stats)

	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeQueryExecutionFailed, stdErr.Code)
	assert.Contains(t, stdErr.Details, "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ==========================
// Memory and multi sinks
// ==========================

func TestMemorySink_Statistics(t *testing.T) {
	sink := NewMemorySink(3)
	ctx := context.Background()

	stats, err := sink.Statistics(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.TotalTickets)

	sink.Record(ctx, sampleResult(models.CategoryOther, 0.1))
	sink.Record(ctx, sampleResult(models.CategoryIT, 0.8))
	sink.Record(ctx, sampleResult(models.CategoryIT, 0.4))
	sink.Record(ctx, sampleResult(models.CategoryHR, 0.9))

	stats, err = sink.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTickets)
	assert.Equal(t, 2, stats.CategoryBreakdown[models.CategoryIT])
	assert.Zero(t, stats.CategoryBreakdown[models.CategoryOther])
	assert.Equal(t, 0.7, stats.AverageConfidence)
	assert.Equal(t, 33.3, stats.EscalationRate)
	require.Len(t, stats.Recent, 3)
	assert.Equal(t, models.CategoryHR, stats.Recent[0].Category)
}

func TestMultiSink_ContainsPanics(t *testing.T) {
	var mu sync.Mutex
	var got []string
	collect := func(name string) Sink {
		return SinkFunc(func(context.Context, models.PipelineResult) {
			mu.Lock()
			defer mu.Unlock()
			got = append(got, name)
		})
	}
	multi := NewMultiSink(logger.NewTestLogger(t)).
		Add("first", collect("first")).
		Add("broken", SinkFunc(func(context.Context, models.PipelineResult) { panic("boom") })).
		Add("last", collect("last"))

	assert.NotPanics(t, func() { multi.Record(context.Background(), sampleResult(models.CategoryIT, 0.9)) })
	assert.ElementsMatch(t, []string{"first", "last"}, got)
	assert.Equal(t, 3, multi.Len())
}

func TestMultiSink_SlowSinkDoesNotStarveOthers(t *testing.T) {
	fastCtxErr := make(chan error, 1)
	multi := NewMultiSink(logger.NewTestLogger(t)).
		WithTimeout(50*time.Millisecond).
		Add("slow", SinkFunc(func(ctx context.Context, _ models.PipelineResult) {
			<-ctx.Done()
		})).
		Add("fast", SinkFunc(func(ctx context.Context, _ models.PipelineResult) {
			fastCtxErr <- ctx.Err()
		}))

	start := time.Now()
	multi.Record(context.Background(), sampleResult(models.CategoryIT, 0.4))
	elapsed := time.Since(start)

	assert.NoError(t, <-fastCtxErr)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, time.Second)
}

func TestLogSink_Record(t *testing.T) {
	assert.NotPanics(t, func() {
		NewLogSink(logger.NewTestLogger(t)).Record(context.Background(), sampleResult(models.CategoryAdmin, 0.5))
	})
}

// ==========================
// Escalation notifier
// ==========================

func TestEscalationNotifier(t *testing.T) {
	cfg := EscalationConfig{
		TopicARN:  "arn:aws:sns:us-east-1:123456789012:helpdesk-escalations",
		FromEmail: "helpdesk@example.com",
		To:        []string{"support@example.com"},
	}

	t.Run("skips confident results", func(t *testing.T) {
		snsMock, sesMock := &MockSNSService{}, &MockSESService{}
		n := NewEscalationNotifier(cfg, snsMock, sesMock, logger.NewTestLogger(t))
		n.Record(context.Background(), sampleResult(models.CategoryIT, 0.9))
		assert.Zero(t, snsMock.calls)
		assert.Zero(t, sesMock.calls)
	})

	t.Run("notifies both channels", func(t *testing.T) {
		var published *sns.PublishInput
		var sent *ses.SendEmailInput
		snsMock := &MockSNSService{PublishFunc: func(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
			published = in
			return &sns.PublishOutput{}, nil
		}}
		sesMock := &MockSESService{SendEmailFunc: func(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			sent = in
			return &ses.SendEmailOutput{}, nil
		}}

		n := NewEscalationNotifier(cfg, snsMock, sesMock, logger.NewTestLogger(t))
		n.Record(context.Background(), sampleResult(models.CategoryIT, 0.4))

		require.NotNil(t, published)
		assert.Equal(t, cfg.TopicARN, *published.TopicArn)
		assert.Contains(t, *published.Message, `"category":"IT"`)
		assert.Contains(t, *published.Message, models.EscalationMessage)

		require.NotNil(t, sent)
		assert.Equal(t, cfg.To, sent.Destination.ToAddresses)
		assert.Contains(t, *sent.Message.Subject.Data, "IT ticket escalated")
		assert.Contains(t, *sent.Message.Body.Text.Data, "Confidence: 0.40")
	})

	t.Run("failures are contained", func(t *testing.T) {
		snsMock := &MockSNSService{PublishFunc: func(context.Context, *sns.PublishInput, ...func(*sns.Options)) (*sns.PublishOutput, error) {
			return nil, errors.New("throttled")
		}}
		sesMock := &MockSESService{SendEmailFunc: func(context.Context, *ses.SendEmailInput, ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
			return nil, errors.New("unverified sender")
		}}

		n := NewEscalationNotifier(cfg, snsMock, sesMock, logger.NewTestLogger(t))
		assert.NotPanics(t, func() { n.Record(context.Background(), sampleResult(models.CategoryHR, 0.2)) })
		assert.Equal(t, 1, snsMock.calls)
		assert.Equal(t, 1, sesMock.calls)
	})

	t.Run("nil clients disable channels", func(t *testing.T) {
		n := NewEscalationNotifier(cfg, nil, nil, logger.NewTestLogger(t))
		assert.NotPanics(t, func() { n.Record(context.Background(), sampleResult(models.CategoryHR, 0.2)) })
	})
}

// ==========================
// CRM case sink
// ==========================

type MockCaseCreator struct {
	mock.Mock
}

func (m *MockCaseCreator) CreateCase(ctx context.Context, c *zoho.Case) (string, error) {
	args := m.Called(ctx, c)
	return args.String(0), args.Error(1)
}

func TestCaseSink(t *testing.T) {
	t.Run("ignores confident results", func(t *testing.T) {
		crm := new(MockCaseCreator)
		NewCaseSink(crm, logger.NewTestLogger(t)).Record(context.Background(), sampleResult(models.CategoryIT, 0.8))
		crm.AssertNotCalled(t, "CreateCase", mock.Anything, mock.Anything)
	})

	t.Run("opens a case for escalations", func(t *testing.T) {
		crm := new(MockCaseCreator)
		var opened *zoho.Case
		crm.On("CreateCase", mock.Anything, mock.MatchedBy(func(c *zoho.Case) bool {
			opened = c
			return true
		})).Return("case-1", nil).Once()

		NewCaseSink(crm, logger.NewTestLogger(t)).Record(context.Background(), sampleResult(models.CategoryHR, 0.2))

		crm.AssertExpectations(t)
		require.NotNil(t, opened)
		assert.Contains(t, opened.Subject, "HR ticket escalated")
		assert.Equal(t, "HR", opened.Reason)
		assert.Equal(t, "High", opened.Priority)
		assert.Contains(t, opened.Description, "Confidence: 0.20")
		assert.Contains(t, opened.Description, "Policy: vpn")
		assert.Contains(t, opened.Description, "I can't access the VPN from home")
	})

	t.Run("swallows crm errors", func(t *testing.T) {
		crm := new(MockCaseCreator)
		crm.On("CreateCase", mock.Anything, mock.Anything).Return("", errors.New("INVALID_TOKEN"))
		assert.NotPanics(t, func() {
			NewCaseSink(crm, logger.NewTestLogger(t)).Record(context.Background(), sampleResult(models.CategoryIT, 0.2))
		})
		crm.AssertNumberOfCalls(t, "CreateCase", 1)
	})
}
