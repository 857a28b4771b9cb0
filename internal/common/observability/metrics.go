package observability

import (
	"context"
	"time"

	"helpdesk-workers/internal/common/logger"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/prometheus"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/sdk/metric"
)

// Observability owns the OpenTelemetry meter. Instruments are exported
// through the default Prometheus registry next to the promauto metrics.
type Observability struct {
	meterProvider  *metric.MeterProvider
	meter          otelmetric.Meter
	jobCounter     otelmetric.Int64Counter
	jobDuration    otelmetric.Float64Histogram
	ticketCounter  otelmetric.Int64Counter
	ticketDuration otelmetric.Float64Histogram
	stageDuration  otelmetric.Float64Histogram
}

func New(serviceName string, log logger.Logger) *Observability {
	exporter, err := prometheus.New()
	if err != nil {
		log.Warn("failed to create prometheus exporter", map[string]interface{}{"error": err})
		return &Observability{}
	}

	provider := metric.NewMeterProvider(metric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	o := &Observability{meterProvider: provider}
	o.init(provider.Meter(serviceName))
	return o
}

// NewWithMeter builds the instruments on an existing meter.
func NewWithMeter(meter otelmetric.Meter) *Observability {
	o := &Observability{}
	o.init(meter)
	return o
}

func (o *Observability) init(meter otelmetric.Meter) {
	o.meter = meter

	o.jobCounter, _ = meter.Int64Counter(
		"jobs.processed",
		otelmetric.WithDescription("Number of jobs processed"),
	)
	o.jobDuration, _ = meter.Float64Histogram(
		"jobs.duration",
		otelmetric.WithDescription("Job processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.ticketCounter, _ = meter.Int64Counter(
		"helpdesk.tickets",
		otelmetric.WithDescription("Tickets processed by the pipeline"),
	)
	o.ticketDuration, _ = meter.Float64Histogram(
		"helpdesk.ticket.duration",
		otelmetric.WithDescription("End-to-end ticket processing duration"),
		otelmetric.WithUnit("ms"),
	)
	o.stageDuration, _ = meter.Float64Histogram(
		"helpdesk.stage.duration",
		otelmetric.WithDescription("Per-stage processing duration"),
		otelmetric.WithUnit("ms"),
	)
}

func (o *Observability) RecordJobProcessed(ctx context.Context, taskType, status string) {
	if o == nil || o.jobCounter == nil {
		return
	}
	o.jobCounter.Add(ctx, 1, otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordJobDuration(ctx context.Context, taskType string, duration time.Duration, status string) {
	if o == nil || o.jobDuration == nil {
		return
	}
	o.jobDuration.Record(ctx, float64(duration.Milliseconds()), otelmetric.WithAttributes(
		attribute.String("task_type", taskType),
		attribute.String("status", status),
	))
}

func (o *Observability) RecordTicket(ctx context.Context, category string, escalated bool, duration time.Duration) {
	if o == nil || o.ticketCounter == nil {
		return
	}
	attrs := otelmetric.WithAttributes(
		attribute.String("category", category),
		attribute.Bool("escalated", escalated),
	)
	o.ticketCounter.Add(ctx, 1, attrs)
	o.ticketDuration.Record(ctx, float64(duration.Microseconds())/1000, attrs)
}

func (o *Observability) RecordStage(ctx context.Context, stage string, fallback bool, duration time.Duration) {
	if o == nil || o.stageDuration == nil {
		return
	}
	o.stageDuration.Record(ctx, float64(duration.Microseconds())/1000, otelmetric.WithAttributes(
		attribute.String("stage", stage),
		attribute.Bool("fallback", fallback),
	))
}

func (o *Observability) Shutdown(ctx context.Context) error {
	if o == nil || o.meterProvider == nil {
		return nil
	}
	return o.meterProvider.Shutdown(ctx)
}
