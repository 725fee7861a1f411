package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the instruments recorded by the order pipeline.
type Metrics struct {
	submitted     metric.Int64Counter
	outcomes      metric.Int64Counter
	lateOutcomes  metric.Int64Counter
	inflight      metric.Int64UpDownCounter
	stageDuration metric.Float64Histogram
}

// NewMetrics registers the pipeline instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var m Metrics
	var errs, err error

	m.submitted, err = meter.Int64Counter("orders.submitted",
		metric.WithDescription("Orders accepted by the pipeline"),
		metric.WithUnit("{order}"))
	errs = errors.Join(errs, err)

	m.outcomes, err = meter.Int64Counter("orders.outcomes",
		metric.WithDescription("Outcomes delivered to callers by success and failure reason"),
		metric.WithUnit("{order}"))
	errs = errors.Join(errs, err)

	m.lateOutcomes, err = meter.Int64Counter("orders.late_outcomes",
		metric.WithDescription("Pipelines that finished after their deadline had already fired"),
		metric.WithUnit("{order}"))
	errs = errors.Join(errs, err)

	m.inflight, err = meter.Int64UpDownCounter("orders.inflight",
		metric.WithDescription("Pipelines currently running"),
		metric.WithUnit("{order}"))
	errs = errors.Join(errs, err)

	m.stageDuration, err = meter.Float64Histogram("orders.stage.duration",
		metric.WithDescription("Wall time spent in each stage"),
		metric.WithUnit("ms"))
	errs = errors.Join(errs, err)

	if errs != nil {
		return nil, errs
	}
	return &m, nil
}

func (m *Metrics) OrderSubmitted(ctx context.Context) {
	if m == nil {
		return
	}
	m.submitted.Add(ctx, 1)
	m.inflight.Add(ctx, 1)
}

func (m *Metrics) PipelineFinished(ctx context.Context) {
	if m == nil {
		return
	}
	m.inflight.Add(ctx, -1)
}

func (m *Metrics) OutcomeDelivered(ctx context.Context, success bool, reason string) {
	if m == nil {
		return
	}
	m.outcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.Bool("order.success", success),
		attribute.String("order.failure_reason", reason),
	))
}

func (m *Metrics) LateOutcome(ctx context.Context) {
	if m == nil {
		return
	}
	m.lateOutcomes.Add(ctx, 1)
}

func (m *Metrics) StageCompleted(ctx context.Context, stage string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.Record(ctx, float64(elapsed)/float64(time.Millisecond),
		metric.WithAttributes(attribute.String("stage", stage)))
}
