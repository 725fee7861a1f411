package stage

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"orderfulfillment/internal/clock"
	"orderfulfillment/internal/config"
	"orderfulfillment/internal/inventory"
	"orderfulfillment/internal/notify"
	"orderfulfillment/internal/platform/observability"
)

// Stage names, used for spans, metrics and logs.
const (
	NameAvailability = "availability"
	NamePricing      = "pricing"
	NamePayment      = "payment"
	NameReservation  = "reservation"
	NameNotification = "notification"
)

// Stages holds the five steps an order goes through. Every stage sleeps its
// configured latency on the injected clock before doing its work; only
// Reserve mutates shared state.
type Stages struct {
	store    *inventory.Store
	notifier notify.Notifier
	payments DeclinePolicy

	clock   clock.Clock
	delays  config.Delays
	retries int
	backoff time.Duration

	logger  observability.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics
}

type Option func(*Stages)

// WithDelays overrides the simulated latency of each stage.
func WithDelays(d config.Delays) Option {
	return func(s *Stages) { s.delays = d }
}

// WithDeclinePolicy replaces the payment decline policy.
func WithDeclinePolicy(p DeclinePolicy) Option {
	return func(s *Stages) {
		if p != nil {
			s.payments = p
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Stages) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithNotifyRetries bounds how often a failed notification is retried and how
// long to wait between attempts.
func WithNotifyRetries(retries int, interval time.Duration) Option {
	return func(s *Stages) {
		if retries >= 0 {
			s.retries = retries
		}
		if interval >= 0 {
			s.backoff = interval
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(s *Stages) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(s *Stages) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Stages) { s.metrics = m }
}

// New wires the stages to the inventory store and a notification sink.
func New(store *inventory.Store, notifier notify.Notifier, opts ...Option) *Stages {
	s := &Stages{
		store:    store,
		notifier: notifier,
		payments: RandomDecline(config.DefaultPaymentFailureRate, uint64(time.Now().UnixNano())),
		clock:    clock.NewSystem(),
		delays:   config.DefaultDelays(),
		retries:  config.DefaultNotifyRetries,
		backoff:  config.DefaultNotifyRetryDelay,
		logger:   zap.NewNop(),
		tracer:   otel.Tracer(config.ServiceName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Clock returns the clock stages sleep on.
func (s *Stages) Clock() clock.Clock { return s.clock }

// run opens the stage span, simulates latency and records the result.
func (s *Stages) run(ctx context.Context, name, orderID string, delay time.Duration, fn func(ctx context.Context, span trace.Span) error) error {
	ctx, span := s.tracer.Start(ctx, "stage."+name)
	defer span.End()
	span.SetAttributes(
		attribute.String("order.id", orderID),
		attribute.String("pipeline.stage", name),
	)

	start := time.Now()
	s.clock.Sleep(delay)
	err := fn(ctx, span)
	s.metrics.StageCompleted(ctx, name, time.Since(start))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, name+" completed")
	return nil
}
