package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"orderfulfillment/internal/clock"
	"orderfulfillment/internal/config"
	"orderfulfillment/internal/domain"
	"orderfulfillment/internal/platform/observability"
	"orderfulfillment/internal/stage"
)

// ErrClosed is returned by Submit once Shutdown has been called.
var ErrClosed = errors.New("pipeline is shut down")

// Service runs orders through the stages concurrently, racing each one against
// its deadline.
type Service struct {
	stages  *stage.Stages
	pool    *pool
	clock   clock.Clock
	timeout time.Duration

	logger  observability.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics

	mu     sync.Mutex
	closed bool
	// tracks pipelines, waiters and detached notifications for Shutdown.
	wg sync.WaitGroup
}

type Option func(*Service)

// WithTimeout sets the per-order deadline.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithWorkers bounds how many stages run at once across all orders.
func WithWorkers(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.pool = newPool(n)
		}
	}
}

func WithClock(c clock.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l observability.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithTracer(t observability.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

func WithMetrics(m *observability.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// New creates a pipeline service. The deadline clock defaults to the clock the
// stages sleep on.
func New(stages *stage.Stages, opts ...Option) *Service {
	s := &Service{
		stages:  stages,
		pool:    newPool(config.DefaultWorkers()),
		clock:   stages.Clock(),
		timeout: config.DefaultOrderTimeout,
		logger:  zap.NewNop(),
		tracer:  otel.Tracer(config.ServiceName),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeout is the per-order deadline.
func (s *Service) Timeout() time.Duration { return s.timeout }

// Submit starts processing order and returns immediately. ctx only parents the
// order's trace span; cancelling it does not stop the order.
func (s *Service) Submit(ctx context.Context, order domain.Order) (*Handle, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.wg.Add(2)
	s.mu.Unlock()

	ctx, span := s.tracer.Start(context.WithoutCancel(ctx), "order.process",
		trace.WithAttributes(
			attribute.String("order.id", order.ID),
			attribute.String("product.id", order.ProductID),
			attribute.Int("order.quantity", order.Quantity),
		))

	h := newHandle(order.ID)
	completed := make(chan domain.Outcome, 1)
	deadline := s.clock.After(s.timeout)
	s.metrics.OrderSubmitted(ctx)

	s.logger.Info("📥 Order submitted",
		zap.String("order_id", order.ID),
		zap.String("product_id", order.ProductID),
		zap.Int("quantity", order.Quantity),
	)

	go func() {
		defer s.wg.Done()
		defer s.metrics.PipelineFinished(ctx)
		defer span.End()

		outcome := s.process(ctx, order, h)
		if outcome.Success {
			span.SetStatus(codes.Ok, "order processed")
		} else {
			span.SetStatus(codes.Error, outcome.Message)
		}
		completed <- outcome
	}()

	go func() {
		defer s.wg.Done()
		s.await(ctx, span, h, completed, deadline)
	}()

	return h, nil
}

// result is whichever of pipeline completion and deadline expiry came first.
type result struct {
	outcome domain.Outcome
	expired bool
}

func race(completed <-chan domain.Outcome, deadline <-chan time.Time) result {
	select {
	case o := <-completed:
		return result{outcome: o}
	case <-deadline:
		return result{expired: true}
	}
}

// await resolves the handle with the first of outcome and deadline. A pipeline
// that loses the race keeps running; its outcome is logged and dropped.
func (s *Service) await(ctx context.Context, span trace.Span, h *Handle, completed <-chan domain.Outcome, deadline <-chan time.Time) {
	r := race(completed, deadline)
	if !r.expired {
		st := domain.StateDone
		if !r.outcome.Success {
			st = domain.StateFailed
		}
		s.deliver(ctx, h, r.outcome, st)
		return
	}

	span.AddEvent("deadline expired", trace.WithAttributes(
		attribute.String("timeout", s.timeout.String()),
	))
	s.deliver(ctx, h, domain.TimedOut(h.orderID, s.timeout), domain.StateTimedOut)

	late := <-completed
	s.metrics.LateOutcome(ctx)
	s.logger.Warn("🕰️ Discarding late outcome",
		zap.String("order_id", late.OrderID),
		zap.Bool("success", late.Success),
		zap.String("message", late.Message),
	)
}

func (s *Service) deliver(ctx context.Context, h *Handle, outcome domain.Outcome, st domain.State) {
	h.resolve(outcome, st)
	s.metrics.OutcomeDelivered(ctx, outcome.Success, string(outcome.Reason))

	if outcome.Success {
		s.logger.Info("✅ Order processed",
			zap.String("order_id", outcome.OrderID),
			zap.String("amount", outcome.Amount.StringFixed(2)),
		)
		return
	}
	s.logger.Warn("⛔ Order failed",
		zap.String("order_id", outcome.OrderID),
		zap.String("reason", string(outcome.Reason)),
		zap.String("message", outcome.Message),
	)
}

// Shutdown stops accepting orders and waits for running pipelines and pending
// notifications until ctx is done. Nothing in flight is cancelled.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		s.logger.Info("🛑 Pipeline drained")
		return nil
	case <-ctx.Done():
		s.logger.Warn("⚠️ Pipeline drain abandoned", zap.Error(ctx.Err()))
		return fmt.Errorf("pipeline drain abandoned: %w", ctx.Err())
	}
}
