package pipeline

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"orderfulfillment/internal/domain"
	"orderfulfillment/internal/notify"
	"orderfulfillment/internal/stage"
)

// process runs the stages strictly in order and converts the first error into
// a failed outcome. It always runs to the end, deadline or not.
func (s *Service) process(ctx context.Context, order domain.Order, h *Handle) domain.Outcome {
	if err := order.Validate(); err != nil {
		return s.fail(ctx, order, err)
	}

	h.advance(domain.StateCheckingAvailability)
	var product domain.Product
	if err := s.step(ctx, func() (err error) {
		product, err = s.stages.CheckAvailability(ctx, order)
		return err
	}); err != nil {
		return s.fail(ctx, order, err)
	}

	h.advance(domain.StatePricing)
	var quote stage.Quote
	if err := s.step(ctx, func() error {
		quote = s.stages.CalculatePrice(ctx, order, product)
		return nil
	}); err != nil {
		return s.fail(ctx, order, err)
	}

	h.advance(domain.StatePaying)
	if err := s.step(ctx, func() error {
		return s.stages.ProcessPayment(ctx, order, quote.Total)
	}); err != nil {
		return s.fail(ctx, order, err)
	}

	h.advance(domain.StateReserving)
	if err := s.step(ctx, func() error {
		_, err := s.stages.Reserve(ctx, order)
		return err
	}); err != nil {
		return s.fail(ctx, order, err)
	}

	// Notification failures are swallowed inside the stage, so from here on
	// the order is a success.
	h.advance(domain.StateNotifying)
	if err := s.step(ctx, func() error {
		s.stages.Notify(ctx, notify.Succeeded(order, quote.Total, s.clock.Now()))
		return nil
	}); err != nil {
		s.logger.Error("❌ Success notification aborted",
			zap.String("order_id", order.ID),
			zap.Error(err),
		)
	}

	return domain.Success(order.ID, quote.Total)
}

// step runs fn inside a worker slot and turns a panic into an internal error.
func (s *Service) step(ctx context.Context, fn func() error) error {
	return s.pool.run(ctx, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("stage panicked: %v", r)
			}
		}()
		return fn()
	})
}

// fail fires the failure notification without waiting for it and returns the
// failed outcome.
func (s *Service) fail(ctx context.Context, order domain.Order, cause error) domain.Outcome {
	s.logger.Debug("Pipeline stopped",
		zap.String("order_id", order.ID),
		zap.Error(cause),
	)

	n := notify.Failed(order, cause, s.clock.Now())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.step(ctx, func() error {
			s.stages.Notify(ctx, n)
			return nil
		}); err != nil {
			s.logger.Error("❌ Failure notification aborted",
				zap.String("order_id", order.ID),
				zap.Error(err),
			)
		}
	}()

	return domain.Failure(order.ID, cause)
}
