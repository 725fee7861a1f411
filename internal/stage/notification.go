package stage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"orderfulfillment/internal/domain"
	"orderfulfillment/internal/notify"
)

// Notify delivers n on a best-effort basis. Failures are retried a bounded
// number of times, then logged and dropped; they never reach the caller.
func (s *Stages) Notify(ctx context.Context, n notify.Notification) {
	err := s.run(ctx, NameNotification, n.OrderID, s.delays.Notification, func(ctx context.Context, _ trace.Span) error {
		policy := backoff.WithContext(
			backoff.WithMaxRetries(backoff.NewConstantBackOff(s.backoff), uint64(s.retries)),
			ctx,
		)
		return backoff.RetryNotify(func() error {
			return s.send(ctx, n)
		}, policy, func(err error, wait time.Duration) {
			s.logger.Warn("🔁 Retrying notification",
				zap.String("order_id", n.OrderID),
				zap.Duration("wait", wait),
				zap.Error(err),
			)
		})
	})
	if err != nil {
		s.logger.Error("❌ Notification failed",
			zap.String("order_id", n.OrderID),
			zap.String("email", n.Email),
			zap.Error(err),
		)
	}
}

// send shields the pipeline from a notifier that panics.
func (s *Stages) send(ctx context.Context, n notify.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: notifier panicked: %v", domain.ErrNotificationFailed, r)
		}
	}()
	if err := s.notifier.Send(ctx, n); err != nil {
		if errors.Is(err, domain.ErrNotificationFailed) {
			return err
		}
		return fmt.Errorf("%w: %w", domain.ErrNotificationFailed, err)
	}
	return nil
}
