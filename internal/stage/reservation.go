package stage

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"orderfulfillment/internal/domain"
)

// Reserve takes the ordered units out of stock. Stock may have shrunk since the
// availability check, so the store re-checks under the product lock.
func (s *Stages) Reserve(ctx context.Context, order domain.Order) (int, error) {
	var remaining int
	err := s.run(ctx, NameReservation, order.ID, s.delays.Reservation, func(_ context.Context, span trace.Span) error {
		left, err := s.store.Reserve(order.ProductID, order.Quantity)
		if err != nil {
			return err
		}
		remaining = left
		span.SetAttributes(
			attribute.Int("inventory.reserved_quantity", order.Quantity),
			attribute.Int("inventory.remaining", left),
		)
		return nil
	})
	if err != nil {
		s.logger.Warn("⚠️ Reservation rejected",
			zap.String("order_id", order.ID),
			zap.String("product_id", order.ProductID),
			zap.Error(err),
		)
		return 0, err
	}

	s.logger.Info("📦 Stock reserved",
		zap.String("order_id", order.ID),
		zap.String("product_id", order.ProductID),
		zap.Int("remaining", remaining),
	)
	return remaining, nil
}
