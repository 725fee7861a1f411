package stage

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"orderfulfillment/internal/domain"
)

// CheckAvailability looks the product up and verifies the requested quantity
// is in stock. Nothing is reserved here.
func (s *Stages) CheckAvailability(ctx context.Context, order domain.Order) (domain.Product, error) {
	var product domain.Product
	err := s.run(ctx, NameAvailability, order.ID, s.delays.Availability, func(_ context.Context, span trace.Span) error {
		p, err := s.store.Lookup(order.ProductID)
		if err != nil {
			return err
		}
		if err := s.store.CheckAvailable(order.ProductID, order.Quantity); err != nil {
			return err
		}
		product = p
		span.SetAttributes(
			attribute.String("product.id", p.ID),
			attribute.Int("inventory.stock", p.Stock),
		)
		return nil
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.Info("🔍 Product available",
		zap.String("order_id", order.ID),
		zap.String("product", product.Name),
		zap.Int("stock", product.Stock),
	)
	return product, nil
}
