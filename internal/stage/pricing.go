package stage

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"orderfulfillment/internal/domain"
)

const bulkQuantity = 5

var (
	bulkDiscountRate = decimal.RequireFromString("0.10")
	taxRate          = decimal.RequireFromString("0.12")
)

// Quote is the price breakdown of an order.
type Quote struct {
	Base     decimal.Decimal
	Discount decimal.Decimal
	Total    decimal.Decimal
}

// Price applies a 10% discount above five units, then 12% tax, rounded half-up
// to cents.
func Price(unitPrice decimal.Decimal, quantity int) Quote {
	base := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	discount := decimal.Zero
	if quantity > bulkQuantity {
		discount = base.Mul(bulkDiscountRate)
	}
	total := base.Sub(discount).Mul(decimal.NewFromInt(1).Add(taxRate)).Round(2)
	return Quote{Base: base, Discount: discount, Total: total}
}

// CalculatePrice quotes the order against the product snapshot taken by the
// availability stage. It cannot fail.
func (s *Stages) CalculatePrice(ctx context.Context, order domain.Order, product domain.Product) Quote {
	var q Quote
	_ = s.run(ctx, NamePricing, order.ID, s.delays.Pricing, func(_ context.Context, span trace.Span) error {
		q = Price(product.Price, order.Quantity)
		span.SetAttributes(attribute.String("order.total", q.Total.StringFixed(2)))
		return nil
	})

	s.logger.Info("🧮 Price calculated",
		zap.String("order_id", order.ID),
		zap.String("base", q.Base.StringFixed(2)),
		zap.String("discount", q.Discount.StringFixed(2)),
		zap.String("total", q.Total.StringFixed(2)),
	)
	return q
}
