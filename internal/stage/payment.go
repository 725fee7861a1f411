package stage

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"orderfulfillment/internal/domain"
)

// DeclinePolicy decides whether a simulated charge is declined.
type DeclinePolicy interface {
	Decline(order domain.Order, amount decimal.Decimal) bool
}

// DeclineFunc adapts a function to DeclinePolicy.
type DeclineFunc func(order domain.Order, amount decimal.Decimal) bool

func (f DeclineFunc) Decline(order domain.Order, amount decimal.Decimal) bool {
	return f(order, amount)
}

// NeverDecline approves every charge.
func NeverDecline() DeclinePolicy {
	return DeclineFunc(func(domain.Order, decimal.Decimal) bool { return false })
}

// AlwaysDecline rejects every charge.
func AlwaysDecline() DeclinePolicy {
	return DeclineFunc(func(domain.Order, decimal.Decimal) bool { return true })
}

type randomDecline struct {
	rate float64
	mu   sync.Mutex
	rnd  *rand.Rand
}

// RandomDecline declines roughly rate of all charges. The same seed yields the
// same sequence of decisions.
func RandomDecline(rate float64, seed uint64) DeclinePolicy {
	return &randomDecline{
		rate: rate,
		rnd:  rand.New(rand.NewPCG(seed, seed>>1|1)),
	}
}

func (p *randomDecline) Decline(domain.Order, decimal.Decimal) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64() < p.rate
}

// ProcessPayment charges amount for the order.
func (s *Stages) ProcessPayment(ctx context.Context, order domain.Order, amount decimal.Decimal) error {
	err := s.run(ctx, NamePayment, order.ID, s.delays.Payment, func(context.Context, trace.Span) error {
		if s.payments.Decline(order, amount) {
			return fmt.Errorf("%w for order %s", domain.ErrPaymentDeclined, order.ID)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("💳 Payment processed",
		zap.String("order_id", order.ID),
		zap.String("amount", amount.StringFixed(2)),
	)
	return nil
}
