package app

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"orderfulfillment/internal/domain"
	"orderfulfillment/internal/pipeline"
	"orderfulfillment/internal/platform/observability"
)

// DemoOrders is the batch processed when no Kafka broker is configured. The
// last two are expected to fail: an unknown product and an over-request.
func DemoOrders() []domain.Order {
	return []domain.Order{
		{ID: "ORD001", ProductID: "P01", Quantity: 1, Email: "cust1@example.com"},
		{ID: "ORD002", ProductID: "P02", Quantity: 3, Email: "cust2@example.com"},
		{ID: "ORD003", ProductID: "P03", Quantity: 2, Email: "cust3@example.com"},
		{ID: "ORD004", ProductID: "P01", Quantity: 2, Email: "cust4@example.com"},
		{ID: "ORD005", ProductID: "P04", Quantity: 1, Email: "cust5@example.com"},
		{ID: "ORD006", ProductID: "P99", Quantity: 1, Email: "cust6@example.com"},
		{ID: "ORD007", ProductID: "P02", Quantity: 60, Email: "cust7@example.com"},
	}
}

// Summary is the report printed after a batch.
type Summary struct {
	Outcomes     []domain.Outcome
	Succeeded    int
	Failed       int
	TotalCharged decimal.Decimal
	Elapsed      time.Duration
}

func Summarize(outcomes []domain.Outcome, elapsed time.Duration) Summary {
	s := Summary{Outcomes: outcomes, TotalCharged: decimal.Zero, Elapsed: elapsed}
	for _, o := range outcomes {
		if o.Success {
			s.Succeeded++
			s.TotalCharged = s.TotalCharged.Add(o.Amount)
			continue
		}
		s.Failed++
	}
	return s
}

func (s Summary) WriteTo(w io.Writer) (int64, error) {
	var written int64
	p := func(format string, args ...any) error {
		n, err := fmt.Fprintf(w, format, args...)
		written += int64(n)
		return err
	}

	if err := p("\n=== Results ===\n"); err != nil {
		return written, err
	}
	for _, o := range s.Outcomes {
		if err := p("%s\n", o); err != nil {
			return written, err
		}
	}
	err := p("\nOrders: %d\nSucceeded: %d\nFailed: %d\nTotal charged: %s\nElapsed: %d ms\n",
		len(s.Outcomes), s.Succeeded, s.Failed, s.TotalCharged.StringFixed(2), s.Elapsed.Milliseconds())
	return written, err
}

// RunBatch submits orders, waits up to wait for all of them and reports.
func RunBatch(ctx context.Context, p *pipeline.Service, orders []domain.Order, wait time.Duration, logger observability.Logger) (Summary, error) {
	logger.Info("🚀 Processing orders in parallel",
		zap.Int("orders", len(orders)),
		zap.Duration("order_timeout", p.Timeout()),
	)
	start := time.Now()

	handles := make([]*pipeline.Handle, 0, len(orders))
	for _, order := range orders {
		h, err := p.Submit(ctx, order)
		if err != nil {
			return Summary{}, fmt.Errorf("failed to submit order %s: %w", order.ID, err)
		}
		handles = append(handles, h)
	}

	waitCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	outcomes, err := pipeline.WaitAll(waitCtx, handles)
	if err != nil {
		logger.Warn("⚠️ Stopped waiting for the batch", zap.Error(err))
	}

	summary := Summarize(outcomes, time.Since(start))
	logger.Info("🏁 Batch finished",
		zap.Int("succeeded", summary.Succeeded),
		zap.Int("failed", summary.Failed),
		zap.String("total_charged", summary.TotalCharged.StringFixed(2)),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}
