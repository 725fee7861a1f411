package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"orderfulfillment/internal/domain"
)

// Notification is the message sent to a customer about their order.
type Notification struct {
	ID      string          `json:"id"`
	OrderID string          `json:"order_id"`
	Email   string          `json:"email"`
	Success bool            `json:"success"`
	Amount  decimal.Decimal `json:"amount"`
	Cause   string          `json:"cause,omitempty"`
	SentAt  time.Time       `json:"sent_at"`
}

// Notifier delivers notifications to some external channel.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }

// Succeeded builds the notification for a processed order.
func Succeeded(order domain.Order, amount decimal.Decimal, now time.Time) Notification {
	return Notification{
		ID:      uuid.NewString(),
		OrderID: order.ID,
		Email:   order.Email,
		Success: true,
		Amount:  amount,
		SentAt:  now,
	}
}

// Failed builds the notification for an order that could not be processed.
func Failed(order domain.Order, cause error, now time.Time) Notification {
	n := Notification{
		ID:      uuid.NewString(),
		OrderID: order.ID,
		Email:   order.Email,
		Amount:  decimal.Zero,
		SentAt:  now,
	}
	if cause != nil {
		n.Cause = cause.Error()
	}
	return n
}

// Body renders the customer-facing text.
func (n Notification) Body() string {
	if n.Success {
		return fmt.Sprintf("Your order %s has been processed. Amount: %s", n.OrderID, n.Amount.StringFixed(2))
	}
	cause := n.Cause
	if cause == "" {
		cause = "see details"
	}
	return fmt.Sprintf("Your order %s could not be processed: %s", n.OrderID, cause)
}
