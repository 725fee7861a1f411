package intake

import (
	"time"

	"orderfulfillment/internal/domain"
)

// OrderSubmittedEvent is the payload read from the orders topic.
type OrderSubmittedEvent struct {
	OrderID   string `json:"order_id"`
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
	Email     string `json:"email"`
}

func (e OrderSubmittedEvent) Order() domain.Order {
	return domain.Order{
		ID:        e.OrderID,
		ProductID: e.ProductID,
		Quantity:  e.Quantity,
		Email:     e.Email,
	}
}

// OrderProcessedEvent is published to the outcomes topic once an order resolves.
type OrderProcessedEvent struct {
	OrderID     string    `json:"order_id"`
	Success     bool      `json:"success"`
	Amount      string    `json:"amount"`
	Message     string    `json:"message"`
	Reason      string    `json:"reason,omitempty"`
	ProcessedAt time.Time `json:"processed_at"`
}

func newOrderProcessedEvent(o domain.Outcome, at time.Time) OrderProcessedEvent {
	return OrderProcessedEvent{
		OrderID:     o.OrderID,
		Success:     o.Success,
		Amount:      o.Amount.StringFixed(2),
		Message:     o.Message,
		Reason:      string(o.Reason),
		ProcessedAt: at,
	}
}
