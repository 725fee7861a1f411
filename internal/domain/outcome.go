package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// MessageProcessed is the message carried by every successful outcome.
const MessageProcessed = "processed"

// Outcome is the terminal result of one order. Exactly one is produced per
// submitted order.
type Outcome struct {
	OrderID string
	Success bool
	Amount  decimal.Decimal
	Message string
	Reason  FailureReason
}

// Success builds the outcome of an order that went through every stage.
func Success(orderID string, amount decimal.Decimal) Outcome {
	return Outcome{
		OrderID: orderID,
		Success: true,
		Amount:  amount,
		Message: MessageProcessed,
	}
}

// Failure maps a stage error onto a failed outcome with a zero amount.
func Failure(orderID string, err error) Outcome {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Outcome{
		OrderID: orderID,
		Amount:  decimal.Zero,
		Message: msg,
		Reason:  ReasonOf(err),
	}
}

// TimedOut is the outcome synthesized when the deadline fires first.
func TimedOut(orderID string, after time.Duration) Outcome {
	return Failure(orderID, fmt.Errorf("%w after %s", ErrTimeout, after))
}

func (o Outcome) String() string {
	if o.Success {
		return fmt.Sprintf("✓ %s — %s — %s", o.OrderID, o.Amount.StringFixed(2), o.Message)
	}
	return fmt.Sprintf("✗ %s — ERROR: %s", o.OrderID, o.Message)
}
