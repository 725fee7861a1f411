package domain

import (
	"context"
	"errors"
)

var (
	ErrProductNotFound    = errors.New("product not found")
	ErrInsufficientStock  = errors.New("insufficient stock")
	ErrPaymentDeclined    = errors.New("payment declined")
	ErrTimeout            = errors.New("order processing timed out")
	ErrNotificationFailed = errors.New("notification failed")
	ErrInvalidOrder       = errors.New("invalid order")
	ErrInvalidProduct     = errors.New("invalid product")
)

// FailureReason classifies why an order did not succeed.
type FailureReason string

const (
	ReasonNone              FailureReason = ""
	ReasonNotFound          FailureReason = "not_found"
	ReasonInsufficientStock FailureReason = "insufficient_stock"
	ReasonPaymentDeclined   FailureReason = "payment_declined"
	ReasonTimeout           FailureReason = "timeout"
	ReasonInvalidOrder      FailureReason = "invalid_order"
	ReasonInternal          FailureReason = "internal"
)

// ReasonOf maps an error from any stage onto its failure class.
func ReasonOf(err error) FailureReason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrProductNotFound):
		return ReasonNotFound
	case errors.Is(err, ErrInsufficientStock):
		return ReasonInsufficientStock
	case errors.Is(err, ErrPaymentDeclined):
		return ReasonPaymentDeclined
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	case errors.Is(err, ErrInvalidOrder):
		return ReasonInvalidOrder
	default:
		return ReasonInternal
	}
}
