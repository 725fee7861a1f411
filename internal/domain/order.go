package domain

import "fmt"

// Order is a request to buy Quantity units of one product. It is never mutated
// once submitted.
type Order struct {
	ID        string
	ProductID string
	Quantity  int
	Email     string
}

func (o Order) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("%w: empty order id", ErrInvalidOrder)
	}
	if o.ProductID == "" {
		return fmt.Errorf("%w: order %s has no product", ErrInvalidOrder, o.ID)
	}
	if o.Quantity <= 0 {
		return fmt.Errorf("%w: order %s has non-positive quantity %d", ErrInvalidOrder, o.ID, o.Quantity)
	}
	return nil
}

func (o Order) String() string {
	return fmt.Sprintf("Order{id=%s, product=%s, qty=%d, email=%s}", o.ID, o.ProductID, o.Quantity, o.Email)
}
