package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Product is a catalog entry. Stock is only ever changed by the inventory store.
type Product struct {
	ID    string
	Name  string
	Price decimal.Decimal
	Stock int
}

func (p Product) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidProduct)
	}
	if p.Price.IsNegative() {
		return fmt.Errorf("%w: %s has negative price %s", ErrInvalidProduct, p.ID, p.Price)
	}
	if p.Stock < 0 {
		return fmt.Errorf("%w: %s has negative stock %d", ErrInvalidProduct, p.ID, p.Stock)
	}
	return nil
}

func (p Product) String() string {
	return fmt.Sprintf("Product{id=%s, name=%s, price=%s, stock=%d}", p.ID, p.Name, p.Price.StringFixed(2), p.Stock)
}
