package inventory

import (
	"fmt"
	"sort"
	"sync"

	"orderfulfillment/internal/domain"
)

// entry guards a single product. Orders on different products never share a lock.
type entry struct {
	mu      sync.Mutex
	product domain.Product
}

// Store owns the catalog and mediates every read and decrement of stock.
// The set of products is fixed at construction, so the index itself is read-only
// and only the per-product entries are locked.
type Store struct {
	entries map[string]*entry
}

// NewStore builds a store from the initial catalog.
func NewStore(products ...domain.Product) (*Store, error) {
	entries := make(map[string]*entry, len(products))
	for _, p := range products {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if _, dup := entries[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", domain.ErrInvalidProduct, p.ID)
		}
		entries[p.ID] = &entry{product: p}
	}
	return &Store{entries: entries}, nil
}

func (s *Store) entry(productID string) (*entry, error) {
	e, ok := s.entries[productID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrProductNotFound, productID)
	}
	return e, nil
}

// Lookup returns a consistent snapshot of the product.
func (s *Store) Lookup(productID string) (domain.Product, error) {
	e, err := s.entry(productID)
	if err != nil {
		return domain.Product{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.product, nil
}

// CheckAvailable reports whether qty units could be reserved right now. It does
// not reserve anything, so a later Reserve may still fail.
func (s *Store) CheckAvailable(productID string, qty int) error {
	e, err := s.entry(productID)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.available(qty)
}

// Reserve re-checks stock and decrements it in one critical section. It returns
// the stock left after the decrement.
func (s *Store) Reserve(productID string, qty int) (int, error) {
	e, err := s.entry(productID)
	if err != nil {
		return 0, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.available(qty); err != nil {
		return e.product.Stock, err
	}
	e.product.Stock -= qty
	return e.product.Stock, nil
}

// Stock returns the current stock of a product.
func (s *Store) Stock(productID string) (int, error) {
	p, err := s.Lookup(productID)
	if err != nil {
		return 0, err
	}
	return p.Stock, nil
}

// Products returns snapshots of every product ordered by id.
func (s *Store) Products() []domain.Product {
	out := make([]domain.Product, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		out = append(out, e.product)
		e.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// available must be called with e.mu held.
func (e *entry) available(qty int) error {
	if qty <= 0 {
		return fmt.Errorf("%w: quantity %d for %s", domain.ErrInvalidOrder, qty, e.product.ID)
	}
	if e.product.Stock < qty {
		return fmt.Errorf("%w for %s: requested %d, available %d",
			domain.ErrInsufficientStock, e.product.ID, qty, e.product.Stock)
	}
	return nil
}
