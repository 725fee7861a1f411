package inventory

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"orderfulfillment/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(
		domain.Product{ID: "P01", Name: "Laptop", Price: decimal.NewFromInt(150000), Stock: 10},
		domain.Product{ID: "P02", Name: "Mouse", Price: decimal.NewFromInt(3500), Stock: 50},
	)
	require.NoError(t, err)
	return store
}

func TestNewStore_RejectsInvalidCatalog(t *testing.T) {
	_, err := NewStore(
		domain.Product{ID: "P01", Stock: 1},
		domain.Product{ID: "P01", Stock: 2},
	)
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)

	_, err = NewStore(domain.Product{ID: "P01", Stock: -1})
	assert.ErrorIs(t, err, domain.ErrInvalidProduct)
}

func TestStore_Lookup(t *testing.T) {
	store := newTestStore(t)

	p, err := store.Lookup("P01")
	require.NoError(t, err)
	assert.Equal(t, "Laptop", p.Name)
	assert.Equal(t, 10, p.Stock)

	_, err = store.Lookup("P99")
	assert.ErrorIs(t, err, domain.ErrProductNotFound)
}

func TestStore_LookupReturnsSnapshot(t *testing.T) {
	store := newTestStore(t)

	p, err := store.Lookup("P01")
	require.NoError(t, err)
	p.Stock = 0

	stock, err := store.Stock("P01")
	require.NoError(t, err)
	assert.Equal(t, 10, stock)
}

func TestStore_CheckAvailable(t *testing.T) {
	store := newTestStore(t)

	assert.NoError(t, store.CheckAvailable("P02", 50))
	assert.ErrorIs(t, store.CheckAvailable("P02", 60), domain.ErrInsufficientStock)
	assert.ErrorIs(t, store.CheckAvailable("P99", 1), domain.ErrProductNotFound)
	assert.ErrorIs(t, store.CheckAvailable("P02", 0), domain.ErrInvalidOrder)

	stock, err := store.Stock("P02")
	require.NoError(t, err)
	assert.Equal(t, 50, stock, "availability check must not reserve")
}

func TestStore_CheckAvailableIsIdempotent(t *testing.T) {
	store := newTestStore(t)

	first := store.CheckAvailable("P01", 7)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, store.CheckAvailable("P01", 7))
	}
	second := store.CheckAvailable("P01", 11)
	for i := 0; i < 5; i++ {
		assert.Equal(t, second.Error(), store.CheckAvailable("P01", 11).Error())
	}
}

func TestStore_Reserve(t *testing.T) {
	store := newTestStore(t)

	left, err := store.Reserve("P01", 4)
	require.NoError(t, err)
	assert.Equal(t, 6, left)

	left, err = store.Reserve("P01", 7)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)
	assert.Equal(t, 6, left)

	_, err = store.Reserve("P99", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	stock, err := store.Stock("P01")
	require.NoError(t, err)
	assert.Equal(t, 6, stock)
}

func TestStore_ConcurrentReserveNeverOversells(t *testing.T) {
	store := newTestStore(t)

	var (
		wg        sync.WaitGroup
		succeeded atomic.Int32
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Reserve("P01", 1); err == nil {
				succeeded.Add(1)
			} else {
				assert.ErrorIs(t, err, domain.ErrInsufficientStock)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 10, succeeded.Load())
	stock, err := store.Stock("P01")
	require.NoError(t, err)
	assert.Equal(t, 0, stock)
}

func TestStore_Products(t *testing.T) {
	store := newTestStore(t)

	products := store.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "P01", products[0].ID)
	assert.Equal(t, "P02", products[1].ID)
}
