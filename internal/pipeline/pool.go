package pipeline

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// pool bounds how many stages execute at once across all orders. Deadlines do
// not go through the pool, so a saturated pool never delays a timeout.
type pool struct {
	sem  *semaphore.Weighted
	size int
}

func newPool(size int) *pool {
	return &pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

func (p *pool) run(ctx context.Context, fn func() error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)
	return fn()
}
