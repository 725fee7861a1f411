package notify

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"orderfulfillment/internal/domain"
)

// FlakyNotifier fails a fraction of sends to model an unreliable channel.
type FlakyNotifier struct {
	next Notifier
	rate float64

	mu  sync.Mutex
	rnd *rand.Rand
}

// NewFlakyNotifier wraps next so that roughly rate of all sends fail.
func NewFlakyNotifier(next Notifier, rate float64, seed uint64) *FlakyNotifier {
	return &FlakyNotifier{
		next: next,
		rate: rate,
		rnd:  rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (n *FlakyNotifier) Send(ctx context.Context, msg Notification) error {
	n.mu.Lock()
	fail := n.rnd.Float64() < n.rate
	n.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: channel unavailable for order %s", domain.ErrNotificationFailed, msg.OrderID)
	}
	return n.next.Send(ctx, msg)
}
