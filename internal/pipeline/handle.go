package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"

	"orderfulfillment/internal/domain"
)

// Handle is the caller's view of one submitted order. It resolves exactly once,
// either with the pipeline's outcome or with a timeout outcome.
type Handle struct {
	orderID string
	state   atomic.Int32
	done    chan struct{}
	outcome domain.Outcome
}

func newHandle(orderID string) *Handle {
	return &Handle{
		orderID: orderID,
		done:    make(chan struct{}),
	}
}

func (h *Handle) OrderID() string { return h.orderID }

// Done is closed once the outcome is available.
func (h *Handle) Done() <-chan struct{} { return h.done }

// State reports the stage the order is in. After resolution it stays on the
// terminal state the caller observed, even if a timed-out pipeline keeps running.
func (h *Handle) State() domain.State {
	return domain.State(h.state.Load())
}

// Outcome blocks until the order is resolved.
func (h *Handle) Outcome() domain.Outcome {
	<-h.done
	return h.outcome
}

// Wait blocks until the order is resolved or ctx is done.
func (h *Handle) Wait(ctx context.Context) (domain.Outcome, error) {
	select {
	case <-h.done:
		return h.outcome, nil
	case <-ctx.Done():
		return domain.Outcome{}, ctx.Err()
	}
}

// advance moves the handle to st unless it has already been resolved.
func (h *Handle) advance(st domain.State) {
	for {
		cur := h.state.Load()
		if domain.State(cur).IsTerminal() {
			return
		}
		if h.state.CompareAndSwap(cur, int32(st)) {
			return
		}
	}
}

// resolve must be called exactly once.
func (h *Handle) resolve(outcome domain.Outcome, st domain.State) {
	h.outcome = outcome
	h.state.Store(int32(st))
	close(h.done)
}

// WaitAll collects the outcomes of handles in order. If ctx ends first, handles
// that are still pending are reported as timed out and ctx's error is returned.
func WaitAll(ctx context.Context, handles []*Handle) ([]domain.Outcome, error) {
	outcomes := make([]domain.Outcome, len(handles))
	var waitErr error
	for i, h := range handles {
		if waitErr != nil {
			select {
			case <-h.done:
				outcomes[i] = h.outcome
			default:
				outcomes[i] = pendingOutcome(h.orderID)
			}
			continue
		}
		o, err := h.Wait(ctx)
		if err != nil {
			waitErr = err
			outcomes[i] = pendingOutcome(h.orderID)
			continue
		}
		outcomes[i] = o
	}
	return outcomes, waitErr
}

func pendingOutcome(orderID string) domain.Outcome {
	return domain.Failure(orderID, fmt.Errorf("%w: still pending when the wait ended", domain.ErrTimeout))
}
