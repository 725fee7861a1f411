package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"orderfulfillment/internal/clock"
	"orderfulfillment/internal/domain"
	"orderfulfillment/internal/inventory"
	"orderfulfillment/internal/notify"
	"orderfulfillment/internal/stage"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return r.err
}

func (r *recordingNotifier) Sent() []notify.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notification(nil), r.sent...)
}

type fixture struct {
	store    *inventory.Store
	notifier *recordingNotifier
	svc      *Service
}

func newFixture(t *testing.T, stageOpts []stage.Option, opts ...Option) *fixture {
	t.Helper()
	store, err := inventory.NewStore(
		domain.Product{ID: "P01", Name: "Laptop", Price: decimal.NewFromInt(150000), Stock: 10},
		domain.Product{ID: "P02", Name: "Mouse", Price: decimal.NewFromInt(3500), Stock: 50},
		domain.Product{ID: "P04", Name: "Monitor", Price: decimal.NewFromInt(45000), Stock: 5},
	)
	require.NoError(t, err)

	n := &recordingNotifier{}
	base := []stage.Option{
		stage.WithClock(clock.NewInstant()),
		stage.WithDeclinePolicy(stage.NeverDecline()),
		stage.WithNotifyRetries(0, 0),
	}
	stages := stage.New(store, n, append(base, stageOpts...)...)
	svc := New(stages, append([]Option{WithTimeout(5 * time.Second), WithWorkers(8)}, opts...)...)
	return &fixture{store: store, notifier: n, svc: svc}
}

func (f *fixture) submit(t *testing.T, order domain.Order) *Handle {
	t.Helper()
	h, err := f.svc.Submit(context.Background(), order)
	require.NoError(t, err)
	return h
}

func (f *fixture) stock(t *testing.T, productID string) int {
	t.Helper()
	n, err := f.store.Stock(productID)
	require.NoError(t, err)
	return n
}

func drain(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, svc.Shutdown(ctx))
}

// gate blocks payments until it is opened.
type gate struct {
	open    chan struct{}
	entered chan struct{}
	once    sync.Once
}

func newGate() *gate {
	return &gate{open: make(chan struct{}), entered: make(chan struct{}, 64)}
}

func (g *gate) policy() stage.DeclinePolicy {
	return stage.DeclineFunc(func(domain.Order, decimal.Decimal) bool {
		g.entered <- struct{}{}
		<-g.open
		return false
	})
}

func (g *gate) release() { g.once.Do(func() { close(g.open) }) }

func TestSubmit_ProcessesOrder(t *testing.T) {
	f := newFixture(t, nil)

	h := f.submit(t, domain.Order{ID: "ORD001", ProductID: "P01", Quantity: 1, Email: "alice@example.com"})
	outcome := h.Outcome()

	assert.True(t, outcome.Success)
	assert.Equal(t, "ORD001", outcome.OrderID)
	assert.Equal(t, "168000.00", outcome.Amount.StringFixed(2))
	assert.Equal(t, domain.MessageProcessed, outcome.Message)
	assert.Equal(t, domain.StateDone, h.State())
	assert.Equal(t, 9, f.stock(t, "P01"))

	drain(t, f.svc)
	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.True(t, sent[0].Success)
	assert.Equal(t, "alice@example.com", sent[0].Email)
}

func TestSubmit_UnknownProduct(t *testing.T) {
	f := newFixture(t, nil)

	outcome := f.submit(t, domain.Order{ID: "ORD006", ProductID: "P99", Quantity: 1}).Outcome()

	assert.False(t, outcome.Success)
	assert.Equal(t, domain.ReasonNotFound, outcome.Reason)
	assert.Contains(t, outcome.Message, "P99")
	assert.True(t, outcome.Amount.IsZero())
}

func TestSubmit_OverRequestLeavesStockUntouched(t *testing.T) {
	f := newFixture(t, nil)

	h := f.submit(t, domain.Order{ID: "ORD007", ProductID: "P02", Quantity: 60})
	outcome := h.Outcome()

	assert.False(t, outcome.Success)
	assert.Equal(t, domain.ReasonInsufficientStock, outcome.Reason)
	assert.Equal(t, domain.StateFailed, h.State())
	assert.Equal(t, 50, f.stock(t, "P02"))
}

func TestSubmit_InvalidOrderBecomesFailure(t *testing.T) {
	f := newFixture(t, nil)

	outcome := f.submit(t, domain.Order{ID: "ORD-BAD", ProductID: "P01", Quantity: 0}).Outcome()

	assert.False(t, outcome.Success)
	assert.Equal(t, domain.ReasonInvalidOrder, outcome.Reason)
	assert.Equal(t, 10, f.stock(t, "P01"))
}

func TestSubmit_PaymentDeclined(t *testing.T) {
	f := newFixture(t, []stage.Option{stage.WithDeclinePolicy(stage.AlwaysDecline())})

	outcome := f.submit(t, domain.Order{ID: "ORD003", ProductID: "P01", Quantity: 1}).Outcome()

	assert.Equal(t, domain.ReasonPaymentDeclined, outcome.Reason)
	assert.Equal(t, 10, f.stock(t, "P01"), "declined payment must not reserve stock")
}

func TestSubmit_StagePanicBecomesInternalFailure(t *testing.T) {
	boom := stage.DeclineFunc(func(domain.Order, decimal.Decimal) bool { panic("card reader on fire") })
	f := newFixture(t, []stage.Option{stage.WithDeclinePolicy(boom)})

	outcome := f.submit(t, domain.Order{ID: "ORD-P", ProductID: "P01", Quantity: 1}).Outcome()

	assert.False(t, outcome.Success)
	assert.Equal(t, domain.ReasonInternal, outcome.Reason)
	assert.Contains(t, outcome.Message, "card reader on fire")
}

func TestSubmit_RaceForFullStock(t *testing.T) {
	for i := 0; i < 20; i++ {
		f := newFixture(t, nil)

		a := f.submit(t, domain.Order{ID: "A", ProductID: "P04", Quantity: 5})
		b := f.submit(t, domain.Order{ID: "B", ProductID: "P04", Quantity: 5})
		outcomes := []domain.Outcome{a.Outcome(), b.Outcome()}

		var successes, shortages int
		for _, o := range outcomes {
			switch {
			case o.Success:
				successes++
			case o.Reason == domain.ReasonInsufficientStock:
				shortages++
			}
		}
		require.Equal(t, 1, successes, "round %d", i)
		require.Equal(t, 1, shortages, "round %d", i)
		require.Equal(t, 0, f.stock(t, "P04"))
		drain(t, f.svc)
	}
}

func TestSubmit_RaceForFullStockRejectedAtReservation(t *testing.T) {
	g := newGate()
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t, []stage.Option{
		stage.WithDeclinePolicy(g.policy()),
		stage.WithLogger(zap.New(core)),
	})
	t.Cleanup(g.release)

	a := f.submit(t, domain.Order{ID: "A", ProductID: "P04", Quantity: 5, Email: "a@example.com"})
	b := f.submit(t, domain.Order{ID: "B", ProductID: "P04", Quantity: 5, Email: "b@example.com"})

	// Both orders are held in payment, so both passed the availability check.
	<-g.entered
	<-g.entered
	assert.Equal(t, 5, f.stock(t, "P04"))
	g.release()

	outcomes := map[string]domain.Outcome{"A": a.Outcome(), "B": b.Outcome()}
	var winner, loser string
	for id, o := range outcomes {
		if o.Success {
			winner = id
		} else {
			loser = id
		}
	}
	require.NotEmpty(t, winner, "one order must succeed")
	require.NotEmpty(t, loser, "one order must fail")
	assert.Equal(t, domain.ReasonInsufficientStock, outcomes[loser].Reason)
	assert.Contains(t, outcomes[loser].Message, "requested 5, available 0")
	assert.Equal(t, 0, f.stock(t, "P04"))

	rejected := logs.FilterMessage("⚠️ Reservation rejected").All()
	require.Len(t, rejected, 1)
	assert.Equal(t, loser, rejected[0].ContextMap()["order_id"])
	assert.Equal(t, 1, logs.FilterMessage("🔍 Product available").FilterField(zap.String("order_id", loser)).Len(),
		"loser must have passed availability")

	drain(t, f.svc)
	var failed []notify.Notification
	for _, n := range f.notifier.Sent() {
		if !n.Success {
			failed = append(failed, n)
		}
	}
	require.Len(t, failed, 1)
	assert.Equal(t, loser, failed[0].OrderID)
	assert.Contains(t, failed[0].Cause, "insufficient stock")
}

func TestSubmit_ExactlyOneOutcomePerOrder(t *testing.T) {
	f := newFixture(t, nil)

	const orders = 60
	handles := make([]*Handle, 0, orders)
	for i := 0; i < orders; i++ {
		handles = append(handles, f.submit(t, domain.Order{
			ID:        fmt.Sprintf("ORD%03d", i),
			ProductID: "P02",
			Quantity:  1,
		}))
	}

	outcomes, err := WaitAll(context.Background(), handles)
	require.NoError(t, err)
	require.Len(t, outcomes, orders)

	seen := make(map[string]bool, orders)
	var successes int
	for i, o := range outcomes {
		assert.Equal(t, handles[i].OrderID(), o.OrderID)
		assert.False(t, seen[o.OrderID], "duplicate outcome for %s", o.OrderID)
		seen[o.OrderID] = true
		if o.Success {
			successes++
		} else {
			assert.Equal(t, domain.ReasonInsufficientStock, o.Reason)
		}
		assert.True(t, handles[i].State().IsTerminal())
	}
	assert.Equal(t, 50, successes)
	assert.Equal(t, 0, f.stock(t, "P02"))
}

func TestSubmit_TimeoutKeepsBackgroundWork(t *testing.T) {
	g := newGate()
	core, logs := observer.New(zapcore.DebugLevel)
	f := newFixture(t,
		[]stage.Option{stage.WithDeclinePolicy(g.policy())},
		WithTimeout(50*time.Millisecond),
		WithLogger(zap.New(core)),
	)
	t.Cleanup(g.release)

	h := f.submit(t, domain.Order{ID: "ORD-SLOW", ProductID: "P01", Quantity: 2})
	<-g.entered

	outcome := h.Outcome()
	assert.False(t, outcome.Success)
	assert.Equal(t, domain.ReasonTimeout, outcome.Reason)
	assert.Contains(t, outcome.Message, "timed out")
	assert.Equal(t, domain.StateTimedOut, h.State())
	assert.Equal(t, 10, f.stock(t, "P01"))

	g.release()

	require.Eventually(t, func() bool {
		n, _ := f.store.Stock("P01")
		return n == 8
	}, 2*time.Second, 5*time.Millisecond, "late pipeline must still reserve stock")
	require.Eventually(t, func() bool {
		return logs.FilterMessage("🕰️ Discarding late outcome").Len() == 1
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, outcome, h.Outcome(), "late outcome must not replace the timeout")
	assert.Equal(t, domain.StateTimedOut, h.State())
	drain(t, f.svc)
}

func TestSubmit_FailureNotificationIsSent(t *testing.T) {
	f := newFixture(t, nil)

	outcome := f.submit(t, domain.Order{ID: "ORD006", ProductID: "P99", Quantity: 1, Email: "bob@example.com"}).Outcome()
	require.False(t, outcome.Success)

	drain(t, f.svc)
	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.False(t, sent[0].Success)
	assert.Equal(t, "ORD006", sent[0].OrderID)
	assert.Contains(t, sent[0].Cause, "product not found")
}

func TestSubmit_NotificationFailureKeepsSuccess(t *testing.T) {
	f := newFixture(t, nil)
	f.notifier.err = errors.New("smtp unavailable")

	outcome := f.submit(t, domain.Order{ID: "ORD002", ProductID: "P02", Quantity: 3}).Outcome()

	assert.True(t, outcome.Success)
	assert.Equal(t, "11760.00", outcome.Amount.StringFixed(2))
	assert.Equal(t, 47, f.stock(t, "P02"))
}

func TestSubmit_IgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h, err := f.svc.Submit(ctx, domain.Order{ID: "ORD001", ProductID: "P01", Quantity: 1})
	require.NoError(t, err)

	assert.True(t, h.Outcome().Success)
}

func TestHandle_ReportsProgress(t *testing.T) {
	g := newGate()
	f := newFixture(t, []stage.Option{stage.WithDeclinePolicy(g.policy())})
	t.Cleanup(g.release)

	h := f.submit(t, domain.Order{ID: "ORD001", ProductID: "P01", Quantity: 1})
	<-g.entered
	assert.Equal(t, domain.StatePaying, h.State())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := h.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	g.release()
	o, err := h.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, o.Success)
	assert.Equal(t, domain.StateDone, h.State())
}

func TestWaitAll_ReportsPendingAsTimedOut(t *testing.T) {
	g := newGate()
	f := newFixture(t, []stage.Option{stage.WithDeclinePolicy(g.policy())}, WithTimeout(time.Minute))
	t.Cleanup(g.release)

	handles := []*Handle{
		f.submit(t, domain.Order{ID: "ORD006", ProductID: "P99", Quantity: 1}),
		f.submit(t, domain.Order{ID: "ORD001", ProductID: "P01", Quantity: 1}),
	}
	<-handles[0].Done()
	<-g.entered

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	outcomes, err := WaitAll(ctx, handles)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	require.Len(t, outcomes, 2)
	assert.Equal(t, domain.ReasonNotFound, outcomes[0].Reason)
	assert.Equal(t, domain.ReasonTimeout, outcomes[1].Reason)
	assert.Equal(t, "ORD001", outcomes[1].OrderID)

	g.release()
	drain(t, f.svc)
}

func TestShutdown(t *testing.T) {
	t.Run("rejects new orders", func(t *testing.T) {
		f := newFixture(t, nil)
		drain(t, f.svc)

		_, err := f.svc.Submit(context.Background(), domain.Order{ID: "ORD001", ProductID: "P01", Quantity: 1})
		assert.ErrorIs(t, err, ErrClosed)
	})

	t.Run("gives up when ctx expires", func(t *testing.T) {
		g := newGate()
		f := newFixture(t, []stage.Option{stage.WithDeclinePolicy(g.policy())})
		t.Cleanup(g.release)

		f.submit(t, domain.Order{ID: "ORD001", ProductID: "P01", Quantity: 1})
		<-g.entered

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		defer cancel()
		assert.ErrorIs(t, f.svc.Shutdown(ctx), context.DeadlineExceeded)

		g.release()
		drain(t, f.svc)
		assert.Equal(t, 9, f.stock(t, "P01"))
	})
}

func TestSubmit_RecordsOrderSpan(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tracer := tp.Tracer("test")
	f := newFixture(t,
		[]stage.Option{stage.WithTracer(tracer)},
		WithTracer(tracer),
	)

	f.submit(t, domain.Order{ID: "ORD001", ProductID: "P01", Quantity: 1}).Outcome()
	drain(t, f.svc)

	var root sdktrace.ReadOnlySpan
	children := map[string]bool{}
	for _, s := range recorder.Ended() {
		if s.Name() == "order.process" {
			root = s
		}
	}
	require.NotNil(t, root)
	for _, s := range recorder.Ended() {
		if s.Parent().SpanID() == root.SpanContext().SpanID() {
			children[s.Name()] = true
		}
	}
	for _, name := range []string{"stage.availability", "stage.pricing", "stage.payment", "stage.reservation", "stage.notification"} {
		assert.True(t, children[name], "missing child span %s", name)
	}
}

func TestRace(t *testing.T) {
	completed := make(chan domain.Outcome, 1)
	deadline := make(chan time.Time, 1)

	completed <- domain.Success("ORD001", decimal.NewFromInt(1))
	r := race(completed, deadline)
	assert.False(t, r.expired)
	assert.Equal(t, "ORD001", r.outcome.OrderID)

	deadline <- time.Now()
	r = race(completed, deadline)
	assert.True(t, r.expired)
}
