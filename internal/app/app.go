package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// Application holds all the components and manages the application lifecycle
type Application struct {
	ctx       context.Context
	cancel    context.CancelFunc
	container *Container
	out       io.Writer
}

// NewApplication creates and fully initializes a new Application instance
func NewApplication(ctx context.Context) (*Application, error) {
	container, err := NewContainer(ctx)
	if err != nil {
		return nil, err
	}
	return newApplication(ctx, container, os.Stdout), nil
}

func newApplication(ctx context.Context, container *Container, out io.Writer) *Application {
	// Set up signal handling
	appCtx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)

	app := &Application{
		ctx:       appCtx,
		cancel:    cancel,
		container: container,
		out:       out,
	}
	app.container.Logger().Info("Application initialized successfully",
		zap.Bool("kafka", container.Config().KafkaEnabled()),
		zap.Bool("otel", container.Config().OtelEnabled()),
	)
	return app
}

// Run consumes orders from Kafka when a broker is configured, otherwise it
// processes the demo batch and prints the summary
func (app *Application) Run() error {
	if consumer := app.container.ConsumerService(); consumer != nil {
		return consumer.Start(app.ctx)
	}

	summary, err := RunBatch(app.ctx, app.container.Pipeline(), DemoOrders(),
		app.container.Config().BatchWait, app.container.Logger())
	if err != nil {
		return err
	}
	if _, err := summary.WriteTo(app.out); err != nil {
		return err
	}

	for _, p := range app.container.Store().Products() {
		app.container.Logger().Info("📦 Remaining stock",
			zap.String("product_id", p.ID),
			zap.Int("stock", p.Stock),
		)
	}
	return nil
}

// Shutdown gracefully shuts down all application components
func (app *Application) Shutdown() {
	if app.container != nil {
		app.container.Logger().Info("Starting application shutdown...")
	}

	// Cancel context
	if app.cancel != nil {
		app.cancel()
	}

	if app.container != nil {
		ctx, cancel := context.WithTimeout(context.Background(), app.container.Config().BatchWait)
		defer cancel()
		if err := app.container.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Shutdown incomplete: %v\n", err)
		}
	}
}
