package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	otelkafka "github.com/Trendyol/otel-kafka-konsumer"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"orderfulfillment/internal/catalog"
	"orderfulfillment/internal/clock"
	"orderfulfillment/internal/config"
	"orderfulfillment/internal/intake"
	"orderfulfillment/internal/inventory"
	"orderfulfillment/internal/notify"
	"orderfulfillment/internal/pipeline"
	"orderfulfillment/internal/platform/kafka"
	"orderfulfillment/internal/platform/observability"
	"orderfulfillment/internal/stage"
)

// Container holds expensive-to-create singleton resources and dependencies
type Container struct {
	config  *config.Config
	logger  *zap.Logger
	tracer  observability.Tracer
	metrics *observability.Metrics
	clock   clock.Clock

	store    *inventory.Store
	pipeline *pipeline.Service

	messageConsumer      kafka.Consumer
	outcomeProducer      kafka.Producer
	notificationProducer kafka.Producer
	messageHandler       *intake.KafkaMessageHandler

	otelLogShutdown    func(context.Context) error
	otelTraceShutdown  func(context.Context) error
	otelMetricShutdown func(context.Context) error
}

// NewContainer loads configuration from the environment and builds the container
func NewContainer(ctx context.Context) (*Container, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return NewContainerWithConfig(ctx, cfg)
}

// NewContainerWithConfig creates and initializes all components for cfg
func NewContainerWithConfig(ctx context.Context, cfg *config.Config) (*Container, error) {
	container := &Container{
		config: cfg,
		clock:  clock.NewSystem(),
	}

	if err := container.setupLogger(ctx); err != nil {
		return nil, err
	}
	if err := container.setupObservability(ctx); err != nil {
		return nil, err
	}
	if err := container.setupKafka(); err != nil {
		return nil, err
	}
	if err := container.setupPipeline(); err != nil {
		return nil, err
	}

	return container, nil
}

// setupLogger builds the console logger, tee'd into the OpenTelemetry bridge
// when an OTLP endpoint is configured
func (c *Container) setupLogger(ctx context.Context) error {
	consoleEncoderConfig := zap.NewProductionEncoderConfig()
	consoleEncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(consoleEncoderConfig),
		zapcore.Lock(os.Stdout),
		zap.InfoLevel,
	)

	core := consoleCore
	var setupErr error
	if c.config.OtelEnabled() {
		otelLogShutdown, err := observability.SetupLoggingSDK(ctx, c.config)
		c.otelLogShutdown = otelLogShutdown
		setupErr = err

		otelZapCore := otelzap.NewCore(config.ServiceName+".manual",
			otelzap.WithLoggerProvider(global.GetLoggerProvider()),
		)
		core = zapcore.NewTee(otelZapCore, consoleCore)
	}

	c.logger = zap.New(core,
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
		zap.Fields(zap.String("service.name", config.ServiceName)),
	)
	if setupErr != nil {
		c.logger.Error("Failed to setup OpenTelemetry logging", zap.Error(setupErr))
	}
	return nil
}

// setupObservability configures OpenTelemetry tracing and metrics. Without an
// endpoint the global no-op providers are used.
func (c *Container) setupObservability(ctx context.Context) error {
	if c.config.OtelEnabled() {
		_, otelTraceShutdown, err := observability.SetupTracingSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry tracing", zap.Error(err))
		}
		c.otelTraceShutdown = otelTraceShutdown

		otelMetricShutdown, err := observability.SetupMetricsSDK(ctx, c.config)
		if err != nil {
			c.logger.Error("Failed to setup OpenTelemetry metrics", zap.Error(err))
		}
		c.otelMetricShutdown = otelMetricShutdown
	}

	c.tracer = otel.Tracer(config.ServiceName)

	metrics, err := observability.NewMetrics(otel.Meter(config.ServiceName))
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}
	c.metrics = metrics
	return nil
}

// setupKafka initializes the traced order reader and the outcome and
// notification writers
func (c *Container) setupKafka() error {
	if !c.config.KafkaEnabled() {
		return nil
	}

	baseReader := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers: []string{c.config.KafkaBroker},
		Topic:   config.OrdersTopic,
		GroupID: config.GroupID,
	})
	reader, err := otelkafka.NewReader(baseReader,
		otelkafka.WithTracerProvider(otel.GetTracerProvider()),
		otelkafka.WithPropagator(propagation.TraceContext{}),
	)
	if err != nil {
		return fmt.Errorf("failed to create kafka reader: %w", err)
	}
	c.messageConsumer = reader

	if c.outcomeProducer, err = c.newWriter(config.OutcomesTopic); err != nil {
		return err
	}
	if c.notificationProducer, err = c.newWriter(config.NotificationsTopic); err != nil {
		return err
	}
	return nil
}

func (c *Container) newWriter(topic string) (kafka.Producer, error) {
	baseWriter := &kafkago.Writer{
		Addr:         kafkago.TCP(c.config.KafkaBroker),
		Topic:        topic,
		Balancer:     &kafkago.LeastBytes{},
		BatchTimeout: config.BatchTimeout,
		BatchSize:    config.BatchSize,
	}

	writer, err := otelkafka.NewWriter(baseWriter,
		otelkafka.WithTracerProvider(otel.GetTracerProvider()),
		otelkafka.WithPropagator(propagation.TraceContext{}),
		otelkafka.WithAttributes(
			[]attribute.KeyValue{
				semconv.MessagingDestinationNameKey.String(topic),
				attribute.String("messaging.kafka.client_id", config.ServiceName),
			},
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka writer for %s: %w", topic, err)
	}
	return writer, nil
}

// setupPipeline loads the catalog and wires the stages into the pipeline
func (c *Container) setupPipeline() error {
	products := catalog.Default()
	if c.config.CatalogFile != "" {
		loaded, err := catalog.Load(c.config.CatalogFile)
		if err != nil {
			return err
		}
		products = loaded
	}

	store, err := inventory.NewStore(products...)
	if err != nil {
		return fmt.Errorf("failed to build inventory: %w", err)
	}
	c.store = store
	c.logger.Info("📚 Catalog loaded", zap.Int("products", len(products)))

	var notifier notify.Notifier = notify.NewLogNotifier(c.logger)
	if c.notificationProducer != nil {
		notifier = notify.NewKafkaNotifier(c.notificationProducer)
	}
	if c.config.NotifyFailureRate > 0 {
		notifier = notify.NewFlakyNotifier(notifier, c.config.NotifyFailureRate, uint64(time.Now().UnixNano()))
	}

	stages := stage.New(store, notifier,
		stage.WithDelays(c.config.Delays),
		stage.WithDeclinePolicy(stage.RandomDecline(c.config.PaymentFailureRate, uint64(time.Now().UnixNano()))),
		stage.WithClock(c.clock),
		stage.WithNotifyRetries(c.config.NotifyRetries, c.config.NotifyRetryDelay),
		stage.WithLogger(c.logger),
		stage.WithTracer(c.tracer),
		stage.WithMetrics(c.metrics),
	)

	c.pipeline = pipeline.New(stages,
		pipeline.WithTimeout(c.config.OrderTimeout),
		pipeline.WithWorkers(c.config.Workers),
		pipeline.WithClock(c.clock),
		pipeline.WithLogger(c.logger),
		pipeline.WithTracer(c.tracer),
		pipeline.WithMetrics(c.metrics),
	)

	if c.messageConsumer != nil {
		c.messageHandler = intake.NewMessageHandler(c.pipeline, c.outcomeProducer, c.clock, c.logger)
	}
	return nil
}

// Shutdown drains the pipeline, then closes Kafka and OpenTelemetry in that order
func (c *Container) Shutdown(ctx context.Context) error {
	c.logger.Info("Shutting down infrastructure...")

	var errs error
	if c.pipeline != nil {
		errs = errors.Join(errs, c.pipeline.Shutdown(ctx))
	}
	if c.messageHandler != nil {
		if err := c.messageHandler.Drain(ctx); err != nil {
			c.logger.Error("Failed to publish pending outcomes", zap.Error(err))
			errs = errors.Join(errs, err)
		}
	}

	closers := []struct {
		name  string
		close func() error
	}{
		{"message consumer", closerOf(c.messageConsumer)},
		{"outcome producer", closerOf(c.outcomeProducer)},
		{"notification producer", closerOf(c.notificationProducer)},
	}
	for _, cl := range closers {
		if err := cl.close(); err != nil {
			c.logger.Error("Failed to close "+cl.name, zap.Error(err))
			errs = errors.Join(errs, err)
		}
	}

	errs = errors.Join(errs, c.shutdownTelemetry(ctx))

	c.logger.Info("Infrastructure shutdown complete")

	if err := c.logger.Sync(); err != nil {
		// Can't log this error since logger might be closed
		fmt.Printf("Failed to sync logger: %v\n", err)
	}
	return errs
}

// shutdownTelemetry flushes tracing and metrics before logging, so their
// errors still reach the OTel log pipeline.
func (c *Container) shutdownTelemetry(ctx context.Context) error {
	var errs error
	for _, p := range []struct {
		name     string
		shutdown func(context.Context) error
	}{
		{"tracing", c.otelTraceShutdown},
		{"metrics", c.otelMetricShutdown},
		{"logging", c.otelLogShutdown},
	} {
		if p.shutdown == nil {
			continue
		}
		if err := p.shutdown(ctx); err != nil {
			c.logger.Error("Failed to shutdown OTel "+p.name, zap.Error(err))
			errs = errors.Join(errs, err)
		}
	}
	return errs
}

func closerOf(c interface{ Close() error }) func() error {
	return func() error {
		if c == nil {
			return nil
		}
		return c.Close()
	}
}

// Getters for accessing components
func (c *Container) Config() *config.Config       { return c.config }
func (c *Container) Logger() observability.Logger { return c.logger }
func (c *Container) Store() *inventory.Store      { return c.store }
func (c *Container) Pipeline() *pipeline.Service  { return c.pipeline }

// ConsumerService returns the Kafka intake, or nil when Kafka is disabled
func (c *Container) ConsumerService() intake.ConsumerService {
	if c.messageConsumer == nil {
		return nil
	}
	return intake.NewConsumerService(c.messageConsumer, c.messageHandler, c.logger)
}
