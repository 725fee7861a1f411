package observability

import (
	"context"
	"errors"
	"fmt"

	"orderfulfillment/internal/config"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/propagation"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// shutdowns collects provider shutdown funcs and setup errors for one SDK.
type shutdowns struct {
	funcs []func(context.Context) error
	err   error
}

func (s *shutdowns) handleErr(name string, err error) {
	if err != nil {
		s.err = errors.Join(s.err, fmt.Errorf("%s: %w", name, err))
	}
}

func (s *shutdowns) shutdown(ctx context.Context) error {
	var err error
	for _, fn := range s.funcs {
		err = errors.Join(err, fn(ctx))
	}
	s.funcs = nil
	return err
}

func newResource() (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(config.ServiceName),
			semconv.ServiceVersion(config.ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}

func authHeaders(cfg *config.Config) map[string]string {
	return map[string]string{"Authorization": cfg.OtelAuthHeader}
}

// SetupLoggingSDK initializes OpenTelemetry logging with the provided configuration
func SetupLoggingSDK(ctx context.Context, cfg *config.Config) (shutdown func(context.Context) error, err error) {
	s := &shutdowns{}

	res, err := newResource()
	if err != nil {
		return nil, err
	}

	logExporter, errExporter := otlploghttp.New(ctx,
		otlploghttp.WithEndpoint(cfg.OtelEndpoint),
		otlploghttp.WithURLPath(config.LogsPath),
		otlploghttp.WithHeaders(authHeaders(cfg)),
	)
	s.handleErr("OTLP Log Exporter", errExporter)

	if errExporter == nil {
		logProcessor := sdklog.NewBatchProcessor(logExporter,
			sdklog.WithExportTimeout(config.ExportTimeout),
			sdklog.WithMaxQueueSize(config.MaxQueueSize),
		)
		loggerProvider := sdklog.NewLoggerProvider(
			sdklog.WithProcessor(logProcessor),
			sdklog.WithResource(res),
		)
		global.SetLoggerProvider(loggerProvider)
		s.funcs = append(s.funcs, loggerProvider.Shutdown)
	}

	return s.shutdown, s.err
}

// SetupTracingSDK initializes OpenTelemetry tracing with the provided configuration
func SetupTracingSDK(ctx context.Context, cfg *config.Config) (tp *sdktrace.TracerProvider, shutdown func(context.Context) error, err error) {
	s := &shutdowns{}

	res, err := newResource()
	if err != nil {
		return nil, nil, err
	}

	// Kafka headers carry the trace context between intake and downstream consumers.
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	traceExporter, errExporter := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OtelEndpoint),
		otlptracehttp.WithURLPath(config.TracesPath),
		otlptracehttp.WithHeaders(authHeaders(cfg)),
	)
	s.handleErr("OTLP Trace Exporter", errExporter)

	if errExporter == nil {
		traceProcessor := sdktrace.NewBatchSpanProcessor(traceExporter,
			sdktrace.WithExportTimeout(config.ExportTimeout),
			sdktrace.WithMaxQueueSize(config.MaxQueueSize),
		)
		tracerProvider := sdktrace.NewTracerProvider(
			sdktrace.WithSampler(sdktrace.AlwaysSample()),
			sdktrace.WithResource(res),
			sdktrace.WithSpanProcessor(traceProcessor),
		)
		otel.SetTracerProvider(tracerProvider)
		s.funcs = append(s.funcs, tracerProvider.Shutdown)
		tp = tracerProvider
	}

	return tp, s.shutdown, s.err
}

// SetupMetricsSDK initializes OpenTelemetry metrics with a periodic OTLP reader
func SetupMetricsSDK(ctx context.Context, cfg *config.Config) (shutdown func(context.Context) error, err error) {
	s := &shutdowns{}

	res, err := newResource()
	if err != nil {
		return nil, err
	}

	metricExporter, errExporter := otlpmetrichttp.New(ctx,
		otlpmetrichttp.WithEndpoint(cfg.OtelEndpoint),
		otlpmetrichttp.WithURLPath(config.MetricsPath),
		otlpmetrichttp.WithHeaders(authHeaders(cfg)),
	)
	s.handleErr("OTLP Metric Exporter", errExporter)

	if errExporter == nil {
		meterProvider := sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter,
				sdkmetric.WithTimeout(config.ExportTimeout),
			)),
			sdkmetric.WithResource(res),
		)
		otel.SetMeterProvider(meterProvider)
		s.funcs = append(s.funcs, meterProvider.Shutdown)
	}

	return s.shutdown, s.err
}
