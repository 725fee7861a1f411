package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"
)

const (
	ServiceName    = "order-fulfillment"
	ServiceVersion = "0.1.0"
)

const (
	OrdersTopic        = "OrderSubmitted"
	OutcomesTopic      = "OrderProcessed"
	NotificationsTopic = "OrderNotification"
	GroupID            = "order-fulfillment-group"
	BatchTimeout       = 10 * time.Millisecond
	BatchSize          = 100
)

const (
	LogsPath      = "/otlp/v1/logs"
	TracesPath    = "/otlp/v1/traces"
	MetricsPath   = "/otlp/v1/metrics"
	ExportTimeout = 30 * time.Second
	MaxQueueSize  = 2048
)

const (
	DefaultOrderTimeout       = 10 * time.Second
	DefaultBatchWait          = 30 * time.Second
	DefaultPaymentFailureRate = 0.10
	DefaultNotifyRetries      = 2
	DefaultNotifyRetryDelay   = 200 * time.Millisecond
)

// Delays is the simulated latency of each stage.
type Delays struct {
	Availability time.Duration
	Pricing      time.Duration
	Payment      time.Duration
	Reservation  time.Duration
	Notification time.Duration
}

// DefaultDelays mirrors the latency profile the simulator was tuned with.
func DefaultDelays() Delays {
	return Delays{
		Availability: 1000 * time.Millisecond,
		Pricing:      500 * time.Millisecond,
		Payment:      2000 * time.Millisecond,
		Reservation:  800 * time.Millisecond,
		Notification: 1000 * time.Millisecond,
	}
}

// DefaultWorkers sizes the stage pool at twice the CPU count, capped at 20.
func DefaultWorkers() int {
	return min(20, runtime.NumCPU()*2)
}

// Config holds environment-specific configuration
type Config struct {
	OrderTimeout       time.Duration
	BatchWait          time.Duration
	Workers            int
	Delays             Delays
	PaymentFailureRate float64
	NotifyFailureRate  float64
	NotifyRetries      int
	NotifyRetryDelay   time.Duration
	CatalogFile        string

	// Optional integrations; empty disables them.
	KafkaBroker    string
	OtelEndpoint   string
	OtelAuthHeader string
}

// KafkaEnabled reports whether orders should be consumed from Kafka instead of
// running the built-in batch.
func (c *Config) KafkaEnabled() bool { return c.KafkaBroker != "" }

// OtelEnabled reports whether telemetry should be exported over OTLP.
func (c *Config) OtelEnabled() bool { return c.OtelEndpoint != "" }

// LoadConfig loads configuration from environment variables with validation
func LoadConfig() (*Config, error) {
	config := &Config{
		OrderTimeout:       DefaultOrderTimeout,
		BatchWait:          DefaultBatchWait,
		Workers:            DefaultWorkers(),
		Delays:             DefaultDelays(),
		PaymentFailureRate: DefaultPaymentFailureRate,
		NotifyRetries:      DefaultNotifyRetries,
		NotifyRetryDelay:   DefaultNotifyRetryDelay,
		CatalogFile:        os.Getenv("CATALOG_FILE"),
		KafkaBroker:        os.Getenv("KAFKA_BROKER"),
		OtelEndpoint:       os.Getenv("OTEL_ENDPOINT"),
		OtelAuthHeader:     os.Getenv("OTEL_AUTH_HEADER"),
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"ORDER_TIMEOUT", &config.OrderTimeout},
		{"BATCH_WAIT", &config.BatchWait},
		{"NOTIFY_RETRY_INTERVAL", &config.NotifyRetryDelay},
		{"DELAY_AVAILABILITY", &config.Delays.Availability},
		{"DELAY_PRICING", &config.Delays.Pricing},
		{"DELAY_PAYMENT", &config.Delays.Payment},
		{"DELAY_RESERVATION", &config.Delays.Reservation},
		{"DELAY_NOTIFICATION", &config.Delays.Notification},
	}
	for _, d := range durations {
		if err := lookupDuration(d.env, d.dst); err != nil {
			return nil, err
		}
	}
	if err := lookupInt("WORKERS", &config.Workers); err != nil {
		return nil, err
	}
	if err := lookupInt("NOTIFY_RETRIES", &config.NotifyRetries); err != nil {
		return nil, err
	}
	if err := lookupRate("PAYMENT_FAILURE_RATE", &config.PaymentFailureRate); err != nil {
		return nil, err
	}
	if err := lookupRate("NOTIFY_FAILURE_RATE", &config.NotifyFailureRate); err != nil {
		return nil, err
	}

	if config.OrderTimeout <= 0 {
		return nil, fmt.Errorf("ORDER_TIMEOUT must be positive, got %s", config.OrderTimeout)
	}
	if config.Workers <= 0 {
		return nil, fmt.Errorf("WORKERS must be positive, got %d", config.Workers)
	}
	if config.NotifyRetries < 0 {
		return nil, fmt.Errorf("NOTIFY_RETRIES must not be negative, got %d", config.NotifyRetries)
	}
	if config.OtelEndpoint != "" && config.OtelAuthHeader == "" {
		return nil, fmt.Errorf("OTEL_AUTH_HEADER environment variable is required when OTEL_ENDPOINT is set")
	}

	return config, nil
}

func lookupDuration(env string, dst *time.Duration) error {
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative, got %s", env, d)
	}
	*dst = d
	return nil
}

func lookupInt(env string, dst *int) error {
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	*dst = n
	return nil
}

func lookupRate(env string, dst *float64) error {
	v, ok := os.LookupEnv(env)
	if !ok || v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", env, v, err)
	}
	if f < 0 || f > 1 {
		return fmt.Errorf("%s must be within [0, 1], got %v", env, f)
	}
	*dst = f
	return nil
}
