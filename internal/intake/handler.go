package intake

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.uber.org/zap"

	"orderfulfillment/internal/clock"
	"orderfulfillment/internal/domain"
	"orderfulfillment/internal/pipeline"
	"orderfulfillment/internal/platform/kafka"
	"orderfulfillment/internal/platform/observability"
)

// MessageHandler defines the interface for processing incoming messages.
type MessageHandler interface {
	HandleOrderSubmitted(ctx context.Context, msg kafkago.Message) error
}

// Submitter accepts orders for asynchronous processing.
type Submitter interface {
	Submit(ctx context.Context, order domain.Order) (*pipeline.Handle, error)
}

// KafkaMessageHandler feeds OrderSubmitted messages into the pipeline and
// publishes each outcome once it is known.
type KafkaMessageHandler struct {
	pipeline Submitter
	producer kafka.Producer
	clock    clock.Clock
	logger   observability.Logger

	publishing sync.WaitGroup
}

// NewMessageHandler creates a new KafkaMessageHandler with explicit dependencies
func NewMessageHandler(p Submitter, producer kafka.Producer, clk clock.Clock, logger observability.Logger) *KafkaMessageHandler {
	return &KafkaMessageHandler{
		pipeline: p,
		producer: producer,
		clock:    clk,
		logger:   logger,
	}
}

// HandleOrderSubmitted decodes and submits one order. It returns as soon as the
// order is accepted; the outcome is published from a separate goroutine.
func (h *KafkaMessageHandler) HandleOrderSubmitted(ctx context.Context, msg kafkago.Message) error {
	// Extract trace context to connect spans across services
	msgCtx := h.extractTraceContext(ctx, msg.Headers)

	h.logger.Info("📨 Raw Kafka message received",
		zap.ByteString("key", msg.Key),
		zap.Int("partition", msg.Partition),
		zap.Int64("offset", msg.Offset),
	)

	var event OrderSubmittedEvent
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		h.logger.Error("❌ Invalid JSON in OrderSubmitted event",
			zap.Error(err),
			zap.ByteString("raw_value", msg.Value),
		)
		return err
	}
	if event.OrderID == "" {
		event.OrderID = uuid.NewString()
		h.logger.Warn("⚠️ OrderSubmitted event without order id, assigned one",
			zap.String("order_id", event.OrderID))
	}

	handle, err := h.pipeline.Submit(msgCtx, event.Order())
	if err != nil {
		h.logger.Error("❌ Failed to submit order", zap.Error(err), zap.String("order_id", event.OrderID))
		return err
	}

	h.logger.Info("✅ OrderSubmitted event accepted", zap.String("order_id", event.OrderID))

	h.publishing.Add(1)
	go func() {
		defer h.publishing.Done()
		outcome := handle.Outcome()
		_ = h.publishOrderProcessed(context.WithoutCancel(msgCtx), newOrderProcessedEvent(outcome, h.clock.Now()))
	}()
	return nil
}

// Drain waits until every accepted order has had its outcome published, or
// until ctx is done.
func (h *KafkaMessageHandler) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.publishing.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("outcome publishing abandoned: %w", ctx.Err())
	}
}

// extractTraceContext extracts OpenTelemetry trace context from Kafka message headers
func (h *KafkaMessageHandler) extractTraceContext(ctx context.Context, headers []kafkago.Header) context.Context {
	propagator := otel.GetTextMapPropagator()
	carrier := propagation.MapCarrier{}

	for _, header := range headers {
		carrier[header.Key] = string(header.Value)
	}

	return propagator.Extract(ctx, carrier)
}

func (h *KafkaMessageHandler) publishOrderProcessed(ctx context.Context, event OrderProcessedEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("❌ Failed to serialize OrderProcessed event",
			zap.Error(err),
			zap.String("order_id", event.OrderID),
		)
		return err
	}

	kafkaMsg := kafkago.Message{
		Value: payload,
		Key:   []byte(event.OrderID),
	}

	if err := h.producer.WriteMessage(ctx, kafkaMsg); err != nil {
		h.logger.Error("❌ Failed to publish OrderProcessed event",
			zap.Error(err),
			zap.String("order_id", event.OrderID),
		)
		return err
	}

	h.logger.Info("📤 Sent OrderProcessed event",
		zap.String("order_id", event.OrderID),
		zap.Bool("success", event.Success),
	)
	return nil
}
