package notify

import (
	"context"
	"encoding/json"
	"fmt"

	kafkago "github.com/segmentio/kafka-go"

	"orderfulfillment/internal/platform/kafka"
)

// KafkaNotifier publishes notifications as JSON events keyed by order id.
// Delivery to the customer is left to whatever consumes the topic.
type KafkaNotifier struct {
	producer kafka.Producer
}

func NewKafkaNotifier(producer kafka.Producer) *KafkaNotifier {
	return &KafkaNotifier{producer: producer}
}

func (n *KafkaNotifier) Send(ctx context.Context, msg Notification) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", msg.ID, err)
	}
	err = n.producer.WriteMessage(ctx, kafkago.Message{
		Key:   []byte(msg.OrderID),
		Value: payload,
		Headers: []kafkago.Header{
			{Key: "notification_id", Value: []byte(msg.ID)},
		},
	})
	if err != nil {
		return fmt.Errorf("publish notification %s: %w", msg.ID, err)
	}
	return nil
}
