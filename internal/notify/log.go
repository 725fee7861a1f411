package notify

import (
	"context"

	"go.uber.org/zap"

	"orderfulfillment/internal/platform/observability"
)

// LogNotifier simulates email delivery by logging the message.
type LogNotifier struct {
	logger observability.Logger
}

func NewLogNotifier(logger observability.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Send(_ context.Context, msg Notification) error {
	n.logger.Info("📧 Notification sent",
		zap.String("order_id", msg.OrderID),
		zap.String("email", msg.Email),
		zap.Bool("success", msg.Success),
		zap.String("body", msg.Body()),
	)
	return nil
}
