package ha

import (
	"context"

	"go.uber.org/zap"
)

// Notifier publishes run outcomes. Delivery is best effort.
type Notifier struct {
	sink   NotificationSink
	logger *zap.Logger
}

// NewNotifier creates a notifier. A nil sink turns publishing into a log line.
func NewNotifier(sink NotificationSink, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{sink: sink, logger: logger}
}

// Publish sends msg and logs any failure. The returned error is informational
// only and must not change the outcome of the caller.
func (n *Notifier) Publish(ctx context.Context, msg NotificationMessage) error {
	if n.sink == nil {
		n.logger.Warn("no notification sink configured",
			zap.String("subject", msg.Subject),
			zap.String("severity", string(msg.Severity)))
		return nil
	}

	if err := n.sink.Publish(ctx, msg); err != nil {
		nerr := &NotificationError{Subject: msg.Subject, Err: err}
		n.logger.Error("notification failed",
			zap.String("subject", msg.Subject),
			zap.String("severity", string(msg.Severity)),
			zap.Error(err))
		return nerr
	}

	n.logger.Info("notification sent",
		zap.String("subject", msg.Subject),
		zap.String("severity", string(msg.Severity)))
	return nil
}
