package events

import "go.uber.org/zap"

// NewTestAMQPConsumer builds a consumer with no broker connection so tests can
// drive HandleDelivery directly.
func NewTestAMQPConsumer(handle Handler, logger *zap.Logger) *AMQPConsumer {
	return &AMQPConsumer{handle: handle, logger: logger}
}
